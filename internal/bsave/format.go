// Package bsave implements the engine's binary save/load format: a
// magic-prefixed, versioned image of the atom tables and the rule/fact
// graph, written and read without going through the surface parser.
// The wire layout is bespoke and byte-exact, grounded on CLIPS's
// bsave.c header/footer convention (a repeated magic-prefix integrity
// check bracketing per-construct fixed headers); no off-the-shelf
// serialization library encodes this particular framing, so this
// package is one of the few places that is justifiably built directly
// on encoding/binary rather than a third-party codec.
package bsave

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"rulecore/internal/atomtab"
)

const constructHeaderSize = 32 // fixed-width construct name field, padded with NUL

// sizeTag enumerates the width in bytes of size_t/long/pointer in the
// saving build; bload fails on a mismatch. A pure Go build has no real
// platform-dependent width divergence worth modeling, so all three are
// reported as 8.
type sizeTag struct {
	SizeT, Long, Pointer uint8
}

func currentSizeTag() sizeTag { return sizeTag{SizeT: 8, Long: 8, Pointer: 8} }

func writeCString(w *bufio.Writer, s string) error {
	if _, err := w.WriteString(s); err != nil {
		return err
	}
	return w.WriteByte(0)
}

func readCString(r *bufio.Reader) (string, error) {
	s, err := r.ReadString(0)
	if err != nil {
		return "", err
	}
	return s[:len(s)-1], nil
}

func writeFixedName(w *bufio.Writer, name string) error {
	buf := make([]byte, constructHeaderSize)
	if len(name) >= constructHeaderSize {
		return fmt.Errorf("bsave: construct name %q exceeds header width %d", name, constructHeaderSize)
	}
	copy(buf, name)
	_, err := w.Write(buf)
	return err
}

func readFixedName(r *bufio.Reader) (string, error) {
	buf := make([]byte, constructHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	n := 0
	for n < len(buf) && buf[n] != 0 {
		n++
	}
	return string(buf[:n]), nil
}

func writeU64(w *bufio.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readU64(r *bufio.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func writeU32(w *bufio.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readU32(r *bufio.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func writeBytes(w *bufio.Writer, b []byte) error {
	if err := writeU32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r *bufio.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// atomKindOrder fixes the per-kind needed-atom-table ordering used by
// both save and load.
var atomKindOrder = []atomtab.Kind{
	atomtab.KindSymbol,
	atomtab.KindString,
	atomtab.KindInstanceName,
	atomtab.KindFloat,
	atomtab.KindInteger,
	atomtab.KindBitmap,
	atomtab.KindExternalAddress,
}
