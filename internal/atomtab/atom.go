// Package atomtab implements the engine's atom interning layer: per-kind
// hash-consing of symbols, floats, integers, bitmaps, and external
// addresses, with reference-counted and ephemeral ("garbage frame")
// lifetimes. The hash functions and bucket counts are grounded directly
// on CLIPS's symbol.c (HashSymbol/HashFloat/HashInteger/HashBitMap/
// HashExternalAddress); the contract the rest of the engine depends on is
// only that intern(kind, bytes) returns a pointer-identical *Atom for
// content-equal input, not the exact hash values.
package atomtab

import "math"

// Kind identifies the primitive kind of an interned atom.
type Kind int

const (
	KindSymbol Kind = iota
	KindString
	KindInstanceName
	KindFloat
	KindInteger
	KindBitmap
	KindExternalAddress
	KindVoid
	KindUnquantifiedVariable
	KindQuantity
)

func (k Kind) String() string {
	switch k {
	case KindSymbol:
		return "symbol"
	case KindString:
		return "string"
	case KindInstanceName:
		return "instance-name"
	case KindFloat:
		return "float"
	case KindInteger:
		return "integer"
	case KindBitmap:
		return "bitmap"
	case KindExternalAddress:
		return "external-address"
	case KindVoid:
		return "void"
	case KindUnquantifiedVariable:
		return "unquantified-variable"
	case KindQuantity:
		return "quantity"
	default:
		return "unknown"
	}
}

// hashable reports whether values of kind k are admitted into one of the
// five per-kind hash-consing tables. String and instance-name share the
// symbol table, matching CLIPS's use of a single lexeme type for all
// three.
func (k Kind) hashable() bool {
	switch k {
	case KindSymbol, KindString, KindInstanceName, KindFloat, KindInteger, KindBitmap, KindExternalAddress:
		return true
	default:
		return false
	}
}

// Atom is an interned value. Two atoms of an interned kind with equal
// content are the same *Atom (pointer equality); this invariant is
// enforced solely by Interner.intern*, never by direct construction
// outside this package.
type Atom struct {
	Kind Kind

	symbolText string
	floatVal   float64
	intVal     int64
	intTag     int32
	bitmap     []byte
	extAddr    uintptr
	extTag     int32

	refCount  int32
	ephemeral bool
	needed    bool // "needed for serialization" flag, consulted by internal/bsave

	bucket int
	next   *Atom // intrusive bucket chain
	eNext  *Atom // intrusive ephemeral-list chain (per garbage frame)
}

// SymbolText returns the text of a symbol/string/instance-name atom.
func (a *Atom) SymbolText() string { return a.symbolText }

// FloatValue returns the value of a float atom.
func (a *Atom) FloatValue() float64 { return a.floatVal }

// IntegerValue returns the value and tag of an integer atom. The tag lets
// callers distinguish integers that should round-trip through bsave as
// distinct declared types; the interner only uses it for content
// equality.
func (a *Atom) IntegerValue() (int64, int32) { return a.intVal, a.intTag }

// BitmapBytes returns the raw bytes of a bitmap atom.
func (a *Atom) BitmapBytes() []byte { return a.bitmap }

// ExternalAddress returns the pointer value and type tag of an
// external-address atom.
func (a *Atom) ExternalAddress() (uintptr, int32) { return a.extAddr, a.extTag }

// RefCount returns the current reference count.
func (a *Atom) RefCount() int32 { return a.refCount }

// Ephemeral reports whether the atom is currently on a garbage frame's
// ephemeral list.
func (a *Atom) Ephemeral() bool { return a.ephemeral }

// SetNeeded marks (or clears) the "needed for serialization" flag that
// internal/bsave consults when building its needed-atom tables.
func (a *Atom) SetNeeded(v bool) { a.needed = v }

// Needed reports the "needed for serialization" flag.
func (a *Atom) Needed() bool { return a.needed }

// HashCode returns a full-width content hash of the atom, reusing the
// same per-kind algorithms as the interning tables (unreduced, i.e. with
// rangeSize=0). internal/fact's content-hash duplicate suppression and
// internal/network's optional hashed alpha memories both build on this
// rather than re-deriving atom content hashing.
func (a *Atom) HashCode() uint64 {
	switch a.Kind {
	case KindSymbol, KindString, KindInstanceName:
		return uint64(hashSymbol(a.symbolText, 0))*31 + uint64(a.Kind)
	case KindFloat:
		return uint64(hashFloat(a.floatVal, 0))
	case KindInteger:
		return uint64(hashInteger(a.intVal, 0))*31 + uint64(a.intTag)
	case KindBitmap:
		return uint64(hashBitMap(a.bitmap, 0))
	case KindExternalAddress:
		return uint64(hashExternalAddress(a.extAddr, 0))*31 + uint64(a.extTag)
	default:
		return uint64(a.Kind)
	}
}

// hashSymbol is CLIPS's HashSymbol: a polynomial rolling hash with
// multiplier 127 over the byte string, reduced mod range.
func hashSymbol(s string, rangeSize int) int {
	var tally uint64
	for i := 0; i < len(s); i++ {
		tally = tally*127 + uint64(s[i])
	}
	if rangeSize == 0 {
		return int(tally)
	}
	return int(tally % uint64(rangeSize))
}

// hashFloat is CLIPS's HashFloat: the raw 8-byte pattern of the float64,
// folded with the same ×127 polynomial as hashSymbol.
func hashFloat(f float64, rangeSize int) int {
	bits := math.Float64bits(f)
	var tally uint64
	for i := 0; i < 8; i++ {
		tally = tally*127 + (bits & 0xff)
		bits >>= 8
	}
	if rangeSize == 0 {
		return int(tally)
	}
	return int(tally % uint64(rangeSize))
}

// hashInteger is CLIPS's HashInteger: the absolute value of the integer.
func hashInteger(n int64, rangeSize int) int {
	tally := n
	if tally < 0 {
		tally = -tally
	}
	if rangeSize == 0 {
		return int(tally)
	}
	return int(uint64(tally) % uint64(rangeSize))
}

// hashExternalAddress is CLIPS's HashExternalAddress: the pointer value
// divided by 256 (the platform-pointer-alignment proxy the reference
// implementation uses via its unsigned/void* union).
func hashExternalAddress(ptr uintptr, rangeSize int) int {
	tally := uint64(ptr) / 256
	if rangeSize == 0 {
		return int(tally)
	}
	return int(tally % uint64(rangeSize))
}

// hashBitMap is CLIPS's HashBitMap: chunk-folds the bytes into
// word-sized (8-byte) accumulators, then adds any remaining bytes.
func hashBitMap(b []byte, rangeSize int) int {
	const wordSize = 8
	var count uint64
	n := len(b)
	wordLen := n / wordSize
	j := 0
	for i := 0; i < wordLen; i++ {
		var word uint64
		for k := 0; k < wordSize; k++ {
			word |= uint64(b[j]) << (8 * uint(k))
			j++
		}
		count += word
	}
	for ; j < n; j++ {
		count += uint64(b[j])
	}
	if rangeSize == 0 {
		return int(count)
	}
	return int(count % uint64(rangeSize))
}
