package atomtab

import (
	"math"
	"sync"

	"rulecore/internal/config"
	"rulecore/internal/logging"
)

// frame is one entry of the garbage-frame stack. Garbage frames are a
// stack; each frame owns one ephemeral list per interned kind.
// Multifields are not interned (they live in internal/value) so this
// package only tracks the
// four atom-bearing ephemeral lists CLIPS calls out for symbols, floats,
// integers/bitmaps/addresses — here collapsed into one list per
// interned Kind since Go's GC makes per-kind free lists unnecessary; the
// contract (bulk reclamation at pop_frame) is unaffected.
type frame struct {
	ephemeral map[Kind]*Atom // head of each kind's ephemeral chain for this frame
}

func newFrame() *frame {
	return &frame{ephemeral: make(map[Kind]*Atom)}
}

// Interner owns the five per-kind hash-consing tables and the
// garbage-frame stack. It is the sole authority for atom identity: every
// *Atom reachable by a caller was allocated by one of the intern* methods
// below.
type Interner struct {
	mu sync.Mutex

	symbolBuckets  [][]*Atom
	floatBuckets   [][]*Atom
	integerBuckets [][]*Atom
	bitmapBuckets  [][]*Atom
	extAddrBuckets [][]*Atom

	frames []*frame

	log *logging.Logger

	// permanent roots, retained for the lifetime of the Interner
	symTrue, symFalse   *Atom
	voidAtom            *Atom
	posInfinity         *Atom
	negInfinity         *Atom
	zeroInteger         *Atom
}

// New constructs an Interner sized per cfg.AtomTable, with one base
// garbage frame already pushed (so intern calls before any explicit
// push_frame still have somewhere to land).
func New(cfg config.AtomTableConfig) *Interner {
	it := &Interner{
		symbolBuckets:  make([][]*Atom, bucketsOrDefault(cfg.SymbolBuckets, 65521)),
		floatBuckets:   make([][]*Atom, bucketsOrDefault(cfg.FloatBuckets, 8191)),
		integerBuckets: make([][]*Atom, bucketsOrDefault(cfg.IntegerBuckets, 8191)),
		bitmapBuckets:  make([][]*Atom, bucketsOrDefault(cfg.BitmapBuckets, 8191)),
		extAddrBuckets: make([][]*Atom, bucketsOrDefault(cfg.ExternalAddressBuckets, 8191)),
		log:            logging.Get(logging.CategoryAtoms),
	}
	it.frames = []*frame{newFrame()}

	it.symFalse = it.internSymbolLocked(KindSymbol, "FALSE")
	it.Retain(it.symFalse)
	it.symTrue = it.internSymbolLocked(KindSymbol, "TRUE")
	it.Retain(it.symTrue)
	it.voidAtom = it.internSymbolLocked(KindVoid, "")
	it.Retain(it.voidAtom)
	it.posInfinity = it.internFloatLocked(mathInf(1))
	it.Retain(it.posInfinity)
	it.negInfinity = it.internFloatLocked(mathInf(-1))
	it.Retain(it.negInfinity)
	it.zeroInteger = it.internIntegerLocked(0, 0)
	it.Retain(it.zeroInteger)

	return it
}

func bucketsOrDefault(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

// TrueSymbol, FalseSymbol, Void, PositiveInfinity, NegativeInfinity, and
// ZeroInteger are always-retained singleton roots, never subject to
// garbage-frame reclamation.
func (it *Interner) TrueSymbol() *Atom        { return it.symTrue }
func (it *Interner) FalseSymbol() *Atom       { return it.symFalse }
func (it *Interner) Void() *Atom              { return it.voidAtom }
func (it *Interner) PositiveInfinity() *Atom  { return it.posInfinity }
func (it *Interner) NegativeInfinity() *Atom  { return it.negInfinity }
func (it *Interner) ZeroInteger() *Atom       { return it.zeroInteger }

func (it *Interner) bucketsFor(k Kind) [][]*Atom {
	switch k {
	case KindSymbol, KindString, KindInstanceName:
		return it.symbolBuckets
	case KindFloat:
		return it.floatBuckets
	case KindInteger:
		return it.integerBuckets
	case KindBitmap:
		return it.bitmapBuckets
	case KindExternalAddress:
		return it.extAddrBuckets
	default:
		return nil
	}
}

// currentFrame returns the top of the garbage-frame stack.
func (it *Interner) currentFrame() *frame {
	return it.frames[len(it.frames)-1]
}

// registerEphemeralLocked links a into the current frame's ephemeral list
// for its kind and marks it ephemeral.
func (it *Interner) registerEphemeralLocked(a *Atom) {
	f := it.currentFrame()
	a.eNext = f.ephemeral[a.Kind]
	f.ephemeral[a.Kind] = a
	a.ephemeral = true
}

// InternSymbol interns a symbol/string/instance-name atom by content.
func (it *Interner) InternSymbol(kind Kind, text string) *Atom {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.internSymbolLocked(kind, text)
}

func (it *Interner) internSymbolLocked(kind Kind, text string) *Atom {
	buckets := it.bucketsFor(kind)
	idx := hashSymbol(text, len(buckets))
	for a := buckets[idx]; a != nil; a = a.next {
		if a.Kind == kind && a.symbolText == text {
			return a
		}
	}
	a := &Atom{Kind: kind, symbolText: text, bucket: idx, next: buckets[idx]}
	buckets[idx] = a
	it.registerEphemeralLocked(a)
	it.log.Debug("interned %s %q", kind, text)
	return a
}

// InternFloat interns a float atom by value.
func (it *Interner) InternFloat(f float64) *Atom {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.internFloatLocked(f)
}

func (it *Interner) internFloatLocked(f float64) *Atom {
	buckets := it.floatBuckets
	idx := hashFloat(f, len(buckets))
	for a := buckets[idx]; a != nil; a = a.next {
		if a.floatVal == f {
			return a
		}
	}
	a := &Atom{Kind: KindFloat, floatVal: f, bucket: idx, next: buckets[idx]}
	buckets[idx] = a
	it.registerEphemeralLocked(a)
	return a
}

// InternInteger interns an integer atom by (value, tag).
func (it *Interner) InternInteger(n int64, tag int32) *Atom {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.internIntegerLocked(n, tag)
}

func (it *Interner) internIntegerLocked(n int64, tag int32) *Atom {
	buckets := it.integerBuckets
	idx := hashInteger(n, len(buckets))
	for a := buckets[idx]; a != nil; a = a.next {
		if a.intVal == n && a.intTag == tag {
			return a
		}
	}
	a := &Atom{Kind: KindInteger, intVal: n, intTag: tag, bucket: idx, next: buckets[idx]}
	buckets[idx] = a
	it.registerEphemeralLocked(a)
	return a
}

// InternBitmap interns a bitmap atom by content. The returned atom owns a
// private copy of b.
func (it *Interner) InternBitmap(b []byte) *Atom {
	it.mu.Lock()
	defer it.mu.Unlock()
	buckets := it.bitmapBuckets
	idx := hashBitMap(b, len(buckets))
	for a := buckets[idx]; a != nil; a = a.next {
		if bytesEqual(a.bitmap, b) {
			return a
		}
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	a := &Atom{Kind: KindBitmap, bitmap: cp, bucket: idx, next: buckets[idx]}
	buckets[idx] = a
	it.registerEphemeralLocked(a)
	return a
}

// InternExternalAddress interns by pointer identity plus type tag,
// matching CLIPS's own identity-based treatment of external addresses.
func (it *Interner) InternExternalAddress(ptr uintptr, typeTag int32) *Atom {
	it.mu.Lock()
	defer it.mu.Unlock()
	buckets := it.extAddrBuckets
	idx := hashExternalAddress(ptr, len(buckets))
	for a := buckets[idx]; a != nil; a = a.next {
		if a.extAddr == ptr && a.extTag == typeTag {
			return a
		}
	}
	a := &Atom{Kind: KindExternalAddress, extAddr: ptr, extTag: typeTag, bucket: idx, next: buckets[idx]}
	buckets[idx] = a
	it.registerEphemeralLocked(a)
	return a
}

// Retain increments a's reference count, clearing its ephemeral flag on
// the 0→1 transition (it is removed lazily from whatever ephemeral list
// it was on — Collect tolerates atoms with count>0 showing up there).
func (it *Interner) Retain(a *Atom) {
	it.mu.Lock()
	defer it.mu.Unlock()
	a.refCount++
	if a.refCount == 1 {
		a.ephemeral = false
	}
}

// Release decrements a's reference count; at zero it is re-registered as
// ephemeral on the current frame.
func (it *Interner) Release(a *Atom) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if a.refCount == 0 {
		return
	}
	a.refCount--
	if a.refCount == 0 {
		it.registerEphemeralLocked(a)
	}
}

// PushFrame begins a new garbage frame.
func (it *Interner) PushFrame() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.frames = append(it.frames, newFrame())
}

// PopFrame collects the current frame (see Collect) and removes it from
// the stack. Popping the base frame is a programming error and panics,
// matching the invariant that the garbage-frame stack is always balanced
// by callers: it is mutated on every evaluation boundary and must be
// restored on all exit paths, including early error returns.
func (it *Interner) PopFrame() {
	it.mu.Lock()
	defer it.mu.Unlock()
	if len(it.frames) == 1 {
		panic("atomtab: PopFrame called on base frame")
	}
	it.collectLocked(it.frames[len(it.frames)-1])
	it.frames = it.frames[:len(it.frames)-1]
}

// Collect walks the current frame's ephemeral lists; atoms still at
// count==0 are unlinked from their bucket and discarded, atoms with
// count>0 (retained since being listed) are left in place, unephemeral.
func (it *Interner) Collect() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.collectLocked(it.currentFrame())
}

func (it *Interner) collectLocked(f *frame) {
	for kind, head := range f.ephemeral {
		buckets := it.bucketsFor(kind)
		for a := head; a != nil; {
			next := a.eNext
			if a.refCount == 0 {
				it.unlinkLocked(buckets, a)
			} else {
				a.ephemeral = false
			}
			a = next
		}
		f.ephemeral[kind] = nil
	}
}

func (it *Interner) unlinkLocked(buckets [][]*Atom, a *Atom) {
	if buckets == nil {
		return
	}
	prev := (*Atom)(nil)
	cur := buckets[a.bucket]
	for cur != nil {
		if cur == a {
			if prev == nil {
				buckets[a.bucket] = cur.next
			} else {
				prev.next = cur.next
			}
			return
		}
		prev = cur
		cur = cur.next
	}
}

// WalkRetained calls visit once for every atom of kind currently held by a
// non-zero reference count (the "needed" atoms bsave must persist —
// ephemeral, unreferenced atoms are garbage and are not saved).
func (it *Interner) WalkRetained(kind Kind, visit func(*Atom)) {
	it.mu.Lock()
	defer it.mu.Unlock()
	buckets := it.bucketsFor(kind)
	for _, chain := range buckets {
		for a := chain; a != nil; a = a.next {
			if a.Kind == kind && a.refCount > 0 {
				visit(a)
			}
		}
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func mathInf(sign int) float64 {
	return math.Inf(sign)
}
