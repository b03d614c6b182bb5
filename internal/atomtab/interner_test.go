package atomtab

import (
	"testing"

	"rulecore/internal/config"
)

func newTestInterner() *Interner {
	return New(config.AtomTableConfig{
		SymbolBuckets:          17,
		FloatBuckets:           17,
		IntegerBuckets:         17,
		BitmapBuckets:          17,
		ExternalAddressBuckets: 17,
	})
}

// Testable property 1: atom uniqueness. intern(K,s) == intern(K,s), and
// equal results imply equal content.
func TestInternSymbolUniqueness(t *testing.T) {
	it := newTestInterner()
	a1 := it.InternSymbol(KindSymbol, "hello")
	a2 := it.InternSymbol(KindSymbol, "hello")
	if a1 != a2 {
		t.Fatalf("expected pointer equality for repeated intern of the same symbol")
	}
	b := it.InternSymbol(KindSymbol, "world")
	if a1 == b {
		t.Fatalf("distinct content must not be interned to the same atom")
	}
}

func TestInternSymbolDistinguishesKind(t *testing.T) {
	it := newTestInterner()
	sym := it.InternSymbol(KindSymbol, "x")
	str := it.InternSymbol(KindString, "x")
	if sym == str {
		t.Fatalf("symbol and string kinds sharing a bucket table must still intern distinctly")
	}
}

func TestInternFloatIntegerBitmapExternalAddress(t *testing.T) {
	it := newTestInterner()

	if it.InternFloat(3.5) != it.InternFloat(3.5) {
		t.Fatal("float interning not idempotent")
	}
	if it.InternInteger(42, 0) != it.InternInteger(42, 0) {
		t.Fatal("integer interning not idempotent")
	}
	if it.InternInteger(42, 0) == it.InternInteger(42, 1) {
		t.Fatal("integers with distinct tags must not collide")
	}
	bm1 := it.InternBitmap([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9})
	bm2 := it.InternBitmap([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9})
	if bm1 != bm2 {
		t.Fatal("bitmap interning not idempotent")
	}
	if it.InternExternalAddress(0x1000, 1) != it.InternExternalAddress(0x1000, 1) {
		t.Fatal("external-address interning not idempotent")
	}
	if it.InternExternalAddress(0x1000, 1) == it.InternExternalAddress(0x1000, 2) {
		t.Fatal("external addresses with distinct type tags must not collide")
	}
}

// Testable property 2: reference-count soundness across a balanced
// sequence of retain/release and frame push/pop.
func TestReferenceCountSoundnessAcrossFrames(t *testing.T) {
	it := newTestInterner()

	it.PushFrame()
	tmp := it.InternSymbol(KindSymbol, "scratch")
	if tmp.RefCount() != 0 || !tmp.Ephemeral() {
		t.Fatalf("freshly interned atom should start at refcount 0, ephemeral")
	}
	it.Retain(tmp)
	if tmp.RefCount() != 1 || tmp.Ephemeral() {
		t.Fatalf("retained atom must clear ephemeral flag")
	}
	it.Release(tmp)
	if tmp.RefCount() != 0 || !tmp.Ephemeral() {
		t.Fatalf("released-to-zero atom must be re-registered ephemeral")
	}
	it.PopFrame()

	// tmp was collected with the frame; interning the same text again
	// must yield a fresh atom, not the collected one.
	again := it.InternSymbol(KindSymbol, "scratch")
	if again == tmp {
		t.Fatalf("atom collected at pop_frame must not be returned by a later intern")
	}
}

func TestRetainedAtomSurvivesFramePop(t *testing.T) {
	it := newTestInterner()
	it.PushFrame()
	kept := it.InternSymbol(KindSymbol, "kept")
	it.Retain(kept)
	it.PopFrame()

	again := it.InternSymbol(KindSymbol, "kept")
	if again != kept {
		t.Fatalf("a retained atom must survive pop_frame and be returned by later interns")
	}
}

func TestPermanentRootsAreDistinctAndRetained(t *testing.T) {
	it := newTestInterner()
	roots := []*Atom{it.TrueSymbol(), it.FalseSymbol(), it.Void(), it.PositiveInfinity(), it.NegativeInfinity(), it.ZeroInteger()}
	for i, r := range roots {
		if r.RefCount() < 1 {
			t.Fatalf("permanent root %d has refcount %d, want >= 1", i, r.RefCount())
		}
	}
	if it.PositiveInfinity().FloatValue() <= it.NegativeInfinity().FloatValue() {
		t.Fatal("+oo must be greater than -oo")
	}
}

func TestPopFrameOnBaseFramePanics(t *testing.T) {
	it := newTestInterner()
	defer func() {
		if recover() == nil {
			t.Fatal("expected PopFrame on the base frame to panic")
		}
	}()
	it.PopFrame()
}
