package network

import (
	"testing"

	"rulecore/internal/atomtab"
	"rulecore/internal/config"
	"rulecore/internal/fact"
	"rulecore/internal/value"
)

func setup(t *testing.T) (*atomtab.Interner, *fact.Store, *Network) {
	t.Helper()
	it := atomtab.New(config.AtomTableConfig{SymbolBuckets: 17, FloatBuckets: 17, IntegerBuckets: 17, BitmapBuckets: 17, ExternalAddressBuckets: 17})
	s := fact.NewStore()
	s.AllowDuplicates = true
	n := New()
	s.AddListener(n)
	return it, s, n
}

func xVal(f *fact.Fact) int64 {
	v, _ := f.SlotValueByIndex(0)
	n, _ := v.Atom().IntegerValue()
	return n
}
func yVal(f *fact.Fact) int64 {
	v, _ := f.SlotValueByIndex(1)
	n, _ := v.Atom().IntegerValue()
	return n
}

func pointTpl() *fact.Template {
	return fact.NewTemplate("point", "MAIN", []fact.SlotDescriptor{{Name: "x"}, {Name: "y"}})
}

// Scenario S2: rule (point ?x ?y) (point ?x ?z & :(> ?z ?y)) fires exactly
// for matching pairs; retracting the second fact empties the agenda.
func TestScenarioS2TwoPatternJoinWithTest(t *testing.T) {
	_, s, n := setup(t)
	tpl := pointTpl()

	chain1 := NewAlphaChain()
	n.RegisterChain("point", chain1)
	chain2 := NewAlphaChain()
	n.RegisterChain("point", chain2)

	init := NewJoinNode(nil, chain1.Memory, nil, false, NewBetaMemory())
	secondJoin := NewJoinNode(init.Out, chain2.Memory, func(left *Token, right *fact.Fact) (bool, error) {
		leftFact := left.Facts[0]
		if xVal(leftFact) != xVal(right) {
			return false, nil
		}
		return yVal(right) > yVal(leftFact), nil
	}, false, NewBetaMemory())

	var activated, deactivated []*Token
	term := NewTerminal("R1", secondJoin.Out)
	term.OnActivate = func(tok *Token) { activated = append(activated, tok) }
	term.OnDeactivate = func(tok *Token) { deactivated = append(deactivated, tok) }

	f1, _, _ := s.Assert(tpl, []value.Value{intVal(7), intVal(3)})
	f2, _, _ := s.Assert(tpl, []value.Value{intVal(7), intVal(5)})
	_, _, _ = s.Assert(tpl, []value.Value{intVal(7), intVal(2)})

	if len(activated) != 1 {
		t.Fatalf("expected exactly 1 activation, got %d", len(activated))
	}
	got := activated[0]
	if got.Facts[0] != f1 || got.Facts[1] != f2 {
		t.Fatalf("expected the (fact1, fact2) instantiation, got facts with x=%d,%d / y=%d,%d",
			xVal(got.Facts[0]), xVal(got.Facts[1]), yVal(got.Facts[0]), yVal(got.Facts[1]))
	}

	s.Retract(f2)
	if len(deactivated) != 1 {
		t.Fatalf("expected retract of fact2 to withdraw the activation, got %d deactivations", len(deactivated))
	}
}

func intVal(n int64) value.Value {
	it := sharedInterner()
	return value.FromAtom(it.InternInteger(n, 0))
}

var shared *atomtab.Interner

func sharedInterner() *atomtab.Interner {
	if shared == nil {
		shared = atomtab.New(config.AtomTableConfig{SymbolBuckets: 17, FloatBuckets: 17, IntegerBuckets: 17, BitmapBuckets: 17, ExternalAddressBuckets: 17})
	}
	return shared
}

// Scenario S3 and property 8: negated join (a ?x) (not (b ?x)).
func TestScenarioS3NegatedJoin(t *testing.T) {
	_, s, n := setup(t)
	aTpl := fact.NewTemplate("a", "MAIN", []fact.SlotDescriptor{{Name: "x"}})
	bTpl := fact.NewTemplate("b", "MAIN", []fact.SlotDescriptor{{Name: "x"}})

	aChain := NewAlphaChain()
	n.RegisterChain("a", aChain)
	bChain := NewAlphaChain()
	n.RegisterChain("b", bChain)

	init := NewJoinNode(nil, aChain.Memory, nil, false, NewBetaMemory())
	neg := NewJoinNode(init.Out, bChain.Memory, func(left *Token, right *fact.Fact) (bool, error) {
		return xVal(left.Facts[0]) == xVal(right), nil
	}, true, NewBetaMemory())

	active := map[*Token]bool{}
	term := NewTerminal("R2", neg.Out)
	term.OnActivate = func(t *Token) { active[t] = true }
	term.OnDeactivate = func(t *Token) { delete(active, t) }

	fa, _, _ := s.Assert(aTpl, []value.Value{intVal(1)})
	_ = fa
	if len(active) != 1 {
		t.Fatalf("expected 1 activation after asserting (a 1) with no (b 1), got %d", len(active))
	}

	fb, _, _ := s.Assert(bTpl, []value.Value{intVal(1)})
	if len(active) != 0 {
		t.Fatalf("expected activation withdrawn once (b 1) is asserted, got %d", len(active))
	}

	s.Retract(fb)
	if len(active) != 1 {
		t.Fatalf("expected activation to reappear once (b 1) is retracted, got %d", len(active))
	}
}

// Property 8: negated-join counters never go negative, and presence on
// the output memory is exactly counter==0.
func TestNegatedJoinCounterNeverNegative(t *testing.T) {
	_, s, n := setup(t)
	aTpl := fact.NewTemplate("a", "MAIN", []fact.SlotDescriptor{{Name: "x"}})
	bTpl := fact.NewTemplate("b", "MAIN", []fact.SlotDescriptor{{Name: "x"}})
	aChain := NewAlphaChain()
	n.RegisterChain("a", aChain)
	bChain := NewAlphaChain()
	n.RegisterChain("b", bChain)

	init := NewJoinNode(nil, aChain.Memory, nil, false, NewBetaMemory())
	neg := NewJoinNode(init.Out, bChain.Memory, func(left *Token, right *fact.Fact) (bool, error) {
		return xVal(left.Facts[0]) == xVal(right), nil
	}, true, NewBetaMemory())

	s.Assert(aTpl, []value.Value{intVal(9)})
	b1, _, _ := s.Assert(bTpl, []value.Value{intVal(9)})
	b2, _, _ := s.Assert(bTpl, []value.Value{intVal(9)})

	s.Retract(b1)
	s.Retract(b2)
	for left, set := range neg.matchSet {
		if len(set) != 0 {
			t.Fatalf("expected counter 0 after retracting all matching b facts, got %d", len(set))
		}
		found := false
		for _, t := range neg.Out.Tokens() {
			if t == left {
				found = true
			}
		}
		if !found {
			t.Fatal("token must reappear on Out once its counter returns to 0")
		}
	}
}
