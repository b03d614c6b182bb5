package rule

import (
	"testing"

	"rulecore/internal/atomtab"
	"rulecore/internal/config"
	"rulecore/internal/expr"
	"rulecore/internal/fact"
	"rulecore/internal/network"
	"rulecore/internal/value"
)

func xVal(f *fact.Fact) int64 {
	v, _ := f.SlotValueByIndex(0)
	n, _ := v.Atom().IntegerValue()
	return n
}

// Scenario S2, compiled from a declarative LHS instead of hand-wired
// network nodes: (point ?x ?y) (point ?x ?z & :(> ?z ?y)).
func TestCompileScenarioS2(t *testing.T) {
	it := atomtab.New(config.DefaultConfig().AtomTable)
	s := fact.NewStore()
	s.AllowDuplicates = true
	n := network.New()
	s.AddListener(n)

	tpl := fact.NewTemplate("point", "MAIN", []fact.SlotDescriptor{{Name: "x"}, {Name: "y"}})
	templates := map[string]*fact.Template{"point": tpl}

	ctx := expr.NewContext(it, 1024)
	expr.RegisterBuiltins(ctx)

	lhs := LHS{Patterns: []Pattern{
		{Template: "point", Slots: []SlotTest{{Slot: "x", Bind: "?x"}, {Slot: "y", Bind: "?y"}}},
		{
			Template: "point",
			Slots:    []SlotTest{{Slot: "x", Bind: "?x"}, {Slot: "y", Bind: "?z"}},
			Test:     expr.NewFuncCall(">", expr.NewSlotAccess(expr.NewFactSetVar(1), "y"), expr.NewSlotAccess(expr.NewFactSetVar(0), "y")),
		},
	}}

	r, err := Compile(n, templates, ctx, "R1", "MAIN", 0, lhs, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	var activated, deactivated []*network.Token
	r.Terminal.OnActivate = func(tok *network.Token) { activated = append(activated, tok) }
	r.Terminal.OnDeactivate = func(tok *network.Token) { deactivated = append(deactivated, tok) }

	intVal := func(n int64) value.Value { return value.FromAtom(it.InternInteger(n, 0)) }

	f1, _, _ := s.Assert(tpl, []value.Value{intVal(7), intVal(3)})
	f2, _, _ := s.Assert(tpl, []value.Value{intVal(7), intVal(5)})
	_, _, _ = s.Assert(tpl, []value.Value{intVal(7), intVal(2)})

	if len(activated) != 1 {
		t.Fatalf("expected exactly 1 activation, got %d", len(activated))
	}
	got := activated[0]
	if got.Facts[0] != f1 || got.Facts[1] != f2 {
		t.Fatalf("expected the (fact1, fact2) instantiation, got x=%d,%d", xVal(got.Facts[0]), xVal(got.Facts[1]))
	}

	s.Retract(f2)
	if len(deactivated) != 1 {
		t.Fatalf("expected retract of fact2 to withdraw the activation, got %d deactivations", len(deactivated))
	}
}

// Scenario S3: (a ?x) (not (b ?x)), compiled from a declarative LHS.
func TestCompileScenarioS3NegatedJoin(t *testing.T) {
	it := atomtab.New(config.DefaultConfig().AtomTable)
	s := fact.NewStore()
	n := network.New()
	s.AddListener(n)

	aTpl := fact.NewTemplate("a", "MAIN", []fact.SlotDescriptor{{Name: "x"}})
	bTpl := fact.NewTemplate("b", "MAIN", []fact.SlotDescriptor{{Name: "x"}})
	templates := map[string]*fact.Template{"a": aTpl, "b": bTpl}

	ctx := expr.NewContext(it, 1024)
	expr.RegisterBuiltins(ctx)

	lhs := LHS{Patterns: []Pattern{
		{Template: "a", Slots: []SlotTest{{Slot: "x", Bind: "?x"}}},
		{Template: "b", Slots: []SlotTest{{Slot: "x", Bind: "?x"}}, Negated: true},
	}}

	r, err := Compile(n, templates, ctx, "R2", "MAIN", 0, lhs, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	active := map[*network.Token]bool{}
	r.Terminal.OnActivate = func(t *network.Token) { active[t] = true }
	r.Terminal.OnDeactivate = func(t *network.Token) { delete(active, t) }

	intVal := func(n int64) value.Value { return value.FromAtom(it.InternInteger(n, 0)) }

	s.Assert(aTpl, []value.Value{intVal(1)})
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

func TestUndefineDetachesAlphaChains(t *testing.T) {
	it := atomtab.New(config.DefaultConfig().AtomTable)
	s := fact.NewStore()
	n := network.New()
	s.AddListener(n)

	tpl := fact.NewTemplate("point", "MAIN", []fact.SlotDescriptor{{Name: "x"}})
	templates := map[string]*fact.Template{"point": tpl}
	ctx := expr.NewContext(it, 1024)

	lhs := LHS{Patterns: []Pattern{{Template: "point", Slots: []SlotTest{{Slot: "x", Bind: "?x"}}}}}
	r, err := Compile(n, templates, ctx, "R3", "MAIN", 0, lhs, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	var activations int
	r.Terminal.OnActivate = func(*network.Token) { activations++ }
	r.Undefine()

	intVal := func(n int64) value.Value { return value.FromAtom(it.InternInteger(n, 0)) }
	s.Assert(tpl, []value.Value{intVal(1)})
	if activations != 0 {
		t.Fatalf("expected no activations after Undefine, got %d", activations)
	}
}
