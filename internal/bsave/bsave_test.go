package bsave

import (
	"bytes"
	"testing"

	"rulecore/internal/atomtab"
	"rulecore/internal/config"
	"rulecore/internal/expr"
	"rulecore/internal/fact"
	"rulecore/internal/rule"
	"rulecore/internal/value"
)

func intSlot(name string) fact.SlotDescriptor {
	return fact.SlotDescriptor{Name: name, Constraint: fact.Constraint{TypeMask: expr.TypeInteger}}
}

func setupImage(t *testing.T) (*atomtab.Interner, *Image) {
	t.Helper()
	interner := atomtab.New(config.DefaultConfig().AtomTable)

	pointTpl := fact.NewTemplate("point", "MAIN", []fact.SlotDescriptor{intSlot("x"), intSlot("y")})
	store := fact.NewStore()

	x7 := interner.InternInteger(7, 0)
	y3 := interner.InternInteger(3, 0)
	interner.Retain(x7)
	interner.Retain(y3)
	f1, _, err := store.Assert(pointTpl, []value.Value{value.FromAtom(x7), value.FromAtom(y3)})
	if err != nil {
		t.Fatalf("assert: %v", err)
	}
	_ = f1

	greaterCall := expr.NewFuncCall(">", expr.NewFactSetVar(0), expr.NewFactSetVar(1))
	rhs := expr.NewIf(greaterCall, expr.NewReturn(expr.NewConstant(interner.TrueSymbol())), nil)
	interner.Retain(interner.TrueSymbol())

	r := &rule.Rule{
		Name:     "prefer-higher-x",
		Module:   "MAIN",
		Salience: 5,
		Patterns: []string{"(point (x ?x) (y ?y))"},
		RHS:      rhs,
	}

	img := BuildImage(interner, []*fact.Template{pointTpl}, store, []*rule.Rule{r})
	return interner, img
}

// Testable Property 7 / Scenario S5: a bsave/bload round trip reproduces
// the same atoms, templates, facts, and rule metadata.
func TestRoundTripPreservesAtomsTemplatesFactsAndRules(t *testing.T) {
	_, img := setupImage(t)
	cfg := config.DefaultConfig().BinaryFormat

	var buf bytes.Buffer
	if err := WriteImage(&buf, cfg, img); err != nil {
		t.Fatalf("WriteImage: %v", err)
	}

	loadInterner := atomtab.New(config.DefaultConfig().AtomTable)
	funcs := map[string]*expr.FuncDef{">": {Name: ">", MinArgs: 2, MaxArgs: 2}}
	loaded, err := ReadImage(&buf, cfg, loadInterner, funcs)
	if err != nil {
		t.Fatalf("ReadImage: %v", err)
	}

	if len(loaded.Templates) != 1 || loaded.Templates[0].Name != "point" {
		t.Fatalf("expected one point template, got %+v", loaded.Templates)
	}
	if got := loaded.Templates[0].SlotCount(); got != 2 {
		t.Fatalf("expected 2 slots, got %d", got)
	}

	if len(loaded.Facts) != 1 {
		t.Fatalf("expected 1 fact, got %d", len(loaded.Facts))
	}
	gotX, ok := loaded.Facts[0].SlotValue("x")
	if !ok || !gotX.IsAtom() || gotX.Atom().Kind != atomtab.KindInteger {
		t.Fatalf("expected integer x slot, got %+v", gotX)
	}
	if n, _ := gotX.Atom().IntegerValue(); n != 7 {
		t.Fatalf("expected x=7, got %d", n)
	}

	if len(loaded.Rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(loaded.Rules))
	}
	lr := loaded.Rules[0]
	if lr.Name != "prefer-higher-x" || lr.Salience != 5 || lr.Module != "MAIN" {
		t.Fatalf("rule metadata mismatch: %+v", lr)
	}
	if lr.RHS == nil || lr.RHS.Kind != expr.KindIf {
		t.Fatalf("expected round-tripped if-expression RHS, got %+v", lr.RHS)
	}
	if lr.RHS.Args[0].Kind != expr.KindFuncCall || lr.RHS.Args[0].FuncName != ">" {
		t.Fatalf("expected round-tripped > func-call condition, got %+v", lr.RHS.Args[0])
	}
}

// Expressions shared by reference (a rule's RHS and a template's slot
// default pointing at the identical *expr.Node) are written once and
// still resolve to a structurally identical node on both sides after
// load.
func TestRoundTripSharesIdenticalExpressionNodes(t *testing.T) {
	interner := atomtab.New(config.DefaultConfig().AtomTable)
	shared := expr.NewConstant(interner.InternInteger(42, 0))
	interner.Retain(shared.Constant)

	tpl := fact.NewTemplate("widget", "MAIN", []fact.SlotDescriptor{
		{Name: "count", Default: shared, Constraint: fact.Constraint{TypeMask: expr.TypeInteger}},
	})
	r := &rule.Rule{Name: "uses-same-default", Module: "MAIN", RHS: shared}

	store := fact.NewStore()
	img := BuildImage(interner, []*fact.Template{tpl}, store, []*rule.Rule{r})

	var buf bytes.Buffer
	cfg := config.DefaultConfig().BinaryFormat
	if err := WriteImage(&buf, cfg, img); err != nil {
		t.Fatalf("WriteImage: %v", err)
	}

	loadInterner := atomtab.New(config.DefaultConfig().AtomTable)
	loaded, err := ReadImage(&buf, cfg, loadInterner, nil)
	if err != nil {
		t.Fatalf("ReadImage: %v", err)
	}

	defaultNode := loaded.Templates[0].Slots[0].Default
	rhsNode := loaded.Rules[0].RHS
	if defaultNode != rhsNode {
		t.Fatalf("expected shared expression node to deduplicate across template default and rule RHS")
	}
	if defaultNode.Kind != expr.KindConstant || defaultNode.Constant.Kind != atomtab.KindInteger {
		t.Fatalf("unexpected deduplicated node: %+v", defaultNode)
	}
	if n, _ := defaultNode.Constant.IntegerValue(); n != 42 {
		t.Fatalf("expected constant 42, got %d", n)
	}
}

func TestCorruptFooterIsRejected(t *testing.T) {
	_, img := setupImage(t)
	cfg := config.DefaultConfig().BinaryFormat

	var buf bytes.Buffer
	if err := WriteImage(&buf, cfg, img); err != nil {
		t.Fatalf("WriteImage: %v", err)
	}
	corrupted := buf.Bytes()[:buf.Len()-4]

	loadInterner := atomtab.New(config.DefaultConfig().AtomTable)
	funcs := map[string]*expr.FuncDef{">": {Name: ">", MinArgs: 2, MaxArgs: 2}}
	if _, err := ReadImage(bytes.NewReader(corrupted), cfg, loadInterner, funcs); err == nil {
		t.Fatal("expected ReadImage to reject a truncated image")
	}
}
