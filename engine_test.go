package rulecore

import (
	"bytes"
	"testing"

	"rulecore/internal/config"
	"rulecore/internal/expr"
	"rulecore/internal/fact"
	"rulecore/internal/rule"
)

func TestEngineAssertRetractFindByIndex(t *testing.T) {
	e := New(config.DefaultConfig())
	tpl, err := e.DefineTemplate("point", "MAIN", []fact.SlotDescriptor{{Name: "x"}, {Name: "y"}})
	if err != nil {
		t.Fatalf("DefineTemplate: %v", err)
	}

	given := map[string]*expr.Node{
		"x": expr.NewConstant(e.InternInteger(1)),
		"y": expr.NewConstant(e.InternInteger(2)),
	}
	f, err := e.Assert(tpl, given)
	if err != nil {
		t.Fatalf("Assert: %v", err)
	}

	got, ok := e.FindByIndex(f.Index)
	if !ok || got != f {
		t.Fatalf("FindByIndex did not return the asserted fact")
	}

	if err := e.Retract(f); err != nil {
		t.Fatalf("Retract: %v", err)
	}
	if _, ok := e.FindByIndex(f.Index); ok {
		t.Fatalf("expected retracted fact to be gone")
	}
}

func TestEngineDefineTemplateDuplicateFails(t *testing.T) {
	e := New(config.DefaultConfig())
	if _, err := e.DefineTemplate("point", "MAIN", nil); err != nil {
		t.Fatalf("first DefineTemplate: %v", err)
	}
	_, err := e.DefineTemplate("point", "MAIN", nil)
	if !IsKind(err, KindDuplicateConstructError) {
		t.Fatalf("expected KindDuplicateConstructError, got %v", err)
	}
}

// A rule firing halt() should stop Run after the in-progress firing
// completes, and ResetHalt should allow it to proceed again.
func TestEngineHaltStopsRun(t *testing.T) {
	e := New(config.DefaultConfig())
	tpl, _ := e.DefineTemplate("tick", "MAIN", []fact.SlotDescriptor{{Name: "n"}})

	lhs := rule.LHS{Patterns: []rule.Pattern{
		{Template: "tick", Slots: []rule.SlotTest{{Slot: "n", Bind: "?n"}}},
	}}
	rhs := expr.NewFuncCall("halt")
	if _, err := e.DefineRule("R1", "MAIN", 0, lhs, rhs); err != nil {
		t.Fatalf("DefineRule: %v", err)
	}

	e.Assert(tpl, map[string]*expr.Node{"n": expr.NewConstant(e.InternInteger(1))})
	e.Assert(tpl, map[string]*expr.Node{"n": expr.NewConstant(e.InternInteger(2))})

	fired := e.Run(-1)
	if fired != 1 {
		t.Fatalf("expected halt() to stop the run after exactly 1 firing, got %d", fired)
	}
	if e.Run(-1) != 0 {
		t.Fatalf("expected Run to refuse to fire while halted")
	}
	e.ResetHalt()
	if fired := e.Run(-1); fired != 1 {
		t.Fatalf("expected the remaining activation to fire after ResetHalt, got %d", fired)
	}
}

// A rule whose RHS calls assert to materialize a derived fact from a
// template that was never explicitly defined exercises both the
// implied-template path and chaining a second rule off the new fact.
func TestEngineAssertActionChainsRules(t *testing.T) {
	e := New(config.DefaultConfig())
	srcTpl, _ := e.DefineTemplate("source", "MAIN", []fact.SlotDescriptor{{Name: "n"}})
	derivedTpl, _ := e.DefineTemplate("doubled", "MAIN", []fact.SlotDescriptor{{Name: "n"}})

	// (defrule derive (source ?n) => (assert (doubled n (* ?n 2))))
	deriveLHS := rule.LHS{Patterns: []rule.Pattern{
		{Template: "source", Slots: []rule.SlotTest{{Slot: "n", Bind: "?n"}}},
	}}
	deriveRHS := expr.NewFuncCall("assert",
		expr.NewConstant(e.InternSymbol("doubled")),
		expr.NewConstant(e.InternSymbol("n")),
		expr.NewFuncCall("*", expr.NewSlotAccess(expr.NewFactSetVar(0), "n"), expr.NewConstant(e.InternInteger(2))),
	)
	if _, err := e.DefineRule("derive", "MAIN", 10, deriveLHS, deriveRHS); err != nil {
		t.Fatalf("DefineRule derive: %v", err)
	}

	var seen []int64
	consumeLHS := rule.LHS{Patterns: []rule.Pattern{
		{Template: "doubled", Slots: []rule.SlotTest{{Slot: "n", Bind: "?n"}}},
	}}
	if _, err := e.DefineRule("consume", "MAIN", 0, consumeLHS, nil); err != nil {
		t.Fatalf("DefineRule consume: %v", err)
	}

	e.Assert(srcTpl, map[string]*expr.Node{"n": expr.NewConstant(e.InternInteger(21))})
	e.Run(-1)

	found := false
	e.IterateFacts(func(f *fact.Fact) bool {
		if f.Template != derivedTpl {
			return true
		}
		v, _ := f.SlotValueByIndex(0)
		n, _ := v.Atom().IntegerValue()
		seen = append(seen, n)
		if n == 42 {
			found = true
		}
		return true
	})
	if !found {
		t.Fatalf("expected assert() RHS action to have materialized (doubled 42), saw %v", seen)
	}
}

// An RHS evaluator error (here a type mismatch in an arithmetic call)
// sets EvaluationError, aborts that firing, and leaves the fact set
// unchanged rather than panicking or aborting the run loop.
func TestEngineRHSEvaluationErrorDoesNotAbortRun(t *testing.T) {
	e := New(config.DefaultConfig())
	tpl, _ := e.DefineTemplate("item", "MAIN", []fact.SlotDescriptor{{Name: "n"}})

	lhs := rule.LHS{Patterns: []rule.Pattern{
		{Template: "item", Slots: []rule.SlotTest{{Slot: "n", Bind: "?n"}}},
	}}
	// (+ 1 "a") is a type error: arithmetic over a string argument.
	badRHS := expr.NewFuncCall("+", expr.NewConstant(e.InternInteger(1)), expr.NewConstant(e.InternString("a")))
	if _, err := e.DefineRule("bad", "MAIN", 0, lhs, badRHS); err != nil {
		t.Fatalf("DefineRule: %v", err)
	}

	e.Assert(tpl, map[string]*expr.Node{"n": expr.NewConstant(e.InternInteger(1))})

	fired := e.Run(-1)
	if fired != 1 {
		t.Fatalf("expected the single activation to still fire (and fail) once, got %d", fired)
	}
	if e.halted {
		t.Fatalf("an RHS evaluation error must not halt the engine")
	}

	count := 0
	e.IterateFacts(func(*fact.Fact) bool { count++; return true })
	if count != 1 {
		t.Fatalf("expected the fact set to be unchanged by the failed firing, got %d facts", count)
	}
}

func TestEngineBsaveBloadRoundTrip(t *testing.T) {
	e := New(config.DefaultConfig())
	tpl, _ := e.DefineTemplate("point", "MAIN", []fact.SlotDescriptor{{Name: "x"}, {Name: "y"}})
	e.Assert(tpl, map[string]*expr.Node{
		"x": expr.NewConstant(e.InternInteger(3)),
		"y": expr.NewConstant(e.InternInteger(4)),
	})

	var buf bytes.Buffer
	if err := e.Bsave(&buf); err != nil {
		t.Fatalf("Bsave: %v", err)
	}

	e2 := New(config.DefaultConfig())
	if err := e2.Bload(&buf, e2.Context().Funcs); err != nil {
		t.Fatalf("Bload: %v", err)
	}

	restoredTpl, ok := e2.FindTemplate("point")
	if !ok {
		t.Fatalf("expected template point to survive bsave/bload")
	}

	count := 0
	e2.IterateFacts(func(f *fact.Fact) bool {
		if f.Template != restoredTpl {
			return true
		}
		count++
		return true
	})
	if count != 1 {
		t.Fatalf("expected exactly 1 restored fact, got %d", count)
	}

	if err := e2.Bsave(&buf); err == nil {
		t.Fatalf("expected Bsave on the now-loaded engine to be refused")
	}
}
