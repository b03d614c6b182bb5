package rule

import (
	"fmt"

	"rulecore/internal/expr"
	"rulecore/internal/fact"
	"rulecore/internal/logging"
	"rulecore/internal/network"
	"rulecore/internal/value"
)

var compileLog = logging.Get(logging.CategoryEngine)

// SlotTest constrains or binds one named slot of a Pattern. At most one
// of Literal or Bind should be set: Literal requires the slot to equal
// that value (checked at the alpha side if no earlier pattern bound the
// same variable, or folded into the join test otherwise); Bind names a
// variable, which is a plain wildcard binding on its first occurrence
// and an equality constraint against the earlier occurrence on a repeat
// within one pattern (intra-pattern, alpha-side) or across patterns
// (cross-pattern, beta-side).
type SlotTest struct {
	Slot    string
	Literal *value.Value
	Bind    string
}

// Pattern is one conjunct of a rule's left-hand side: a template pattern
// with per-slot tests, optionally negated, plus an optional additional
// test expression (CLIPS's `&:` / `(test ...)`) written against this
// pattern's own bound variables using expr.KindFactSetVar nodes indexed
// into Slots in declaration order (0 is this pattern's first SlotTest,
// and so on) — the external parser that produces an LHS is responsible
// for resolving variable names to these indices.
//
// A Pattern with an empty Template is a standalone test-only conjunct,
// a "no right input" join: Slots must be empty and Test is evaluated
// against the accumulated left token alone.
type Pattern struct {
	Template string
	Slots    []SlotTest
	Negated  bool
	Test     *expr.Node
}

// LHS is a rule's complete left-hand side: an ordered conjunction of
// Patterns compiled into a join chain in declaration order.
type LHS struct {
	Patterns []Pattern
}

type boundVar struct {
	patternIndex int
	slot         string
}

// Compile builds a Pattern's alpha chain: literal-equality tests for
// every SlotTest.Literal, and intra-pattern consistency tests for any
// Bind name that repeats within the same pattern.
func compileAlphaChain(p Pattern) *network.AlphaChain {
	var tests []network.AlphaTest
	seen := make(map[string]string) // bind name -> first slot seen at

	for _, st := range p.Slots {
		slot := st.Slot
		if st.Literal != nil {
			lit := *st.Literal
			tests = append(tests, func(f *fact.Fact) bool {
				v, ok := f.SlotValue(slot)
				return ok && v.Equal(lit)
			})
		}
		if st.Bind != "" {
			if firstSlot, ok := seen[st.Bind]; ok {
				a, b := firstSlot, slot
				tests = append(tests, func(f *fact.Fact) bool {
					va, ok1 := f.SlotValue(a)
					vb, ok2 := f.SlotValue(b)
					return ok1 && ok2 && va.Equal(vb)
				})
			} else {
				seen[st.Bind] = slot
			}
		}
	}
	return network.NewAlphaChain(tests...)
}

// compileJoinTest builds the cross-pattern portion of a join's test: for
// every Bind name in p that was already bound by an earlier pattern, the
// candidate right fact's slot must equal the earlier pattern's bound
// fact's slot: each bound variable resolves to a (pattern-index,
// slot-index) pair checkable against the left token and the candidate
// right fact. Any explicit p.Test is ANDed in afterward, evaluated with
// ctx.FactSetVars
// set to the left token's facts followed by the candidate right fact
// (nil for a test-only Pattern).
func compileJoinTest(ctx *expr.Context, p Pattern, bindings map[string]boundVar) network.JoinTestFunc {
	type crossCheck struct {
		leftPatternIndex int
		leftSlot         string
		rightSlot        string
	}
	var checks []crossCheck
	for _, st := range p.Slots {
		if st.Bind == "" {
			continue
		}
		if bv, ok := bindings[st.Bind]; ok {
			checks = append(checks, crossCheck{bv.patternIndex, bv.slot, st.Slot})
		}
	}

	return func(left *network.Token, right *fact.Fact) (bool, error) {
		for _, ch := range checks {
			if ch.leftPatternIndex >= len(left.Facts) {
				return false, fmt.Errorf("rule: join test referenced pattern %d beyond left token length %d", ch.leftPatternIndex, len(left.Facts))
			}
			lv, ok1 := left.Facts[ch.leftPatternIndex].SlotValue(ch.leftSlot)
			var rv value.Value
			var ok2 bool
			if right != nil {
				rv, ok2 = right.SlotValue(ch.rightSlot)
			}
			if !ok1 || !ok2 || !lv.Equal(rv) {
				return false, nil
			}
		}
		if p.Test == nil {
			return true, nil
		}
		facts := make([]value.Value, len(left.Facts), len(left.Facts)+1)
		for i, f := range left.Facts {
			facts[i] = value.FromFact(f)
		}
		if right != nil {
			facts = append(facts, value.FromFact(right))
		}
		ctx.FactSetVars = facts
		saved := ctx.SaveErrorState()
		ctx.ClearErrors()
		result := expr.Evaluate(ctx, p.Test)
		failed := ctx.EvaluationError
		kind := ctx.LastErrorKind()
		ctx.RestoreErrorState(saved)
		if failed {
			return false, fmt.Errorf("rule: join test evaluation failed (%s)", kind)
		}
		return truthyValue(result), nil
	}
}

func truthyValue(v value.Value) bool {
	return !(v.IsAtom() && v.Atom() != nil && v.Atom().SymbolText() == "FALSE")
}

// Compile wires lhs into net as a fresh chain of alpha chains and join
// nodes and returns the assembled Rule, its Terminal populated and ready
// to receive activation callbacks. templates resolves each Pattern's
// Template name to its fact.Template for registration; ctx is the
// evaluation context join-test expressions run against — the engine
// owns one long-lived Context reused across every rule's join tests.
func Compile(net *network.Network, templates map[string]*fact.Template, ctx *expr.Context, name, module string, salience int, lhs LHS, rhs *expr.Node) (*Rule, error) {
	if len(lhs.Patterns) == 0 {
		return nil, fmt.Errorf("rule %s: left-hand side must have at least one pattern", name)
	}

	bindings := make(map[string]boundVar)
	var out *network.BetaMemory
	patternSrc := make([]string, len(lhs.Patterns))
	var chains []registeredChain

	for i, p := range lhs.Patterns {
		patternSrc[i] = fmt.Sprintf("%+v", p)

		if p.Template == "" {
			// Test-only conjunct: no alpha side.
			test := compileJoinTest(ctx, p, bindings)
			newOut := network.NewBetaMemory()
			network.NewJoinNode(out, nil, test, false, newOut)
			out = newOut
			continue
		}

		tpl, ok := templates[p.Template]
		if !ok {
			return nil, fmt.Errorf("rule %s: pattern %d references undefined template %q", name, i, p.Template)
		}
		chain := compileAlphaChain(p)
		net.RegisterChain(tpl.Name, chain)
		chains = append(chains, registeredChain{template: tpl.Name, chain: chain})

		var left *network.BetaMemory
		if i > 0 {
			left = out
		}
		test := compileJoinTest(ctx, p, bindings)
		newOut := network.NewBetaMemory()
		network.NewJoinNode(left, chain.Memory, test, p.Negated, newOut)
		out = newOut

		if !p.Negated {
			for _, st := range p.Slots {
				if st.Bind != "" {
					if _, already := bindings[st.Bind]; !already {
						bindings[st.Bind] = boundVar{patternIndex: i, slot: st.Slot}
					}
				}
			}
		}
	}

	term := network.NewTerminal(name, out)
	compileLog.Debug("compiled rule %s (%d patterns)", name, len(lhs.Patterns))

	return &Rule{
		Name:     name,
		Module:   module,
		Salience: salience,
		Patterns: patternSrc,
		RHS:      rhs,
		Terminal: term,
		net:      net,
		chains:   chains,
	}, nil
}
