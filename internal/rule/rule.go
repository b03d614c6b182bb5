// Package rule holds the compiled representation of a defined rule: its
// name, module, salience, the match-network wiring for its left-hand
// side, and the right-hand-side action expression evaluated on firing.
// It is the join point between internal/network (which only knows about
// tokens and terminals) and internal/agenda (which only knows about
// activations): a rule is a named pattern conjunction plus salience
// plus an action expression evaluated against the matching token's
// fact-set.
package rule

import (
	"rulecore/internal/expr"
	"rulecore/internal/network"
)

// Rule is one defined production. Patterns is kept only for introspection
// (list-defrules, bsave) — the live matching behavior lives entirely in
// the Terminal wired to the match network by Compile.
type Rule struct {
	Name     string
	Module   string
	Salience int
	Patterns []string // debug representation of each compiled Pattern, introspection/bsave only
	RHS      *expr.Node
	Terminal *network.Terminal
	Watched  bool

	net    *network.Network
	chains []registeredChain
}

type registeredChain struct {
	template string
	chain    *network.AlphaChain
}

// Specificity is the pattern count used by the simplicity/complexity
// agenda strategies.
func (r *Rule) Specificity() int { return len(r.Patterns) }

// Undefine detaches every alpha chain this rule registered. It does not
// retract activations already on the agenda; the caller (engine.go) is
// responsible for that.
func (r *Rule) Undefine() {
	for _, rc := range r.chains {
		r.net.UnregisterChain(rc.template, rc.chain)
	}
}
