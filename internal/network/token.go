// Package network implements the incremental RETE-style match network:
// alpha nodes/memories, beta memories/tokens, and join nodes (including
// negated and test-only joins) that together maintain, across asserts
// and retracts, the set of currently matched rule instantiations.
package network

import "rulecore/internal/fact"

// Token is an ordered tuple of facts, one per pattern matched so far on a
// rule's left-hand side. Tokens are produced by joins and consumed by the
// next join or by a terminal node.
type Token struct {
	Facts []*fact.Fact
}

// Extend returns a new token with f appended, leaving t unmodified —
// tokens are treated as immutable once propagated, since multiple
// downstream joins may hold the same token.
func (t *Token) Extend(f *fact.Fact) *Token {
	facts := make([]*fact.Fact, len(t.Facts)+1)
	copy(facts, t.Facts)
	facts[len(t.Facts)] = f
	return &Token{Facts: facts}
}

// emptyToken is the single virtual left token an initial join matches
// against: the empty tuple.
var emptyToken = &Token{}
