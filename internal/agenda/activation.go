// Package agenda implements the conflict set and execution cycle:
// activations produced by terminal nodes in the match network, ordered
// by salience and a configurable conflict-resolution strategy, and the
// run(n) loop that fires them.
package agenda

import "rulecore/internal/network"

// Activation is one matched rule instantiation sitting on the agenda.
type Activation struct {
	Rule     string
	Module   string
	Token    *network.Token
	Salience int

	// Specificity is the rule's LHS pattern count, consulted by the
	// simplicity/complexity strategies.
	Specificity int

	// Timetag is the agenda-assigned insertion sequence number —
	// monotonically increasing, used directly by breadth/depth and as
	// the final tie-break for simplicity/complexity.
	Timetag uint64

	// RandomKey is assigned once at insertion and is stable across the
	// activation's lifetime, persisted through bsave so a random
	// ordering survives a save/load round-trip (open question, resolved
	// in favor of determinism-after-reload).
	RandomKey uint64
}

// factTimetags returns the fact indices of the activation's token in
// assertion order, the timetags of facts in the instantiation that
// lex/mea compare against.
func (a *Activation) factTimetags() []uint64 {
	tags := make([]uint64, len(a.Token.Facts))
	for i, f := range a.Token.Facts {
		tags[i] = f.FactIndex()
	}
	return tags
}
