package network

import "rulecore/internal/fact"

// AlphaTest is one single-pattern test in an alpha chain: constant
// equality, a type predicate, or intra-pattern variable consistency. It
// must be a pure, side-effect-free function of the candidate fact.
type AlphaTest func(f *fact.Fact) bool

// alphaJoin is the subset of JoinNode a memory needs to fan events out
// to, kept narrow so alpha.go does not need to know about beta-side
// concerns.
type alphaJoin interface {
	RightActivate(f *fact.Fact)
	RightRetract(f *fact.Fact)
}

// AlphaMemory holds every fact that has passed its alpha chain's tests.
type AlphaMemory struct {
	facts   []*fact.Fact
	joins   []alphaJoin
	present map[*fact.Fact]bool
}

// NewAlphaMemory constructs an empty alpha memory.
func NewAlphaMemory() *AlphaMemory {
	return &AlphaMemory{present: make(map[*fact.Fact]bool)}
}

// AddJoin registers a downstream join that consults this memory as its
// right side.
func (m *AlphaMemory) AddJoin(j alphaJoin) { m.joins = append(m.joins, j) }

// Insert adds f to the memory and notifies every downstream join's
// RightActivate, depth-first: all consequences of one event are fully
// resolved before the next external event.
func (m *AlphaMemory) Insert(f *fact.Fact) {
	if m.present[f] {
		return
	}
	m.present[f] = true
	m.facts = append(m.facts, f)
	for _, j := range m.joins {
		j.RightActivate(f)
	}
}

// Remove removes f from the memory and notifies every downstream join's
// RightRetract.
func (m *AlphaMemory) Remove(f *fact.Fact) {
	if !m.present[f] {
		return
	}
	delete(m.present, f)
	m.facts = removeFactPtr(m.facts, f)
	for _, j := range m.joins {
		j.RightRetract(f)
	}
}

// Iterate visits every fact currently in the memory.
func (m *AlphaMemory) Iterate(visit func(*fact.Fact)) {
	for _, f := range m.facts {
		visit(f)
	}
}

func removeFactPtr(list []*fact.Fact, f *fact.Fact) []*fact.Fact {
	for i, c := range list {
		if c == f {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// AlphaChain is a single template pattern's chain of single-pattern
// tests, terminating in an AlphaMemory. On assert, a fact walks the
// chain from its template's root; on retract it is removed from the
// memory.
type AlphaChain struct {
	Tests  []AlphaTest
	Memory *AlphaMemory
}

// NewAlphaChain builds a chain over tests, allocating a fresh unhashed
// memory at the bottom.
func NewAlphaChain(tests ...AlphaTest) *AlphaChain {
	return &AlphaChain{Tests: tests, Memory: NewAlphaMemory()}
}

// OnAssert implements fact.Listener's half that matters to one
// template's chain: runs the candidate through every test and, on a full
// pass, inserts it into the memory.
func (c *AlphaChain) OnAssert(f *fact.Fact) {
	for _, t := range c.Tests {
		if !t(f) {
			return
		}
	}
	c.Memory.Insert(f)
}

// OnRetract removes f from the memory unconditionally; Remove is a no-op
// if f was never present (e.g. it failed a test on assert).
func (c *AlphaChain) OnRetract(f *fact.Fact) {
	c.Memory.Remove(f)
}
