package network

import (
	"rulecore/internal/fact"
	"rulecore/internal/logging"
)

var joinLog = logging.Get(logging.CategoryNetwork)

// downstreamJoin is what a BetaMemory fans events out to: the next join
// node, or a Terminal.
type downstreamJoin interface {
	LeftActivate(t *Token)
	LeftRetract(t *Token)
}

// BetaMemory is a vector of tokens; tokens are fixed-size arrays of
// fact handles.
type BetaMemory struct {
	tokens     []*Token
	downstream []downstreamJoin
}

// NewBetaMemory constructs an empty beta memory.
func NewBetaMemory() *BetaMemory { return &BetaMemory{} }

// AddDownstream registers a join or terminal fed by this memory.
func (b *BetaMemory) AddDownstream(d downstreamJoin) { b.downstream = append(b.downstream, d) }

// Tokens returns the current token set. Callers must not mutate it.
func (b *BetaMemory) Tokens() []*Token { return b.tokens }

// Add appends t and notifies every downstream node's LeftActivate,
// depth-first before returning.
func (b *BetaMemory) Add(t *Token) {
	b.tokens = append(b.tokens, t)
	for _, d := range b.downstream {
		d.LeftActivate(t)
	}
}

// RemoveMatching removes every token satisfying pred and notifies
// downstream LeftRetract for each, in removal order.
func (b *BetaMemory) RemoveMatching(pred func(*Token) bool) {
	kept := b.tokens[:0:0]
	for _, t := range b.tokens {
		if pred(t) {
			for _, d := range b.downstream {
				d.LeftRetract(t)
			}
		} else {
			kept = append(kept, t)
		}
	}
	b.tokens = kept
}

// JoinTestFunc evaluates a join's pre-compiled test expression against a
// left token and a candidate right fact. right is nil for a test-only
// node's evaluation, which consults only the left token. A non-nil error
// is treated as a false result for that pair; the engine-level caller
// is responsible for deciding how often to surface it to the error
// router.
type JoinTestFunc func(left *Token, right *fact.Fact) (bool, error)

// JoinNode implements the beta-side join contract. Left == nil means
// this is the initial join, matched against the single virtual empty
// token. Right == nil means this is a test-only node.
type JoinNode struct {
	Left    *BetaMemory
	Right   *AlphaMemory
	Test    JoinTestFunc
	Negated bool
	Out     *BetaMemory

	matchSet map[*Token][]*fact.Fact // negated joins only: right facts currently matching each left token

	OnTestError func(err error)
}

// NewJoinNode wires a join node into the network: if Left is non-nil it
// is registered as this join's upstream; if Right is non-nil it is
// registered as this join's alpha-side source.
func NewJoinNode(left *BetaMemory, right *AlphaMemory, test JoinTestFunc, negated bool, out *BetaMemory) *JoinNode {
	j := &JoinNode{Left: left, Right: right, Test: test, Negated: negated, Out: out}
	if negated {
		j.matchSet = make(map[*Token][]*fact.Fact)
	}
	if left != nil {
		left.AddDownstream(j)
	}
	if right != nil {
		right.AddJoin(j)
	}
	return j
}

func (j *JoinNode) leftTokens() []*Token {
	if j.Left == nil {
		return []*Token{emptyToken}
	}
	return j.Left.Tokens()
}

func (j *JoinNode) evalTest(left *Token, right *fact.Fact) bool {
	if j.Test == nil {
		return true
	}
	ok, err := j.Test(left, right)
	if err != nil {
		if j.OnTestError != nil {
			j.OnTestError(err)
		} else {
			joinLog.Warn("join test error treated as false: %v", err)
		}
		return false
	}
	return ok
}

// RightActivate implements the alphaJoin interface: a fact entered this
// join's right-side alpha memory.
func (j *JoinNode) RightActivate(f *fact.Fact) {
	for _, left := range j.leftTokens() {
		ok := j.evalTest(left, f)
		if j.Negated {
			set := j.matchSet[left]
			wasEmpty := len(set) == 0
			if ok {
				j.matchSet[left] = append(set, f)
				if wasEmpty {
					j.Out.RemoveMatching(func(t *Token) bool { return t == left })
				}
			}
			continue
		}
		if ok {
			j.Out.Add(left.Extend(f))
		}
	}
}

// RightRetract implements the alphaJoin interface.
func (j *JoinNode) RightRetract(f *fact.Fact) {
	if j.Negated {
		for left, set := range j.matchSet {
			idx := indexOfFact(set, f)
			if idx < 0 {
				continue
			}
			newSet := append(set[:idx:idx], set[idx+1:]...)
			j.matchSet[left] = newSet
			if len(newSet) == 0 {
				j.Out.Add(left)
			}
		}
		return
	}
	j.Out.RemoveMatching(func(t *Token) bool {
		return len(t.Facts) > 0 && t.Facts[len(t.Facts)-1] == f
	})
}

// LeftActivate implements downstreamJoin: a new left token appeared
// upstream.
func (j *JoinNode) LeftActivate(left *Token) {
	if j.Right == nil {
		if j.evalTest(left, nil) {
			j.Out.Add(left)
		}
		return
	}
	if j.Negated {
		var matches []*fact.Fact
		j.Right.Iterate(func(f *fact.Fact) {
			if j.evalTest(left, f) {
				matches = append(matches, f)
			}
		})
		j.matchSet[left] = matches
		if len(matches) == 0 {
			j.Out.Add(left)
		}
		return
	}
	j.Right.Iterate(func(f *fact.Fact) {
		if j.evalTest(left, f) {
			j.Out.Add(left.Extend(f))
		}
	})
}

// LeftRetract implements downstreamJoin.
func (j *JoinNode) LeftRetract(left *Token) {
	if j.Right == nil {
		j.Out.RemoveMatching(func(t *Token) bool { return t == left })
		return
	}
	if j.Negated {
		delete(j.matchSet, left)
		j.Out.RemoveMatching(func(t *Token) bool { return t == left })
		return
	}
	prefixLen := len(left.Facts)
	j.Out.RemoveMatching(func(t *Token) bool {
		return len(t.Facts) > prefixLen && samePrefix(t.Facts, left.Facts)
	})
}

func indexOfFact(set []*fact.Fact, f *fact.Fact) int {
	for i, c := range set {
		if c == f {
			return i
		}
	}
	return -1
}

func samePrefix(longer, prefix []*fact.Fact) bool {
	for i, f := range prefix {
		if longer[i] != f {
			return false
		}
	}
	return true
}

// Terminal is the end of a rule's beta chain: each token that reaches it
// is a complete match, producing an agenda entry.
type Terminal struct {
	RuleName     string
	OnActivate   func(t *Token)
	OnDeactivate func(t *Token)
}

// NewTerminal registers a terminal as in's downstream.
func NewTerminal(ruleName string, in *BetaMemory) *Terminal {
	t := &Terminal{RuleName: ruleName}
	in.AddDownstream(t)
	return t
}

func (t *Terminal) LeftActivate(tok *Token) {
	if t.OnActivate != nil {
		t.OnActivate(tok)
	}
}

func (t *Terminal) LeftRetract(tok *Token) {
	if t.OnDeactivate != nil {
		t.OnDeactivate(tok)
	}
}
