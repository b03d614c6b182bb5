// Package expr implements the expression tree and its evaluator: the
// engine's single dynamically-typed execution path for rule
// right-hand-side actions, join test expressions, and function bodies.
// Trees are immutable once built and may be shared by reference across
// rules, a hashed-expressions sharing contract even though this
// package does not itself perform the hash-consing (internal/bsave
// does, at serialization time).
package expr

import "rulecore/internal/atomtab"

// Kind identifies an expression node's evaluation rule.
type Kind int

const (
	KindConstant Kind = iota
	KindFuncCall
	KindLocalVar
	KindFactSetVar
	KindSlotAccess
	KindGlobalRef
	KindIf
	KindWhile
	KindProgn
	KindBind
	KindReturn
	KindBreak
)

// Node is one expression tree node. Fields are populated according to
// Kind; see the evaluator in eval.go for the exact contract per kind.
type Node struct {
	Kind Kind

	// KindConstant
	Constant *atomtab.Atom

	// KindFuncCall
	FuncName string
	Args     []*Node

	// KindLocalVar: index into the current activation frame's local array.
	LocalSlot int

	// KindFactSetVar: index into the active fact-set array (§4.5 join
	// binding view).
	FactSetSlot int

	// KindSlotAccess: v:s — Var resolves to a fact/instance value
	// (itself a KindLocalVar or KindFactSetVar node), Slot names the
	// field.
	Var  *Node
	Slot string

	// KindGlobalRef
	GlobalName string

	// KindIf: Args[0]=condition, Then, Else (Else may be nil)
	Then *Node
	Else *Node

	// KindWhile: Args[0]=condition, Body=loop body
	Body *Node

	// KindBind: BindTarget names the local slot being assigned,
	// Args[0] is the value expression.
	BindTarget int

	// KindReturn: Args[0] is the optional return-value expression (nil
	// for a bare return).
}

// NewConstant builds a constant node wrapping an interned atom.
func NewConstant(a *atomtab.Atom) *Node { return &Node{Kind: KindConstant, Constant: a} }

// NewFuncCall builds a function-call node.
func NewFuncCall(name string, args ...*Node) *Node {
	return &Node{Kind: KindFuncCall, FuncName: name, Args: args}
}

// NewLocalVar builds a local-variable reference.
func NewLocalVar(slot int) *Node { return &Node{Kind: KindLocalVar, LocalSlot: slot} }

// NewFactSetVar builds a fact-set variable reference.
func NewFactSetVar(slot int) *Node { return &Node{Kind: KindFactSetVar, FactSetSlot: slot} }

// NewSlotAccess builds a v:s slot-access node.
func NewSlotAccess(v *Node, slot string) *Node {
	return &Node{Kind: KindSlotAccess, Var: v, Slot: slot}
}

// NewGlobalRef builds a global-variable reference.
func NewGlobalRef(name string) *Node { return &Node{Kind: KindGlobalRef, GlobalName: name} }

// NewIf builds an if/then/else special form. els may be nil.
func NewIf(cond, then, els *Node) *Node {
	return &Node{Kind: KindIf, Args: []*Node{cond}, Then: then, Else: els}
}

// NewWhile builds a while special form.
func NewWhile(cond, body *Node) *Node {
	return &Node{Kind: KindWhile, Args: []*Node{cond}, Body: body}
}

// NewProgn builds a progn special form over a sequence of expressions.
func NewProgn(exprs ...*Node) *Node { return &Node{Kind: KindProgn, Args: exprs} }

// NewBind builds a bind special form assigning to a local slot.
func NewBind(slot int, value *Node) *Node {
	return &Node{Kind: KindBind, BindTarget: slot, Args: []*Node{value}}
}

// NewReturn builds a return special form. value may be nil for a bare
// return.
func NewReturn(value *Node) *Node {
	if value == nil {
		return &Node{Kind: KindReturn}
	}
	return &Node{Kind: KindReturn, Args: []*Node{value}}
}

// NewBreak builds a break special form.
func NewBreak() *Node { return &Node{Kind: KindBreak} }
