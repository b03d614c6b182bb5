package query

import (
	"fmt"

	"github.com/google/mangle/ast"

	"rulecore/internal/fact"
	"rulecore/internal/logging"
	"rulecore/internal/value"
)

var log = logging.Get(logging.CategoryQuery)

// SlotPattern constrains one slot of a query. At most one of Literal or
// Var should be set: Literal requires an exact match, Var binds the
// slot's value under that name in the result, and a zero SlotPattern is
// a wildcard that matches and binds nothing.
type SlotPattern struct {
	Var     string
	Literal *value.Value
}

// Query names a template and a per-slot pattern, mirroring CLIPS's
// find-fact/do-for-all-facts restriction-expression shape: one
// positional pattern per slot, evaluated left to right.
type Query struct {
	Template string
	Slots    []SlotPattern
}

// Match is one fact satisfying a Query, with its bound variables
// converted to mangle terms for external consumption.
type Match struct {
	Fact     *fact.Fact
	Bindings map[string]ast.BaseTerm
}

func matchSlots(f *fact.Fact, slots []SlotPattern) (map[string]ast.BaseTerm, bool) {
	bindings := make(map[string]ast.BaseTerm)
	for i, pat := range slots {
		v, ok := f.SlotValueByIndex(i)
		if !ok {
			return nil, false
		}
		if pat.Literal != nil && !v.Equal(*pat.Literal) {
			return nil, false
		}
		if pat.Var != "" {
			term, err := ValueToTerm(v)
			if err != nil {
				log.Warn("query: slot %d of fact %d did not convert to a term: %v", i, f.Index, err)
				return nil, false
			}
			bindings[pat.Var] = term
		}
	}
	return bindings, true
}

// FindFact returns the first currently-asserted fact of q.Template
// satisfying q.Slots in assertion order, matching CLIPS's find-fact
// first-match contract.
func FindFact(store *fact.Store, q Query) (*Match, bool) {
	var found *Match
	store.IterateGlobal(func(f *fact.Fact) bool {
		if f.Garbage() || f.Template.Name != q.Template {
			return true
		}
		bindings, ok := matchSlots(f, q.Slots)
		if !ok {
			return true
		}
		found = &Match{Fact: f, Bindings: bindings}
		return false
	})
	return found, found != nil
}

// DoForAllFacts visits every currently-asserted fact of q.Template
// satisfying q.Slots, in assertion order, stopping early if visit
// returns false — CLIPS's do-for-all-facts.
func DoForAllFacts(store *fact.Store, q Query, visit func(Match) bool) {
	store.IterateGlobal(func(f *fact.Fact) bool {
		if f.Garbage() || f.Template.Name != q.Template {
			return true
		}
		bindings, ok := matchSlots(f, q.Slots)
		if !ok {
			return true
		}
		return visit(Match{Fact: f, Bindings: bindings})
	})
}

// CountMatching returns the number of currently-asserted facts of
// q.Template satisfying q.Slots.
func CountMatching(store *fact.Store, q Query) int {
	n := 0
	DoForAllFacts(store, q, func(Match) bool {
		n++
		return true
	})
	return n
}

// FactToAtom converts a whole fact to a mangle ast.Atom, predicate-named
// after its template, for use as the canonical external representation
// (query results, the bsave-adjacent external interface, and the
// Property-4 match-equivalence oracle's from-scratch fact store).
func FactToAtom(f *fact.Fact) (ast.Atom, error) {
	args := make([]ast.BaseTerm, len(f.Slots))
	for i, v := range f.Slots {
		term, err := ValueToTerm(v)
		if err != nil {
			return ast.Atom{}, fmt.Errorf("query: fact %d slot %d: %w", f.Index, i, err)
		}
		args[i] = term
	}
	sym := ast.PredicateSym{Symbol: f.Template.Name, Arity: len(args)}
	return ast.Atom{Predicate: sym, Args: args}, nil
}
