// Package fact implements the fact store and template schema: named
// slot-structured records indexed by monotonically increasing fact
// indices, with assert/retract algorithms that feed the match network.
package fact

import (
	"rulecore/internal/atomtab"
	"rulecore/internal/expr"
	"rulecore/internal/value"
)

// Constraint checks one slot's candidate value against its declared
// type, allowed-value set, and numeric range.
type Constraint struct {
	TypeMask      expr.TypeMask
	AllowedValues []*atomtab.Atom // empty means unconstrained
	HasRange      bool
	Min, Max      float64
}

// Check reports a descriptive violation, or "" if v satisfies c.
func (c Constraint) Check(v value.Value) string {
	if c.TypeMask != 0 && !v.IsMultifield() {
		if mask := valueTypeMaskOf(v); mask&c.TypeMask == 0 {
			return "type mismatch"
		}
	}
	if len(c.AllowedValues) > 0 && v.IsAtom() {
		ok := false
		for _, a := range c.AllowedValues {
			if a == v.Atom() {
				ok = true
				break
			}
		}
		if !ok {
			return "value not in allowed set"
		}
	}
	if c.HasRange && v.IsAtom() {
		var n float64
		switch v.Atom().Kind {
		case atomtab.KindInteger:
			iv, _ := v.Atom().IntegerValue()
			n = float64(iv)
		case atomtab.KindFloat:
			n = v.Atom().FloatValue()
		default:
			return ""
		}
		if n < c.Min || n > c.Max {
			return "value out of range"
		}
	}
	return ""
}

func valueTypeMaskOf(v value.Value) expr.TypeMask {
	if v.IsMultifield() {
		return expr.TypeMultifield
	}
	if v.IsFact() {
		return expr.TypeFact
	}
	if v.IsInstance() {
		return expr.TypeInstance
	}
	if !v.IsAtom() || v.Atom() == nil {
		return expr.TypeVoid
	}
	switch v.Atom().Kind {
	case atomtab.KindSymbol:
		return expr.TypeSymbol
	case atomtab.KindString:
		return expr.TypeString
	case atomtab.KindInstanceName:
		return expr.TypeInstanceName
	case atomtab.KindFloat:
		return expr.TypeFloat
	case atomtab.KindInteger:
		return expr.TypeInteger
	case atomtab.KindExternalAddress:
		return expr.TypeExternalAddress
	default:
		return expr.TypeVoid
	}
}

// SlotDescriptor names one field of a template.
type SlotDescriptor struct {
	Name        string
	IsMultislot bool
	Default     *expr.Node // evaluated once per assert when the slot is absent from the construction expression
	Constraint  Constraint
}

// Template is a named schema: an ordered list of slot descriptors. An
// implied template has exactly one anonymous multislot.
type Template struct {
	Name    string
	Module  string
	Implied bool
	Slots   []SlotDescriptor

	slotIndex map[string]int
}

// NewTemplate builds a template and its name→index lookup.
func NewTemplate(name, module string, slots []SlotDescriptor) *Template {
	t := &Template{Name: name, Module: module, Slots: slots, slotIndex: make(map[string]int, len(slots))}
	for i, s := range slots {
		t.slotIndex[s.Name] = i
	}
	return t
}

// NewImpliedTemplate builds the single-anonymous-multislot template used
// for facts asserted without a prior deftemplate.
func NewImpliedTemplate(name, module string) *Template {
	return NewTemplate(name, module, []SlotDescriptor{{Name: "implied", IsMultislot: true}})
}

// SlotCount returns the number of slots (always 1 for implied templates).
func (t *Template) SlotCount() int { return len(t.Slots) }

// IndexOf returns the 0-based slot index for name.
func (t *Template) IndexOf(name string) (int, bool) {
	i, ok := t.slotIndex[name]
	return i, ok
}
