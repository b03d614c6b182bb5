// Package query implements read-only query operators over the fact
// store: find-first and for-each-matching scans over a template's facts
// with per-slot literal/variable/wildcard patterns. Results are
// expressed as github.com/google/mangle/ast terms so a query binding is
// consumable the same way any mangle query result is.
package query

import (
	"fmt"
	"math"

	"github.com/google/mangle/ast"

	"rulecore/internal/atomtab"
	"rulecore/internal/value"
)

// AtomToTerm converts an interned atom to its mangle representation.
// Symbols and instance names become ast.Name atoms, treating any
// identifier-like string as a name rather than a string constant;
// plain strings, integers, floats, and bitmaps map onto the
// corresponding mangle constant kinds.
func AtomToTerm(a *atomtab.Atom) (ast.BaseTerm, error) {
	if a == nil {
		return ast.String(""), nil
	}
	switch a.Kind {
	case atomtab.KindSymbol:
		name, err := ast.Name("/" + a.SymbolText())
		if err != nil {
			return ast.String(a.SymbolText()), nil
		}
		return name, nil
	case atomtab.KindInstanceName:
		name, err := ast.Name("/" + a.SymbolText())
		if err != nil {
			return ast.String(a.SymbolText()), nil
		}
		return name, nil
	case atomtab.KindString:
		return ast.String(a.SymbolText()), nil
	case atomtab.KindInteger:
		n, _ := a.IntegerValue()
		return ast.Number(n), nil
	case atomtab.KindFloat:
		return ast.Float64(a.FloatValue()), nil
	case atomtab.KindBitmap:
		return ast.String(fmt.Sprintf("%x", a.BitmapBytes())), nil
	case atomtab.KindExternalAddress:
		ptr, tag := a.ExternalAddress()
		return ast.String(fmt.Sprintf("0x%x:%d", ptr, tag)), nil
	default:
		return ast.String(a.Kind.String()), nil
	}
}

// ValueToTerm converts a slot Value. Multifields become an ast.List of
// their elements' terms; fact/instance-valued slots have no mangle
// representation and are reported by index rather than dereferenced.
func ValueToTerm(v value.Value) (ast.BaseTerm, error) {
	switch v.Tag() {
	case value.TagAtom:
		return AtomToTerm(v.Atom())
	case value.TagMultifield:
		elems := v.MultifieldValue().Elements()
		constants := make([]ast.Constant, 0, len(elems))
		for _, a := range elems {
			term, err := AtomToTerm(a)
			if err != nil {
				return nil, err
			}
			c, ok := term.(ast.Constant)
			if !ok {
				return nil, fmt.Errorf("query: multifield element %v did not convert to a constant", a)
			}
			constants = append(constants, c)
		}
		return ast.List(constants), nil
	case value.TagFact:
		return ast.Number(int64(v.Fact().FactIndex())), nil
	case value.TagInstance:
		name, err := ast.Name("/" + v.Instance().InstanceName().SymbolText())
		if err != nil {
			return ast.String(v.Instance().InstanceName().SymbolText()), nil
		}
		return name, nil
	default:
		return ast.String(""), nil
	}
}

// TermToValue is the inverse of AtomToTerm for the constant kinds query
// patterns accept as literals, re-interning the result.
func TermToValue(interner *atomtab.Interner, term ast.BaseTerm) (value.Value, error) {
	c, ok := term.(ast.Constant)
	if !ok {
		return value.Value{}, fmt.Errorf("query: term %v is not a constant", term)
	}
	switch c.Type {
	case ast.StringType:
		return value.FromAtom(interner.InternSymbol(atomtab.KindString, c.Symbol)), nil
	case ast.NameType:
		text := c.Symbol
		if len(text) > 0 && text[0] == '/' {
			text = text[1:]
		}
		return value.FromAtom(interner.InternSymbol(atomtab.KindSymbol, text)), nil
	case ast.NumberType:
		return value.FromAtom(interner.InternInteger(c.NumValue, 0)), nil
	case ast.Float64Type:
		return value.FromAtom(interner.InternFloat(math.Float64frombits(uint64(c.NumValue)))), nil
	default:
		return value.FromAtom(interner.InternSymbol(atomtab.KindString, c.String())), nil
	}
}
