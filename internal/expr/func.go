package expr

import (
	"rulecore/internal/atomtab"
	"rulecore/internal/value"
)

// FuncDef is a function definition: an interned name bound to a Go
// callback plus its arity and type-mask contract (name, impl, minArgs,
// maxArgs, returnTypeMask, argTypeMasks).
type FuncDef struct {
	Name           string
	Impl           func(ctx *Context, args []value.Value) value.Value
	MinArgs        int
	MaxArgs        int // -1 means unbounded
	ReturnTypeMask TypeMask
	ArgTypeMasks   []TypeMask // checked positionally; the last mask repeats for variadic tails
}

// argMask returns the expected type mask for argument index i (0-based),
// repeating the final declared mask for variadic calls.
func (f *FuncDef) argMask(i int) TypeMask {
	if len(f.ArgTypeMasks) == 0 {
		return TypeAny
	}
	if i < len(f.ArgTypeMasks) {
		return f.ArgTypeMasks[i]
	}
	return f.ArgTypeMasks[len(f.ArgTypeMasks)-1]
}

func valueTypeMask(v value.Value) TypeMask {
	switch v.Tag() {
	case value.TagMultifield:
		return TypeMultifield
	case value.TagFact:
		return TypeFact
	case value.TagInstance:
		return TypeInstance
	case value.TagAtom:
		// fallthrough to kind-based classification below
	}
	switch v.Kind() {
	case atomtab.KindSymbol:
		return TypeSymbol
	case atomtab.KindString:
		return TypeString
	case atomtab.KindInstanceName:
		return TypeInstanceName
	case atomtab.KindFloat:
		return TypeFloat
	case atomtab.KindInteger:
		return TypeInteger
	case atomtab.KindExternalAddress:
		return TypeExternalAddress
	default:
		return TypeVoid
	}
}
