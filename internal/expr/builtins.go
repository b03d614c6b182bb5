package expr

import (
	"math"

	"rulecore/internal/atomtab"
	"rulecore/internal/value"
)

// numeric unwraps an integer or float atom value into a float64 plus a
// flag recording whether the original was an integer, so arithmetic
// results can be re-cast to integer when every operand was one.
func numeric(v value.Value) (f float64, isInt bool, ok bool) {
	if !v.IsAtom() || v.Atom() == nil {
		return 0, false, false
	}
	a := v.Atom()
	switch a.Kind {
	case atomtab.KindInteger:
		n, _ := a.IntegerValue()
		return float64(n), true, true
	case atomtab.KindFloat:
		return a.FloatValue(), false, true
	default:
		return 0, false, false
	}
}

func numResult(c *Context, f float64, allInt bool) value.Value {
	if allInt {
		return value.FromAtom(c.Interner.InternInteger(int64(f), 0))
	}
	return value.FromAtom(c.Interner.InternFloat(f))
}

func arith(name string, op func(a, b float64) float64) *FuncDef {
	return &FuncDef{
		Name: name, MinArgs: 1, MaxArgs: -1,
		ReturnTypeMask: TypeNumber, ArgTypeMasks: []TypeMask{TypeNumber},
		Impl: func(c *Context, args []value.Value) value.Value {
			acc, allInt, ok := numeric(args[0])
			if !ok {
				c.Fail("TypeError", name+": non-numeric argument")
				return c.voidValue()
			}
			for _, a := range args[1:] {
				f, isInt, ok := numeric(a)
				if !ok {
					c.Fail("TypeError", name+": non-numeric argument")
					return c.voidValue()
				}
				acc = op(acc, f)
				allInt = allInt && isInt
			}
			if math.IsInf(acc, 0) || math.IsNaN(acc) {
				c.Fail("OverflowError", name+": arithmetic overflow")
				return c.voidValue()
			}
			return numResult(c, acc, allInt)
		},
	}
}

func compare(name string, op func(a, b float64) bool) *FuncDef {
	return &FuncDef{
		Name: name, MinArgs: 2, MaxArgs: -1,
		ReturnTypeMask: TypeSymbol, ArgTypeMasks: []TypeMask{TypeNumber},
		Impl: func(c *Context, args []value.Value) value.Value {
			prev, _, ok := numeric(args[0])
			if !ok {
				c.Fail("TypeError", name+": non-numeric argument")
				return c.voidValue()
			}
			result := true
			for _, a := range args[1:] {
				f, _, ok := numeric(a)
				if !ok {
					c.Fail("TypeError", name+": non-numeric argument")
					return c.voidValue()
				}
				if !op(prev, f) {
					result = false
				}
				prev = f
			}
			return boolValue(c, result)
		},
	}
}

func boolValue(c *Context, b bool) value.Value {
	if b {
		return value.FromAtom(c.Interner.TrueSymbol())
	}
	return value.FromAtom(c.Interner.FalseSymbol())
}

// eqFunc implements both = (numeric equality, CLIPS's "=") and eq
// (structural equality over any value kind, CLIPS's "eq"). negate flips
// the result for <> and neq.
func eqFunc(name string, structural, negate bool) *FuncDef {
	return &FuncDef{
		Name: name, MinArgs: 2, MaxArgs: -1, ReturnTypeMask: TypeSymbol,
		Impl: func(c *Context, args []value.Value) value.Value {
			result := true
			for i := 1; i < len(args); i++ {
				var eq bool
				if structural {
					eq = args[0].Equal(args[i])
				} else {
					a, _, ok1 := numeric(args[0])
					b, _, ok2 := numeric(args[i])
					if !ok1 || !ok2 {
						c.Fail("TypeError", name+": non-numeric argument")
						return c.voidValue()
					}
					eq = a == b
				}
				if !eq {
					result = false
				}
			}
			if negate {
				result = !result
			}
			return boolValue(c, result)
		},
	}
}

// RegisterBuiltins installs the standard function library: arithmetic,
// numeric and structural comparison, and logical connectives over the
// CLIPS truth convention (only the symbol FALSE is false).
func RegisterBuiltins(ctx *Context) {
	ctx.RegisterFunc(arith("+", func(a, b float64) float64 { return a + b }))
	ctx.RegisterFunc(arith("-", func(a, b float64) float64 { return a - b }))
	ctx.RegisterFunc(arith("*", func(a, b float64) float64 { return a * b }))
	ctx.RegisterFunc(&FuncDef{
		Name: "/", MinArgs: 2, MaxArgs: -1, ReturnTypeMask: TypeNumber, ArgTypeMasks: []TypeMask{TypeNumber},
		Impl: func(c *Context, args []value.Value) value.Value {
			acc, allInt, ok := numeric(args[0])
			if !ok {
				c.Fail("TypeError", "/: non-numeric argument")
				return c.voidValue()
			}
			for _, a := range args[1:] {
				f, isInt, ok := numeric(a)
				if !ok {
					c.Fail("TypeError", "/: non-numeric argument")
					return c.voidValue()
				}
				if f == 0 {
					c.Fail("DomainError", "/: division by zero")
					return c.voidValue()
				}
				acc /= f
				allInt = allInt && isInt && math.Mod(acc, 1) == 0
			}
			return numResult(c, acc, allInt)
		},
	})

	ctx.RegisterFunc(compare(">", func(a, b float64) bool { return a > b }))
	ctx.RegisterFunc(compare("<", func(a, b float64) bool { return a < b }))
	ctx.RegisterFunc(compare(">=", func(a, b float64) bool { return a >= b }))
	ctx.RegisterFunc(compare("<=", func(a, b float64) bool { return a <= b }))
	ctx.RegisterFunc(eqFunc("=", false, false))
	ctx.RegisterFunc(eqFunc("<>", false, true))
	ctx.RegisterFunc(eqFunc("eq", true, false))
	ctx.RegisterFunc(eqFunc("neq", true, true))

	ctx.RegisterFunc(&FuncDef{
		Name: "and", MinArgs: 1, MaxArgs: -1, ReturnTypeMask: TypeSymbol,
		Impl: func(c *Context, args []value.Value) value.Value {
			for _, a := range args {
				if !truthy(a) {
					return boolValue(c, false)
				}
			}
			return boolValue(c, true)
		},
	})
	ctx.RegisterFunc(&FuncDef{
		Name: "or", MinArgs: 1, MaxArgs: -1, ReturnTypeMask: TypeSymbol,
		Impl: func(c *Context, args []value.Value) value.Value {
			for _, a := range args {
				if truthy(a) {
					return boolValue(c, true)
				}
			}
			return boolValue(c, false)
		},
	})
	ctx.RegisterFunc(&FuncDef{
		Name: "not", MinArgs: 1, MaxArgs: 1, ReturnTypeMask: TypeSymbol,
		Impl: func(c *Context, args []value.Value) value.Value {
			return boolValue(c, !truthy(args[0]))
		},
	})
}
