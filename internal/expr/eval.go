package expr

import "rulecore/internal/value"

// Evaluate evaluates node in ctx, returning its Value. On any failure it
// sets ctx.EvaluationError (and possibly ctx.HaltExecution) and returns
// the void value; callers must check ctx.EvaluationError after each
// top-level call rather than relying on the return value alone.
func Evaluate(ctx *Context, node *Node) value.Value {
	if ctx.HaltExecution {
		return ctx.voidValue()
	}
	if node == nil {
		return ctx.voidValue()
	}

	ctx.depth++
	defer func() { ctx.depth-- }()
	if ctx.MaxRecursionDepth > 0 && ctx.depth > ctx.MaxRecursionDepth {
		ctx.Fail("RecursionLimitError", "expression evaluation exceeded the configured recursion depth")
		return ctx.voidValue()
	}

	switch node.Kind {
	case KindConstant:
		return value.FromAtom(node.Constant)

	case KindFuncCall:
		return ctx.evalFuncCall(node)

	case KindLocalVar:
		f := ctx.currentFrame()
		if node.LocalSlot < 0 || node.LocalSlot >= len(f.Locals) {
			ctx.reportUnbound(node.LocalSlot)
			ctx.Fail("UnboundVariableError", "local variable slot out of range")
			return ctx.voidValue()
		}
		return f.Locals[node.LocalSlot]

	case KindFactSetVar:
		if node.FactSetSlot < 0 || node.FactSetSlot >= len(ctx.FactSetVars) {
			ctx.Fail("UnboundVariableError", "fact-set variable slot out of range")
			return ctx.voidValue()
		}
		return ctx.FactSetVars[node.FactSetSlot]

	case KindSlotAccess:
		return ctx.evalSlotAccess(node)

	case KindGlobalRef:
		v, ok := ctx.Globals[node.GlobalName]
		if !ok {
			ctx.Fail("UnboundVariableError", "undefined global "+node.GlobalName)
			return ctx.voidValue()
		}
		return v

	case KindIf:
		return ctx.evalIf(node)

	case KindWhile:
		return ctx.evalWhile(node)

	case KindProgn:
		return ctx.evalProgn(node)

	case KindBind:
		return ctx.evalBind(node)

	case KindReturn:
		var v value.Value
		if len(node.Args) > 0 {
			v = Evaluate(ctx, node.Args[0])
			if ctx.EvaluationError {
				return ctx.voidValue()
			}
		}
		ctx.returning = true
		ctx.returnValue = v
		return v

	case KindBreak:
		ctx.breaking = true
		return ctx.voidValue()

	default:
		ctx.Fail("InternalError", "unknown expression node kind")
		return ctx.voidValue()
	}
}

func (c *Context) voidValue() value.Value {
	if c.Interner != nil {
		return value.FromAtom(c.Interner.Void())
	}
	return value.Value{}
}

func (c *Context) reportUnbound(slot int) {
	if f := c.currentFrame(); f != nil && f.UnboundVariableFunc != nil {
		f.UnboundVariableFunc("")
	}
}

func (c *Context) evalFuncCall(node *Node) value.Value {
	def, ok := c.Funcs[node.FuncName]
	if !ok {
		c.Fail("UnboundFunctionError", "undefined function "+node.FuncName)
		return c.voidValue()
	}

	args := make([]value.Value, 0, len(node.Args))
	for _, a := range node.Args {
		v := Evaluate(c, a)
		if c.EvaluationError {
			return c.voidValue()
		}
		args = append(args, v)
	}

	if len(args) < def.MinArgs || (def.MaxArgs >= 0 && len(args) > def.MaxArgs) {
		c.Fail("ArityError", "wrong number of arguments to "+node.FuncName)
		return c.voidValue()
	}

	for i, a := range args {
		if a.Stale() {
			c.Fail("StaleReferenceError", "stale fact/instance reference passed to "+node.FuncName)
			return c.voidValue()
		}
		want := def.argMask(i)
		if want != TypeAny && valueTypeMask(a)&want == 0 {
			c.Fail("TypeError", "argument type mismatch in "+node.FuncName)
			return c.voidValue()
		}
	}

	return def.Impl(c, args)
}

func (c *Context) evalSlotAccess(node *Node) value.Value {
	base := Evaluate(c, node.Var)
	if c.EvaluationError {
		return c.voidValue()
	}
	if base.Stale() {
		c.Fail("StaleReferenceError", "slot access on a retracted fact or deleted instance")
		return c.voidValue()
	}
	var holder interface{}
	switch base.Tag() {
	case value.TagFact:
		holder = base.Fact()
	case value.TagInstance:
		holder = base.Instance()
	default:
		c.Fail("TypeError", "slot access on a non-fact, non-instance value")
		return c.voidValue()
	}
	accessor, ok := holder.(SlotAccessor)
	if !ok || accessor == nil {
		c.Fail("TypeError", "slot access on a non-fact, non-instance value")
		return c.voidValue()
	}
	v, ok := accessor.SlotValue(node.Slot)
	if !ok {
		c.Fail("DomainError", "no such slot "+node.Slot)
		return c.voidValue()
	}
	return v
}

// SlotAccessor is implemented by fact and instance handles so that
// internal/expr can resolve v:s slot-access nodes without importing
// internal/fact directly.
type SlotAccessor interface {
	SlotValue(name string) (value.Value, bool)
}

func (c *Context) evalIf(node *Node) value.Value {
	cond := Evaluate(c, node.Args[0])
	if c.EvaluationError {
		return c.voidValue()
	}
	if truthy(cond) {
		return Evaluate(c, node.Then)
	}
	if node.Else != nil {
		return Evaluate(c, node.Else)
	}
	return c.voidValue()
}

func (c *Context) evalWhile(node *Node) value.Value {
	for {
		cond := Evaluate(c, node.Args[0])
		if c.EvaluationError {
			return c.voidValue()
		}
		if !truthy(cond) {
			return c.voidValue()
		}
		Evaluate(c, node.Body)
		if c.EvaluationError || c.HaltExecution || c.returning {
			return c.voidValue()
		}
		if c.breaking {
			c.breaking = false
			return c.voidValue()
		}
	}
}

func (c *Context) evalProgn(node *Node) value.Value {
	var last value.Value
	for _, e := range node.Args {
		last = Evaluate(c, e)
		if c.EvaluationError || c.HaltExecution || c.returning || c.breaking {
			return last
		}
	}
	return last
}

func (c *Context) evalBind(node *Node) value.Value {
	v := Evaluate(c, node.Args[0])
	if c.EvaluationError {
		return c.voidValue()
	}
	f := c.currentFrame()
	for node.BindTarget >= len(f.Locals) {
		f.Locals = append(f.Locals, c.voidValue())
	}
	f.Locals[node.BindTarget] = v
	return v
}

// truthy follows CLIPS convention: only the symbol FALSE is false;
// everything else, including the empty multifield, is true.
func truthy(v value.Value) bool {
	if v.IsAtom() && v.Atom() != nil && v.Atom().SymbolText() == "FALSE" {
		return false
	}
	return true
}

// TakeReturn consumes a pending return signal (from a KindReturn
// evaluated inside the current call), clearing it so an enclosing progn
// or function body stops propagating further. Function-body callers use
// this at their outermost KindProgn boundary.
func (c *Context) TakeReturn() (value.Value, bool) {
	if !c.returning {
		return value.Value{}, false
	}
	c.returning = false
	v := c.returnValue
	c.returnValue = value.Value{}
	return v, true
}
