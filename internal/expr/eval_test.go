package expr

import (
	"testing"

	"rulecore/internal/atomtab"
	"rulecore/internal/config"
	"rulecore/internal/value"
)

func newTestContext(t *testing.T) (*Context, *atomtab.Interner) {
	t.Helper()
	it := atomtab.New(config.AtomTableConfig{SymbolBuckets: 17, FloatBuckets: 17, IntegerBuckets: 17, BitmapBuckets: 17, ExternalAddressBuckets: 17})
	return NewContext(it, 64), it
}

func TestEvaluateConstant(t *testing.T) {
	ctx, it := newTestContext(t)
	a := it.InternInteger(42, 0)
	v := Evaluate(ctx, NewConstant(a))
	if ctx.EvaluationError {
		t.Fatalf("unexpected evaluation error")
	}
	n, _ := v.Atom().IntegerValue()
	if n != 42 {
		t.Fatalf("expected 42, got %d", n)
	}
}

func TestEvaluateFuncCallAndArity(t *testing.T) {
	ctx, it := newTestContext(t)
	ctx.RegisterFunc(&FuncDef{
		Name:    "add",
		MinArgs: 2, MaxArgs: 2,
		ArgTypeMasks: []TypeMask{TypeNumber},
		Impl: func(ctx *Context, args []value.Value) value.Value {
			a, _ := args[0].Atom().IntegerValue()
			b, _ := args[1].Atom().IntegerValue()
			return value.FromAtom(ctx.Interner.InternInteger(a+b, 0))
		},
	})

	call := NewFuncCall("add", NewConstant(it.InternInteger(2, 0)), NewConstant(it.InternInteger(3, 0)))
	v := Evaluate(ctx, call)
	if ctx.EvaluationError {
		t.Fatalf("unexpected evaluation error")
	}
	n, _ := v.Atom().IntegerValue()
	if n != 5 {
		t.Fatalf("expected 5, got %d", n)
	}

	ctx.ClearErrors()
	badArity := NewFuncCall("add", NewConstant(it.InternInteger(2, 0)))
	Evaluate(ctx, badArity)
	if !ctx.EvaluationError || ctx.LastErrorKind() != "ArityError" {
		t.Fatalf("expected ArityError, got error=%v kind=%q", ctx.EvaluationError, ctx.LastErrorKind())
	}
}

func TestEvaluateTypeMismatch(t *testing.T) {
	ctx, it := newTestContext(t)
	ctx.RegisterFunc(&FuncDef{
		Name: "needs-int", MinArgs: 1, MaxArgs: 1,
		ArgTypeMasks: []TypeMask{TypeInteger},
		Impl:         func(ctx *Context, args []value.Value) value.Value { return args[0] },
	})
	call := NewFuncCall("needs-int", NewConstant(it.InternSymbol(atomtab.KindSymbol, "not-a-number")))
	Evaluate(ctx, call)
	if !ctx.EvaluationError || ctx.LastErrorKind() != "TypeError" {
		t.Fatalf("expected TypeError, got error=%v kind=%q", ctx.EvaluationError, ctx.LastErrorKind())
	}
}

func TestEvaluateIfAndBind(t *testing.T) {
	ctx, it := newTestContext(t)
	trueAtom := NewConstant(it.TrueSymbol())
	bindThen := NewBind(0, NewConstant(it.InternInteger(1, 0)))
	bindElse := NewBind(0, NewConstant(it.InternInteger(2, 0)))

	Evaluate(ctx, NewIf(trueAtom, bindThen, bindElse))
	if ctx.EvaluationError {
		t.Fatalf("unexpected error")
	}
	got := ctx.currentFrame().Locals[0]
	n, _ := got.Atom().IntegerValue()
	if n != 1 {
		t.Fatalf("expected then-branch to bind 1, got %d", n)
	}
}

func TestEvaluateWhileWithBreak(t *testing.T) {
	ctx, it := newTestContext(t)
	// bind local 0 to TRUE, loop body breaks immediately, so while must
	// terminate after one iteration rather than looping forever.
	ctx.currentFrame().Locals = []value.Value{value.FromAtom(it.TrueSymbol())}
	cond := NewLocalVar(0)
	body := NewBreak()
	Evaluate(ctx, NewWhile(cond, body))
	if ctx.EvaluationError {
		t.Fatalf("unexpected error: %v", ctx.LastErrorKind())
	}
}

func TestEvaluateStaleReferenceIsHardError(t *testing.T) {
	ctx, it := newTestContext(t)
	ctx.RegisterFunc(&FuncDef{Name: "touch", MinArgs: 1, MaxArgs: 1, Impl: func(ctx *Context, args []value.Value) value.Value { return args[0] }})

	dead := &fakeFactHandle{garbage: true}
	frame := ctx.currentFrame()
	frame.Locals = []value.Value{value.FromFact(dead)}
	_ = it

	call := NewFuncCall("touch", NewLocalVar(0))
	Evaluate(ctx, call)
	if !ctx.EvaluationError || ctx.LastErrorKind() != "StaleReferenceError" {
		t.Fatalf("expected StaleReferenceError, got error=%v kind=%q", ctx.EvaluationError, ctx.LastErrorKind())
	}
}

func TestRecursionDepthGuard(t *testing.T) {
	ctx, _ := newTestContext(t)
	ctx.MaxRecursionDepth = 3
	ctx.RegisterFunc(&FuncDef{Name: "identity", MinArgs: 1, MaxArgs: 1, Impl: func(ctx *Context, args []value.Value) value.Value { return args[0] }})

	// nest function calls deep enough to exceed MaxRecursionDepth
	inner := NewConstant(ctx.Interner.ZeroInteger())
	for i := 0; i < 10; i++ {
		inner = NewFuncCall("identity", inner)
	}
	Evaluate(ctx, inner)
	if !ctx.EvaluationError || ctx.LastErrorKind() != "RecursionLimitError" {
		t.Fatalf("expected RecursionLimitError, got error=%v kind=%q", ctx.EvaluationError, ctx.LastErrorKind())
	}
}

type fakeFactHandle struct {
	garbage bool
}

func (f *fakeFactHandle) FactIndex() uint64 { return 0 }
func (f *fakeFactHandle) Garbage() bool     { return f.garbage }
