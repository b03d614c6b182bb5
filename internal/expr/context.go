package expr

import (
	"rulecore/internal/atomtab"
	"rulecore/internal/logging"
	"rulecore/internal/value"
)

// Frame is an activation frame, pushed before a rule's RHS or a function
// body is entered and popped on exit. It restores any prior frame
// including a wildcard-arguments value and an unbound-variable error
// callback.
type Frame struct {
	Locals              []value.Value
	WildcardArgs        *value.Multifield
	UnboundVariableFunc func(name string)
}

// Context is the evaluation environment: the interner, the function and
// global-variable registries, the activation-frame stack, the active
// fact-set binding view, and the evaluation_error/halt_execution flags
// used in place of exceptions.
type Context struct {
	Interner *atomtab.Interner
	Funcs    map[string]*FuncDef
	Globals  map[string]value.Value

	frames []*Frame

	// FactSetVars is the binding view a join test or fact-set query
	// installs before evaluating an expression referencing
	// KindFactSetVar nodes: the evaluator receives a binding view
	// rather than a fresh activation frame.
	FactSetVars []value.Value

	MaxRecursionDepth int
	depth             int

	EvaluationError bool
	HaltExecution   bool
	lastErrorKind   string

	returning   bool
	returnValue value.Value
	breaking    bool

	log *logging.Logger
}

// NewContext constructs an evaluation context with one base activation
// frame.
func NewContext(interner *atomtab.Interner, maxRecursionDepth int) *Context {
	return &Context{
		Interner:          interner,
		Funcs:             make(map[string]*FuncDef),
		Globals:           make(map[string]value.Value),
		frames:            []*Frame{{}},
		MaxRecursionDepth: maxRecursionDepth,
		log:               logging.Get(logging.CategoryExpr),
	}
}

// RegisterFunc installs a function definition, keyed by name.
func (c *Context) RegisterFunc(f *FuncDef) { c.Funcs[f.Name] = f }

// PushFrame installs a new activation frame, saving the previous one.
func (c *Context) PushFrame(f *Frame) { c.frames = append(c.frames, f) }

// PopFrame restores the previous activation frame. Popping the base
// frame is a programming error and panics — every push must be matched,
// including on early error returns.
func (c *Context) PopFrame() {
	if len(c.frames) == 1 {
		panic("expr: PopFrame called on base frame")
	}
	c.frames = c.frames[:len(c.frames)-1]
}

func (c *Context) currentFrame() *Frame { return c.frames[len(c.frames)-1] }

// ClearErrors resets evaluation_error/halt_execution, as a caller must do
// between top-level evaluations that should not inherit a prior failure.
func (c *Context) ClearErrors() {
	c.EvaluationError = false
	c.HaltExecution = false
	c.lastErrorKind = ""
}

// Fail sets evaluation_error and records a failure kind: callbacks set
// flags rather than raise.
func (c *Context) Fail(kind, message string) {
	c.EvaluationError = true
	c.lastErrorKind = kind
	c.log.Warn("%s: %s", kind, message)
}

// Halt sets halt_execution in addition to evaluation_error, for hard
// internal inconsistencies that must stop the run loop outright.
func (c *Context) Halt(kind, message string) {
	c.Fail(kind, message)
	c.HaltExecution = true
}

// LastErrorKind returns the failure kind most recently passed to Fail or
// Halt, or "" if none is pending.
func (c *Context) LastErrorKind() string { return c.lastErrorKind }

// ErrorState is a snapshot of evaluation_error/halt_execution/the last
// failure kind, saved and restored around a nested evaluation (e.g. a
// join test run reentrantly from inside an RHS action) so that nested
// evaluation's outcome does not leak into the enclosing evaluation's
// error flags once the nested call returns.
type ErrorState struct {
	evaluationError bool
	haltExecution   bool
	lastErrorKind   string
}

// SaveErrorState captures the current error flags without clearing them.
func (c *Context) SaveErrorState() ErrorState {
	return ErrorState{c.EvaluationError, c.HaltExecution, c.lastErrorKind}
}

// RestoreErrorState reinstates a previously saved snapshot, overwriting
// whatever error flags the evaluation performed since the save.
func (c *Context) RestoreErrorState(s ErrorState) {
	c.EvaluationError = s.evaluationError
	c.HaltExecution = s.haltExecution
	c.lastErrorKind = s.lastErrorKind
}
