// Package rulecore is the forward-chaining production rule engine: the
// public surface an embedding CLI or parser layer builds against.
// Engine wires together atom interning, the expression evaluator,
// the fact store, the incremental match network, the agenda, rule
// compilation, and binary save/load into one cooperatively-scheduled,
// single-threaded instance; separate Engine values share no state.
package rulecore

import (
	"io"

	"rulecore/internal/agenda"
	"rulecore/internal/atomtab"
	"rulecore/internal/bsave"
	"rulecore/internal/config"
	"rulecore/internal/expr"
	"rulecore/internal/fact"
	"rulecore/internal/logging"
	"rulecore/internal/network"
	"rulecore/internal/query"
	"rulecore/internal/rule"
	"rulecore/internal/value"
)

// Engine is one forward-chaining rule engine instance.
type Engine struct {
	cfg      *config.Config
	interner *atomtab.Interner
	ctx      *expr.Context
	store    *fact.Store
	net      *network.Network
	agenda   *agenda.Agenda

	templates map[string]*fact.Template
	rules     map[string]*rule.Rule

	halted bool
	loaded bool // true once Bload has run; exclusive with further Bsave

	log *logging.Logger
}

const baseModule = "MAIN"

// New constructs an engine from cfg, registering the standard function
// library and the assert/retract/halt/focus/pop-focus action functions
// RHS expressions invoke by name.
func New(cfg *config.Config) *Engine {
	interner := atomtab.New(cfg.AtomTable)
	ctx := expr.NewContext(interner, cfg.Evaluator.MaxRecursionDepth)
	expr.RegisterBuiltins(ctx)

	store := fact.NewStore()
	store.AllowDuplicates = cfg.FactStore.AllowDuplicates
	store.FactLimit = cfg.CoreLimits.MaxFacts

	net := network.New()
	store.AddListener(net)

	e := &Engine{
		cfg:       cfg,
		interner:  interner,
		ctx:       ctx,
		store:     store,
		net:       net,
		agenda:    agenda.New(agenda.Strategy(cfg.Agenda.Strategy), baseModule),
		templates: make(map[string]*fact.Template),
		rules:     make(map[string]*rule.Rule),
		log:       logging.Get(logging.CategoryEngine),
	}
	e.registerActionFuncs()
	return e
}

// Interner exposes the atom table directly for hosts that need to build
// expr.Node trees (e.g. a parser) against this engine's interned atoms.
func (e *Engine) Interner() *atomtab.Interner { return e.interner }

// Context exposes the evaluation context backing RHS and join-test
// evaluation, for hosts that register additional functions or globals.
func (e *Engine) Context() *expr.Context { return e.ctx }

// --- Atoms: intern/retain/release/begin_frame/end_frame ---

func (e *Engine) InternSymbol(text string) *atomtab.Atom {
	return e.interner.InternSymbol(atomtab.KindSymbol, text)
}
func (e *Engine) InternString(text string) *atomtab.Atom {
	return e.interner.InternSymbol(atomtab.KindString, text)
}
func (e *Engine) InternInstanceName(text string) *atomtab.Atom {
	return e.interner.InternSymbol(atomtab.KindInstanceName, text)
}
func (e *Engine) InternInteger(n int64) *atomtab.Atom { return e.interner.InternInteger(n, 0) }
func (e *Engine) InternFloat(f float64) *atomtab.Atom { return e.interner.InternFloat(f) }
func (e *Engine) Retain(a *atomtab.Atom)              { e.interner.Retain(a) }
func (e *Engine) Release(a *atomtab.Atom)             { e.interner.Release(a) }
func (e *Engine) BeginFrame()                         { e.interner.PushFrame() }
func (e *Engine) EndFrame()                           { e.interner.PopFrame() }

// --- Templates: define_template/find_template ---

// DefineTemplate registers a new template, failing with
// KindDuplicateConstructError if name is already defined.
func (e *Engine) DefineTemplate(name, module string, slots []fact.SlotDescriptor) (*fact.Template, error) {
	if _, exists := e.templates[name]; exists {
		return nil, NewError(KindDuplicateConstructError, "engine", "define_template", "template "+name+" already defined")
	}
	tpl := fact.NewTemplate(name, module, slots)
	e.templates[name] = tpl
	e.log.Debug("defined template %s", name)
	return tpl, nil
}

// FindTemplate looks up a previously defined template, auto-vivifying an
// implied template on first reference.
func (e *Engine) FindTemplate(name string) (*fact.Template, bool) {
	tpl, ok := e.templates[name]
	return tpl, ok
}

// ImpliedTemplate returns (creating if necessary) the single-multislot
// template used for facts asserted without a prior deftemplate.
func (e *Engine) ImpliedTemplate(name, module string) *fact.Template {
	if tpl, ok := e.templates[name]; ok {
		return tpl
	}
	tpl := fact.NewImpliedTemplate(name, module)
	e.templates[name] = tpl
	return tpl
}

// --- Facts: assert/retract/find_by_index/iteration ---

// Assert materializes and asserts a fact of tpl, evaluating given's
// expressions for explicitly supplied slots and tpl's defaults for the
// rest.
func (e *Engine) Assert(tpl *fact.Template, given map[string]*expr.Node) (*fact.Fact, error) {
	e.ctx.ClearErrors()
	slots, err := fact.Materialize(e.ctx, tpl, given)
	if err != nil {
		return nil, Wrap(KindTypeError, "fact", "assert", "materialize failed", err)
	}
	f, _, err := e.store.Assert(tpl, slots)
	if err != nil {
		return nil, storeErrToEngine(err)
	}
	return f, nil
}

func storeErrToEngine(err error) error {
	se, ok := err.(*fact.StoreError)
	if !ok {
		return Wrap(KindInternalError, "fact", "assert", "unexpected store error", err)
	}
	switch se.Kind {
	case "ConstraintError":
		return NewError(KindConstraintError, "fact", "assert", se.Message)
	case "AllocationError":
		return NewError(KindAllocationError, "fact", "assert", se.Message)
	default:
		return NewError(KindDomainError, "fact", "assert", se.Message)
	}
}

// Retract retracts f.
func (e *Engine) Retract(f *fact.Fact) error {
	if err := e.store.Retract(f); err != nil {
		return storeErrToEngine(err)
	}
	return nil
}

func (e *Engine) FindByIndex(idx uint64) (*fact.Fact, bool) { return e.store.Find(idx) }

// IterateFacts visits every currently-asserted fact in assertion order.
func (e *Engine) IterateFacts(visit func(*fact.Fact) bool) { e.store.IterateGlobal(visit) }

// Query runs a read-only find-fact/do-for-all-facts style query over the
// fact store (internal/query).
func (e *Engine) Query(q query.Query, visit func(query.Match) bool) { query.DoForAllFacts(e.store, q, visit) }

// --- Rules: define_rule/undefine_rule ---

// DefineRule compiles lhs into the match network and registers the rule
// under name, wiring its terminal to push/withdraw agenda activations.
func (e *Engine) DefineRule(name, module string, salience int, lhs rule.LHS, rhs *expr.Node) (*rule.Rule, error) {
	if _, exists := e.rules[name]; exists {
		return nil, NewError(KindDuplicateConstructError, "rule", "define_rule", "rule "+name+" already defined")
	}
	r, err := rule.Compile(e.net, e.templates, e.ctx, name, module, salience, lhs, rhs)
	if err != nil {
		return nil, Wrap(KindParseError, "rule", "define_rule", "rule compilation failed", err)
	}
	r.Terminal.OnActivate = func(tok *network.Token) {
		e.agenda.Insert(&agenda.Activation{
			Rule: name, Module: module, Token: tok,
			Salience: salience, Specificity: r.Specificity(),
		})
	}
	r.Terminal.OnDeactivate = func(tok *network.Token) {
		e.agenda.RemoveMatching(module, func(a *agenda.Activation) bool {
			return a.Rule == name && a.Token == tok
		})
	}
	e.rules[name] = r
	e.log.Debug("defined rule %s in module %s, salience %d", name, module, salience)
	return r, nil
}

// UndefineRule detaches a rule's network wiring and withdraws its pending
// activations.
func (e *Engine) UndefineRule(name string) error {
	r, ok := e.rules[name]
	if !ok {
		return NewError(KindDomainError, "rule", "undefine_rule", "no such rule "+name)
	}
	r.Undefine()
	e.agenda.RemoveMatching(r.Module, func(a *agenda.Activation) bool { return a.Rule == name })
	delete(e.rules, name)
	return nil
}

func (e *Engine) FindRule(name string) (*rule.Rule, bool) {
	r, ok := e.rules[name]
	return r, ok
}

// --- Execution: run(n)/halt()/focus(module)/set_strategy ---

// fire implements one step of the run(n) cycle: push an activation
// frame binding act.Token's fact-set, evaluate the rule's RHS, pop the
// frame. A RHS evaluation error does not abort the run loop — each
// error is independently recorded; only halt() or exhausting n stops
// it.
func (e *Engine) fire(act *agenda.Activation) bool {
	r, ok := e.rules[act.Rule]
	if !ok {
		e.log.Warn("activation for undefined rule %s popped from agenda", act.Rule)
		return e.halted
	}

	facts := make([]value.Value, len(act.Token.Facts))
	for i, f := range act.Token.Facts {
		facts[i] = value.FromFact(f)
	}
	frame := &expr.Frame{}
	e.ctx.PushFrame(frame)
	prevFactSetVars := e.ctx.FactSetVars
	e.ctx.FactSetVars = facts
	e.ctx.ClearErrors()

	if r.RHS != nil {
		expr.Evaluate(e.ctx, r.RHS)
		if e.ctx.EvaluationError {
			e.log.Warn("rule %s RHS evaluation error: %s", r.Name, e.ctx.LastErrorKind())
		}
	}

	e.ctx.FactSetVars = prevFactSetVars
	e.ctx.PopFrame()
	return e.halted
}

// Run fires up to n activations (n<0 for unbounded), stopping early if
// the agenda empties or Halt is called.
func (e *Engine) Run(n int) int {
	if e.halted {
		return 0
	}
	fired := e.agenda.Run(n, e.fire)
	return fired
}

// Halt requests that the run loop stop after the in-progress firing
// completes. Halt is advisory: it takes effect at the next firing
// boundary, not immediately.
func (e *Engine) Halt() { e.halted = true }

// ResetHalt clears a prior Halt, allowing Run to proceed again.
func (e *Engine) ResetHalt() { e.halted = false }

// Focus pushes module onto the agenda's focus stack.
func (e *Engine) Focus(module string) { e.agenda.PushFocus(module) }

// PopFocus pops the current focus module.
func (e *Engine) PopFocus() string { return e.agenda.PopFocus() }

// SetStrategy changes the active conflict-resolution strategy.
func (e *Engine) SetStrategy(strategy string) error {
	switch agenda.Strategy(strategy) {
	case agenda.StrategyDepth, agenda.StrategyBreadth, agenda.StrategyLex, agenda.StrategyMea,
		agenda.StrategySimplicity, agenda.StrategyComplexity, agenda.StrategyRandom:
		e.agenda.SetStrategy(agenda.Strategy(strategy))
		return nil
	default:
		return NewError(KindDomainError, "agenda", "set_strategy", "unknown strategy "+strategy)
	}
}

// --- Agenda: list_activations()/clear() ---

func (e *Engine) ListActivations() []*agenda.Activation { return e.agenda.List() }
func (e *Engine) ClearAgenda()                          { e.agenda.Clear(baseModule) }

// --- Binary save/load ---

// Bsave writes a binary image of every defined template, currently
// asserted fact, and defined rule to w. It fails if the engine is
// currently in the post-Bload exclusive state.
func (e *Engine) Bsave(w io.Writer) error {
	if e.loaded {
		return NewError(KindIOError, "bsave", "bsave", "bsave is exclusive with a prior bload")
	}
	templates := make([]*fact.Template, 0, len(e.templates))
	for _, tpl := range e.templates {
		templates = append(templates, tpl)
	}
	rules := make([]*rule.Rule, 0, len(e.rules))
	for _, r := range e.rules {
		rules = append(rules, r)
	}
	img := bsave.BuildImage(e.interner, templates, e.store, rules)
	if err := bsave.WriteImage(w, e.cfg.BinaryFormat, img); err != nil {
		return Wrap(KindIOError, "bsave", "bsave", "write failed", err)
	}
	return nil
}

// Bload replaces this engine's templates and facts with the contents of
// a binary image read from r. Rule metadata is restored but rules are
// not re-wired into the match network (rebuilding the join graph needs
// the original LHS, which bsave does not preserve — only a rule's name,
// salience, and RHS round-trip; a host wanting live rules after bload
// must re-run DefineRule with the original LHS against the restored
// FindRule metadata).
func (e *Engine) Bload(r io.Reader, funcs map[string]*expr.FuncDef) error {
	img, err := bsave.ReadImage(r, e.cfg.BinaryFormat, e.interner, funcs)
	if err != nil {
		return Wrap(KindFormatError, "bload", "bload", "read failed", err)
	}
	e.templates = make(map[string]*fact.Template, len(img.Templates))
	for _, tpl := range img.Templates {
		e.templates[tpl.Name] = tpl
	}
	e.store = fact.NewStore()
	e.store.AllowDuplicates = e.cfg.FactStore.AllowDuplicates
	e.store.FactLimit = e.cfg.CoreLimits.MaxFacts
	e.net = network.New()
	e.store.AddListener(e.net)
	e.rules = make(map[string]*rule.Rule, len(img.Rules))
	for _, rl := range img.Rules {
		e.rules[rl.Name] = rl
	}
	e.loaded = true
	return nil
}

func isSymbol(v value.Value) bool { return v.IsAtom() && v.Atom() != nil && v.Atom().Kind == atomtab.KindSymbol }

// registerActionFuncs installs the RHS action functions that close over
// e: assert, retract, halt, focus, and pop-focus, the actions a rule's
// RHS may invoke by name.
func (e *Engine) registerActionFuncs() {
	e.ctx.RegisterFunc(&expr.FuncDef{
		Name: "halt", MinArgs: 0, MaxArgs: 0,
		Impl: func(c *expr.Context, args []value.Value) value.Value {
			e.Halt()
			return value.FromAtom(c.Interner.Void())
		},
	})
	e.ctx.RegisterFunc(&expr.FuncDef{
		Name: "focus", MinArgs: 1, MaxArgs: 1, ArgTypeMasks: []expr.TypeMask{expr.TypeSymbol},
		Impl: func(c *expr.Context, args []value.Value) value.Value {
			e.Focus(args[0].Atom().SymbolText())
			return value.FromAtom(c.Interner.Void())
		},
	})
	e.ctx.RegisterFunc(&expr.FuncDef{
		Name: "pop-focus", MinArgs: 0, MaxArgs: 0,
		Impl: func(c *expr.Context, args []value.Value) value.Value {
			e.PopFocus()
			return value.FromAtom(c.Interner.Void())
		},
	})
	e.ctx.RegisterFunc(&expr.FuncDef{
		// No ArgTypeMasks: argMask repeats a single declared mask onto
		// every argument index beyond it, but assert's args alternate
		// slot-name symbols with slot values of any type. Both symbol
		// positions, the template name and every even-indexed slot
		// name, are checked by hand below instead.
		Name: "assert", MinArgs: 1, MaxArgs: -1,
		Impl: func(c *expr.Context, args []value.Value) value.Value {
			if !isSymbol(args[0]) {
				c.Fail("TypeError", "assert: first argument must be a template name symbol")
				return value.FromAtom(c.Interner.Void())
			}
			if (len(args)-1)%2 != 0 {
				c.Fail("ArgumentCountError", "assert: slot name/value arguments must come in pairs")
				return value.FromAtom(c.Interner.Void())
			}
			name := args[0].Atom().SymbolText()
			tpl, ok := e.templates[name]
			if !ok {
				tpl = e.ImpliedTemplate(name, baseModule)
			}
			slots := make([]value.Value, tpl.SlotCount())
			for i := range slots {
				if def := tpl.Slots[i].Default; def != nil {
					slots[i] = expr.Evaluate(c, def)
					if c.EvaluationError {
						return value.FromAtom(c.Interner.Void())
					}
				}
			}
			for i := 1; i+1 < len(args); i += 2 {
				if !isSymbol(args[i]) {
					c.Fail("TypeError", "assert: slot name argument must be a symbol")
					return value.FromAtom(c.Interner.Void())
				}
				slotName := args[i].Atom().SymbolText()
				idx, ok := tpl.IndexOf(slotName)
				if !ok {
					c.Fail("DomainError", "assert: no such slot "+slotName+" in template "+name)
					return value.FromAtom(c.Interner.Void())
				}
				slots[idx] = args[i+1]
			}
			f, _, err := e.store.Assert(tpl, slots)
			if err != nil {
				c.Fail("DomainError", err.Error())
				return value.FromAtom(c.Interner.Void())
			}
			return value.FromFact(f)
		},
	})
	e.ctx.RegisterFunc(&expr.FuncDef{
		Name: "retract", MinArgs: 1, MaxArgs: 1,
		Impl: func(c *expr.Context, args []value.Value) value.Value {
			var target *fact.Fact
			switch args[0].Tag() {
			case value.TagFact:
				target, _ = args[0].Fact().(*fact.Fact)
			case value.TagAtom:
				if n, _ := args[0].Atom().IntegerValue(); true {
					target, _ = e.store.Find(uint64(n))
				}
			}
			if target == nil {
				c.Fail("DomainError", "retract: argument is not a fact")
				return value.FromAtom(c.Interner.Void())
			}
			if err := e.store.Retract(target); err != nil {
				c.Fail("DomainError", err.Error())
			}
			return value.FromAtom(c.Interner.Void())
		},
	})
}
