package agenda

// FireFunc fires one activation's RHS action. It returns true if
// execution should halt after this firing (e.g. the action called
// halt()). Pushing an activation frame binding the fact-set of
// act.Token, evaluating the RHS action expression, and popping the
// frame is the caller's (engine.go's) responsibility, since only it has
// the expression evaluator and the rule's compiled RHS.
type FireFunc func(act *Activation) (halt bool)

// Run executes the run(n) cycle: pop the highest-priority activation,
// fire it, repeat, until n firings have occurred (n<0 means unbounded),
// the agenda is empty, or fire requests a halt. It returns the number of
// activations actually fired. Firings may themselves assert/retract
// facts, producing new activations visible immediately — PopHighest
// re-reads agenda state on every call, so this loop is re-entrant safe
// by construction.
func (a *Agenda) Run(n int, fire FireFunc) int {
	steps := 0
	for n < 0 || steps < n {
		act, ok := a.PopHighest()
		if !ok {
			break
		}
		if fire(act) {
			steps++
			break
		}
		steps++
	}
	return steps
}
