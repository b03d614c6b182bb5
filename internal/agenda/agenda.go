package agenda

import (
	"sort"
	"sync"

	"rulecore/internal/logging"
)

// Agenda is a priority structure over activations, partitioned by
// module. It is safe for concurrent use; the run loop and rule actions
// asserting/retracting facts during a firing both touch it.
type Agenda struct {
	mu sync.Mutex

	strategy Strategy
	byModule map[string][]*Activation
	focus    []string // stack; top is byModule[focus[len-1]]

	nextTimetag uint64
	nextRandom  uint64

	log *logging.Logger
}

// New constructs an agenda using strategy, focused on module initially.
func New(strategy Strategy, initialModule string) *Agenda {
	return &Agenda{
		strategy: strategy,
		byModule: make(map[string][]*Activation),
		focus:    []string{initialModule},
		log:      logging.Get(logging.CategoryAgenda),
	}
}

// SetStrategy changes the active conflict-resolution strategy; it takes
// effect for subsequent Pop calls, not retroactively re-sorting.
func (a *Agenda) SetStrategy(s Strategy) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.strategy = s
}

// Insert adds an activation to its module's agenda, assigning a timetag
// (and, for the random strategy, a stable random key) if not already
// set — bsave/bload round-trips set these explicitly to preserve order.
func (a *Agenda) Insert(act *Activation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if act.Timetag == 0 {
		a.nextTimetag++
		act.Timetag = a.nextTimetag
	}
	if a.strategy == StrategyRandom && act.RandomKey == 0 {
		a.nextRandom = a.nextRandom*6364136223846793005 + 1442695040888963407
		act.RandomKey = a.nextRandom
	}
	a.byModule[act.Module] = append(a.byModule[act.Module], act)
	a.log.Debug("activation inserted: rule=%s module=%s timetag=%d", act.Rule, act.Module, act.Timetag)
}

// Remove removes act from the agenda (e.g. when its token is retracted),
// a no-op if it is not present.
func (a *Agenda) Remove(act *Activation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	list := a.byModule[act.Module]
	for i, c := range list {
		if c == act {
			a.byModule[act.Module] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// RemoveMatching removes every activation in module satisfying pred.
func (a *Agenda) RemoveMatching(module string, pred func(*Activation) bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	list := a.byModule[module]
	kept := list[:0:0]
	for _, act := range list {
		if !pred(act) {
			kept = append(kept, act)
		}
	}
	a.byModule[module] = kept
}

// List returns every activation across every module, primarily salience
// then strategy order within each module, in focus-stack order from the
// top.
func (a *Agenda) List() []*Activation {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*Activation
	for i := len(a.focus) - 1; i >= 0; i-- {
		out = append(out, a.sortedCopy(a.focus[i])...)
	}
	return out
}

// Clear empties every module's agenda and resets the focus stack to just
// base.
func (a *Agenda) Clear(base string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byModule = make(map[string][]*Activation)
	a.focus = []string{base}
}

func (a *Agenda) sortedCopy(module string) []*Activation {
	list := append([]*Activation(nil), a.byModule[module]...)
	sort.SliceStable(list, func(i, j int) bool {
		ai, aj := list[i], list[j]
		if ai.Salience != aj.Salience {
			return ai.Salience > aj.Salience
		}
		return less(a.strategy, ai, aj)
	})
	return list
}

// PushFocus pushes module onto the focus stack (the focus / pop-focus
// actions of the RHS action vocabulary).
func (a *Agenda) PushFocus(module string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.focus = append(a.focus, module)
}

// PopFocus pops the current focus, returning the module popped. Popping
// the base focus is a no-op returning "".
func (a *Agenda) PopFocus() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.focus) <= 1 {
		return ""
	}
	top := a.focus[len(a.focus)-1]
	a.focus = a.focus[:len(a.focus)-1]
	return top
}

// CurrentFocus returns the module on top of the focus stack.
func (a *Agenda) CurrentFocus() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.focus[len(a.focus)-1]
}

// PopHighest pops and returns the highest-priority activation from the
// currently focused module; if that module's agenda is empty, focus pops
// to the next module on the stack and the search repeats.
func (a *Agenda) PopHighest() (*Activation, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for {
		top := a.focus[len(a.focus)-1]
		list := a.byModule[top]
		if len(list) > 0 {
			sorted := a.sortedCopy(top)
			best := sorted[0]
			a.byModule[top] = removeActivation(list, best)
			return best, true
		}
		if len(a.focus) == 1 {
			return nil, false
		}
		a.focus = a.focus[:len(a.focus)-1]
	}
}

func removeActivation(list []*Activation, target *Activation) []*Activation {
	for i, c := range list {
		if c == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
