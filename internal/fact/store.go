package fact

import (
	"rulecore/internal/expr"
	"rulecore/internal/logging"
	"rulecore/internal/value"
)

// Listener receives assert/retract notifications, the fact store's side
// of delivering the fact to the alpha side of the match network.
// internal/network implements this.
type Listener interface {
	OnAssert(f *Fact)
	OnRetract(f *Fact)
}

// Store owns fact identity and lifecycle: index assignment, the global
// assertion-order list, per-template lists, and content-hash duplicate
// suppression.
type Store struct {
	AllowDuplicates bool
	FactLimit       int // 0 means unlimited

	nextIndex       uint64
	byIndex         map[uint64]*Fact
	byContent       map[uint64][]*Fact // content hash -> candidate facts, for dedupe
	byModule        map[string][]*Fact
	factLimitWarned bool

	head, tail *Fact // global assertion-order list

	listeners    []Listener
	afterAssert  []func(*Fact)
	afterRetract []func(*Fact)

	log *logging.Logger
}

// NewStore constructs an empty fact store.
func NewStore() *Store {
	return &Store{
		byIndex:   make(map[uint64]*Fact),
		byContent: make(map[uint64][]*Fact),
		byModule:  make(map[string][]*Fact),
		log:       logging.Get(logging.CategoryFact),
	}
}

// AddListener registers a match-network listener.
func (s *Store) AddListener(l Listener) { s.listeners = append(s.listeners, l) }

// AddAfterAssertHook registers a hook fired after a fact is successfully
// asserted and delivered to the match network.
func (s *Store) AddAfterAssertHook(h func(*Fact)) { s.afterAssert = append(s.afterAssert, h) }

// AddAfterRetractHook registers a hook fired after a fact is retracted.
func (s *Store) AddAfterRetractHook(h func(*Fact)) { s.afterRetract = append(s.afterRetract, h) }

// Materialize performs assert step 1: allocates the slot array, copies
// per-slot defaults for slots absent from given, and evaluates each
// user-supplied expression via ctx.
func Materialize(ctx *expr.Context, tpl *Template, given map[string]*expr.Node) ([]value.Value, error) {
	slots := make([]value.Value, tpl.SlotCount())
	for i, sd := range tpl.Slots {
		node, ok := given[sd.Name]
		if !ok {
			node = sd.Default
		}
		if node == nil {
			slots[i] = value.Value{}
			continue
		}
		v := expr.Evaluate(ctx, node)
		if ctx.EvaluationError {
			return nil, &StoreError{Kind: "EvaluationError", Message: "failed evaluating slot " + sd.Name}
		}
		slots[i] = v
	}
	return slots, nil
}

// StoreError is returned by Assert on constraint or capacity violations.
type StoreError struct {
	Kind    string
	Message string
}

func (e *StoreError) Error() string { return e.Kind + ": " + e.Message }

func contentHash(tpl *Template, slots []value.Value) uint64 {
	h := uint64(14695981039346656037)
	h ^= uint64(len(tpl.Name))
	for _, r := range tpl.Name {
		h ^= uint64(r)
		h *= 1099511628211
	}
	for _, v := range slots {
		h ^= v.HashCode()
		h *= 1099511628211
	}
	return h
}

func slotValuesEqual(a, b []value.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Assert runs the full assert algorithm: constraint checks, duplicate
// suppression, limit enforcement, then insertion and listener
// notification. Callers first obtain slots via Materialize. On a
// duplicate-suppression
// hit, Assert returns the pre-existing fact and (nil, nil) is never
// returned — the returned bool reports whether a new fact was created.
func (s *Store) Assert(tpl *Template, slots []value.Value) (*Fact, bool, error) {
	for i, sd := range tpl.Slots {
		if msg := sd.Constraint.Check(slots[i]); msg != "" {
			return nil, false, &StoreError{Kind: "ConstraintError", Message: "slot " + sd.Name + ": " + msg}
		}
	}

	hash := contentHash(tpl, slots)
	if !s.AllowDuplicates {
		for _, existing := range s.byContent[hash] {
			if existing.State == StateAsserted && existing.Template == tpl && slotValuesEqual(existing.Slots, slots) {
				return existing, false, nil
			}
		}
	}

	if s.FactLimit > 0 && len(s.byIndex) >= s.FactLimit {
		return nil, false, &StoreError{Kind: "AllocationError", Message: "fact store limit reached"}
	}

	s.nextIndex++
	f := &Fact{Index: s.nextIndex, Template: tpl, Slots: slots, State: StateAsserted, contentHash: hash}

	s.byIndex[f.Index] = f
	s.byContent[hash] = append(s.byContent[hash], f)
	s.byModule[tpl.Module] = append(s.byModule[tpl.Module], f)

	if s.tail == nil {
		s.head, s.tail = f, f
	} else {
		s.tail.next = f
		f.prev = s.tail
		s.tail = f
	}

	for _, l := range s.listeners {
		l.OnAssert(f)
	}
	for _, h := range s.afterAssert {
		h(f)
	}
	s.maybeWarnFactLimit()

	s.log.Debug("asserted fact %d of template %s", f.Index, tpl.Name)
	return f, true, nil
}

// maybeWarnFactLimit logs once when the fact store crosses 85% of
// FactLimit, latching until utilization drops back below 70% (Retract
// clears the latch), so a store sitting near the ceiling does not warn
// on every single assert.
func (s *Store) maybeWarnFactLimit() {
	if s.FactLimit <= 0 || s.factLimitWarned {
		return
	}
	utilization := float64(len(s.byIndex)) / float64(s.FactLimit)
	if utilization >= 0.85 {
		s.log.Warn("fact store is %.1f%% of configured capacity (%d / %d)", utilization*100, len(s.byIndex), s.FactLimit)
		s.factLimitWarned = true
	}
}

// Retract runs the retract algorithm: marks the fact retracted, notifies
// the match network, unlinks it from the module/global lists, but leaves
// the *Fact reachable by identity — the pointer stays valid, and any
// token still holding it sees garbage=true.
func (s *Store) Retract(f *Fact) error {
	if f.State != StateAsserted {
		return &StoreError{Kind: "DomainError", Message: "fact is not currently asserted"}
	}
	f.State = StateRetracted

	for _, l := range s.listeners {
		l.OnRetract(f)
	}

	if f.prev != nil {
		f.prev.next = f.next
	} else {
		s.head = f.next
	}
	if f.next != nil {
		f.next.prev = f.prev
	} else {
		s.tail = f.prev
	}

	if list := s.byModule[f.Template.Module]; list != nil {
		s.byModule[f.Template.Module] = removeFact(list, f)
	}

	if s.factLimitWarned && (s.FactLimit == 0 || float64(len(s.byIndex)) < float64(s.FactLimit)*0.7) {
		s.factLimitWarned = false
	}

	for _, h := range s.afterRetract {
		h(f)
	}

	s.log.Debug("retracted fact %d of template %s", f.Index, f.Template.Name)
	return nil
}

func removeFact(list []*Fact, f *Fact) []*Fact {
	for i, c := range list {
		if c == f {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// Find looks up a fact by index. A retracted index still resolves (to a
// Fact with Garbage()==true) until the caller drops the last reference.
func (s *Store) Find(index uint64) (*Fact, bool) {
	f, ok := s.byIndex[index]
	return f, ok
}

// IterateGlobal calls visit for every currently-asserted fact in
// assertion order. Returning false from visit stops iteration early.
func (s *Store) IterateGlobal(visit func(*Fact) bool) {
	for f := s.head; f != nil; f = f.next {
		if !visit(f) {
			return
		}
	}
}

// IterateModule calls visit for every currently-asserted fact belonging
// to module, in assertion order.
func (s *Store) IterateModule(module string, visit func(*Fact) bool) {
	for _, f := range s.byModule[module] {
		if !visit(f) {
			return
		}
	}
}

// Count returns the number of currently-asserted facts.
func (s *Store) Count() int {
	n := 0
	s.IterateGlobal(func(*Fact) bool { n++; return true })
	return n
}
