package fact

import "rulecore/internal/value"

// State is a fact's lifecycle stage: pending, asserted, or retracted
// (garbage).
type State int

const (
	StatePending State = iota
	StateAsserted
	StateRetracted
)

// Fact is a structured working-memory record. Index is dense and never
// reused; Slots has exactly Template.SlotCount() entries (one multifield
// entry for implied templates).
type Fact struct {
	Index    uint64
	Template *Template
	Slots    []value.Value
	State    State

	contentHash uint64

	next, prev *Fact // intrusive global assertion-order list
}

// FactIndex implements value.FactHandle.
func (f *Fact) FactIndex() uint64 { return f.Index }

// Garbage implements value.FactHandle: true once retracted, so any
// token still holding this fact sees garbage=true.
func (f *Fact) Garbage() bool { return f.State == StateRetracted }

// SlotValue implements expr.SlotAccessor for v:s slot-access nodes.
func (f *Fact) SlotValue(name string) (value.Value, bool) {
	idx, ok := f.Template.IndexOf(name)
	if !ok || idx >= len(f.Slots) {
		return value.Value{}, false
	}
	return f.Slots[idx], true
}

// SlotValueByIndex looks up a slot by its 0-based position, the
// positional counterpart to name-based SlotValue.
func (f *Fact) SlotValueByIndex(idx int) (value.Value, bool) {
	if idx < 0 || idx >= len(f.Slots) {
		return value.Value{}, false
	}
	return f.Slots[idx], true
}
