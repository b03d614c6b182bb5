// Package value implements the dynamically typed value universe the
// expression evaluator and fact store operate over: interned atoms,
// non-interned structurally-equal multifields, and the tagged Value
// union that slot storage and activation frames pass around.
package value

import "rulecore/internal/atomtab"

// Multifield is an ordered, non-interned sequence of atoms. Equality is
// structural, not by identity: two multifields with the same elements in
// the same order are equal even if separately allocated.
type Multifield struct {
	elems    []*atomtab.Atom
	refCount int32
}

// NewMultifield takes ownership of elems (callers should not retain the
// slice) and starts its reference count at zero, matching a freshly
// interned atom's initial state.
func NewMultifield(elems []*atomtab.Atom) *Multifield {
	return &Multifield{elems: elems}
}

// Len returns the number of elements.
func (m *Multifield) Len() int { return len(m.elems) }

// At returns the element at the given 1-based CLIPS-style index. Callers
// in internal/expr are responsible for bounds checking and raising the
// "out-of-range multifield index" evaluation error on miss.
func (m *Multifield) At(oneBased int) (*atomtab.Atom, bool) {
	if oneBased < 1 || oneBased > len(m.elems) {
		return nil, false
	}
	return m.elems[oneBased-1], true
}

// Slice returns a new Multifield holding the (1-based, inclusive) range
// [begin, end]. An empty or invalid range yields a zero-length
// Multifield, matching CLIPS's permissive multifield slicing.
func (m *Multifield) Slice(begin, end int) *Multifield {
	if begin < 1 {
		begin = 1
	}
	if end > len(m.elems) {
		end = len(m.elems)
	}
	if begin > end {
		return NewMultifield(nil)
	}
	out := make([]*atomtab.Atom, end-begin+1)
	copy(out, m.elems[begin-1:end])
	return NewMultifield(out)
}

// Elements returns the underlying slice. Callers must not mutate it.
func (m *Multifield) Elements() []*atomtab.Atom { return m.elems }

// Equal reports structural equality: same length, pointer-equal atoms at
// each position (atom pointer equality is sound since atoms are
// interned).
func (m *Multifield) Equal(other *Multifield) bool {
	if m == other {
		return true
	}
	if other == nil || len(m.elems) != len(other.elems) {
		return false
	}
	for i, a := range m.elems {
		if a != other.elems[i] {
			return false
		}
	}
	return true
}

// HashCode folds each element's content hash, order-sensitive to match
// structural equality.
func (m *Multifield) HashCode() uint64 {
	var h uint64 = 14695981039346656037 // FNV offset basis
	for _, a := range m.elems {
		h ^= a.HashCode()
		h *= 1099511628211 // FNV prime
	}
	return h
}

func (m *Multifield) RefCount() int32 { return m.refCount }
func (m *Multifield) Retain()         { m.refCount++ }
func (m *Multifield) Release() {
	if m.refCount > 0 {
		m.refCount--
	}
}

// FactHandle is the minimal view of a fact that the value/expr layers
// need, kept as an interface here to avoid internal/value depending on
// internal/fact (which itself stores Values in slots).
type FactHandle interface {
	FactIndex() uint64
	Garbage() bool
}

// InstanceHandle is the analogous minimal view for the (out-of-scope
// but referenceable) object system's instances.
type InstanceHandle interface {
	InstanceName() *atomtab.Atom
	Garbage() bool
}

// Tag identifies which arm of the Value union is populated.
type Tag int

const (
	TagAtom Tag = iota
	TagMultifield
	TagFact
	TagInstance
)

// Value is the tagged union underlying the engine's dynamic type
// system: an atom pointer, a multifield handle, a fact handle, or an
// instance handle. The
// (Begin, Range) pair is meaningful only when Multifield != nil and
// marks this Value as a "UDF value" denoting a slice of that multifield
// rather than the whole thing — consulted by internal/expr's multifield
// built-ins, not by equality or storage.
type Value struct {
	tag        Tag
	atom       *atomtab.Atom
	multifield *Multifield
	fact       FactHandle
	instance   InstanceHandle

	Begin, Range int
}

// FromAtom wraps an interned atom.
func FromAtom(a *atomtab.Atom) Value { return Value{tag: TagAtom, atom: a} }

// FromMultifield wraps a multifield, with Begin/Range describing the
// full-length default slice.
func FromMultifield(m *Multifield) Value {
	return Value{tag: TagMultifield, multifield: m, Begin: 1, Range: m.Len()}
}

// FromMultifieldSlice wraps a multifield but marks it as a UDF slice view
// over [begin, begin+length-1].
func FromMultifieldSlice(m *Multifield, begin, length int) Value {
	return Value{tag: TagMultifield, multifield: m, Begin: begin, Range: length}
}

// FromFact wraps a fact handle.
func FromFact(f FactHandle) Value { return Value{tag: TagFact, fact: f} }

// FromInstance wraps an instance handle.
func FromInstance(i InstanceHandle) Value { return Value{tag: TagInstance, instance: i} }

func (v Value) Tag() Tag                      { return v.tag }
func (v Value) IsAtom() bool                  { return v.tag == TagAtom }
func (v Value) IsMultifield() bool            { return v.tag == TagMultifield }
func (v Value) IsFact() bool                  { return v.tag == TagFact }
func (v Value) IsInstance() bool              { return v.tag == TagInstance }
func (v Value) Atom() *atomtab.Atom           { return v.atom }
func (v Value) MultifieldValue() *Multifield  { return v.multifield }
func (v Value) Fact() FactHandle              { return v.fact }
func (v Value) Instance() InstanceHandle      { return v.instance }

// Kind returns the atomtab.Kind of an atom-tagged Value, or
// atomtab.KindVoid for non-atom tags — used by the evaluator's type-mask
// checks.
func (v Value) Kind() atomtab.Kind {
	if v.tag == TagAtom && v.atom != nil {
		return v.atom.Kind
	}
	return atomtab.KindVoid
}

// Stale reports whether this Value refers to a fact or instance that has
// since been retracted/deleted — a stale reference is a hard error on
// dereference for slot access.
func (v Value) Stale() bool {
	switch v.tag {
	case TagFact:
		return v.fact == nil || v.fact.Garbage()
	case TagInstance:
		return v.instance == nil || v.instance.Garbage()
	default:
		return false
	}
}

// Equal is structural equality over the Value union: atoms compare by
// pointer identity (sound since interned), multifields structurally,
// facts/instances by identity.
func (v Value) Equal(other Value) bool {
	if v.tag != other.tag {
		return false
	}
	switch v.tag {
	case TagAtom:
		return v.atom == other.atom
	case TagMultifield:
		return v.multifield.Equal(other.multifield)
	case TagFact:
		return v.fact == other.fact
	case TagInstance:
		return v.instance == other.instance
	default:
		return false
	}
}

// HashCode returns a content hash consistent with Equal: equal Values
// always hash equal. Fact/instance handles hash by their pointer
// identity's bit pattern via the handle's FactIndex/InstanceName;
// facts and instances themselves never participate in content-hash
// duplicate suppression, only slot values do.
func (v Value) HashCode() uint64 {
	switch v.tag {
	case TagAtom:
		if v.atom == nil {
			return 0
		}
		return v.atom.HashCode()
	case TagMultifield:
		if v.multifield == nil {
			return 0
		}
		return v.multifield.HashCode()
	case TagFact:
		if v.fact == nil {
			return 0
		}
		return v.fact.FactIndex()*1099511628211 + 1
	case TagInstance:
		if v.instance == nil {
			return 0
		}
		return v.instance.InstanceName().HashCode()*1099511628211 + 2
	default:
		return 0
	}
}
