package expr

// TypeMask is a bitmask over value.Value kinds, used by FuncDef to
// declare expected argument and return types, so a type mismatch can
// be reported as expected-vs-actual type mask.
type TypeMask uint32

const (
	TypeSymbol TypeMask = 1 << iota
	TypeString
	TypeInteger
	TypeFloat
	TypeMultifield
	TypeFact
	TypeInstance
	TypeInstanceName
	TypeExternalAddress
	TypeVoid
)

// TypeAny accepts any value kind.
const TypeAny TypeMask = TypeSymbol | TypeString | TypeInteger | TypeFloat | TypeMultifield |
	TypeFact | TypeInstance | TypeInstanceName | TypeExternalAddress | TypeVoid

// TypeNumber accepts either numeric kind, the common case for arithmetic
// built-ins.
const TypeNumber TypeMask = TypeInteger | TypeFloat
