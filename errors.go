package rulecore

import "fmt"

// Kind identifies a category of engine error. The surface parser's
// ParseError and the reserved CycleError are not produced by the core;
// they are listed for completeness of the taxonomy that embedders may
// switch on.
type Kind int

const (
	KindParseError Kind = iota
	KindConstraintError
	KindTypeError
	KindUnboundVariableError
	KindStaleReferenceError
	KindArityError
	KindDomainError
	KindOverflowError
	KindDuplicateConstructError
	KindCycleError
	KindIOError
	KindFormatError
	KindVersionMismatchError
	KindAllocationError
	KindInternalError
)

func (k Kind) String() string {
	switch k {
	case KindParseError:
		return "ParseError"
	case KindConstraintError:
		return "ConstraintError"
	case KindTypeError:
		return "TypeError"
	case KindUnboundVariableError:
		return "UnboundVariableError"
	case KindStaleReferenceError:
		return "StaleReferenceError"
	case KindArityError:
		return "ArityError"
	case KindDomainError:
		return "DomainError"
	case KindOverflowError:
		return "OverflowError"
	case KindDuplicateConstructError:
		return "DuplicateConstructError"
	case KindCycleError:
		return "CycleError"
	case KindIOError:
		return "IOError"
	case KindFormatError:
		return "FormatError"
	case KindVersionMismatchError:
		return "VersionMismatchError"
	case KindAllocationError:
		return "AllocationError"
	case KindInternalError:
		return "InternalError"
	default:
		return "UnknownError"
	}
}

// Error is the engine's recorded-error value: evaluator and constraint
// layers record errors on the engine rather than unwinding through
// Go's panic mechanism, and return a sentinel. Component names the
// subsystem that raised it (e.g. "expr", "fact", "network", "bsave")
// and Code is a short machine-stable token used in structured log
// entries, giving the error router an (error_id, component, code,
// message) shape.
type Error struct {
	Kind      Kind
	Component string
	Code      string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s[%s/%s]: %s: %v", e.Kind, e.Component, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s[%s/%s]: %s", e.Kind, e.Component, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError constructs a recorded Error.
func NewError(kind Kind, component, code, message string) *Error {
	return &Error{Kind: kind, Component: component, Code: code, Message: message}
}

// Wrap attaches a cause to a newly constructed Error.
func Wrap(kind Kind, component, code, message string, cause error) *Error {
	return &Error{Kind: kind, Component: component, Code: code, Message: message, Cause: cause}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
