package symjit

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies the category of a symjit error. Callers that need to
// branch on failure mode should compare against these values with
// errors.As, never by matching on Error() text.
type Kind int

const (
	// KindUnknown is the zero value for a Kind that hasn't been set. The
	// differentiator also returns it for an unrecognized operator, function
	// or node tag, which the store's builders never produce.
	KindUnknown Kind = iota

	KindNoSession
	KindManagement
	KindTypeMismatch
	KindReassignment
	KindAlreadyFrozen
	KindNotFrozen
	KindFrozen
	KindIsNotLeaf
	KindWrongVar
	KindVarIsConstant
	KindDifferentiationRefused
	KindUnexpectedLambda
	KindGradientDimMismatch
	KindNotEnoughExtras
	KindContextMismatch
	KindPrerequisiteNotMet
)

var kindNames = map[Kind]string{
	KindUnknown:                "Unknown",
	KindNoSession:              "NoSession",
	KindManagement:             "Management",
	KindTypeMismatch:           "TypeMismatch",
	KindReassignment:           "Reassignment",
	KindAlreadyFrozen:          "AlreadyFrozen",
	KindNotFrozen:              "NotFrozen",
	KindFrozen:                 "Frozen",
	KindIsNotLeaf:              "IsNotLeaf",
	KindWrongVar:               "WrongVar",
	KindVarIsConstant:          "VarIsConstant",
	KindDifferentiationRefused: "DifferentiationRefused",
	KindUnexpectedLambda:       "UnexpectedLambda",
	KindGradientDimMismatch:    "GradientDimMismatch",
	KindNotEnoughExtras:        "NotEnoughExtras",
	KindContextMismatch:        "ContextMismatch",
	KindPrerequisiteNotMet:     "PrerequisiteNotMet",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the single error type surfaced by this package. Every failure
// mode in the engine is one of these, tagged with a Kind so a caller can
// switch on failure category without parsing strings.
type Error struct {
	kind Kind
	msg  string
	err  error // underlying cause, possibly nil
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("symjit: %s: %s: %v", e.kind, e.msg, e.err)
	}
	return fmt.Sprintf("symjit: %s: %s", e.kind, e.msg)
}

// Kind reports the category of this error.
func (e *Error) Kind() Kind { return e.kind }

// Unwrap exposes the underlying cause, if any, for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.err }

func newErr(kind Kind, format string, args ...interface{}) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func wrapErr(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), err: errors.Wrap(err, kind.String())}
}

// Is reports whether err is a symjit *Error of the given kind. It is the
// recommended way for callers to branch on error category.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.kind == kind
}
