package shared

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced by the quoting engine and its services.
type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"
	KindInvalidConfig     Kind = "invalid_config"
	KindMissingCondition  Kind = "missing_condition"
	KindImmutable         Kind = "immutable"
	KindDuplicateName     Kind = "duplicate_name"
	KindNotFound          Kind = "not_found"
	KindBusy              Kind = "busy"
	KindInvalidTransition Kind = "invalid_transition"
)

var (
	// ErrInvalidInput indicates rejected caller input (negative money, unknown ids).
	ErrInvalidInput = &Error{Kind: KindInvalidInput}
	// ErrInvalidConfig indicates an unusable pricing configuration.
	ErrInvalidConfig = &Error{Kind: KindInvalidConfig}
	// ErrMissingCondition occurs when closing is attempted without a condition.
	ErrMissingCondition = &Error{Kind: KindMissingCondition}
	// ErrImmutable occurs when an authorised quote is mutated.
	ErrImmutable = &Error{Kind: KindImmutable}
	// ErrDuplicateName indicates a quote name collision within a promise.
	ErrDuplicateName = &Error{Kind: KindDuplicateName}
	// ErrNotFound indicates resource not found.
	ErrNotFound = &Error{Kind: KindNotFound}
	// ErrBusy indicates another mutating call is in flight for the same quote.
	ErrBusy = &Error{Kind: KindBusy}
	// ErrInvalidTransition indicates an illegal lifecycle move.
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
)

// Error is a kinded failure. Two errors match under errors.Is when their
// kinds are equal, so callers compare against the sentinels above.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

// E builds a kinded error for the given operation.
func E(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind only.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf reports the kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var v *ValidationError
	if errors.As(err, &v) {
		return KindInvalidInput
	}
	return ""
}
