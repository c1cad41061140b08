// Package fsm provides the shared error taxonomy for state machine
// transitions: TransitionError for guard failures and ValidationError for
// bad input to an otherwise legal transition.
package fsm

import (
	"errors"
	"fmt"
)

// TransitionError reports an attempted state transition whose guard failed,
// e.g. paying a draft document. Callers cascading a transition to a sibling
// entity may treat it as "already consistent" when the sibling is in the
// target state; everyone else should propagate it.
type TransitionError struct {
	Entity string // "subscription", "document", "transaction"
	From   string // current state
	Action string // attempted action
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s from state %q", e.Entity, e.Action, e.From)
}

// ValidationError reports bad input to a transition or a frozen-entity edit.
// It is always surfaced to the caller and never partially applied.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsTransition reports whether err is (or wraps) a TransitionError.
func IsTransition(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
