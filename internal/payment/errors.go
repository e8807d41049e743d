package payment

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by capture/refund/lookup for an order id with
// no ledger entry.
var ErrNotFound = errors.New("payment not found")

// ValidationError reports malformed or missing input. It never implies
// a ledger mutation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// ConflictError reports a state machine precondition violation: wrong
// current status for the requested transition, or a capture amount that
// does not match the authorized amount.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

func validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...any) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}
