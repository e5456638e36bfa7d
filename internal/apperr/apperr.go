// Package apperr defines the error kinds every operation boundary resolves to.
// Services wrap these sentinels with context (fmt.Errorf + %w); handlers map
// them to HTTP statuses with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: the table/order/product does not exist or is not visible
	// to the caller's tenant.
	ErrNotFound = errors.New("not found")

	// ErrConflict: a state-transition or locking conflict (table already
	// occupied, lock timeout). Safe to retry only when no write happened.
	ErrConflict = errors.New("conflict")

	// ErrValidation: malformed input (non-positive quantity, disallowed
	// modifier). The message names the offending field.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidState: the operation is not legal in the current order or
	// table status.
	ErrInvalidState = errors.New("invalid state")

	// ErrQuotaExceeded: propagated unchanged from the plan limit gate.
	ErrQuotaExceeded = errors.New("plan quota exceeded")
)

// NotFound wraps ErrNotFound naming the missing entity.
func NotFound(what string) error {
	return fmt.Errorf("%s: %w", what, ErrNotFound)
}

// Conflict wraps ErrConflict with a reason.
func Conflict(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrConflict)...)
}

// Validation wraps ErrValidation with a reason.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}

// InvalidState wraps ErrInvalidState with a reason.
func InvalidState(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalidState)...)
}

// QuotaExceeded wraps ErrQuotaExceeded with the exhausted resource.
func QuotaExceeded(resource string, limit int32) error {
	return fmt.Errorf("%s limit of %d reached: %w", resource, limit, ErrQuotaExceeded)
}
