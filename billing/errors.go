/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify with errors.Is / errors.As; the API layer maps the
  classes to HTTP status codes.

ERROR CATEGORIES:
  1. Input errors - malformed cadence, window or subscription (fail fast)
  2. Store errors - missing or duplicate records

None of these are retryable. The engine performs no I/O of its own, so an
input error always means the caller handed over bad data.

SEE ALSO:
  - projection.go: ErrInvalidCadence, ErrInvalidWindow
  - subscription.go: ErrInvalidSubscription
  - store/sqlite/sqlite.go: maps driver errors onto the store sentinels
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidCadence is returned for a non-positive quantity or an unknown unit.
	ErrInvalidCadence = errors.New("invalid cadence")

	// ErrInvalidWindow is returned when a window starts after it ends.
	ErrInvalidWindow = errors.New("invalid window: start after end")

	// ErrInvalidSubscription is returned when a subscription record fails validation.
	ErrInvalidSubscription = errors.New("invalid subscription")

	// ErrSubscriptionNotFound is returned when a referenced subscription doesn't exist.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrDuplicateSubscription is returned when creating a subscription whose ID exists.
	ErrDuplicateSubscription = errors.New("duplicate subscription id")

	// ErrStoreRequired is returned when an operation requires a specific store capability.
	ErrStoreRequired = errors.New("operation requires extended store interface")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// CadenceError describes why a cadence was rejected.
type CadenceError struct {
	Unit     Unit
	Quantity int
	Reason   string
}

func (e *CadenceError) Error() string {
	return fmt.Sprintf("invalid cadence (unit %q, quantity %d): %s", e.Unit, e.Quantity, e.Reason)
}

func (e *CadenceError) Unwrap() error {
	return ErrInvalidCadence
}

// WindowError carries the offending bounds.
type WindowError struct {
	Start Date
	End   Date
}

func (e *WindowError) Error() string {
	return fmt.Sprintf("invalid window: start %s is after end %s", e.Start, e.End)
}

func (e *WindowError) Unwrap() error {
	return ErrInvalidWindow
}

// ValidationError names the field of a subscription that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid subscription: %s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidSubscription
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidCadence) ||
		errors.Is(err, ErrInvalidWindow) ||
		errors.Is(err, ErrInvalidSubscription)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSubscriptionNotFound)
}

// IsConflict returns true if the error indicates a uniqueness violation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateSubscription)
}
