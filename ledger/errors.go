/*
errors.go - Centralized error types for the ledger and the labor engine

PURPOSE:
  All error kinds in one place. The labor package and the stores return
  these (or wrap them) so callers can branch with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Validation  - bad input (hours <= 0, missing fields)         -> 400
  2. Not found   - unknown time entry, employee, project, record  -> 404
  3. Conflict    - optimistic version mismatch, lock not obtained -> 409
  4. Consistency - paired write could not be committed atomically -> 503

USAGE:
  if errors.Is(err, ledger.ErrNotFound) { ... }

  var conflict *ledger.ConflictError
  if errors.As(err, &conflict) { retry later }

SEE ALSO:
  - labor/reconciler.go: Retry policy per category
  - api/handlers.go: HTTP status mapping
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for input that breaks a business rule.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced entity doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrConcurrentModification is returned when the optimistic version
	// check fails at commit.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrLockNotObtained is returned when the per-entity lock could not be taken in time.
	ErrLockNotObtained = errors.New("lock not obtained")

	// ErrConsistency is returned when a time entry mutation and its ledger
	// record could not be committed together.
	ErrConsistency = errors.New("ledger consistency failure")

	// ErrDuplicate is returned when a unique key already exists.
	ErrDuplicate = errors.New("duplicate key")

	// ErrAlreadyReversed is returned when a record has already been offset.
	ErrAlreadyReversed = errors.New("record already reversed")

	// ErrLinkedRecord is returned when a manual operation targets a record
	// owned by a time entry.
	ErrLinkedRecord = errors.New("record is linked to a time entry")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is shorthand for a *ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Kind string // "time entry", "employee", "project", "expense"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound is shorthand for a *NotFoundError.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// ConsistencyError reports that the paired write was rolled back.
type ConsistencyError struct {
	Op          string // "log", "update", "delete"
	TimeEntryID TimeEntryID
	Err         error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("could not %s time entry %s, try again: %v", e.Op, e.TimeEntryID, e.Err)
}

func (e *ConsistencyError) Unwrap() []error { return []error{ErrConsistency, e.Err} }

// ConflictError is surfaced when concurrent writers kept winning.
type ConflictError struct {
	TimeEntryID TimeEntryID
	Attempts    int
	Err         error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("time entry %s was modified concurrently (%d attempts), retry the request",
		e.TimeEntryID, e.Attempts)
}

func (e *ConflictError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConcurrentModification}
	}
	return []error{ErrConcurrentModification, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrLockNotObtained) ||
		errors.Is(err, ErrConsistency)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrAlreadyReversed) ||
		errors.Is(err, ErrLinkedRecord) ||
		errors.Is(err, ErrDuplicate)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Outcome classifies an error into a short label for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConsistency):
		return "consistency"
	case errors.Is(err, ErrConcurrentModification), errors.Is(err, ErrLockNotObtained):
		return "conflict"
	case IsClientError(err):
		return "rejected"
	default:
		return "error"
	}
}
