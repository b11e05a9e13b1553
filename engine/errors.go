/*
errors.go - Centralized error types for the dose engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers branch on them with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Validation errors - Malformed medication input, corrected by the user
  2. Expected conditions - Already taken, nothing to undo (never crashes)
  3. Persistence errors - Store read/write failures, propagated unchanged
  4. Notification errors - Reminder scheduling failures, logged not returned

SEE ALSO:
  - validate.go: Produces ValidationError
  - store.go: Wraps store failures in PersistenceError
  - tracker/tracker.go: Produces ErrAlreadyTaken / ErrNothingToUndo
*/
package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrAlreadyTaken is returned when a dose was already recorded today.
	ErrAlreadyTaken = errors.New("dose already taken today")

	// ErrNothingToUndo is returned when there is no taken dose to reverse.
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrDoseNotFound is returned by the ledger when no taken event exists.
	ErrDoseNotFound = errors.New("dose event not found")

	// ErrMedicationNotFound is returned when a referenced medication doesn't exist.
	ErrMedicationNotFound = errors.New("medication not found")

	// ErrPersistence is the root of every PersistenceError.
	ErrPersistence = errors.New("persistence failure")

	// ErrConcurrentModification is returned when the stored version moved
	// between read and write.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrNotificationScheduling is returned by reminder schedulers.
	ErrNotificationScheduling = errors.New("notification scheduling failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError lists the offending fields and a user-facing message each.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// PersistenceError wraps a failure of the underlying store.
type PersistenceError struct {
	Op         string // "get_all", "put", "remove"
	Collection string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid input or an
// expected no-op condition.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrAlreadyTaken) ||
		errors.Is(err, ErrNothingToUndo)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMedicationNotFound) ||
		errors.Is(err, ErrDoseNotFound)
}
