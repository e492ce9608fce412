/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place. Sentinels for errors.Is checks, structured
  types carrying entity/field context for callers that surface messages.

ERROR CATEGORIES:
  1. Validation errors - model-level invariant violations, never retried
  2. Conflict errors - duplicate assignments, locked resources
  3. Lookup errors - missing employees/categories/policies/entries

TRANSACTION CONTRACT:
  Every synchronous error aborts the enclosing transaction; no partial
  assignment or ledger mutation is ever persisted. Async recompute failures
  leave entries flagged being_processed and are retried by the task runner.
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
	// ErrValidation is the root of all model-invariant failures. These
	// signal a caller bug and must not be retried.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateAssignment is returned when a create would produce two
	// non-reset assignments at the same (employee, category, date).
	ErrDuplicateAssignment = errors.New("duplicate policy assignment")

	// ErrNotFound is returned when a referenced employee, category, policy,
	// assignment or entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrLockedResource is returned when deleting something that still has
	// dependent balance entries within its validity window.
	ErrLockedResource = errors.New("cannot delete, has related balance")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError carries the failing entity and field-level messages.
type ValidationError struct {
	Entity string
	ID     string
	Fields map[string][]string
}

func NewValidationError(entity, id string) *ValidationError {
	return &ValidationError{Entity: entity, ID: id, Fields: map[string][]string{}}
}

func (e *ValidationError) Add(field, message string) {
	e.Fields[field] = append(e.Fields[field], message)
}

// OrNil returns the error only when at least one field message was added.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for f, msgs := range e.Fields {
		fields = append(fields, f+" "+strings.Join(msgs, ", "))
	}
	sort.Strings(fields)
	return fmt.Sprintf("%s %s invalid: %s", e.Entity, e.ID, strings.Join(fields, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// DuplicateAssignmentError identifies the conflicting timeline slot.
type DuplicateAssignmentError struct {
	EmployeeID  string
	CategoryID  string
	EffectiveAt Date
	ExistingID  string
}

func (e *DuplicateAssignmentError) Error() string {
	return fmt.Sprintf("assignment already exists for employee %s at %s (existing: %s)",
		e.EmployeeID, e.EffectiveAt, e.ExistingID)
}

func (e *DuplicateAssignmentError) Unwrap() error { return ErrDuplicateAssignment }

// NotFoundError names the missing record.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// LockedResourceError names the record blocked by dependents.
type LockedResourceError struct {
	Entity string
	ID     string
	// Dependents describes what still references the record.
	Dependents string
}

func (e *LockedResourceError) Error() string {
	return fmt.Sprintf("%s %s cannot be deleted: %s", e.Entity, e.ID, e.Dependents)
}

func (e *LockedResourceError) Unwrap() error { return ErrLockedResource }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrDuplicateAssignment) ||
		errors.Is(err, ErrLockedResource)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
