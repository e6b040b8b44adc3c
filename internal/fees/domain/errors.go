package fees

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks bad input rejected before any mutation.
	ErrValidation = errors.New("fees: validation failed")
	// ErrConflict marks a retryable conflict with concurrent or stale state.
	ErrConflict = errors.New("fees: conflict")
	// ErrNotFound marks a missing structure, member, assignment, record or payment.
	ErrNotFound = errors.New("fees: not found")
)

// ValidationError describes a rejected field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "fees: invalid input: " + e.Reason
	}
	return fmt.Sprintf("fees: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError describes a state conflict the caller may retry.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return "fees: conflict: " + e.Reason }

func (e *ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError describes a missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("fees: %s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Conflict builds a ConflictError.
func Conflict(format string, args ...any) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

// NotFound builds a NotFoundError.
func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}
