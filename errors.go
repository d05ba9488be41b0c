package loom

import (
	"errors"
	"fmt"

	"github.com/weavedb/loom/dialect/sql"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("loom: entity not found")

	// ErrTxStarted is returned when attempting to start a new top-level
	// transaction within an existing transaction.
	ErrTxStarted = errors.New("loom: cannot start a transaction within a transaction")
)

// NotFoundError represents an error when an entity is not found.
// A successful query returning an empty collection is not a NotFoundError;
// only the OrFail variants produce it.
type NotFoundError struct {
	label string
	id    any // Optional: the ID that was searched for
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("loom: %s not found (id=%v)", e.label, e.id)
	}
	return fmt.Sprintf("loom: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the entity label.
func (e *NotFoundError) Label() string {
	return e.label
}

// ID returns the ID that was searched for, if available.
func (e *NotFoundError) ID() any {
	return e.id
}

// NewNotFoundError returns a new NotFoundError for the given entity type.
func NewNotFoundError(label string) *NotFoundError {
	return &NotFoundError{label: label}
}

// NewNotFoundErrorWithID returns a new NotFoundError with the ID that was searched for.
func NewNotFoundErrorWithID(label string, id any) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// ConstraintError represents a database constraint violation, carrying the
// violated constraint kind and name when the driver exposes them.
type ConstraintError struct {
	kind sql.ConstraintKind
	name string
	wrap error
}

// Error returns the error string.
func (e *ConstraintError) Error() string {
	if e.name != "" {
		return fmt.Sprintf("loom: %s constraint failed: %s", e.kind, e.name)
	}
	return fmt.Sprintf("loom: %s constraint failed: %v", e.kind, e.wrap)
}

// Unwrap returns the underlying driver error.
func (e *ConstraintError) Unwrap() error { return e.wrap }

// Kind returns the violated constraint kind.
func (e *ConstraintError) Kind() sql.ConstraintKind { return e.kind }

// Name returns the violated constraint or column name, if available.
func (e *ConstraintError) Name() string { return e.name }

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConstraintError
	return errors.As(err, &e)
}

// IsUniqueConstraintError returns true if the error is a unique-constraint
// violation, letting callers distinguish duplicate-key from other failures.
func IsUniqueConstraintError(err error) bool {
	var e *ConstraintError
	return errors.As(err, &e) && e.kind == sql.ConstraintUnique
}

// IsForeignKeyConstraintError returns true if the error is a foreign-key
// constraint violation.
func IsForeignKeyConstraintError(err error) bool {
	var e *ConstraintError
	return errors.As(err, &e) && e.kind == sql.ConstraintForeignKey
}

// wrapConstraint converts a driver error to a *ConstraintError when it is
// a constraint violation, and returns it unchanged otherwise.
func wrapConstraint(err error) error {
	if err == nil {
		return nil
	}
	if kind, name := sql.ViolatedConstraint(err); kind != sql.ConstraintNone {
		return &ConstraintError{kind: kind, name: name, wrap: err}
	}
	return err
}

// ValidationError represents a validation failure for field values. The
// data-access core never produces it; it exists so request-validation
// collaborators share the error taxonomy without conflating their
// failures with query errors.
type ValidationError struct {
	Name string // Field or entity name
	Err  error  // Underlying validation error
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("loom: validation failed for %q: %s", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e)
}

// QueryError wraps a query error with additional context.
type QueryError struct {
	Entity string // Entity type being queried
	Op     string // Operation (e.g., "select", "count", "exist")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("loom: querying %s (%s): %v", e.Entity, e.Op, e.Err)
	}
	return fmt.Sprintf("loom: querying %s: %v", e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}

// MutationError wraps a mutation error with additional context.
type MutationError struct {
	Entity string // Entity type being mutated
	Op     string // Operation (e.g., "create", "update", "delete")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *MutationError) Error() string {
	return fmt.Sprintf("loom: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// IsMutationError returns true if the error is a MutationError.
func IsMutationError(err error) bool {
	if err == nil {
		return false
	}
	var e *MutationError
	return errors.As(err, &e)
}

// RollbackError wraps an error that occurred during a transaction rollback,
// preserving the original error that triggered the rollback.
type RollbackError struct {
	Err      error // Original error that triggered rollback
	Rollback error // Error returned by the rollback itself
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("loom: rollback failed: %v (original: %v)", e.Rollback, e.Err)
}

// Unwrap returns the original error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}
