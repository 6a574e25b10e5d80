package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	// Lookups by id report absence through Option instead; this error is for
	// operations that cannot proceed without the entity.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored or violates a database constraint.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrTransactionFailed is returned when a transaction cannot be started,
	// committed, or rolled back. Errors raised by the unit of work itself are
	// returned unchanged and never wrapped with this error.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrPoolExhausted is returned when no pooled connection became free
	// before the acquisition timeout elapsed. It is never retried internally.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrConnectionFault is returned when the database link is down and could
	// not be re-established within the reconnect timeout.
	ErrConnectionFault = errors.New("database connection fault")

	// ErrPoolClosed is returned when a connection is requested from a pool
	// that has been shut down.
	ErrPoolClosed = errors.New("connection pool closed")

	// ErrCronTaskNotFound indicates that the requested cron task does not exist in the store.
	ErrCronTaskNotFound = fmt.Errorf("%w: cron task", ErrNotFound)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsPoolError reports whether err came from the connection layer rather
// than from a statement. Callers use it to decide whether a whole poll cycle
// should back off instead of marking a single task as failed.
func IsPoolError(err error) bool {
	return errors.Is(err, ErrPoolExhausted) ||
		errors.Is(err, ErrConnectionFault) ||
		errors.Is(err, ErrPoolClosed)
}

// StoreError is a custom error type for store-specific errors with additional context.
type StoreError struct {
	Entity    string // The entity type (e.g., "cron_task")
	Operation string // The operation that failed (e.g., "create", "update_status")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf(
			"%s operation on %s failed: %s: %v",
			e.Operation,
			e.Entity,
			e.Message,
			e.Err,
		)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given entity, operation, message, and wrapped error.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
