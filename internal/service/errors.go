package service

import "errors"

// Common service errors - sentinel errors used across service implementations.
// Errors coming from the store are returned unchanged, so callers can match
// store sentinels such as store.ErrPoolExhausted with errors.Is.
var (
	// ErrNilDependency is returned when a service is constructed without a
	// required collaborator.
	ErrNilDependency = errors.New("required dependency is nil")

	// ErrInvalidLimit is returned when a batch claim asks for fewer than one task.
	ErrInvalidLimit = errors.New("limit must be positive")
)
