package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTaskStatus is returned when a status is not one of the known values.
	ErrInvalidTaskStatus = errors.New("invalid task status")

	// ErrInvalidTransition is returned when a status change leaves a terminal
	// state or skips the claim step.
	ErrInvalidTransition = errors.New("invalid task status transition")

	// ErrInvalidPayload is returned when a payload cannot be reduced to a JSON document.
	ErrInvalidPayload = errors.New("invalid task payload")
)
