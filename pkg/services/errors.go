// Package services provides the job-facing application layer between
// the API and the persistence and event infrastructure.
package services

import (
	"errors"
	"fmt"
)

// Business logic errors. Validation errors map to 4xx responses,
// conflicts to 409.
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInvalidStatus        = errors.New("invalid job status")
	ErrInvalidTriggerSource = errors.New("invalid trigger source")
	ErrInvalidJobConfig     = errors.New("invalid job configuration")

	// Business logic conflicts (409 Conflict).
	ErrJobFinished   = errors.New("job already reached a terminal state")
	ErrJobInProgress = errors.New("job is still running")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error should map to HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidTriggerSource) ||
		errors.Is(err, ErrInvalidJobConfig)
}

// IsConflictError checks if an error should map to HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrJobFinished) ||
		errors.Is(err, ErrJobInProgress)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
