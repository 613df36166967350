// Package persistence error types shared by every driver.
package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound indicates a job was not found by the given identifier.
	ErrJobNotFound = errors.New("job not found")

	// ErrRunSummaryNotFound indicates a run summary was not found.
	ErrRunSummaryNotFound = errors.New("run summary not found")

	// ErrJobAlreadyExists indicates a job with the same identifier already exists.
	ErrJobAlreadyExists = errors.New("job already exists")
)

// JobError wraps job-related persistence failures with operation
// context.
type JobError struct {
	Op    string // Operation being performed (e.g. "GetByID", "Save")
	JobID string
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s operation failed for job %s: %v", e.Op, e.JobID, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

func (e *JobError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewJobError creates a job error with context.
func NewJobError(op, jobID string, err error) *JobError {
	return &JobError{Op: op, JobID: jobID, Err: err}
}

// IsJobNotFound checks if an error indicates a missing job.
func IsJobNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound)
}

// IsRunSummaryNotFound checks if an error indicates a missing run summary.
func IsRunSummaryNotFound(err error) bool {
	return errors.Is(err, ErrRunSummaryNotFound)
}
