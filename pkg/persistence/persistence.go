// Package persistence provides the storage abstraction for jobs and
// run summaries. Job state must survive process restarts so an
// operator can inspect a run mid-flight.
package persistence

import (
	"context"

	"github.com/unspun/unspun/pkg/models"
)

// ListJobsOptions filters and paginates job listings.
type ListJobsOptions struct {
	Limit  int
	Offset int
	Status *models.JobStatus
}

// JobListResult is one page of jobs.
type JobListResult struct {
	Jobs        []*models.Job
	TotalCount  int
	HasNextPage bool
}

// JobRepository stores pipeline jobs. UpdateStage and the cancellation
// pair are called while a run is in flight; everything else brackets
// it.
type JobRepository interface {
	Save(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, id string) (*models.Job, error)
	List(ctx context.Context, opts ListJobsOptions) (*JobListResult, error)
	Delete(ctx context.Context, id string) error

	// UpdateStage persists the current stage name and its progress map.
	UpdateStage(ctx context.Context, jobID string, stage string, progress map[string]any) error

	// RequestCancel flips the cancel flag; the coordinator only ever
	// reads it, via IsCancelled, at stage boundaries.
	RequestCancel(ctx context.Context, jobID string) error
	IsCancelled(ctx context.Context, jobID string) (bool, error)
}

// RunSummaryRepository stores run summaries.
type RunSummaryRepository interface {
	Save(ctx context.Context, summary *models.RunSummary) error
	GetByID(ctx context.Context, id string) (*models.RunSummary, error)
	GetByJobID(ctx context.Context, jobID string) (*models.RunSummary, error)

	// AttachEvaluation adds the optional evaluation stage's result to
	// an existing summary.
	AttachEvaluation(ctx context.Context, id string, eval *models.EvaluationResult) error
}

// Persistence is the storage entry point handed to the coordinator,
// services, and API.
type Persistence interface {
	JobRepository() JobRepository
	RunSummaryRepository() RunSummaryRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
