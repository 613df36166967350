package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/unspun/unspun/pkg/config"
	"github.com/unspun/unspun/pkg/eventbus"
	"github.com/unspun/unspun/pkg/events"
	"github.com/unspun/unspun/pkg/models"
	"github.com/unspun/unspun/pkg/persistence"
)

var (
	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = persistence.ErrJobNotFound
	// ErrRunSummaryNotFound is returned when a run summary is not found.
	ErrRunSummaryNotFound = persistence.ErrRunSummaryNotFound
)

// Jobs is the application service for pipeline jobs: submission,
// inspection, cancellation and cleanup. Execution itself belongs to
// the runner; Submit only records the request and announces it on the
// bus.
type Jobs struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventPublisher
	logger      *slog.Logger
}

// NewJobs creates a new job service. eventBus may be nil, in which
// case submissions are persisted but not announced.
func NewJobs(persistence persistence.Persistence, eventBus eventbus.EventPublisher, logger *slog.Logger) *Jobs {
	return &Jobs{
		persistence: persistence,
		eventBus:    eventBus,
		logger:      logger.With("module", "job_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Jobs) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// SubmitJobRequest carries a manual or scheduled run request.
type SubmitJobRequest struct {
	TriggerSource models.TriggerSource
	Config        map[string]any
}

// Submit records a new pending job and announces it on the event bus.
func (s *Jobs) Submit(ctx context.Context, req SubmitJobRequest) (*models.Job, error) {
	if req.TriggerSource == "" {
		req.TriggerSource = models.TriggerSourceManual
	}

	if req.TriggerSource != models.TriggerSourceManual && req.TriggerSource != models.TriggerSourceScheduled {
		return nil, NewValidationError(
			"Submit",
			"INVALID_TRIGGER_SOURCE",
			fmt.Sprintf("invalid trigger source '%s', allowed: manual, scheduled", req.TriggerSource),
			ErrInvalidTriggerSource,
		)
	}

	if err := config.ValidateJobConfig(req.Config); err != nil {
		return nil, NewValidationError("Submit", "INVALID_JOB_CONFIG", err.Error(), ErrInvalidJobConfig)
	}

	job := &models.Job{
		ID:            uuid.New().String(),
		TraceID:       uuid.New().String(),
		Config:        req.Config,
		Status:        models.JobStatusPending,
		TriggerSource: req.TriggerSource,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.persistence.JobRepository().Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.announce(ctx, job)

	return job, nil
}

// announce publishes the job request. A publish failure does not undo
// the submission: the job stays pending and a scheduler sweep can
// still pick it up.
func (s *Jobs) announce(ctx context.Context, job *models.Job) {
	if s.eventBus == nil {
		return
	}

	event := events.JobRequested{
		BaseEvent:     events.NewBaseEvent(events.JobRequestedEvent, job.ID),
		TriggerSource: job.TriggerSource,
		Config:        job.Config,
	}

	if err := s.eventBus.Publish(ctx, job.ID, event); err != nil {
		s.logger.Error("Failed to publish job request", "job_id", job.ID, "error", err)
	}
}

// FetchByID retrieves a job by its ID.
func (s *Jobs) FetchByID(ctx context.Context, id string) (*models.Job, error) {
	return s.persistence.JobRepository().GetByID(ctx, id)
}

// FetchRunSummary retrieves the latest run summary produced for a job.
func (s *Jobs) FetchRunSummary(ctx context.Context, jobID string) (*models.RunSummary, error) {
	if _, err := s.persistence.JobRepository().GetByID(ctx, jobID); err != nil {
		return nil, err
	}

	return s.persistence.RunSummaryRepository().GetByJobID(ctx, jobID)
}

// ListJobsRequest contains options for listing jobs.
type ListJobsRequest struct {
	Limit  int
	Offset int
	Status *models.JobStatus
}

// ListJobsResponse contains one page of jobs.
type ListJobsResponse struct {
	Jobs        []*models.Job `json:"jobs"`
	TotalCount  int           `json:"total_count"`
	HasNextPage bool          `json:"has_next_page"`
}

// List retrieves jobs with filtering and pagination, newest first.
func (s *Jobs) List(ctx context.Context, req ListJobsRequest) (*ListJobsResponse, error) {
	if err := s.validateListJobsRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	result, err := s.persistence.JobRepository().List(ctx, persistence.ListJobsOptions{
		Limit:  req.Limit,
		Offset: req.Offset,
		Status: req.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return &ListJobsResponse{
		Jobs:        result.Jobs,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

// validateListJobsRequest validates and sets defaults for the request.
func (s *Jobs) validateListJobsRequest(req *ListJobsRequest) error {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.Status != nil {
		allowedStatuses := []models.JobStatus{
			models.JobStatusPending,
			models.JobStatusRunning,
			models.JobStatusCompleted,
			models.JobStatusPartial,
			models.JobStatusFailed,
			models.JobStatusCancelled,
		}

		if !slices.Contains(allowedStatuses, *req.Status) {
			return NewValidationError(
				"validateListJobsRequest",
				"INVALID_STATUS",
				fmt.Sprintf("invalid status '%s'", *req.Status),
				ErrInvalidStatus,
			)
		}
	}

	return nil
}

// Cancel requests cooperative cancellation of a job. The running
// coordinator observes the flag at the next stage boundary; a job that
// already finished cannot be cancelled.
func (s *Jobs) Cancel(ctx context.Context, jobID string) error {
	job, err := s.persistence.JobRepository().GetByID(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Status.IsTerminal() {
		return &ServiceError{
			Op:      "Cancel",
			Code:    "JOB_FINISHED",
			Message: fmt.Sprintf("job %s already finished with status '%s'", jobID, job.Status),
			Err:     ErrJobFinished,
		}
	}

	if err := s.persistence.JobRepository().RequestCancel(ctx, jobID); err != nil {
		return fmt.Errorf("failed to request cancellation: %w", err)
	}

	return nil
}

// Delete removes a finished job. Pending and running jobs must be
// cancelled first.
func (s *Jobs) Delete(ctx context.Context, jobID string) error {
	job, err := s.persistence.JobRepository().GetByID(ctx, jobID)
	if err != nil {
		return err
	}

	if !job.Status.IsTerminal() {
		return &ServiceError{
			Op:      "Delete",
			Code:    "JOB_IN_PROGRESS",
			Message: fmt.Sprintf("job %s is '%s'; cancel it before deleting", jobID, job.Status),
			Err:     ErrJobInProgress,
		}
	}

	if err := s.persistence.JobRepository().Delete(ctx, jobID); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	return nil
}
