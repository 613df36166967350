package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/unspun/unspun/pkg/models"
	"github.com/unspun/unspun/pkg/persistence"
)

// JobRepository handles job-related database operations.
type JobRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db *sql.DB, logger *slog.Logger) *JobRepository {
	return &JobRepository{db: db, logger: logger}
}

const jobColumns = `
	id
  , trace_id
  , config
  , status
  , trigger_source
  , current_stage
  , stage_progress
  , errors
  , cancel_requested
  , run_summary_id
  , created_at
  , started_at
  , finished_at
`

// Save upserts the full job record.
func (r *JobRepository) Save(ctx context.Context, job *models.Job) error {
	config, err := json.Marshal(job.Config)
	if err != nil {
		return persistence.NewJobError("Save", job.ID, err)
	}

	progress, err := json.Marshal(job.StageProgress)
	if err != nil {
		return persistence.NewJobError("Save", job.ID, err)
	}

	errorList, err := json.Marshal(job.Errors)
	if err != nil {
		return persistence.NewJobError("Save", job.ID, err)
	}

	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			config = EXCLUDED.config,
			status = EXCLUDED.status,
			current_stage = EXCLUDED.current_stage,
			stage_progress = EXCLUDED.stage_progress,
			errors = EXCLUDED.errors,
			cancel_requested = EXCLUDED.cancel_requested,
			run_summary_id = EXCLUDED.run_summary_id,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at
	`

	_, err = r.db.ExecContext(ctx, query,
		job.ID,
		job.TraceID,
		config,
		job.Status,
		job.TriggerSource,
		job.CurrentStage,
		progress,
		errorList,
		job.CancelRequested,
		job.RunSummaryID,
		job.CreatedAt,
		job.StartedAt,
		job.FinishedAt,
	)
	if err != nil {
		return persistence.NewJobError("Save", job.ID, err)
	}

	return nil
}

// GetByID loads one job.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := r.scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewJobError("GetByID", id, persistence.ErrJobNotFound)
		}

		return nil, persistence.NewJobError("GetByID", id, err)
	}

	return job, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *JobRepository) scanJob(row rowScanner) (*models.Job, error) {
	var (
		job       models.Job
		config    []byte
		progress  []byte
		errorList []byte
	)

	err := row.Scan(
		&job.ID,
		&job.TraceID,
		&config,
		&job.Status,
		&job.TriggerSource,
		&job.CurrentStage,
		&progress,
		&errorList,
		&job.CancelRequested,
		&job.RunSummaryID,
		&job.CreatedAt,
		&job.StartedAt,
		&job.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(config) > 0 {
		if err := json.Unmarshal(config, &job.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job config: %w", err)
		}
	}

	if len(progress) > 0 {
		if err := json.Unmarshal(progress, &job.StageProgress); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stage progress: %w", err)
		}
	}

	if len(errorList) > 0 {
		if err := json.Unmarshal(errorList, &job.Errors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job errors: %w", err)
		}
	}

	return &job, nil
}

// List returns a page of jobs, newest first.
func (r *JobRepository) List(ctx context.Context, opts persistence.ListJobsOptions) (*persistence.JobListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.Offset < 0 {
		opts.Offset = 0
	}

	where := ""
	args := []any{}

	if opts.Status != nil {
		where = "WHERE status = $1"
		args = append(args, *opts.Status)
	}

	var total int

	countQuery := "SELECT COUNT(*) FROM jobs " + where

	err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT %s FROM jobs %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		jobColumns, where, len(args)+1, len(args)+2)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	jobs := make([]*models.Job, 0)

	for rows.Next() {
		job, err := r.scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}

		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return &persistence.JobListResult{
		Jobs:        jobs,
		TotalCount:  total,
		HasNextPage: opts.Offset+len(jobs) < total,
	}, nil
}

// Delete removes a job record.
func (r *JobRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM jobs WHERE id = $1", id)
	if err != nil {
		return persistence.NewJobError("Delete", id, err)
	}

	return nil
}

// UpdateStage persists the current stage name and its progress map
// without rewriting the whole record.
func (r *JobRepository) UpdateStage(ctx context.Context, jobID, stage string, progress map[string]any) error {
	encoded, err := json.Marshal(progress)
	if err != nil {
		return persistence.NewJobError("UpdateStage", jobID, err)
	}

	query := `
		UPDATE jobs
		SET current_stage = $2,
		    stage_progress = COALESCE(stage_progress, '{}'::jsonb) || jsonb_build_object($2::text, $3::jsonb)
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, jobID, stage, encoded)
	if err != nil {
		return persistence.NewJobError("UpdateStage", jobID, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return persistence.NewJobError("UpdateStage", jobID, persistence.ErrJobNotFound)
	}

	return nil
}

// RequestCancel flips the cancel flag.
func (r *JobRepository) RequestCancel(ctx context.Context, jobID string) error {
	result, err := r.db.ExecContext(ctx, "UPDATE jobs SET cancel_requested = TRUE WHERE id = $1", jobID)
	if err != nil {
		return persistence.NewJobError("RequestCancel", jobID, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return persistence.NewJobError("RequestCancel", jobID, persistence.ErrJobNotFound)
	}

	return nil
}

// IsCancelled reads the cancel flag.
func (r *JobRepository) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	var cancelled bool

	err := r.db.QueryRowContext(ctx, "SELECT cancel_requested FROM jobs WHERE id = $1", jobID).Scan(&cancelled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, persistence.NewJobError("IsCancelled", jobID, persistence.ErrJobNotFound)
		}

		return false, persistence.NewJobError("IsCancelled", jobID, err)
	}

	return cancelled, nil
}

var _ persistence.JobRepository = (*JobRepository)(nil)
