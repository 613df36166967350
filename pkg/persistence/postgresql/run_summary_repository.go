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

// RunSummaryRepository handles run summary database operations. The
// per-stage counter blocks travel as one JSONB document; identity,
// status, and timing are first-class columns.
type RunSummaryRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunSummaryRepository creates a new run summary repository.
func NewRunSummaryRepository(db *sql.DB, logger *slog.Logger) *RunSummaryRepository {
	return &RunSummaryRepository{db: db, logger: logger}
}

// counterDoc is the JSONB shape for the per-stage counter blocks.
type counterDoc struct {
	Ingest     models.IngestCounters     `json:"ingest"`
	Classify   models.ClassifyCounters   `json:"classify"`
	Neutralize models.NeutralizeCounters `json:"neutralize"`
	Quality    models.QualityCounters    `json:"quality"`
	Digest     models.DigestCounters     `json:"digest"`
	Model      models.ModelUsage         `json:"model"`
}

// Save upserts a run summary.
func (r *RunSummaryRepository) Save(ctx context.Context, summary *models.RunSummary) error {
	counters, err := json.Marshal(counterDoc{
		Ingest:     summary.Ingest,
		Classify:   summary.Classify,
		Neutralize: summary.Neutralize,
		Quality:    summary.Quality,
		Digest:     summary.Digest,
		Model:      summary.Model,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal run summary counters: %w", err)
	}

	alerts, err := json.Marshal(summary.Alerts)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary alerts: %w", err)
	}

	var evaluation []byte
	if summary.Evaluation != nil {
		evaluation, err = json.Marshal(summary.Evaluation)
		if err != nil {
			return fmt.Errorf("failed to marshal evaluation result: %w", err)
		}
	}

	query := `
		INSERT INTO run_summaries (
			id, job_id, trigger_source, status, counters, alerts,
			evaluation, started_at, finished_at, duration_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			counters = EXCLUDED.counters,
			alerts = EXCLUDED.alerts,
			evaluation = EXCLUDED.evaluation,
			finished_at = EXCLUDED.finished_at,
			duration_ms = EXCLUDED.duration_ms
	`

	_, err = r.db.ExecContext(ctx, query,
		summary.ID,
		summary.JobID,
		summary.TriggerSource,
		summary.Status,
		counters,
		alerts,
		evaluation,
		summary.StartedAt,
		summary.FinishedAt,
		summary.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("failed to save run summary %s: %w", summary.ID, err)
	}

	return nil
}

const runSummaryColumns = `
	id
  , job_id
  , trigger_source
  , status
  , counters
  , alerts
  , evaluation
  , started_at
  , finished_at
  , duration_ms
`

// GetByID loads one run summary.
func (r *RunSummaryRepository) GetByID(ctx context.Context, id string) (*models.RunSummary, error) {
	query := `SELECT ` + runSummaryColumns + ` FROM run_summaries WHERE id = $1`

	return r.scanSummary(r.db.QueryRowContext(ctx, query, id))
}

// GetByJobID loads the summary produced by a job's run.
func (r *RunSummaryRepository) GetByJobID(ctx context.Context, jobID string) (*models.RunSummary, error) {
	query := `SELECT ` + runSummaryColumns + ` FROM run_summaries WHERE job_id = $1 ORDER BY started_at DESC LIMIT 1`

	return r.scanSummary(r.db.QueryRowContext(ctx, query, jobID))
}

func (r *RunSummaryRepository) scanSummary(row rowScanner) (*models.RunSummary, error) {
	var (
		summary    models.RunSummary
		counters   []byte
		alerts     []byte
		evaluation []byte
	)

	err := row.Scan(
		&summary.ID,
		&summary.JobID,
		&summary.TriggerSource,
		&summary.Status,
		&counters,
		&alerts,
		&evaluation,
		&summary.StartedAt,
		&summary.FinishedAt,
		&summary.DurationMS,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrRunSummaryNotFound
		}

		return nil, fmt.Errorf("failed to scan run summary: %w", err)
	}

	var doc counterDoc
	if err := json.Unmarshal(counters, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run summary counters: %w", err)
	}

	summary.Ingest = doc.Ingest
	summary.Classify = doc.Classify
	summary.Neutralize = doc.Neutralize
	summary.Quality = doc.Quality
	summary.Digest = doc.Digest
	summary.Model = doc.Model

	if len(alerts) > 0 {
		if err := json.Unmarshal(alerts, &summary.Alerts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run summary alerts: %w", err)
		}
	}

	if len(evaluation) > 0 {
		if err := json.Unmarshal(evaluation, &summary.Evaluation); err != nil {
			return nil, fmt.Errorf("failed to unmarshal evaluation result: %w", err)
		}
	}

	return &summary, nil
}

// AttachEvaluation adds the evaluation result to an existing summary.
func (r *RunSummaryRepository) AttachEvaluation(ctx context.Context, id string, eval *models.EvaluationResult) error {
	encoded, err := json.Marshal(eval)
	if err != nil {
		return fmt.Errorf("failed to marshal evaluation result: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE run_summaries SET evaluation = $2 WHERE id = $1", id, encoded)
	if err != nil {
		return fmt.Errorf("failed to attach evaluation to run summary %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return persistence.ErrRunSummaryNotFound
	}

	return nil
}

var _ persistence.RunSummaryRepository = (*RunSummaryRepository)(nil)
