package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/unspun/unspun/pkg/models"
	"github.com/unspun/unspun/pkg/persistence"
	"github.com/unspun/unspun/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"run_summaries", "jobs", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("unspun_test"),
			postgres.WithUsername("unspun"),
			postgres.WithPassword("unspun"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	var exists bool

	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = 'jobs')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "jobs table should exist")

	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = 'run_summaries')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "run_summaries table should exist")

	var version int

	err = db.QueryRowContext(ctx, "SELECT version FROM schema_migrations WHERE version = 1").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.HealthCheck(ctx)
	assert.NoError(t, err)
}

func testJob() *models.Job {
	now := time.Now().UTC().Truncate(time.Millisecond)

	return &models.Job{
		ID:            uuid.New().String(),
		TraceID:       uuid.New().String(),
		Config:        map[string]any{"run_evaluation": true, "ingest_workers": float64(4)},
		Status:        models.JobStatusPending,
		TriggerSource: models.TriggerSourceManual,
		CreatedAt:     now,
	}
}

func TestJobRepository_SaveAndRetrieve(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	job := testJob()

	err := p.JobRepository().Save(ctx, job)
	require.NoError(t, err)

	retrieved, err := p.JobRepository().GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, retrieved)

	assert.Equal(t, job.ID, retrieved.ID)
	assert.Equal(t, job.TraceID, retrieved.TraceID)
	assert.Equal(t, models.JobStatusPending, retrieved.Status)
	assert.Equal(t, models.TriggerSourceManual, retrieved.TriggerSource)
	assert.True(t, retrieved.ConfigBool("run_evaluation"))
	assert.Equal(t, 4, retrieved.ConfigInt("ingest_workers", 0))
	assert.False(t, retrieved.CancelRequested)
	assert.Nil(t, retrieved.CurrentStage)

	_, err = p.JobRepository().GetByID(ctx, uuid.NewString())
	require.ErrorIs(t, err, persistence.ErrJobNotFound)
}

func TestJobRepository_UpdateViaSave(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	job := testJob()

	err := p.JobRepository().Save(ctx, job)
	require.NoError(t, err)

	started := time.Now().UTC().Truncate(time.Millisecond)
	stage := string(models.StageClassify)
	job.Status = models.JobStatusRunning
	job.CurrentStage = &stage
	job.StartedAt = &started
	job.Errors = []models.ErrorRecord{{Stage: "ingest", Message: "feed unreachable"}}

	err = p.JobRepository().Save(ctx, job)
	require.NoError(t, err)

	retrieved, err := p.JobRepository().GetByID(ctx, job.ID)
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusRunning, retrieved.Status)
	require.NotNil(t, retrieved.CurrentStage)
	assert.Equal(t, stage, *retrieved.CurrentStage)
	require.NotNil(t, retrieved.StartedAt)
	assert.Equal(t, started, retrieved.StartedAt.UTC())
	require.Len(t, retrieved.Errors, 1)
	assert.Equal(t, "feed unreachable", retrieved.Errors[0].Message)
}

func TestJobRepository_List(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	statuses := []models.JobStatus{
		models.JobStatusPending,
		models.JobStatusRunning,
		models.JobStatusCompleted,
		models.JobStatusCompleted,
	}

	for i, status := range statuses {
		job := testJob()
		job.Status = status
		job.CreatedAt = time.Now().UTC().Add(time.Duration(-i) * time.Hour)

		err := p.JobRepository().Save(ctx, job)
		require.NoError(t, err)
	}

	all, err := p.JobRepository().List(ctx, persistence.ListJobsOptions{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all.Jobs, 4)
	assert.Equal(t, 4, all.TotalCount)
	assert.False(t, all.HasNextPage)

	// Newest first.
	for i := 1; i < len(all.Jobs); i++ {
		assert.False(t, all.Jobs[i].CreatedAt.After(all.Jobs[i-1].CreatedAt))
	}

	completed := models.JobStatusCompleted
	filtered, err := p.JobRepository().List(ctx, persistence.ListJobsOptions{Limit: 10, Status: &completed})
	require.NoError(t, err)
	assert.Len(t, filtered.Jobs, 2)
	assert.Equal(t, 2, filtered.TotalCount)

	paged, err := p.JobRepository().List(ctx, persistence.ListJobsOptions{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, paged.Jobs, 3)
	assert.True(t, paged.HasNextPage)
}

func TestJobRepository_StageProgressAndCancel(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	job := testJob()

	err := p.JobRepository().Save(ctx, job)
	require.NoError(t, err)

	err = p.JobRepository().UpdateStage(ctx, job.ID, string(models.StageIngest), map[string]any{
		"status":      "completed",
		"duration_ms": float64(1200),
	})
	require.NoError(t, err)

	err = p.JobRepository().UpdateStage(ctx, job.ID, string(models.StageClassify), map[string]any{
		"status": "failed",
	})
	require.NoError(t, err)

	retrieved, err := p.JobRepository().GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, retrieved.StageProgress, 2)
	assert.Equal(t, "completed", retrieved.StageProgress[string(models.StageIngest)]["status"])
	assert.Equal(t, "failed", retrieved.StageProgress[string(models.StageClassify)]["status"])

	cancelled, err := p.JobRepository().IsCancelled(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, cancelled)

	err = p.JobRepository().RequestCancel(ctx, job.ID)
	require.NoError(t, err)

	cancelled, err = p.JobRepository().IsCancelled(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	err = p.JobRepository().UpdateStage(ctx, uuid.NewString(), string(models.StageIngest), map[string]any{})
	require.ErrorIs(t, err, persistence.ErrJobNotFound)

	err = p.JobRepository().RequestCancel(ctx, uuid.NewString())
	require.ErrorIs(t, err, persistence.ErrJobNotFound)
}

func TestJobRepository_Delete(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	job := testJob()

	err := p.JobRepository().Save(ctx, job)
	require.NoError(t, err)

	err = p.JobRepository().Delete(ctx, job.ID)
	require.NoError(t, err)

	_, err = p.JobRepository().GetByID(ctx, job.ID)
	require.ErrorIs(t, err, persistence.ErrJobNotFound)
}

func testRunSummary(jobID string) *models.RunSummary {
	started := time.Now().UTC().Add(-5 * time.Minute).Truncate(time.Millisecond)
	finished := time.Now().UTC().Truncate(time.Millisecond)

	return &models.RunSummary{
		ID:            uuid.New().String(),
		JobID:         jobID,
		TriggerSource: models.TriggerSourceScheduled,
		Status:        models.JobStatusCompleted,
		Ingest: models.IngestCounters{
			Ingested:         120,
			SkippedDuplicate: 14,
			BodiesDownloaded: 110,
			BodyFailures:     10,
		},
		Classify: models.ClassifyCounters{
			Total:       120,
			Succeeded:   118,
			ViaModel:    110,
			ViaFallback: 8,
			Failed:      2,
		},
		Neutralize: models.NeutralizeCounters{
			Attempted: 118,
			Succeeded: 112,
			Skipped:   4,
			Failed:    2,
		},
		Quality: models.QualityCounters{Checked: 112, Passed: 108, Failed: 4},
		Digest:  models.DigestCounters{Stories: 24, Sections: 6},
		Model: models.ModelUsage{
			AvgLatencyMS:  850,
			TotalTokens:   420000,
			EstimatedCost: 1.8,
		},
		Alerts:     []string{"body-download-rate-low"},
		StartedAt:  started,
		FinishedAt: finished,
		DurationMS: finished.Sub(started).Milliseconds(),
	}
}

func TestRunSummaryRepository_SaveAndRetrieve(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	job := testJob()
	require.NoError(t, p.JobRepository().Save(ctx, job))

	summary := testRunSummary(job.ID)

	err := p.RunSummaryRepository().Save(ctx, summary)
	require.NoError(t, err)

	retrieved, err := p.RunSummaryRepository().GetByID(ctx, summary.ID)
	require.NoError(t, err)

	assert.Equal(t, summary.ID, retrieved.ID)
	assert.Equal(t, summary.JobID, retrieved.JobID)
	assert.Equal(t, models.TriggerSourceScheduled, retrieved.TriggerSource)
	assert.Equal(t, summary.Ingest, retrieved.Ingest)
	assert.Equal(t, summary.Classify, retrieved.Classify)
	assert.Equal(t, summary.Neutralize, retrieved.Neutralize)
	assert.Equal(t, summary.Quality, retrieved.Quality)
	assert.Equal(t, summary.Digest, retrieved.Digest)
	assert.Equal(t, summary.Model, retrieved.Model)
	assert.Equal(t, []string{"body-download-rate-low"}, retrieved.Alerts)
	assert.Nil(t, retrieved.Evaluation)
	assert.Equal(t, summary.DurationMS, retrieved.DurationMS)

	byJob, err := p.RunSummaryRepository().GetByJobID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, summary.ID, byJob.ID)

	_, err = p.RunSummaryRepository().GetByID(ctx, uuid.NewString())
	require.ErrorIs(t, err, persistence.ErrRunSummaryNotFound)

	_, err = p.RunSummaryRepository().GetByJobID(ctx, uuid.NewString())
	require.ErrorIs(t, err, persistence.ErrRunSummaryNotFound)
}

func TestRunSummaryRepository_AttachEvaluation(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	job := testJob()
	require.NoError(t, p.JobRepository().Save(ctx, job))

	summary := testRunSummary(job.ID)
	require.NoError(t, p.RunSummaryRepository().Save(ctx, summary))

	eval := &models.EvaluationResult{
		EvaluationID:  uuid.New().String(),
		AccuracyScore: 0.92,
		QualityScore:  0.88,
		EstimatedCost: 0.4,
	}

	err := p.RunSummaryRepository().AttachEvaluation(ctx, summary.ID, eval)
	require.NoError(t, err)

	retrieved, err := p.RunSummaryRepository().GetByID(ctx, summary.ID)
	require.NoError(t, err)
	require.NotNil(t, retrieved.Evaluation)
	assert.Equal(t, eval.EvaluationID, retrieved.Evaluation.EvaluationID)
	assert.InDelta(t, 0.92, retrieved.Evaluation.AccuracyScore, 0.0001)

	err = p.RunSummaryRepository().AttachEvaluation(ctx, uuid.NewString(), eval)
	require.ErrorIs(t, err, persistence.ErrRunSummaryNotFound)
}
