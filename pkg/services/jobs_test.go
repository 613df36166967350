package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/unspun/unspun/pkg/eventbus"
	"github.com/unspun/unspun/pkg/events"
	"github.com/unspun/unspun/pkg/mocks"
	"github.com/unspun/unspun/pkg/models"
	"github.com/unspun/unspun/pkg/persistence"
	"github.com/unspun/unspun/pkg/persistence/file"
	"github.com/unspun/unspun/pkg/testutil"
)

type capturingPublisher struct {
	published []eventbus.Event
	err       error
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	if p.err != nil {
		return p.err
	}

	p.published = append(p.published, event)

	return nil
}

func newTestService(t *testing.T) (*Jobs, *capturingPublisher, persistence.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	t.Cleanup(func() {
		_ = p.Close(context.Background())
	})

	publisher := &capturingPublisher{}

	return NewJobs(p, publisher, slog.Default()), publisher, p
}

func TestJobs_SubmitPersistsAndAnnounces(t *testing.T) {
	service, publisher, p := newTestService(t)

	job, err := service.Submit(t.Context(), SubmitJobRequest{
		TriggerSource: models.TriggerSourceManual,
		Config:        map[string]any{"run_evaluation": true},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.NotEmpty(t, job.TraceID)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.WithinDuration(t, time.Now().UTC(), job.CreatedAt, time.Minute)

	stored, err := p.JobRepository().GetByID(t.Context(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, stored.ID)

	require.Len(t, publisher.published, 1)
	requested, ok := publisher.published[0].(events.JobRequested)
	require.True(t, ok)
	assert.Equal(t, job.ID, requested.JobID)
	assert.Equal(t, models.TriggerSourceManual, requested.TriggerSource)
}

func TestJobs_SubmitDefaultsToManual(t *testing.T) {
	service, _, _ := newTestService(t)

	job, err := service.Submit(t.Context(), SubmitJobRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.TriggerSourceManual, job.TriggerSource)
}

func TestJobs_SubmitRejectsUnknownTriggerSource(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.Submit(t.Context(), SubmitJobRequest{TriggerSource: "webhook"})
	assert.ErrorIs(t, err, ErrInvalidTriggerSource)
	assert.True(t, IsValidationError(err))
}

func TestJobs_SubmitRejectsInvalidConfig(t *testing.T) {
	service, publisher, _ := newTestService(t)

	_, err := service.Submit(t.Context(), SubmitJobRequest{
		Config: map[string]any{"run_evaluation": "yes"},
	})
	assert.ErrorIs(t, err, ErrInvalidJobConfig)
	assert.Empty(t, publisher.published)
}

func TestJobs_SubmitSurvivesPublishFailure(t *testing.T) {
	service, publisher, p := newTestService(t)
	publisher.err = errors.New("broker down")

	job, err := service.Submit(t.Context(), SubmitJobRequest{})
	require.NoError(t, err)

	stored, err := p.JobRepository().GetByID(t.Context(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, stored.Status)
}

func TestJobs_FetchByIDNotFound(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.FetchByID(t.Context(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobs_ListFiltersByStatus(t *testing.T) {
	service, _, p := newTestService(t)

	for range 3 {
		_, err := service.Submit(t.Context(), SubmitJobRequest{})
		require.NoError(t, err)
	}

	job, err := service.Submit(t.Context(), SubmitJobRequest{})
	require.NoError(t, err)

	job.Status = models.JobStatusCompleted
	require.NoError(t, p.JobRepository().Save(t.Context(), job))

	completed := models.JobStatusCompleted

	result, err := service.List(t.Context(), ListJobsRequest{Status: &completed})
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalCount)
	require.Len(t, result.Jobs, 1)
	assert.Equal(t, job.ID, result.Jobs[0].ID)

	all, err := service.List(t.Context(), ListJobsRequest{})
	require.NoError(t, err)
	assert.Equal(t, 4, all.TotalCount)
	assert.False(t, all.HasNextPage)
}

func TestJobs_ListRejectsUnknownStatus(t *testing.T) {
	service, _, _ := newTestService(t)

	bogus := models.JobStatus("archived")

	_, err := service.List(t.Context(), ListJobsRequest{Status: &bogus})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestJobs_CancelPendingJob(t *testing.T) {
	service, _, p := newTestService(t)

	job, err := service.Submit(t.Context(), SubmitJobRequest{})
	require.NoError(t, err)

	require.NoError(t, service.Cancel(t.Context(), job.ID))

	cancelled, err := p.JobRepository().IsCancelled(t.Context(), job.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)
}

func TestJobs_CancelFinishedJobConflicts(t *testing.T) {
	service, _, p := newTestService(t)

	job, err := service.Submit(t.Context(), SubmitJobRequest{})
	require.NoError(t, err)

	job.Status = models.JobStatusCompleted
	require.NoError(t, p.JobRepository().Save(t.Context(), job))

	err = service.Cancel(t.Context(), job.ID)
	assert.ErrorIs(t, err, ErrJobFinished)
	assert.True(t, IsConflictError(err))
}

func TestJobs_DeleteRequiresTerminalState(t *testing.T) {
	service, _, p := newTestService(t)

	job, err := service.Submit(t.Context(), SubmitJobRequest{})
	require.NoError(t, err)

	err = service.Delete(t.Context(), job.ID)
	assert.ErrorIs(t, err, ErrJobInProgress)

	job.Status = models.JobStatusFailed
	require.NoError(t, p.JobRepository().Save(t.Context(), job))

	require.NoError(t, service.Delete(t.Context(), job.ID))

	_, err = service.FetchByID(t.Context(), job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobs_FetchRunSummary(t *testing.T) {
	service, _, p := newTestService(t)

	job, err := service.Submit(t.Context(), SubmitJobRequest{})
	require.NoError(t, err)

	_, err = service.FetchRunSummary(t.Context(), job.ID)
	assert.ErrorIs(t, err, ErrRunSummaryNotFound)

	summary := &models.RunSummary{
		ID:     "summary-1",
		JobID:  job.ID,
		Status: models.JobStatusCompleted,
	}
	require.NoError(t, p.RunSummaryRepository().Save(t.Context(), summary))

	found, err := service.FetchRunSummary(t.Context(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "summary-1", found.ID)
}

func TestJobs_HealthCheck(t *testing.T) {
	service, _, _ := newTestService(t)

	message, healthy := service.HealthCheck(t.Context())
	assert.True(t, healthy)
	assert.Contains(t, message, "healthy")

	nilService := NewJobs(nil, nil, slog.Default())

	_, healthy = nilService.HealthCheck(t.Context())
	assert.False(t, healthy)
}

func TestJobs_SubmitStoreFailure(t *testing.T) {
	p := mocks.NewMockPersistence()
	p.GetMockJobRepository().On("Save", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	service := NewJobs(p, nil, slog.Default())

	_, err := service.Submit(t.Context(), SubmitJobRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestJobs_CancelStoreErrorPropagates(t *testing.T) {
	job := testutil.CreateTestJob(testutil.WithStatus(models.JobStatusRunning))

	p := mocks.NewMockPersistence()
	p.GetMockJobRepository().On("GetByID", mock.Anything, job.ID).Return(job, nil)
	p.GetMockJobRepository().On("RequestCancel", mock.Anything, job.ID).Return(errors.New("connection reset"))

	service := NewJobs(p, nil, slog.Default())

	err := service.Cancel(t.Context(), job.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	p.GetMockJobRepository().AssertExpectations(t)
}

func TestJobs_FetchRunSummaryFromRepository(t *testing.T) {
	job := testutil.CreateTestJob(testutil.WithStatus(models.JobStatusCompleted))
	summary := testutil.CreateTestRunSummary(job, testutil.WithSummaryStatus(models.JobStatusPartial))

	p := mocks.NewMockPersistence()
	p.GetMockJobRepository().On("GetByID", mock.Anything, job.ID).Return(job, nil)
	p.GetMockRunSummaryRepository().On("GetByJobID", mock.Anything, job.ID).Return(summary, nil)

	service := NewJobs(p, nil, slog.Default())

	found, err := service.FetchRunSummary(t.Context(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, summary.ID, found.ID)
	assert.Equal(t, models.JobStatusPartial, found.Status)
}
