// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/unspun/unspun/pkg/models"
)

// CreateTestJob creates a test Job with default values that can be overridden.
func CreateTestJob(overrides ...func(*models.Job)) *models.Job {
	job := &models.Job{
		ID:            uuid.New().String(),
		TraceID:       uuid.New().String(),
		Config:        map[string]any{},
		Status:        models.JobStatusPending,
		TriggerSource: models.TriggerSourceManual,
		CreatedAt:     time.Now().UTC(),
	}

	for _, override := range overrides {
		override(job)
	}

	return job
}

// WithStatus sets the job status.
func WithStatus(status models.JobStatus) func(*models.Job) {
	return func(j *models.Job) {
		j.Status = status
	}
}

// WithConfig sets the job configuration.
func WithConfig(config map[string]any) func(*models.Job) {
	return func(j *models.Job) {
		j.Config = config
	}
}

// WithTriggerSource sets the trigger source.
func WithTriggerSource(source models.TriggerSource) func(*models.Job) {
	return func(j *models.Job) {
		j.TriggerSource = source
	}
}

// CreateTestRunSummary creates a test RunSummary tied to the given job.
func CreateTestRunSummary(job *models.Job, overrides ...func(*models.RunSummary)) *models.RunSummary {
	started := time.Now().UTC().Add(-time.Minute)
	finished := time.Now().UTC()

	summary := &models.RunSummary{
		ID:            uuid.New().String(),
		JobID:         job.ID,
		TriggerSource: job.TriggerSource,
		Status:        models.JobStatusCompleted,
		Ingest:        models.IngestCounters{Ingested: 100, BodiesDownloaded: 95, BodyFailures: 5},
		Classify:      models.ClassifyCounters{Total: 100, Succeeded: 100, ViaModel: 100},
		Neutralize:    models.NeutralizeCounters{Attempted: 100, Succeeded: 98, Skipped: 2},
		Quality:       models.QualityCounters{Checked: 98, Passed: 96, Failed: 2},
		Digest:        models.DigestCounters{Stories: 24, Sections: 6},
		Model:         models.ModelUsage{AvgLatencyMS: 900, TotalTokens: 40000, EstimatedCost: 0.8},
		StartedAt:     started,
		FinishedAt:    finished,
		DurationMS:    finished.Sub(started).Milliseconds(),
	}

	for _, override := range overrides {
		override(summary)
	}

	return summary
}

// WithSummaryStatus sets the run summary status.
func WithSummaryStatus(status models.JobStatus) func(*models.RunSummary) {
	return func(s *models.RunSummary) {
		s.Status = status
	}
}
