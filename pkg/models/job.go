// Package models defines the core domain models for pipeline runs.
package models

import "time"

// JobStatus represents the lifecycle state of a pipeline job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"   // Created, not yet picked up
	JobStatusRunning   JobStatus = "running"   // Coordinator owns it
	JobStatusCompleted JobStatus = "completed" // Every stage completed
	JobStatusPartial   JobStatus = "partial"   // Some stages failed, some completed
	JobStatusFailed    JobStatus = "failed"    // Every stage failed, or the coordinator itself did
	JobStatusCancelled JobStatus = "cancelled" // Cancellation observed at a stage boundary
)

// IsTerminal reports whether no further transitions are possible.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusPartial, JobStatusFailed, JobStatusCancelled:
		return true
	case JobStatusPending, JobStatusRunning:
		return false
	}

	return false
}

// TriggerSource records what started a run.
type TriggerSource string

const (
	TriggerSourceScheduled TriggerSource = "scheduled"
	TriggerSourceManual    TriggerSource = "manual"
)

// ErrorRecord is one entry in a job's accumulated error list. Stage is
// the stage name, or "coordinator" for errors raised outside any stage.
type ErrorRecord struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Job is a single pipeline execution request. The coordinator owns all
// fields except CancelRequested, which is set by an external actor (the
// API) and only ever read here.
type Job struct {
	ID              string                    `json:"id"`
	TraceID         string                    `json:"trace_id"`
	Config          map[string]any            `json:"config,omitempty"`
	Status          JobStatus                 `json:"status"`
	TriggerSource   TriggerSource             `json:"trigger_source"`
	CurrentStage    *string                   `json:"current_stage,omitempty"`
	StageProgress   map[string]map[string]any `json:"stage_progress,omitempty"`
	Errors          []ErrorRecord             `json:"errors,omitempty"`
	CancelRequested bool                      `json:"cancel_requested"`
	RunSummaryID    *string                   `json:"run_summary_id,omitempty"`
	EvaluationID    *string                   `json:"evaluation_id,omitempty"`
	CreatedAt       time.Time                 `json:"created_at"`
	StartedAt       *time.Time                `json:"started_at,omitempty"`
	FinishedAt      *time.Time                `json:"finished_at,omitempty"`
}

// ConfigBool reads a boolean flag from the job's opaque configuration.
func (j *Job) ConfigBool(key string) bool {
	v, ok := j.Config[key].(bool)

	return ok && v
}

// ConfigInt reads an integer from the job's opaque configuration,
// falling back to def when absent or not numeric. JSON decoding turns
// numbers into float64, so both forms are accepted.
func (j *Job) ConfigInt(key string, def int) int {
	switch v := j.Config[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}
