// Package events defines event types and structures for pipeline run notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/unspun/unspun/pkg/models"
)

type EventType string

// Kafka topics.
const Topic = "unspun.events"            // Topic for job lifecycle events
const StageTopic = "unspun.stage.events" // Topic for per-stage events

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Job lifecycle events.
	JobRequestedEvent EventType = "job.requested"
	JobStartedEvent   EventType = "job.started"
	JobFinishedEvent  EventType = "job.finished"
	JobFailedEvent    EventType = "job.failed"
	JobCancelledEvent EventType = "job.cancelled"

	// Stage events.
	StageStartedEvent  EventType = "stage.started"
	StageFinishedEvent EventType = "stage.finished"

	// Alerting.
	AlertRaisedEvent EventType = "alert.raised"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	JobID     string         `json:"job_id"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type JobRequested struct {
	BaseEvent

	TriggerSource models.TriggerSource `json:"trigger_source"`
	Config        map[string]any       `json:"config,omitempty"`
}

func (j JobRequested) GetType() EventType {
	return JobRequestedEvent
}

type JobStarted struct {
	BaseEvent

	TraceID       string               `json:"trace_id"`
	TriggerSource models.TriggerSource `json:"trigger_source"`
}

func (j JobStarted) GetType() EventType {
	return JobStartedEvent
}

type JobFinished struct {
	BaseEvent

	Status       models.JobStatus `json:"status"`
	RunSummaryID string           `json:"run_summary_id,omitempty"`
	DurationMs   int64            `json:"duration_ms"`
	StagesRun    int              `json:"stages_run"`
}

func (j JobFinished) GetType() EventType {
	return JobFinishedEvent
}

type JobFailed struct {
	BaseEvent

	Error      string               `json:"error"`
	Errors     []models.ErrorRecord `json:"errors,omitempty"`
	DurationMs int64                `json:"duration_ms"`
}

func (j JobFailed) GetType() EventType {
	return JobFailedEvent
}

type JobCancelled struct {
	BaseEvent

	ObservedAtStage string `json:"observed_at_stage"`
	DurationMs      int64  `json:"duration_ms"`
}

func (j JobCancelled) GetType() EventType {
	return JobCancelledEvent
}

// Stage events

type StageStarted struct {
	BaseEvent

	Stage models.StageKind `json:"stage"`
}

func (s StageStarted) GetType() EventType {
	return StageStartedEvent
}

type StageFinished struct {
	BaseEvent

	Stage      models.StageKind   `json:"stage"`
	Status     models.StageStatus `json:"status"`
	DurationMs int64              `json:"duration_ms"`
	Metrics    map[string]any     `json:"metrics,omitempty"`
	Errors     []string           `json:"errors,omitempty"`
}

func (s StageFinished) GetType() EventType {
	return StageFinishedEvent
}

type AlertRaised struct {
	BaseEvent

	RunSummaryID string   `json:"run_summary_id"`
	Alerts       []string `json:"alerts"`
}

func (a AlertRaised) GetType() EventType {
	return AlertRaisedEvent
}

func NewBaseEvent(eventType EventType, jobID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		JobID:     jobID,
		Metadata:  make(map[string]any),
	}
}
