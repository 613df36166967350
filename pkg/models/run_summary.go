package models

import "time"

// IngestCounters aggregates the ingest stage.
type IngestCounters struct {
	Ingested         int `json:"ingested"`
	SkippedDuplicate int `json:"skipped_duplicate"`
	BodiesDownloaded int `json:"bodies_downloaded"`
	BodyFailures     int `json:"body_failures"`
	Errors           int `json:"errors"`
}

// ClassifyCounters aggregates the classify stage.
type ClassifyCounters struct {
	Total       int `json:"total"`
	Succeeded   int `json:"succeeded"`
	ViaModel    int `json:"via_model"`
	ViaFallback int `json:"via_fallback"`
	Failed      int `json:"failed"`
	Errors      int `json:"errors"`
}

// NeutralizeCounters aggregates the neutralize stage.
type NeutralizeCounters struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// QualityCounters aggregates the quality-check stage.
type QualityCounters struct {
	Checked int `json:"checked"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
}

// DigestCounters aggregates the digest-assembly stage.
type DigestCounters struct {
	Stories  int  `json:"stories"`
	Sections int  `json:"sections"`
	Empty    bool `json:"empty"`
}

// ModelUsage aggregates external model calls across the run.
type ModelUsage struct {
	AvgLatencyMS  float64 `json:"avg_latency_ms"`
	TotalTokens   int     `json:"total_tokens"`
	EstimatedCost float64 `json:"estimated_cost"`
}

// EvaluationResult is attached to an existing run summary by the
// optional evaluation stage.
type EvaluationResult struct {
	EvaluationID  string  `json:"evaluation_id"`
	AccuracyScore float64 `json:"accuracy_score"`
	QualityScore  float64 `json:"quality_score"`
	EstimatedCost float64 `json:"estimated_cost"`
}

// RunSummary is the persisted aggregate of one pipeline run. It is
// created once after the mandatory stages finish and is immutable
// afterwards except for the final status write and the optional
// evaluation attachment.
type RunSummary struct {
	ID            string             `json:"id"`
	JobID         string             `json:"job_id"`
	TriggerSource TriggerSource      `json:"trigger_source"`
	Status        JobStatus          `json:"status"`
	Ingest        IngestCounters     `json:"ingest"`
	Classify      ClassifyCounters   `json:"classify"`
	Neutralize    NeutralizeCounters `json:"neutralize"`
	Quality       QualityCounters    `json:"quality"`
	Digest        DigestCounters     `json:"digest"`
	Model         ModelUsage         `json:"model"`
	Alerts        []string           `json:"alerts,omitempty"`
	Evaluation    *EvaluationResult  `json:"evaluation,omitempty"`
	StartedAt     time.Time          `json:"started_at"`
	FinishedAt    time.Time          `json:"finished_at"`
	DurationMS    int64              `json:"duration_ms"`
}
