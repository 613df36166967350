package models

import "time"

// StageKind is the fixed enumeration of pipeline stages. Stages are
// selected by kind through the registry, never by matching on name
// strings.
type StageKind string

const (
	StageIngest       StageKind = "ingest"
	StageClassify     StageKind = "classify"
	StageNeutralize   StageKind = "neutralize"
	StageQualityCheck StageKind = "quality_check"
	StageDigest       StageKind = "digest_assembly"
	StageLinkCheck    StageKind = "link_validation"
	StageEvaluation   StageKind = "evaluation"
	StageOptimization StageKind = "optimization"
)

// StageOrder is the hard dependency chain: each stage depends on the
// committed state of the one before it. Evaluation and optimization
// run only when enabled by job configuration, after the run summary
// exists.
var StageOrder = []StageKind{
	StageIngest,
	StageClassify,
	StageNeutralize,
	StageQualityCheck,
	StageDigest,
	StageLinkCheck,
	StageEvaluation,
	StageOptimization,
}

// OptionalStages run only when the job configuration enables them.
var OptionalStages = map[StageKind]string{
	StageEvaluation:   "run_evaluation",
	StageOptimization: "run_optimization",
}

func (k StageKind) String() string {
	return string(k)
}

// Valid reports whether k is a known stage kind.
func (k StageKind) Valid() bool {
	for _, known := range StageOrder {
		if k == known {
			return true
		}
	}

	return false
}

// StageStatus is the outcome class of one stage execution.
type StageStatus string

const (
	StageCompleted StageStatus = "completed"
	StagePartial   StageStatus = "partial"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// StageResult is the immutable outcome of one stage execution.
type StageResult struct {
	Stage    StageKind      `json:"stage"`
	Status   StageStatus    `json:"status"`
	Duration time.Duration  `json:"duration"`
	Metrics  map[string]any `json:"metrics,omitempty"`
	Errors   []string       `json:"errors,omitempty"`
}

// Progress renders the result as the stage_progress entry persisted on
// the job record.
func (r StageResult) Progress() map[string]any {
	progress := map[string]any{
		"status":      string(r.Status),
		"duration_ms": r.Duration.Milliseconds(),
	}
	for k, v := range r.Metrics {
		progress[k] = v
	}

	if len(r.Errors) > 0 {
		progress["errors"] = r.Errors
	}

	return progress
}
