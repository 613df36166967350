// Package alerts converts a run summary into named alert codes via
// fixed threshold checks. Evaluation is pure: the same summary always
// yields the same alerts.
package alerts

import "github.com/unspun/unspun/pkg/models"

// Alert codes.
const (
	BodyDownloadRateLow      = "body-download-rate-low"
	NeutralizationRateLow    = "neutralization-rate-low"
	BriefStoryCountLow       = "brief-story-count-low"
	ClassifyFallbackRateHigh = "classify-fallback-rate-high"
	IngestionZero            = "ingestion-zero"
	PipelineFailed           = "pipeline-failed"
	LLMLatencyHigh           = "llm-latency-high"
	PipelineDurationHigh     = "pipeline-duration-high"
	TokenUsageHigh           = "token-usage-high"
)

// Descriptions maps each alert code to display text. The text plays no
// part in the decision logic.
var Descriptions = map[string]string{
	BodyDownloadRateLow:      "Fewer than 70% of ingested articles have a downloaded body",
	NeutralizationRateLow:    "Fewer than 90% of neutralization attempts succeeded",
	BriefStoryCountLow:       "The assembled brief carries fewer than 10 stories",
	ClassifyFallbackRateHigh: "More than 1% of classifications fell back to the heuristic",
	IngestionZero:            "No articles were ingested this run",
	PipelineFailed:           "The pipeline run finished in a failed state",
	LLMLatencyHigh:           "Average external model latency exceeded 5 seconds",
	PipelineDurationHigh:     "The run took longer than 10 minutes end to end",
	TokenUsageHigh:           "Token consumption exceeded 500k for a single run",
}

// Thresholds are the tunables behind each alert.
type Thresholds struct {
	MinBodyDownloadRate   float64 `yaml:"min_body_download_rate"`
	MinNeutralizationRate float64 `yaml:"min_neutralization_rate"`
	MinBriefStories       int     `yaml:"min_brief_stories"`
	MaxFallbackRate       float64 `yaml:"max_fallback_rate"`
	MaxAvgLatencyMS       float64 `yaml:"max_avg_latency_ms"`
	MaxRunDurationMS      int64   `yaml:"max_run_duration_ms"`
	MaxTokens             int     `yaml:"max_tokens"`
}

// DefaultThresholds returns the fixed defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinBodyDownloadRate:   0.70,
		MinNeutralizationRate: 0.90,
		MinBriefStories:       10,
		MaxFallbackRate:       0.01,
		MaxAvgLatencyMS:       5000,
		MaxRunDurationMS:      600_000,
		MaxTokens:             500_000,
	}
}

// Evaluator applies a threshold table to run summaries.
type Evaluator struct {
	thresholds Thresholds
}

// NewEvaluator builds an evaluator; zero-valued thresholds fall back
// to the defaults field by field.
func NewEvaluator(thresholds Thresholds) *Evaluator {
	defaults := DefaultThresholds()

	if thresholds.MinBodyDownloadRate <= 0 {
		thresholds.MinBodyDownloadRate = defaults.MinBodyDownloadRate
	}

	if thresholds.MinNeutralizationRate <= 0 {
		thresholds.MinNeutralizationRate = defaults.MinNeutralizationRate
	}

	if thresholds.MinBriefStories <= 0 {
		thresholds.MinBriefStories = defaults.MinBriefStories
	}

	if thresholds.MaxFallbackRate <= 0 {
		thresholds.MaxFallbackRate = defaults.MaxFallbackRate
	}

	if thresholds.MaxAvgLatencyMS <= 0 {
		thresholds.MaxAvgLatencyMS = defaults.MaxAvgLatencyMS
	}

	if thresholds.MaxRunDurationMS <= 0 {
		thresholds.MaxRunDurationMS = defaults.MaxRunDurationMS
	}

	if thresholds.MaxTokens <= 0 {
		thresholds.MaxTokens = defaults.MaxTokens
	}

	return &Evaluator{thresholds: thresholds}
}

// Evaluate returns the triggered alert codes in a stable order.
func (e *Evaluator) Evaluate(summary *models.RunSummary) []string {
	t := e.thresholds

	var codes []string

	if summary.Ingest.Ingested > 0 {
		rate := float64(summary.Ingest.BodiesDownloaded) / float64(summary.Ingest.Ingested)
		if rate < t.MinBodyDownloadRate {
			codes = append(codes, BodyDownloadRateLow)
		}
	}

	if attempted := summary.Neutralize.Attempted; attempted > 0 {
		rate := float64(summary.Neutralize.Succeeded) / float64(attempted)
		if rate < t.MinNeutralizationRate {
			codes = append(codes, NeutralizationRateLow)
		}
	}

	if summary.Digest.Stories < t.MinBriefStories {
		codes = append(codes, BriefStoryCountLow)
	}

	if total := summary.Classify.Total; total > 0 {
		rate := float64(summary.Classify.ViaFallback) / float64(total)
		if rate > t.MaxFallbackRate {
			codes = append(codes, ClassifyFallbackRateHigh)
		}
	}

	if summary.Ingest.Ingested == 0 {
		codes = append(codes, IngestionZero)
	}

	if summary.Status == models.JobStatusFailed {
		codes = append(codes, PipelineFailed)
	}

	if summary.Model.AvgLatencyMS > t.MaxAvgLatencyMS {
		codes = append(codes, LLMLatencyHigh)
	}

	if summary.DurationMS > t.MaxRunDurationMS {
		codes = append(codes, PipelineDurationHigh)
	}

	if summary.Model.TotalTokens > t.MaxTokens {
		codes = append(codes, TokenUsageHigh)
	}

	return codes
}
