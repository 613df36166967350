package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/unspun/unspun/pkg/models"
)

// metricInt reads an integer metric, tolerating the float64 form JSON
// decoding produces.
func metricInt(metrics map[string]any, key string) int {
	switch v := metrics[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func metricFloat(metrics map[string]any, key string) float64 {
	switch v := metrics[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func metricBool(metrics map[string]any, key string) bool {
	v, ok := metrics[key].(bool)

	return ok && v
}

// buildRunSummary folds the per-stage metric maps into the persisted
// aggregate. Model usage may be reported by several stages: tokens and
// cost accumulate, latency keeps the worst reported average.
func buildRunSummary(job *models.Job, status models.JobStatus, results []models.StageResult, startedAt, finishedAt time.Time) *models.RunSummary {
	summary := &models.RunSummary{
		ID:            uuid.New().String(),
		JobID:         job.ID,
		TriggerSource: job.TriggerSource,
		Status:        status,
		StartedAt:     startedAt,
		FinishedAt:    finishedAt,
		DurationMS:    finishedAt.Sub(startedAt).Milliseconds(),
	}

	for _, result := range results {
		m := result.Metrics

		switch result.Stage {
		case models.StageIngest:
			summary.Ingest = models.IngestCounters{
				Ingested:         metricInt(m, "ingested"),
				SkippedDuplicate: metricInt(m, "skipped_duplicate"),
				BodiesDownloaded: metricInt(m, "bodies_downloaded"),
				BodyFailures:     metricInt(m, "body_failures"),
				Errors:           metricInt(m, "errors"),
			}
		case models.StageClassify:
			summary.Classify = models.ClassifyCounters{
				Total:       metricInt(m, "total"),
				Succeeded:   metricInt(m, "succeeded"),
				ViaModel:    metricInt(m, "via_model"),
				ViaFallback: metricInt(m, "via_fallback"),
				Failed:      metricInt(m, "failed"),
				Errors:      metricInt(m, "errors"),
			}
		case models.StageNeutralize:
			summary.Neutralize = models.NeutralizeCounters{
				Attempted: metricInt(m, "attempted"),
				Succeeded: metricInt(m, "succeeded"),
				Skipped:   metricInt(m, "skipped"),
				Failed:    metricInt(m, "failed"),
			}
		case models.StageQualityCheck:
			summary.Quality = models.QualityCounters{
				Checked: metricInt(m, "checked"),
				Passed:  metricInt(m, "passed"),
				Failed:  metricInt(m, "failed"),
			}
		case models.StageDigest:
			summary.Digest = models.DigestCounters{
				Stories:  metricInt(m, "stories"),
				Sections: metricInt(m, "sections"),
				Empty:    metricBool(m, "empty"),
			}
		case models.StageLinkCheck, models.StageEvaluation, models.StageOptimization:
		}

		summary.Model.TotalTokens += metricInt(m, "total_tokens")
		summary.Model.EstimatedCost += metricFloat(m, "estimated_cost")

		if latency := metricFloat(m, "avg_latency_ms"); latency > summary.Model.AvgLatencyMS {
			summary.Model.AvgLatencyMS = latency
		}
	}

	return summary
}
