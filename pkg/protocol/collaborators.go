package protocol

import (
	"context"

	"github.com/unspun/unspun/pkg/models"
)

// Collaborator contracts. The components behind these interfaces are
// owned elsewhere (fetchers, model clients, renderers); the pipeline
// only drives them and aggregates what they report.

// Ingestor pulls fresh articles from configured feeds and downloads
// bodies.
type Ingestor interface {
	IngestAll(ctx context.Context, limit int, traceID string) (models.IngestCounters, error)
}

// Classifier assigns topics to pending articles, via the model with a
// heuristic fallback.
type Classifier interface {
	ClassifyPending(ctx context.Context, limit int) (models.ClassifyCounters, error)
}

// Neutralizer rewrites manipulative framing out of pending articles.
type Neutralizer interface {
	NeutralizePending(ctx context.Context, limit, workerCount int) (models.NeutralizeCounters, error)
}

// QualityChecker verifies neutralized output against source articles.
type QualityChecker interface {
	RunBatch(ctx context.Context, traceID string) (models.QualityCounters, error)
}

// DigestAssembler builds the daily brief from accepted stories.
type DigestAssembler interface {
	AssembleBrief(ctx context.Context, cutoffHours int, force bool) (models.DigestCounters, error)
}

// LinkValidator checks outbound links in assembled briefs. Outcome
// counts are keyed by outcome name (ok, broken, redirected, skipped).
type LinkValidator interface {
	ValidateBatch(ctx context.Context, limit int) (map[string]int, error)
}

// RunEvaluator scores a finished run on a sample of its output.
type RunEvaluator interface {
	RunEvaluation(ctx context.Context, runID string, sampleSize int) (*models.EvaluationResult, error)
}

// Optimizer turns an evaluation into prompt adjustments. Returns the
// number of changes applied.
type Optimizer interface {
	AnalyzeAndImprove(ctx context.Context, evaluationID string, autoApply bool) (int, error)
}
