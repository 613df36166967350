package stages

import (
	"context"
	"errors"
	"log/slog"

	"github.com/unspun/unspun/pkg/models"
	"github.com/unspun/unspun/pkg/protocol"
)

// ErrNoRunSummary is returned when the evaluation stage runs before a
// run summary was persisted.
var ErrNoRunSummary = errors.New("no run summary to evaluate")

type evaluationStage struct {
	evaluator  protocol.RunEvaluator
	sampleSize int
	logger     *slog.Logger
}

// NewEvaluationFactory adapts a RunEvaluator into the optional
// evaluation stage. Its scores are surfaced through the stage metrics
// so the coordinator can attach them to the persisted run summary.
func NewEvaluationFactory(evaluator protocol.RunEvaluator) protocol.StageFactory {
	return &funcFactory{
		kind: models.StageEvaluation,
		create: func(_ map[string]any, logger *slog.Logger) (protocol.Stage, error) {
			return &evaluationStage{
				evaluator:  evaluator,
				sampleSize: DefaultSampleSize,
				logger:     logger.With("stage", models.StageEvaluation),
			}, nil
		},
	}
}

func (s *evaluationStage) Kind() models.StageKind { return models.StageEvaluation }
func (s *evaluationStage) Critical() bool         { return false }

func (s *evaluationStage) Run(ctx context.Context, job *models.Job) (*protocol.StageOutput, error) {
	if job.RunSummaryID == nil || *job.RunSummaryID == "" {
		return nil, ErrNoRunSummary
	}

	result, err := s.evaluator.RunEvaluation(ctx, *job.RunSummaryID, s.sampleSize)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Run evaluated",
		"evaluation_id", result.EvaluationID,
		"accuracy", result.AccuracyScore,
		"quality", result.QualityScore)

	return &protocol.StageOutput{
		Status: models.StageCompleted,
		Metrics: map[string]any{
			"evaluation_id":  result.EvaluationID,
			"accuracy_score": result.AccuracyScore,
			"quality_score":  result.QualityScore,
			"estimated_cost": result.EstimatedCost,
		},
	}, nil
}
