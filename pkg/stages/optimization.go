package stages

import (
	"context"
	"log/slog"

	"github.com/unspun/unspun/pkg/models"
	"github.com/unspun/unspun/pkg/protocol"
)

type optimizationStage struct {
	optimizer protocol.Optimizer
	logger    *slog.Logger
}

// NewOptimizationFactory adapts an Optimizer into the optional
// optimization stage. It consumes the evaluation produced earlier in
// the same run; without one it has nothing to analyze.
func NewOptimizationFactory(optimizer protocol.Optimizer) protocol.StageFactory {
	return &funcFactory{
		kind: models.StageOptimization,
		create: func(_ map[string]any, logger *slog.Logger) (protocol.Stage, error) {
			return &optimizationStage{
				optimizer: optimizer,
				logger:    logger.With("stage", models.StageOptimization),
			}, nil
		},
	}
}

func (s *optimizationStage) Kind() models.StageKind { return models.StageOptimization }
func (s *optimizationStage) Critical() bool         { return false }

func (s *optimizationStage) Run(ctx context.Context, job *models.Job) (*protocol.StageOutput, error) {
	if job.EvaluationID == nil || *job.EvaluationID == "" {
		s.logger.Info("No evaluation available, skipping optimization")

		return &protocol.StageOutput{Status: models.StageSkipped}, nil
	}

	autoApply := job.ConfigBool("auto_apply")

	applied, err := s.optimizer.AnalyzeAndImprove(ctx, *job.EvaluationID, autoApply)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Optimization pass finished", "applied", applied, "auto_apply", autoApply)

	return &protocol.StageOutput{
		Status: models.StageCompleted,
		Metrics: map[string]any{
			"applied":    applied,
			"auto_apply": autoApply,
		},
	}, nil
}
