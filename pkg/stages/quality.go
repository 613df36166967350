package stages

import (
	"context"
	"log/slog"

	"github.com/unspun/unspun/pkg/models"
	"github.com/unspun/unspun/pkg/protocol"
)

type qualityStage struct {
	checker protocol.QualityChecker
	logger  *slog.Logger
}

// NewQualityFactory adapts a QualityChecker into the quality-check stage.
func NewQualityFactory(checker protocol.QualityChecker) protocol.StageFactory {
	return &funcFactory{
		kind: models.StageQualityCheck,
		create: func(_ map[string]any, logger *slog.Logger) (protocol.Stage, error) {
			return &qualityStage{
				checker: checker,
				logger:  logger.With("stage", models.StageQualityCheck),
			}, nil
		},
	}
}

func (s *qualityStage) Kind() models.StageKind { return models.StageQualityCheck }
func (s *qualityStage) Critical() bool         { return true }

func (s *qualityStage) Run(ctx context.Context, job *models.Job) (*protocol.StageOutput, error) {
	counts, err := s.checker.RunBatch(ctx, job.TraceID)
	if err != nil {
		return nil, err
	}

	// A story failing its check is the check working, not the stage
	// failing: the stage completes as long as the batch ran.
	return &protocol.StageOutput{
		Status: models.StageCompleted,
		Metrics: map[string]any{
			"checked": counts.Checked,
			"passed":  counts.Passed,
			"failed":  counts.Failed,
		},
	}, nil
}
