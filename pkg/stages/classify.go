package stages

import (
	"context"
	"log/slog"

	"github.com/unspun/unspun/pkg/models"
	"github.com/unspun/unspun/pkg/protocol"
)

type classifyStage struct {
	classifier protocol.Classifier
	limit      int
	logger     *slog.Logger
}

// NewClassifyFactory adapts a Classifier into the classify stage.
func NewClassifyFactory(classifier protocol.Classifier) protocol.StageFactory {
	return &funcFactory{
		kind: models.StageClassify,
		create: func(_ map[string]any, logger *slog.Logger) (protocol.Stage, error) {
			return &classifyStage{
				classifier: classifier,
				limit:      DefaultClassifyLimit,
				logger:     logger.With("stage", models.StageClassify),
			}, nil
		},
	}
}

func (s *classifyStage) Kind() models.StageKind { return models.StageClassify }
func (s *classifyStage) Critical() bool         { return true }

func (s *classifyStage) Run(ctx context.Context, _ *models.Job) (*protocol.StageOutput, error) {
	counts, err := s.classifier.ClassifyPending(ctx, s.limit)
	if err != nil {
		return nil, err
	}

	return &protocol.StageOutput{
		Status: outputStatus(counts.Succeeded, counts.Failed),
		Metrics: map[string]any{
			"total":        counts.Total,
			"succeeded":    counts.Succeeded,
			"via_model":    counts.ViaModel,
			"via_fallback": counts.ViaFallback,
			"failed":       counts.Failed,
			"errors":       counts.Errors,
		},
	}, nil
}
