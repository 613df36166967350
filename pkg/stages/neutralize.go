package stages

import (
	"context"
	"log/slog"

	"github.com/unspun/unspun/pkg/config"
	"github.com/unspun/unspun/pkg/models"
	"github.com/unspun/unspun/pkg/protocol"
)

type neutralizeStage struct {
	neutralizer protocol.Neutralizer
	limit       int
	logger      *slog.Logger
}

// NewNeutralizeFactory adapts a Neutralizer into the neutralize stage.
func NewNeutralizeFactory(neutralizer protocol.Neutralizer) protocol.StageFactory {
	return &funcFactory{
		kind: models.StageNeutralize,
		create: func(_ map[string]any, logger *slog.Logger) (protocol.Stage, error) {
			return &neutralizeStage{
				neutralizer: neutralizer,
				limit:       DefaultNeutralizeLmt,
				logger:      logger.With("stage", models.StageNeutralize),
			}, nil
		},
	}
}

func (s *neutralizeStage) Kind() models.StageKind { return models.StageNeutralize }
func (s *neutralizeStage) Critical() bool         { return true }

func (s *neutralizeStage) Run(ctx context.Context, job *models.Job) (*protocol.StageOutput, error) {
	workers := job.ConfigInt("neutralize_workers", config.DefaultNeutralizeWorkers)

	counts, err := s.neutralizer.NeutralizePending(ctx, s.limit, workers)
	if err != nil {
		return nil, err
	}

	return &protocol.StageOutput{
		Status: outputStatus(counts.Succeeded, counts.Failed),
		Metrics: map[string]any{
			"attempted": counts.Attempted,
			"succeeded": counts.Succeeded,
			"skipped":   counts.Skipped,
			"failed":    counts.Failed,
		},
	}, nil
}
