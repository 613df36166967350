package stages

import (
	"context"
	"log/slog"

	"github.com/unspun/unspun/pkg/models"
	"github.com/unspun/unspun/pkg/protocol"
)

type linkCheckStage struct {
	validator protocol.LinkValidator
	limit     int
	logger    *slog.Logger
}

// NewLinkCheckFactory adapts a LinkValidator into the link-validation
// stage. The stage is advisory: it reports outcome counts and never
// influences the run's status or error list.
func NewLinkCheckFactory(validator protocol.LinkValidator) protocol.StageFactory {
	return &funcFactory{
		kind: models.StageLinkCheck,
		create: func(_ map[string]any, logger *slog.Logger) (protocol.Stage, error) {
			return &linkCheckStage{
				validator: validator,
				limit:     DefaultLinkCheckLimit,
				logger:    logger.With("stage", models.StageLinkCheck),
			}, nil
		},
	}
}

func (s *linkCheckStage) Kind() models.StageKind { return models.StageLinkCheck }
func (s *linkCheckStage) Critical() bool         { return false }

func (s *linkCheckStage) Run(ctx context.Context, _ *models.Job) (*protocol.StageOutput, error) {
	outcomes, err := s.validator.ValidateBatch(ctx, s.limit)
	if err != nil {
		return nil, err
	}

	if broken := outcomes["broken"]; broken > 0 {
		s.logger.Warn("Broken links found in assembled briefs", "broken", broken)
	}

	metrics := make(map[string]any, len(outcomes))
	for outcome, count := range outcomes {
		metrics[outcome] = count
	}

	return &protocol.StageOutput{
		Status:  models.StageCompleted,
		Metrics: metrics,
	}, nil
}
