package stages

import (
	"context"
	"log/slog"

	"github.com/unspun/unspun/pkg/models"
	"github.com/unspun/unspun/pkg/protocol"
)

type digestStage struct {
	assembler   protocol.DigestAssembler
	cutoffHours int
	logger      *slog.Logger
}

// NewDigestFactory adapts a DigestAssembler into the digest-assembly stage.
func NewDigestFactory(assembler protocol.DigestAssembler) protocol.StageFactory {
	return &funcFactory{
		kind: models.StageDigest,
		create: func(_ map[string]any, logger *slog.Logger) (protocol.Stage, error) {
			return &digestStage{
				assembler:   assembler,
				cutoffHours: DefaultCutoffHours,
				logger:      logger.With("stage", models.StageDigest),
			}, nil
		},
	}
}

func (s *digestStage) Kind() models.StageKind { return models.StageDigest }
func (s *digestStage) Critical() bool         { return true }

func (s *digestStage) Run(ctx context.Context, job *models.Job) (*protocol.StageOutput, error) {
	force := job.ConfigBool("force_digest")

	counts, err := s.assembler.AssembleBrief(ctx, s.cutoffHours, force)
	if err != nil {
		return nil, err
	}

	if counts.Empty {
		s.logger.Warn("Assembled brief is empty")
	}

	return &protocol.StageOutput{
		Status: models.StageCompleted,
		Metrics: map[string]any{
			"stories":  counts.Stories,
			"sections": counts.Sections,
			"empty":    counts.Empty,
		},
	}, nil
}
