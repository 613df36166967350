package stages

import (
	"context"
	"log/slog"

	"github.com/unspun/unspun/pkg/models"
	"github.com/unspun/unspun/pkg/protocol"
)

type ingestStage struct {
	ingestor protocol.Ingestor
	limit    int
	logger   *slog.Logger
}

// NewIngestFactory adapts an Ingestor into the ingest stage.
func NewIngestFactory(ingestor protocol.Ingestor) protocol.StageFactory {
	return &funcFactory{
		kind: models.StageIngest,
		create: func(_ map[string]any, logger *slog.Logger) (protocol.Stage, error) {
			return &ingestStage{
				ingestor: ingestor,
				limit:    DefaultIngestLimit,
				logger:   logger.With("stage", models.StageIngest),
			}, nil
		},
	}
}

func (s *ingestStage) Kind() models.StageKind { return models.StageIngest }
func (s *ingestStage) Critical() bool         { return true }

func (s *ingestStage) Run(ctx context.Context, job *models.Job) (*protocol.StageOutput, error) {
	counts, err := s.ingestor.IngestAll(ctx, s.limit, job.TraceID)
	if err != nil {
		return nil, err
	}

	return &protocol.StageOutput{
		Status: outputStatus(counts.Ingested, counts.Errors),
		Metrics: map[string]any{
			"ingested":          counts.Ingested,
			"skipped_duplicate": counts.SkippedDuplicate,
			"bodies_downloaded": counts.BodiesDownloaded,
			"body_failures":     counts.BodyFailures,
			"errors":            counts.Errors,
		},
	}, nil
}
