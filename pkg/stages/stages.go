// Package stages adapts the collaborator contracts (fetchers,
// classifiers, rewriters, checkers) into pipeline stages. Each adapter
// translates a collaborator's counters into the metrics map the
// coordinator folds into the run summary.
package stages

import (
	"log/slog"

	"github.com/unspun/unspun/pkg/models"
	"github.com/unspun/unspun/pkg/protocol"
)

// Default batch limits handed to collaborators. Job configuration
// does not override these; they bound one run's unit of work.
const (
	DefaultIngestLimit    = 500
	DefaultClassifyLimit  = 500
	DefaultNeutralizeLmt  = 200
	DefaultLinkCheckLimit = 200
	DefaultCutoffHours    = 24
	DefaultSampleSize     = 20
)

// funcFactory adapts a closure into a StageFactory.
type funcFactory struct {
	kind   models.StageKind
	create func(config map[string]any, logger *slog.Logger) (protocol.Stage, error)
}

func (f *funcFactory) Kind() models.StageKind { return f.kind }

func (f *funcFactory) Create(config map[string]any, logger *slog.Logger) (protocol.Stage, error) {
	return f.create(config, logger)
}

// outputStatus maps a failure count onto the stage-level status: any
// failures with any successes is a best-effort partial.
func outputStatus(succeeded, failed int) models.StageStatus {
	switch {
	case failed == 0:
		return models.StageCompleted
	case succeeded == 0:
		return models.StageFailed
	default:
		return models.StagePartial
	}
}
