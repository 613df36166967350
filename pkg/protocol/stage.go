// Package protocol defines the interfaces and contracts for pluggable pipeline stages.
package protocol

import (
	"context"
	"log/slog"

	"github.com/unspun/unspun/pkg/models"
)

// StageOutput is what a stage implementation hands back to the
// coordinator. The coordinator turns it into a StageResult, adding
// timing. Status distinguishes a clean run from a best-effort one
// where some items failed.
type StageOutput struct {
	Status  models.StageStatus
	Metrics map[string]any
	Errors  []string
}

// Stage is one unit of the pipeline's dependency chain. Run is
// synchronous; the coordinator offloads it to a bounded worker and
// owns timeout and cancellation around it.
type Stage interface {
	// Kind returns the position this stage fills in the chain.
	Kind() models.StageKind

	// Critical reports whether failures contribute to the run's error
	// list. Non-critical stages (link validation) fail silently at the
	// run level; their failures appear only in logs and metrics.
	Critical() bool

	Run(ctx context.Context, job *models.Job) (*StageOutput, error)
}

// StageFactory creates stage instances for one stage kind.
type StageFactory interface {
	Create(config map[string]any, logger *slog.Logger) (Stage, error)
	Kind() models.StageKind
}
