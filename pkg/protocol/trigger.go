package protocol

import (
	"context"
	"log/slog"
)

// TriggerCallback receives the trigger's payload: the trigger source
// plus any per-run job configuration.
type TriggerCallback func(ctx context.Context, data map[string]any) error

// Trigger is a source of pipeline run requests. Start returns once the
// trigger is armed; firing happens on its own goroutines until Stop.
type Trigger interface {
	Start(ctx context.Context, callback TriggerCallback) error
	Stop(ctx context.Context) error
	Validate() error
}

// TriggerFactory builds a trigger from its configuration map.
type TriggerFactory interface {
	Create(config map[string]any, logger *slog.Logger) (Trigger, error)
	ID() string
}
