// Package schedule provides the cron trigger that starts the daily
// pipeline run.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/unspun/unspun/pkg/models"
	"github.com/unspun/unspun/pkg/protocol"
)

// Trigger fires a scheduled pipeline run on a cron expression. A run
// that is still in flight when the next tick arrives is not stacked;
// the tick is skipped.
type Trigger struct {
	CronExpr  string
	JobConfig map[string]any
	Enabled   bool

	cron     *cron.Cron
	callback protocol.TriggerCallback
	logger   *slog.Logger
}

func NewTrigger(config map[string]any, logger *slog.Logger) (*Trigger, error) {
	cronExpr, _ := config["cron"].(string)
	jobConfig, _ := config["job_config"].(map[string]any)

	enabled := true
	if v, ok := config["enabled"].(bool); ok {
		enabled = v
	}

	trigger := &Trigger{
		CronExpr:  cronExpr,
		JobConfig: jobConfig,
		Enabled:   enabled,
		logger: logger.With(
			"module", "schedule_trigger",
			"cron", cronExpr,
		),
	}

	if err := trigger.Validate(); err != nil {
		return nil, err
	}

	return trigger, nil
}

func (t *Trigger) Validate() error {
	if t.CronExpr == "" {
		return errors.New("schedule trigger cron expression is required")
	}

	if _, err := cron.ParseStandard(t.CronExpr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	return nil
}

func (t *Trigger) Start(ctx context.Context, callback protocol.TriggerCallback) error {
	if !t.Enabled {
		t.logger.InfoContext(ctx, "Schedule trigger is disabled")

		return nil
	}

	t.logger.InfoContext(ctx, "Starting schedule trigger")
	t.callback = callback

	t.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if _, err := t.cron.AddFunc(t.CronExpr, t.run); err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	t.cron.Start()

	return nil
}

func (t *Trigger) run() {
	t.logger.Info("Cron tick, requesting scheduled run")

	data := map[string]any{
		"trigger_source": string(models.TriggerSourceScheduled),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if t.JobConfig != nil {
		data["config"] = t.JobConfig
	}

	if err := t.callback(context.Background(), data); err != nil {
		t.logger.Error("Failed to request scheduled run", "error", err)
	}
}

func (t *Trigger) Stop(ctx context.Context) error {
	t.logger.InfoContext(ctx, "Stopping schedule trigger")

	if t.cron != nil {
		t.cron.Stop()
	}

	return nil
}
