package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/trace"

	"github.com/unspun/unspun/pkg/alerts"
	"github.com/unspun/unspun/pkg/clock"
	"github.com/unspun/unspun/pkg/config"
	"github.com/unspun/unspun/pkg/eventbus"
	"github.com/unspun/unspun/pkg/events"
	"github.com/unspun/unspun/pkg/models"
	"github.com/unspun/unspun/pkg/persistence"
	"github.com/unspun/unspun/pkg/pipeline"
	"github.com/unspun/unspun/pkg/protocol"
	"github.com/unspun/unspun/pkg/registry"
	"github.com/unspun/unspun/pkg/services"
	"github.com/unspun/unspun/pkg/triggers/queue"
	"github.com/unspun/unspun/pkg/triggers/schedule"
)

// defaultQueue is the Redis list polled for externally enqueued run
// requests.
const defaultQueue = "unspun:runs"

// Runner owns one worker process: it arms the triggers, listens for
// job requests on the bus, and drives each job through the pipeline
// coordinator.
type Runner struct {
	id          string
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	store       *config.Store
	clk         clock.Clock
	tracer      trace.Tracer
	jobService  *services.Jobs
	triggers    []protocol.Trigger
}

func NewRunner(
	id string,
	p persistence.Persistence,
	eventBus eventbus.EventBus,
	store *config.Store,
	clk clock.Clock,
	logger *slog.Logger,
	reg *registry.Registry,
) *Runner {
	return &Runner{
		id:          id,
		logger:      logger.With("module", "runner", "worker_id", id),
		persistence: p,
		registry:    reg,
		eventBus:    eventBus,
		store:       store,
		clk:         clk,
		jobService:  services.NewJobs(p, eventBus, logger),
	}
}

func (r *Runner) Start(ctx context.Context) error {
	r.logger.InfoContext(ctx, "Starting runner")

	if err := r.eventBus.Handle(events.JobRequestedEvent, r.handleJobRequested); err != nil {
		return err
	}

	if err := r.eventBus.Subscribe(ctx); err != nil {
		r.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	if err := r.armTriggers(ctx); err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "Runner started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	r.logger.InfoContext(ctx, "Shutting down runner...")

	r.stopTriggers(ctx)

	return nil
}

// armTriggers starts the cron schedule and, when Redis is configured,
// the queue consumer. Both funnel into job submission; execution then
// arrives back through the bus like any other request.
func (r *Runner) armTriggers(ctx context.Context) error {
	settings := r.store.Current()

	if settings.Cron != "" {
		trigger, err := schedule.NewFactory().Create(map[string]any{
			"cron": settings.Cron,
		}, r.logger)
		if err != nil {
			return err
		}

		if err := trigger.Start(ctx, r.submitFromTrigger); err != nil {
			return err
		}

		r.triggers = append(r.triggers, trigger)
	}

	if settings.RedisURL != "" {
		trigger, err := queue.NewFactory().Create(map[string]any{
			"queue": defaultQueue,
			"connection": map[string]any{
				"addr": settings.RedisURL,
			},
		}, r.logger)
		if err != nil {
			return err
		}

		if err := trigger.Start(ctx, r.submitFromTrigger); err != nil {
			return err
		}

		r.triggers = append(r.triggers, trigger)
	}

	return nil
}

func (r *Runner) stopTriggers(ctx context.Context) {
	for _, trigger := range r.triggers {
		if err := trigger.Stop(ctx); err != nil {
			r.logger.ErrorContext(ctx, "Failed to stop trigger", "error", err)
		}
	}
}

// submitFromTrigger turns a trigger payload into a job submission.
func (r *Runner) submitFromTrigger(ctx context.Context, data map[string]any) error {
	req := services.SubmitJobRequest{}

	if source, ok := data["trigger_source"].(string); ok {
		req.TriggerSource = models.TriggerSource(source)
	}

	if jobConfig, ok := data["config"].(map[string]any); ok {
		req.Config = jobConfig
	}

	job, err := r.jobService.Submit(ctx, req)
	if err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "Submitted triggered job", "job_id", job.ID, "trigger_source", job.TriggerSource)

	return nil
}

func (r *Runner) handleJobRequested(ctx context.Context, event any) error {
	requested, ok := event.(*events.JobRequested)
	if !ok {
		r.logger.ErrorContext(ctx, "Invalid event type for JobRequested")

		return nil
	}

	logger := r.logger.With("job_id", requested.JobID, "event_id", requested.ID)
	logger.InfoContext(ctx, "Processing job request")

	if _, err := r.store.Refresh(r.clk.Now()); err != nil {
		logger.WarnContext(ctx, "Settings refresh failed, keeping previous settings", "error", err)
	}

	settings := r.store.Current()

	job, err := r.persistence.JobRepository().GetByID(ctx, requested.JobID)
	if err != nil {
		if persistence.IsJobNotFound(err) {
			logger.WarnContext(ctx, "Requested job no longer exists")

			return nil
		}

		return err
	}

	if job.Status != models.JobStatusPending {
		logger.InfoContext(ctx, "Job already picked up, skipping", "status", job.Status)

		return nil
	}

	coordinator := pipeline.NewCoordinator(
		logger,
		r.persistence,
		r.registry,
		r.eventBus,
		alerts.NewEvaluator(settings.Alerts),
		r.clk,
		r.tracer,
		settings,
		r.id,
	)

	result, err := coordinator.Execute(ctx, job)
	if err != nil {
		logger.ErrorContext(ctx, "Run aborted", "error", err)

		return nil
	}

	logger.InfoContext(ctx, "Run finished",
		"status", result.Status,
		"run_summary_id", result.RunSummaryID,
		"duration", result.Duration)

	return nil
}
