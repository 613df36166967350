// Package pipeline sequences the daily run: stages execute in
// dependency order with per-stage failure isolation, cooperative
// cancellation at stage boundaries, and a persisted aggregate at the
// end.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/unspun/unspun/pkg/alerts"
	"github.com/unspun/unspun/pkg/clock"
	"github.com/unspun/unspun/pkg/config"
	"github.com/unspun/unspun/pkg/eventbus"
	"github.com/unspun/unspun/pkg/events"
	"github.com/unspun/unspun/pkg/models"
	"github.com/unspun/unspun/pkg/otelhelper"
	"github.com/unspun/unspun/pkg/persistence"
	"github.com/unspun/unspun/pkg/protocol"
	"github.com/unspun/unspun/pkg/registry"
)

// coordinatorStage tags error records raised outside any stage.
const coordinatorStage = "coordinator"

// RunResult is what the coordinator hands back to its caller.
type RunResult struct {
	Status        models.JobStatus
	RunSummaryID  string
	Errors        []models.ErrorRecord
	StageProgress map[string]map[string]any
	Duration      time.Duration
}

// Coordinator drives one job through the stage chain.
type Coordinator struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventPublisher
	alerts      *alerts.Evaluator
	clock       clock.Clock
	tracer      trace.Tracer
	settings    *config.Settings
	pool        *workerPool
	workerID    string
}

// NewCoordinator wires a coordinator. eventBus and tracer may be nil;
// publishing and tracing are then skipped.
func NewCoordinator(
	logger *slog.Logger,
	p persistence.Persistence,
	reg *registry.Registry,
	bus eventbus.EventPublisher,
	alertEval *alerts.Evaluator,
	clk clock.Clock,
	tracer trace.Tracer,
	settings *config.Settings,
	workerID string,
) *Coordinator {
	return &Coordinator{
		logger:      logger.With("module", "pipeline"),
		persistence: p,
		registry:    reg,
		eventBus:    bus,
		alerts:      alertEval,
		clock:       clk,
		tracer:      tracer,
		settings:    settings,
		pool:        newWorkerPool(2),
		workerID:    workerID,
	}
}

// Execute runs the job to a terminal status. The returned error is
// non-nil only for coordinator-level failures (persistence breaking
// mid-run); per-stage failures are folded into the result instead.
func (c *Coordinator) Execute(ctx context.Context, job *models.Job) (result *RunResult, err error) {
	logger := c.logger.With("job_id", job.ID, "trace_id", job.TraceID)
	startedAt := c.clock.Now()

	defer func() {
		// A panic escaping the run body is a coordinator failure: the
		// whole run flips to failed, unlike an isolated stage failure.
		if r := recover(); r != nil {
			logger.Error("Run aborted by coordinator panic", "panic", r)

			result, err = c.abortRun(ctx, job, startedAt, fmt.Errorf("coordinator panic: %v", r))
		}
	}()

	job.Status = models.JobStatusRunning
	job.StartedAt = &startedAt

	if job.StageProgress == nil {
		job.StageProgress = make(map[string]map[string]any)
	}

	if saveErr := c.persistence.JobRepository().Save(ctx, job); saveErr != nil {
		return c.abortRun(ctx, job, startedAt, fmt.Errorf("failed to mark job running: %w", saveErr))
	}

	c.publish(ctx, job.ID, events.JobStarted{
		BaseEvent:     c.baseEvent(events.JobStartedEvent, job.ID),
		TraceID:       job.TraceID,
		TriggerSource: job.TriggerSource,
	})

	logger.Info("Starting pipeline run", "trigger_source", job.TriggerSource)

	var (
		results   []models.StageResult
		critical  = make(map[models.StageKind]bool)
		cancelled bool
	)

	for _, kind := range c.mandatoryStages(job) {
		if c.isCancelled(ctx, job) {
			cancelled = true

			break
		}

		result, crit := c.runStage(ctx, logger, job, kind)
		results = append(results, result)
		critical[kind] = crit
	}

	finishedAt := c.clock.Now()

	var status models.JobStatus
	if cancelled {
		status = models.JobStatusCancelled

		job.Errors = append(job.Errors, models.ErrorRecord{
			Stage:   coordinatorStage,
			Message: "Job was cancelled",
		})
	} else {
		status = aggregateStatus(results, critical)
	}

	var summaryID string

	if !cancelled {
		summary := buildRunSummary(job, status, results, startedAt, finishedAt)
		summary.Alerts = c.alerts.Evaluate(summary)

		if saveErr := c.persistence.RunSummaryRepository().Save(ctx, summary); saveErr != nil {
			return c.abortRun(ctx, job, startedAt, fmt.Errorf("failed to persist run summary: %w", saveErr))
		}

		summaryID = summary.ID
		job.RunSummaryID = &summaryID

		if len(summary.Alerts) > 0 {
			logger.Warn("Run raised alerts", "alerts", summary.Alerts)

			c.publish(ctx, job.ID, events.AlertRaised{
				BaseEvent:    c.baseEvent(events.AlertRaisedEvent, job.ID),
				RunSummaryID: summary.ID,
				Alerts:       summary.Alerts,
			})
		}

		// Optional stages run only once the summary exists; their
		// outcome can no longer change the run's status.
		c.runOptionalStages(ctx, logger, job, summary)
	}

	observedAtStage := ""
	if job.CurrentStage != nil {
		observedAtStage = *job.CurrentStage
	}

	job.Status = status
	job.CurrentStage = nil
	job.FinishedAt = &finishedAt

	if saveErr := c.persistence.JobRepository().Save(ctx, job); saveErr != nil {
		return nil, fmt.Errorf("failed to persist terminal job state: %w", saveErr)
	}

	duration := finishedAt.Sub(startedAt)
	c.publishTerminal(ctx, job, status, summaryID, observedAtStage, duration, len(results))

	logger.Info("Pipeline run finished",
		"status", status,
		"duration_ms", duration.Milliseconds(),
		"stages_run", len(results))

	return &RunResult{
		Status:        status,
		RunSummaryID:  summaryID,
		Errors:        job.Errors,
		StageProgress: job.StageProgress,
		Duration:      duration,
	}, nil
}

// mandatoryStages is the dependency chain up to and including digest
// assembly, plus link validation unless the job disables it.
func (c *Coordinator) mandatoryStages(job *models.Job) []models.StageKind {
	kinds := []models.StageKind{
		models.StageIngest,
		models.StageClassify,
		models.StageNeutralize,
		models.StageQualityCheck,
		models.StageDigest,
	}

	// Link validation runs unless the job explicitly disables it.
	if v, ok := job.Config["validate_links"].(bool); !ok || v {
		kinds = append(kinds, models.StageLinkCheck)
	}

	return kinds
}

// runStage executes one stage through the uniform wrapper: record the
// current stage, offload the work, fold the outcome into a
// StageResult, and push progress to the job record. Failures are
// isolated here; the chain continues regardless. The second return is
// the stage's own Critical() answer, which decides whether a failure
// lands in the job's error list and in status aggregation.
func (c *Coordinator) runStage(ctx context.Context, logger *slog.Logger, job *models.Job, kind models.StageKind) (models.StageResult, bool) {
	stageLogger := logger.With("stage", kind)
	stageStart := c.clock.Now()

	stageName := string(kind)
	job.CurrentStage = &stageName

	spanCtx := ctx

	if c.tracer != nil {
		var span trace.Span

		spanCtx, span = otelhelper.StartSpan(ctx, c.tracer, "stage."+stageName,
			attribute.String(otelhelper.JobIDKey, job.ID),
			attribute.String(otelhelper.StageKey, stageName),
		)
		defer span.End()
	}

	c.publish(ctx, job.ID, events.StageStarted{
		BaseEvent: c.baseEvent(events.StageStartedEvent, job.ID),
		Stage:     kind,
	})

	result := models.StageResult{Stage: kind}

	output, critical, err := c.executeStage(spanCtx, job, kind)

	result.Duration = c.clock.Now().Sub(stageStart)

	switch {
	case err != nil:
		stageLogger.Error("Stage failed", "error", err, "duration_ms", result.Duration.Milliseconds())

		result.Status = models.StageFailed
		result.Errors = []string{err.Error()}

		if critical {
			job.Errors = append(job.Errors, models.ErrorRecord{
				Stage:   stageName,
				Message: err.Error(),
			})
		}
	default:
		result.Status = output.Status
		result.Metrics = output.Metrics
		result.Errors = output.Errors

		stageLogger.Info("Stage finished",
			"status", result.Status,
			"duration_ms", result.Duration.Milliseconds())
	}

	job.StageProgress[stageName] = result.Progress()

	if updateErr := c.persistence.JobRepository().UpdateStage(ctx, job.ID, stageName, result.Progress()); updateErr != nil {
		stageLogger.Error("Failed to persist stage progress", "error", updateErr)
	}

	c.publish(ctx, job.ID, events.StageFinished{
		BaseEvent:  c.baseEvent(events.StageFinishedEvent, job.ID),
		Stage:      kind,
		Status:     result.Status,
		DurationMs: result.Duration.Milliseconds(),
		Metrics:    result.Metrics,
		Errors:     result.Errors,
	})

	return result, critical
}

// executeStage resolves the stage from the registry and runs it on the
// pool under the stage timeout. The bool is the stage's Critical()
// answer; when the stage cannot even be created there is no instance
// to ask, and a missing mandatory stage must count against the run,
// so the fallback treats every kind but link validation as critical.
func (c *Coordinator) executeStage(ctx context.Context, job *models.Job, kind models.StageKind) (*protocol.StageOutput, bool, error) {
	stage, err := c.registry.CreateStage(kind, job.Config)
	if err != nil {
		return nil, kind != models.StageLinkCheck, err
	}

	critical := stage.Critical()

	timeout := c.settings.Stages.Timeout
	if seconds := job.ConfigInt("stage_timeout_seconds", 0); seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}

	output, err := c.pool.run(ctx, stage, job, timeout)
	if err != nil {
		return nil, critical, err
	}

	if output == nil {
		return nil, critical, fmt.Errorf("stage %s returned no output", kind)
	}

	return output, critical, nil
}

// runOptionalStages runs evaluation and optimization when the job
// enables them. Evaluation attaches its scores to the already
// persisted summary.
func (c *Coordinator) runOptionalStages(ctx context.Context, logger *slog.Logger, job *models.Job, summary *models.RunSummary) {
	for _, kind := range []models.StageKind{models.StageEvaluation, models.StageOptimization} {
		flag := models.OptionalStages[kind]
		if !job.ConfigBool(flag) {
			continue
		}

		if c.isCancelled(ctx, job) {
			logger.Info("Skipping optional stage, cancellation requested", "stage", kind)

			return
		}

		result, _ := c.runStage(ctx, logger, job, kind)

		if kind == models.StageEvaluation && result.Status != models.StageFailed {
			if eval := c.attachEvaluation(ctx, logger, summary.ID, result.Metrics); eval != nil {
				summary.Evaluation = eval
				job.EvaluationID = &eval.EvaluationID
			}
		}
	}
}

func (c *Coordinator) attachEvaluation(ctx context.Context, logger *slog.Logger, summaryID string, metrics map[string]any) *models.EvaluationResult {
	eval := &models.EvaluationResult{
		AccuracyScore: metricFloat(metrics, "accuracy_score"),
		QualityScore:  metricFloat(metrics, "quality_score"),
		EstimatedCost: metricFloat(metrics, "estimated_cost"),
	}

	if id, ok := metrics["evaluation_id"].(string); ok {
		eval.EvaluationID = id
	}

	if err := c.persistence.RunSummaryRepository().AttachEvaluation(ctx, summaryID, eval); err != nil {
		logger.Error("Failed to attach evaluation to run summary", "error", err)
	}

	return eval
}

// isCancelled polls the stored flag. Only an external actor sets it;
// the coordinator reads it at stage boundaries and nowhere else.
func (c *Coordinator) isCancelled(ctx context.Context, job *models.Job) bool {
	if job.CancelRequested {
		return true
	}

	cancelled, err := c.persistence.JobRepository().IsCancelled(ctx, job.ID)
	if err != nil {
		c.logger.Error("Failed to read cancellation flag", "job_id", job.ID, "error", err)

		return false
	}

	job.CancelRequested = cancelled

	return cancelled
}

// abortRun is the coordinator-failure path: the whole run flips to
// failed regardless of how individual stages fared.
func (c *Coordinator) abortRun(ctx context.Context, job *models.Job, startedAt time.Time, cause error) (*RunResult, error) {
	finishedAt := c.clock.Now()

	job.Status = models.JobStatusFailed
	job.CurrentStage = nil
	job.FinishedAt = &finishedAt
	job.Errors = append(job.Errors, models.ErrorRecord{
		Stage:   coordinatorStage,
		Message: cause.Error(),
	})

	if saveErr := c.persistence.JobRepository().Save(ctx, job); saveErr != nil {
		c.logger.Error("Failed to persist aborted job", "job_id", job.ID, "error", saveErr)
	}

	duration := finishedAt.Sub(startedAt)

	c.publish(ctx, job.ID, events.JobFailed{
		BaseEvent:  c.baseEvent(events.JobFailedEvent, job.ID),
		Error:      cause.Error(),
		Errors:     job.Errors,
		DurationMs: duration.Milliseconds(),
	})

	return &RunResult{
		Status:        models.JobStatusFailed,
		Errors:        job.Errors,
		StageProgress: job.StageProgress,
		Duration:      duration,
	}, cause
}

func (c *Coordinator) publishTerminal(ctx context.Context, job *models.Job, status models.JobStatus, summaryID, observedAtStage string, duration time.Duration, stagesRun int) {
	switch status {
	case models.JobStatusCancelled:
		c.publish(ctx, job.ID, events.JobCancelled{
			BaseEvent:       c.baseEvent(events.JobCancelledEvent, job.ID),
			ObservedAtStage: observedAtStage,
			DurationMs:      duration.Milliseconds(),
		})
	case models.JobStatusFailed:
		message := "all stages failed"
		if len(job.Errors) > 0 {
			message = job.Errors[len(job.Errors)-1].Message
		}

		c.publish(ctx, job.ID, events.JobFailed{
			BaseEvent:  c.baseEvent(events.JobFailedEvent, job.ID),
			Error:      message,
			Errors:     job.Errors,
			DurationMs: duration.Milliseconds(),
		})
	case models.JobStatusCompleted, models.JobStatusPartial, models.JobStatusPending, models.JobStatusRunning:
		c.publish(ctx, job.ID, events.JobFinished{
			BaseEvent:    c.baseEvent(events.JobFinishedEvent, job.ID),
			Status:       status,
			RunSummaryID: summaryID,
			DurationMs:   duration.Milliseconds(),
			StagesRun:    stagesRun,
		})
	}
}

func (c *Coordinator) baseEvent(eventType events.EventType, jobID string) events.BaseEvent {
	base := events.NewBaseEvent(eventType, jobID)
	base.WorkerID = c.workerID

	return base
}

func (c *Coordinator) publish(ctx context.Context, key string, event eventbus.Event) {
	if c.eventBus == nil {
		return
	}

	if err := c.eventBus.Publish(ctx, key, event); err != nil {
		c.logger.Error("Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
