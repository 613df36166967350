package stages

import (
	"context"
	"log/slog"
	"sync"

	"github.com/unspun/unspun/pkg/config"
	"github.com/unspun/unspun/pkg/models"
	"github.com/unspun/unspun/pkg/protocol"
	"github.com/unspun/unspun/pkg/resilience"
	"github.com/unspun/unspun/pkg/verdict"
)

// Article is one pending neutralization unit.
type Article struct {
	ID     string
	Source verdict.Source
}

// ArticleStore supplies pending articles and records per-article
// outcomes.
type ArticleStore interface {
	PendingArticles(ctx context.Context, limit int) ([]Article, error)
	SaveRewrite(ctx context.Context, id string, rewrite verdict.Rewrite) error
	MarkSkipped(ctx context.Context, id, reason string) error
	MarkFailed(ctx context.Context, id, reason string) error
}

// Generator produces one candidate rewrite. instructions is empty on
// the first attempt and carries repair guidance afterwards.
type Generator interface {
	Rewrite(ctx context.Context, source verdict.Source, instructions string) (verdict.Rewrite, error)
}

// GateNeutralizer drives pending articles through the verdict gate.
// Every model call goes through the rate limiter, the circuit breaker
// and the retry policy, in that order: the limiter paces outgoing
// calls, the breaker sits closest to the model so retries observe its
// state, and the retry policy reissues transient failures.
type GateNeutralizer struct {
	store     ArticleStore
	generator Generator
	gate      verdict.Gate
	breaker   *resilience.CircuitBreaker
	limiter   *resilience.RateLimiter
	retry     resilience.RetryPolicy
	logger    *slog.Logger
}

// NewGateNeutralizer wires the gate and the resilience primitives
// around a generator. The breaker and limiter come from the shared
// registry so concurrent runs against the same model see one breaker.
func NewGateNeutralizer(store ArticleStore, generator Generator, settings config.ResilienceSettings, reg *resilience.Registry, logger *slog.Logger) *GateNeutralizer {
	breakerConfig := resilience.DefaultBreakerConfig()
	breakerConfig.FailureThreshold = settings.BreakerFailureThreshold
	breakerConfig.ResetTimeout = settings.BreakerResetTimeout

	retry := resilience.DefaultRetryPolicy()
	retry.MaxAttempts = settings.RetryMaxAttempts
	retry.MinWait = settings.RetryMinWait
	retry.MaxWait = settings.RetryMaxWait

	return &GateNeutralizer{
		store:     store,
		generator: generator,
		gate:      verdict.NewGate(logger),
		breaker:   reg.Breaker("neutralize-model", breakerConfig),
		limiter:   reg.Limiter("neutralize-model", float64(settings.LimiterMaxCalls), settings.LimiterRefillPerSec),
		retry:     retry,
		logger:    logger.With("module", "neutralizer"),
	}
}

// NeutralizePending fetches up to limit pending articles and processes
// them on workerCount goroutines. Rejections and disqualifications are
// recorded per article; only fetching the batch itself can fail the
// whole call.
func (n *GateNeutralizer) NeutralizePending(ctx context.Context, limit, workerCount int) (models.NeutralizeCounters, error) {
	var counters models.NeutralizeCounters

	articles, err := n.store.PendingArticles(ctx, limit)
	if err != nil {
		return counters, err
	}

	if len(articles) == 0 {
		return counters, nil
	}

	if workerCount < 1 {
		workerCount = 1
	}

	if workerCount > len(articles) {
		workerCount = len(articles)
	}

	work := make(chan Article)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for range workerCount {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for article := range work {
				outcome := n.processArticle(ctx, article)

				mu.Lock()
				counters.Attempted++

				switch outcome {
				case verdict.DispositionAccepted:
					counters.Succeeded++
				case verdict.DispositionDisqualified:
					counters.Skipped++
				case verdict.DispositionRejected:
					counters.Failed++
				}
				mu.Unlock()
			}
		}()
	}

	for _, article := range articles {
		work <- article
	}

	close(work)
	wg.Wait()

	return counters, nil
}

// processArticle runs one article through the gate and records the
// outcome. Persistence failures after an accepted rewrite downgrade
// the outcome to rejected.
func (n *GateNeutralizer) processArticle(ctx context.Context, article Article) verdict.Disposition {
	logger := n.logger.With("article_id", article.ID)

	outcome, err := n.gate.Run(ctx, article.Source, func(ctx context.Context, instructions string) (verdict.Rewrite, error) {
		return n.generate(ctx, article.Source, instructions)
	})
	if err != nil {
		logger.Error("Neutralization failed", "error", err, "attempts", outcome.Attempts)
		n.record(ctx, logger, article.ID, verdict.DispositionRejected, err.Error())

		return verdict.DispositionRejected
	}

	switch outcome.Disposition {
	case verdict.DispositionAccepted:
		if err := n.store.SaveRewrite(ctx, article.ID, outcome.Candidate); err != nil {
			logger.Error("Failed to save accepted rewrite", "error", err)

			return verdict.DispositionRejected
		}
	case verdict.DispositionDisqualified:
		n.record(ctx, logger, article.ID, outcome.Disposition, outcome.Last.RepairInstructions())
	case verdict.DispositionRejected:
		logger.Warn("Rewrite rejected by the gate", "attempts", outcome.Attempts, "reasons", outcome.Last.RepairInstructions())
		n.record(ctx, logger, article.ID, outcome.Disposition, outcome.Last.RepairInstructions())
	}

	return outcome.Disposition
}

// generate issues one model call behind the limiter, the breaker and
// the retry policy.
func (n *GateNeutralizer) generate(ctx context.Context, source verdict.Source, instructions string) (verdict.Rewrite, error) {
	if err := n.limiter.Acquire(ctx, 1); err != nil {
		return verdict.Rewrite{}, err
	}

	return resilience.Retry(ctx, n.retry, func() (verdict.Rewrite, error) {
		return resilience.Call(n.breaker, func() (verdict.Rewrite, error) {
			return n.generator.Rewrite(ctx, source, instructions)
		})
	})
}

func (n *GateNeutralizer) record(ctx context.Context, logger *slog.Logger, id string, disposition verdict.Disposition, reason string) {
	var err error

	switch disposition {
	case verdict.DispositionDisqualified:
		err = n.store.MarkSkipped(ctx, id, reason)
	default:
		err = n.store.MarkFailed(ctx, id, reason)
	}

	if err != nil {
		logger.Error("Failed to record article outcome", "disposition", disposition, "error", err)
	}
}

var _ protocol.Neutralizer = (*GateNeutralizer)(nil)
