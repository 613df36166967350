package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unspun/unspun/pkg/clock"
)

var errUpstream = errors.New("upstream unavailable")

func newTestBreaker(t *testing.T, config BreakerConfig, clk clock.Clock) *CircuitBreaker {
	t.Helper()

	return NewCircuitBreaker("llm", config, clk, slog.Default())
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	cb := newTestBreaker(t, BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute}, clk)

	failing := func() error { return errUpstream }

	require.ErrorIs(t, cb.Do(failing), errUpstream)
	assert.Equal(t, BreakerClosed, cb.State())

	require.ErrorIs(t, cb.Do(failing), errUpstream)
	assert.Equal(t, BreakerOpen, cb.State())
}

func TestCircuitBreaker_OpenRejectsWithoutInvoking(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	cb := newTestBreaker(t, BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute}, clk)

	for range 2 {
		_ = cb.Do(func() error { return errUpstream })
	}

	invoked := false
	err := cb.Do(func() error {
		invoked = true

		return nil
	})

	assert.False(t, invoked, "open breaker must not invoke the operation")
	require.ErrorIs(t, err, ErrCircuitOpen)

	var openErr *CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "llm", openErr.Name)
	assert.Positive(t, openErr.RetryAfter)
}

func TestCircuitBreaker_CircuitOpenDistinctFromOperationError(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	cb := newTestBreaker(t, BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute}, clk)

	opErr := cb.Do(func() error { return errUpstream })
	assert.NotErrorIs(t, opErr, ErrCircuitOpen)

	blockedErr := cb.Do(func() error { return nil })
	assert.ErrorIs(t, blockedErr, ErrCircuitOpen)
	assert.NotErrorIs(t, blockedErr, errUpstream)
}

func TestCircuitBreaker_HalfOpenProbeSuccessCloses(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	cb := newTestBreaker(t, BreakerConfig{FailureThreshold: 2, ResetTimeout: 30 * time.Second}, clk)

	for range 2 {
		_ = cb.Do(func() error { return errUpstream })
	}

	clk.Advance(30 * time.Second)
	assert.Equal(t, BreakerHalfOpen, cb.State())

	require.NoError(t, cb.Do(func() error { return nil }))
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start)
	cb := newTestBreaker(t, BreakerConfig{FailureThreshold: 2, ResetTimeout: 30 * time.Second}, clk)

	for range 2 {
		_ = cb.Do(func() error { return errUpstream })
	}

	clk.Advance(30 * time.Second)
	require.ErrorIs(t, cb.Do(func() error { return errUpstream }), errUpstream)

	// Cooldown clock restarted: still open just before the new deadline.
	assert.Equal(t, BreakerOpen, cb.State())
	clk.Advance(29 * time.Second)
	assert.Equal(t, BreakerOpen, cb.State())
	clk.Advance(time.Second)
	assert.Equal(t, BreakerHalfOpen, cb.State())
}

func TestCircuitBreaker_ZeroCooldownGoesStraightToHalfOpen(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	cb := newTestBreaker(t, BreakerConfig{FailureThreshold: 2, ResetTimeout: 0}, clk)

	for range 2 {
		_ = cb.Do(func() error { return errUpstream })
	}

	assert.Equal(t, BreakerHalfOpen, cb.State())
	require.NoError(t, cb.Do(func() error { return nil }))
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenLimitsConcurrentProbes(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	cb := newTestBreaker(t, BreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Second,
		HalfOpenMaxCalls: 1,
	}, clk)

	_ = cb.Do(func() error { return errUpstream })
	clk.Advance(time.Second)

	probeStarted := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		_ = cb.Do(func() error {
			close(probeStarted)
			<-release

			return nil
		})
	}()

	<-probeStarted

	// A second caller must not become another probe.
	err := cb.Do(func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)

	close(release)
	wg.Wait()

	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	cb := newTestBreaker(t, BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute}, clk)

	_ = cb.Do(func() error { return errUpstream })
	require.NoError(t, cb.Do(func() error { return nil }))

	// The earlier failure no longer counts toward the threshold.
	_ = cb.Do(func() error { return errUpstream })
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreaker_ManualReset(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	cb := newTestBreaker(t, BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour}, clk)

	_ = cb.Do(func() error { return errUpstream })
	require.Equal(t, BreakerOpen, cb.State())

	cb.Reset()
	assert.Equal(t, BreakerClosed, cb.State())
	assert.NoError(t, cb.Do(func() error { return nil }))
}

func TestCircuitBreaker_ConcurrentCallers(t *testing.T) {
	cb := newTestBreaker(t, BreakerConfig{FailureThreshold: 100, ResetTimeout: time.Minute}, clock.Real{})

	var wg sync.WaitGroup

	for i := range 50 {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			if i%2 == 0 {
				_ = cb.Do(func() error { return nil })
			} else {
				_ = cb.Do(func() error { return errUpstream })
			}
		}(i)
	}

	wg.Wait()

	// No failure streak can have reached the threshold.
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCall_ReturnsValueThroughBreaker(t *testing.T) {
	cb := newTestBreaker(t, DefaultBreakerConfig(), clock.Real{})

	got, err := Call(cb, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestRegistry_SharesInstancesByName(t *testing.T) {
	reg := NewRegistry(clock.Real{}, slog.Default())

	a := reg.Breaker("llm", DefaultBreakerConfig())
	b := reg.Breaker("llm", BreakerConfig{FailureThreshold: 99})
	assert.Same(t, a, b)

	other := reg.Breaker("feeds", DefaultBreakerConfig())
	assert.NotSame(t, a, other)

	l1 := reg.Limiter("llm", 10, 1)
	l2 := reg.Limiter("llm", 99, 99)
	assert.Same(t, l1, l2)
}
