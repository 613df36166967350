package resilience

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unspun/unspun/pkg/clock"
)

func TestRateLimiter_AcquireFromFullBucket(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewRateLimiter(10, 1, clk)

	require.NoError(t, limiter.Acquire(context.Background(), 3))
	assert.InDelta(t, 7, limiter.Tokens(), 0.001)
}

func TestRateLimiter_RefillIsCappedAtCapacity(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewRateLimiter(5, 10, clk)

	require.NoError(t, limiter.Acquire(context.Background(), 5))
	assert.InDelta(t, 0, limiter.Tokens(), 0.001)

	clk.Advance(time.Hour)
	assert.InDelta(t, 5, limiter.Tokens(), 0.001)
}

func TestRateLimiter_ComputedWaitMatchesDeficit(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewRateLimiter(4, 2, clk)

	require.NoError(t, limiter.Acquire(context.Background(), 4))

	// 3 tokens short at 2 tokens/s: 1.5s until enough accrue.
	wait, ok := limiter.tryAcquire(3)
	assert.False(t, ok)
	assert.InDelta(t, float64(1500*time.Millisecond), float64(wait), float64(time.Millisecond))
}

func TestRateLimiter_NonPositiveConfigIsClamped(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewRateLimiter(0, 0, clk)

	// Clamped to a one-token bucket refilling at one token per second,
	// so an empty bucket reports a finite wait instead of spinning.
	require.NoError(t, limiter.Acquire(context.Background(), 1))

	wait, ok := limiter.tryAcquire(1)
	assert.False(t, ok)
	assert.InDelta(t, float64(time.Second), float64(wait), float64(time.Millisecond))

	clk.Advance(time.Second)
	require.NoError(t, limiter.Acquire(context.Background(), 1))
}

func TestRateLimiter_AcquireBeyondCapacityFails(t *testing.T) {
	limiter := NewRateLimiter(2, 1, clock.Real{})

	err := limiter.Acquire(context.Background(), 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds bucket capacity")
}

func TestRateLimiter_AcquireRespectsContext(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewRateLimiter(1, 0.001, clk)

	require.NoError(t, limiter.Acquire(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := limiter.Acquire(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimiter_ConcurrentAcquirers(t *testing.T) {
	limiter := NewRateLimiter(100, 1_000_000, clock.Real{})

	var wg sync.WaitGroup

	for range 100 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			assert.NoError(t, limiter.Acquire(context.Background(), 1))
		}()
	}

	wg.Wait()
}
