package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/unspun/unspun/pkg/clock"
)

// RateLimiter is a token bucket with capacity MaxTokens refilling
// continuously at TokensPerSecond. One instance is shared by all
// workers calling the same external resource.
type RateLimiter struct {
	capacity float64
	rate     float64
	clock    clock.Clock

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a full bucket. rate is tokens per second.
// Non-positive capacity or rate is clamped to one: a zero rate would
// make every insufficient-bucket wait infinite.
func NewRateLimiter(maxTokens, rate float64, clk clock.Clock) *RateLimiter {
	if clk == nil {
		clk = clock.Real{}
	}

	if maxTokens <= 0 {
		maxTokens = 1
	}

	if rate <= 0 {
		rate = 1
	}

	return &RateLimiter{
		capacity:   maxTokens,
		rate:       rate,
		clock:      clk,
		tokens:     maxTokens,
		lastRefill: clk.Now(),
	}
}

// Acquire takes n tokens, suspending until enough have accrued. It
// returns ctx.Err if the context ends first.
func (l *RateLimiter) Acquire(ctx context.Context, n float64) error {
	if n > l.capacity {
		return fmt.Errorf("requested %v tokens exceeds bucket capacity %v", n, l.capacity)
	}

	for {
		wait, ok := l.tryAcquire(n)
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)

		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()

			return ctx.Err()
		}
	}
}

// tryAcquire refills from elapsed time and either deducts n tokens or
// reports how long the caller must wait before rechecking.
func (l *RateLimiter) tryAcquire(n float64) (wait time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	elapsed := now.Sub(l.lastRefill).Seconds()

	l.tokens += elapsed * l.rate
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}

	l.lastRefill = now

	if l.tokens >= n {
		l.tokens -= n

		return 0, true
	}

	deficit := n - l.tokens
	wait = time.Duration(deficit / l.rate * float64(time.Second))

	return wait, false
}

// Tokens reports the current token count after a refill, for tests and
// metrics.
func (l *RateLimiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	elapsed := now.Sub(l.lastRefill).Seconds()

	l.tokens += elapsed * l.rate
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}

	l.lastRefill = now

	return l.tokens
}
