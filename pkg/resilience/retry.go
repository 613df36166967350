package resilience

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy retries an operation on configured transient failure
// kinds with exponential backoff: min(MinWait * 2^(attempt-1),
// MaxWait). Failures outside the configured set propagate immediately.
// The policy holds no mutable state; one value may serve any number of
// concurrent callers.
type RetryPolicy struct {
	MaxAttempts int
	MinWait     time.Duration
	MaxWait     time.Duration

	// Retryable classifies an error as transient. When nil, every
	// error is treated as transient.
	Retryable func(error) bool
}

// DefaultRetryPolicy matches the defaults used for external model
// calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		MinWait:     1 * time.Second,
		MaxWait:     30 * time.Second,
	}
}

// RetryOn builds a classifier matching any of the given sentinel
// errors via errors.Is.
func RetryOn(kinds ...error) func(error) bool {
	return func(err error) bool {
		for _, kind := range kinds {
			if errors.Is(err, kind) {
				return true
			}
		}

		return false
	}
}

// wait returns the backoff before the attempt following failed attempt
// n (1-based).
func (p RetryPolicy) wait(attempt int) time.Duration {
	backoff := p.MinWait << (attempt - 1)
	if backoff > p.MaxWait || backoff <= 0 {
		backoff = p.MaxWait
	}

	return backoff
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}

	return p.MaxAttempts
}

// Do is the blocking variant: backoff waits are plain sleeps. After
// MaxAttempts transient failures it returns an *ExhaustedError
// wrapping the last failure.
func (p RetryPolicy) Do(op func() error) error {
	return p.run(op, func(d time.Duration) error {
		time.Sleep(d)

		return nil
	})
}

// DoContext is the suspending variant: backoff waits respect ctx, and
// cancellation during a wait returns ctx.Err.
func (p RetryPolicy) DoContext(ctx context.Context, op func() error) error {
	return p.run(op, func(d time.Duration) error {
		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func (p RetryPolicy) run(op func() error, sleep func(time.Duration) error) error {
	var lastErr error

	maxAttempts := p.attempts()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}

		if attempt == maxAttempts {
			break
		}

		if err := sleep(p.wait(attempt)); err != nil {
			return err
		}
	}

	return &ExhaustedError{Attempts: maxAttempts, Err: lastErr}
}

// Retry runs fn under the policy and returns its value, suspending on
// backoff waits until ctx is done.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func() (T, error)) (T, error) {
	var out T

	err := p.DoContext(ctx, func() error {
		var opErr error

		out, opErr = fn()

		return opErr
	})

	return out, err
}
