// Package resilience provides the fault-tolerance primitives shared by
// pipeline stages: a circuit breaker per named external resource, a
// bounded retry policy with exponential backoff, and a token-bucket
// rate limiter. Breakers and limiters are shared across concurrent
// callers; retry policies carry no state and are safe to copy.
package resilience

import (
	"errors"
	"fmt"
	"time"
)

// ErrCircuitOpen is the sentinel matched by errors.Is for calls
// rejected by an open breaker.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitOpenError reports a call blocked by policy, as opposed to a
// failure of the operation itself. Callers use the distinction to fall
// back to a degraded implementation instead of re-raising.
type CircuitOpenError struct {
	Name       string        // Breaker name (external resource)
	RetryAfter time.Duration // Remaining cooldown at rejection time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open, retry after %s", e.Name, e.RetryAfter)
}

func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// ErrRetryExhausted is the sentinel matched by errors.Is when a retry
// policy gives up.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// ExhaustedError wraps the final failure after all retry attempts.
// Unwrap exposes the last error unmodified so errors.Is/As still reach
// the underlying failure kind.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrRetryExhausted
}
