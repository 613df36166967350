package resilience

import (
	"log/slog"
	"sync"
	"time"

	"github.com/unspun/unspun/pkg/clock"
)

// BreakerState is the discrete state of a circuit breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerConfig carries the tunables for one breaker instance.
type BreakerConfig struct {
	FailureThreshold int           // Consecutive failures before opening
	ResetTimeout     time.Duration // Cooldown before allowing probes
	HalfOpenMaxCalls int           // Concurrent probes allowed while half-open
}

// DefaultBreakerConfig matches the defaults used for external model and
// feed dependencies.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// CircuitBreaker guards one named external resource. After
// FailureThreshold consecutive failures it rejects calls for
// ResetTimeout, then admits a bounded number of probes. Half-open is
// computed lazily from elapsed time, never by a timer. All transition
// decisions happen under one mutex so concurrent callers observe
// consistent state.
type CircuitBreaker struct {
	name   string
	config BreakerConfig
	clock  clock.Clock
	logger *slog.Logger

	mu            sync.Mutex
	open          bool
	failures      int
	lastFailure   time.Time
	halfOpenCalls int
}

// NewCircuitBreaker creates a breaker for the named resource.
func NewCircuitBreaker(name string, config BreakerConfig, clk clock.Clock, logger *slog.Logger) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}

	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = 1
	}

	if clk == nil {
		clk = clock.Real{}
	}

	return &CircuitBreaker{
		name:   name,
		config: config,
		clock:  clk,
		logger: logger.With("module", "circuit_breaker", "breaker", name),
	}
}

// Name returns the resource name this breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State reports the current logical state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.stateLocked()
}

func (cb *CircuitBreaker) stateLocked() BreakerState {
	if !cb.open {
		return BreakerClosed
	}

	if cb.clock.Now().Sub(cb.lastFailure) >= cb.config.ResetTimeout {
		return BreakerHalfOpen
	}

	return BreakerOpen
}

// Do runs op through the breaker. While open it returns a
// *CircuitOpenError without invoking op. While half-open at most
// HalfOpenMaxCalls probes run concurrently; a successful probe closes
// the breaker, a failed one reopens it and restarts the cooldown.
func (cb *CircuitBreaker) Do(op func() error) error {
	probe, err := cb.beforeCall()
	if err != nil {
		return err
	}

	opErr := op()
	cb.afterCall(probe, opErr)

	return opErr
}

// beforeCall decides admission and reserves a probe slot when the
// breaker is half-open.
func (cb *CircuitBreaker) beforeCall() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.stateLocked() {
	case BreakerClosed:
		return false, nil
	case BreakerHalfOpen:
		if cb.halfOpenCalls >= cb.config.HalfOpenMaxCalls {
			return false, &CircuitOpenError{Name: cb.name}
		}

		cb.halfOpenCalls++

		return true, nil
	case BreakerOpen:
		remaining := cb.config.ResetTimeout - cb.clock.Now().Sub(cb.lastFailure)

		return false, &CircuitOpenError{Name: cb.name, RetryAfter: remaining}
	}

	return false, nil
}

func (cb *CircuitBreaker) afterCall(probe bool, opErr error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.halfOpenCalls--
	}

	if opErr == nil {
		if cb.open || cb.failures > 0 {
			cb.logger.Info("Circuit breaker closed", "was_probe", probe)
		}

		cb.open = false
		cb.failures = 0

		return
	}

	if probe {
		// A failed probe reopens the circuit and restarts the cooldown.
		cb.open = true
		cb.lastFailure = cb.clock.Now()
		cb.logger.Warn("Circuit breaker reopened after failed probe", "error", opErr)

		return
	}

	cb.failures++
	cb.lastFailure = cb.clock.Now()

	if !cb.open && cb.failures >= cb.config.FailureThreshold {
		cb.open = true
		cb.logger.Warn("Circuit breaker opened",
			"failures", cb.failures,
			"reset_timeout", cb.config.ResetTimeout)
	}
}

// Reset forces the breaker closed with a zeroed failure counter, for
// operator intervention.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.open = false
	cb.failures = 0
	cb.halfOpenCalls = 0
	cb.logger.Info("Circuit breaker manually reset")
}

// Call runs fn through the breaker and returns its value. It is the
// typed companion to Do for operations that produce a result.
func Call[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var out T

	err := cb.Do(func() error {
		var opErr error

		out, opErr = fn()

		return opErr
	})

	return out, err
}
