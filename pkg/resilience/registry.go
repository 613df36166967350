package resilience

import (
	"log/slog"
	"sync"

	"github.com/unspun/unspun/pkg/clock"
)

// Registry owns the shared breaker and limiter instances, one per
// external resource name. It is created once at startup and passed to
// whichever component needs it; there is no package-level instance.
type Registry struct {
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	limiters map[string]*RateLimiter
}

func NewRegistry(clk clock.Clock, logger *slog.Logger) *Registry {
	if clk == nil {
		clk = clock.Real{}
	}

	return &Registry{
		clock:    clk,
		logger:   logger,
		breakers: make(map[string]*CircuitBreaker),
		limiters: make(map[string]*RateLimiter),
	}
}

// Breaker returns the shared breaker for name, creating it with config
// on first use. Later calls ignore config.
func (r *Registry) Breaker(name string, config BreakerConfig) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cb := NewCircuitBreaker(name, config, r.clock, r.logger)
	r.breakers[name] = cb

	return cb
}

// Limiter returns the shared limiter for name, creating it on first
// use. Later calls ignore the capacity and rate arguments.
func (r *Registry) Limiter(name string, maxTokens, rate float64) *RateLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[name]; ok {
		return l
	}

	l := NewRateLimiter(maxTokens, rate, r.clock)
	r.limiters[name] = l

	return l
}

// ResetAll forces every registered breaker closed.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, cb := range r.breakers {
		cb.Reset()
	}
}
