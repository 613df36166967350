package config

import (
	"sync"
	"time"

	"github.com/unspun/unspun/pkg/clock"
)

// DefaultRefreshInterval is how long a loaded Settings stays fresh.
const DefaultRefreshInterval = 5 * time.Minute

// Store owns the live Settings for a process. Reload is explicit: the
// caller drives Refresh from its own loop, nothing re-reads the file
// behind its back. Timing runs through the injected clock so tests
// can step it.
type Store struct {
	path     string
	interval time.Duration
	clock    clock.Clock

	mu       sync.RWMutex
	current  *Settings
	loadedAt time.Time
}

// NewStore loads the file once and returns a store over it.
func NewStore(path string, interval time.Duration, clk clock.Clock) (*Store, error) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}

	settings, err := Load(path)
	if err != nil {
		return nil, err
	}

	return &Store{
		path:     path,
		interval: interval,
		clock:    clk,
		current:  settings,
		loadedAt: clk.Now(),
	}, nil
}

// Current returns the active settings. The pointer is shared;
// callers must not mutate it.
func (s *Store) Current() *Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.current
}

// Refresh re-reads the file when the refresh interval has elapsed.
// Returns true when a reload happened. A failed reload keeps the
// previous settings and surfaces the error.
func (s *Store) Refresh(now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.loadedAt) < s.interval {
		return false, nil
	}

	settings, err := Load(s.path)
	if err != nil {
		return false, err
	}

	s.current = settings
	s.loadedAt = now

	return true, nil
}
