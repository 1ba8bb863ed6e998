package repository

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Tknika/ctf-gameserver-mqtt/pkg/logger"
)

// Option applies a configuration option to the GormStore.
type Option func(*GormStore)

// WithQueryTimeout bounds every store call.
func WithQueryTimeout(timeout time.Duration) Option {
	return func(s *GormStore) {
		if timeout > 0 {
			s.queryTimeout = timeout
		}
	}
}

// WithSlowQueryThreshold sets when a query is logged as slow.
func WithSlowQueryThreshold(threshold time.Duration) Option {
	return func(s *GormStore) {
		if threshold > 0 {
			s.slowThreshold = threshold
		}
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *GormStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// MemoryOption applies a configuration option to the MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock derives current_tick from the window and the clock instead of
// the value set with SetCurrentTick.
func WithClock(clock clockwork.Clock) MemoryOption {
	return func(s *MemoryStore) {
		s.clock = clock
	}
}
