package game

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/scoring"
	"github.com/Tknika/ctf-gameserver-mqtt/pkg/logger"
)

// Default timing constants.
const (
	DefaultFinishGrace     = 2 * time.Second
	DefaultTickSettle      = 2 * time.Second
	DefaultCaptureSpacing  = 1 * time.Second
	DefaultTimestampOffset = 2 * time.Hour
)

// Option applies a configuration option to the Machine.
type Option func(*Machine)

// WithClock sets the clock used for transitions and waits.
func WithClock(clock clockwork.Clock) Option {
	return func(m *Machine) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithLogger sets a custom logger for the machine.
func WithLogger(l logger.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithAggregator sets the score/SLA aggregator.
func WithAggregator(a *scoring.Aggregator) Option {
	return func(m *Machine) {
		if a != nil {
			m.aggregator = a
		}
	}
}

// WithFinishGrace sets how long after the window end the game finishes.
func WithFinishGrace(d time.Duration) Option {
	return func(m *Machine) {
		if d >= 0 {
			m.finishGrace = d
		}
	}
}

// WithTickSettle sets the wait between noticing a new tick and reading its data.
func WithTickSettle(d time.Duration) Option {
	return func(m *Machine) {
		if d >= 0 {
			m.tickSettle = d
		}
	}
}

// WithCaptureSpacing sets the gap between successive capture events.
func WithCaptureSpacing(d time.Duration) Option {
	return func(m *Machine) {
		if d >= 0 {
			m.captureSpacing = d
		}
	}
}

// WithTimestampOffset sets the shift applied to payload timestamps.
func WithTimestampOffset(d time.Duration) Option {
	return func(m *Machine) {
		m.timestampOffset = d
	}
}

// WithRebuildOnStart controls whether captures already in the store when the
// game starts are folded into the counters.
func WithRebuildOnStart(enabled bool) Option {
	return func(m *Machine) {
		m.rebuildOnStart = enabled
	}
}
