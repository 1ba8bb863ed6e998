// Package service runs the publisher's driving loop: read the window, step
// the game machine, sleep, repeat.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/game"
	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/model"
	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/types"
	"github.com/Tknika/ctf-gameserver-mqtt/pkg/logger"
	"github.com/Tknika/ctf-gameserver-mqtt/pkg/metrics"
)

// Default loop timing.
const (
	DefaultPollInterval  = time.Second
	DefaultConfigBackoff = 30 * time.Second
)

// Stepper advances a snapshot by one iteration.
type Stepper interface {
	Step(ctx context.Context, snap game.Snapshot) (game.Snapshot, error)
	TimestampOffset() time.Duration
}

// HealthReporter exposes publisher delivery health.
type HealthReporter interface {
	Healthy() bool
	ConsecutiveFailures() int
}

// Service owns the snapshot and the loop that drives it. Readers get copies.
type Service struct {
	mu sync.RWMutex

	machine Stepper
	health  HealthReporter
	clock   clockwork.Clock

	// Configuration
	pollInterval  time.Duration
	configBackoff time.Duration

	// State
	snapshot       game.Snapshot
	iterations     int64
	configBackoffs int64
	loopFaults     int64
	lastErr        error
	lastErrAt      time.Time
	started        bool
	cancel         context.CancelFunc
	done           chan struct{}

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the clock used for loop sleeps.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithPollInterval sets the pause between iterations.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithConfigBackoff sets the pause while the window is not configured, and
// the polling cadence once the game has finished.
func WithConfigBackoff(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.configBackoff = d
		}
	}
}

// WithHealth attaches a publisher health source.
func WithHealth(h HealthReporter) Option {
	return func(s *Service) {
		if h != nil {
			s.health = h
		}
	}
}

// WithSnapshot seeds the loop with an existing snapshot.
func WithSnapshot(snap game.Snapshot) Option {
	return func(s *Service) {
		s.snapshot = snap.Clone()
	}
}

// New constructs a Service around machine.
func New(machine Stepper, opts ...Option) *Service {
	s := &Service{
		machine:       machine,
		clock:         clockwork.NewRealClock(),
		pollInterval:  DefaultPollInterval,
		configBackoff: DefaultConfigBackoff,
		snapshot:      game.NewSnapshot(),
		logger:        nil, // Will be replaced when the loop starts
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start runs the loop in the background until Stop or ctx cancellation.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.ensureLogger()

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true

	go func(done chan struct{}) {
		defer close(done)
		_ = s.Run(loopCtx)
	}(s.done)

	s.logger.Info(ctx, "status publisher started",
		logger.Duration("poll_interval", s.pollInterval),
		logger.Duration("config_backoff", s.configBackoff))
	return nil
}

// Stop cancels the loop and waits for the current step to return.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.started = false
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info(context.Background(), "status publisher stopped")
}

// Run drives the machine until ctx is cancelled. Cancellation is honoured
// between steps and inside every wait, so shutdown never sits out a backoff.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ensureLogger()
	s.mu.Unlock()

	for {
		wait := s.iterate(ctx)
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.After(wait):
		}
	}
}

func (s *Service) ensureLogger() {
	if s.logger == nil {
		s.logger = logger.Get().Named("loop")
	}
}

// iterate runs one step, commits its snapshot and returns how long to wait.
func (s *Service) iterate(ctx context.Context) time.Duration {
	next, err := s.machine.Step(ctx, s.Snapshot())

	s.mu.Lock()
	s.snapshot = next
	s.iterations++
	if err != nil && ctx.Err() == nil {
		s.lastErr = err
		s.lastErrAt = s.clock.Now()
	}
	s.mu.Unlock()

	metrics.UpdateGameState(int(next.Phase), next.CurrentTick, next.Watermark, len(next.TeamOrder))

	switch {
	case err == nil:
		if next.Phase == model.PhaseFinished {
			return s.configBackoff
		}
		return s.pollInterval
	case ctx.Err() != nil:
		return 0
	case errors.Is(err, model.ErrWindowNotConfigured):
		s.count(&s.configBackoffs)
		metrics.RecordConfigBackoff()
		s.logger.Warn(ctx, "game window not configured, backing off",
			logger.Duration("backoff", s.configBackoff),
			logger.Error(err))
		return s.configBackoff
	case errors.Is(err, model.ErrTimeout) || errors.Is(err, context.DeadlineExceeded):
		s.count(&s.loopFaults)
		metrics.RecordLoopFault("timeout")
		s.logger.Warn(ctx, "step timed out, retrying", logger.Error(err))
		return s.pollInterval
	default:
		s.count(&s.loopFaults)
		metrics.RecordLoopFault("transient")
		s.logger.Error(ctx, "step failed, retrying", logger.Error(err))
		return s.pollInterval
	}
}

func (s *Service) count(c *int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*c++
}

// Snapshot returns a copy of the last committed snapshot.
func (s *Service) Snapshot() game.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Clone()
}

// Status returns the payload of the last emitted event. ok is false before
// the game has started.
func (s *Service) Status() (types.Status, bool) {
	snap := s.Snapshot()
	if snap.Event.Type == model.EventNone {
		return types.Status{}, false
	}
	return game.Render(snap, s.machine.TimestampOffset()), true
}

// Health reports whether the loop runs and the publisher delivers.
func (s *Service) Health() types.Health {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := types.Health{
		Running:          s.started,
		Phase:            s.snapshot.Phase.String(),
		PublisherHealthy: true,
	}
	if s.health != nil {
		h.PublisherHealthy = s.health.Healthy()
		h.ConsecutivePublishFailures = s.health.ConsecutiveFailures()
	}
	if s.lastErr != nil {
		h.LastError = s.lastErr.Error()
	}
	h.Status = types.HealthOK
	if !h.PublisherHealthy {
		h.Status = types.HealthDegraded
	}
	return h
}

// GetStats returns loop statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":        s.started,
		"phase":          s.snapshot.Phase.String(),
		"currentTick":    s.snapshot.CurrentTick,
		"watermark":      s.snapshot.Watermark,
		"teams":          len(s.snapshot.TeamOrder),
		"services":       len(s.snapshot.Services),
		"iterations":     s.iterations,
		"configBackoffs": s.configBackoffs,
		"loopFaults":     s.loopFaults,
		"pollInterval":   s.pollInterval.String(),
	}
	if s.lastErr != nil {
		stats["lastError"] = s.lastErr.Error()
		stats["lastErrorAt"] = s.lastErrAt.UTC().Format(time.RFC3339)
	}
	if counter, ok := s.health.(interface{ Counts() (int64, int64) }); ok {
		published, failed := counter.Counts()
		stats["published"] = published
		stats["publishFailed"] = failed
	}

	return stats
}
