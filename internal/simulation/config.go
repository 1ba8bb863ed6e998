// Package simulation plays a scripted competition against the in-memory
// store and drives the full publishing pipeline over it.
package simulation

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Default simulation constants.
const (
	DefaultTeams          = 6
	DefaultServices       = 3
	DefaultTicks          = 10
	DefaultTickDuration   = 10 * time.Second
	DefaultStartDelay     = 3 * time.Second
	DefaultCaptureRate    = 0.15
	DefaultCheckFailRate  = 0.1
	DefaultTickSettle     = 500 * time.Millisecond
	DefaultCaptureSpacing = 200 * time.Millisecond
	DefaultFinishGrace    = 1 * time.Second
	DefaultPollInterval   = 250 * time.Millisecond
)

// Points awarded by the generator.
const (
	capturePoints = 10
	checkPoints   = 1
)

// Config holds configuration for a simulated competition.
type Config struct {
	Teams         int           // Number of teams
	Services      int           // Number of services per team
	Ticks         int           // Length of the game in ticks
	TickDuration  time.Duration // Wall time per tick
	StartDelay    time.Duration // Time between launch and game start
	CaptureRate   float64       // Chance per team, service and tick of capturing a flag
	CheckFailRate float64       // Chance a status check fails
	Seed          int64         // Random seed; zero picks one from the clock

	TickSettle      time.Duration
	CaptureSpacing  time.Duration
	FinishGrace     time.Duration
	PollInterval    time.Duration
	TimestampOffset time.Duration

	BrokerURL string // Empty selects dry-run output
	Topic     string

	Clock clockwork.Clock
}

// DefaultConfig returns a Config for a short local game.
func DefaultConfig() *Config {
	return &Config{
		Teams:          DefaultTeams,
		Services:       DefaultServices,
		Ticks:          DefaultTicks,
		TickDuration:   DefaultTickDuration,
		StartDelay:     DefaultStartDelay,
		CaptureRate:    DefaultCaptureRate,
		CheckFailRate:  DefaultCheckFailRate,
		TickSettle:     DefaultTickSettle,
		CaptureSpacing: DefaultCaptureSpacing,
		FinishGrace:    DefaultFinishGrace,
		PollInterval:   DefaultPollInterval,
	}
}

// Validate reports the first setting that cannot produce a game.
func (c *Config) Validate() error {
	switch {
	case c.Teams < 2:
		return fmt.Errorf("%w: need at least 2 teams, got %d", ErrInvalidConfig, c.Teams)
	case c.Services < 1:
		return fmt.Errorf("%w: need at least 1 service, got %d", ErrInvalidConfig, c.Services)
	case c.Ticks < 1:
		return fmt.Errorf("%w: need at least 1 tick, got %d", ErrInvalidConfig, c.Ticks)
	case c.TickDuration <= 0:
		return fmt.Errorf("%w: tick duration must be positive", ErrInvalidConfig)
	case c.StartDelay < 0:
		return fmt.Errorf("%w: start delay must not be negative", ErrInvalidConfig)
	case c.CaptureRate < 0 || c.CaptureRate > 1:
		return fmt.Errorf("%w: capture rate %v outside [0,1]", ErrInvalidConfig, c.CaptureRate)
	case c.CheckFailRate < 0 || c.CheckFailRate > 1:
		return fmt.Errorf("%w: check fail rate %v outside [0,1]", ErrInvalidConfig, c.CheckFailRate)
	}
	return nil
}

// Report summarises a finished simulation.
type Report struct {
	RunID         string
	TicksPlayed   int
	Captures      int
	Checks        int
	ChecksFailed  int
	Events        map[string]int
	PublishErrors int
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
}

// tally accumulates counters from the generator and publisher goroutines.
type tally struct {
	mu            sync.Mutex
	ticks         int
	captures      int
	checks        int
	checksFailed  int
	events        map[string]int
	publishErrors int
}

func newTally() *tally {
	return &tally{events: make(map[string]int)}
}

func (t *tally) tick() {
	t.mu.Lock()
	t.ticks++
	t.mu.Unlock()
}

func (t *tally) capture() {
	t.mu.Lock()
	t.captures++
	t.mu.Unlock()
}

func (t *tally) check(ok bool) {
	t.mu.Lock()
	t.checks++
	if !ok {
		t.checksFailed++
	}
	t.mu.Unlock()
}

func (t *tally) event(eventType string, err error) {
	t.mu.Lock()
	if err != nil {
		t.publishErrors++
	} else {
		t.events[eventType]++
	}
	t.mu.Unlock()
}

func (t *tally) report(r *Report) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r.TicksPlayed = t.ticks
	r.Captures = t.captures
	r.Checks = t.checks
	r.ChecksFailed = t.checksFailed
	r.PublishErrors = t.publishErrors
	r.Events = make(map[string]int, len(t.events))
	for k, v := range t.events {
		r.Events[k] = v
	}
}
