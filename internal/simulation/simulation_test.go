package simulation

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	repository "github.com/Tknika/ctf-gameserver-mqtt/internal/adapters/repository"
	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/types"
	"github.com/Tknika/ctf-gameserver-mqtt/pkg/logger"
)

func init() {
	_ = logger.Init(logger.WithWriter(io.Discard))
}

// collector keeps every published event in order.
type collector struct {
	mu     sync.Mutex
	events []types.Status
}

func (c *collector) Publish(_ context.Context, status types.Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, status)
	return nil
}

func (c *collector) eventTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

func fastConfig() *Config {
	cfg := DefaultConfig()
	cfg.Teams = 3
	cfg.Services = 2
	cfg.Ticks = 3
	cfg.TickDuration = 100 * time.Millisecond
	cfg.StartDelay = 20 * time.Millisecond
	cfg.CaptureRate = 0.5
	cfg.TickSettle = 5 * time.Millisecond
	cfg.CaptureSpacing = time.Millisecond
	cfg.FinishGrace = 60 * time.Millisecond
	cfg.PollInterval = 5 * time.Millisecond
	cfg.Seed = 42
	return cfg
}

func TestConfigValidate(t *testing.T) {
	Convey("Given the default simulation config", t, func() {
		cfg := DefaultConfig()

		Convey("Then it is valid", func() {
			So(cfg.Validate(), ShouldBeNil)
		})

		Convey("When a setting cannot produce a game", func() {
			cases := []func(*Config){
				func(c *Config) { c.Teams = 1 },
				func(c *Config) { c.Services = 0 },
				func(c *Config) { c.Ticks = 0 },
				func(c *Config) { c.TickDuration = 0 },
				func(c *Config) { c.StartDelay = -time.Second },
				func(c *Config) { c.CaptureRate = 1.5 },
				func(c *Config) { c.CheckFailRate = -0.1 },
			}

			Convey("Then validation reports ErrInvalidConfig", func() {
				for _, mutate := range cases {
					c := DefaultConfig()
					mutate(c)
					So(errors.Is(c.Validate(), ErrInvalidConfig), ShouldBeTrue)
				}
			})
		})
	})
}

func TestGenerator(t *testing.T) {
	Convey("Given a generator over an in-memory store", t, func() {
		cfg := fastConfig()
		store := repository.NewMemoryStore()
		gen := NewGenerator(store, cfg, 7)
		ctx := context.Background()

		Convey("The roster names every team and service", func() {
			r := gen.Roster(5)
			So(r.SessionID, ShouldEqual, 5)
			So(len(r.Teams), ShouldEqual, 3)
			So(r.Teams[0].Name, ShouldEqual, "team-01")
			So(len(r.Services), ShouldEqual, 2)
			So(r.Services[1].Name, ShouldEqual, "pwn")
		})

		Convey("When every attack succeeds", func() {
			store.SetRoster(gen.Roster(1))
			gen.captureRate = 1
			gen.checkFailRate = 0
			gen.PlayTick(ctx, 1)

			Convey("Then each team captures once per service from an opponent", func() {
				caps, err := store.GetNewCaptures(ctx, 0)
				So(err, ShouldBeNil)
				So(len(caps), ShouldEqual, 6)
				for _, c := range caps {
					So(c.CapturingTeamID, ShouldNotEqual, c.ProtectingTeamID)
				}
			})

			Convey("And scores and SLA reflect the tick", func() {
				scores, err := store.GetScores(ctx)
				So(err, ShouldBeNil)
				for _, s := range scores {
					So(s.Value, ShouldEqual, 2*capturePoints+2*checkPoints)
				}
				sla, err := store.GetSLA(ctx)
				So(err, ShouldBeNil)
				So(sla[0].Value, ShouldEqual, 100)

				var r Report
				gen.tally.report(&r)
				So(r.TicksPlayed, ShouldEqual, 1)
				So(r.Captures, ShouldEqual, 6)
				So(r.Checks, ShouldEqual, 6)
				So(r.ChecksFailed, ShouldEqual, 0)
			})
		})

		Convey("When every check fails and nobody attacks", func() {
			store.SetRoster(gen.Roster(1))
			gen.captureRate = 0
			gen.checkFailRate = 1
			gen.PlayTick(ctx, 1)

			Convey("Then SLA drops to zero and nothing is captured", func() {
				caps, _ := store.GetNewCaptures(ctx, 0)
				So(caps, ShouldBeEmpty)
				sla, _ := store.GetSLA(ctx)
				So(sla[0].Value, ShouldEqual, 0)
			})
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a short simulated competition", t, func() {
		cfg := fastConfig()
		pub := &collector{}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		Convey("When it runs to completion", func() {
			report, err := Run(ctx, cfg, pub)

			Convey("Then the stream starts once, ends once, and ticks in between", func() {
				So(err, ShouldBeNil)
				got := pub.eventTypes()
				So(len(got), ShouldBeGreaterThanOrEqualTo, 2)
				So(got[0], ShouldEqual, "S")
				So(got[len(got)-1], ShouldEqual, "F")
				So(report.Events["S"], ShouldEqual, 1)
				So(report.Events["F"], ShouldEqual, 1)
				So(report.Events["C"], ShouldEqual, report.Captures)
				So(report.TicksPlayed, ShouldEqual, 3)
				So(report.RunID, ShouldNotBeEmpty)
			})
		})

		Convey("When the context ends before the game does", func() {
			cfg.StartDelay = time.Hour
			short, stop := context.WithTimeout(ctx, 30*time.Millisecond)
			defer stop()
			_, err := Run(short, cfg, pub)

			Convey("Then the run reports it did not finish", func() {
				So(errors.Is(err, ErrNotFinished), ShouldBeTrue)
				So(pub.eventTypes(), ShouldBeEmpty)
			})
		})

		Convey("When the config is invalid", func() {
			cfg.Teams = 0
			_, err := Run(ctx, cfg, pub)

			Convey("Then nothing runs", func() {
				So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
			})
		})
	})
}
