package simulation

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jonboulle/clockwork"

	repository "github.com/Tknika/ctf-gameserver-mqtt/internal/adapters/repository"
	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/model"
	"github.com/Tknika/ctf-gameserver-mqtt/pkg/logger"
)

// serviceNames are cycled through when naming simulated services.
var serviceNames = []string{"web", "pwn", "crypto", "mail", "db", "dns"}

// Generator writes a game's worth of captures, checks and scores into a
// MemoryStore, one tick at a time.
type Generator struct {
	store    *repository.MemoryStore
	rng      *rand.Rand
	teams    []int64
	services []int64

	captureRate   float64
	checkFailRate float64

	tally *tally
}

// NewGenerator creates a Generator for cfg writing into store.
func NewGenerator(store *repository.MemoryStore, cfg *Config, seed int64) *Generator {
	g := &Generator{
		store:         store,
		rng:           rand.New(rand.NewSource(seed)), //nolint:gosec // simulated traffic, not security sensitive
		captureRate:   cfg.CaptureRate,
		checkFailRate: cfg.CheckFailRate,
		tally:         newTally(),
	}
	for i := 1; i <= cfg.Teams; i++ {
		g.teams = append(g.teams, int64(i))
	}
	for i := 1; i <= cfg.Services; i++ {
		g.services = append(g.services, int64(100+i))
	}
	return g
}

// Roster returns the teams and services the generator plays with.
func (g *Generator) Roster(sessionID int64) model.Roster {
	r := model.Roster{SessionID: sessionID}
	for _, id := range g.teams {
		r.Teams = append(r.Teams, model.Team{ID: id, Name: fmt.Sprintf("team-%02d", id)})
	}
	for i, id := range g.services {
		name := serviceNames[i%len(serviceNames)]
		if i >= len(serviceNames) {
			name = fmt.Sprintf("%s-%d", name, i/len(serviceNames)+1)
		}
		r.Services = append(r.Services, model.Service{ID: id, Name: name})
	}
	return r
}

// PlayTick records one tick of traffic: every team attacks every service of
// a random opponent with probability captureRate, and every service of every
// team is checked once.
func (g *Generator) PlayTick(ctx context.Context, tick int64) {
	captures := 0
	for _, attacker := range g.teams {
		for _, service := range g.services {
			if g.rng.Float64() >= g.captureRate {
				continue
			}
			victim := g.opponent(attacker)
			g.store.AddCapture(attacker, victim, service)
			g.store.AddScore(attacker, capturePoints)
			g.tally.capture()
			captures++
		}
	}

	for _, team := range g.teams {
		for range g.services {
			ok := g.rng.Float64() >= g.checkFailRate
			g.store.AddCheck(team, ok)
			if ok {
				g.store.AddScore(team, checkPoints)
			}
			g.tally.check(ok)
		}
	}
	g.tally.tick()

	logger.Get().Debug(ctx, "played tick", logger.Int64("tick", tick), logger.Int("captures", captures))
}

// Play calls PlayTick halfway through each tick of the window starting at
// start, until all ticks are played or ctx is done.
func (g *Generator) Play(ctx context.Context, clock clockwork.Clock, start time.Time, ticks int, tickDuration time.Duration) {
	for tick := 1; tick <= ticks; tick++ {
		at := start.Add(time.Duration(tick-1)*tickDuration + tickDuration/2)
		if wait := at.Sub(clock.Now()); wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-clock.After(wait):
			}
		}
		g.PlayTick(ctx, int64(tick))
	}
}

// opponent picks a random team other than attacker.
func (g *Generator) opponent(attacker int64) int64 {
	for {
		victim := g.teams[g.rng.Intn(len(g.teams))]
		if victim != attacker {
			return victim
		}
	}
}
