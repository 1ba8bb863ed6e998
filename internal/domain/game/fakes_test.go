package game

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/model"
	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/types"
	"github.com/Tknika/ctf-gameserver-mqtt/pkg/logger"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type fakeProvider struct {
	mu sync.Mutex

	window      model.Window
	windowErr   error
	roster      model.Roster
	rosterErr   error
	captures    []model.Capture
	capturesErr error
	scores      []model.TeamValue
	scoresErr   error
	sla         []model.TeamValue
	slaErr      error

	calls map[string]int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		window: model.Window{Start: t0, End: t0.Add(300 * time.Second), TickDuration: time.Minute, CurrentTick: 1},
		roster: model.Roster{
			SessionID: 7,
			Teams:     []model.Team{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}},
			Services:  []model.Service{{ID: 10, Name: "web"}},
		},
		scores: []model.TeamValue{{TeamID: 1}, {TeamID: 2}},
		sla:    []model.TeamValue{{TeamID: 1, Value: 100}, {TeamID: 2, Value: 100}},
		calls:  map[string]int{},
	}
}

func (p *fakeProvider) count(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

func (p *fakeProvider) record(op string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[op]++
}

func (p *fakeProvider) GetControlWindow(context.Context) (model.Window, error) {
	p.record("window")
	return p.window, p.windowErr
}

func (p *fakeProvider) GetRoster(context.Context) (model.Roster, error) {
	p.record("roster")
	return p.roster, p.rosterErr
}

func (p *fakeProvider) GetNewCaptures(_ context.Context, afterID int64) ([]model.Capture, error) {
	p.record("captures")
	if p.capturesErr != nil {
		return nil, p.capturesErr
	}
	var out []model.Capture
	for _, c := range p.captures {
		if c.ID > afterID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (p *fakeProvider) GetScores(context.Context) ([]model.TeamValue, error) {
	p.record("scores")
	return p.scores, p.scoresErr
}

func (p *fakeProvider) GetSLA(context.Context) ([]model.TeamValue, error) {
	p.record("sla")
	return p.sla, p.slaErr
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []types.Status
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, status types.Status) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, status)
	return p.err
}

func (p *recordingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// advancer is the part of clockwork's fake clock the tests drive.
type advancer interface {
	clockwork.Clock
	Advance(d time.Duration)
}

// autoClock is a fake clock whose waits complete immediately by moving time
// forward, so settle and spacing delays cost nothing in tests.
type autoClock struct {
	advancer
}

func (c autoClock) After(d time.Duration) <-chan time.Time {
	c.Advance(d)
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

func newTestMachine(p Provider, pub Publisher, at time.Time, opts ...Option) (*Machine, autoClock) {
	_ = logger.Init(logger.WithWriter(io.Discard))
	clock := autoClock{clockwork.NewFakeClockAt(at)}
	opts = append([]Option{WithClock(clock)}, opts...)
	return NewMachine(p, pub, opts...), clock
}

// runningSnapshot is the state right after Start for the default roster.
func runningSnapshot(watermark int64) Snapshot {
	snap := NewSnapshot()
	snap.Phase = model.PhaseRunning
	snap.CurrentTick = 1
	snap.SessionID = 7
	snap.FinishTime = t0.Add(300 * time.Second)
	snap.Teams = map[int64]model.Team{
		1: {ID: 1, Name: "A", SLA: 100},
		2: {ID: 2, Name: "B", SLA: 100},
	}
	snap.TeamOrder = []int64{1, 2}
	snap.Services = []model.Service{{ID: 10, Name: "web"}}
	snap.Watermark = watermark
	return snap
}
