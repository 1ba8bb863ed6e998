package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/model"
)

// teamChecks counts status checks for one team.
type teamChecks struct {
	ok    int64
	total int64
}

// MemoryStore is an in-memory Provider. It backs the simulator and tests
// that need a whole game without Postgres.
type MemoryStore struct {
	mu sync.RWMutex

	window      *model.Window
	currentTick int64
	sessionID   int64
	teams       []model.Team
	services    []model.Service
	captures    []model.Capture
	nextCapture int64
	scores      map[int64]float64
	checks      map[int64]teamChecks
	failures    map[string]error

	clock clockwork.Clock
}

// NewMemoryStore creates an empty MemoryStore with no window configured.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		scores:   make(map[int64]float64),
		checks:   make(map[int64]teamChecks),
		failures: make(map[string]error),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SetWindow configures the competition window.
func (s *MemoryStore) SetWindow(w model.Window) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = &w
	s.currentTick = w.CurrentTick
}

// ClearWindow removes the control row.
func (s *MemoryStore) ClearWindow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = nil
}

// SetCurrentTick sets the tick reported when no clock is configured.
func (s *MemoryStore) SetCurrentTick(tick int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentTick = tick
}

// SetRoster replaces the session id, teams and services.
func (s *MemoryStore) SetRoster(r model.Roster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = r.SessionID
	s.teams = append([]model.Team(nil), r.Teams...)
	sort.Slice(s.teams, func(i, j int) bool { return s.teams[i].ID < s.teams[j].ID })
	s.services = append([]model.Service(nil), r.Services...)
	sort.Slice(s.services, func(i, j int) bool { return s.services[i].ID < s.services[j].ID })
}

// AddCapture records a capture under the next id and returns it.
func (s *MemoryStore) AddCapture(capturingTeamID, protectingTeamID, serviceID int64) model.Capture {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCapture++
	c := model.Capture{
		ID:               s.nextCapture,
		CapturingTeamID:  capturingTeamID,
		ProtectingTeamID: protectingTeamID,
		ServiceID:        serviceID,
	}
	s.captures = append(s.captures, c)
	return c
}

// AddScore adds points to a team's running total.
func (s *MemoryStore) AddScore(teamID int64, points float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[teamID] += points
}

// AddCheck records one status check result for a team.
func (s *MemoryStore) AddCheck(teamID int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.checks[teamID]
	c.total++
	if ok {
		c.ok++
	}
	s.checks[teamID] = c
}

// FailNext makes the next call of op ("control_window", "roster",
// "captures", "scores" or "sla") return err.
func (s *MemoryStore) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

func (s *MemoryStore) takeFailure(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failures[op]; ok {
		delete(s.failures, op)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetControlWindow implements Provider.
func (s *MemoryStore) GetControlWindow(ctx context.Context) (model.Window, error) {
	if err := s.takeFailure(ctx, "control_window"); err != nil {
		return model.Window{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.window == nil {
		return model.Window{}, fmt.Errorf("%w: no game control row", model.ErrWindowNotConfigured)
	}
	w := *s.window
	w.CurrentTick = s.currentTick
	if s.clock != nil {
		w.CurrentTick = derivedTick(w, s.clock)
	}
	return w, nil
}

// derivedTick is the tick the gameserver would be on at the clock's time:
// 0 before start, then 1-based, holding the last tick once the window ends.
func derivedTick(w model.Window, clock clockwork.Clock) int64 {
	if w.TickDuration <= 0 {
		return w.CurrentTick
	}
	elapsed := clock.Now().Sub(w.Start)
	if elapsed < 0 {
		return 0
	}
	last := int64(w.End.Sub(w.Start) / w.TickDuration)
	if last < 1 {
		last = 1
	}
	tick := int64(elapsed/w.TickDuration) + 1
	if tick > last {
		tick = last
	}
	return tick
}

// GetRoster implements Provider.
func (s *MemoryStore) GetRoster(ctx context.Context) (model.Roster, error) {
	if err := s.takeFailure(ctx, "roster"); err != nil {
		return model.Roster{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.Roster{
		SessionID: s.sessionID,
		Teams:     append([]model.Team(nil), s.teams...),
		Services:  append([]model.Service(nil), s.services...),
	}, nil
}

// GetNewCaptures implements Provider.
func (s *MemoryStore) GetNewCaptures(ctx context.Context, afterID int64) ([]model.Capture, error) {
	if err := s.takeFailure(ctx, "captures"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Capture, 0)
	for _, c := range s.captures {
		if c.ID > afterID {
			out = append(out, c)
		}
	}
	return out, nil
}

// GetScores implements Provider.
func (s *MemoryStore) GetScores(ctx context.Context) ([]model.TeamValue, error) {
	if err := s.takeFailure(ctx, "scores"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.TeamValue, 0, len(s.teams))
	for _, t := range s.teams {
		out = append(out, model.TeamValue{TeamID: t.ID, Value: s.scores[t.ID]})
	}
	return out, nil
}

// GetSLA implements Provider. Teams without checks report 100.
func (s *MemoryStore) GetSLA(ctx context.Context) ([]model.TeamValue, error) {
	if err := s.takeFailure(ctx, "sla"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.TeamValue, 0, len(s.teams))
	for _, t := range s.teams {
		sla := 100.0
		if c := s.checks[t.ID]; c.total > 0 {
			sla = float64(c.ok) * 100 / float64(c.total)
		}
		out = append(out, model.TeamValue{TeamID: t.ID, Value: sla})
	}
	return out, nil
}
