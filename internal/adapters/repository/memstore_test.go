package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/model"
	"github.com/Tknika/ctf-gameserver-mqtt/pkg/logger"
)

var start = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func newRosteredStore(opts ...MemoryOption) *MemoryStore {
	_ = logger.Init(logger.WithWriter(io.Discard))
	s := NewMemoryStore(opts...)
	s.SetRoster(model.Roster{
		SessionID: 3,
		Teams:     []model.Team{{ID: 2, Name: "B"}, {ID: 1, Name: "A"}},
		Services:  []model.Service{{ID: 10, Name: "web"}},
	})
	return s
}

func TestMemoryStore_WindowNotConfigured(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.GetControlWindow(ctx)
	if !errors.Is(err, model.ErrWindowNotConfigured) {
		t.Fatalf("expected ErrWindowNotConfigured, got %v", err)
	}

	s.SetWindow(model.Window{Start: start, End: start.Add(time.Hour), TickDuration: time.Minute, CurrentTick: 4})
	w, err := s.GetControlWindow(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.CurrentTick != 4 {
		t.Errorf("expected tick 4, got %d", w.CurrentTick)
	}

	s.ClearWindow()
	if _, err := s.GetControlWindow(ctx); !errors.Is(err, model.ErrWindowNotConfigured) {
		t.Errorf("expected ErrWindowNotConfigured after clear, got %v", err)
	}
}

func TestMemoryStore_DerivedTick(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(start.Add(-time.Minute))
	s := NewMemoryStore(WithClock(clock))
	s.SetWindow(model.Window{Start: start, End: start.Add(5 * time.Minute), TickDuration: time.Minute})

	cases := []struct {
		advance time.Duration
		want    int64
	}{
		{0, 0},
		{time.Minute, 1},
		{59 * time.Second, 1},
		{time.Second, 2},
		{3 * time.Minute, 5},
		{time.Hour, 5},
	}
	for i, tc := range cases {
		clock.Advance(tc.advance)
		w, err := s.GetControlWindow(ctx)
		if err != nil {
			t.Fatalf("case %d: unexpected error: %v", i, err)
		}
		if w.CurrentTick != tc.want {
			t.Errorf("case %d: expected tick %d, got %d", i, tc.want, w.CurrentTick)
		}
	}
}

func TestMemoryStore_RosterAndAggregates(t *testing.T) {
	ctx := context.Background()
	s := newRosteredStore()

	roster, err := s.GetRoster(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if roster.SessionID != 3 || len(roster.Teams) != 2 || roster.Teams[0].ID != 1 {
		t.Fatalf("unexpected roster %+v", roster)
	}

	s.AddScore(2, 12.5)
	s.AddScore(2, 7.5)
	scores, err := s.GetScores(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scores) != 2 || scores[0] != (model.TeamValue{TeamID: 1}) || scores[1] != (model.TeamValue{TeamID: 2, Value: 20}) {
		t.Errorf("unexpected scores %+v", scores)
	}

	s.AddCheck(1, true)
	s.AddCheck(1, true)
	s.AddCheck(1, false)
	s.AddCheck(1, true)
	sla, err := s.GetSLA(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sla[0].Value != 75 {
		t.Errorf("expected team 1 SLA 75, got %v", sla[0].Value)
	}
	if sla[1].Value != 100 {
		t.Errorf("expected team 2 without checks to report 100, got %v", sla[1].Value)
	}
}

func TestMemoryStore_Captures(t *testing.T) {
	ctx := context.Background()
	s := newRosteredStore()

	for i := 0; i < 3; i++ {
		s.AddCapture(1, 2, 10)
	}

	all, err := s.GetNewCaptures(ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 3 || all[0].ID != 1 || all[2].ID != 3 {
		t.Fatalf("unexpected captures %+v", all)
	}

	newer, err := s.GetNewCaptures(ctx, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(newer) != 1 || newer[0].ID != 3 {
		t.Errorf("expected only capture 3, got %+v", newer)
	}
}

func TestMemoryStore_FailNext(t *testing.T) {
	ctx := context.Background()
	s := newRosteredStore()
	boom := errors.New("boom")

	s.FailNext("scores", boom)
	if _, err := s.GetScores(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if _, err := s.GetScores(ctx); err != nil {
		t.Errorf("expected failure to be consumed, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := s.GetRoster(cancelled); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
