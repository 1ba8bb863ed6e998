// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// Phase is the lifecycle stage of a competition as seen by the publisher.
type Phase int

// Phases only ever move forward: NotStarted -> Running -> Finished.
const (
	PhaseNotStarted Phase = iota
	PhaseRunning
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseRunning:
		return "running"
	case PhaseFinished:
		return "finished"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// EventType is the one-letter status event code consumers switch on.
type EventType string

// Status event codes.
const (
	EventNone    EventType = ""
	EventStart   EventType = "S"
	EventTick    EventType = "T"
	EventFinish  EventType = "F"
	EventCapture EventType = "C"
)

// Window is the competition control row: when the game runs and which tick
// the gameserver is on.
type Window struct {
	Start        time.Time
	End          time.Time
	TickDuration time.Duration
	CurrentTick  int64
}

// Validate reports ErrWindowNotConfigured when start or end is unset or the
// window is inverted.
func (w Window) Validate() error {
	switch {
	case w.Start.IsZero() || w.End.IsZero():
		return fmt.Errorf("%w: start and end must be set", ErrWindowNotConfigured)
	case w.Start.After(w.End):
		return fmt.Errorf("%w: start %s is after end %s", ErrWindowNotConfigured,
			w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	}
	return nil
}

// Running reports whether start <= now < end.
func (w Window) Running(now time.Time) bool {
	return !now.Before(w.Start) && now.Before(w.End)
}

// Over reports whether now >= end + grace.
func (w Window) Over(now time.Time, grace time.Duration) bool {
	return !now.Before(w.End.Add(grace))
}

// Team is a participating team with its live counters.
type Team struct {
	ID          int64
	Name        string
	AttackCount int64
	VictimCount int64
	SLA         float64
	Score       int64
}

// Service is a vulnerable service every team runs.
type Service struct {
	ID   int64
	Name string
}

// Capture records one team submitting another team's flag for a service.
type Capture struct {
	ID               int64
	CapturingTeamID  int64
	ProtectingTeamID int64
	ServiceID        int64
}

// Roster is everything fixed at game start.
type Roster struct {
	SessionID int64
	Teams     []Team
	Services  []Service
}

// TeamValue is one aggregate row (score total or SLA percentage) for a team.
type TeamValue struct {
	TeamID int64
	Value  float64
}
