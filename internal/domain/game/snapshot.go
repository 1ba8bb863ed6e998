// Package game owns the competition state machine: it turns control window
// reads and store aggregates into an ordered stream of status events.
package game

import (
	"time"

	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/model"
)

// Event holds the fields of the next outgoing status event.
type Event struct {
	Type      model.EventType
	Timestamp time.Time
	Attacker  int64
	Victim    int64
	Service   int64
}

// Snapshot is the publisher's whole view of the competition. It is a value:
// the machine takes one in and hands a new one back, never sharing maps
// between the two.
type Snapshot struct {
	Phase       model.Phase
	CurrentTick int64
	SessionID   int64
	FinishTime  time.Time

	// Teams is keyed by team id; TeamOrder lists the same ids ascending.
	Teams     map[int64]model.Team
	TeamOrder []int64
	Services  []model.Service

	// Watermark is the highest capture id processed.
	Watermark int64

	Event Event
}

// NewSnapshot returns the empty NotStarted snapshot.
func NewSnapshot() Snapshot {
	return Snapshot{
		Phase: model.PhaseNotStarted,
		Teams: map[int64]model.Team{},
	}
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Teams = make(map[int64]model.Team, len(s.Teams))
	for id, t := range s.Teams {
		out.Teams[id] = t
	}
	out.TeamOrder = append([]int64(nil), s.TeamOrder...)
	out.Services = append([]model.Service(nil), s.Services...)
	return out
}

// TeamList returns the teams in ascending id order.
func (s Snapshot) TeamList() []model.Team {
	out := make([]model.Team, 0, len(s.TeamOrder))
	for _, id := range s.TeamOrder {
		out = append(out, s.Teams[id])
	}
	return out
}

// Active reports whether the competition is running.
func (s Snapshot) Active() bool {
	return s.Phase == model.PhaseRunning
}

func (s *Snapshot) updateTeam(id int64, fn func(*model.Team)) {
	t, ok := s.Teams[id]
	if !ok {
		return
	}
	fn(&t)
	s.Teams[id] = t
}
