package game

import (
	"context"

	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/dedupe"
	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/model"
)

// Outcome is what correlating one capture did to the snapshot.
type Outcome int

// Correlation outcomes.
const (
	// OutcomeDuplicate: the id was at or below the watermark; nothing changed.
	OutcomeDuplicate Outcome = iota
	// OutcomeAttributed: both teams were found and their counters moved.
	OutcomeAttributed
	// OutcomeUnattributed: a team was missing from the roster. Only the
	// watermark moved.
	OutcomeUnattributed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeAttributed:
		return "attributed"
	case OutcomeUnattributed:
		return "unattributed"
	default:
		return "unknown"
	}
}

// Correlator matches captures to roster teams.
type Correlator struct{}

// Correlate applies one capture to snap. The watermark advances for every
// new id, attributed or not, so a bad row can never stall the stream.
func (Correlator) Correlate(ctx context.Context, snap *Snapshot, capture model.Capture) Outcome {
	gate := dedupe.NewWatermark(dedupe.WithStart(snap.Watermark))
	if gate.SeenAndRecord(ctx, capture.ID) {
		return OutcomeDuplicate
	}
	snap.Watermark = gate.Last()

	_, attackerKnown := snap.Teams[capture.CapturingTeamID]
	_, victimKnown := snap.Teams[capture.ProtectingTeamID]
	if !attackerKnown || !victimKnown {
		snap.Event = Event{Type: model.EventCapture}
		return OutcomeUnattributed
	}

	snap.updateTeam(capture.CapturingTeamID, func(t *model.Team) { t.AttackCount++ })
	snap.updateTeam(capture.ProtectingTeamID, func(t *model.Team) { t.VictimCount++ })
	snap.Event = Event{
		Type:     model.EventCapture,
		Attacker: capture.CapturingTeamID,
		Victim:   capture.ProtectingTeamID,
		Service:  capture.ServiceID,
	}
	return OutcomeAttributed
}

// Replay folds captures into the counters without touching the pending
// event. It returns how many were attributed and unattributed.
func (c Correlator) Replay(ctx context.Context, snap *Snapshot, captures []model.Capture) (attributed, unattributed int) {
	pending := snap.Event
	for _, capture := range captures {
		switch c.Correlate(ctx, snap, capture) {
		case OutcomeAttributed:
			attributed++
		case OutcomeUnattributed:
			unattributed++
		case OutcomeDuplicate:
		}
	}
	snap.Event = pending
	return attributed, unattributed
}
