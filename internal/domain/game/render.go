package game

import (
	"time"

	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/types"
)

// Render builds the wire payload for the snapshot's pending event. offset is
// added to both timestamps; subscribers expect their local wall clock.
func Render(snap Snapshot, offset time.Duration) types.Status {
	status := types.Status{
		Type:        string(snap.Event.Type),
		Timestamp:   shifted(snap.Event.Timestamp, offset),
		Active:      snap.Active(),
		SSID:        snap.SessionID,
		FinishTime:  shifted(snap.FinishTime, offset),
		Attacker:    snap.Event.Attacker,
		Victim:      snap.Event.Victim,
		Service:     snap.Event.Service,
		TeamList:    make([]types.TeamEntry, 0, len(snap.TeamOrder)),
		ServiceList: make([]types.ServiceEntry, 0, len(snap.Services)),
	}

	for _, team := range snap.TeamList() {
		status.TeamList = append(status.TeamList, types.TeamEntry{
			TID:      team.ID,
			TName:    team.Name,
			AtkCount: team.AttackCount,
			VicCount: team.VictimCount,
			SLA:      team.SLA,
			Score:    team.Score,
		})
	}
	for _, svc := range snap.Services {
		status.ServiceList = append(status.ServiceList, types.ServiceEntry{SID: svc.ID, SName: svc.Name})
	}

	return status
}

func shifted(t time.Time, offset time.Duration) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Add(offset).Unix()
}
