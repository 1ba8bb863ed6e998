// Package repository reads competition state from the gameserver database.
package repository

import (
	"context"

	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/model"
)

// Provider is the read-only view of the gameserver store.
type Provider interface {
	// GetControlWindow returns the competition window. It returns an error
	// wrapping model.ErrWindowNotConfigured when no control row exists.
	GetControlWindow(ctx context.Context) (model.Window, error)

	// GetRoster returns the session id with active teams and services, each
	// ordered by id.
	GetRoster(ctx context.Context) (model.Roster, error)

	// GetNewCaptures returns captures with id > afterID in ascending id order.
	GetNewCaptures(ctx context.Context, afterID int64) ([]model.Capture, error)

	// GetScores returns one score total per active team ordered by team id.
	GetScores(ctx context.Context) ([]model.TeamValue, error)

	// GetSLA returns one SLA percentage per active team ordered by team id.
	GetSLA(ctx context.Context) ([]model.TeamValue, error)
}
