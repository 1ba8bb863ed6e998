package simulation

import "errors"

var (
	// ErrInvalidConfig is returned when simulation settings cannot produce a game.
	ErrInvalidConfig = errors.New("invalid simulation config")
	// ErrNotFinished is returned when the run ends before the finish event.
	ErrNotFinished = errors.New("simulation ended before the game finished")
)
