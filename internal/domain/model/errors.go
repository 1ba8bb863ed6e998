package model

import "errors"

// Sentinel error kinds shared by the domain and its adapters.
var (
	// ErrWindowNotConfigured marks a configuration fault: the control row is
	// missing, incomplete, or inverted. Callers back off and retry.
	ErrWindowNotConfigured = errors.New("game control window not configured")

	// ErrTimeout marks an external call that exceeded its bound. It is
	// recoverable and distinct from a configuration fault.
	ErrTimeout = errors.New("external call timed out")
)
