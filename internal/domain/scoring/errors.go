package scoring

import "errors"

// Sentinel kinds for data-integrity faults.
var (
	ErrRosterMismatch = errors.New("rows do not match team roster")
	ErrInvalidValue   = errors.New("invalid aggregate value")
)
