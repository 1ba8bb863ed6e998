package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrUnavailable           = errors.New("database unavailable")
	ErrInsufficientPrivilege = errors.New("insufficient database privileges")
	ErrQuery                 = errors.New("database query failed")
)
