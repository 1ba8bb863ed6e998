package config

import "errors"

var (
	// ErrInvalidConfig means the settings loaded but a value is out of range
	// or a required one is missing.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig means a source (file or env) could not be read or decoded.
	ErrLoadConfig = errors.New("load config failed")
)
