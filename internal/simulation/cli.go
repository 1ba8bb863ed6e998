package simulation

import (
	"fmt"
	"io"
	"os"

	"github.com/Tknika/ctf-gameserver-mqtt/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging initialises the global logger, writing to stdout and, when
// logFile is set, appending to that file too. The returned closer releases
// the file.
func SetupLogging(logFile, format string, verbose bool) (io.Closer, error) {
	var (
		w      io.Writer = os.Stdout
		closer io.Closer = io.NopCloser(nil)
	)
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, file)
		closer = file
	}

	if err := initLogger(w, format, verbose); err != nil {
		_ = closer.Close()
		return nil, err
	}
	return closer, nil
}

func initLogger(w io.Writer, format string, verbose bool) error {
	if err := logger.Init(logger.WithWriter(w), logger.WithFormat(format)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		return logger.SetLevelString("debug")
	}
	return nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	os.Stdout.WriteString(`CTF Status Simulator
====================

Plays a scripted competition against an in-memory gameserver and publishes
the resulting status events, without needing Postgres.

Usage:
  go run ./cmd/simulate [options]

Options:
  -teams int
        Number of teams (default 6)
  -services int
        Number of services per team (default 3)
  -ticks int
        Length of the game in ticks (default 10)
  -tick duration
        Wall time per tick (default 10s)
  -start-delay duration
        Time between launch and game start (default 3s)
  -capture-rate float
        Chance per team, service and tick of capturing a flag (default 0.15)
  -check-fail-rate float
        Chance a status check fails (default 0.1)
  -seed int
        Random seed, 0 picks one from the clock
  -broker string
        MQTT broker URL; empty prints events instead of sending them
  -topic string
        MQTT topic (default "status")
  -log string
        Also append log output to this file
  -log-format string
        text or json (default "text")
  -verbose
        Enable debug logging
  -help
        Show this help message

Examples:
  # Dry run with default settings
  go run ./cmd/simulate

  # A fast game against a local broker
  go run ./cmd/simulate -broker tcp://localhost:1883 -ticks 20 -tick 2s
`)
}
