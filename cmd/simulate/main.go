package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tknika/ctf-gameserver-mqtt/internal/simulation"
)

func main() {
	defaults := simulation.DefaultConfig()
	var (
		teams         = flag.Int("teams", defaults.Teams, "Number of teams")
		services      = flag.Int("services", defaults.Services, "Number of services per team")
		ticks         = flag.Int("ticks", defaults.Ticks, "Length of the game in ticks")
		tick          = flag.Duration("tick", defaults.TickDuration, "Wall time per tick")
		startDelay    = flag.Duration("start-delay", defaults.StartDelay, "Time between launch and game start")
		captureRate   = flag.Float64("capture-rate", defaults.CaptureRate, "Chance per team, service and tick of capturing a flag")
		checkFailRate = flag.Float64("check-fail-rate", defaults.CheckFailRate, "Chance a status check fails")
		seed          = flag.Int64("seed", 0, "Random seed, 0 picks one from the clock")
		broker        = flag.String("broker", "", "MQTT broker URL; empty prints events instead of sending them")
		topic         = flag.String("topic", "", "MQTT topic (default \"status\")")
		logFile       = flag.String("log", "", "Also append log output to this file")
		logFormat     = flag.String("log-format", "text", "text or json")
		verbose       = flag.Bool("verbose", false, "Enable debug logging")
		help          = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulation.ShowHelp()
		return
	}

	closer, err := simulation.SetupLogging(*logFile, *logFormat, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closer.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := defaults
	cfg.Teams = *teams
	cfg.Services = *services
	cfg.Ticks = *ticks
	cfg.TickDuration = *tick
	cfg.StartDelay = *startDelay
	cfg.CaptureRate = *captureRate
	cfg.CheckFailRate = *checkFailRate
	cfg.Seed = *seed
	cfg.BrokerURL = *broker
	cfg.Topic = *topic

	if _, err := simulation.Run(ctx, cfg, nil); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}
