package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Tknika/ctf-gameserver-mqtt/internal/adapters/http/api"
	"github.com/Tknika/ctf-gameserver-mqtt/internal/adapters/mq/publisher"
	repository "github.com/Tknika/ctf-gameserver-mqtt/internal/adapters/repository"
	app "github.com/Tknika/ctf-gameserver-mqtt/internal/app"
	"github.com/Tknika/ctf-gameserver-mqtt/internal/config"
	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/game"
	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/scoring"
	"github.com/Tknika/ctf-gameserver-mqtt/pkg/logger"
	"github.com/Tknika/ctf-gameserver-mqtt/pkg/metrics"
)

// Process exit codes, following sysexits.h.
const (
	exitOK          = 0
	exitFailure     = 1
	exitUnavailable = 69
	exitNoPerm      = 77
	exitConfig      = 78
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 10 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 10 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return exitFailure
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return exitCode(err)
	}
	if err := cfg.RequireDatabase(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		return exitCode(err)
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return exitConfig
	}
	defer func() { _ = logger.Sync() }()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		_ = logger.SetLevelString("info")
	}
	log := logger.Get()

	store, err := repository.Open(ctx, cfg.DatabaseDSN,
		repository.WithQueryTimeout(cfg.QueryTimeout()),
		repository.WithLogger(log.Named("store")))
	if err != nil {
		log.Error(ctx, "could not establish database connection", logger.Error(err))
		return exitCode(err)
	}
	defer func() { _ = store.Close() }()
	log.Info(ctx, "established database connection")

	if err := store.CheckPermissions(ctx); err != nil {
		log.Error(ctx, "database grant check failed", logger.Error(err))
		return exitCode(err)
	}

	tracked := publisher.NewTracked(newPublisher(cfg, log), cfg.PublishFailureThreshold)
	svc := app.New(newMachine(cfg, store, tracked, log),
		app.WithLogger(log.Named("loop")),
		app.WithPollInterval(cfg.PollInterval()),
		app.WithConfigBackoff(cfg.ConfigBackoff()),
		app.WithHealth(tracked))
	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start status publisher", logger.Error(err))
		return exitFailure
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)

	var srv *http.Server
	if cfg.Addr != "" {
		srv = newHTTPServer(ctx, cfg.Addr, svc)
		go func() {
			log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(ctx, "HTTP server failed", logger.Error(err))
			}
		}()
	}

	<-ctx.Done()
	log.Info(context.Background(), "shutting down...")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
		}
	}

	return exitOK
}

// exitCode maps startup errors onto sysexits codes.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, config.ErrInvalidConfig), errors.Is(err, config.ErrLoadConfig):
		return exitConfig
	case errors.Is(err, repository.ErrInsufficientPrivilege):
		return exitNoPerm
	case errors.Is(err, repository.ErrUnavailable), errors.Is(err, repository.ErrQuery):
		return exitUnavailable
	default:
		return exitFailure
	}
}

// newPublisher picks the MQTT publisher or, in dry-run mode, the log writer.
func newPublisher(cfg *config.Config, log logger.Logger) publisher.Publisher {
	if cfg.DryRun {
		return publisher.NewDryRun(log.Named("dry-run"))
	}
	return publisher.NewMQTT(cfg.BrokerURL,
		publisher.WithTopic(cfg.BrokerTopic),
		publisher.WithQoS(cfg.BrokerQoS),
		publisher.WithRetained(cfg.BrokerRetained),
		publisher.WithClientPrefix(cfg.BrokerClientPrefix),
		publisher.WithConnectTimeout(cfg.ConnectTimeout()),
		publisher.WithPublishTimeout(cfg.PublishTimeout()),
		publisher.WithLogger(log.Named("mqtt")))
}

func newMachine(cfg *config.Config, provider game.Provider, pub game.Publisher, log logger.Logger) *game.Machine {
	return game.NewMachine(provider, pub,
		game.WithLogger(log.Named("game")),
		game.WithAggregator(scoring.NewAggregator(scoring.WithSLAPrecision(cfg.SLAPrecision))),
		game.WithFinishGrace(cfg.FinishGrace()),
		game.WithTickSettle(cfg.TickSettle()),
		game.WithCaptureSpacing(cfg.CaptureSpacing()),
		game.WithTimestampOffset(cfg.TimestampOffset()),
		game.WithRebuildOnStart(cfg.RebuildOnStart))
}

func newHTTPServer(ctx context.Context, addr string, deps api.Dependencies) *http.Server {
	mux := http.NewServeMux()
	api.NewServer(deps).Register(ctx, mux)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
