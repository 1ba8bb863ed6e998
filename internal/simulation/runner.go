package simulation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Tknika/ctf-gameserver-mqtt/internal/adapters/mq/publisher"
	repository "github.com/Tknika/ctf-gameserver-mqtt/internal/adapters/repository"
	service "github.com/Tknika/ctf-gameserver-mqtt/internal/app"
	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/game"
	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/model"
	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/types"
	"github.com/Tknika/ctf-gameserver-mqtt/pkg/logger"
)

// Run plays a complete competition: the generator fills a MemoryStore while
// the publishing loop reads it, until the finish event goes out or ctx ends.
// pub receives the events; nil selects a publisher from cfg.
func Run(ctx context.Context, cfg *Config, pub publisher.Publisher) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = clock.Now().UnixNano()
	}

	report := &Report{RunID: uuid.NewString(), StartTime: clock.Now()}
	log := logger.Get().Named("simulation")
	log.Info(ctx, "starting simulated competition",
		logger.String("runID", report.RunID),
		logger.Int("teams", cfg.Teams),
		logger.Int("services", cfg.Services),
		logger.Int("ticks", cfg.Ticks),
		logger.Duration("tickDuration", cfg.TickDuration),
		logger.Int64("seed", seed))

	store := repository.NewMemoryStore(repository.WithClock(clock))
	gen := NewGenerator(store, cfg, seed)
	store.SetRoster(gen.Roster(1))

	start := clock.Now().Add(cfg.StartDelay)
	store.SetWindow(model.Window{
		Start:        start,
		End:          start.Add(time.Duration(cfg.Ticks) * cfg.TickDuration),
		TickDuration: cfg.TickDuration,
	})

	if pub == nil {
		pub = newPublisher(cfg)
	}
	rec := newRecorder(publisher.NewTracked(pub, publisher.DefaultThreshold), gen.tally)

	opts := []game.Option{
		game.WithClock(clock),
		game.WithTickSettle(cfg.TickSettle),
		game.WithCaptureSpacing(cfg.CaptureSpacing),
		game.WithFinishGrace(cfg.FinishGrace),
	}
	if cfg.TimestampOffset != 0 {
		opts = append(opts, game.WithTimestampOffset(cfg.TimestampOffset))
	}
	svc := service.New(game.NewMachine(store, rec, opts...),
		service.WithClock(clock),
		service.WithPollInterval(cfg.PollInterval),
		service.WithConfigBackoff(cfg.PollInterval))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		gen.Play(runCtx, clock, start, cfg.Ticks, cfg.TickDuration)
	}()

	if err := svc.Start(runCtx); err != nil {
		return nil, fmt.Errorf("start publishing loop: %w", err)
	}

	var err error
	select {
	case <-rec.finished:
	case <-ctx.Done():
		err = fmt.Errorf("%w: %v", ErrNotFinished, ctx.Err())
	}

	cancel()
	svc.Stop()
	wg.Wait()

	report.EndTime = clock.Now()
	report.Duration = report.EndTime.Sub(report.StartTime)
	gen.tally.report(report)
	displayReport(ctx, report)
	return report, err
}

// newPublisher sends to the broker when one is configured and logs otherwise.
func newPublisher(cfg *Config) publisher.Publisher {
	if cfg.BrokerURL == "" {
		return publisher.NewDryRun(logger.Get().Named("dry-run"))
	}
	opts := []publisher.Option{publisher.WithClientPrefix("ctf-simulate")}
	if cfg.Topic != "" {
		opts = append(opts, publisher.WithTopic(cfg.Topic))
	}
	return publisher.NewMQTT(cfg.BrokerURL, opts...)
}

// recorder counts published events and signals once the finish event is out.
type recorder struct {
	next     publisher.Publisher
	tally    *tally
	finished chan struct{}
	once     sync.Once
}

func newRecorder(next publisher.Publisher, t *tally) *recorder {
	return &recorder{next: next, tally: t, finished: make(chan struct{})}
}

// Publish implements game.Publisher.
func (r *recorder) Publish(ctx context.Context, status types.Status) error {
	err := r.next.Publish(ctx, status)
	r.tally.event(status.Type, err)
	if status.Type == string(model.EventFinish) {
		r.once.Do(func() { close(r.finished) })
	}
	return err
}

// displayReport logs the final simulation statistics.
func displayReport(ctx context.Context, r *Report) {
	var failRate float64
	if r.Checks > 0 {
		failRate = float64(r.ChecksFailed) / float64(r.Checks) * 100
	}

	logger.Get().Info(ctx, "simulation statistics",
		logger.String("runID", r.RunID),
		logger.Int("ticksPlayed", r.TicksPlayed),
		logger.Int("captures", r.Captures),
		logger.Int("checks", r.Checks),
		logger.Float64("checkFailPercent", failRate),
		logger.Int("startEvents", r.Events[string(model.EventStart)]),
		logger.Int("tickEvents", r.Events[string(model.EventTick)]),
		logger.Int("captureEvents", r.Events[string(model.EventCapture)]),
		logger.Int("finishEvents", r.Events[string(model.EventFinish)]),
		logger.Int("publishErrors", r.PublishErrors),
		logger.String("duration", r.Duration.String()))
}
