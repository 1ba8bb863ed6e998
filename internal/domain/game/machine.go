package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/model"
	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/scoring"
	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/types"
	"github.com/Tknika/ctf-gameserver-mqtt/pkg/logger"
	"github.com/Tknika/ctf-gameserver-mqtt/pkg/metrics"
)

// Provider is the read side the machine needs from the store.
type Provider interface {
	GetControlWindow(ctx context.Context) (model.Window, error)
	GetRoster(ctx context.Context) (model.Roster, error)
	GetNewCaptures(ctx context.Context, afterID int64) ([]model.Capture, error)
	GetScores(ctx context.Context) ([]model.TeamValue, error)
	GetSLA(ctx context.Context) ([]model.TeamValue, error)
}

// Publisher delivers one rendered status event.
type Publisher interface {
	Publish(ctx context.Context, status types.Status) error
}

// Machine drives a Snapshot through NotStarted -> Running -> Finished.
type Machine struct {
	provider   Provider
	publisher  Publisher
	aggregator *scoring.Aggregator
	correlator Correlator
	clock      clockwork.Clock
	logger     logger.Logger

	finishGrace     time.Duration
	tickSettle      time.Duration
	captureSpacing  time.Duration
	timestampOffset time.Duration
	rebuildOnStart  bool
}

// NewMachine creates a Machine reading from provider and emitting to publisher.
func NewMachine(provider Provider, publisher Publisher, opts ...Option) *Machine {
	m := &Machine{
		provider:        provider,
		publisher:       publisher,
		aggregator:      scoring.NewAggregator(),
		clock:           clockwork.NewRealClock(),
		logger:          logger.Get().Named("game"),
		finishGrace:     DefaultFinishGrace,
		tickSettle:      DefaultTickSettle,
		captureSpacing:  DefaultCaptureSpacing,
		timestampOffset: DefaultTimestampOffset,
		rebuildOnStart:  true,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// TimestampOffset returns the shift applied to rendered timestamps.
func (m *Machine) TimestampOffset() time.Duration {
	return m.timestampOffset
}

// Step runs one iteration: Start, then Finish, then Tick, then captures.
// It returns the last committed snapshot. A failed transition leaves the
// snapshot as it was before that transition; events already emitted in this
// iteration stay committed.
func (m *Machine) Step(ctx context.Context, snap Snapshot) (Snapshot, error) {
	window, err := m.provider.GetControlWindow(ctx)
	if err != nil {
		return snap, fmt.Errorf("control window: %w", err)
	}
	if err := window.Validate(); err != nil {
		return snap, err
	}

	now := m.clock.Now().UTC()

	if snap.Phase == model.PhaseNotStarted && window.Running(now) {
		next, err := m.start(ctx, snap, window, now)
		if err != nil {
			return snap, fmt.Errorf("start: %w", err)
		}
		snap = next
		m.emit(ctx, snap)
	}

	if snap.Phase == model.PhaseRunning && window.Over(now, m.finishGrace) {
		next, err := m.finish(ctx, snap)
		if err != nil {
			return snap, fmt.Errorf("finish: %w", err)
		}
		m.emit(ctx, next)
		return next, nil
	}

	if snap.Phase != model.PhaseRunning {
		return snap, nil
	}

	if window.CurrentTick > snap.CurrentTick {
		next, err := m.tick(ctx, snap, window.CurrentTick)
		if err != nil {
			return snap, fmt.Errorf("tick %d: %w", window.CurrentTick, err)
		}
		snap = next
		m.emit(ctx, snap)
	}

	return m.captures(ctx, snap)
}

func (m *Machine) start(ctx context.Context, snap Snapshot, window model.Window, now time.Time) (Snapshot, error) {
	roster, err := m.provider.GetRoster(ctx)
	if err != nil {
		return snap, fmt.Errorf("roster: %w", err)
	}

	next := snap.Clone()
	next.Phase = model.PhaseRunning
	next.CurrentTick = 1
	next.SessionID = roster.SessionID
	next.FinishTime = window.End.UTC()
	next.Teams = make(map[int64]model.Team, len(roster.Teams))
	next.TeamOrder = make([]int64, 0, len(roster.Teams))
	for _, t := range roster.Teams {
		next.Teams[t.ID] = model.Team{ID: t.ID, Name: t.Name, SLA: 100}
		next.TeamOrder = append(next.TeamOrder, t.ID)
	}
	sort.Slice(next.TeamOrder, func(i, j int) bool { return next.TeamOrder[i] < next.TeamOrder[j] })
	next.Services = append([]model.Service(nil), roster.Services...)

	if m.rebuildOnStart {
		existing, err := m.provider.GetNewCaptures(ctx, next.Watermark)
		if err != nil {
			return snap, fmt.Errorf("rebuild captures: %w", err)
		}
		attributed, unattributed := m.correlator.Replay(ctx, &next, existing)
		if len(existing) > 0 {
			m.logger.Info(ctx, "rebuilt capture counters",
				logger.Int("attributed", attributed),
				logger.Int("unattributed", unattributed),
				logger.Int64("watermark", next.Watermark))
		}
	}

	next.Event = Event{Type: model.EventStart, Timestamp: now}

	m.logger.Info(ctx, "game started",
		logger.Int64("session", next.SessionID),
		logger.Int("teams", len(next.TeamOrder)),
		logger.Int("services", len(next.Services)),
		logger.Time("finish_time", next.FinishTime))
	return next, nil
}

func (m *Machine) finish(ctx context.Context, snap Snapshot) (Snapshot, error) {
	next := snap.Clone()
	if err := m.refreshSLA(ctx, &next); err != nil {
		return snap, err
	}
	if err := m.refreshScores(ctx, &next); err != nil {
		return snap, err
	}

	next.Phase = model.PhaseFinished
	next.Event = Event{Type: model.EventFinish, Timestamp: m.clock.Now().UTC()}

	m.logger.Info(ctx, "game finished", logger.Int64("tick", next.CurrentTick), logger.Int64("watermark", next.Watermark))
	return next, nil
}

func (m *Machine) tick(ctx context.Context, snap Snapshot, current int64) (Snapshot, error) {
	if err := m.sleep(ctx, m.tickSettle); err != nil {
		return snap, err
	}

	next := snap.Clone()
	if err := m.refreshSLA(ctx, &next); err != nil {
		return snap, err
	}
	if err := m.refreshScores(ctx, &next); err != nil {
		return snap, err
	}

	next.CurrentTick = current
	next.Event = Event{Type: model.EventTick, Timestamp: m.clock.Now().UTC()}

	m.logger.Debug(ctx, "tick advanced", logger.Int64("tick", current))
	return next, nil
}

// captures emits one event per new capture in id order, committing each
// before moving on.
func (m *Machine) captures(ctx context.Context, snap Snapshot) (Snapshot, error) {
	batch, err := m.provider.GetNewCaptures(ctx, snap.Watermark)
	if err != nil {
		return snap, fmt.Errorf("captures after %d: %w", snap.Watermark, err)
	}

	emitted := 0
	for _, capture := range batch {
		if err := ctx.Err(); err != nil {
			return snap, err
		}

		next := snap.Clone()
		outcome := m.correlator.Correlate(ctx, &next, capture)
		switch outcome {
		case OutcomeDuplicate:
			m.logger.Warn(ctx, "capture at or below watermark ignored",
				logger.Int64("capture_id", capture.ID), logger.Int64("watermark", snap.Watermark))
			continue
		case OutcomeUnattributed:
			metrics.RecordUnattributedCapture()
			m.logger.Error(ctx, "capture references team outside roster",
				logger.Int64("capture_id", capture.ID),
				logger.Int64("capturing_team", capture.CapturingTeamID),
				logger.Int64("protecting_team", capture.ProtectingTeamID))
		case OutcomeAttributed:
			if err := m.refreshScores(ctx, &next); err != nil {
				return snap, fmt.Errorf("capture %d: %w", capture.ID, err)
			}
		}

		if emitted > 0 {
			if err := m.sleep(ctx, m.captureSpacing); err != nil {
				return snap, err
			}
		}

		next.Event.Timestamp = m.clock.Now().UTC()
		snap = next
		m.emit(ctx, snap)
		emitted++
	}

	return snap, nil
}

func (m *Machine) refreshScores(ctx context.Context, snap *Snapshot) error {
	rows, err := m.provider.GetScores(ctx)
	if err != nil {
		return fmt.Errorf("scores: %w", err)
	}
	scores, err := m.aggregator.Scores(snap.TeamOrder, rows)
	if err != nil {
		m.integrityFault(ctx, err)
		return nil
	}
	for id, score := range scores {
		snap.updateTeam(id, func(t *model.Team) { t.Score = score })
	}
	return nil
}

func (m *Machine) refreshSLA(ctx context.Context, snap *Snapshot) error {
	rows, err := m.provider.GetSLA(ctx)
	if err != nil {
		return fmt.Errorf("sla: %w", err)
	}
	slas, err := m.aggregator.SLAs(snap.TeamOrder, rows)
	if err != nil {
		m.integrityFault(ctx, err)
		return nil
	}
	for id, sla := range slas {
		snap.updateTeam(id, func(t *model.Team) { t.SLA = sla })
	}
	return nil
}

// integrityFault reports rows that do not line up with the roster. The
// affected values keep their previous state.
func (m *Machine) integrityFault(ctx context.Context, err error) {
	kind := "invalid_value"
	if errors.Is(err, scoring.ErrRosterMismatch) {
		kind = "roster_mismatch"
	}
	metrics.RecordIntegrityFault(kind)
	m.logger.Error(ctx, "aggregate rows rejected, keeping previous values", logger.String("kind", kind), logger.Error(err))
}

// emit hands the snapshot's pending event to the publisher. Delivery is best
// effort; failures are counted by the publisher and never undo the state.
func (m *Machine) emit(ctx context.Context, snap Snapshot) {
	status := Render(snap, m.timestampOffset)
	metrics.RecordEventEmitted(status.Type)
	if err := m.publisher.Publish(ctx, status); err != nil {
		m.logger.Warn(ctx, "status event not delivered",
			logger.String("type", status.Type),
			logger.Error(err))
	}
}

func (m *Machine) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.clock.After(d):
		return nil
	}
}
