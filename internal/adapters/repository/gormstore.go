package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/model"
	"github.com/Tknika/ctf-gameserver-mqtt/pkg/logger"
	"github.com/Tknika/ctf-gameserver-mqtt/pkg/metrics"
)

// Postgres error codes the store distinguishes.
const (
	pgInsufficientPrivilege = "42501"
	pgQueryCanceled         = "57014"
)

// Default store constants.
const (
	defaultQueryTimeout  = 5 * time.Second
	defaultSlowThreshold = 500 * time.Millisecond
)

const (
	controlQuery = `SELECT id, start, "end", tick_duration, current_tick FROM scoring_gamecontrol LIMIT 1`

	teamsQuery = `SELECT u.id AS id, u.username AS name
		FROM registration_team t INNER JOIN auth_user u ON t.user_id = u.id
		WHERE u.is_active
		ORDER BY u.id`

	servicesQuery = `SELECT id, name FROM scoring_service ORDER BY id`

	capturesQuery = `SELECT capture.id, capture.capturing_team_id, flag.protecting_team_id, flag.service_id
		FROM scoring_capture capture INNER JOIN scoring_flag flag ON capture.flag_id = flag.id
		WHERE capture.id > ?
		ORDER BY capture.id`

	// Score and SLA rows start from the active roster so every team gets
	// exactly one row, even before it has any scoreboard entry or check.
	scoresQuery = `SELECT u.id AS team_id, COALESCE(SUM(sb.total), 0)::float8 AS value
		FROM registration_team t INNER JOIN auth_user u ON t.user_id = u.id
		LEFT JOIN scoring_scoreboard sb ON sb.team_id = u.id
		WHERE u.is_active
		GROUP BY u.id
		ORDER BY u.id`

	slaQuery = `SELECT u.id AS team_id,
			COALESCE(100.0 * COUNT(sc.id) FILTER (WHERE sc.status = ?) / NULLIF(COUNT(sc.id), 0), 100)::float8 AS value
		FROM registration_team t INNER JOIN auth_user u ON t.user_id = u.id
		LEFT JOIN scoring_statuscheck sc ON sc.team_id = u.id
		WHERE u.is_active
		GROUP BY u.id
		ORDER BY u.id`

	statusOK = 0
)

type controlRow struct {
	ID           int64
	Start        *time.Time
	End          *time.Time
	TickDuration *int64
	CurrentTick  *int64
}

type namedRow struct {
	ID   int64
	Name string
}

type captureRow struct {
	ID               int64
	CapturingTeamID  int64
	ProtectingTeamID int64
	ServiceID        int64
}

type valueRow struct {
	TeamID int64
	Value  float64
}

// GormStore is the Postgres Provider. Every call runs in its own read-only
// transaction bounded by the query timeout.
type GormStore struct {
	db            *gorm.DB
	queryTimeout  time.Duration
	slowThreshold time.Duration
	logger        logger.Logger
}

// NewGormStore wraps an open gorm handle.
func NewGormStore(db *gorm.DB, opts ...Option) *GormStore {
	s := newGormStore(opts...)
	s.db = db
	return s
}

func newGormStore(opts ...Option) *GormStore {
	s := &GormStore{
		queryTimeout:  defaultQueryTimeout,
		slowThreshold: defaultSlowThreshold,
		logger:        logger.Get().Named("store"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Open connects to Postgres and verifies the connection. Failures wrap
// ErrUnavailable.
func Open(ctx context.Context, dsn string, opts ...Option) (*GormStore, error) {
	s := newGormStore(opts...)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:  newGormLogger(s.logger, s.slowThreshold),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s.db = db
	return s, nil
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CheckPermissions reads the control row the way the publisher will. Missing
// grants wrap ErrInsufficientPrivilege; an unconfigured window is only logged.
func (s *GormStore) CheckPermissions(ctx context.Context) error {
	_, err := s.GetControlWindow(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrWindowNotConfigured):
		s.logger.Warn(ctx, "invalid database state", logger.Error(err))
		return nil
	default:
		return err
	}
}

// GetControlWindow implements Provider.
func (s *GormStore) GetControlWindow(ctx context.Context) (model.Window, error) {
	var rows []controlRow
	err := s.read(ctx, "control_window", sql.LevelDefault, func(tx *gorm.DB) error {
		return tx.Raw(controlQuery).Scan(&rows).Error
	})
	if err != nil {
		return model.Window{}, err
	}
	if len(rows) == 0 {
		return model.Window{}, fmt.Errorf("%w: no game control row", model.ErrWindowNotConfigured)
	}
	return rows[0].window(), nil
}

func (r controlRow) window() model.Window {
	var w model.Window
	if r.Start != nil {
		w.Start = r.Start.UTC()
	}
	if r.End != nil {
		w.End = r.End.UTC()
	}
	if r.TickDuration != nil {
		w.TickDuration = time.Duration(*r.TickDuration) * time.Second
	}
	if r.CurrentTick != nil {
		w.CurrentTick = *r.CurrentTick
	}
	return w
}

// GetRoster implements Provider. The session id, teams and services are read
// from one repeatable-read transaction so they are mutually consistent.
func (s *GormStore) GetRoster(ctx context.Context) (model.Roster, error) {
	var (
		control  []controlRow
		teams    []namedRow
		services []namedRow
	)
	err := s.read(ctx, "roster", sql.LevelRepeatableRead, func(tx *gorm.DB) error {
		if err := tx.Raw(controlQuery).Scan(&control).Error; err != nil {
			return err
		}
		if err := tx.Raw(teamsQuery).Scan(&teams).Error; err != nil {
			return err
		}
		return tx.Raw(servicesQuery).Scan(&services).Error
	})
	if err != nil {
		return model.Roster{}, err
	}
	if len(control) == 0 {
		return model.Roster{}, fmt.Errorf("%w: no game control row", model.ErrWindowNotConfigured)
	}

	roster := model.Roster{
		SessionID: control[0].ID,
		Teams:     make([]model.Team, 0, len(teams)),
		Services:  make([]model.Service, 0, len(services)),
	}
	for _, t := range teams {
		roster.Teams = append(roster.Teams, model.Team{ID: t.ID, Name: t.Name})
	}
	for _, svc := range services {
		roster.Services = append(roster.Services, model.Service{ID: svc.ID, Name: svc.Name})
	}
	return roster, nil
}

// GetNewCaptures implements Provider.
func (s *GormStore) GetNewCaptures(ctx context.Context, afterID int64) ([]model.Capture, error) {
	var rows []captureRow
	err := s.read(ctx, "captures", sql.LevelDefault, func(tx *gorm.DB) error {
		return tx.Raw(capturesQuery, afterID).Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.Capture, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Capture{
			ID:               r.ID,
			CapturingTeamID:  r.CapturingTeamID,
			ProtectingTeamID: r.ProtectingTeamID,
			ServiceID:        r.ServiceID,
		})
	}
	return out, nil
}

// GetScores implements Provider.
func (s *GormStore) GetScores(ctx context.Context) ([]model.TeamValue, error) {
	return s.values(ctx, "scores", scoresQuery)
}

// GetSLA implements Provider.
func (s *GormStore) GetSLA(ctx context.Context) ([]model.TeamValue, error) {
	return s.values(ctx, "sla", slaQuery, statusOK)
}

func (s *GormStore) values(ctx context.Context, op, query string, args ...interface{}) ([]model.TeamValue, error) {
	var rows []valueRow
	err := s.read(ctx, op, sql.LevelDefault, func(tx *gorm.DB) error {
		return tx.Raw(query, args...).Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.TeamValue, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.TeamValue{TeamID: r.TeamID, Value: r.Value})
	}
	return out, nil
}

// read runs fn in a read-only transaction under the query timeout and
// records latency and failures for op.
func (s *GormStore) read(ctx context.Context, op string, isolation sql.IsolationLevel, fn func(tx *gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	start := time.Now()
	err := s.db.WithContext(ctx).Transaction(fn, &sql.TxOptions{Isolation: isolation, ReadOnly: true})
	metrics.RecordProviderQuery(op, float64(time.Since(start).Milliseconds()))
	if err == nil {
		return nil
	}

	kind, wrapped := classify(ctx, op, err)
	metrics.RecordProviderError(op, kind)
	return wrapped
}

// classify maps a driver error onto the store's sentinel kinds.
func classify(ctx context.Context, op string, err error) (string, error) {
	var pgErr *pgconn.PgError
	isPg := errors.As(err, &pgErr)

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(isPg && pgErr.Code == pgQueryCanceled):
		return "timeout", fmt.Errorf("%s: %w: %v", op, model.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return "canceled", fmt.Errorf("%s: %w", op, err)
	case isPg && pgErr.Code == pgInsufficientPrivilege:
		return "privilege", fmt.Errorf("%s: %w: %v", op, ErrInsufficientPrivilege, err)
	default:
		return "query", fmt.Errorf("%s: %w: %v", op, ErrQuery, err)
	}
}
