// Package scoring turns per-team aggregate rows into roster-aligned scores
// and SLA percentages.
package scoring

import (
	"fmt"
	"math"

	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/model"
)

// Default aggregation constants.
const (
	defaultSLAPrecision = 0
	maxSLAPrecision     = 6
	maxSLA              = 100
)

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithSLAPrecision sets how many decimals SLA percentages keep.
func WithSLAPrecision(decimals int) Option {
	return func(a *Aggregator) {
		if decimals >= 0 && decimals <= maxSLAPrecision {
			a.slaPrecision = decimals
		}
	}
}

// Aggregator aligns provider rows with the team roster.
//
// Rows must be sorted by team id and cover exactly the roster. A row set
// that does not is rejected as a whole so values never land on the wrong team.
type Aggregator struct {
	slaPrecision int
}

// NewAggregator creates an Aggregator with configuration options.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		slaPrecision: defaultSLAPrecision,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Scores returns each team's score total rounded to the nearest integer.
// order is the roster's team ids in ascending order.
func (a *Aggregator) Scores(order []int64, rows []model.TeamValue) (map[int64]int64, error) {
	if err := align(order, rows); err != nil {
		return nil, fmt.Errorf("scores: %w", err)
	}

	out := make(map[int64]int64, len(rows))
	for _, row := range rows {
		if math.IsNaN(row.Value) || math.IsInf(row.Value, 0) {
			return nil, fmt.Errorf("scores: team %d: %w: %v", row.TeamID, ErrInvalidValue, row.Value)
		}
		out[row.TeamID] = int64(math.Round(row.Value))
	}
	return out, nil
}

// SLAs returns each team's SLA percentage rounded to the configured precision.
func (a *Aggregator) SLAs(order []int64, rows []model.TeamValue) (map[int64]float64, error) {
	if err := align(order, rows); err != nil {
		return nil, fmt.Errorf("sla: %w", err)
	}

	scale := math.Pow10(a.slaPrecision)
	out := make(map[int64]float64, len(rows))
	for _, row := range rows {
		if math.IsNaN(row.Value) || row.Value < 0 || row.Value > maxSLA {
			return nil, fmt.Errorf("sla: team %d: %w: %v", row.TeamID, ErrInvalidValue, row.Value)
		}
		out[row.TeamID] = math.Round(row.Value*scale) / scale
	}
	return out, nil
}

// align checks that rows pair up one-to-one with order, position by position.
func align(order []int64, rows []model.TeamValue) error {
	if len(rows) != len(order) {
		return fmt.Errorf("%w: %d rows for %d teams", ErrRosterMismatch, len(rows), len(order))
	}
	for i, row := range rows {
		if row.TeamID != order[i] {
			return fmt.Errorf("%w: row %d is team %d, roster has team %d", ErrRosterMismatch, i, row.TeamID, order[i])
		}
	}
	return nil
}
