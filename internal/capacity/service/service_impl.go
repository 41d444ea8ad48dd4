package service

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	capacitydomain "github.com/capgrid/rentd/internal/capacity/domain"
	"github.com/capgrid/rentd/internal/observability/metrics"
)

// The engine keeps exactly one capacity row.
const stateRowID = 1

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Metrics *metrics.EngineMetrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	metrics *metrics.EngineMetrics
}

func NewService(p ServiceParam) capacitydomain.Ledger {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("capacity.ledger"),
		metrics: p.Metrics,
	}
}

type stateRow struct {
	RentedUnits   int64
	MaxUnits      int64
	DeprecationAt time.Time
	Paused        bool
}

func (s *Service) State(ctx context.Context) (capacitydomain.State, error) {
	return s.load(ctx, s.db)
}

func (s *Service) load(ctx context.Context, db *gorm.DB) (capacitydomain.State, error) {
	var row stateRow
	err := db.WithContext(ctx).Raw(
		`SELECT rented_units, max_units, deprecation_at, paused
		 FROM capacity_state
		 WHERE id = ?`,
		stateRowID,
	).Scan(&row).Error
	if err != nil {
		return capacitydomain.State{}, err
	}
	if row.MaxUnits == 0 && row.DeprecationAt.IsZero() {
		return capacitydomain.State{}, capacitydomain.ErrStateUninitialized
	}
	return capacitydomain.State{
		RentedUnits:   uint64(row.RentedUnits),
		MaxUnits:      uint64(row.MaxUnits),
		DeprecationAt: row.DeprecationAt,
		Paused:        row.Paused,
	}, nil
}

func (s *Service) Reserve(ctx context.Context, tx *gorm.DB, total uint64) (capacitydomain.State, error) {
	state, err := s.load(ctx, tx)
	if err != nil {
		return capacitydomain.State{}, err
	}

	next := state.RentedUnits + total
	if next < state.RentedUnits {
		return capacitydomain.State{}, capacitydomain.ErrUnitsOverflow
	}
	if next > state.MaxUnits {
		return capacitydomain.State{}, capacitydomain.ErrExceedsCapacity
	}

	err = tx.WithContext(ctx).Exec(
		`UPDATE capacity_state SET rented_units = ?, updated_at = ? WHERE id = ?`,
		int64(next),
		time.Now().UTC(),
		stateRowID,
	).Error
	if err != nil {
		return capacitydomain.State{}, err
	}

	state.RentedUnits = next
	s.metrics.SetCapacity(state.RentedUnits, state.MaxUnits)
	return state, nil
}

// SetMaxUnits may drop below rentedUnits; existing allocations stand and
// future reservations fail until the ceiling is raised again.
func (s *Service) SetMaxUnits(ctx context.Context, max uint64) (uint64, error) {
	state, err := s.load(ctx, s.db)
	if err != nil {
		return 0, err
	}

	err = s.db.WithContext(ctx).Exec(
		`UPDATE capacity_state SET max_units = ?, updated_at = ? WHERE id = ?`,
		int64(max),
		time.Now().UTC(),
		stateRowID,
	).Error
	if err != nil {
		return 0, err
	}

	s.metrics.SetCapacity(state.RentedUnits, max)
	return state.MaxUnits, nil
}

func (s *Service) SetDeprecationAt(ctx context.Context, at time.Time) (time.Time, error) {
	state, err := s.load(ctx, s.db)
	if err != nil {
		return time.Time{}, err
	}

	err = s.db.WithContext(ctx).Exec(
		`UPDATE capacity_state SET deprecation_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(),
		time.Now().UTC(),
		stateRowID,
	).Error
	if err != nil {
		return time.Time{}, err
	}
	return state.DeprecationAt, nil
}

func (s *Service) SetPaused(ctx context.Context, paused bool) error {
	return s.db.WithContext(ctx).Exec(
		`UPDATE capacity_state SET paused = ?, updated_at = ? WHERE id = ?`,
		paused,
		time.Now().UTC(),
		stateRowID,
	).Error
}
