package service

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/capgrid/rentd/internal/authorization"
	capacitydomain "github.com/capgrid/rentd/internal/capacity/domain"
	"github.com/capgrid/rentd/internal/clock"
	"github.com/capgrid/rentd/internal/events"
	"github.com/capgrid/rentd/internal/observability/metrics"
	pricingdomain "github.com/capgrid/rentd/internal/pricing/domain"
	rentaldomain "github.com/capgrid/rentd/internal/rental/domain"
	treasurydomain "github.com/capgrid/rentd/internal/treasury/domain"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Node    *snowflake.Node
	Clock   clock.Clock
	Stepper clock.Stepper
	Pricing pricingdomain.Engine
	Ledger  capacitydomain.Ledger
	Custody treasurydomain.Custody
	Authz   authorization.Service
	Outbox  *events.Outbox
	Metrics *metrics.EngineMetrics `optional:"true"`
}

type Service struct {
	// One lock serializes every public operation. The capacity
	// check-and-increment must never interleave with another caller's.
	mu sync.Mutex

	db      *gorm.DB
	log     *zap.Logger
	node    *snowflake.Node
	clock   clock.Clock
	stepper clock.Stepper
	pricing pricingdomain.Engine
	ledger  capacitydomain.Ledger
	custody treasurydomain.Custody
	authz   authorization.Service
	outbox  *events.Outbox
	metrics *metrics.EngineMetrics
}

func NewService(p ServiceParam) rentaldomain.Gateway {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("rental.gateway"),
		node:    p.Node,
		clock:   p.Clock,
		stepper: p.Stepper,
		pricing: p.Pricing,
		ledger:  p.Ledger,
		custody: p.Custody,
		authz:   p.Authz,
		outbox:  p.Outbox,
		metrics: p.Metrics,
	}
}

// assignment is one (id, units) pair of an allocation.
type assignment struct {
	id    uint64
	units uint64
}

// admit enforces the deprecation cutoff and the pause switch.
func (s *Service) admit(ctx context.Context) (capacitydomain.State, error) {
	state, err := s.ledger.State(ctx)
	if err != nil {
		return capacitydomain.State{}, err
	}
	if state.Paused {
		return capacitydomain.State{}, rentaldomain.ErrPaused
	}
	if !s.clock.Now().Before(state.DeprecationAt) {
		return capacitydomain.State{}, rentaldomain.ErrContractDeprecated
	}
	return state, nil
}

func (s *Service) Rent(ctx context.Context, req rentaldomain.RentRequest) (rentaldomain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepper.Step()

	if req.Units == 0 {
		return rentaldomain.Result{}, rentaldomain.ErrInvalidAmount
	}
	if _, err := s.admit(ctx); err != nil {
		return rentaldomain.Result{}, err
	}

	cost, err := s.pricing.Price(ctx, req.Units)
	if err != nil {
		return rentaldomain.Result{}, err
	}
	payment := req.Payment
	if payment == nil || payment.Cmp(cost) < 0 {
		return rentaldomain.Result{}, rentaldomain.ErrInvalidPayment
	}
	refund := new(big.Int).Sub(payment, cost)

	result, err := s.settle(ctx, req.Buyer, rentaldomain.KindRent, cost, refund,
		[]assignment{{id: req.ID, units: req.Units}})
	if err != nil {
		return rentaldomain.Result{}, err
	}
	return result, nil
}

func (s *Service) BatchRent(ctx context.Context, req rentaldomain.BatchRentRequest) (rentaldomain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepper.Step()

	if len(req.IDs) == 0 || len(req.IDs) != len(req.Units) {
		return rentaldomain.Result{}, rentaldomain.ErrInvalidBatchInput
	}
	if _, err := s.admit(ctx); err != nil {
		return rentaldomain.Result{}, err
	}

	total, err := capacitydomain.SumUnits(req.Units)
	if err != nil {
		return rentaldomain.Result{}, err
	}

	// Aggregate cost in one full-precision division, never summed per id.
	cost, err := s.pricing.Price(ctx, total)
	if err != nil {
		return rentaldomain.Result{}, err
	}
	payment := req.Payment
	if payment == nil || payment.Cmp(cost) < 0 {
		return rentaldomain.Result{}, rentaldomain.ErrInvalidPayment
	}
	refund := new(big.Int).Sub(payment, cost)

	pairs := make([]assignment, 0, len(req.IDs))
	for i, id := range req.IDs {
		if req.Units[i] == 0 {
			continue
		}
		pairs = append(pairs, assignment{id: id, units: req.Units[i]})
	}

	result, err := s.settle(ctx, req.Buyer, rentaldomain.KindRent, cost, refund, pairs)
	if err != nil {
		return rentaldomain.Result{}, err
	}
	return result, nil
}

func (s *Service) Credit(ctx context.Context, caller string, id, units uint64) (rentaldomain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepper.Step()

	if err := s.authz.Check(ctx, caller, authorization.RoleOperator); err != nil {
		return rentaldomain.Result{}, err
	}
	if units == 0 {
		return rentaldomain.Result{}, rentaldomain.ErrInvalidAmount
	}
	if _, err := s.admit(ctx); err != nil {
		return rentaldomain.Result{}, err
	}
	return s.settle(ctx, caller, rentaldomain.KindCredit, nil, nil,
		[]assignment{{id: id, units: units}})
}

func (s *Service) BatchCredit(ctx context.Context, caller string, ids []uint64, units uint64) (rentaldomain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepper.Step()

	if err := s.authz.Check(ctx, caller, authorization.RoleOperator); err != nil {
		return rentaldomain.Result{}, err
	}
	if len(ids) == 0 {
		return rentaldomain.Result{}, rentaldomain.ErrInvalidBatchInput
	}
	if units == 0 {
		return rentaldomain.Result{}, rentaldomain.ErrInvalidAmount
	}
	if units > ^uint64(0)/uint64(len(ids)) {
		return rentaldomain.Result{}, capacitydomain.ErrUnitsOverflow
	}
	if _, err := s.admit(ctx); err != nil {
		return rentaldomain.Result{}, err
	}

	pairs := make([]assignment, 0, len(ids))
	for _, id := range ids {
		pairs = append(pairs, assignment{id: id, units: units})
	}
	return s.settle(ctx, caller, rentaldomain.KindCredit, nil, nil, pairs)
}

func (s *Service) ContinuousCredit(ctx context.Context, caller string, start, end, units uint64) (rentaldomain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepper.Step()

	if err := s.authz.Check(ctx, caller, authorization.RoleOperator); err != nil {
		return rentaldomain.Result{}, err
	}
	if units == 0 {
		return rentaldomain.Result{}, rentaldomain.ErrInvalidAmount
	}
	count, _, err := capacitydomain.RangeTotal(start, end, units)
	if err != nil {
		return rentaldomain.Result{}, err
	}
	if _, err := s.admit(ctx); err != nil {
		return rentaldomain.Result{}, err
	}

	pairs := make([]assignment, 0, count)
	for id := start; ; id++ {
		pairs = append(pairs, assignment{id: id, units: units})
		if id == end {
			break
		}
	}
	return s.settle(ctx, caller, rentaldomain.KindCredit, nil, nil, pairs)
}

func (s *Service) Withdraw(ctx context.Context, caller string, amount *big.Int) (treasurydomain.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepper.Step()

	if err := s.authz.Check(ctx, caller, authorization.RoleTreasurer); err != nil {
		return treasurydomain.Withdrawal{}, err
	}

	// The sweep and its event commit together: a withdrawal must never
	// land without the record announcing it.
	var w treasurydomain.Withdrawal
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		w, err = s.custody.Withdraw(ctx, tx, caller, amount)
		if err != nil {
			return err
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			Type:      events.EventWithdraw,
			Payload:   events.WithdrawPayload{To: w.To, Amount: w.Amount}.ToMap(),
			DedupeKey: "withdraw:" + w.ID,
		})
	})
	if err != nil {
		return treasurydomain.Withdrawal{}, err
	}

	s.metrics.IncWithdrawal()
	return w, nil
}

// settle applies an allocation atomically: capacity increment, reservation
// rows, payment custody, events, and the overpayment refund commit or roll
// back together.
func (s *Service) settle(ctx context.Context, buyer string, kind rentaldomain.Kind, cost, refund *big.Int, pairs []assignment) (rentaldomain.Result, error) {
	var total uint64
	for _, p := range pairs {
		total += p.units
	}

	opID := s.node.Generate()
	costStr := "0"
	if cost != nil {
		costStr = cost.String()
	}

	var state capacitydomain.State
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		state, err = s.ledger.Reserve(ctx, tx, total)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, p := range pairs {
			if err := tx.WithContext(ctx).Exec(
				`INSERT INTO reservations (id, op_id, rented_id, units, buyer, kind, cost_wei, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				s.node.Generate().Int64(),
				opID.Int64(),
				int64(p.id),
				int64(p.units),
				buyer,
				string(kind),
				costStr,
				now,
			).Error; err != nil {
				return err
			}

			err := s.outbox.PublishTx(ctx, tx, events.Event{
				Type:      events.EventRent,
				Payload:   events.RentPayload{Buyer: buyer, ID: p.id, Units: p.units}.ToMap(),
				DedupeKey: fmt.Sprintf("rent:%s:%d", opID, p.id),
			})
			if err != nil {
				return err
			}
		}

		if cost != nil && cost.Sign() > 0 {
			if err := s.custody.Deposit(ctx, tx, cost); err != nil {
				return err
			}
		}

		// The refund goes out before commit so a rejected transfer rolls
		// everything back, surfacing as call_failed with no units rented.
		if refund != nil && refund.Sign() > 0 {
			if err := s.custody.Refund(ctx, buyer, refund); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return rentaldomain.Result{}, err
	}

	s.metrics.IncRental(string(kind), total)
	s.log.Info("allocation settled",
		zap.String("op_id", opID.String()),
		zap.String("kind", string(kind)),
		zap.String("buyer", buyer),
		zap.Uint64("units", total),
		zap.String("cost_wei", costStr),
	)

	result := rentaldomain.Result{
		OpID:        opID.String(),
		Units:       total,
		Cost:        cost,
		Refund:      refund,
		RentedUnits: state.RentedUnits,
		MaxUnits:    state.MaxUnits,
	}
	if result.Cost == nil {
		result.Cost = big.NewInt(0)
	}
	if result.Refund == nil {
		result.Refund = big.NewInt(0)
	}
	return result, nil
}
