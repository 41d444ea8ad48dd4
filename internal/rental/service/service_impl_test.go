package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/capgrid/rentd/internal/authorization"
	capacitydomain "github.com/capgrid/rentd/internal/capacity/domain"
	capacityservice "github.com/capgrid/rentd/internal/capacity/service"
	"github.com/capgrid/rentd/internal/clock"
	"github.com/capgrid/rentd/internal/events"
	"github.com/capgrid/rentd/internal/migration"
	pricingdomain "github.com/capgrid/rentd/internal/pricing/domain"
	rentaldomain "github.com/capgrid/rentd/internal/rental/domain"
	treasurydomain "github.com/capgrid/rentd/internal/treasury/domain"
	treasuryservice "github.com/capgrid/rentd/internal/treasury/service"
)

// fakePricing charges a flat wei rate per unit.
type fakePricing struct {
	perUnit *big.Int
	err     error
}

func (f *fakePricing) UnitPrice(ctx context.Context) (*big.Int, error) {
	return f.Price(ctx, 1)
}

func (f *fakePricing) Price(ctx context.Context, units uint64) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return new(big.Int).Mul(f.perUnit, new(big.Int).SetUint64(units)), nil
}

func (f *fakePricing) EffectiveRate(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.perUnit), f.err
}

func (f *fakePricing) RefreshNow(ctx context.Context) error { return f.err }

func (f *fakePricing) Snapshot() pricingdomain.Config { return pricingdomain.Config{} }

func (f *fakePricing) SetUnitPrice(p *big.Int) (*big.Int, error) { return p, nil }

func (f *fakePricing) SetFixedPrice(p *big.Int) (*big.Int, error) { return p, nil }

func (f *fakePricing) SetCacheDuration(d time.Duration) (time.Duration, error) { return d, nil }

type fakeAuthz struct {
	grants map[string]authorization.Role
}

func (f *fakeAuthz) Check(ctx context.Context, principal string, role authorization.Role) error {
	if f.grants[principal] == role {
		return nil
	}
	switch role {
	case authorization.RoleOwner:
		return authorization.ErrNotOwner
	case authorization.RoleOperator:
		return authorization.ErrNotOperator
	case authorization.RoleTreasurer:
		return authorization.ErrNotTreasurer
	}
	return authorization.ErrUnauthorized
}

func (f *fakeAuthz) HasRole(ctx context.Context, principal string, role authorization.Role) (bool, error) {
	return f.grants[principal] == role, nil
}

func (f *fakeAuthz) GrantRole(ctx context.Context, actor string, role authorization.Role, principal string) error {
	return nil
}

func (f *fakeAuthz) RevokeRole(ctx context.Context, actor string, role authorization.Role, principal string) error {
	return nil
}

func (f *fakeAuthz) RenounceRole(ctx context.Context, actor string, role authorization.Role) error {
	return nil
}

type rejectingBank struct {
	allowVault bool
}

func (b *rejectingBank) Transfer(ctx context.Context, to string, amount *big.Int) error {
	if b.allowVault && to == "vault-1" {
		return nil
	}
	return errors.New("rejected")
}

type okBank struct {
	transfers []string
}

func (b *okBank) Transfer(ctx context.Context, to string, amount *big.Int) error {
	b.transfers = append(b.transfers, to+":"+amount.String())
	return nil
}

type harness struct {
	gateway *Service
	db      *gorm.DB
	clock   *clock.ManualClock
	bank    *okBank
	pricing *fakePricing
}

func setupGateway(t *testing.T, maxUnits uint64) *harness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	if err := migration.RunMigrations(sqlDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := db.Exec(
		`INSERT INTO capacity_state (id, rented_units, max_units, deprecation_at, paused, updated_at)
		 VALUES (1, 0, ?, ?, false, ?)`,
		int64(maxUnits), now.Add(365*24*time.Hour), now,
	).Error; err != nil {
		t.Fatalf("seed capacity: %v", err)
	}
	if err := db.Exec(
		`INSERT INTO treasury_state (id, balance_wei, vault, updated_at) VALUES (1, '0', 'vault-1', ?)`,
		now,
	).Error; err != nil {
		t.Fatalf("seed treasury: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	manual := clock.NewManualClock(now)
	bank := &okBank{}
	pricing := &fakePricing{perUnit: big.NewInt(2_500_000)}
	ledger := capacityservice.NewService(capacityservice.ServiceParam{DB: db, Log: zap.NewNop()})
	custody := treasuryservice.NewService(treasuryservice.ServiceParam{
		DB: db, Log: zap.NewNop(), Node: node, Bank: bank,
	})
	authz := &fakeAuthz{grants: map[string]authorization.Role{
		"op-1":   authorization.RoleOperator,
		"tres-1": authorization.RoleTreasurer,
	}}

	gw := &Service{
		db:      db,
		log:     zap.NewNop(),
		node:    node,
		clock:   manual,
		stepper: manual,
		pricing: pricing,
		ledger:  ledger,
		custody: custody,
		authz:   authz,
		outbox:  events.NewOutbox(db, node),
	}
	return &harness{gateway: gw, db: db, clock: manual, bank: bank, pricing: pricing}
}

func (h *harness) rentedUnits(t *testing.T) uint64 {
	t.Helper()
	var rented int64
	if err := h.db.Raw(`SELECT rented_units FROM capacity_state WHERE id = 1`).Scan(&rented).Error; err != nil {
		t.Fatalf("rented units: %v", err)
	}
	return uint64(rented)
}

func (h *harness) eventCount(t *testing.T, eventType string) int64 {
	t.Helper()
	var n int64
	if err := h.db.Raw(`SELECT COUNT(*) FROM rental_events WHERE event_type = ?`, eventType).Scan(&n).Error; err != nil {
		t.Fatalf("event count: %v", err)
	}
	return n
}

func TestRentRefundsOverpaymentExactly(t *testing.T) {
	h := setupGateway(t, 2_000_000)
	ctx := context.Background()

	cost, _ := h.pricing.Price(ctx, 1)
	payment := new(big.Int).Add(cost, big.NewInt(1000))

	res, err := h.gateway.Rent(ctx, rentaldomain.RentRequest{
		Buyer: "buyer-1", ID: 7, Units: 1, Payment: payment,
	})
	if err != nil {
		t.Fatalf("rent: %v", err)
	}
	if res.Refund.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected refund 1000, got %s", res.Refund)
	}
	if res.Cost.Cmp(cost) != 0 {
		t.Fatalf("expected cost %s, got %s", cost, res.Cost)
	}
	if h.rentedUnits(t) != 1 {
		t.Fatalf("expected rentedUnits 1, got %d", h.rentedUnits(t))
	}
	if n := h.eventCount(t, events.EventRent); n != 1 {
		t.Fatalf("expected 1 Rent event, got %d", n)
	}
	if len(h.bank.transfers) != 1 || h.bank.transfers[0] != "buyer-1:1000" {
		t.Fatalf("expected exact refund transfer, got %v", h.bank.transfers)
	}
}

func TestRentExactPaymentNoRefund(t *testing.T) {
	h := setupGateway(t, 100)
	ctx := context.Background()

	cost, _ := h.pricing.Price(ctx, 3)
	res, err := h.gateway.Rent(ctx, rentaldomain.RentRequest{
		Buyer: "buyer-1", ID: 1, Units: 3, Payment: cost,
	})
	if err != nil {
		t.Fatalf("rent: %v", err)
	}
	if res.Refund.Sign() != 0 {
		t.Fatalf("expected zero refund, got %s", res.Refund)
	}
	if len(h.bank.transfers) != 0 {
		t.Fatalf("exact payment must not transfer, got %v", h.bank.transfers)
	}
}

func TestRentZeroUnits(t *testing.T) {
	h := setupGateway(t, 100)
	_, err := h.gateway.Rent(context.Background(), rentaldomain.RentRequest{
		Buyer: "buyer-1", ID: 1, Units: 0, Payment: big.NewInt(1),
	})
	if !errors.Is(err, rentaldomain.ErrInvalidAmount) {
		t.Fatalf("expected invalid_amount, got %v", err)
	}
}

func TestRentUnderpayment(t *testing.T) {
	h := setupGateway(t, 100)
	ctx := context.Background()

	cost, _ := h.pricing.Price(ctx, 1)
	short := new(big.Int).Sub(cost, big.NewInt(1))
	_, err := h.gateway.Rent(ctx, rentaldomain.RentRequest{
		Buyer: "buyer-1", ID: 1, Units: 1, Payment: short,
	})
	if !errors.Is(err, rentaldomain.ErrInvalidPayment) {
		t.Fatalf("expected invalid_payment, got %v", err)
	}
	if h.rentedUnits(t) != 0 {
		t.Fatalf("failed rent must not change rentedUnits")
	}
}

func TestRentAfterDeprecation(t *testing.T) {
	h := setupGateway(t, 100)
	h.clock.Advance(366 * 24 * time.Hour)

	_, err := h.gateway.Rent(context.Background(), rentaldomain.RentRequest{
		Buyer: "buyer-1", ID: 1, Units: 1, Payment: big.NewInt(1_000_000_000),
	})
	if !errors.Is(err, rentaldomain.ErrContractDeprecated) {
		t.Fatalf("expected contract_deprecated, got %v", err)
	}
}

func TestRentWhilePaused(t *testing.T) {
	h := setupGateway(t, 100)
	if err := h.db.Exec(`UPDATE capacity_state SET paused = true WHERE id = 1`).Error; err != nil {
		t.Fatalf("pause: %v", err)
	}

	_, err := h.gateway.Rent(context.Background(), rentaldomain.RentRequest{
		Buyer: "buyer-1", ID: 1, Units: 1, Payment: big.NewInt(1_000_000_000),
	})
	if !errors.Is(err, rentaldomain.ErrPaused) {
		t.Fatalf("expected paused, got %v", err)
	}
}

func TestRentExceedingCapacityRollsBackEverything(t *testing.T) {
	h := setupGateway(t, 2)
	ctx := context.Background()

	_, err := h.gateway.Rent(ctx, rentaldomain.RentRequest{
		Buyer: "buyer-1", ID: 1, Units: 3, Payment: big.NewInt(1_000_000_000_000),
	})
	if !errors.Is(err, capacitydomain.ErrExceedsCapacity) {
		t.Fatalf("expected exceeds_capacity, got %v", err)
	}
	if h.rentedUnits(t) != 0 {
		t.Fatalf("rentedUnits must stay 0, got %d", h.rentedUnits(t))
	}
	if n := h.eventCount(t, events.EventRent); n != 0 {
		t.Fatalf("no events expected, got %d", n)
	}

	var balance string
	if err := h.db.Raw(`SELECT balance_wei FROM treasury_state WHERE id = 1`).Scan(&balance).Error; err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != "0" {
		t.Fatalf("treasury must be untouched, got %s", balance)
	}
}

func TestRentRefundRejectionFailsWholeOperation(t *testing.T) {
	h := setupGateway(t, 100)
	ctx := context.Background()

	// Swap in a custody whose bank rejects refunds.
	node, _ := snowflake.NewNode(2)
	h.gateway.custody = treasuryservice.NewService(treasuryservice.ServiceParam{
		DB: h.db, Log: zap.NewNop(), Node: node, Bank: &rejectingBank{},
	})

	cost, _ := h.pricing.Price(ctx, 1)
	payment := new(big.Int).Add(cost, big.NewInt(500))
	_, err := h.gateway.Rent(ctx, rentaldomain.RentRequest{
		Buyer: "buyer-1", ID: 1, Units: 1, Payment: payment,
	})
	if !errors.Is(err, treasurydomain.ErrCallFailed) {
		t.Fatalf("expected call_failed, got %v", err)
	}
	if h.rentedUnits(t) != 0 {
		t.Fatalf("rejected refund must roll back the reservation, got %d units", h.rentedUnits(t))
	}
}

func TestRentPropagatesOracleFailure(t *testing.T) {
	h := setupGateway(t, 100)
	h.pricing.err = errors.New("stale_answer")

	_, err := h.gateway.Rent(context.Background(), rentaldomain.RentRequest{
		Buyer: "buyer-1", ID: 1, Units: 1, Payment: big.NewInt(1_000_000_000),
	})
	if err == nil || err.Error() != "stale_answer" {
		t.Fatalf("expected pricing failure to propagate, got %v", err)
	}
	if h.rentedUnits(t) != 0 {
		t.Fatalf("failed pricing must not change rentedUnits")
	}
}

func TestBatchRentMismatchedLengths(t *testing.T) {
	h := setupGateway(t, 100)
	_, err := h.gateway.BatchRent(context.Background(), rentaldomain.BatchRentRequest{
		Buyer:   "buyer-1",
		IDs:     []uint64{1, 2, 3},
		Units:   []uint64{1, 1, 1, 1},
		Payment: big.NewInt(1_000_000_000),
	})
	if !errors.Is(err, rentaldomain.ErrInvalidBatchInput) {
		t.Fatalf("expected invalid_batch_input, got %v", err)
	}
	if h.rentedUnits(t) != 0 {
		t.Fatalf("rentedUnits must stay 0")
	}
}

func TestBatchRentSkipsZeroUnitEntries(t *testing.T) {
	h := setupGateway(t, 100)
	ctx := context.Background()

	cost, _ := h.pricing.Price(ctx, 3)
	res, err := h.gateway.BatchRent(ctx, rentaldomain.BatchRentRequest{
		Buyer:   "buyer-1",
		IDs:     []uint64{1, 2, 3},
		Units:   []uint64{1, 0, 2},
		Payment: cost,
	})
	if err != nil {
		t.Fatalf("batch rent: %v", err)
	}
	if res.Units != 3 {
		t.Fatalf("expected 3 units, got %d", res.Units)
	}
	if n := h.eventCount(t, events.EventRent); n != 2 {
		t.Fatalf("zero-unit entry must not emit, got %d events", n)
	}
}

func TestCreditRequiresOperator(t *testing.T) {
	h := setupGateway(t, 100)
	ctx := context.Background()

	if _, err := h.gateway.Credit(ctx, "buyer-1", 1, 5); !errors.Is(err, authorization.ErrNotOperator) {
		t.Fatalf("expected not_operator, got %v", err)
	}

	res, err := h.gateway.Credit(ctx, "op-1", 1, 5)
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if res.Cost.Sign() != 0 {
		t.Fatalf("credit must be free, got cost %s", res.Cost)
	}
	if h.rentedUnits(t) != 5 {
		t.Fatalf("expected 5 rented units, got %d", h.rentedUnits(t))
	}
}

func TestBatchCreditAppliesOneUnitsValuePerID(t *testing.T) {
	h := setupGateway(t, 100)

	res, err := h.gateway.BatchCredit(context.Background(), "op-1", []uint64{10, 11, 12}, 4)
	if err != nil {
		t.Fatalf("batch credit: %v", err)
	}
	if res.Units != 12 {
		t.Fatalf("expected 12 units, got %d", res.Units)
	}
	if n := h.eventCount(t, events.EventRent); n != 3 {
		t.Fatalf("expected 3 Rent events, got %d", n)
	}
}

func TestContinuousCreditRange(t *testing.T) {
	h := setupGateway(t, 2_000_000)

	res, err := h.gateway.ContinuousCredit(context.Background(), "op-1", 0, 3, 5)
	if err != nil {
		t.Fatalf("continuous credit: %v", err)
	}
	if res.Units != 20 {
		t.Fatalf("expected 20 units, got %d", res.Units)
	}
	if h.rentedUnits(t) != 20 {
		t.Fatalf("expected rentedUnits 20, got %d", h.rentedUnits(t))
	}
	if n := h.eventCount(t, events.EventRent); n != 4 {
		t.Fatalf("expected one event per covered id, got %d", n)
	}
}

func TestContinuousCreditInvertedRange(t *testing.T) {
	h := setupGateway(t, 100)
	_, err := h.gateway.ContinuousCredit(context.Background(), "op-1", 5, 4, 1)
	if !errors.Is(err, capacitydomain.ErrInvalidRangeInput) {
		t.Fatalf("expected invalid_range_input, got %v", err)
	}
}

func TestContinuousCreditSingleID(t *testing.T) {
	h := setupGateway(t, 100)
	res, err := h.gateway.ContinuousCredit(context.Background(), "op-1", 9, 9, 2)
	if err != nil {
		t.Fatalf("continuous credit: %v", err)
	}
	if res.Units != 2 {
		t.Fatalf("start == end is a single-id range, got %d units", res.Units)
	}
}

func TestWithdrawRequiresTreasurer(t *testing.T) {
	h := setupGateway(t, 100)
	ctx := context.Background()

	if _, err := h.gateway.Withdraw(ctx, "buyer-1", big.NewInt(1)); !errors.Is(err, authorization.ErrNotTreasurer) {
		t.Fatalf("expected not_treasurer, got %v", err)
	}

	// Fund the treasury through a rental, then sweep.
	cost, _ := h.pricing.Price(ctx, 2)
	if _, err := h.gateway.Rent(ctx, rentaldomain.RentRequest{
		Buyer: "buyer-1", ID: 1, Units: 2, Payment: cost,
	}); err != nil {
		t.Fatalf("rent: %v", err)
	}

	w, err := h.gateway.Withdraw(ctx, "tres-1", cost)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if w.To != "vault-1" || w.Amount != cost.String() {
		t.Fatalf("unexpected withdrawal %+v", w)
	}
	if n := h.eventCount(t, events.EventWithdraw); n != 1 {
		t.Fatalf("expected 1 Withdraw event, got %d", n)
	}
}

func TestWithdrawRejectionLeavesNoTrace(t *testing.T) {
	h := setupGateway(t, 100)
	ctx := context.Background()

	cost, _ := h.pricing.Price(ctx, 2)
	if _, err := h.gateway.Rent(ctx, rentaldomain.RentRequest{
		Buyer: "buyer-1", ID: 1, Units: 2, Payment: cost,
	}); err != nil {
		t.Fatalf("rent: %v", err)
	}

	// Swap in a custody whose bank rejects the vault transfer.
	node, _ := snowflake.NewNode(3)
	h.gateway.custody = treasuryservice.NewService(treasuryservice.ServiceParam{
		DB: h.db, Log: zap.NewNop(), Node: node, Bank: &rejectingBank{},
	})

	_, err := h.gateway.Withdraw(ctx, "tres-1", cost)
	if !errors.Is(err, treasurydomain.ErrCallFailed) {
		t.Fatalf("expected call_failed, got %v", err)
	}
	if n := h.eventCount(t, events.EventWithdraw); n != 0 {
		t.Fatalf("failed withdrawal must not record an event, got %d", n)
	}
	var balance string
	if err := h.db.Raw(`SELECT balance_wei FROM treasury_state WHERE id = 1`).Scan(&balance).Error; err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != cost.String() {
		t.Fatalf("failed withdrawal must leave the balance, got %s want %s", balance, cost)
	}
}

func TestWithdrawOverBalanceIsCallFailed(t *testing.T) {
	h := setupGateway(t, 100)
	ctx := context.Background()

	cost, _ := h.pricing.Price(ctx, 1)
	if _, err := h.gateway.Rent(ctx, rentaldomain.RentRequest{
		Buyer: "buyer-1", ID: 1, Units: 1, Payment: cost,
	}); err != nil {
		t.Fatalf("rent: %v", err)
	}

	over := new(big.Int).Add(cost, big.NewInt(1))
	_, err := h.gateway.Withdraw(ctx, "tres-1", over)
	if !errors.Is(err, treasurydomain.ErrCallFailed) {
		t.Fatalf("expected call_failed for underfunded sweep, got %v", err)
	}
}

func TestGatewayStepsSequencePerOperation(t *testing.T) {
	h := setupGateway(t, 100)
	before := h.clock.Sequence()

	h.gateway.Rent(context.Background(), rentaldomain.RentRequest{
		Buyer: "buyer-1", ID: 1, Units: 0, Payment: big.NewInt(1),
	})
	if h.clock.Sequence() != before+1 {
		t.Fatalf("every public operation must advance the sequence")
	}
}
