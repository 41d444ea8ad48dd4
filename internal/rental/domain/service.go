package domain

import (
	"context"
	"math/big"

	treasurydomain "github.com/capgrid/rentd/internal/treasury/domain"
)

// Gateway is the engine's public allocation surface. Every operation runs
// serialized and atomically: a failure at any step leaves rented units,
// balances, and the event log unchanged.
type Gateway interface {
	Rent(ctx context.Context, req RentRequest) (Result, error)
	BatchRent(ctx context.Context, req BatchRentRequest) (Result, error)

	// Credit allocations are operator-only and free.
	Credit(ctx context.Context, caller string, id, units uint64) (Result, error)
	BatchCredit(ctx context.Context, caller string, ids []uint64, units uint64) (Result, error)
	ContinuousCredit(ctx context.Context, caller string, start, end, units uint64) (Result, error)

	// Withdraw sweeps accumulated payments to the vault, treasurer-only.
	Withdraw(ctx context.Context, caller string, amount *big.Int) (treasurydomain.Withdrawal, error)
}
