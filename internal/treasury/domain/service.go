package domain

import (
	"context"
	"math/big"

	"gorm.io/gorm"
)

// Custody holds funds collected by rentals until the treasurer sweeps them
// to the vault. Deposit and Withdraw participate in the caller's
// transaction so balance moves commit with the records that explain them.
type Custody interface {
	State(ctx context.Context) (State, error)

	// Deposit credits the engine's balance inside the caller's transaction.
	Deposit(ctx context.Context, tx *gorm.DB, amount *big.Int) error

	// Refund returns overpayment to the payer through the bank. A bank
	// rejection fails the whole operation with ErrCallFailed.
	Refund(ctx context.Context, payer string, amount *big.Int) error

	// Withdraw sweeps amount to the configured vault inside the caller's
	// transaction and records it. An underfunded or rejected sweep fails
	// with ErrCallFailed.
	Withdraw(ctx context.Context, tx *gorm.DB, caller string, amount *big.Int) (Withdrawal, error)

	// SetVault rejects empty destinations and returns the previous vault.
	SetVault(ctx context.Context, vault string) (string, error)
}
