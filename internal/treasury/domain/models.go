package domain

import (
	"context"
	"errors"
	"math/big"
	"time"
)

var (
	ErrInvalidPayment = errors.New("invalid_payment")
	ErrInvalidVault   = errors.New("invalid_vault")
	ErrCallFailed     = errors.New("call_failed")
)

// Bank moves funds out of the engine's custody. A rejected or failed
// transfer surfaces as ErrCallFailed to the caller.
type Bank interface {
	Transfer(ctx context.Context, to string, amount *big.Int) error
}

type Withdrawal struct {
	ID        string    `json:"id"`
	To        string    `json:"to"`
	Amount    string    `json:"amount"`
	Caller    string    `json:"caller"`
	CreatedAt time.Time `json:"created_at"`
}

type State struct {
	Balance *big.Int
	Vault   string
}
