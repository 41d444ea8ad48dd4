package service

import (
	"context"
	"math/big"

	"go.uber.org/zap"

	treasurydomain "github.com/capgrid/rentd/internal/treasury/domain"
)

// LedgerBank records transfers without moving external funds. It stands in
// until a settlement integration is configured.
type LedgerBank struct {
	log *zap.Logger
}

func NewLedgerBank(log *zap.Logger) treasurydomain.Bank {
	return &LedgerBank{log: log.Named("treasury.bank")}
}

func (b *LedgerBank) Transfer(ctx context.Context, to string, amount *big.Int) error {
	if to == "" {
		return treasurydomain.ErrInvalidVault
	}
	b.log.Info("transfer recorded",
		zap.String("to", to),
		zap.String("amount_wei", amount.String()),
	)
	return nil
}
