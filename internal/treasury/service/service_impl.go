package service

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	treasurydomain "github.com/capgrid/rentd/internal/treasury/domain"
)

const stateRowID = 1

type ServiceParam struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Node *snowflake.Node
	Bank treasurydomain.Bank
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	node *snowflake.Node
	bank treasurydomain.Bank
}

func NewService(p ServiceParam) treasurydomain.Custody {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("treasury.custody"),
		node: p.Node,
		bank: p.Bank,
	}
}

type stateRow struct {
	BalanceWei string
	Vault      string
}

func (s *Service) State(ctx context.Context) (treasurydomain.State, error) {
	return s.load(ctx, s.db)
}

func (s *Service) load(ctx context.Context, db *gorm.DB) (treasurydomain.State, error) {
	var row stateRow
	err := db.WithContext(ctx).Raw(
		`SELECT balance_wei, vault FROM treasury_state WHERE id = ?`,
		stateRowID,
	).Scan(&row).Error
	if err != nil {
		return treasurydomain.State{}, err
	}

	balance := new(big.Int)
	if row.BalanceWei != "" {
		if _, ok := balance.SetString(row.BalanceWei, 10); !ok {
			return treasurydomain.State{}, fmt.Errorf("treasury balance corrupt: %q", row.BalanceWei)
		}
	}
	return treasurydomain.State{Balance: balance, Vault: row.Vault}, nil
}

func (s *Service) Deposit(ctx context.Context, tx *gorm.DB, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return treasurydomain.ErrInvalidPayment
	}
	state, err := s.load(ctx, tx)
	if err != nil {
		return err
	}

	next := new(big.Int).Add(state.Balance, amount)
	return tx.WithContext(ctx).Exec(
		`UPDATE treasury_state SET balance_wei = ?, updated_at = ? WHERE id = ?`,
		next.String(),
		time.Now().UTC(),
		stateRowID,
	).Error
}

func (s *Service) Refund(ctx context.Context, payer string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	if err := s.bank.Transfer(ctx, payer, amount); err != nil {
		s.log.Warn("refund transfer rejected",
			zap.String("payer", payer),
			zap.String("amount_wei", amount.String()),
			zap.Error(err),
		)
		return treasurydomain.ErrCallFailed
	}
	return nil
}

func (s *Service) Withdraw(ctx context.Context, tx *gorm.DB, caller string, amount *big.Int) (treasurydomain.Withdrawal, error) {
	if amount == nil || amount.Sign() <= 0 {
		return treasurydomain.Withdrawal{}, treasurydomain.ErrInvalidPayment
	}

	state, err := s.load(ctx, tx)
	if err != nil {
		return treasurydomain.Withdrawal{}, err
	}
	if state.Vault == "" {
		return treasurydomain.Withdrawal{}, treasurydomain.ErrInvalidVault
	}
	// An underfunded sweep fails the same way a vault rejection does:
	// the transfer cannot be honored.
	if state.Balance.Cmp(amount) < 0 {
		return treasurydomain.Withdrawal{}, treasurydomain.ErrCallFailed
	}

	if err := s.bank.Transfer(ctx, state.Vault, amount); err != nil {
		s.log.Warn("vault transfer rejected",
			zap.String("vault", state.Vault),
			zap.String("amount_wei", amount.String()),
			zap.Error(err),
		)
		return treasurydomain.Withdrawal{}, treasurydomain.ErrCallFailed
	}

	next := new(big.Int).Sub(state.Balance, amount)
	if err := tx.WithContext(ctx).Exec(
		`UPDATE treasury_state SET balance_wei = ?, updated_at = ? WHERE id = ?`,
		next.String(),
		time.Now().UTC(),
		stateRowID,
	).Error; err != nil {
		return treasurydomain.Withdrawal{}, err
	}

	id := s.node.Generate()
	result := treasurydomain.Withdrawal{
		ID:        id.String(),
		To:        state.Vault,
		Amount:    amount.String(),
		Caller:    caller,
		CreatedAt: time.Now().UTC(),
	}
	err = tx.WithContext(ctx).Exec(
		`INSERT INTO withdrawals (id, destination, amount_wei, actor, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id.Int64(),
		result.To,
		result.Amount,
		result.Caller,
		result.CreatedAt,
	).Error
	if err != nil {
		return treasurydomain.Withdrawal{}, err
	}
	return result, nil
}

func (s *Service) SetVault(ctx context.Context, vault string) (string, error) {
	if vault == "" {
		return "", treasurydomain.ErrInvalidVault
	}
	state, err := s.load(ctx, s.db)
	if err != nil {
		return "", err
	}

	err = s.db.WithContext(ctx).Exec(
		`UPDATE treasury_state SET vault = ?, updated_at = ? WHERE id = ?`,
		vault,
		time.Now().UTC(),
		stateRowID,
	).Error
	if err != nil {
		return "", err
	}
	return state.Vault, nil
}
