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

	treasurydomain "github.com/capgrid/rentd/internal/treasury/domain"
)

type recordingBank struct {
	transfers []string
	fail      bool
}

func (b *recordingBank) Transfer(ctx context.Context, to string, amount *big.Int) error {
	if b.fail {
		return errors.New("rejected")
	}
	b.transfers = append(b.transfers, to+":"+amount.String())
	return nil
}

func setupCustody(t *testing.T, balance string, vault string, bank treasurydomain.Bank) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS treasury_state (
			id BIGINT PRIMARY KEY,
			balance_wei TEXT NOT NULL,
			vault TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS withdrawals (
			id BIGINT PRIMARY KEY,
			destination TEXT NOT NULL,
			amount_wei TEXT NOT NULL,
			actor TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	if err := db.Exec(
		`INSERT INTO treasury_state (id, balance_wei, vault, updated_at) VALUES (1, ?, ?, ?)`,
		balance, vault, time.Now().UTC(),
	).Error; err != nil {
		t.Fatalf("seed treasury_state: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return &Service{db: db, log: zap.NewNop(), node: node, bank: bank}
}

func TestDepositAccumulatesBalance(t *testing.T) {
	custody := setupCustody(t, "100", "vault-1", &recordingBank{})
	ctx := context.Background()

	err := custody.db.Transaction(func(tx *gorm.DB) error {
		return custody.Deposit(ctx, tx, big.NewInt(50))
	})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	state, err := custody.State(ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Balance.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("expected balance 150, got %s", state.Balance)
	}
}

func TestWithdrawSweepsToVault(t *testing.T) {
	bank := &recordingBank{}
	custody := setupCustody(t, "1000", "vault-1", bank)
	ctx := context.Background()

	var w treasurydomain.Withdrawal
	err := custody.db.Transaction(func(tx *gorm.DB) error {
		var err error
		w, err = custody.Withdraw(ctx, tx, "treasurer-1", big.NewInt(400))
		return err
	})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if w.To != "vault-1" || w.Amount != "400" {
		t.Fatalf("unexpected withdrawal %+v", w)
	}
	if len(bank.transfers) != 1 || bank.transfers[0] != "vault-1:400" {
		t.Fatalf("unexpected transfers %v", bank.transfers)
	}

	state, err := custody.State(ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Balance.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("expected balance 600, got %s", state.Balance)
	}
}

func TestWithdrawRejectedTransferLeavesBalance(t *testing.T) {
	custody := setupCustody(t, "1000", "vault-1", &recordingBank{fail: true})
	ctx := context.Background()

	err := custody.db.Transaction(func(tx *gorm.DB) error {
		_, err := custody.Withdraw(ctx, tx, "treasurer-1", big.NewInt(400))
		return err
	})
	if !errors.Is(err, treasurydomain.ErrCallFailed) {
		t.Fatalf("expected call_failed, got %v", err)
	}

	state, err := custody.State(ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Balance.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("failed withdrawal must not change balance, got %s", state.Balance)
	}
}

func TestWithdrawOverBalanceFailsAsCallFailed(t *testing.T) {
	bank := &recordingBank{}
	custody := setupCustody(t, "100", "vault-1", bank)
	ctx := context.Background()

	err := custody.db.Transaction(func(tx *gorm.DB) error {
		_, err := custody.Withdraw(ctx, tx, "treasurer-1", big.NewInt(101))
		return err
	})
	if !errors.Is(err, treasurydomain.ErrCallFailed) {
		t.Fatalf("expected call_failed, got %v", err)
	}
	if len(bank.transfers) != 0 {
		t.Fatalf("underfunded withdrawal must not transfer, got %v", bank.transfers)
	}

	state, err := custody.State(ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Balance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("underfunded withdrawal must not change balance, got %s", state.Balance)
	}
}

func TestRefundMapsRejectionToCallFailed(t *testing.T) {
	custody := setupCustody(t, "0", "vault-1", &recordingBank{fail: true})
	err := custody.Refund(context.Background(), "payer-1", big.NewInt(10))
	if !errors.Is(err, treasurydomain.ErrCallFailed) {
		t.Fatalf("expected call_failed, got %v", err)
	}
}

func TestRefundZeroIsNoop(t *testing.T) {
	bank := &recordingBank{}
	custody := setupCustody(t, "0", "vault-1", bank)
	if err := custody.Refund(context.Background(), "payer-1", big.NewInt(0)); err != nil {
		t.Fatalf("zero refund: %v", err)
	}
	if len(bank.transfers) != 0 {
		t.Fatalf("zero refund must not transfer, got %v", bank.transfers)
	}
}

func TestSetVaultRejectsEmpty(t *testing.T) {
	custody := setupCustody(t, "0", "vault-1", &recordingBank{})
	if _, err := custody.SetVault(context.Background(), ""); !errors.Is(err, treasurydomain.ErrInvalidVault) {
		t.Fatalf("expected invalid_vault, got %v", err)
	}

	old, err := custody.SetVault(context.Background(), "vault-2")
	if err != nil {
		t.Fatalf("set vault: %v", err)
	}
	if old != "vault-1" {
		t.Fatalf("expected old vault vault-1, got %q", old)
	}
}
