package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/capgrid/rentd/internal/authorization"
	"github.com/capgrid/rentd/internal/config"
)

// EnsureEngineState seeds the singleton capacity and treasury rows and the
// initial role grants on first boot. Reruns are no-ops: existing rows and
// memberships are left untouched.
func EnsureEngineState(db *gorm.DB, cfg config.Config) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureCapacityState(ctx, tx, cfg); err != nil {
			return err
		}
		if err := ensureTreasuryState(ctx, tx, cfg); err != nil {
			return err
		}
		return ensureInitialRoles(ctx, tx, node, cfg)
	})
}

func ensureCapacityState(ctx context.Context, tx *gorm.DB, cfg config.Config) error {
	var count int64
	err := tx.WithContext(ctx).Raw(`SELECT COUNT(*) FROM capacity_state WHERE id = 1`).Scan(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	return tx.WithContext(ctx).Exec(
		`INSERT INTO capacity_state (id, rented_units, max_units, deprecation_at, paused, updated_at)
		 VALUES (1, 0, ?, ?, false, ?)`,
		int64(cfg.Engine.MaxUnits),
		now.Add(cfg.Engine.DeprecationPeriod),
		now,
	).Error
}

func ensureTreasuryState(ctx context.Context, tx *gorm.DB, cfg config.Config) error {
	var count int64
	err := tx.WithContext(ctx).Raw(`SELECT COUNT(*) FROM treasury_state WHERE id = 1`).Scan(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	return tx.WithContext(ctx).Exec(
		`INSERT INTO treasury_state (id, balance_wei, vault, updated_at) VALUES (1, '0', ?, ?)`,
		cfg.Engine.Vault,
		time.Now().UTC(),
	).Error
}

func ensureInitialRoles(ctx context.Context, tx *gorm.DB, node *snowflake.Node, cfg config.Config) error {
	grants := []struct {
		role      authorization.Role
		principal string
	}{
		{authorization.RoleOwner, cfg.Engine.Owner},
		{authorization.RoleOperator, cfg.Engine.Operator},
		{authorization.RoleTreasurer, cfg.Engine.Treasurer},
	}

	now := time.Now().UTC()
	for _, grant := range grants {
		principal := strings.TrimSpace(grant.principal)
		if principal == "" {
			continue
		}

		var count int64
		err := tx.WithContext(ctx).Raw(
			`SELECT COUNT(*) FROM role_members WHERE role = ? AND principal = ?`,
			string(grant.role), principal,
		).Scan(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			continue
		}

		err = tx.WithContext(ctx).Exec(
			`INSERT INTO role_members (id, role, principal, created_at) VALUES (?, ?, ?, ?)`,
			node.Generate().Int64(),
			string(grant.role),
			principal,
			now,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}
