package authorization

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/capgrid/rentd/internal/cache"
)

func TestCheckAllowsMember(t *testing.T) {
	svc := setupAuthzService(t)
	insertMember(t, svc.db, "owner", "alice")

	if err := svc.Check(context.Background(), "alice", RoleOwner); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
}

func TestCheckDeniesWithTypedError(t *testing.T) {
	svc := setupAuthzService(t)
	insertMember(t, svc.db, "operator", "bob")

	err := svc.Check(context.Background(), "bob", RoleTreasurer)
	if !errors.Is(err, ErrNotTreasurer) {
		t.Fatalf("expected not_treasurer, got %v", err)
	}
	err = svc.Check(context.Background(), "bob", RoleOwner)
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected not_owner, got %v", err)
	}
	if err := svc.Check(context.Background(), "bob", RoleOperator); err != nil {
		t.Fatalf("expected operator allow, got %v", err)
	}
}

func TestRolesAreIndependent(t *testing.T) {
	svc := setupAuthzService(t)
	insertMember(t, svc.db, "owner", "carol")

	err := svc.Check(context.Background(), "carol", RoleOperator)
	if !errors.Is(err, ErrNotOperator) {
		t.Fatalf("owner must not imply operator, got %v", err)
	}
}

func TestGrantRequiresRoleAdmin(t *testing.T) {
	svc := setupAuthzService(t)

	err := svc.GrantRole(context.Background(), "mallory", RoleOwner, "mallory")
	if !errors.Is(err, ErrNotRoleAdmin) {
		t.Fatalf("expected not_role_admin, got %v", err)
	}

	if err := svc.GrantRole(context.Background(), "system", RoleOwner, "dave"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := svc.Check(context.Background(), "dave", RoleOwner); err != nil {
		t.Fatalf("expected allow after grant, got %v", err)
	}
}

func TestRevokeInvalidatesCachedMembership(t *testing.T) {
	svc := setupAuthzService(t)
	if err := svc.GrantRole(context.Background(), "system", RoleTreasurer, "erin"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	// Warm the membership cache.
	if err := svc.Check(context.Background(), "erin", RoleTreasurer); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}

	if err := svc.RevokeRole(context.Background(), "system", RoleTreasurer, "erin"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	err := svc.Check(context.Background(), "erin", RoleTreasurer)
	if !errors.Is(err, ErrNotTreasurer) {
		t.Fatalf("expected not_treasurer after revoke, got %v", err)
	}
}

func TestRenounceRole(t *testing.T) {
	svc := setupAuthzService(t)
	if err := svc.GrantRole(context.Background(), "system", RoleOperator, "frank"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := svc.RenounceRole(context.Background(), "frank", RoleOperator); err != nil {
		t.Fatalf("renounce: %v", err)
	}
	err := svc.Check(context.Background(), "frank", RoleOperator)
	if !errors.Is(err, ErrNotOperator) {
		t.Fatalf("expected not_operator after renounce, got %v", err)
	}
}

func setupAuthzService(t *testing.T) *ServiceImpl {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Exec(
		`CREATE TABLE IF NOT EXISTS role_members (
			id BIGINT PRIMARY KEY,
			role TEXT NOT NULL,
			principal TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (role, principal)
		)`,
	).Error; err != nil {
		t.Fatalf("create role_members: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	return &ServiceImpl{
		db:        db,
		log:       zap.NewNop(),
		genID:     node,
		roleAdmin: "system",
		members:   cache.NewTTLCache[string, bool](),
	}
}

func insertMember(t *testing.T, db *gorm.DB, role, principal string) {
	t.Helper()
	if err := db.Exec(
		`INSERT INTO role_members (id, role, principal, created_at)
		 VALUES (?, ?, ?, ?)`,
		time.Now().UnixNano(),
		role,
		principal,
		time.Now().UTC(),
	).Error; err != nil {
		t.Fatalf("insert member: %v", err)
	}
}
