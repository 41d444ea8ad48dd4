package authorization

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/capgrid/rentd/internal/cache"
)

const membershipCacheTTL = 30 * time.Second

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	RoleAdmin string `name:"role_admin"`
}

type ServiceImpl struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	roleAdmin string
	members   cache.Cache[string, bool]
}

func NewService(p ServiceParam) Service {
	return &ServiceImpl{
		db:        p.DB,
		log:       p.Log.Named("authorization.service"),
		genID:     p.GenID,
		roleAdmin: strings.TrimSpace(p.RoleAdmin),
		members:   cache.NewTTLCache[string, bool](),
	}
}

func (s *ServiceImpl) Check(ctx context.Context, principal string, role Role) error {
	ok, err := s.HasRole(ctx, principal, role)
	if err != nil {
		return err
	}
	if !ok {
		return role.deniedError()
	}
	return nil
}

func (s *ServiceImpl) HasRole(ctx context.Context, principal string, role Role) (bool, error) {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return false, ErrInvalidPrincipal
	}
	if !role.Valid() {
		return false, ErrInvalidRole
	}

	key := membershipKey(role, principal)
	if held, ok := s.members.Get(key); ok {
		return held, nil
	}

	var count int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM role_members WHERE role = ? AND principal = ?`,
		string(role),
		principal,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}

	held := count > 0
	s.members.Set(key, held, membershipCacheTTL)
	return held, nil
}

func (s *ServiceImpl) GrantRole(ctx context.Context, actor string, role Role, principal string) error {
	if err := s.requireRoleAdmin(actor); err != nil {
		return err
	}
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return ErrInvalidPrincipal
	}
	if !role.Valid() {
		return ErrInvalidRole
	}

	err := s.db.WithContext(ctx).Exec(
		`INSERT INTO role_members (id, role, principal, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (role, principal) DO NOTHING`,
		s.genID.Generate(),
		string(role),
		principal,
		time.Now().UTC(),
	).Error
	if err != nil {
		return err
	}

	s.members.Delete(membershipKey(role, principal))
	s.log.Info("role granted",
		zap.String("role", string(role)),
		zap.String("principal", principal),
		zap.String("actor", actor),
	)
	return nil
}

func (s *ServiceImpl) RevokeRole(ctx context.Context, actor string, role Role, principal string) error {
	if err := s.requireRoleAdmin(actor); err != nil {
		return err
	}
	return s.remove(ctx, role, strings.TrimSpace(principal), actor)
}

// RenounceRole lets a principal drop its own membership without role admin
// involvement.
func (s *ServiceImpl) RenounceRole(ctx context.Context, actor string, role Role) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidPrincipal
	}
	return s.remove(ctx, role, actor, actor)
}

func (s *ServiceImpl) remove(ctx context.Context, role Role, principal, actor string) error {
	if principal == "" {
		return ErrInvalidPrincipal
	}
	if !role.Valid() {
		return ErrInvalidRole
	}

	err := s.db.WithContext(ctx).Exec(
		`DELETE FROM role_members WHERE role = ? AND principal = ?`,
		string(role),
		principal,
	).Error
	if err != nil {
		return err
	}

	s.members.Delete(membershipKey(role, principal))
	s.log.Info("role removed",
		zap.String("role", string(role)),
		zap.String("principal", principal),
		zap.String("actor", actor),
	)
	return nil
}

func (s *ServiceImpl) requireRoleAdmin(actor string) error {
	if s.roleAdmin == "" || strings.TrimSpace(actor) != s.roleAdmin {
		return ErrNotRoleAdmin
	}
	return nil
}

func membershipKey(role Role, principal string) string {
	return string(role) + "|" + principal
}
