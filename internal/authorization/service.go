package authorization

import "context"

// Role names one of the engine's independent capabilities. There is no
// hierarchy: holding owner does not imply operator or treasurer.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleOperator  Role = "operator"
	RoleTreasurer Role = "treasurer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleOperator, RoleTreasurer:
		return true
	default:
		return false
	}
}

// deniedError maps a role to its typed rejection.
func (r Role) deniedError() error {
	switch r {
	case RoleOwner:
		return ErrNotOwner
	case RoleOperator:
		return ErrNotOperator
	case RoleTreasurer:
		return ErrNotTreasurer
	default:
		return ErrUnauthorized
	}
}

// Service is the authorization policy injected into every privileged
// operation. Membership is managed externally through the role admin.
type Service interface {
	// Check returns nil when principal holds role, or the role's typed
	// rejection otherwise.
	Check(ctx context.Context, principal string, role Role) error
	HasRole(ctx context.Context, principal string, role Role) (bool, error)

	GrantRole(ctx context.Context, actor string, role Role, principal string) error
	RevokeRole(ctx context.Context, actor string, role Role, principal string) error
	RenounceRole(ctx context.Context, actor string, role Role) error
}
