package authorization

import "errors"

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotOwner         = errors.New("not_owner")
	ErrNotOperator      = errors.New("not_operator")
	ErrNotTreasurer     = errors.New("not_treasurer")
	ErrNotRoleAdmin     = errors.New("not_role_admin")
	ErrInvalidRole      = errors.New("invalid_role")
	ErrInvalidPrincipal = errors.New("invalid_principal")
)
