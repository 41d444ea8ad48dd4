package authorization

import (
	"go.uber.org/fx"

	"github.com/capgrid/rentd/internal/config"
)

var Module = fx.Module("authorization.service",
	fx.Provide(
		fx.Annotate(
			func(cfg config.Config) string { return cfg.Engine.RoleAdmin },
			fx.ResultTags(`name:"role_admin"`),
		),
	),
	fx.Provide(NewService),
)
