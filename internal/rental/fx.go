package rental

import (
	"go.uber.org/fx"

	"github.com/capgrid/rentd/internal/rental/service"
)

var Module = fx.Module("rental",
	fx.Provide(
		service.NewService,
	),
)
