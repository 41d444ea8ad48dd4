package treasury

import (
	"go.uber.org/fx"

	"github.com/capgrid/rentd/internal/treasury/service"
)

var Module = fx.Module("treasury",
	fx.Provide(
		service.NewLedgerBank,
		service.NewService,
	),
)
