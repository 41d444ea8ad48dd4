package capacity

import (
	"go.uber.org/fx"

	"github.com/capgrid/rentd/internal/capacity/service"
)

var Module = fx.Module("capacity.ledger",
	fx.Provide(service.NewService),
)
