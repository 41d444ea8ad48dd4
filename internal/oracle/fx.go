package oracle

import (
	"math/big"
	"strings"

	"go.uber.org/fx"

	"github.com/capgrid/rentd/internal/config"
	oracledomain "github.com/capgrid/rentd/internal/oracle/domain"
	"github.com/capgrid/rentd/internal/oracle/feed"
	"github.com/capgrid/rentd/internal/oracle/service"
)

var Module = fx.Module("oracle.cache",
	fx.Provide(
		fx.Annotate(
			func(cfg config.Config) oracledomain.Feed {
				if url := strings.TrimSpace(cfg.Engine.PriceFeedURL); url != "" {
					return feed.NewHTTPFeed(url)
				}
				// 2000 USD at 1e8 scale; dev fallback only.
				return feed.StaticFeed{Value: big.NewInt(200_000_000_000)}
			},
			fx.ResultTags(`name:"price_feed"`),
		),
	),
	fx.Provide(
		fx.Annotate(
			func(cfg config.Config) oracledomain.Feed {
				if url := strings.TrimSpace(cfg.Engine.UptimeFeedURL); url != "" {
					return feed.NewHTTPFeed(url)
				}
				return feed.StaticFeed{Value: big.NewInt(0)}
			},
			fx.ResultTags(`name:"uptime_feed"`),
		),
	),
	fx.Provide(service.NewService),
)
