package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/capgrid/rentd/internal/admin"
	"github.com/capgrid/rentd/internal/authorization"
	"github.com/capgrid/rentd/internal/capacity"
	"github.com/capgrid/rentd/internal/clock"
	"github.com/capgrid/rentd/internal/config"
	"github.com/capgrid/rentd/internal/events"
	"github.com/capgrid/rentd/internal/migration"
	"github.com/capgrid/rentd/internal/observability"
	"github.com/capgrid/rentd/internal/oracle"
	"github.com/capgrid/rentd/internal/pricing"
	"github.com/capgrid/rentd/internal/rental"
	"github.com/capgrid/rentd/internal/seed"
	"github.com/capgrid/rentd/internal/server"
	"github.com/capgrid/rentd/internal/treasury"
	"github.com/capgrid/rentd/pkg/db"
)

var version = "dev"

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(func() *snowflake.Node {
			node, err := snowflake.NewNode(1)
			if err != nil {
				panic(err)
			}
			return node
		}),
		db.Module,
		clock.Module,

		fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := migration.RunMigrations(sqlDB); err != nil {
				return err
			}
			return seed.EnsureEngineState(conn, cfg)
		}),

		authorization.Module,
		oracle.Module,
		pricing.Module,
		capacity.Module,
		treasury.Module,
		events.Module,
		rental.Module,
		admin.Module,
		server.Module,
	)
	app.Run()
}
