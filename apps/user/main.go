package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orgsync/internal/clock"
	"github.com/smallbiznis/orgsync/internal/config"
	"github.com/smallbiznis/orgsync/internal/events"
	"github.com/smallbiznis/orgsync/internal/membershipsync"
	"github.com/smallbiznis/orgsync/internal/migration"
	"github.com/smallbiznis/orgsync/internal/observability"
	"github.com/smallbiznis/orgsync/internal/outbox"
	"github.com/smallbiznis/orgsync/internal/server"
	"github.com/smallbiznis/orgsync/internal/user"
	"github.com/smallbiznis/orgsync/pkg/db"
	"github.com/smallbiznis/orgsync/pkg/redisclient"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		redisclient.Module,

		events.Module,
		outbox.Module,
		outbox.RelayModule,
		user.Module,

		// Keeps user_organizations in step with invitation and organization events.
		membershipsync.UserSideModule,

		server.Module,
		fx.Invoke(func(s *server.Server) {
			s.RegisterUserRoutes()
		}),
		fx.Invoke(server.RunHTTP),
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
