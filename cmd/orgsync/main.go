// Command orgsync runs every service in one process: the three HTTP surfaces
// on one engine, both membership sync sides, the outbox relay and the
// expiry scheduler.
package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orgsync/internal/clock"
	"github.com/smallbiznis/orgsync/internal/config"
	"github.com/smallbiznis/orgsync/internal/events"
	"github.com/smallbiznis/orgsync/internal/invitation"
	"github.com/smallbiznis/orgsync/internal/membershipsync"
	"github.com/smallbiznis/orgsync/internal/migration"
	"github.com/smallbiznis/orgsync/internal/observability"
	"github.com/smallbiznis/orgsync/internal/organization"
	"github.com/smallbiznis/orgsync/internal/outbox"
	"github.com/smallbiznis/orgsync/internal/ratelimit"
	"github.com/smallbiznis/orgsync/internal/scheduler"
	"github.com/smallbiznis/orgsync/internal/server"
	"github.com/smallbiznis/orgsync/internal/user"
	"github.com/smallbiznis/orgsync/pkg/db"
	"github.com/smallbiznis/orgsync/pkg/redisclient"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		redisclient.Module,

		// Event plumbing
		events.Module,
		outbox.Module,
		outbox.RelayModule,
		membershipsync.UserSideModule,
		membershipsync.OrganizationSideModule,

		// Functional Domains
		invitation.Module,
		user.Module,
		organization.Module,
		ratelimit.LockModule,
		scheduler.Module,

		server.Module,
		fx.Invoke(func(s *server.Server) {
			s.RegisterRoutes()
		}),
		fx.Invoke(server.RunHTTP),
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
