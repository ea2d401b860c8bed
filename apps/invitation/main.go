package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orgsync/internal/clock"
	"github.com/smallbiznis/orgsync/internal/config"
	"github.com/smallbiznis/orgsync/internal/events"
	"github.com/smallbiznis/orgsync/internal/invitation"
	"github.com/smallbiznis/orgsync/internal/migration"
	"github.com/smallbiznis/orgsync/internal/observability"
	"github.com/smallbiznis/orgsync/internal/outbox"
	"github.com/smallbiznis/orgsync/internal/server"
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

		// Invitations write to the outbox; the relay hands accepted events to the channel.
		events.Module,
		outbox.Module,
		outbox.RelayModule,
		invitation.Module,

		server.Module,
		fx.Invoke(func(s *server.Server) {
			s.RegisterInvitationRoutes()
		}),
		fx.Invoke(server.RunHTTP),
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
