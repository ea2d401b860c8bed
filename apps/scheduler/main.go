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
	"github.com/smallbiznis/orgsync/internal/ratelimit"
	"github.com/smallbiznis/orgsync/internal/scheduler"
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

		// Expiry sweeps write invitation.expired to the outbox; this process relays them.
		events.Module,
		outbox.Module,
		outbox.RelayModule,
		invitation.Module,

		ratelimit.LockModule,
		scheduler.Module,

		// No server module!
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
