package outbox

import (
	"context"

	"github.com/smallbiznis/orgsync/internal/config"
	"github.com/smallbiznis/orgsync/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module provides the transactional writer used by the domain services.
var Module = fx.Module("outbox",
	fx.Provide(NewWriter),
)

// RelayModule runs the relay in processes that own an outbox table.
var RelayModule = fx.Module("outbox.relay",
	fx.Provide(relayConfig, NewRelay),
	fx.Invoke(attachListener, runRelay),
)

// attachListener wires postgres notifications into the relay. Without one the
// relay keeps polling, so a listener failure is logged and not fatal.
func attachListener(lc fx.Lifecycle, cfg config.Config, conn *gorm.DB, relay *Relay, log *zap.Logger) {
	if !cfg.Outbox.Notify || !db.IsPostgres(conn) {
		return
	}
	listener, err := NewListener(db.PostgresDSN(cfg), log)
	if err != nil {
		log.Warn("outbox listener disabled", zap.Error(err))
		return
	}
	relay.WakeOn(listener.Wake())
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return listener.Close()
		},
	})
}

func runRelay(lc fx.Lifecycle, relay *Relay) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			relay.Start()
			return nil
		},
		OnStop: relay.Stop,
	})
}
