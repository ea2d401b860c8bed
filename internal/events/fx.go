package events

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/orgsync/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(
		NewBus,
		func(b Bus) Publisher { return b },
		func(b Bus) Subscriber { return b },
	),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
	Redis     *redis.Client `optional:"true"`
}

// NewBus selects the transport from EVENTS_TRANSPORT. Subscriptions made
// during fx construction are started together with the app.
func NewBus(p Params) (Bus, error) {
	var bus Bus
	switch p.Config.Events.Transport {
	case config.TransportRedis:
		if p.Redis == nil {
			return nil, errors.New("events: redis transport requires a redis client")
		}
		bus = NewRedisBus(p.Redis, RedisConfig{
			Consumer:        p.Config.Events.Consumer,
			Workers:         p.Config.Events.Workers,
			BlockTimeout:    p.Config.Events.BlockTimeout,
			ClaimIdle:       p.Config.Events.ClaimIdle,
			MaxRedeliveries: p.Config.Events.MaxRedeliveries,
		}, p.Log)
	default:
		if p.Config.IsDistributed() {
			p.Log.Warn("memory event transport does not cross process boundaries in distributed mode")
		}
		bus = NewMemoryBus(MemoryConfig{
			Workers:         p.Config.Events.Workers,
			MaxRedeliveries: p.Config.Events.MaxRedeliveries,
		}, p.Log)
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: bus.Start,
		OnStop: func(context.Context) error {
			return bus.Close()
		},
	})
	return bus, nil
}
