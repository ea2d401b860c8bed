package ratelimit

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/orgsync/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(config.NewRateLimitPolicyHolder),
	fx.Provide(provideLimiter),
)

// LockModule exposes the redis lock used by the scheduler.
var LockModule = fx.Module("rate.limit.lock",
	fx.Provide(NewLocker),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
	Policy    *config.RateLimitPolicyHolder
	Redis     *redis.Client `optional:"true"`
}

func provideLimiter(p Params) (Limiter, error) {
	limiter, err := NewLimiter(p.Config, p.Redis, p.Policy, p.Log.Named("ratelimit"))
	if err != nil {
		return nil, err
	}
	if local, ok := limiter.(*LocalLimiter); ok {
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(context.Context) error {
				local.Start()
				return nil
			},
			OnStop: func(context.Context) error {
				local.Stop()
				return nil
			},
		})
	}
	return limiter, nil
}
