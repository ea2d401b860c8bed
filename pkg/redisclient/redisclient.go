// Package redisclient provides the shared go-redis client.
package redisclient

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/orgsync/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("redis",
	fx.Provide(New),
)

// Required reports whether any configured component depends on redis.
func Required(cfg config.Config) bool {
	return cfg.Events.Transport == config.TransportRedis ||
		cfg.Scheduler.LockEnabled ||
		(cfg.RateLimit.Enabled && cfg.RateLimit.Backend == "redis")
}

// New builds the client. go-redis dials lazily, so the connection is only
// verified on start when a component actually needs redis.
func New(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !Required(cfg) {
				return nil
			}
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := client.Ping(pingCtx).Err(); err != nil {
				return fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
			}
			log.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}
