package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/orgsync/internal/config"
	"go.uber.org/zap"
)

const (
	BackendLocal = "local"
	BackendRedis = "redis"
)

var ErrLimiterUnavailable = errors.New("rate_limiter_unavailable")

// Limiter admits or rejects one request for key under rule.
type Limiter interface {
	Allow(ctx context.Context, key string, rule config.RateLimitRule) (Decision, error)
}

// NewLimiter picks the backend named by cfg.RateLimit.Backend. It returns nil
// when rate limiting is disabled.
func NewLimiter(cfg config.Config, client *redis.Client, policy *config.RateLimitPolicyHolder, log *zap.Logger) (Limiter, error) {
	if !cfg.RateLimit.Enabled {
		return nil, nil
	}
	switch strings.ToLower(strings.TrimSpace(cfg.RateLimit.Backend)) {
	case "", BackendLocal:
		if cfg.IsDistributed() {
			log.Warn("local rate limiter in distributed mode; limits apply per replica")
		}
		return NewLocalLimiter(LocalConfig{IdleTTL: policy.Get().IdleEviction}), nil
	case BackendRedis:
		if client == nil {
			return nil, fmt.Errorf("%w: redis backend without client", ErrLimiterUnavailable)
		}
		return NewTokenBucket(client), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrLimiterUnavailable, cfg.RateLimit.Backend)
	}
}

func checkRule(key string, rule config.RateLimitRule) error {
	if key == "" {
		return errors.New("rate limiter key is empty")
	}
	if rule.Rate <= 0 {
		return errors.New("rate limiter rate must be positive")
	}
	if rule.Burst <= 0 {
		return errors.New("rate limiter burst must be positive")
	}
	return nil
}

// retryAfter is the time until one whole token is available again.
func retryAfter(tokens, rate float64) time.Duration {
	needed := 1.0 - tokens
	if needed <= 0 || rate <= 0 {
		return 0
	}
	return time.Duration(needed / rate * float64(time.Second))
}
