package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// RateLimitRule bounds requests for one route class.
type RateLimitRule struct {
	Name  string  `mapstructure:"name"`
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

// RateLimitPolicy is the hot-reloadable rate limit document.
type RateLimitPolicy struct {
	Default      RateLimitRule   `mapstructure:"default"`
	Rules        []RateLimitRule `mapstructure:"rules"`
	IdleEviction time.Duration   `mapstructure:"idleEviction"`
}

func DefaultRateLimitPolicy() RateLimitPolicy {
	return RateLimitPolicy{
		Default: RateLimitRule{Name: "default", Rate: 20, Burst: 40},
		Rules: []RateLimitRule{
			{Name: "invitation.write", Rate: 5, Burst: 10},
			{Name: "directory.write", Rate: 5, Burst: 10},
		},
		IdleEviction: 10 * time.Minute,
	}
}

// Rule returns the named rule or the default one.
func (p RateLimitPolicy) Rule(name string) RateLimitRule {
	for _, rule := range p.Rules {
		if rule.Name == name {
			return rule
		}
	}
	return p.Default
}

type RateLimitPolicyHolder struct {
	current atomic.Value // holds RateLimitPolicy
}

// NewStaticRateLimitPolicyHolder pins a policy without watching any file.
func NewStaticRateLimitPolicyHolder(policy RateLimitPolicy) *RateLimitPolicyHolder {
	holder := &RateLimitPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewRateLimitPolicyHolder(cfg Config, log *zap.Logger) (*RateLimitPolicyHolder, error) {
	v := viper.New()

	if path := strings.TrimSpace(cfg.RateLimit.PolicyFile); path != "" {
		v.SetConfigFile(filepath.Clean(path))
	} else {
		v.SetConfigName("ratelimit")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/orgsync")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ORGSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultRateLimitPolicy()
	v.SetDefault("ratelimit.default", defaults.Default)
	v.SetDefault("ratelimit.rules", defaults.Rules)
	v.SetDefault("ratelimit.idleEviction", defaults.IdleEviction)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var policy RateLimitPolicy
	if err := v.UnmarshalKey("ratelimit", &policy); err != nil {
		return nil, err
	}
	if err := validateRateLimitPolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticRateLimitPolicyHolder(policy)
	if !fileLoaded {
		return holder, nil
	}

	log = log.Named("ratelimit.policy")
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated RateLimitPolicy
		if err := v.UnmarshalKey("ratelimit", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateRateLimitPolicy(updated); err != nil {
			log.Warn("invalid policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("policy reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *RateLimitPolicyHolder) Get() RateLimitPolicy {
	return h.current.Load().(RateLimitPolicy)
}

func validateRateLimitPolicy(policy RateLimitPolicy) error {
	if err := validateRule(policy.Default); err != nil {
		return fmt.Errorf("ratelimit.default: %w", err)
	}
	for i, rule := range policy.Rules {
		if strings.TrimSpace(rule.Name) == "" {
			return fmt.Errorf("ratelimit.rules[%d]: name cannot be empty", i)
		}
		if err := validateRule(rule); err != nil {
			return fmt.Errorf("ratelimit.rules[%d]: %w", i, err)
		}
	}
	if policy.IdleEviction < 0 {
		return errors.New("ratelimit.idleEviction cannot be negative")
	}
	return nil
}

func validateRule(rule RateLimitRule) error {
	if rule.Rate <= 0 {
		return errors.New("rate must be positive")
	}
	if rule.Burst <= 0 {
		return errors.New("burst must be positive")
	}
	return nil
}
