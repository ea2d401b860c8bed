package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/orgsync/internal/config"
)

const (
	JobExpireInvitations = "expire_invitations"
	JobPurgeOutbox       = "purge_outbox"
)

// Config controls scheduler intervals and timeouts.
type Config struct {
	RunInterval     time.Duration
	JobTimeout      time.Duration
	LockEnabled     bool
	LockTTL         time.Duration
	LockPrefix      string
	OutboxRetention time.Duration
	// EnabledJobs restricts the jobs run per tick. Empty means all.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval: 24 * time.Hour,
		JobTimeout:  5 * time.Minute,
		LockTTL:     10 * time.Minute,
		LockPrefix:  "orgsync:scheduler:",
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if strings.TrimSpace(c.LockPrefix) == "" {
		c.LockPrefix = defaults.LockPrefix
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:     cfg.Scheduler.RunInterval,
		JobTimeout:      cfg.Scheduler.JobTimeout,
		LockEnabled:     cfg.Scheduler.LockEnabled,
		LockTTL:         cfg.Scheduler.LockTTL,
		OutboxRetention: cfg.Scheduler.OutboxRetention,
		EnabledJobs:     cfg.Scheduler.EnabledJobs,
	}
}
