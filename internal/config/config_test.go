package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("INVITATION_EXPIRY_WINDOW", "")
	t.Setenv("SCHEDULER_RUN_INTERVAL", "")
	t.Setenv("EVENTS_TRANSPORT", "")

	cfg := Load()
	if cfg.Invitation.ExpiryWindow != 7*24*time.Hour {
		t.Fatalf("expected 7 day expiry window, got %s", cfg.Invitation.ExpiryWindow)
	}
	if cfg.Scheduler.RunInterval != 24*time.Hour {
		t.Fatalf("expected daily scheduler interval, got %s", cfg.Scheduler.RunInterval)
	}
	if cfg.Events.Transport != TransportMemory {
		t.Fatalf("expected memory transport, got %s", cfg.Events.Transport)
	}
	if cfg.IsDistributed() {
		t.Fatalf("expected monolith mode by default")
	}
}

func TestLoadDurationOverrides(t *testing.T) {
	t.Setenv("INVITATION_EXPIRY_WINDOW", "72h")
	t.Setenv("SCHEDULER_RUN_INTERVAL", "90")
	t.Setenv("OUTBOX_POLL_INTERVAL", "not-a-duration")
	t.Setenv("EVENTS_TRANSPORT", "REDIS")
	t.Setenv("APP_MODE", "distributed")

	cfg := Load()
	if cfg.Invitation.ExpiryWindow != 72*time.Hour {
		t.Fatalf("expected 72h, got %s", cfg.Invitation.ExpiryWindow)
	}
	if cfg.Scheduler.RunInterval != 90*time.Second {
		t.Fatalf("expected 90s, got %s", cfg.Scheduler.RunInterval)
	}
	if cfg.Outbox.PollInterval != time.Second {
		t.Fatalf("expected fallback poll interval, got %s", cfg.Outbox.PollInterval)
	}
	if cfg.Events.Transport != TransportRedis {
		t.Fatalf("expected redis transport, got %s", cfg.Events.Transport)
	}
	if !cfg.IsDistributed() {
		t.Fatalf("expected distributed mode")
	}
}

func TestRateLimitPolicyFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ratelimit.yml")
	body := []byte(`ratelimit:
  default:
    name: default
    rate: 3
    burst: 6
  rules:
    - name: invitation.write
      rate: 1
      burst: 2
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	holder, err := NewRateLimitPolicyHolder(Config{RateLimit: RateLimitConfig{PolicyFile: path}}, zap.NewNop())
	if err != nil {
		t.Fatalf("load policy: %v", err)
	}

	policy := holder.Get()
	if got := policy.Rule("invitation.write"); got.Rate != 1 || got.Burst != 2 {
		t.Fatalf("unexpected invitation rule: %+v", got)
	}
	if got := policy.Rule("unknown"); got.Rate != 3 || got.Burst != 6 {
		t.Fatalf("expected default rule fallback, got %+v", got)
	}
}

func TestRateLimitPolicyRejectsInvalidRule(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ratelimit.yml")
	body := []byte(`ratelimit:
  default:
    name: default
    rate: 0
    burst: 1
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	if _, err := NewRateLimitPolicyHolder(Config{RateLimit: RateLimitConfig{PolicyFile: path}}, zap.NewNop()); err == nil {
		t.Fatalf("expected validation error")
	}
}
