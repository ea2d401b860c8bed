package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/orgsync/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualNow struct {
	mu  sync.Mutex
	now time.Time
}

func (m *manualNow) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *manualNow) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

func TestLocalLimiterSpendsBurstThenRefills(t *testing.T) {
	clk := &manualNow{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := NewLocalLimiter(LocalConfig{Now: clk.Now})
	rule := config.RateLimitRule{Name: "test", Rate: 2, Burst: 3}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := limiter.Allow(ctx, "actor-1", rule)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, 3, d.Limit)
	}

	d, err := limiter.Allow(ctx, "actor-1", rule)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 500*time.Millisecond, d.RetryAfter)

	clk.Advance(500 * time.Millisecond)
	d, err = limiter.Allow(ctx, "actor-1", rule)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLocalLimiterKeysAreIndependent(t *testing.T) {
	limiter := NewLocalLimiter(LocalConfig{Shards: 4})
	rule := config.RateLimitRule{Name: "test", Rate: 0.001, Burst: 1}
	ctx := context.Background()

	d, err := limiter.Allow(ctx, "a", rule)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = limiter.Allow(ctx, "a", rule)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	d, err = limiter.Allow(ctx, "b", rule)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLocalLimiterRejectsBadRule(t *testing.T) {
	limiter := NewLocalLimiter(LocalConfig{})
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "", config.RateLimitRule{Rate: 1, Burst: 1})
	assert.Error(t, err)
	_, err = limiter.Allow(ctx, "k", config.RateLimitRule{Rate: 0, Burst: 1})
	assert.Error(t, err)
	_, err = limiter.Allow(ctx, "k", config.RateLimitRule{Rate: 1, Burst: 0})
	assert.Error(t, err)
}

func TestLocalLimiterReapsIdleBuckets(t *testing.T) {
	clk := &manualNow{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := NewLocalLimiter(LocalConfig{IdleTTL: time.Minute, Now: clk.Now})
	rule := config.RateLimitRule{Name: "test", Rate: 1, Burst: 1}
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "old", rule)
	require.NoError(t, err)
	clk.Advance(45 * time.Second)
	_, err = limiter.Allow(ctx, "fresh", rule)
	require.NoError(t, err)
	require.Equal(t, 2, limiter.Len())

	clk.Advance(30 * time.Second)
	assert.Equal(t, 1, limiter.Reap())
	assert.Equal(t, 1, limiter.Len())
}

func TestLocalLimiterConcurrentCallersShareBurst(t *testing.T) {
	limiter := NewLocalLimiter(LocalConfig{})
	rule := config.RateLimitRule{Name: "test", Rate: 0.001, Burst: 10}
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := limiter.Allow(ctx, "shared", rule)
			if err == nil && d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, allowed)
}

func TestLocalLimiterStartStop(t *testing.T) {
	limiter := NewLocalLimiter(LocalConfig{IdleTTL: time.Minute})
	limiter.Start()
	limiter.Stop()
	limiter.Stop()

	noReaper := NewLocalLimiter(LocalConfig{})
	noReaper.Start()
	noReaper.Stop()
}
