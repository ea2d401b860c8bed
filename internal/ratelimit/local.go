package ratelimit

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/smallbiznis/orgsync/internal/config"
)

const defaultShards = 32

type LocalConfig struct {
	Shards int
	// IdleTTL drops buckets untouched for this long. Zero keeps them.
	IdleTTL time.Duration
	Now     func() time.Time
}

type localBucket struct {
	tokens   float64
	last     time.Time
	lastSeen time.Time
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*localBucket
}

// LocalLimiter keeps token buckets in process memory, spread over shards so
// unrelated keys do not contend on one mutex.
type LocalLimiter struct {
	shards  []*shard
	idleTTL time.Duration
	now     func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewLocalLimiter(cfg LocalConfig) *LocalLimiter {
	if cfg.Shards <= 0 {
		cfg.Shards = defaultShards
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	l := &LocalLimiter{
		shards:  make([]*shard, cfg.Shards),
		idleTTL: cfg.IdleTTL,
		now:     cfg.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for i := range l.shards {
		l.shards[i] = &shard{buckets: make(map[string]*localBucket)}
	}
	return l
}

func (l *LocalLimiter) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return l.shards[h.Sum32()%uint32(len(l.shards))]
}

func (l *LocalLimiter) Allow(_ context.Context, key string, rule config.RateLimitRule) (Decision, error) {
	if err := checkRule(key, rule); err != nil {
		return Decision{}, err
	}
	now := l.now()
	burst := float64(rule.Burst)

	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		b = &localBucket{tokens: burst, last: now}
		s.buckets[key] = b
	} else if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = math.Min(burst, b.tokens+elapsed*rule.Rate)
		b.last = now
	}
	// A policy reload may have shrunk the burst.
	if b.tokens > burst {
		b.tokens = burst
	}
	b.lastSeen = now

	decision := Decision{Limit: rule.Burst}
	if b.tokens >= 1 {
		b.tokens--
		decision.Allowed = true
	} else {
		decision.RetryAfter = retryAfter(b.tokens, rule.Rate)
	}
	decision.Remaining = int(b.tokens)
	return decision, nil
}

// Reap drops idle buckets and reports how many were removed.
func (l *LocalLimiter) Reap() int {
	if l.idleTTL <= 0 {
		return 0
	}
	cutoff := l.now().Add(-l.idleTTL)
	removed := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for key, b := range s.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(s.buckets, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

func (l *LocalLimiter) Len() int {
	n := 0
	for _, s := range l.shards {
		s.mu.Lock()
		n += len(s.buckets)
		s.mu.Unlock()
	}
	return n
}

// Start runs the idle reaper until Stop.
func (l *LocalLimiter) Start() {
	if l.idleTTL <= 0 {
		close(l.done)
		return
	}
	interval := l.idleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	go func() {
		defer close(l.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-l.stop:
				return
			case <-ticker.C:
				l.Reap()
			}
		}
	}()
}

func (l *LocalLimiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
	<-l.done
}
