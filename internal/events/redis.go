package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/orgsync/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	fieldRoutingKey = "routing_key"
	fieldBody       = "body"
)

type RedisConfig struct {
	StreamPrefix    string
	Consumer        string
	Workers         int
	BatchSize       int64
	BlockTimeout    time.Duration
	ClaimIdle       time.Duration
	MaxRedeliveries int
	MaxLen          int64
}

func (c RedisConfig) withDefaults() RedisConfig {
	if strings.TrimSpace(c.StreamPrefix) == "" {
		c.StreamPrefix = "orgsync:stream:"
	}
	if strings.TrimSpace(c.Consumer) == "" {
		c.Consumer = "orgsync"
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 16
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = 2 * time.Second
	}
	if c.ClaimIdle <= 0 {
		c.ClaimIdle = 30 * time.Second
	}
	if c.MaxRedeliveries < 0 {
		c.MaxRedeliveries = 0
	}
	if c.MaxLen <= 0 {
		c.MaxLen = 100_000
	}
	return c
}

// RedisBus carries events over Redis Streams. Each topic is one stream and
// each queue is one consumer group, so replicas sharing a queue compete for
// deliveries. Unacknowledged entries are reclaimed after ClaimIdle.
type RedisBus struct {
	client  *redis.Client
	cfg     RedisConfig
	log     *zap.Logger
	metrics *metrics.PipelineMetrics

	mu      sync.Mutex
	subs    []*redisSubscription
	started bool
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type redisSubscription struct {
	binding Binding
	handler Handler
	stream  string
}

func NewRedisBus(client *redis.Client, cfg RedisConfig, log *zap.Logger) *RedisBus {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisBus{
		client:  client,
		cfg:     cfg.withDefaults(),
		log:     log.Named("events.redis"),
		metrics: metrics.Pipeline(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *RedisBus) StreamKey(topic string) string {
	return b.cfg.StreamPrefix + topic
}

func (b *RedisBus) Publish(ctx context.Context, topic, routingKey string, body []byte) error {
	if b.isClosed() {
		return ErrClosed
	}
	err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.StreamKey(topic),
		MaxLen: b.cfg.MaxLen,
		Approx: true,
		Values: map[string]interface{}{
			fieldRoutingKey: routingKey,
			fieldBody:       string(body),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", topic, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(binding Binding, handler Handler) error {
	if err := binding.validate(); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrInvalidBinding, binding.Queue)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	sub := &redisSubscription{binding: binding, handler: handler, stream: b.StreamKey(binding.Topic)}
	b.subs = append(b.subs, sub)
	if b.started {
		if err := b.ensureGroup(b.ctx, sub); err != nil {
			return err
		}
		b.spawn(sub)
	}
	return nil
}

// Start creates missing consumer groups and launches the read loops.
func (b *RedisBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.started {
		return nil
	}
	for _, sub := range b.subs {
		if err := b.ensureGroup(ctx, sub); err != nil {
			return err
		}
	}
	b.started = true
	for _, sub := range b.subs {
		b.spawn(sub)
	}
	return nil
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.cancel()
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

func (b *RedisBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// ensureGroup reads from the start of the stream so events published before
// the first deployment of a queue are not lost.
func (b *RedisBus) ensureGroup(ctx context.Context, sub *redisSubscription) error {
	err := b.client.XGroupCreateMkStream(ctx, sub.stream, sub.binding.Queue, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", sub.binding.Queue, sub.stream, err)
	}
	return nil
}

func (b *RedisBus) spawn(sub *redisSubscription) {
	for i := 0; i < b.cfg.Workers; i++ {
		b.wg.Add(1)
		go b.consume(sub)
	}
	b.wg.Add(1)
	go b.reclaim(sub)
}

func (b *RedisBus) consume(sub *redisSubscription) {
	defer b.wg.Done()
	for b.ctx.Err() == nil {
		streams, err := b.client.XReadGroup(b.ctx, &redis.XReadGroupArgs{
			Group:    sub.binding.Queue,
			Consumer: b.cfg.Consumer,
			Streams:  []string{sub.stream, ">"},
			Count:    b.cfg.BatchSize,
			Block:    b.cfg.BlockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if b.ctx.Err() != nil {
				return
			}
			if strings.Contains(err.Error(), "NOGROUP") {
				if gerr := b.ensureGroup(b.ctx, sub); gerr != nil {
					b.log.Warn("recreate consumer group failed", zap.String("queue", sub.binding.Queue), zap.Error(gerr))
				}
			} else {
				b.log.Warn("xreadgroup failed", zap.String("queue", sub.binding.Queue), zap.Error(err))
			}
			b.pause(time.Second)
			continue
		}
		for _, stream := range streams {
			for _, entry := range stream.Messages {
				b.handle(sub, entry, 1)
			}
		}
	}
}

// reclaim takes over entries left pending by a failed handler or a dead consumer.
func (b *RedisBus) reclaim(sub *redisSubscription) {
	defer b.wg.Done()
	interval := b.cfg.ClaimIdle / 2
	if interval < 50*time.Millisecond {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.reclaimOnce(sub)
		}
	}
}

func (b *RedisBus) reclaimOnce(sub *redisSubscription) {
	start := "0-0"
	for b.ctx.Err() == nil {
		entries, next, err := b.client.XAutoClaim(b.ctx, &redis.XAutoClaimArgs{
			Stream:   sub.stream,
			Group:    sub.binding.Queue,
			Consumer: b.cfg.Consumer,
			MinIdle:  b.cfg.ClaimIdle,
			Start:    start,
			Count:    b.cfg.BatchSize,
		}).Result()
		if err != nil {
			if b.ctx.Err() == nil && !errors.Is(err, redis.Nil) {
				b.log.Warn("xautoclaim failed", zap.String("queue", sub.binding.Queue), zap.Error(err))
			}
			return
		}
		for _, entry := range entries {
			b.metrics.IncRedelivery(sub.binding.Queue)
			b.handle(sub, entry, b.deliveryCount(sub, entry.ID))
		}
		if next == "" || next == "0-0" || len(entries) == 0 {
			return
		}
		start = next
	}
}

func (b *RedisBus) deliveryCount(sub *redisSubscription, id string) int {
	pending, err := b.client.XPendingExt(b.ctx, &redis.XPendingExtArgs{
		Stream: sub.stream,
		Group:  sub.binding.Queue,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 2
	}
	return int(pending[0].RetryCount)
}

func (b *RedisBus) handle(sub *redisSubscription, entry redis.XMessage, attempt int) {
	routingKey := stringValue(entry.Values[fieldRoutingKey])
	if !sub.binding.matches(sub.binding.Topic, routingKey) {
		b.ack(sub, entry.ID)
		return
	}

	fields := []zap.Field{
		zap.String("queue", sub.binding.Queue),
		zap.String("routing_key", routingKey),
		zap.String("message_id", entry.ID),
		zap.Int("attempt", attempt),
	}
	if attempt > b.cfg.MaxRedeliveries+1 {
		b.log.Error("dropping event after max redeliveries", fields...)
		b.ack(sub, entry.ID)
		return
	}

	b.metrics.IncDelivery(sub.binding.Queue)
	msg := Message{
		ID:         entry.ID,
		Topic:      sub.binding.Topic,
		RoutingKey: routingKey,
		Body:       []byte(stringValue(entry.Values[fieldBody])),
		Attempt:    attempt,
	}
	if err := safeHandle(b.ctx, sub.handler, msg); err != nil {
		b.log.Warn("event handler failed, left pending for redelivery", append(fields, zap.Error(err))...)
		return
	}
	b.ack(sub, entry.ID)
}

func (b *RedisBus) ack(sub *redisSubscription, id string) {
	if err := b.client.XAck(b.ctx, sub.stream, sub.binding.Queue, id).Err(); err != nil && b.ctx.Err() == nil {
		b.log.Warn("xack failed", zap.String("queue", sub.binding.Queue), zap.String("message_id", id), zap.Error(err))
	}
}

func (b *RedisBus) pause(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-b.ctx.Done():
	case <-timer.C:
	}
}

func stringValue(v interface{}) string {
	switch value := v.(type) {
	case string:
		return value
	case []byte:
		return string(value)
	case nil:
		return ""
	default:
		return fmt.Sprint(value)
	}
}

var _ Bus = (*RedisBus)(nil)
