package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/orgsync/internal/observability/metrics"
	"go.uber.org/zap"
)

type MemoryConfig struct {
	Workers         int
	MaxRedeliveries int
	RetryDelay      time.Duration
	QueueSize       int
}

func (c MemoryConfig) withDefaults() MemoryConfig {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.MaxRedeliveries < 0 {
		c.MaxRedeliveries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 100 * time.Millisecond
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	return c
}

// MemoryBus fans events out to in-process queues. It is meant for the
// monolith and for tests; nothing survives a restart.
type MemoryBus struct {
	cfg     MemoryConfig
	log     *zap.Logger
	metrics *metrics.PipelineMetrics

	mu      sync.RWMutex
	queues  []*memoryQueue
	started bool
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type memoryQueue struct {
	binding Binding
	handler Handler
	ch      chan Message
}

func NewMemoryBus(cfg MemoryConfig, log *zap.Logger) *MemoryBus {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MemoryBus{
		cfg:     cfg.withDefaults(),
		log:     log.Named("events.memory"),
		metrics: metrics.Pipeline(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *MemoryBus) Subscribe(binding Binding, handler Handler) error {
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
	q := &memoryQueue{binding: binding, handler: handler, ch: make(chan Message, b.cfg.QueueSize)}
	b.queues = append(b.queues, q)
	if b.started {
		b.spawn(q)
	}
	return nil
}

// Publish hands a copy of the event to every bound queue. It fails when a
// queue is saturated so the caller can retry later.
func (b *MemoryBus) Publish(ctx context.Context, topic, routingKey string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	id := uuid.NewString()
	for _, q := range b.queues {
		if !q.binding.matches(topic, routingKey) {
			continue
		}
		msg := Message{ID: id, Topic: topic, RoutingKey: routingKey, Body: body, Attempt: 1}
		select {
		case q.ch <- msg:
		default:
			return fmt.Errorf("%w: %s", ErrQueueFull, q.binding.Queue)
		}
	}
	return nil
}

func (b *MemoryBus) Start(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.started {
		return nil
	}
	b.started = true
	for _, q := range b.queues {
		b.spawn(q)
	}
	return nil
}

func (b *MemoryBus) Close() error {
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

func (b *MemoryBus) spawn(q *memoryQueue) {
	for i := 0; i < b.cfg.Workers; i++ {
		b.wg.Add(1)
		go b.work(q)
	}
}

func (b *MemoryBus) work(q *memoryQueue) {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg := <-q.ch:
			b.dispatch(q, msg)
		}
	}
}

func (b *MemoryBus) dispatch(q *memoryQueue, msg Message) {
	b.metrics.IncDelivery(q.binding.Queue)
	err := safeHandle(b.ctx, q.handler, msg)
	if err == nil {
		return
	}

	fields := []zap.Field{
		zap.String("queue", q.binding.Queue),
		zap.String("routing_key", msg.RoutingKey),
		zap.String("message_id", msg.ID),
		zap.Int("attempt", msg.Attempt),
		zap.Error(err),
	}
	if msg.Attempt > b.cfg.MaxRedeliveries {
		b.log.Error("dropping event after max redeliveries", fields...)
		return
	}
	b.log.Warn("event handler failed, redelivering", fields...)
	b.metrics.IncRedelivery(q.binding.Queue)

	next := msg
	next.Attempt++
	delay := b.cfg.RetryDelay * time.Duration(msg.Attempt)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-b.ctx.Done():
		case <-timer.C:
			select {
			case q.ch <- next:
			default:
				b.log.Error("dropping redelivery, queue full", fields...)
			}
		}
	}()
}

func safeHandle(ctx context.Context, handler Handler, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event handler panic: %v", r)
		}
	}()
	return handler(ctx, msg)
}

var _ Bus = (*MemoryBus)(nil)
