package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smallbiznis/orgsync/internal/clock"
	"github.com/smallbiznis/orgsync/internal/config"
	"github.com/smallbiznis/orgsync/internal/events"
	"github.com/smallbiznis/orgsync/internal/observability/metrics"
	"github.com/smallbiznis/orgsync/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxErrorLength = 512

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// MaxAttempts of 0 retries forever.
	MaxAttempts int
}

func relayConfig(cfg config.Config) RelayConfig {
	rc := RelayConfig{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
	}
	if rc.PollInterval <= 0 {
		rc.PollInterval = time.Second
	}
	if rc.BatchSize <= 0 {
		rc.BatchSize = 50
	}
	return rc
}

// Relay polls unpublished records and hands them to the publisher. Records
// that fail stay unpublished and are retried on the next poll.
type Relay struct {
	db        *gorm.DB
	publisher events.Publisher
	clock     clock.Clock
	log       *zap.Logger
	metrics   *metrics.PipelineMetrics
	cfg       RelayConfig
	wake      <-chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

func NewRelay(conn *gorm.DB, publisher events.Publisher, clk clock.Clock, log *zap.Logger, cfg RelayConfig) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Relay{
		db:        conn,
		publisher: publisher,
		clock:     clk,
		log:       log.Named("outbox.relay"),
		metrics:   metrics.Pipeline(),
		cfg:       cfg,
	}
}

// WakeOn makes Run poll as soon as ch fires instead of waiting for the next
// tick. It must be called before Start.
func (r *Relay) WakeOn(ch <-chan struct{}) {
	r.wake = ch
}

// PublishPending relays one batch and returns how many records were published.
func (r *Relay) PublishPending(ctx context.Context) (int, error) {
	published := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Where("published = ?", false)
		if r.cfg.MaxAttempts > 0 {
			query = query.Where("attempts < ?", r.cfg.MaxAttempts)
		}
		if db.IsPostgres(tx) {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var records []Record
		if err := query.Order("created_at ASC").Order("id ASC").Limit(r.cfg.BatchSize).Find(&records).Error; err != nil {
			return err
		}
		r.metrics.SetOutboxBacklog(len(records))

		for i := range records {
			record := &records[i]
			if err := r.publisher.Publish(ctx, record.Topic, record.RoutingKey, record.Payload); err != nil {
				r.metrics.IncOutboxFailure(record.RoutingKey)
				r.log.Warn("outbox publish failed",
					zap.String("event_id", record.EventID),
					zap.String("routing_key", record.RoutingKey),
					zap.Int("attempts", record.Attempts+1),
					zap.Error(err),
				)
				if err := r.markFailed(tx, record, err); err != nil {
					return err
				}
				continue
			}
			if err := r.markPublished(tx, record); err != nil {
				return err
			}
			r.metrics.IncOutboxPublished(record.RoutingKey)
			published++
		}
		return nil
	})
	return published, err
}

func (r *Relay) markPublished(tx *gorm.DB, record *Record) error {
	now := r.clock.Now()
	return tx.Model(&Record{}).
		Where("id = ?", record.ID).
		Updates(map[string]interface{}{
			"published":    true,
			"published_at": now,
			"attempts":     record.Attempts + 1,
			"last_error":   "",
		}).Error
}

func (r *Relay) markFailed(tx *gorm.DB, record *Record, cause error) error {
	msg := cause.Error()
	if len(msg) > maxErrorLength {
		msg = msg[:maxErrorLength]
	}
	return tx.Model(&Record{}).
		Where("id = ?", record.ID).
		Updates(map[string]interface{}{
			"attempts":   record.Attempts + 1,
			"last_error": msg,
		}).Error
}

// PurgePublished deletes published records older than the cutoff.
func (r *Relay) PurgePublished(ctx context.Context, olderThan time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("published = ? AND published_at < ?", true, olderThan).
		Delete(&Record{})
	return res.RowsAffected, res.Error
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		for {
			n, err := r.PublishPending(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					r.log.Error("outbox poll failed", zap.Error(err))
				}
				break
			}
			// Keep draining while full batches come back.
			if n < r.cfg.BatchSize {
				break
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.wake:
		}
	}
}

func (r *Relay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		r.Run(ctx)
	}()
}

func (r *Relay) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
