// Package outbox stores domain events in the same transaction as the state
// change that produced them and relays them to the event channel afterwards.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orgsync/internal/clock"
	"github.com/smallbiznis/orgsync/internal/events"
	"github.com/smallbiznis/orgsync/pkg/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrNoTransaction = errors.New("outbox_requires_transaction")

// Record is one pending or published event.
type Record struct {
	ID          snowflake.ID   `gorm:"primaryKey;autoIncrement:false"`
	EventID     string         `gorm:"type:varchar(36);not null;uniqueIndex:ux_outbox_event_id"`
	Topic       string         `gorm:"type:varchar(64);not null"`
	RoutingKey  string         `gorm:"type:varchar(64);not null"`
	Payload     datatypes.JSON `gorm:"not null"`
	Published   bool           `gorm:"not null;default:false;index:ix_outbox_pending,priority:1"`
	PublishedAt *time.Time
	Attempts    int       `gorm:"not null;default:0"`
	LastError   string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"not null;index:ix_outbox_pending,priority:2"`
}

func (Record) TableName() string { return "outbox_events" }

type Writer struct {
	genID *snowflake.Node
	clock clock.Clock
}

func NewWriter(genID *snowflake.Node, clk clock.Clock) *Writer {
	return &Writer{genID: genID, clock: clk}
}

// Enqueue records evt inside tx. The caller's commit makes the event visible
// to the relay; a rollback discards it together with the state change.
func (w *Writer) Enqueue(ctx context.Context, tx *gorm.DB, routingKey string, evt events.Event) error {
	if tx == nil {
		return ErrNoTransaction
	}
	topic, err := events.TopicFor(routingKey)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode %s: %w", routingKey, err)
	}

	record := Record{
		ID:         w.genID.Generate(),
		EventID:    evt.Header().EventID,
		Topic:      topic,
		RoutingKey: routingKey,
		Payload:    datatypes.JSON(payload),
		CreatedAt:  w.clock.Now(),
	}
	if err := tx.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("enqueue %s: %w", routingKey, err)
	}
	if db.IsPostgres(tx) {
		if err := notify(tx.WithContext(ctx), routingKey); err != nil {
			return fmt.Errorf("notify %s: %w", routingKey, err)
		}
	}
	return nil
}
