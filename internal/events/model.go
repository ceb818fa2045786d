package events

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// OutboxEvent is a durable record of a financial fact awaiting delivery.
// PublishedAt stays nil until a publisher has accepted it.
type OutboxEvent struct {
	ID            snowflake.ID   `gorm:"primaryKey" json:"id"`
	AggregateType string         `gorm:"type:text;not null" json:"aggregate_type"`
	AggregateID   string         `gorm:"type:varchar(191);not null;index" json:"aggregate_id"`
	EventType     EventType      `gorm:"type:varchar(191);not null;index" json:"event_type"`
	DedupeKey     string         `gorm:"type:varchar(191);not null;uniqueIndex:ux_outbox_events_dedupe_key" json:"dedupe_key"`
	Payload       datatypes.JSON `gorm:"not null" json:"payload"`
	CreatedAt     time.Time      `gorm:"not null;index:ix_outbox_events_pending,priority:2" json:"created_at"`
	PublishedAt   *time.Time     `gorm:"index:ix_outbox_events_pending,priority:1" json:"published_at,omitempty"`
	RetryCount    int            `gorm:"not null;default:0" json:"retry_count"`
	LastError     *string        `gorm:"type:text" json:"last_error,omitempty"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

const (
	AggregateTransaction = "transaction"
	AggregateChargeback  = "chargeback"
	AggregatePayout      = "payout"
)
