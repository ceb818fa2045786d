package outbox

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/events"
	obsmetrics "github.com/smallbiznis/creatorpay/internal/observability/metrics"
	"github.com/smallbiznis/creatorpay/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxLastErrorLen = 1024

var ErrNilPublisher = errors.New("outbox_publisher_required")

type ProcessResult struct {
	Published int `json:"published"`
	Failed    int `json:"failed"`
}

type Stats struct {
	Pending   int64 `json:"pending"`
	Stuck     int64 `json:"stuck"`
	Published int64 `json:"published"`
}

type ProcessorParams struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Processor drains outbox_events through a Publisher. Rows are published
// oldest first; a row is marked published only after the publisher
// accepted it, so a crash between the two re-delivers rather than drops.
type Processor struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewProcessor(p ProcessorParams) *Processor {
	return &Processor{
		db:         p.DB,
		log:        p.Log.Named("outbox.processor"),
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
	}
}

func (p *Processor) ProcessEvents(ctx context.Context, publisher Publisher, batchSize, maxRetries int) (ProcessResult, error) {
	if publisher == nil {
		return ProcessResult{}, ErrNilPublisher
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}

	var batch []events.OutboxEvent
	err := p.db.WithContext(ctx).
		Where("published_at IS NULL AND retry_count < ?", maxRetries).
		Order("created_at ASC, id ASC").
		Limit(batchSize).
		Find(&batch).Error
	if err != nil {
		return ProcessResult{}, err
	}

	var result ProcessResult
	for _, evt := range batch {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		pubErr := publisher.Publish(ctx, evt)
		p.obsMetrics.RecordOutboxPublish(ctx, publisher.Name(), string(evt.EventType), pubErr)
		if pubErr != nil {
			result.Failed++
			if err := p.markFailed(ctx, evt, pubErr); err != nil {
				return result, err
			}
			p.log.Warn("outbox publish failed",
				zap.String("event_id", evt.ID.String()),
				zap.String("event_type", string(evt.EventType)),
				zap.Int("retry_count", evt.RetryCount+1),
				zap.Error(tracing.SafeError(pubErr)),
			)
			continue
		}

		if err := p.markPublished(ctx, evt); err != nil {
			return result, err
		}
		result.Published++
	}

	if len(batch) > 0 {
		p.log.Info("outbox batch processed",
			zap.String("publisher", publisher.Name()),
			zap.Int("published", result.Published),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}

func (p *Processor) markPublished(ctx context.Context, evt events.OutboxEvent) error {
	now := p.clock.Now().UTC()
	return p.db.WithContext(ctx).
		Model(&events.OutboxEvent{}).
		Where("id = ? AND published_at IS NULL", evt.ID).
		Updates(map[string]any{
			"published_at": now,
			"last_error":   nil,
		}).Error
}

func (p *Processor) markFailed(ctx context.Context, evt events.OutboxEvent, pubErr error) error {
	msg := truncateError(pubErr.Error(), maxLastErrorLen)
	return p.db.WithContext(ctx).
		Model(&events.OutboxEvent{}).
		Where("id = ? AND published_at IS NULL", evt.ID).
		Updates(map[string]any{
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  msg,
		}).Error
}

// truncateError cuts msg to at most n bytes on a rune boundary; postgres
// rejects invalid UTF-8 in text columns.
func truncateError(msg string, n int) string {
	msg = strings.ToValidUTF8(msg, "\uFFFD")
	if len(msg) <= n {
		return msg
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

// RetryFailedEvents gives events that exhausted maxRetries a fresh budget.
func (p *Processor) RetryFailedEvents(ctx context.Context, maxRetries int) (int64, error) {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	res := p.db.WithContext(ctx).
		Model(&events.OutboxEvent{}).
		Where("published_at IS NULL AND retry_count >= ?", maxRetries).
		Updates(map[string]any{
			"retry_count": 0,
			"last_error":  nil,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		p.log.Info("outbox events requeued", zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}

// CleanupPublishedEvents deletes events published more than olderThanDays
// ago. Unpublished rows are never removed.
func (p *Processor) CleanupPublishedEvents(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		olderThanDays = 30
	}
	cutoff := p.clock.Now().UTC().Add(-time.Duration(olderThanDays) * 24 * time.Hour)
	res := p.db.WithContext(ctx).
		Where("published_at IS NOT NULL AND published_at < ?", cutoff).
		Delete(&events.OutboxEvent{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		p.log.Info("published outbox events cleaned up",
			zap.Int64("count", res.RowsAffected),
			zap.Time("cutoff", cutoff),
		)
	}
	return res.RowsAffected, nil
}

func (p *Processor) Stats(ctx context.Context, maxRetries int) (Stats, error) {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	var stats Stats
	q := p.db.WithContext(ctx).Model(&events.OutboxEvent{})
	if err := q.Session(&gorm.Session{}).Where("published_at IS NULL AND retry_count < ?", maxRetries).Count(&stats.Pending).Error; err != nil {
		return Stats{}, err
	}
	if err := q.Session(&gorm.Session{}).Where("published_at IS NULL AND retry_count >= ?", maxRetries).Count(&stats.Stuck).Error; err != nil {
		return Stats{}, err
	}
	if err := q.Session(&gorm.Session{}).Where("published_at IS NOT NULL").Count(&stats.Published).Error; err != nil {
		return Stats{}, err
	}
	return stats, nil
}
