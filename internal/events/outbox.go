package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInvalidEvent  = errors.New("invalid_outbox_event")
	ErrMissingDedupe = errors.New("outbox_dedupe_key_required")
)

// Event is what domain services hand to the outbox.
type Event struct {
	AggregateType string
	AggregateID   string
	DedupeKey     string
	OccurredAt    time.Time
	Payload       Payload
}

type Outbox struct {
	genID *snowflake.Node
	clock clock.Clock
	log   *zap.Logger
}

type OutboxParams struct {
	fx.In

	GenID *snowflake.Node
	Clock clock.Clock
	Log   *zap.Logger
}

func NewOutbox(p OutboxParams) *Outbox {
	return &Outbox{
		genID: p.GenID,
		clock: p.Clock,
		log:   p.Log.Named("events.outbox"),
	}
}

// PublishTx records evt in the caller's transaction. A second call with the
// same dedupe key is a no-op, so replayed business writes never duplicate
// events.
func (o *Outbox) PublishTx(ctx context.Context, tx *gorm.DB, evt Event) error {
	if tx == nil || evt.Payload == nil {
		return ErrInvalidEvent
	}
	if strings.TrimSpace(evt.DedupeKey) == "" {
		return ErrMissingDedupe
	}

	now := o.clock.Now().UTC()
	occurredAt := evt.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}

	id := o.genID.Generate()
	body, err := encodeEnvelope(id.String(), occurredAt, correlation.Metadata(ctx), evt.Payload)
	if err != nil {
		return err
	}

	row := OutboxEvent{
		ID:            id,
		AggregateType: evt.AggregateType,
		AggregateID:   evt.AggregateID,
		EventType:     evt.Payload.EventType(),
		DedupeKey:     evt.DedupeKey,
		Payload:       datatypes.JSON(body),
		CreatedAt:     now,
	}
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedupe_key"}},
			DoNothing: true,
		}).
		Create(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		o.log.Debug("outbox event already recorded",
			zap.String("event_type", string(row.EventType)),
			zap.String("dedupe_key", row.DedupeKey),
		)
	}
	return nil
}

var Module = fx.Module("events",
	fx.Provide(NewOutbox),
)
