package events

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupOutbox(t *testing.T) (*gorm.DB, *Outbox) {
	t.Helper()

	dsn := fmt.Sprintf("file:events_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&OutboxEvent{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return db, NewOutbox(OutboxParams{GenID: node, Clock: clk, Log: zap.NewNop()})
}

func TestPublishTxDeduplicates(t *testing.T) {
	db, outbox := setupOutbox(t)
	ctx := context.Background()

	evt := Event{
		AggregateType: AggregatePayout,
		AggregateID:   "42",
		DedupeKey:     "payout_sent:42",
		Payload: PayoutSent{
			PayoutID:           "42",
			CreatorID:          "creator_1",
			PayoutAmount:       22500,
			Currency:           "USD",
			ProviderTransferID: "tr_1",
		},
	}

	for i := 0; i < 2; i++ {
		err := db.Transaction(func(tx *gorm.DB) error {
			return outbox.PublishTx(ctx, tx, evt)
		})
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, db.Model(&OutboxEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPublishTxRollsBackWithCaller(t *testing.T) {
	db, outbox := setupOutbox(t)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := outbox.PublishTx(ctx, tx, Event{
			AggregateType: AggregateTransaction,
			AggregateID:   "7",
			DedupeKey:     "transaction_created:7",
			Payload:       TransactionCreated{TransactionID: "7"},
		}); err != nil {
			return err
		}
		return fmt.Errorf("business write failed")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDecodeEnvelopeReturnsTypedPayload(t *testing.T) {
	db, outbox := setupOutbox(t)
	ctx := context.Background()

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return outbox.PublishTx(ctx, tx, Event{
			AggregateType: AggregateChargeback,
			AggregateID:   "9",
			DedupeKey:     "chargeback_created:9",
			Payload: ChargebackCreated{
				ChargebackID:   "9",
				TransactionID:  "7",
				CreatorID:      "creator_1",
				WasAlreadyPaid: true,
			},
		})
	}))

	var row OutboxEvent
	require.NoError(t, db.First(&row).Error)

	env, payload, err := DecodeEnvelope(row.Payload)
	require.NoError(t, err)
	assert.Equal(t, row.ID.String(), env.EventID)
	assert.Equal(t, EventChargebackCreated, env.EventType)

	created, ok := payload.(*ChargebackCreated)
	require.True(t, ok, "expected *ChargebackCreated, got %T", payload)
	assert.True(t, created.WasAlreadyPaid)
	assert.Equal(t, "creator_1", created.CreatorID)
}

func TestDecodeEnvelopeRejectsUnknownType(t *testing.T) {
	_, _, err := DecodeEnvelope([]byte(`{"eventId":"1","eventType":"Nope","payload":{}}`))
	assert.ErrorIs(t, err, ErrUnknownEventType)
}

func TestPublishTxRequiresDedupeKey(t *testing.T) {
	db, outbox := setupOutbox(t)
	err := outbox.PublishTx(context.Background(), db, Event{Payload: PayoutSent{}})
	assert.ErrorIs(t, err, ErrMissingDedupe)
}
