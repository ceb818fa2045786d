package outbox_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/IBM/sarama"
	saramamocks "github.com/IBM/sarama/mocks"
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/events"
	"github.com/smallbiznis/creatorpay/internal/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

func sampleEvent() events.OutboxEvent {
	return events.OutboxEvent{
		ID:            snowflake.ID(42),
		AggregateType: events.AggregatePayout,
		AggregateID:   "1001",
		EventType:     events.EventPayoutSent,
		DedupeKey:     "payout_sent:1001",
		Payload:       datatypes.JSON(`{"eventId":"42","eventType":"PayoutSent","payload":{}}`),
		CreatedAt:     now,
	}
}

func TestWebhookPublisherSignsBody(t *testing.T) {
	secret := "whsec_test"
	var (
		gotBody    []byte
		gotHeaders http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	pub, err := outbox.NewWebhookPublisher(srv.URL, secret, time.Second, zap.NewNop())
	require.NoError(t, err)

	evt := sampleEvent()
	require.NoError(t, pub.Publish(context.Background(), evt))

	assert.JSONEq(t, string(evt.Payload), string(gotBody))
	assert.True(t, outbox.VerifySignature([]byte(secret), gotBody, gotHeaders.Get(outbox.HeaderSignature)))
	assert.False(t, outbox.VerifySignature([]byte("other"), gotBody, gotHeaders.Get(outbox.HeaderSignature)))
	assert.Equal(t, "42", gotHeaders.Get(outbox.HeaderEventID))
	assert.Equal(t, string(events.EventPayoutSent), gotHeaders.Get(outbox.HeaderEventType))
	assert.NotEmpty(t, gotHeaders.Get(outbox.HeaderDeliveryID))
}

func TestWebhookPublisherRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	pub, err := outbox.NewWebhookPublisher(srv.URL, "secret", time.Second, zap.NewNop())
	require.NoError(t, err)

	err = pub.Publish(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, outbox.ErrDeliveryRejected)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhookPublisherConfig(t *testing.T) {
	_, err := outbox.NewWebhookPublisher("", "secret", 0, zap.NewNop())
	assert.ErrorIs(t, err, outbox.ErrPublisherConfig)
	_, err = outbox.NewWebhookPublisher("http://localhost", " ", 0, zap.NewNop())
	assert.ErrorIs(t, err, outbox.ErrPublisherConfig)
}

func TestKafkaPublisherKeysByAggregate(t *testing.T) {
	producer := saramamocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "creatorpay.events" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "1001" {
			return errors.New("unexpected key " + string(key))
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub, err := outbox.NewKafkaPublisher(producer, "creatorpay.events", zap.NewNop())
	require.NoError(t, err)
	defer pub.Close()

	require.NoError(t, pub.Publish(context.Background(), sampleEvent()))
	assert.ErrorIs(t, pub.Publish(context.Background(), sampleEvent()), sarama.ErrOutOfBrokers)
}

func TestKafkaPublisherConfig(t *testing.T) {
	_, err := outbox.NewKafkaPublisher(nil, "topic", zap.NewNop())
	assert.ErrorIs(t, err, outbox.ErrPublisherConfig)
	_, err = outbox.NewKafkaProducer(nil)
	assert.ErrorIs(t, err, outbox.ErrPublisherConfig)
}

func TestRedisPublisherRequiresClient(t *testing.T) {
	_, err := outbox.NewRedisPublisher(nil, "", zap.NewNop())
	assert.ErrorIs(t, err, outbox.ErrPublisherConfig)
}
