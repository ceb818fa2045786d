package outbox

import (
	"context"
	"errors"

	"github.com/smallbiznis/creatorpay/internal/events"
)

//go:generate mockgen -source=publisher.go -destination=./mocks/mock_publisher.go -package=mocks

// Publisher delivers one stored event to the outside world. Delivery is
// at-least-once: consumers dedupe on the envelope eventId.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, evt events.OutboxEvent) error
}

const (
	PublisherConsole = "console"
	PublisherWebhook = "webhook"
	PublisherKafka   = "kafka"
	PublisherRedis   = "redis"
)

var (
	ErrUnknownPublisher = errors.New("unknown_outbox_publisher")
	ErrPublisherConfig  = errors.New("invalid_outbox_publisher_config")
	ErrDeliveryRejected = errors.New("outbox_delivery_rejected")
)
