package outbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/creatorpay/internal/events"
	"go.uber.org/zap"
)

// RedisPublisher fans events out over pub/sub, one channel per event type:
// <prefix>.<EventType>.
type RedisPublisher struct {
	client *redis.Client
	prefix string
	log    *zap.Logger
}

func NewRedisPublisher(client *redis.Client, prefix string, log *zap.Logger) (*RedisPublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: redis is not configured", ErrPublisherConfig)
	}
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "creatorpay.events"
	}
	return &RedisPublisher{
		client: client,
		prefix: prefix,
		log:    log.Named("outbox.redis"),
	}, nil
}

func (p *RedisPublisher) Name() string { return PublisherRedis }

func (p *RedisPublisher) Channel(eventType events.EventType) string {
	return p.prefix + "." + string(eventType)
}

func (p *RedisPublisher) Publish(ctx context.Context, evt events.OutboxEvent) error {
	receivers, err := p.client.Publish(ctx, p.Channel(evt.EventType), []byte(evt.Payload)).Result()
	if err != nil {
		return err
	}
	if receivers == 0 {
		p.log.Debug("event published without subscribers",
			zap.String("event_id", evt.ID.String()),
			zap.String("event_type", string(evt.EventType)),
		)
	}
	return nil
}
