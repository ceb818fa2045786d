package outbox

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/creatorpay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type PublisherParams struct {
	fx.In

	Lc    fx.Lifecycle
	Cfg   config.Config
	Log   *zap.Logger
	Redis *redis.Client `optional:"true"`
}

// NewPublisher builds the publisher named by OUTBOX_PUBLISHER.
func NewPublisher(p PublisherParams) (Publisher, error) {
	cfg := p.Cfg.Outbox
	switch cfg.Publisher {
	case "", PublisherConsole:
		return NewConsolePublisher(p.Log), nil
	case PublisherWebhook:
		return NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret, cfg.WebhookTimeout, p.Log)
	case PublisherKafka:
		producer, err := NewKafkaProducer(cfg.KafkaBrokers)
		if err != nil {
			return nil, err
		}
		pub, err := NewKafkaPublisher(producer, cfg.KafkaTopic, p.Log)
		if err != nil {
			_ = producer.Close()
			return nil, err
		}
		p.Lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return pub.Close()
			},
		})
		return pub, nil
	case PublisherRedis:
		return NewRedisPublisher(p.Redis, cfg.RedisChannelPrefix, p.Log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPublisher, cfg.Publisher)
	}
}

var Module = fx.Module("outbox",
	fx.Provide(NewPublisher),
	fx.Provide(NewProcessor),
)
