package outbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/IBM/sarama"
	"github.com/smallbiznis/creatorpay/internal/events"
	"go.uber.org/zap"
)

// KafkaPublisher produces each event to one topic keyed by aggregate id, so
// events of the same transaction or payout stay ordered within a partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.Logger
}

func NewKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("%w: kafka brokers are required", ErrPublisherConfig)
	}
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Version = sarama.V2_8_0_0
	return sarama.NewSyncProducer(brokers, cfg)
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string, log *zap.Logger) (*KafkaPublisher, error) {
	topic = strings.TrimSpace(topic)
	if producer == nil || topic == "" {
		return nil, fmt.Errorf("%w: kafka producer and topic are required", ErrPublisherConfig)
	}
	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
		log:      log.Named("outbox.kafka"),
	}, nil
}

func (p *KafkaPublisher) Name() string { return PublisherKafka }

func (p *KafkaPublisher) Publish(ctx context.Context, evt events.OutboxEvent) error {
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(evt.AggregateID),
		Value: sarama.ByteEncoder(evt.Payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_id"), Value: []byte(evt.ID.String())},
			{Key: []byte("event_type"), Value: []byte(evt.EventType)},
		},
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return err
	}
	p.log.Debug("event produced",
		zap.String("event_id", evt.ID.String()),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
