package outbox

import (
	"context"

	"github.com/smallbiznis/creatorpay/internal/events"
	"go.uber.org/zap"
)

// ConsolePublisher writes events to the process log. Used in development
// and as the fallback when no transport is configured.
type ConsolePublisher struct {
	log *zap.Logger
}

func NewConsolePublisher(log *zap.Logger) *ConsolePublisher {
	return &ConsolePublisher{log: log.Named("outbox.console")}
}

func (p *ConsolePublisher) Name() string { return PublisherConsole }

func (p *ConsolePublisher) Publish(ctx context.Context, evt events.OutboxEvent) error {
	p.log.Info("outbox event",
		zap.String("event_id", evt.ID.String()),
		zap.String("event_type", string(evt.EventType)),
		zap.String("aggregate_type", evt.AggregateType),
		zap.String("aggregate_id", evt.AggregateID),
		zap.ByteString("payload", evt.Payload),
	)
	return nil
}
