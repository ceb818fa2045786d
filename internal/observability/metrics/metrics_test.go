package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("creator_id", "cr_123"),
		attribute.String("provider", "stripe"),
		attribute.String("status", "SENT"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "creator_id" {
			t.Fatalf("expected creator_id to be dropped")
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordTransaction(ctx, "stripe", "subscription", true)
	m.RecordLedgerJournal(ctx, "transaction")
	m.RecordChargeback(ctx, "RECEIVED")
	m.RecordPayout(ctx, "CALCULATED")
	m.RecordOutboxPublish(ctx, "console", "PayoutSent", errors.New("boom"))

	var h *HTTPMetrics
	h.Observe(ctx, "GET", "/health", 200, time.Millisecond)
}

func TestNewWithNoopProvider(t *testing.T) {
	provider := noop.NewMeterProvider()
	m, err := New(Config{ServiceName: "creatorpay"}, provider)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordTransaction(context.Background(), "stripe", "tip", false)

	h, err := NewHTTPMetrics(Config{}, provider)
	if err != nil {
		t.Fatalf("new http metrics: %v", err)
	}
	h.Observe(context.Background(), "post", "/internal/payments", 201, time.Second)
}
