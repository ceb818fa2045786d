package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	transactions  metric.Int64Counter
	ledgerJournal metric.Int64Counter
	chargebacks   metric.Int64Counter
	payouts       metric.Int64Counter
	outboxPublish metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "creatorpay"
	}
	meter := provider.Meter(name)

	transactions, err := meter.Int64Counter("creatorpay_transactions_total")
	if err != nil {
		return nil, err
	}
	ledgerJournal, err := meter.Int64Counter("creatorpay_ledger_journals_total")
	if err != nil {
		return nil, err
	}
	chargebacks, err := meter.Int64Counter("creatorpay_chargebacks_total")
	if err != nil {
		return nil, err
	}
	payouts, err := meter.Int64Counter("creatorpay_payouts_total")
	if err != nil {
		return nil, err
	}
	outboxPublish, err := meter.Int64Counter("creatorpay_outbox_publish_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		transactions:  transactions,
		ledgerJournal: ledgerJournal,
		chargebacks:   chargebacks,
		payouts:       payouts,
		outboxPublish: outboxPublish,
	}, nil
}

// RecordTransaction counts ingested payments; replays are tagged separately.
func (m *Metrics) RecordTransaction(ctx context.Context, provider, productType string, created bool) {
	if m == nil {
		return
	}
	outcome := "created"
	if !created {
		outcome = "replayed"
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("product_type", strings.TrimSpace(productType)),
		attribute.String("outcome", outcome),
	)
	m.transactions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLedgerJournal increments ledger journal counts.
func (m *Metrics) RecordLedgerJournal(ctx context.Context, sourceType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source_type", strings.TrimSpace(sourceType)))
	m.ledgerJournal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordChargeback(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.chargebacks.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordPayout(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.payouts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOutboxPublish counts delivery attempts per publisher and outcome.
func (m *Metrics) RecordOutboxPublish(ctx context.Context, publisher, eventType string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	attrs := FilterAttributes(
		attribute.String("publisher", strings.TrimSpace(publisher)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("outcome", outcome),
	)
	m.outboxPublish.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":     {},
	"method":       {},
	"status_code":  {},
	"provider":     {},
	"product_type": {},
	"event_type":   {},
	"publisher":    {},
	"source_type":  {},
	"status":       {},
	"outcome":      {},
	"reason":       {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
