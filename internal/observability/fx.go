package observability

import (
	"github.com/smallbiznis/creatorpay/internal/observability/logger"
	"github.com/smallbiznis/creatorpay/internal/observability/metrics"
	"github.com/smallbiznis/creatorpay/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// Module wires logging, statement logging, tracing and metrics for the API
// and the scheduler binaries.
var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.loggerConfig,
		logger.New,
		Config.queryLogConfig,
		Config.tracingConfig,
		tracing.NewProvider,
		Config.metricsConfig,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
	fx.Invoke(metrics.SchedulerWithConfig),
)

func (c Config) loggerConfig() logger.Config {
	return logger.Config{
		ServiceName:         c.ServiceName,
		Environment:         c.Environment,
		Version:             c.Version,
		Level:               c.Log.Level,
		Format:              c.Log.Format,
		Debug:               c.Debug(),
		IncludeCaller:       true,
		IncludeStackOnError: c.Debug(),
	}
}

func (c Config) queryLogConfig() logger.QueryLogConfig {
	return logger.QueryLogConfig{
		Level:          logger.ParseQueryLogLevel(c.Query.Level),
		SlowQuery:      c.Query.SlowQuery,
		MoneySlowQuery: c.Query.MoneySlowQuery,
		LogNotFound:    c.Query.LogNotFound,
	}
}

func (c Config) tracingConfig() tracing.Config {
	return tracing.Config{
		Enabled:          c.OTLP.Enabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.OTLP.Endpoint,
		ExporterProtocol: c.OTLP.Protocol,
		SamplingRatio:    c.OTLP.SamplingRatio,
	}
}

func (c Config) metricsConfig() metrics.Config {
	return metrics.Config{
		Enabled:          c.OTLP.Enabled,
		ExporterEndpoint: c.OTLP.Endpoint,
		ExporterProtocol: c.OTLP.Protocol,
		ServiceName:      c.ServiceName,
		Environment:      c.Environment,
	}
}
