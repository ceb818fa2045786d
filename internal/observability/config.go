package observability

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/creatorpay/internal/config"
)

// Config groups the logging, database statement logging and OTLP export
// settings of a creatorpay process.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	Log   LogConfig
	Query QueryConfig
	OTLP  OTLPConfig
}

type LogConfig struct {
	Level  string
	Format string
}

// QueryConfig drives the gorm statement logger. MoneySlowQuery applies to the
// ledger, transaction, chargeback and payout tables.
type QueryConfig struct {
	Level          string
	SlowQuery      time.Duration
	MoneySlowQuery time.Duration
	LogNotFound    bool
}

type OTLPConfig struct {
	Enabled       bool
	Endpoint      string
	Protocol      string
	SamplingRatio float64
}

// LoadConfig layers the CREATORPAY_* observability variables and the standard
// OTEL_* variables over the process config.
func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "creatorpay"
	}

	protocol := lower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))
	if traces := lower(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		protocol = traces
	}

	return Config{
		ServiceName: serviceName,
		Environment: strings.TrimSpace(getenv("CREATORPAY_ENV", cfg.Environment)),
		Version:     strings.TrimSpace(getenv("CREATORPAY_VERSION", cfg.AppVersion)),
		Log: LogConfig{
			Level:  lower(getenv("LOG_LEVEL", "info")),
			Format: lower(getenv("LOG_FORMAT", "json")),
		},
		Query: QueryConfig{
			Level:          lower(getenv("CREATORPAY_DB_LOG_LEVEL", "warn")),
			SlowQuery:      getenvDuration("CREATORPAY_DB_SLOW_QUERY", 200*time.Millisecond),
			MoneySlowQuery: getenvDuration("CREATORPAY_DB_MONEY_SLOW_QUERY", 50*time.Millisecond),
			LogNotFound:    getenvBool("CREATORPAY_DB_LOG_NOT_FOUND", false),
		},
		OTLP: OTLPConfig{
			Enabled:       getenvBool("OTEL_ENABLED", true),
			Endpoint:      strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)),
			Protocol:      protocol,
			SamplingRatio: clampRatio(getenvFloat("OTEL_SAMPLING_RATIO", 0.1)),
		},
	}
}

// Debug reports whether stack traces and verbose request logs are wanted.
func (c Config) Debug() bool {
	if c.Log.Level == "debug" {
		return true
	}
	switch lower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func clampRatio(ratio float64) float64 {
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

func lower(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func getenv(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return def
}

func getenvBool(key string, def bool) bool {
	parsed, err := strconv.ParseBool(lower(os.Getenv(key)))
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	parsed, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return parsed
}
