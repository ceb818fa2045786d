package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// FinanceConfig carries the operational knobs that may change without a redeploy.
type FinanceConfig struct {
	Outbox OutboxPolicy `mapstructure:"outbox"`
	Payout PayoutPolicy `mapstructure:"payout"`
}

type OutboxPolicy struct {
	BatchSize     int `mapstructure:"batchSize"`
	MaxRetries    int `mapstructure:"maxRetries"`
	RetentionDays int `mapstructure:"retentionDays"`
}

type PayoutPolicy struct {
	MaxAttempts  int           `mapstructure:"maxAttempts"`
	RetryBackoff time.Duration `mapstructure:"retryBackoff"`
	ClaimRetries int           `mapstructure:"claimRetries"`
}

func DefaultFinanceConfig() FinanceConfig {
	return FinanceConfig{
		Outbox: OutboxPolicy{
			BatchSize:     100,
			MaxRetries:    5,
			RetentionDays: 30,
		},
		Payout: PayoutPolicy{
			MaxAttempts:  3,
			RetryBackoff: 24 * time.Hour,
			ClaimRetries: 3,
		},
	}
}

type FinanceConfigHolder struct {
	current atomic.Value // holds FinanceConfig
}

// NewStaticFinanceConfigHolder pins a config, used by tests and one-shot tools.
func NewStaticFinanceConfigHolder(cfg FinanceConfig) *FinanceConfigHolder {
	holder := &FinanceConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewFinanceConfigHolder(log *zap.Logger) (*FinanceConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("finance.config")

	v := viper.New()
	v.SetConfigName("finance")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/creatorpay")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CREATORPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultFinanceConfig()
	v.SetDefault("finance.outbox.batchSize", defaults.Outbox.BatchSize)
	v.SetDefault("finance.outbox.maxRetries", defaults.Outbox.MaxRetries)
	v.SetDefault("finance.outbox.retentionDays", defaults.Outbox.RetentionDays)
	v.SetDefault("finance.payout.maxAttempts", defaults.Payout.MaxAttempts)
	v.SetDefault("finance.payout.retryBackoff", defaults.Payout.RetryBackoff.String())
	v.SetDefault("finance.payout.claimRetries", defaults.Payout.ClaimRetries)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg FinanceConfig
	if err := v.UnmarshalKey("finance", &cfg); err != nil {
		return nil, err
	}
	if err := validateFinanceConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticFinanceConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated FinanceConfig
		if err := v.UnmarshalKey("finance", &updated); err != nil {
			log.Warn("finance config reload failed", zap.Error(err))
			return
		}
		if err := validateFinanceConfig(updated); err != nil {
			log.Warn("invalid finance config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("finance config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *FinanceConfigHolder) Get() FinanceConfig {
	if h == nil {
		return DefaultFinanceConfig()
	}
	cfg, ok := h.current.Load().(FinanceConfig)
	if !ok {
		return DefaultFinanceConfig()
	}
	return cfg
}

func validateFinanceConfig(cfg FinanceConfig) error {
	if cfg.Outbox.BatchSize <= 0 {
		return errors.New("finance.outbox.batchSize must be positive")
	}
	if cfg.Outbox.MaxRetries <= 0 {
		return errors.New("finance.outbox.maxRetries must be positive")
	}
	if cfg.Outbox.RetentionDays <= 0 {
		return errors.New("finance.outbox.retentionDays must be positive")
	}
	if cfg.Payout.MaxAttempts <= 0 {
		return errors.New("finance.payout.maxAttempts must be positive")
	}
	if cfg.Payout.RetryBackoff <= 0 {
		return errors.New("finance.payout.retryBackoff must be positive")
	}
	if cfg.Payout.ClaimRetries <= 0 {
		return errors.New("finance.payout.claimRetries must be positive")
	}
	return nil
}
