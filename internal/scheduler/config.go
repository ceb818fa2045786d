package scheduler

import (
	"time"

	"github.com/smallbiznis/creatorpay/internal/config"
)

// Config controls scheduler cadence. Batch sizes and retention come from the
// hot-reloaded finance config so they can change between ticks.
type Config struct {
	RunInterval     time.Duration
	JobTimeout      time.Duration
	CleanupInterval time.Duration
	EnabledJobs     []string
	LeaderLock      bool
	LeaderLockTTL   time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:     time.Minute,
		JobTimeout:      30 * time.Second,
		CleanupInterval: time.Hour,
		LeaderLockTTL:   2 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = defaults.CleanupInterval
	}
	if c.LeaderLockTTL <= 0 {
		c.LeaderLockTTL = defaults.LeaderLockTTL
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.Scheduler.RunInterval,
		EnabledJobs: cfg.Scheduler.EnabledJobs,
		LeaderLock:  cfg.Scheduler.LeaderLock,
	}.withDefaults()
}
