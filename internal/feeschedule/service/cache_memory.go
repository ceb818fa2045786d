package service

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/feeschedule/domain"
)

// MemoryCache is a process-local TTL cache for the fee timeline.
type MemoryCache struct {
	mu        sync.RWMutex
	clock     clock.Clock
	ttl       time.Duration
	timeline  []domain.FeeSchedule
	expiresAt time.Time
}

func NewMemoryCache(clk clock.Clock, ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &MemoryCache{clock: clk, ttl: ttl}
}

func (c *MemoryCache) Get(_ context.Context) ([]domain.FeeSchedule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.timeline == nil || !c.clock.Now().Before(c.expiresAt) {
		return nil, false
	}
	out := make([]domain.FeeSchedule, len(c.timeline))
	copy(out, c.timeline)
	return out, true
}

func (c *MemoryCache) Set(_ context.Context, timeline []domain.FeeSchedule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeline = make([]domain.FeeSchedule, len(timeline))
	copy(c.timeline, timeline)
	c.expiresAt = c.clock.Now().Add(c.ttl)
}

func (c *MemoryCache) Invalidate(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeline = nil
	c.expiresAt = time.Time{}
}
