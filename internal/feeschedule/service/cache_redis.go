package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/creatorpay/internal/feeschedule/domain"
	"go.uber.org/zap"
)

const redisTimelineKey = "creatorpay:fee_schedules:timeline"

// RedisCache shares the fee timeline across instances so a new schedule
// created on one node is seen by all after Invalidate.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisCache{client: client, ttl: ttl, log: log.Named("feeschedule.cache")}
}

func (c *RedisCache) Get(ctx context.Context) ([]domain.FeeSchedule, bool) {
	raw, err := c.client.Get(ctx, redisTimelineKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("fee schedule cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var timeline []domain.FeeSchedule
	if err := json.Unmarshal(raw, &timeline); err != nil {
		c.log.Warn("fee schedule cache decode failed", zap.Error(err))
		return nil, false
	}
	return timeline, true
}

func (c *RedisCache) Set(ctx context.Context, timeline []domain.FeeSchedule) {
	raw, err := json.Marshal(timeline)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisTimelineKey, raw, c.ttl).Err(); err != nil {
		c.log.Warn("fee schedule cache write failed", zap.Error(err))
	}
}

func (c *RedisCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, redisTimelineKey).Err(); err != nil {
		c.log.Warn("fee schedule cache invalidate failed", zap.Error(err))
	}
}
