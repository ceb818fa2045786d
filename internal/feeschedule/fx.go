package feeschedule

import (
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/feeschedule/domain"
	"github.com/smallbiznis/creatorpay/internal/feeschedule/repository"
	"github.com/smallbiznis/creatorpay/internal/feeschedule/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const scheduleCacheTTL = 5 * time.Minute

type cacheParams struct {
	fx.In

	Clock clock.Clock
	Log   *zap.Logger
	Redis *redis.Client `optional:"true"`
}

func provideCache(p cacheParams) domain.ScheduleCache {
	if p.Redis != nil {
		return service.NewRedisCache(p.Redis, scheduleCacheTTL, p.Log)
	}
	return service.NewMemoryCache(p.Clock, scheduleCacheTTL)
}

var Module = fx.Module("feeschedule.service",
	fx.Provide(repository.Provide),
	fx.Provide(provideCache),
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) domain.Resolver { return s }),
	fx.Provide(func(s *service.Service) domain.TierResolver { return s }),
)
