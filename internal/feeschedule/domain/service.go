package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	ListSchedules(ctx context.Context, db *gorm.DB) ([]FeeSchedule, error)
	InsertSchedule(ctx context.Context, db *gorm.DB, schedule *FeeSchedule) (bool, error)
	FindTier(ctx context.Context, db *gorm.DB, creatorID string) (*CreatorTier, error)
	UpsertTier(ctx context.Context, db *gorm.DB, tier *CreatorTier) error
}

type Resolver interface {
	ActiveSchedule(ctx context.Context, asOf time.Time) (FeeSchedule, error)
	CreateSchedule(ctx context.Context, req CreateScheduleRequest) (FeeSchedule, error)
	ListSchedules(ctx context.Context) ([]FeeSchedule, error)
}

type TierResolver interface {
	TierFor(ctx context.Context, creatorID string) (Tier, error)
	SetTier(ctx context.Context, creatorID string, tier Tier) (CreatorTier, error)
}

// ScheduleCache holds the full fee timeline, oldest first.
type ScheduleCache interface {
	Get(ctx context.Context) ([]FeeSchedule, bool)
	Set(ctx context.Context, timeline []FeeSchedule)
	Invalidate(ctx context.Context)
}
