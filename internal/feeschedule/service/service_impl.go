package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/feeschedule/domain"
	"github.com/smallbiznis/creatorpay/internal/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
	Cache domain.ScheduleCache
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
	cache domain.ScheduleCache
}

func NewService(p Params) *Service {
	cache := p.Cache
	if cache == nil {
		cache = NewMemoryCache(p.Clock, time.Minute)
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("feeschedule.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		cache: cache,
	}
}

func (s *Service) ActiveSchedule(ctx context.Context, asOf time.Time) (domain.FeeSchedule, error) {
	timeline, err := s.timeline(ctx)
	if err != nil {
		return domain.FeeSchedule{}, err
	}
	schedule, ok := domain.Active(timeline, asOf.UTC())
	if !ok {
		return domain.FeeSchedule{}, domain.ErrNoActiveSchedule
	}
	return schedule, nil
}

func (s *Service) ListSchedules(ctx context.Context) ([]domain.FeeSchedule, error) {
	return s.repo.ListSchedules(ctx, s.db)
}

// CreateSchedule appends a schedule that takes effect now or later. Past
// schedules are immutable because already-booked transactions reference them.
func (s *Service) CreateSchedule(ctx context.Context, req domain.CreateScheduleRequest) (domain.FeeSchedule, error) {
	if err := validateScheduleRequest(req); err != nil {
		return domain.FeeSchedule{}, err
	}

	now := s.clock.Now().UTC()
	effectiveFrom := req.EffectiveFrom.UTC().Truncate(time.Second)
	if effectiveFrom.Before(now.Truncate(time.Second)) {
		return domain.FeeSchedule{}, domain.ErrScheduleInPast
	}

	schedule := domain.FeeSchedule{
		ID:              s.genID.Generate(),
		EffectiveFrom:   effectiveFrom,
		StandardFeeBps:  req.StandardFeeBps,
		VIPFeeBps:       req.VIPFeeBps,
		HoldDays:        req.HoldDays,
		MinPayoutAmount: req.MinPayoutAmount,
		PayoutFrequency: req.PayoutFrequency,
		CreatedAt:       now,
	}
	if schedule.PayoutFrequency == "" {
		schedule.PayoutFrequency = domain.PayoutFrequencyWeekly
	}

	inserted, err := s.repo.InsertSchedule(ctx, s.db, &schedule)
	if err != nil {
		return domain.FeeSchedule{}, err
	}
	if !inserted {
		return domain.FeeSchedule{}, domain.ErrDuplicateEffectiveFrom
	}

	s.cache.Invalidate(ctx)
	s.log.Info("fee schedule created",
		zap.String("fee_schedule_id", schedule.ID.String()),
		zap.Time("effective_from", schedule.EffectiveFrom),
		zap.Int64("standard_fee_bps", schedule.StandardFeeBps),
		zap.Int64("vip_fee_bps", schedule.VIPFeeBps),
	)
	return schedule, nil
}

func (s *Service) TierFor(ctx context.Context, creatorID string) (domain.Tier, error) {
	creatorID = strings.TrimSpace(creatorID)
	if creatorID == "" {
		return "", domain.ErrInvalidCreator
	}
	row, err := s.repo.FindTier(ctx, s.db, creatorID)
	if err != nil {
		return "", err
	}
	if row == nil {
		return domain.TierStandard, nil
	}
	return row.Tier, nil
}

func (s *Service) SetTier(ctx context.Context, creatorID string, tier domain.Tier) (domain.CreatorTier, error) {
	creatorID = strings.TrimSpace(creatorID)
	if creatorID == "" {
		return domain.CreatorTier{}, domain.ErrInvalidCreator
	}
	tier = domain.Tier(strings.ToLower(strings.TrimSpace(string(tier))))
	if tier != domain.TierStandard && tier != domain.TierVIP {
		return domain.CreatorTier{}, domain.ErrInvalidTier
	}

	row := domain.CreatorTier{
		CreatorID: creatorID,
		Tier:      tier,
		UpdatedAt: s.clock.Now().UTC(),
	}
	if err := s.repo.UpsertTier(ctx, s.db, &row); err != nil {
		return domain.CreatorTier{}, err
	}
	return row, nil
}

func (s *Service) timeline(ctx context.Context) ([]domain.FeeSchedule, error) {
	if cached, ok := s.cache.Get(ctx); ok {
		return cached, nil
	}
	timeline, err := s.repo.ListSchedules(ctx, s.db)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, timeline)
	return timeline, nil
}

func validateScheduleRequest(req domain.CreateScheduleRequest) error {
	if req.EffectiveFrom.IsZero() {
		return domain.ErrInvalidSchedule
	}
	for _, bps := range []int64{req.StandardFeeBps, req.VIPFeeBps} {
		if bps < 0 || bps > money.BasisPointsDenominator {
			return domain.ErrInvalidSchedule
		}
	}
	if req.HoldDays < 0 || req.MinPayoutAmount < 0 {
		return domain.ErrInvalidSchedule
	}
	switch req.PayoutFrequency {
	case "", domain.PayoutFrequencyWeekly, domain.PayoutFrequencyMonthly:
	default:
		return domain.ErrInvalidPayoutFrequency
	}
	return nil
}

var (
	_ domain.Resolver     = (*Service)(nil)
	_ domain.TierResolver = (*Service)(nil)
)
