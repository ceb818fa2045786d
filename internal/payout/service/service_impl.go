package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/config"
	"github.com/smallbiznis/creatorpay/internal/events"
	feescheduledomain "github.com/smallbiznis/creatorpay/internal/feeschedule/domain"
	ledgerdomain "github.com/smallbiznis/creatorpay/internal/ledger/domain"
	"github.com/smallbiznis/creatorpay/internal/money"
	obsmetrics "github.com/smallbiznis/creatorpay/internal/observability/metrics"
	"github.com/smallbiznis/creatorpay/internal/payout/domain"
	"github.com/smallbiznis/creatorpay/internal/providers/pdf"
	dbpkg "github.com/smallbiznis/creatorpay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Finance    *config.FinanceConfigHolder
	Repo       domain.Repository
	Schedules  feescheduledomain.Resolver
	Ledger     ledgerdomain.Service
	Outbox     *events.Outbox
	PDF        pdf.Provider
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	finance    *config.FinanceConfigHolder
	repo       domain.Repository
	schedules  feescheduledomain.Resolver
	ledger     ledgerdomain.Service
	outbox     *events.Outbox
	pdf        pdf.Provider
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payout.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		finance:    p.Finance,
		repo:       p.Repo,
		schedules:  p.Schedules,
		ledger:     p.Ledger,
		outbox:     p.Outbox,
		pdf:        p.PDF,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CalculateEligibility(ctx context.Context, creatorID string, asOf time.Time) (domain.Eligibility, error) {
	creatorID = strings.TrimSpace(creatorID)
	if creatorID == "" {
		return domain.Eligibility{}, domain.ErrInvalidCreator
	}
	if asOf.IsZero() {
		asOf = s.clock.Now()
	}
	asOf = asOf.UTC()

	schedule, err := s.schedules.ActiveSchedule(ctx, asOf)
	if err != nil {
		return domain.Eligibility{}, err
	}
	return s.eligibility(ctx, s.db, creatorID, asOf, schedule, false)
}

// CreatePayout re-derives eligibility and writes the claim in the same
// database transaction. On postgres the unit runs SERIALIZABLE with the
// candidate rows locked; on every dialect the unique payout_items
// transaction_id index rejects a second claim. Conflicts retry the whole
// unit, which then observes the winner's claim.
func (s *Service) CreatePayout(ctx context.Context, creatorID string) (domain.CreatePayoutResult, error) {
	creatorID = strings.TrimSpace(creatorID)
	if creatorID == "" {
		return domain.CreatePayoutResult{}, domain.ErrInvalidCreator
	}

	attempts := s.finance.Get().Payout.ClaimRetries
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := s.claim(ctx, creatorID)
		if err == nil {
			return result, nil
		}
		if !dbpkg.IsRetryableConflict(err) {
			return domain.CreatePayoutResult{}, err
		}
		lastErr = err
		s.log.Warn("payout claim conflict, retrying",
			zap.String("creator_id", creatorID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if err := ctx.Err(); err != nil {
			return domain.CreatePayoutResult{}, err
		}
	}
	return domain.CreatePayoutResult{}, fmt.Errorf("%w: %v", domain.ErrClaimConflict, lastErr)
}

func (s *Service) claim(ctx context.Context, creatorID string) (domain.CreatePayoutResult, error) {
	now := s.clock.Now().UTC()
	schedule, err := s.schedules.ActiveSchedule(ctx, now)
	if err != nil {
		return domain.CreatePayoutResult{}, err
	}

	var opts []*sql.TxOptions
	if dbpkg.IsPostgres(s.db) {
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelSerializable})
	}

	var result domain.CreatePayoutResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lockStart := time.Now()
		elig, err := s.eligibility(ctx, tx, creatorID, now, schedule, true)
		if err != nil {
			return err
		}
		obsmetrics.Scheduler().ObserveDBLockWait(obsmetrics.LockResourcePayoutClaim, time.Since(lockStart))

		result.Eligibility = elig
		if !elig.CanCreatePayout {
			return nil
		}

		payout := domain.Payout{
			ID:               s.genID.Generate(),
			CreatorID:        creatorID,
			PeriodStart:      elig.Transactions[0].OccurredAt.UTC(),
			PeriodEnd:        now,
			GrossTotal:       elig.GrossTotal,
			PlatformFeeTotal: elig.PlatformFeeTotal,
			PayoutAmount:     elig.EligibleAmount,
			Currency:         elig.Transactions[0].Currency,
			Status:           domain.StatusCalculated,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.repo.InsertPayout(ctx, tx, &payout); err != nil {
			return err
		}

		items := make([]domain.PayoutItem, 0, len(elig.Transactions))
		txnIDs := make([]string, 0, len(elig.Transactions))
		for _, t := range elig.Transactions {
			items = append(items, domain.PayoutItem{
				ID:            s.genID.Generate(),
				PayoutID:      payout.ID,
				TransactionID: t.TransactionID,
				Amount:        t.CreatorPayableAmount,
				OccurredAt:    t.OccurredAt.UTC(),
				CreatedAt:     now,
			})
			txnIDs = append(txnIDs, t.TransactionID.String())
		}
		if err := s.repo.InsertItems(ctx, tx, items); err != nil {
			return err
		}

		if err := s.outbox.PublishTx(ctx, tx, events.Event{
			AggregateType: events.AggregatePayout,
			AggregateID:   payout.ID.String(),
			DedupeKey:     "payout_calculated:" + payout.ID.String(),
			OccurredAt:    now,
			Payload: events.PayoutCalculated{
				PayoutID:         payout.ID.String(),
				CreatorID:        payout.CreatorID,
				PeriodStart:      payout.PeriodStart,
				PeriodEnd:        payout.PeriodEnd,
				GrossTotal:       payout.GrossTotal,
				PlatformFeeTotal: payout.PlatformFeeTotal,
				PayoutAmount:     payout.PayoutAmount,
				Currency:         payout.Currency,
				TransactionIDs:   txnIDs,
			},
		}); err != nil {
			return err
		}

		payout.Items = items
		result.Payout = &payout
		result.Created = true
		return nil
	}, opts...)
	if err != nil {
		return domain.CreatePayoutResult{}, err
	}

	if result.Created {
		s.obsMetrics.RecordPayout(ctx, string(domain.StatusCalculated))
		s.log.Info("payout calculated",
			zap.String("payout_id", result.Payout.ID.String()),
			zap.String("creator_id", creatorID),
			zap.Int64("payout_amount", result.Payout.PayoutAmount),
			zap.Int("items", len(result.Payout.Items)),
		)
	}
	return result, nil
}

func (s *Service) eligibility(ctx context.Context, db *gorm.DB, creatorID string, asOf time.Time, schedule feescheduledomain.FeeSchedule, lock bool) (domain.Eligibility, error) {
	release := schedule.HoldReleaseDate(asOf)
	rows, err := s.repo.EligibleTransactions(ctx, db, creatorID, release, lock)
	if err != nil {
		return domain.Eligibility{}, err
	}

	elig := domain.Eligibility{
		CreatorID:       creatorID,
		AsOf:            asOf,
		HoldReleaseDate: release,
		FeeScheduleID:   schedule.ID,
		MinPayoutAmount: schedule.MinPayoutAmount,
		EligibleCount:   len(rows),
		Transactions:    rows,
	}
	for _, r := range rows {
		if elig.EligibleAmount, err = money.Add(elig.EligibleAmount, r.CreatorPayableAmount); err != nil {
			return domain.Eligibility{}, err
		}
		if elig.GrossTotal, err = money.Add(elig.GrossTotal, r.GrossAmount); err != nil {
			return domain.Eligibility{}, err
		}
		if elig.PlatformFeeTotal, err = money.Add(elig.PlatformFeeTotal, r.PlatformFeeAmount); err != nil {
			return domain.Eligibility{}, err
		}
	}

	switch {
	case len(rows) == 0 || elig.EligibleAmount <= 0:
		elig.Reason = domain.ReasonNoEligibleFunds
		elig.Shortfall = schedule.MinPayoutAmount
	case elig.EligibleAmount < schedule.MinPayoutAmount:
		elig.Reason = domain.ReasonBelowMinimumPayout
		elig.Shortfall = schedule.MinPayoutAmount - elig.EligibleAmount
	default:
		elig.Reason = domain.ReasonEligible
		elig.CanCreatePayout = true
	}
	return elig, nil
}

// MarkSent records the transfer outcome and books settlement per claimed
// transaction. Repeating it with the same transfer id returns the payout.
//
// The transfer has already left, so items whose transaction was refunded or
// charged back after the claim are still settled. They are reported through
// PayoutClawbackRequired and leave the creator's payable negative until
// recovered.
func (s *Service) MarkSent(ctx context.Context, payoutID snowflake.ID, providerTransferID string) (domain.Payout, error) {
	providerTransferID = strings.TrimSpace(providerTransferID)
	if providerTransferID == "" {
		return domain.Payout{}, domain.ErrInvalidTransferID
	}

	var (
		result   domain.Payout
		sent     bool
		clawback int64
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lockStart := time.Now()
		p, err := s.repo.FindByIDForUpdate(ctx, tx, payoutID)
		if err != nil {
			return err
		}
		obsmetrics.Scheduler().ObserveDBLockWait(obsmetrics.LockResourcePayoutByID, time.Since(lockStart))
		if p == nil {
			return domain.ErrNotFound
		}
		if p.Status == domain.StatusSent && p.ProviderTransferID != nil && *p.ProviderTransferID == providerTransferID {
			result = *p
			return nil
		}
		if !p.Status.Sendable() {
			return domain.ErrInvalidTransition
		}

		from := p.Status
		now := s.clock.Now().UTC()
		p.Status = domain.StatusSent
		p.ProviderTransferID = &providerTransferID
		p.SentAt = &now
		p.NextRetryAt = nil
		p.UpdatedAt = now
		ok, err := s.repo.Update(ctx, tx, p, from)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}

		items, err := s.repo.ListItems(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if item.Amount <= 0 {
				continue
			}
			if _, err := s.ledger.RecordEntriesTx(ctx, tx, ledgerdomain.RecordRequest{
				SourceType:    ledgerdomain.SourceTypePayout,
				SourceID:      item.ID,
				TransactionID: item.TransactionID,
				Currency:      p.Currency,
				OccurredAt:    now,
				Lines:         ledgerdomain.SettlementLines(p.CreatorID, item.Amount),
			}); err != nil {
				return err
			}
		}

		reversed, err := s.repo.ReversedItems(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		clawItems := make([]events.ClawbackItem, 0, len(reversed))
		for _, r := range reversed {
			if clawback, err = money.Add(clawback, r.Amount); err != nil {
				return err
			}
			clawItems = append(clawItems, events.ClawbackItem{
				TransactionID:     r.TransactionID.String(),
				TransactionStatus: r.TransactionStatus,
				Amount:            r.Amount,
			})
		}

		if err := s.outbox.PublishTx(ctx, tx, events.Event{
			AggregateType: events.AggregatePayout,
			AggregateID:   p.ID.String(),
			DedupeKey:     "payout_sent:" + p.ID.String(),
			OccurredAt:    now,
			Payload: events.PayoutSent{
				PayoutID:           p.ID.String(),
				CreatorID:          p.CreatorID,
				PayoutAmount:       p.PayoutAmount,
				Currency:           p.Currency,
				ProviderTransferID: providerTransferID,
				SentAt:             now,
				ClawbackAmount:     clawback,
			},
		}); err != nil {
			return err
		}

		if len(clawItems) > 0 {
			if err := s.outbox.PublishTx(ctx, tx, events.Event{
				AggregateType: events.AggregatePayout,
				AggregateID:   p.ID.String(),
				DedupeKey:     "payout_clawback_required:" + p.ID.String(),
				OccurredAt:    now,
				Payload: events.PayoutClawbackRequired{
					PayoutID:           p.ID.String(),
					CreatorID:          p.CreatorID,
					ProviderTransferID: providerTransferID,
					ClawbackAmount:     clawback,
					Currency:           p.Currency,
					Items:              clawItems,
					SentAt:             now,
				},
			}); err != nil {
				return err
			}
		}

		p.Items = items
		result = *p
		sent = true
		return nil
	})
	if err != nil {
		return domain.Payout{}, err
	}

	if sent {
		s.obsMetrics.RecordPayout(ctx, string(domain.StatusSent))
		s.log.Info("payout sent",
			zap.String("payout_id", result.ID.String()),
			zap.String("creator_id", result.CreatorID),
			zap.String("provider_transfer_id", providerTransferID),
		)
		if clawback > 0 {
			s.log.Warn("payout sent with reversed items, clawback required",
				zap.String("payout_id", result.ID.String()),
				zap.String("creator_id", result.CreatorID),
				zap.Int64("clawback_amount", clawback),
			)
		}
	}
	return result, nil
}

// MarkFailed applies the fixed-backoff retry policy: below MaxAttempts the
// payout waits in PENDING for RetryBackoff, otherwise it is FAILED for good.
func (s *Service) MarkFailed(ctx context.Context, payoutID snowflake.ID, reason string) (domain.Payout, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Payout{}, domain.ErrInvalidFailureReason
	}
	policy := s.finance.Get().Payout

	var result domain.Payout
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.repo.FindByIDForUpdate(ctx, tx, payoutID)
		if err != nil {
			return err
		}
		if p == nil {
			return domain.ErrNotFound
		}
		if !p.Status.Sendable() {
			return domain.ErrInvalidTransition
		}

		from := p.Status
		now := s.clock.Now().UTC()
		p.RetryCount++
		p.FailureReason = &reason
		p.UpdatedAt = now
		if p.RetryCount < policy.MaxAttempts {
			next := now.Add(policy.RetryBackoff)
			p.Status = domain.StatusPending
			p.NextRetryAt = &next
		} else {
			p.Status = domain.StatusFailed
			p.NextRetryAt = nil
		}

		ok, err := s.repo.Update(ctx, tx, p, from)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}

		if err := s.outbox.PublishTx(ctx, tx, events.Event{
			AggregateType: events.AggregatePayout,
			AggregateID:   p.ID.String(),
			DedupeKey:     "payout_failed:" + p.ID.String() + ":" + strconv.Itoa(p.RetryCount),
			OccurredAt:    now,
			Payload: events.PayoutFailed{
				PayoutID:     p.ID.String(),
				CreatorID:    p.CreatorID,
				PayoutAmount: p.PayoutAmount,
				Currency:     p.Currency,
				Reason:       reason,
				Status:       string(p.Status),
				RetryCount:   p.RetryCount,
				NextRetryAt:  p.NextRetryAt,
			},
		}); err != nil {
			return err
		}

		result = *p
		return nil
	})
	if err != nil {
		return domain.Payout{}, err
	}

	s.obsMetrics.RecordPayout(ctx, string(result.Status))
	fields := []zap.Field{
		zap.String("payout_id", result.ID.String()),
		zap.String("creator_id", result.CreatorID),
		zap.Int("retry_count", result.RetryCount),
		zap.String("reason", reason),
	}
	if result.Status == domain.StatusFailed {
		s.log.Error("payout failed permanently", fields...)
	} else {
		s.log.Warn("payout transfer failed, retry scheduled", append(fields, zap.Timep("next_retry_at", result.NextRetryAt))...)
	}
	return result, nil
}

func (s *Service) GetPendingRetry(ctx context.Context) ([]domain.Payout, error) {
	return s.repo.DueForRetry(ctx, s.db, s.clock.Now())
}

// CalculateAllPayouts runs CreatePayout per creator in its own database
// transaction; one creator's failure is reported and the batch moves on.
func (s *Service) CalculateAllPayouts(ctx context.Context) (domain.BatchResult, error) {
	creators, err := s.repo.CreatorsWithUnclaimed(ctx, s.db)
	if err != nil {
		return domain.BatchResult{}, err
	}

	result := domain.BatchResult{Errors: []domain.BatchError{}}
	for _, creatorID := range creators {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		res, err := s.CreatePayout(ctx, creatorID)
		if err != nil {
			result.Errors = append(result.Errors, domain.BatchError{CreatorID: creatorID, Error: err.Error()})
			s.log.Error("payout calculation failed",
				zap.String("creator_id", creatorID),
				zap.Error(err),
			)
			continue
		}
		if res.Created {
			result.Created++
		} else {
			result.Skipped++
		}
	}

	s.log.Info("payout batch completed",
		zap.Int("creators", len(creators)),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

func (s *Service) Get(ctx context.Context, payoutID snowflake.ID) (domain.Payout, error) {
	p, err := s.repo.FindByID(ctx, s.db, payoutID)
	if err != nil {
		return domain.Payout{}, err
	}
	if p == nil {
		return domain.Payout{}, domain.ErrNotFound
	}
	items, err := s.repo.ListItems(ctx, s.db, p.ID)
	if err != nil {
		return domain.Payout{}, err
	}
	p.Items = items
	return *p, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Payout, error) {
	req.CreatorID = strings.TrimSpace(req.CreatorID)
	return s.repo.List(ctx, s.db, req)
}

func (s *Service) RenderStatement(ctx context.Context, payoutID snowflake.ID) ([]byte, error) {
	if s.pdf == nil {
		return nil, domain.ErrStatementUnavailable
	}
	p, err := s.Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}

	data := pdf.StatementData{
		PayoutID:         p.ID.String(),
		CreatorID:        p.CreatorID,
		Status:           string(p.Status),
		PeriodStart:      p.PeriodStart.Format(time.DateOnly),
		PeriodEnd:        p.PeriodEnd.Format(time.DateOnly),
		Currency:         p.Currency,
		GrossTotal:       p.GrossTotal,
		PlatformFeeTotal: p.PlatformFeeTotal,
		PayoutAmount:     p.PayoutAmount,
	}
	if p.ProviderTransferID != nil {
		data.ProviderTransferID = *p.ProviderTransferID
	}
	if p.SentAt != nil {
		data.SentAt = p.SentAt.Format(time.RFC3339)
	}
	for _, item := range p.Items {
		data.Items = append(data.Items, pdf.StatementItem{
			TransactionID: item.TransactionID.String(),
			OccurredAt:    item.OccurredAt.Format(time.DateOnly),
			Amount:        item.Amount,
		})
	}

	doc, err := s.pdf.GeneratePayoutStatement(ctx, data)
	if err != nil {
		if errors.Is(err, pdf.ErrEmptyStatement) {
			return nil, domain.ErrStatementUnavailable
		}
		return nil, err
	}
	return doc, nil
}
