package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/config"
	"github.com/smallbiznis/creatorpay/internal/events"
	"github.com/smallbiznis/creatorpay/internal/fee"
	feescheduledomain "github.com/smallbiznis/creatorpay/internal/feeschedule/domain"
	ledgerdomain "github.com/smallbiznis/creatorpay/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/creatorpay/internal/observability/metrics"
	"github.com/smallbiznis/creatorpay/internal/transaction/domain"
	"github.com/smallbiznis/creatorpay/pkg/db/pagination"
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
	Cfg        config.Config
	Repo       domain.Repository
	Schedules  feescheduledomain.Resolver
	Tiers      feescheduledomain.TierResolver
	Ledger     ledgerdomain.Service
	Outbox     *events.Outbox
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	currency   string
	repo       domain.Repository
	schedules  feescheduledomain.Resolver
	tiers      feescheduledomain.TierResolver
	ledger     ledgerdomain.Service
	outbox     *events.Outbox
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("transaction.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		currency:   strings.ToUpper(strings.TrimSpace(p.Cfg.SettlementCurrency)),
		repo:       p.Repo,
		schedules:  p.Schedules,
		tiers:      p.Tiers,
		ledger:     p.Ledger,
		outbox:     p.Outbox,
		obsMetrics: p.ObsMetrics,
	}
}

// CreateTransaction ingests one provider payment notification. Delivering the
// same provider event twice returns the stored transaction with created=false
// and writes nothing.
func (s *Service) CreateTransaction(ctx context.Context, req domain.CreateTransactionRequest) (domain.Transaction, bool, error) {
	req, err := s.normalizeCreateRequest(req)
	if err != nil {
		return domain.Transaction{}, false, err
	}

	existing, err := s.repo.FindByProviderEventID(ctx, s.db, req.ProviderEventID)
	if err != nil {
		return domain.Transaction{}, false, err
	}
	if existing != nil {
		s.obsMetrics.RecordTransaction(ctx, existing.Provider, string(existing.ProductType), false)
		return *existing, false, nil
	}

	schedule, err := s.schedules.ActiveSchedule(ctx, req.OccurredAt)
	if err != nil {
		return domain.Transaction{}, false, err
	}
	tier, err := s.tiers.TierFor(ctx, req.CreatorID)
	if err != nil {
		return domain.Transaction{}, false, err
	}
	feeBps := feescheduledomain.FeeBpsFor(schedule, tier)

	split, err := fee.Calculate(req.GrossAmount, feeBps, req.ProcessorFeeAmount)
	if err != nil {
		return domain.Transaction{}, false, err
	}

	now := s.clock.Now().UTC()
	candidate := domain.Transaction{
		ID:                   s.genID.Generate(),
		CreatorID:            req.CreatorID,
		FanUserID:            req.FanUserID,
		ProductType:          req.ProductType,
		GrossAmount:          split.GrossAmount,
		AppliedFeeBps:        split.PlatformFeeBps,
		PlatformFeeAmount:    split.PlatformFeeAmount,
		ProcessorFeeAmount:   split.ProcessorFeeAmount,
		CreatorPayableAmount: split.CreatorPayableAmount,
		Currency:             req.Currency,
		Status:               domain.StatusSucceeded,
		Provider:             req.Provider,
		ProviderPaymentID:    req.ProviderPaymentID,
		ProviderEventID:      req.ProviderEventID,
		FeeScheduleID:        schedule.ID,
		OccurredAt:           req.OccurredAt,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	var (
		stored  domain.Transaction
		created bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		stored, created, err = s.repo.InsertIfAbsent(ctx, tx, &candidate)
		if err != nil {
			return err
		}
		if !created {
			return nil
		}

		lines, err := ledgerdomain.PaymentLines(
			stored.CreatorID,
			stored.GrossAmount,
			stored.PlatformFeeAmount,
			stored.ProcessorFeeAmount,
			stored.CreatorPayableAmount,
		)
		if err != nil {
			return err
		}
		if _, err := s.ledger.RecordEntriesTx(ctx, tx, ledgerdomain.RecordRequest{
			SourceType:    ledgerdomain.SourceTypeTransaction,
			SourceID:      stored.ID,
			TransactionID: stored.ID,
			Currency:      stored.Currency,
			OccurredAt:    stored.OccurredAt,
			Lines:         lines,
		}); err != nil {
			return err
		}

		return s.outbox.PublishTx(ctx, tx, events.Event{
			AggregateType: events.AggregateTransaction,
			AggregateID:   stored.ID.String(),
			DedupeKey:     "transaction_created:" + stored.ID.String(),
			OccurredAt:    stored.OccurredAt,
			Payload:       transactionCreatedPayload(stored),
		})
	})
	if err != nil {
		return domain.Transaction{}, false, err
	}

	s.obsMetrics.RecordTransaction(ctx, stored.Provider, string(stored.ProductType), created)
	if created {
		s.log.Info("transaction recorded",
			zap.String("transaction_id", stored.ID.String()),
			zap.String("creator_id", stored.CreatorID),
			zap.String("provider_event_id", stored.ProviderEventID),
			zap.Int64("gross_amount", stored.GrossAmount),
			zap.Int64("applied_fee_bps", stored.AppliedFeeBps),
		)
	}
	return stored, created, nil
}

// RefundTransaction reverses a SUCCEEDED payment. Refunding an already
// refunded transaction returns it unchanged.
func (s *Service) RefundTransaction(ctx context.Context, req domain.RefundRequest) (domain.Transaction, error) {
	if req.TransactionID == 0 {
		return domain.Transaction{}, domain.ErrNotFound
	}

	var (
		result   domain.Transaction
		refunded bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txn, err := s.repo.FindByIDForUpdate(ctx, tx, req.TransactionID)
		if err != nil {
			return err
		}
		if txn == nil {
			return domain.ErrNotFound
		}
		if txn.Status == domain.StatusRefunded {
			result = *txn
			return nil
		}
		if !txn.Status.CanTransition(domain.StatusRefunded) {
			return domain.ErrInvalidTransition
		}

		now := s.clock.Now().UTC()
		ok, err := s.repo.UpdateStatus(ctx, tx, txn.ID, domain.StatusSucceeded, domain.StatusRefunded, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}

		original, err := s.ledger.JournalLines(ctx, tx, ledgerdomain.SourceTypeTransaction, txn.ID)
		if err != nil {
			return err
		}
		claim, err := s.repo.PayoutClaimFor(ctx, tx, txn.ID)
		if err != nil {
			return err
		}

		if _, err := s.ledger.RecordEntriesTx(ctx, tx, ledgerdomain.RecordRequest{
			SourceType:    ledgerdomain.SourceTypeRefund,
			SourceID:      txn.ID,
			TransactionID: txn.ID,
			Currency:      txn.Currency,
			OccurredAt:    now,
			Lines:         ledgerdomain.Reverse(original),
		}); err != nil {
			return err
		}

		payload := events.TransactionRefunded{
			TransactionID:        txn.ID.String(),
			CreatorID:            txn.CreatorID,
			GrossAmount:          txn.GrossAmount,
			CreatorPayableAmount: txn.CreatorPayableAmount,
			Currency:             txn.Currency,
			Reason:               strings.TrimSpace(req.Reason),
			RefundedAt:           now,
		}
		if claim != nil {
			payload.WasAlreadyPaid = claim.Sent()
			payload.ClaimedByPayoutID = claim.PayoutID.String()
			payload.PayoutStatus = claim.Status
		}
		if err := s.outbox.PublishTx(ctx, tx, events.Event{
			AggregateType: events.AggregateTransaction,
			AggregateID:   txn.ID.String(),
			DedupeKey:     "transaction_refunded:" + txn.ID.String(),
			OccurredAt:    now,
			Payload:       payload,
		}); err != nil {
			return err
		}

		txn.Status = domain.StatusRefunded
		txn.UpdatedAt = now
		result = *txn
		refunded = true
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	if refunded {
		s.log.Info("transaction refunded",
			zap.String("transaction_id", result.ID.String()),
			zap.String("creator_id", result.CreatorID),
		)
	}
	return result, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Transaction, error) {
	txn, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	if txn == nil {
		return domain.Transaction{}, domain.ErrNotFound
	}
	return *txn, nil
}

func (s *Service) GetByProviderEventID(ctx context.Context, providerEventID string) (domain.Transaction, error) {
	txn, err := s.repo.FindByProviderEventID(ctx, s.db, strings.TrimSpace(providerEventID))
	if err != nil {
		return domain.Transaction{}, err
	}
	if txn == nil {
		return domain.Transaction{}, domain.ErrNotFound
	}
	return *txn, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	limit := pagination.NormalizePageSize(req.PageSize)

	var afterID snowflake.ID
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		parsed, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		afterID = parsed
	}

	items, err := s.repo.List(ctx, s.db, req, afterID, limit+1)
	if err != nil {
		return domain.ListResponse{}, err
	}
	page, info, err := pagination.BuildCursorPageInfo(items, limit, func(t domain.Transaction) pagination.Cursor {
		return pagination.Cursor{ID: t.ID.String(), CreatedAt: t.CreatedAt.Format(time.RFC3339)}
	})
	if err != nil {
		return domain.ListResponse{}, err
	}
	return domain.ListResponse{
		Transactions:  page,
		NextPageToken: info.NextPageToken,
		HasMore:       info.HasMore,
	}, nil
}

func (s *Service) Stats(ctx context.Context, creatorID string) (domain.Stats, error) {
	creatorID = strings.TrimSpace(creatorID)
	if creatorID == "" {
		return domain.Stats{}, domain.ErrInvalidCreator
	}
	totals, err := s.repo.Totals(ctx, s.db, creatorID)
	if err != nil {
		return domain.Stats{}, err
	}
	return domain.Stats{CreatorID: creatorID, ByStatus: totals}, nil
}

func (s *Service) normalizeCreateRequest(req domain.CreateTransactionRequest) (domain.CreateTransactionRequest, error) {
	req.CreatorID = strings.TrimSpace(req.CreatorID)
	req.FanUserID = strings.TrimSpace(req.FanUserID)
	req.Provider = strings.ToLower(strings.TrimSpace(req.Provider))
	req.ProviderPaymentID = strings.TrimSpace(req.ProviderPaymentID)
	req.ProviderEventID = strings.TrimSpace(req.ProviderEventID)
	req.ProductType = domain.ProductType(strings.ToLower(strings.TrimSpace(string(req.ProductType))))
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))

	if req.CreatorID == "" {
		return req, domain.ErrInvalidCreator
	}
	if req.FanUserID == "" {
		return req, domain.ErrInvalidFanUser
	}
	switch req.ProductType {
	case domain.ProductSubscription, domain.ProductTip, domain.ProductPPV, domain.ProductMessage:
	default:
		return req, domain.ErrInvalidProductType
	}
	if req.Provider == "" {
		return req, domain.ErrInvalidProvider
	}
	if req.ProviderEventID == "" {
		return req, domain.ErrInvalidProviderEventID
	}
	if req.OccurredAt.IsZero() {
		return req, domain.ErrInvalidOccurredAt
	}
	if req.Currency == "" {
		req.Currency = s.currency
	}
	if req.Currency != s.currency {
		return req, domain.ErrUnsupportedCurrency
	}
	req.OccurredAt = req.OccurredAt.UTC()
	return req, nil
}

func transactionCreatedPayload(t domain.Transaction) events.TransactionCreated {
	return events.TransactionCreated{
		TransactionID:        t.ID.String(),
		CreatorID:            t.CreatorID,
		FanUserID:            t.FanUserID,
		ProductType:          string(t.ProductType),
		GrossAmount:          t.GrossAmount,
		AppliedFeeBps:        t.AppliedFeeBps,
		PlatformFeeAmount:    t.PlatformFeeAmount,
		ProcessorFeeAmount:   t.ProcessorFeeAmount,
		CreatorPayableAmount: t.CreatorPayableAmount,
		Currency:             t.Currency,
		Provider:             t.Provider,
		ProviderPaymentID:    t.ProviderPaymentID,
		ProviderEventID:      t.ProviderEventID,
		FeeScheduleID:        t.FeeScheduleID.String(),
		OccurredAt:           t.OccurredAt,
	}
}
