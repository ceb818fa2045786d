package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/chargeback/domain"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/events"
	ledgerdomain "github.com/smallbiznis/creatorpay/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/creatorpay/internal/observability/metrics"
	transactiondomain "github.com/smallbiznis/creatorpay/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	Transactions transactiondomain.Repository
	Ledger       ledgerdomain.Service
	Outbox       *events.Outbox
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         domain.Repository
	transactions transactiondomain.Repository
	ledger       ledgerdomain.Service
	outbox       *events.Outbox
	obsMetrics   *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("chargeback.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		transactions: p.Transactions,
		ledger:       p.Ledger,
		outbox:       p.Outbox,
		obsMetrics:   p.ObsMetrics,
	}
}

func (s *Service) CreateChargeback(ctx context.Context, req domain.CreateRequest) (domain.Chargeback, bool, error) {
	req.ProviderCaseID = strings.TrimSpace(req.ProviderCaseID)
	req.OriginalEventID = strings.TrimSpace(req.OriginalEventID)
	req.Provider = strings.ToLower(strings.TrimSpace(req.Provider))
	req.Reason = strings.TrimSpace(req.Reason)
	if req.ProviderCaseID == "" {
		return domain.Chargeback{}, false, domain.ErrInvalidProviderCaseID
	}
	if req.TransactionID == 0 && req.OriginalEventID == "" {
		return domain.Chargeback{}, false, domain.ErrInvalidTransactionRef
	}
	if req.Amount < 0 {
		return domain.Chargeback{}, false, domain.ErrInvalidAmount
	}

	existing, err := s.repo.FindByProviderCaseID(ctx, s.db, req.ProviderCaseID)
	if err != nil {
		return domain.Chargeback{}, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}

	var (
		result  domain.Chargeback
		created bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txnID, err := s.resolveTransactionID(ctx, tx, req)
		if err != nil {
			return err
		}
		txn, err := s.transactions.FindByIDForUpdate(ctx, tx, txnID)
		if err != nil {
			return err
		}
		if txn == nil {
			return domain.ErrTransactionNotFound
		}

		// A concurrent delivery of the same case may have committed while we
		// waited on the row lock.
		replay, err := s.repo.FindByProviderCaseID(ctx, tx, req.ProviderCaseID)
		if err != nil {
			return err
		}
		if replay != nil {
			result = *replay
			return nil
		}

		if !txn.Status.CanTransition(transactiondomain.StatusChargedBack) {
			return domain.ErrTransactionNotChargeable
		}

		amount := req.Amount
		if amount == 0 {
			amount = txn.GrossAmount
		}
		if amount > txn.GrossAmount {
			return domain.ErrInvalidAmount
		}
		provider := req.Provider
		if provider == "" {
			provider = txn.Provider
		}

		claim, err := s.transactions.PayoutClaimFor(ctx, tx, txn.ID)
		if err != nil {
			return err
		}
		paid := claim != nil && claim.Sent()

		now := s.clock.Now().UTC()
		cb := domain.Chargeback{
			ID:             s.genID.Generate(),
			TransactionID:  txn.ID,
			CreatorID:      txn.CreatorID,
			ProviderCaseID: req.ProviderCaseID,
			Provider:       provider,
			Amount:         amount,
			Currency:       txn.Currency,
			Reason:         req.Reason,
			Status:         domain.StatusReceived,
			WasAlreadyPaid: paid,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if paid {
			cb.PayoutID = &claim.PayoutID
		}

		inserted, err := s.repo.Insert(ctx, tx, &cb)
		if err != nil {
			return err
		}
		if !inserted {
			winner, err := s.repo.FindByProviderCaseID(ctx, tx, req.ProviderCaseID)
			if err != nil {
				return err
			}
			if winner == nil {
				return domain.ErrNotFound
			}
			result = *winner
			return nil
		}

		ok, err := s.transactions.UpdateStatus(ctx, tx, txn.ID, transactiondomain.StatusSucceeded, transactiondomain.StatusChargedBack, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrTransactionNotChargeable
		}

		original, err := s.ledger.JournalLines(ctx, tx, ledgerdomain.SourceTypeTransaction, txn.ID)
		if err != nil {
			return err
		}
		if _, err := s.ledger.RecordEntriesTx(ctx, tx, ledgerdomain.RecordRequest{
			SourceType:    ledgerdomain.SourceTypeChargeback,
			SourceID:      txn.ID,
			TransactionID: txn.ID,
			Currency:      txn.Currency,
			OccurredAt:    now,
			Lines:         ledgerdomain.Reverse(original),
		}); err != nil {
			return err
		}

		payload := events.ChargebackCreated{
			ChargebackID:         cb.ID.String(),
			TransactionID:        txn.ID.String(),
			CreatorID:            txn.CreatorID,
			ProviderCaseID:       cb.ProviderCaseID,
			Provider:             cb.Provider,
			Amount:               cb.Amount,
			CreatorPayableAmount: txn.CreatorPayableAmount,
			Currency:             cb.Currency,
			Reason:               cb.Reason,
			WasAlreadyPaid:       paid,
		}
		if claim != nil {
			payload.ClaimedByPayoutID = claim.PayoutID.String()
			payload.PayoutStatus = claim.Status
			if paid {
				payload.PayoutID = claim.PayoutID.String()
			}
		}
		if err := s.outbox.PublishTx(ctx, tx, events.Event{
			AggregateType: events.AggregateChargeback,
			AggregateID:   cb.ID.String(),
			DedupeKey:     "chargeback_created:" + cb.ID.String(),
			OccurredAt:    now,
			Payload:       payload,
		}); err != nil {
			return err
		}

		result = cb
		created = true
		return nil
	})
	if err != nil {
		return domain.Chargeback{}, false, err
	}

	if created {
		s.obsMetrics.RecordChargeback(ctx, string(result.Status))
		fields := []zap.Field{
			zap.String("chargeback_id", result.ID.String()),
			zap.String("transaction_id", result.TransactionID.String()),
			zap.String("creator_id", result.CreatorID),
			zap.String("provider_case_id", result.ProviderCaseID),
			zap.Bool("was_already_paid", result.WasAlreadyPaid),
		}
		if result.WasAlreadyPaid {
			s.log.Warn("chargeback received for paid-out transaction", fields...)
		} else {
			s.log.Info("chargeback received", fields...)
		}
	}
	return result, created, nil
}

func (s *Service) ResolveWon(ctx context.Context, id snowflake.ID) (domain.Chargeback, error) {
	return s.resolve(ctx, id, domain.StatusWon)
}

func (s *Service) ResolveLost(ctx context.Context, id snowflake.ID) (domain.Chargeback, error) {
	return s.resolve(ctx, id, domain.StatusLost)
}

// resolve closes a dispute. The reversal booked at receipt stands either way.
func (s *Service) resolve(ctx context.Context, id snowflake.ID, to domain.Status) (domain.Chargeback, error) {
	var result domain.Chargeback
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cb, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if cb == nil {
			return domain.ErrNotFound
		}
		if cb.Status.Terminal() {
			return domain.ErrChargebackAlreadyResolved
		}

		now := s.clock.Now().UTC()
		ok, err := s.repo.Resolve(ctx, tx, cb.ID, to, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrChargebackAlreadyResolved
		}

		if err := s.outbox.PublishTx(ctx, tx, events.Event{
			AggregateType: events.AggregateChargeback,
			AggregateID:   cb.ID.String(),
			DedupeKey:     "chargeback_resolved:" + cb.ID.String(),
			OccurredAt:    now,
			Payload: events.ChargebackResolved{
				ChargebackID:  cb.ID.String(),
				TransactionID: cb.TransactionID.String(),
				CreatorID:     cb.CreatorID,
				Status:        string(to),
				ResolvedAt:    now,
			},
		}); err != nil {
			return err
		}

		cb.Status = to
		cb.ResolvedAt = &now
		cb.UpdatedAt = now
		result = *cb
		return nil
	})
	if err != nil {
		return domain.Chargeback{}, err
	}

	s.obsMetrics.RecordChargeback(ctx, string(to))
	s.log.Info("chargeback resolved",
		zap.String("chargeback_id", result.ID.String()),
		zap.String("status", string(to)),
	)
	return result, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Chargeback, error) {
	cb, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Chargeback{}, err
	}
	if cb == nil {
		return domain.Chargeback{}, domain.ErrNotFound
	}
	return *cb, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Chargeback, error) {
	req.CreatorID = strings.TrimSpace(req.CreatorID)
	return s.repo.List(ctx, s.db, req)
}

func (s *Service) resolveTransactionID(ctx context.Context, tx *gorm.DB, req domain.CreateRequest) (snowflake.ID, error) {
	if req.TransactionID != 0 {
		return req.TransactionID, nil
	}
	txn, err := s.transactions.FindByProviderEventID(ctx, tx, req.OriginalEventID)
	if err != nil {
		return 0, err
	}
	if txn == nil {
		return 0, domain.ErrTransactionNotFound
	}
	return txn.ID, nil
}
