package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/clock"
	ledgerdomain "github.com/smallbiznis/creatorpay/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/creatorpay/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Accounts   ledgerdomain.AccountCache
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	accounts   ledgerdomain.AccountCache
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	accounts := p.Accounts
	if accounts == nil {
		accounts = NewAccountCache()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		accounts:   accounts,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) RecordEntries(ctx context.Context, req ledgerdomain.RecordRequest) (ledgerdomain.RecordResult, error) {
	var result ledgerdomain.RecordResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.RecordEntriesTx(ctx, tx, req)
		return err
	})
	return result, err
}

func (s *Service) RecordEntriesTx(ctx context.Context, tx *gorm.DB, req ledgerdomain.RecordRequest) (ledgerdomain.RecordResult, error) {
	if err := validateRecordRequest(req); err != nil {
		return ledgerdomain.RecordResult{}, err
	}
	if err := ledgerdomain.ValidateBalanced(req.Lines); err != nil {
		if errors.Is(err, ledgerdomain.ErrLedgerImbalance) {
			s.log.Error("refusing imbalanced journal",
				zap.String("source_type", string(req.SourceType)),
				zap.String("source_id", req.SourceID.String()),
				zap.String("transaction_id", req.TransactionID.String()),
			)
		}
		return ledgerdomain.RecordResult{}, err
	}

	accountIDs := make(map[ledgerdomain.AccountCode]snowflake.ID, len(req.Lines))
	for _, line := range req.Lines {
		if _, ok := accountIDs[line.AccountCode]; ok {
			continue
		}
		account, err := s.accounts.Get(ctx, tx, line.AccountCode)
		if err != nil {
			return ledgerdomain.RecordResult{}, err
		}
		accountIDs[line.AccountCode] = account.ID
	}

	now := s.clock.Now().UTC()
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	journal := ledgerdomain.LedgerJournal{
		ID:         s.genID.Generate(),
		SourceType: req.SourceType,
		SourceID:   req.SourceID,
		Currency:   currency,
		OccurredAt: req.OccurredAt.UTC(),
		CreatedAt:  now,
	}
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_type"}, {Name: "source_id"}},
			DoNothing: true,
		}).
		Create(&journal)
	if res.Error != nil {
		return ledgerdomain.RecordResult{}, res.Error
	}
	if res.RowsAffected == 0 {
		var existing ledgerdomain.LedgerJournal
		if err := tx.WithContext(ctx).
			Where("source_type = ? AND source_id = ?", req.SourceType, req.SourceID).
			First(&existing).Error; err != nil {
			return ledgerdomain.RecordResult{}, err
		}
		return ledgerdomain.RecordResult{JournalID: existing.ID, Created: false}, nil
	}

	entries := make([]ledgerdomain.LedgerEntry, 0, len(req.Lines))
	for _, line := range req.Lines {
		entry := ledgerdomain.LedgerEntry{
			ID:            s.genID.Generate(),
			JournalID:     journal.ID,
			TransactionID: req.TransactionID,
			AccountID:     accountIDs[line.AccountCode],
			Debit:         line.Debit,
			Credit:        line.Credit,
			Currency:      currency,
			CreatedAt:     now,
		}
		if creatorID := strings.TrimSpace(line.CreatorID); creatorID != "" {
			entry.CreatorID = &creatorID
		}
		entries = append(entries, entry)
	}
	if err := tx.WithContext(ctx).Create(&entries).Error; err != nil {
		return ledgerdomain.RecordResult{}, err
	}

	s.obsMetrics.RecordLedgerJournal(ctx, string(req.SourceType))
	return ledgerdomain.RecordResult{JournalID: journal.ID, Created: true}, nil
}

func (s *Service) JournalLines(ctx context.Context, tx *gorm.DB, sourceType ledgerdomain.SourceType, sourceID snowflake.ID) ([]ledgerdomain.EntryLine, error) {
	if tx == nil {
		tx = s.db
	}

	type row struct {
		Code      ledgerdomain.AccountCode
		CreatorID *string
		Debit     int64
		Credit    int64
	}
	var rows []row
	err := tx.WithContext(ctx).Raw(
		`SELECT a.code AS code, e.creator_id AS creator_id, e.debit AS debit, e.credit AS credit
		FROM ledger_entries e
		JOIN ledger_journals j ON j.id = e.journal_id
		JOIN ledger_accounts a ON a.id = e.account_id
		WHERE j.source_type = ? AND j.source_id = ?
		ORDER BY e.id ASC`,
		sourceType, sourceID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	lines := make([]ledgerdomain.EntryLine, 0, len(rows))
	for _, r := range rows {
		line := ledgerdomain.EntryLine{AccountCode: r.Code, Debit: r.Debit, Credit: r.Credit}
		if r.CreatorID != nil {
			line.CreatorID = *r.CreatorID
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (s *Service) CreatorBalance(ctx context.Context, creatorID string) (ledgerdomain.CreatorBalance, error) {
	creatorID = strings.TrimSpace(creatorID)
	if creatorID == "" {
		return ledgerdomain.CreatorBalance{}, ledgerdomain.ErrInvalidCreator
	}

	account, err := s.accounts.Get(ctx, s.db, ledgerdomain.AccountCreatorPayable)
	if err != nil {
		return ledgerdomain.CreatorBalance{}, err
	}

	var totals struct {
		Debits  int64
		Credits int64
	}
	err = s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(debit), 0) AS debits, COALESCE(SUM(credit), 0) AS credits
		FROM ledger_entries
		WHERE account_id = ? AND creator_id = ?`,
		account.ID, creatorID,
	).Scan(&totals).Error
	if err != nil {
		return ledgerdomain.CreatorBalance{}, err
	}

	return ledgerdomain.CreatorBalance{
		CreatorID: creatorID,
		Payable:   totals.Credits - totals.Debits,
		Paid:      totals.Debits,
		Accrued:   totals.Credits,
	}, nil
}

func (s *Service) VerifyBalance(ctx context.Context, transactionID snowflake.ID) (ledgerdomain.BalanceCheck, error) {
	if transactionID == 0 {
		return ledgerdomain.BalanceCheck{}, ledgerdomain.ErrInvalidTransactionID
	}

	var totals struct {
		Debits  int64
		Credits int64
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(debit), 0) AS debits, COALESCE(SUM(credit), 0) AS credits
		FROM ledger_entries
		WHERE transaction_id = ?`,
		transactionID,
	).Scan(&totals).Error
	if err != nil {
		return ledgerdomain.BalanceCheck{}, err
	}

	check := ledgerdomain.BalanceCheck{
		TransactionID: transactionID,
		Debits:        totals.Debits,
		Credits:       totals.Credits,
		Balanced:      totals.Debits == totals.Credits,
	}
	if !check.Balanced {
		s.log.Error("ledger imbalance detected",
			zap.String("transaction_id", transactionID.String()),
			zap.Int64("debits", totals.Debits),
			zap.Int64("credits", totals.Credits),
		)
	}
	return check, nil
}

func (s *Service) ListAccounts(ctx context.Context) ([]ledgerdomain.LedgerAccount, error) {
	var accounts []ledgerdomain.LedgerAccount
	if err := s.db.WithContext(ctx).Order("code ASC").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func validateRecordRequest(req ledgerdomain.RecordRequest) error {
	switch req.SourceType {
	case ledgerdomain.SourceTypeTransaction,
		ledgerdomain.SourceTypeRefund,
		ledgerdomain.SourceTypeChargeback,
		ledgerdomain.SourceTypePayout:
	default:
		return ledgerdomain.ErrInvalidSourceType
	}
	if req.SourceID == 0 {
		return ledgerdomain.ErrInvalidSourceID
	}
	if req.TransactionID == 0 {
		return ledgerdomain.ErrInvalidTransactionID
	}
	if strings.TrimSpace(req.Currency) == "" {
		return ledgerdomain.ErrInvalidCurrency
	}
	if req.OccurredAt.IsZero() {
		return ledgerdomain.ErrInvalidOccurredAt
	}
	return nil
}

