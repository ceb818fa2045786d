package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/payout/domain"
	transactiondomain "github.com/smallbiznis/creatorpay/internal/transaction/domain"
	dbpkg "github.com/smallbiznis/creatorpay/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultListLimit = 100
	itemBatchSize    = 200
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) EligibleTransactions(ctx context.Context, db *gorm.DB, creatorID string, releaseAt time.Time, lock bool) ([]domain.EligibleTransaction, error) {
	q := db.WithContext(ctx).
		Model(&transactiondomain.Transaction{}).
		Where("creator_id = ? AND status = ? AND occurred_at <= ?", creatorID, transactiondomain.StatusSucceeded, releaseAt.UTC()).
		Where("NOT EXISTS (SELECT 1 FROM payout_items i WHERE i.transaction_id = transactions.id)").
		Order("occurred_at ASC, id ASC")
	if lock && dbpkg.SupportsRowLocks(db) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var rows []transactiondomain.Transaction
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]domain.EligibleTransaction, 0, len(rows))
	for _, t := range rows {
		out = append(out, domain.EligibleTransaction{
			TransactionID:        t.ID,
			GrossAmount:          t.GrossAmount,
			PlatformFeeAmount:    t.PlatformFeeAmount,
			CreatorPayableAmount: t.CreatorPayableAmount,
			Currency:             t.Currency,
			OccurredAt:           t.OccurredAt,
		})
	}
	return out, nil
}

func (r *repo) CreatorsWithUnclaimed(ctx context.Context, db *gorm.DB) ([]string, error) {
	var creators []string
	err := db.WithContext(ctx).
		Model(&transactiondomain.Transaction{}).
		Distinct("creator_id").
		Where("status = ?", transactiondomain.StatusSucceeded).
		Where("NOT EXISTS (SELECT 1 FROM payout_items i WHERE i.transaction_id = transactions.id)").
		Order("creator_id ASC").
		Pluck("creator_id", &creators).Error
	if err != nil {
		return nil, err
	}
	return creators, nil
}

func (r *repo) InsertPayout(ctx context.Context, db *gorm.DB, p *domain.Payout) error {
	return db.WithContext(ctx).Create(p).Error
}

// InsertItems has no conflict clause: a duplicate transaction_id means a
// concurrent claim won and the whole unit must roll back.
func (r *repo) InsertItems(ctx context.Context, db *gorm.DB, items []domain.PayoutItem) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).CreateInBatches(items, itemBatchSize).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payout, error) {
	return first(db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payout, error) {
	q := db.WithContext(ctx).Where("id = ?", id)
	if dbpkg.SupportsRowLocks(db) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return first(q)
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, payoutID snowflake.ID) ([]domain.PayoutItem, error) {
	var items []domain.PayoutItem
	err := db.WithContext(ctx).
		Where("payout_id = ?", payoutID).
		Order("occurred_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ReversedItems(ctx context.Context, db *gorm.DB, payoutID snowflake.ID) ([]domain.ReversedItem, error) {
	q := db.WithContext(ctx).
		Table("payout_items AS i").
		Select("i.id AS item_id, i.transaction_id AS transaction_id, t.status AS transaction_status, i.amount AS amount").
		Joins("JOIN transactions t ON t.id = i.transaction_id").
		Where("i.payout_id = ? AND t.status <> ?", payoutID, transactiondomain.StatusSucceeded).
		Order("i.occurred_at ASC, i.id ASC")
	if dbpkg.SupportsRowLocks(db) {
		q = q.Clauses(clause.Locking{Strength: "SHARE", Table: clause.Table{Name: "t"}})
	}

	var items []domain.ReversedItem
	if err := q.Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, p *domain.Payout, from domain.Status) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Payout{}).
		Where("id = ? AND status = ?", p.ID, from).
		Updates(map[string]any{
			"status":               p.Status,
			"retry_count":          p.RetryCount,
			"next_retry_at":        p.NextRetryAt,
			"provider_transfer_id": p.ProviderTransferID,
			"failure_reason":       p.FailureReason,
			"sent_at":              p.SentAt,
			"updated_at":           p.UpdatedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) DueForRetry(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.Payout, error) {
	var items []domain.Payout
	err := db.WithContext(ctx).
		Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?", domain.StatusPending, now.UTC()).
		Order("next_retry_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, req domain.ListRequest) ([]domain.Payout, error) {
	q := db.WithContext(ctx).Model(&domain.Payout{})
	if req.CreatorID != "" {
		q = q.Where("creator_id = ?", req.CreatorID)
	}
	if req.Status != "" {
		q = q.Where("status = ?", req.Status)
	}
	limit := req.Limit
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}

	var items []domain.Payout
	if err := q.Order("id DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func first(q *gorm.DB) (*domain.Payout, error) {
	var item domain.Payout
	err := q.First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}
