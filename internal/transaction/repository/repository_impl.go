package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/transaction/domain"
	dbpkg "github.com/smallbiznis/creatorpay/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, t *domain.Transaction) (domain.Transaction, bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_event_id"}},
			DoNothing: true,
		}).
		Create(t)
	if res.Error != nil && !dbpkg.IsDuplicateKeyErr(res.Error) {
		return domain.Transaction{}, false, res.Error
	}
	if res.Error == nil && res.RowsAffected > 0 {
		return *t, true, nil
	}

	existing, err := r.FindByProviderEventID(ctx, db, t.ProviderEventID)
	if err != nil {
		return domain.Transaction{}, false, err
	}
	if existing == nil {
		return domain.Transaction{}, false, domain.ErrNotFound
	}
	return *existing, false, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	return first(db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	q := db.WithContext(ctx).Where("id = ?", id)
	if dbpkg.SupportsRowLocks(db) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return first(q)
}

func (r *repo) FindByProviderEventID(ctx context.Context, db *gorm.DB, providerEventID string) (*domain.Transaction, error) {
	return first(db.WithContext(ctx).Where("provider_event_id = ?", providerEventID))
}

// UpdateStatus is a compare-and-set on status; false means the row was not in
// the expected state.
func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status, at time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": at.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, req domain.ListRequest, afterID snowflake.ID, limit int) ([]domain.Transaction, error) {
	q := db.WithContext(ctx).Model(&domain.Transaction{})
	if req.CreatorID != "" {
		q = q.Where("creator_id = ?", req.CreatorID)
	}
	if req.Status != "" {
		q = q.Where("status = ?", req.Status)
	}
	if afterID != 0 {
		q = q.Where("id < ?", afterID)
	}

	var items []domain.Transaction
	if err := q.Order("id DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Totals(ctx context.Context, db *gorm.DB, creatorID string) ([]domain.StatusTotals, error) {
	var rows []domain.StatusTotals
	err := db.WithContext(ctx).Raw(
		`SELECT status,
			COUNT(*) AS count,
			COALESCE(SUM(gross_amount), 0) AS gross_amount,
			COALESCE(SUM(platform_fee_amount), 0) AS platform_fee_amount,
			COALESCE(SUM(creator_payable_amount), 0) AS creator_payable_amount
		FROM transactions
		WHERE creator_id = ?
		GROUP BY status
		ORDER BY status ASC`,
		creatorID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) PayoutClaimFor(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PayoutClaim, error) {
	var rows []struct {
		PayoutID snowflake.ID
		Status   string
	}
	err := db.WithContext(ctx).Raw(
		`SELECT p.id AS payout_id, p.status AS status
		FROM payout_items i
		JOIN payouts p ON p.id = i.payout_id
		WHERE i.transaction_id = ?
		LIMIT 1`,
		id,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &domain.PayoutClaim{PayoutID: rows[0].PayoutID, Status: rows[0].Status}, nil
}

func first(q *gorm.DB) (*domain.Transaction, error) {
	var item domain.Transaction
	err := q.First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}
