package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/chargeback/domain"
	dbpkg "github.com/smallbiznis/creatorpay/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultListLimit = 100

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, cb *domain.Chargeback) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_case_id"}},
			DoNothing: true,
		}).
		Create(cb)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Chargeback, error) {
	return first(db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Chargeback, error) {
	q := db.WithContext(ctx).Where("id = ?", id)
	if dbpkg.SupportsRowLocks(db) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return first(q)
}

func (r *repo) FindByProviderCaseID(ctx context.Context, db *gorm.DB, providerCaseID string) (*domain.Chargeback, error) {
	return first(db.WithContext(ctx).Where("provider_case_id = ?", providerCaseID))
}

func (r *repo) Resolve(ctx context.Context, db *gorm.DB, id snowflake.ID, to domain.Status, at time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Chargeback{}).
		Where("id = ? AND status = ?", id, domain.StatusReceived).
		Updates(map[string]any{
			"status":      to,
			"resolved_at": at.UTC(),
			"updated_at":  at.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, req domain.ListRequest) ([]domain.Chargeback, error) {
	q := db.WithContext(ctx).Model(&domain.Chargeback{})
	if req.CreatorID != "" {
		q = q.Where("creator_id = ?", req.CreatorID)
	}
	if req.TransactionID != 0 {
		q = q.Where("transaction_id = ?", req.TransactionID)
	}
	if req.Status != "" {
		q = q.Where("status = ?", req.Status)
	}
	limit := req.Limit
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}

	var items []domain.Chargeback
	if err := q.Order("id DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func first(q *gorm.DB) (*domain.Chargeback, error) {
	var item domain.Chargeback
	err := q.First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}
