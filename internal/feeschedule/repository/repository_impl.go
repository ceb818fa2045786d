package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/creatorpay/internal/feeschedule/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ListSchedules(ctx context.Context, db *gorm.DB) ([]domain.FeeSchedule, error) {
	var items []domain.FeeSchedule
	err := db.WithContext(ctx).
		Order("effective_from ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertSchedule(ctx context.Context, db *gorm.DB, schedule *domain.FeeSchedule) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "effective_from"}},
			DoNothing: true,
		}).
		Create(schedule)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindTier(ctx context.Context, db *gorm.DB, creatorID string) (*domain.CreatorTier, error) {
	var item domain.CreatorTier
	err := db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) UpsertTier(ctx context.Context, db *gorm.DB, tier *domain.CreatorTier) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "creator_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"tier", "updated_at"}),
		}).
		Create(tier).Error
}
