package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	feescheduledomain "github.com/smallbiznis/creatorpay/internal/feeschedule/domain"
	ledgerdomain "github.com/smallbiznis/creatorpay/internal/ledger/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultFeeSchedule is installed when the timeline is empty. Its
// effective_from predates any ingestible payment.
var DefaultFeeSchedule = feescheduledomain.FeeSchedule{
	EffectiveFrom:   time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	StandardFeeBps:  1000,
	VIPFeeBps:       700,
	HoldDays:        7,
	MinPayoutAmount: 20000,
	PayoutFrequency: feescheduledomain.PayoutFrequencyWeekly,
}

// Run seeds the chart of accounts and the default fee schedule. Safe to
// call on every start.
func Run(db *gorm.DB, node *snowflake.Node, now time.Time) error {
	if db == nil || node == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := EnsureChartOfAccounts(ctx, tx, node, now); err != nil {
			return err
		}
		return EnsureDefaultFeeSchedule(ctx, tx, node, now)
	})
}

func EnsureChartOfAccounts(ctx context.Context, db *gorm.DB, node *snowflake.Node, now time.Time) error {
	for _, a := range ledgerdomain.ChartOfAccounts {
		row := ledgerdomain.LedgerAccount{
			ID:        node.Generate(),
			Code:      a.Code,
			Name:      a.Name,
			Type:      a.Type,
			CreatedAt: now.UTC(),
		}
		err := db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "code"}},
				DoNothing: true,
			}).
			Create(&row).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func EnsureDefaultFeeSchedule(ctx context.Context, db *gorm.DB, node *snowflake.Node, now time.Time) error {
	var count int64
	if err := db.WithContext(ctx).Model(&feescheduledomain.FeeSchedule{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	row := DefaultFeeSchedule
	row.ID = node.Generate()
	row.CreatedAt = now.UTC()
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "effective_from"}},
			DoNothing: true,
		}).
		Create(&row).Error
}
