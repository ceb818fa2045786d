package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// EligibleTransactions returns unclaimed SUCCEEDED transactions that
	// occurred at or before releaseAt, oldest first. lock takes row locks
	// where the dialect supports them.
	EligibleTransactions(ctx context.Context, db *gorm.DB, creatorID string, releaseAt time.Time, lock bool) ([]EligibleTransaction, error)
	CreatorsWithUnclaimed(ctx context.Context, db *gorm.DB) ([]string, error)
	InsertPayout(ctx context.Context, db *gorm.DB, p *Payout) error
	InsertItems(ctx context.Context, db *gorm.DB, items []PayoutItem) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payout, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payout, error)
	ListItems(ctx context.Context, db *gorm.DB, payoutID snowflake.ID) ([]PayoutItem, error)
	// ReversedItems returns the payout's items whose transaction is no longer
	// SUCCEEDED. The transaction rows are share-locked where supported so a
	// concurrent chargeback observes the send.
	ReversedItems(ctx context.Context, db *gorm.DB, payoutID snowflake.ID) ([]ReversedItem, error)
	// Update persists lifecycle fields guarded by the expected prior status.
	Update(ctx context.Context, db *gorm.DB, p *Payout, from Status) (bool, error)
	DueForRetry(ctx context.Context, db *gorm.DB, now time.Time) ([]Payout, error)
	List(ctx context.Context, db *gorm.DB, req ListRequest) ([]Payout, error)
}

type Service interface {
	CalculateEligibility(ctx context.Context, creatorID string, asOf time.Time) (Eligibility, error)
	// CreatePayout claims every eligible transaction of the creator. An
	// ineligible creator is reported through the result, not as an error.
	CreatePayout(ctx context.Context, creatorID string) (CreatePayoutResult, error)
	MarkSent(ctx context.Context, payoutID snowflake.ID, providerTransferID string) (Payout, error)
	MarkFailed(ctx context.Context, payoutID snowflake.ID, reason string) (Payout, error)
	GetPendingRetry(ctx context.Context) ([]Payout, error)
	CalculateAllPayouts(ctx context.Context) (BatchResult, error)
	Get(ctx context.Context, payoutID snowflake.ID) (Payout, error)
	List(ctx context.Context, req ListRequest) ([]Payout, error)
	RenderStatement(ctx context.Context, payoutID snowflake.ID) ([]byte, error)
}
