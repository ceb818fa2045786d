package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertIfAbsent inserts t unless a row with the same provider_event_id
	// exists, and returns whichever row is now stored.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, t *Transaction) (Transaction, bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	FindByProviderEventID(ctx context.Context, db *gorm.DB, providerEventID string) (*Transaction, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, at time.Time) (bool, error)
	List(ctx context.Context, db *gorm.DB, req ListRequest, afterID snowflake.ID, limit int) ([]Transaction, error)
	Totals(ctx context.Context, db *gorm.DB, creatorID string) ([]StatusTotals, error)
	// PayoutClaimFor returns the payout that claimed the transaction, in any
	// status, or nil when it is unclaimed.
	PayoutClaimFor(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PayoutClaim, error)
}

type Service interface {
	CreateTransaction(ctx context.Context, req CreateTransactionRequest) (Transaction, bool, error)
	RefundTransaction(ctx context.Context, req RefundRequest) (Transaction, error)
	Get(ctx context.Context, id snowflake.ID) (Transaction, error)
	GetByProviderEventID(ctx context.Context, providerEventID string) (Transaction, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Stats(ctx context.Context, creatorID string) (Stats, error)
}
