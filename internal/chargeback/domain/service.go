package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, cb *Chargeback) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Chargeback, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Chargeback, error)
	FindByProviderCaseID(ctx context.Context, db *gorm.DB, providerCaseID string) (*Chargeback, error)
	Resolve(ctx context.Context, db *gorm.DB, id snowflake.ID, to Status, at time.Time) (bool, error)
	List(ctx context.Context, db *gorm.DB, req ListRequest) ([]Chargeback, error)
}

type Service interface {
	// CreateChargeback is idempotent by provider case id: a repeat returns the
	// stored chargeback with created=false and performs no writes.
	CreateChargeback(ctx context.Context, req CreateRequest) (Chargeback, bool, error)
	ResolveWon(ctx context.Context, id snowflake.ID) (Chargeback, error)
	ResolveLost(ctx context.Context, id snowflake.ID) (Chargeback, error)
	Get(ctx context.Context, id snowflake.ID) (Chargeback, error)
	List(ctx context.Context, req ListRequest) ([]Chargeback, error)
}
