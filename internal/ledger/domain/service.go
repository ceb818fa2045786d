package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	RecordEntries(ctx context.Context, req RecordRequest) (RecordResult, error)
	// RecordEntriesTx writes inside the caller's database transaction so the
	// journal commits or rolls back with the business write it belongs to.
	RecordEntriesTx(ctx context.Context, tx *gorm.DB, req RecordRequest) (RecordResult, error)
	JournalLines(ctx context.Context, tx *gorm.DB, sourceType SourceType, sourceID snowflake.ID) ([]EntryLine, error)
	CreatorBalance(ctx context.Context, creatorID string) (CreatorBalance, error)
	VerifyBalance(ctx context.Context, transactionID snowflake.ID) (BalanceCheck, error)
	ListAccounts(ctx context.Context) ([]LedgerAccount, error)
}

// AccountCache resolves account codes to rows. Implementations read through
// to db on a miss.
type AccountCache interface {
	Get(ctx context.Context, db *gorm.DB, code AccountCode) (LedgerAccount, error)
	Invalidate()
}
