package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeExpense   AccountType = "EXPENSE"
)

type AccountCode string

const (
	AccountCashClearing        AccountCode = "CASH_CLEARING"
	AccountPlatformRevenue     AccountCode = "PLATFORM_REVENUE"
	AccountCreatorPayable      AccountCode = "CREATOR_PAYABLE"
	AccountProcessorFeeExpense AccountCode = "PROCESSOR_FEE_EXPENSE"
)

// ChartOfAccounts is the fixed set seeded at install time.
var ChartOfAccounts = []LedgerAccount{
	{Code: AccountCashClearing, Name: "Cash clearing", Type: AccountTypeAsset},
	{Code: AccountPlatformRevenue, Name: "Platform revenue", Type: AccountTypeRevenue},
	{Code: AccountCreatorPayable, Name: "Creator payable", Type: AccountTypeLiability},
	{Code: AccountProcessorFeeExpense, Name: "Processor fee expense", Type: AccountTypeExpense},
}

type SourceType string

const (
	SourceTypeTransaction SourceType = "transaction"
	SourceTypeRefund      SourceType = "refund"
	SourceTypeChargeback  SourceType = "chargeback"
	SourceTypePayout      SourceType = "payout"
)

// LedgerAccount defines a chart-of-accounts entry.
type LedgerAccount struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Code      AccountCode  `gorm:"type:varchar(191);not null;uniqueIndex:ux_ledger_accounts_code"`
	Name      string       `gorm:"type:text;not null"`
	Type      AccountType  `gorm:"type:text;not null"`
	CreatedAt time.Time    `gorm:"not null"`
}

func (LedgerAccount) TableName() string { return "ledger_accounts" }

// LedgerJournal groups the lines written as one atomic unit. The
// (source_type, source_id) pair is unique so a replayed write is a no-op.
type LedgerJournal struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	SourceType SourceType   `gorm:"type:varchar(191);not null;uniqueIndex:ux_ledger_journals_source,priority:1"`
	SourceID   snowflake.ID `gorm:"not null;uniqueIndex:ux_ledger_journals_source,priority:2"`
	Currency   string       `gorm:"type:text;not null"`
	OccurredAt time.Time    `gorm:"not null"`
	CreatedAt  time.Time    `gorm:"not null"`
}

func (LedgerJournal) TableName() string { return "ledger_journals" }

// LedgerEntry is one append-only posting. Exactly one of Debit and Credit is
// positive.
type LedgerEntry struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	JournalID     snowflake.ID `gorm:"not null;index"`
	TransactionID snowflake.ID `gorm:"not null;index"`
	AccountID     snowflake.ID `gorm:"not null;index:ix_ledger_entries_account_creator,priority:1"`
	CreatorID     *string      `gorm:"type:varchar(191);index:ix_ledger_entries_account_creator,priority:2"`
	Debit         int64        `gorm:"not null;default:0"`
	Credit        int64        `gorm:"not null;default:0"`
	Currency      string       `gorm:"type:text;not null"`
	CreatedAt     time.Time    `gorm:"not null"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

// EntryLine is the caller-facing shape of a posting, addressed by account code.
type EntryLine struct {
	AccountCode AccountCode
	CreatorID   string
	Debit       int64
	Credit      int64
}

type RecordRequest struct {
	SourceType    SourceType
	SourceID      snowflake.ID
	TransactionID snowflake.ID
	Currency      string
	OccurredAt    time.Time
	Lines         []EntryLine
}

type RecordResult struct {
	JournalID snowflake.ID
	// Created is false when a journal for the same source already existed.
	Created bool
}

type CreatorBalance struct {
	CreatorID string `json:"creator_id"`
	Currency  string `json:"currency"`
	Payable   int64  `json:"payable"`
	Paid      int64  `json:"paid"`
	Accrued   int64  `json:"accrued"`
}

type BalanceCheck struct {
	TransactionID snowflake.ID `json:"transaction_id"`
	Debits        int64        `json:"debits"`
	Credits       int64        `json:"credits"`
	Balanced      bool         `json:"balanced"`
}
