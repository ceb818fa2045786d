package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusCalculated Status = "CALCULATED"
	StatusSent       Status = "SENT"
	StatusPending    Status = "PENDING"
	StatusFailed     Status = "FAILED"
)

// Sendable reports whether a transfer outcome may still be recorded.
func (s Status) Sendable() bool {
	return s == StatusCalculated || s == StatusPending
}

type Payout struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	CreatorID          string       `gorm:"type:varchar(191);not null;index" json:"creator_id"`
	PeriodStart        time.Time    `gorm:"not null" json:"period_start"`
	PeriodEnd          time.Time    `gorm:"not null" json:"period_end"`
	GrossTotal         int64        `gorm:"not null" json:"gross_total"`
	PlatformFeeTotal   int64        `gorm:"not null" json:"platform_fee_total"`
	PayoutAmount       int64        `gorm:"not null" json:"payout_amount"`
	Currency           string       `gorm:"type:text;not null" json:"currency"`
	Status             Status       `gorm:"type:varchar(191);not null;index:ix_payouts_status_next_retry,priority:1" json:"status"`
	RetryCount         int          `gorm:"not null;default:0" json:"retry_count"`
	NextRetryAt        *time.Time   `gorm:"index:ix_payouts_status_next_retry,priority:2" json:"next_retry_at,omitempty"`
	ProviderTransferID *string      `gorm:"type:text" json:"provider_transfer_id,omitempty"`
	FailureReason      *string      `gorm:"type:text" json:"failure_reason,omitempty"`
	SentAt             *time.Time   `json:"sent_at,omitempty"`
	CreatedAt          time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time    `gorm:"not null" json:"updated_at"`

	Items []PayoutItem `gorm:"-" json:"items,omitempty"`
}

func (Payout) TableName() string { return "payouts" }

// PayoutItem is the claim: a transaction appears in at most one item, ever.
type PayoutItem struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	PayoutID      snowflake.ID `gorm:"not null;index" json:"payout_id"`
	TransactionID snowflake.ID `gorm:"not null;uniqueIndex:ux_payout_items_transaction_id" json:"transaction_id"`
	Amount        int64        `gorm:"not null" json:"amount"`
	OccurredAt    time.Time    `gorm:"not null" json:"occurred_at"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
}

func (PayoutItem) TableName() string { return "payout_items" }

// ReversedItem is a claimed item whose transaction left SUCCEEDED after the
// claim was written.
type ReversedItem struct {
	ItemID            snowflake.ID
	TransactionID     snowflake.ID
	TransactionStatus string
	Amount            int64
}

type EligibilityReason string

const (
	ReasonEligible           EligibilityReason = "eligible"
	ReasonNoEligibleFunds    EligibilityReason = "no_eligible_funds"
	ReasonBelowMinimumPayout EligibilityReason = "below_minimum_payout"
)

// EligibleTransaction is the slice of a transaction a payout claims.
type EligibleTransaction struct {
	TransactionID        snowflake.ID
	GrossAmount          int64
	PlatformFeeAmount    int64
	CreatorPayableAmount int64
	Currency             string
	OccurredAt           time.Time
}

type Eligibility struct {
	CreatorID        string            `json:"creator_id"`
	AsOf             time.Time         `json:"as_of"`
	HoldReleaseDate  time.Time         `json:"hold_release_date"`
	FeeScheduleID    snowflake.ID      `json:"fee_schedule_id"`
	MinPayoutAmount  int64             `json:"min_payout_amount"`
	EligibleCount    int               `json:"eligible_count"`
	GrossTotal       int64             `json:"gross_total"`
	PlatformFeeTotal int64             `json:"platform_fee_total"`
	EligibleAmount   int64             `json:"eligible_amount"`
	CanCreatePayout  bool              `json:"can_create_payout"`
	Reason           EligibilityReason `json:"reason"`
	Shortfall        int64             `json:"shortfall"`

	Transactions []EligibleTransaction `json:"-"`
}

type CreatePayoutResult struct {
	Payout      *Payout     `json:"payout,omitempty"`
	Eligibility Eligibility `json:"eligibility"`
	Created     bool        `json:"created"`
}

type BatchError struct {
	CreatorID string `json:"creator_id"`
	Error     string `json:"error"`
}

type BatchResult struct {
	Created int          `json:"created"`
	Skipped int          `json:"skipped"`
	Errors  []BatchError `json:"errors"`
}

type ListRequest struct {
	CreatorID string
	Status    Status
	Limit     int
}
