package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusSucceeded   Status = "SUCCEEDED"
	StatusRefunded    Status = "REFUNDED"
	StatusChargedBack Status = "CHARGEDBACK"
)

// CanTransition enforces SUCCEEDED -> {REFUNDED, CHARGEDBACK}; terminal
// states never move.
func (s Status) CanTransition(to Status) bool {
	return s == StatusSucceeded && (to == StatusRefunded || to == StatusChargedBack)
}

type ProductType string

const (
	ProductSubscription ProductType = "subscription"
	ProductTip          ProductType = "tip"
	ProductPPV          ProductType = "ppv"
	ProductMessage      ProductType = "message"
)

// Transaction is one successful fan payment and its fee split. Amounts are
// minor currency units and Gross = PlatformFee + ProcessorFee + CreatorPayable.
type Transaction struct {
	ID                   snowflake.ID `gorm:"primaryKey" json:"id"`
	CreatorID            string       `gorm:"type:varchar(191);not null;index:ix_transactions_creator_status,priority:1" json:"creator_id"`
	FanUserID            string       `gorm:"type:text;not null" json:"fan_user_id"`
	ProductType          ProductType  `gorm:"type:text;not null" json:"product_type"`
	GrossAmount          int64        `gorm:"not null" json:"gross_amount"`
	AppliedFeeBps        int64        `gorm:"not null" json:"applied_fee_bps"`
	PlatformFeeAmount    int64        `gorm:"not null" json:"platform_fee_amount"`
	ProcessorFeeAmount   int64        `gorm:"not null" json:"processor_fee_amount"`
	CreatorPayableAmount int64        `gorm:"not null" json:"creator_payable_amount"`
	Currency             string       `gorm:"type:text;not null" json:"currency"`
	Status               Status       `gorm:"type:varchar(191);not null;index:ix_transactions_creator_status,priority:2" json:"status"`
	Provider             string       `gorm:"type:text;not null" json:"provider"`
	ProviderPaymentID    string       `gorm:"type:text;not null" json:"provider_payment_id"`
	ProviderEventID      string       `gorm:"type:varchar(191);not null;uniqueIndex:ux_transactions_provider_event_id" json:"provider_event_id"`
	FeeScheduleID        snowflake.ID `gorm:"not null" json:"fee_schedule_id"`
	OccurredAt           time.Time    `gorm:"not null;index" json:"occurred_at"`
	CreatedAt            time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time    `gorm:"not null" json:"updated_at"`
}

func (Transaction) TableName() string { return "transactions" }

type CreateTransactionRequest struct {
	CreatorID          string      `json:"creator_id"`
	FanUserID          string      `json:"fan_user_id"`
	ProductType        ProductType `json:"product_type"`
	GrossAmount        int64       `json:"gross_amount"`
	ProcessorFeeAmount int64       `json:"processor_fee_amount"`
	Currency           string      `json:"currency"`
	Provider           string      `json:"provider"`
	ProviderPaymentID  string      `json:"provider_payment_id"`
	ProviderEventID    string      `json:"provider_event_id"`
	OccurredAt         time.Time   `json:"occurred_at"`
}

type RefundRequest struct {
	TransactionID snowflake.ID `json:"transaction_id"`
	Reason        string       `json:"reason"`
}

type ListRequest struct {
	CreatorID string
	Status    Status
	PageToken string
	PageSize  int
}

type ListResponse struct {
	Transactions  []Transaction `json:"transactions"`
	NextPageToken string        `json:"next_page_token,omitempty"`
	HasMore       bool          `json:"has_more"`
}

type StatusTotals struct {
	Status               Status `json:"status"`
	Count                int64  `json:"count"`
	GrossAmount          int64  `json:"gross_amount"`
	PlatformFeeAmount    int64  `json:"platform_fee_amount"`
	CreatorPayableAmount int64  `json:"creator_payable_amount"`
}

type Stats struct {
	CreatorID string         `json:"creator_id"`
	ByStatus  []StatusTotals `json:"by_status"`
}

// PayoutClaim names the payout whose items include a transaction. A claim
// that is not yet SENT still moves money once the transfer lands.
type PayoutClaim struct {
	PayoutID snowflake.ID
	Status   string
}

func (c PayoutClaim) Sent() bool { return c.Status == "SENT" }
