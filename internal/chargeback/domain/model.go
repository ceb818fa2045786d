package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusReceived Status = "RECEIVED"
	StatusWon      Status = "WON"
	StatusLost     Status = "LOST"
)

func (s Status) Terminal() bool {
	return s == StatusWon || s == StatusLost
}

type Chargeback struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	TransactionID  snowflake.ID  `gorm:"not null;index" json:"transaction_id"`
	CreatorID      string        `gorm:"type:varchar(191);not null;index" json:"creator_id"`
	ProviderCaseID string        `gorm:"type:varchar(191);not null;uniqueIndex:ux_chargebacks_provider_case_id" json:"provider_case_id"`
	Provider       string        `gorm:"type:text;not null" json:"provider"`
	Amount         int64         `gorm:"not null" json:"amount"`
	Currency       string        `gorm:"type:text;not null" json:"currency"`
	Reason         string        `gorm:"type:text" json:"reason,omitempty"`
	Status         Status        `gorm:"type:varchar(191);not null;index" json:"status"`
	WasAlreadyPaid bool          `gorm:"not null;default:false" json:"was_already_paid"`
	PayoutID       *snowflake.ID `json:"payout_id,omitempty"`
	ResolvedAt     *time.Time    `json:"resolved_at,omitempty"`
	CreatedAt      time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"not null" json:"updated_at"`
}

func (Chargeback) TableName() string { return "chargebacks" }

// CreateRequest identifies the disputed payment either by internal id or by
// the provider event id that created it.
type CreateRequest struct {
	TransactionID   snowflake.ID `json:"transaction_id"`
	OriginalEventID string       `json:"original_event_id"`
	ProviderCaseID  string       `json:"provider_case_id"`
	Provider        string       `json:"provider"`
	Amount          int64        `json:"amount"`
	Reason          string       `json:"reason"`
}

type ListRequest struct {
	CreatorID     string
	TransactionID snowflake.ID
	Status        Status
	Limit         int
}
