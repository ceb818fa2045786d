package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Tier string

const (
	TierStandard Tier = "standard"
	TierVIP      Tier = "vip"
)

type PayoutFrequency string

const (
	PayoutFrequencyWeekly  PayoutFrequency = "weekly"
	PayoutFrequencyMonthly PayoutFrequency = "monthly"
)

// FeeSchedule is one entry in the fee timeline. Rows are append-only; the
// schedule in force at time t is the one with the greatest effective_from <= t.
type FeeSchedule struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	EffectiveFrom   time.Time       `gorm:"not null;uniqueIndex:ux_fee_schedules_effective_from" json:"effective_from"`
	StandardFeeBps  int64           `gorm:"not null" json:"standard_fee_bps"`
	VIPFeeBps       int64           `gorm:"column:vip_fee_bps;not null" json:"vip_fee_bps"`
	HoldDays        int             `gorm:"not null" json:"hold_days"`
	MinPayoutAmount int64           `gorm:"not null" json:"min_payout_amount"`
	PayoutFrequency PayoutFrequency `gorm:"type:text;not null" json:"payout_frequency"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
}

func (FeeSchedule) TableName() string { return "fee_schedules" }

type CreatorTier struct {
	CreatorID string    `gorm:"primaryKey;type:varchar(191)" json:"creator_id"`
	Tier      Tier      `gorm:"type:text;not null" json:"tier"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (CreatorTier) TableName() string { return "creator_tiers" }

type CreateScheduleRequest struct {
	EffectiveFrom   time.Time       `json:"effective_from"`
	StandardFeeBps  int64           `json:"standard_fee_bps"`
	VIPFeeBps       int64           `json:"vip_fee_bps"`
	HoldDays        int             `json:"hold_days"`
	MinPayoutAmount int64           `json:"min_payout_amount"`
	PayoutFrequency PayoutFrequency `json:"payout_frequency"`
}

// FeeBpsFor picks the platform rate for tier from schedule.
func FeeBpsFor(schedule FeeSchedule, tier Tier) int64 {
	if tier == TierVIP {
		return schedule.VIPFeeBps
	}
	return schedule.StandardFeeBps
}

// HoldReleaseDate is the latest occurredAt that is out of hold at asOf.
func (s FeeSchedule) HoldReleaseDate(asOf time.Time) time.Time {
	return asOf.UTC().AddDate(0, 0, -s.HoldDays)
}

// Active picks the schedule in force at asOf from a timeline sorted oldest
// first. The second result is false when none applies.
func Active(timeline []FeeSchedule, asOf time.Time) (FeeSchedule, bool) {
	for i := len(timeline) - 1; i >= 0; i-- {
		if !timeline[i].EffectiveFrom.After(asOf) {
			return timeline[i], true
		}
	}
	return FeeSchedule{}, false
}
