package domain

import "errors"

var (
	ErrNoActiveSchedule       = errors.New("no_active_fee_schedule")
	ErrInvalidSchedule        = errors.New("invalid_fee_schedule")
	ErrScheduleInPast         = errors.New("fee_schedule_effective_in_past")
	ErrDuplicateEffectiveFrom = errors.New("fee_schedule_duplicate_effective_from")
	ErrInvalidTier            = errors.New("invalid_creator_tier")
	ErrInvalidCreator         = errors.New("invalid_creator")
	ErrInvalidPayoutFrequency = errors.New("invalid_payout_frequency")
)
