package fee

import (
	"errors"

	"github.com/smallbiznis/creatorpay/internal/money"
)

var ErrInvalidFeeInput = errors.New("invalid_fee_input")

const MaxFeeBps int64 = money.BasisPointsDenominator

// Split is the three-way division of a gross payment.
type Split struct {
	GrossAmount          int64
	PlatformFeeBps       int64
	PlatformFeeAmount    int64
	ProcessorFeeAmount   int64
	CreatorPayableAmount int64
}

// Calculate divides gross into platform fee, processor fee and creator payable.
// The platform fee is floored, so any remainder stays with the creator.
func Calculate(grossAmount, platformFeeBps, processorFeeAmount int64) (Split, error) {
	if grossAmount <= 0 {
		return Split{}, ErrInvalidFeeInput
	}
	if platformFeeBps < 0 || platformFeeBps > MaxFeeBps {
		return Split{}, ErrInvalidFeeInput
	}
	if processorFeeAmount < 0 {
		return Split{}, ErrInvalidFeeInput
	}

	platformFee, err := money.ApplyBps(grossAmount, platformFeeBps)
	if err != nil {
		return Split{}, ErrInvalidFeeInput
	}
	fees, err := money.Add(platformFee, processorFeeAmount)
	if err != nil {
		return Split{}, ErrInvalidFeeInput
	}
	creator, err := money.Sub(grossAmount, fees)
	if err != nil || creator < 0 {
		return Split{}, ErrInvalidFeeInput
	}

	return Split{
		GrossAmount:          grossAmount,
		PlatformFeeBps:       platformFeeBps,
		PlatformFeeAmount:    platformFee,
		ProcessorFeeAmount:   processorFeeAmount,
		CreatorPayableAmount: creator,
	}, nil
}
