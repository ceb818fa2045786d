package domain

import (
	"github.com/smallbiznis/creatorpay/internal/money"
)

// ValidateBalanced checks the shape of every line and that the lines sum to
// zero. It runs before any write.
func ValidateBalanced(lines []EntryLine) error {
	if len(lines) < 2 {
		return ErrInvalidEntryLines
	}

	var debits, credits int64
	for _, line := range lines {
		if line.AccountCode == "" {
			return ErrUnknownAccount
		}
		if line.Debit < 0 || line.Credit < 0 {
			return ErrInvalidLineAmount
		}
		if (line.Debit > 0) == (line.Credit > 0) {
			return ErrInvalidLineAmount
		}
		var err error
		if debits, err = money.Add(debits, line.Debit); err != nil {
			return ErrLedgerImbalance
		}
		if credits, err = money.Add(credits, line.Credit); err != nil {
			return ErrLedgerImbalance
		}
	}
	if debits != credits {
		return ErrLedgerImbalance
	}
	return nil
}

// Reverse returns the mirror image of lines: every debit becomes a credit of
// the same amount on the same account and creator.
func Reverse(lines []EntryLine) []EntryLine {
	out := make([]EntryLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, EntryLine{
			AccountCode: line.AccountCode,
			CreatorID:   line.CreatorID,
			Debit:       line.Credit,
			Credit:      line.Debit,
		})
	}
	return out
}

// PaymentLines builds the journal for a successful payment. The processor
// keeps its fee out of the cleared cash and the creator's share bears it, so
// the expense is booked and recovered in the same journal and revenue stays
// at the platform fee:
//
//	Dr CASH_CLEARING          gross - processorFee
//	Dr PROCESSOR_FEE_EXPENSE  processorFee
//	Cr PROCESSOR_FEE_EXPENSE  processorFee
//	Cr PLATFORM_REVENUE       platformFee
//	Cr CREATOR_PAYABLE        creatorPayable
func PaymentLines(creatorID string, gross, platformFee, processorFee, creatorPayable int64) ([]EntryLine, error) {
	split, err := money.Sum(platformFee, processorFee, creatorPayable)
	if err != nil || split != gross {
		return nil, ErrLedgerImbalance
	}
	cash, err := money.Sub(gross, processorFee)
	if err != nil {
		return nil, ErrLedgerImbalance
	}

	lines := make([]EntryLine, 0, 5)
	if cash > 0 {
		lines = append(lines, EntryLine{AccountCode: AccountCashClearing, Debit: cash})
	}
	if processorFee > 0 {
		lines = append(lines,
			EntryLine{AccountCode: AccountProcessorFeeExpense, Debit: processorFee},
			EntryLine{AccountCode: AccountProcessorFeeExpense, Credit: processorFee},
		)
	}
	if platformFee > 0 {
		lines = append(lines, EntryLine{AccountCode: AccountPlatformRevenue, Credit: platformFee})
	}
	if creatorPayable > 0 {
		lines = append(lines, EntryLine{AccountCode: AccountCreatorPayable, CreatorID: creatorID, Credit: creatorPayable})
	}
	return lines, nil
}

// SettlementLines moves a claimed amount out of the creator's payable balance
// when a payout is sent.
func SettlementLines(creatorID string, amount int64) []EntryLine {
	return []EntryLine{
		{AccountCode: AccountCreatorPayable, CreatorID: creatorID, Debit: amount},
		{AccountCode: AccountCashClearing, Credit: amount},
	}
}
