package domain

import "errors"

var (
	ErrLedgerImbalance      = errors.New("ledger_imbalance")
	ErrUnknownAccount       = errors.New("unknown_account")
	ErrInvalidEntryLines    = errors.New("invalid_entry_lines")
	ErrInvalidLineAmount    = errors.New("invalid_line_amount")
	ErrInvalidSourceType    = errors.New("invalid_source_type")
	ErrInvalidSourceID      = errors.New("invalid_source_id")
	ErrInvalidTransactionID = errors.New("invalid_transaction_id")
	ErrInvalidCurrency      = errors.New("invalid_currency")
	ErrInvalidOccurredAt    = errors.New("invalid_occurred_at")
	ErrInvalidCreator       = errors.New("invalid_creator")
)
