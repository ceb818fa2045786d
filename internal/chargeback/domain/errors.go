package domain

import "errors"

var (
	ErrNotFound                  = errors.New("chargeback_not_found")
	ErrInvalidProviderCaseID     = errors.New("invalid_provider_case_id")
	ErrInvalidTransactionRef     = errors.New("invalid_transaction_reference")
	ErrInvalidAmount             = errors.New("invalid_chargeback_amount")
	ErrTransactionNotFound       = errors.New("chargeback_transaction_not_found")
	ErrTransactionNotChargeable  = errors.New("transaction_not_chargeable")
	ErrChargebackAlreadyResolved = errors.New("chargeback_already_resolved")
)
