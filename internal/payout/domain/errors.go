package domain

import "errors"

var (
	ErrNotFound             = errors.New("payout_not_found")
	ErrInvalidCreator       = errors.New("invalid_creator")
	ErrInvalidTransition    = errors.New("invalid_payout_transition")
	ErrInvalidTransferID    = errors.New("invalid_provider_transfer_id")
	ErrInvalidFailureReason = errors.New("invalid_failure_reason")
	ErrClaimConflict        = errors.New("payout_claim_conflict")
	ErrStatementUnavailable = errors.New("payout_statement_unavailable")
)
