package domain

import "errors"

var (
	ErrNotFound               = errors.New("transaction_not_found")
	ErrInvalidCreator         = errors.New("invalid_creator")
	ErrInvalidFanUser         = errors.New("invalid_fan_user")
	ErrInvalidProductType     = errors.New("invalid_product_type")
	ErrInvalidProvider        = errors.New("invalid_provider")
	ErrInvalidProviderEventID = errors.New("invalid_provider_event_id")
	ErrInvalidOccurredAt      = errors.New("invalid_occurred_at")
	ErrUnsupportedCurrency    = errors.New("unsupported_currency")
	ErrInvalidTransition      = errors.New("invalid_transaction_transition")
	ErrInvalidPageToken       = errors.New("invalid_page_token")
)
