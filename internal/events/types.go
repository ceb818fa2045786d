package events

import "time"

type EventType string

const (
	EventTransactionCreated  EventType = "TransactionCreated"
	EventTransactionRefunded EventType = "TransactionRefunded"
	EventChargebackCreated   EventType = "ChargebackCreated"
	EventChargebackResolved  EventType = "ChargebackResolved"
	EventPayoutCalculated    EventType = "PayoutCalculated"
	EventPayoutSent          EventType = "PayoutSent"
	EventPayoutFailed        EventType = "PayoutFailed"
	EventClawbackRequired    EventType = "PayoutClawbackRequired"
)

// Payload is implemented by every event body. Consumers switch on the
// concrete type returned by DecodeEnvelope.
type Payload interface {
	EventType() EventType
}

type TransactionCreated struct {
	TransactionID        string    `json:"transactionId"`
	CreatorID            string    `json:"creatorId"`
	FanUserID            string    `json:"fanUserId"`
	ProductType          string    `json:"productType"`
	GrossAmount          int64     `json:"grossAmount"`
	AppliedFeeBps        int64     `json:"appliedFeeBps"`
	PlatformFeeAmount    int64     `json:"platformFeeAmount"`
	ProcessorFeeAmount   int64     `json:"processorFeeAmount"`
	CreatorPayableAmount int64     `json:"creatorPayableAmount"`
	Currency             string    `json:"currency"`
	Provider             string    `json:"provider"`
	ProviderPaymentID    string    `json:"providerPaymentId"`
	ProviderEventID      string    `json:"providerEventId"`
	FeeScheduleID        string    `json:"feeScheduleId"`
	OccurredAt           time.Time `json:"occurredAt"`
}

type TransactionRefunded struct {
	TransactionID        string    `json:"transactionId"`
	CreatorID            string    `json:"creatorId"`
	GrossAmount          int64     `json:"grossAmount"`
	CreatorPayableAmount int64     `json:"creatorPayableAmount"`
	Currency             string    `json:"currency"`
	Reason               string    `json:"reason,omitempty"`
	RefundedAt           time.Time `json:"refundedAt"`
	WasAlreadyPaid       bool      `json:"wasAlreadyPaid"`
	ClaimedByPayoutID    string    `json:"claimedByPayoutId,omitempty"`
	PayoutStatus         string    `json:"payoutStatus,omitempty"`
}

type ChargebackCreated struct {
	ChargebackID         string `json:"chargebackId"`
	TransactionID        string `json:"transactionId"`
	CreatorID            string `json:"creatorId"`
	ProviderCaseID       string `json:"providerCaseId"`
	Provider             string `json:"provider"`
	Amount               int64  `json:"amount"`
	CreatorPayableAmount int64  `json:"creatorPayableAmount"`
	Currency             string `json:"currency"`
	Reason               string `json:"reason,omitempty"`
	WasAlreadyPaid       bool   `json:"wasAlreadyPaid"`
	PayoutID             string `json:"payoutId,omitempty"`
	// ClaimedByPayoutID is set whenever a payout holds the transaction, sent
	// or not. An unsent claim becomes a clawback once the transfer lands.
	ClaimedByPayoutID string `json:"claimedByPayoutId,omitempty"`
	PayoutStatus      string `json:"payoutStatus,omitempty"`
}

type ChargebackResolved struct {
	ChargebackID  string    `json:"chargebackId"`
	TransactionID string    `json:"transactionId"`
	CreatorID     string    `json:"creatorId"`
	Status        string    `json:"status"`
	ResolvedAt    time.Time `json:"resolvedAt"`
}

type PayoutCalculated struct {
	PayoutID         string    `json:"payoutId"`
	CreatorID        string    `json:"creatorId"`
	PeriodStart      time.Time `json:"periodStart"`
	PeriodEnd        time.Time `json:"periodEnd"`
	GrossTotal       int64     `json:"grossTotal"`
	PlatformFeeTotal int64     `json:"platformFeeTotal"`
	PayoutAmount     int64     `json:"payoutAmount"`
	Currency         string    `json:"currency"`
	TransactionIDs   []string  `json:"transactionIds"`
}

type PayoutSent struct {
	PayoutID           string    `json:"payoutId"`
	CreatorID          string    `json:"creatorId"`
	PayoutAmount       int64     `json:"payoutAmount"`
	Currency           string    `json:"currency"`
	ProviderTransferID string    `json:"providerTransferId"`
	SentAt             time.Time `json:"sentAt"`
	ClawbackAmount     int64     `json:"clawbackAmount,omitempty"`
}

type PayoutFailed struct {
	PayoutID     string     `json:"payoutId"`
	CreatorID    string     `json:"creatorId"`
	PayoutAmount int64      `json:"payoutAmount"`
	Currency     string     `json:"currency"`
	Reason       string     `json:"reason"`
	Status       string     `json:"status"`
	RetryCount   int        `json:"retryCount"`
	NextRetryAt  *time.Time `json:"nextRetryAt,omitempty"`
}

type ClawbackItem struct {
	TransactionID     string `json:"transactionId"`
	TransactionStatus string `json:"transactionStatus"`
	Amount            int64  `json:"amount"`
}

// PayoutClawbackRequired is emitted when a transfer lands for items whose
// transaction was refunded or charged back after the claim.
type PayoutClawbackRequired struct {
	PayoutID           string         `json:"payoutId"`
	CreatorID          string         `json:"creatorId"`
	ProviderTransferID string         `json:"providerTransferId"`
	ClawbackAmount     int64          `json:"clawbackAmount"`
	Currency           string         `json:"currency"`
	Items              []ClawbackItem `json:"items"`
	SentAt             time.Time      `json:"sentAt"`
}

func (TransactionCreated) EventType() EventType  { return EventTransactionCreated }
func (TransactionRefunded) EventType() EventType { return EventTransactionRefunded }
func (ChargebackCreated) EventType() EventType   { return EventChargebackCreated }
func (ChargebackResolved) EventType() EventType  { return EventChargebackResolved }
func (PayoutCalculated) EventType() EventType    { return EventPayoutCalculated }
func (PayoutSent) EventType() EventType          { return EventPayoutSent }
func (PayoutFailed) EventType() EventType        { return EventPayoutFailed }
func (PayoutClawbackRequired) EventType() EventType {
	return EventClawbackRequired
}

var payloadFactories = map[EventType]func() Payload{
	EventTransactionCreated:  func() Payload { return &TransactionCreated{} },
	EventTransactionRefunded: func() Payload { return &TransactionRefunded{} },
	EventChargebackCreated:   func() Payload { return &ChargebackCreated{} },
	EventChargebackResolved:  func() Payload { return &ChargebackResolved{} },
	EventPayoutCalculated:    func() Payload { return &PayoutCalculated{} },
	EventPayoutSent:          func() Payload { return &PayoutSent{} },
	EventPayoutFailed:        func() Payload { return &PayoutFailed{} },
	EventClawbackRequired:    func() Payload { return &PayoutClawbackRequired{} },
}
