package entity

import "time"

const (
	EventCollectionConfirmed   = "collection.confirmed"
	EventDisbursementConfirmed = "disbursement.confirmed"
	EventPaymentRequestFailed  = "payment_request.failed"
	EventOwnerPayoutDue        = "owner.payout_due"
)

// DomainEvent is published after a state change has been committed.
type DomainEvent struct {
	Type          string            `json:"type"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	AmountMinor   int64             `json:"amount_minor"`
	Currency      string            `json:"currency,omitempty"`
	ReceiptID     string            `json:"receipt_id,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}
