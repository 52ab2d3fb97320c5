package entity

import "time"

const (
	ProviderCallbackProcessed int32 = 10
	ProviderCallbackUnmatched int32 = 20
	ProviderCallbackDuplicate int32 = 30
	ProviderCallbackMalformed int32 = 40
	ProviderCallbackErrored   int32 = 50
)

type ProviderCallback struct {
	ID uint64

	PaymentRequestID *uint64

	Kind          string
	CorrelationID *string
	ProviderID    *string
	PayloadJSON   string
	Status        int32
	Error         *string

	CreatedAt time.Time
}
