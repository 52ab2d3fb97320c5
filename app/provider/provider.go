package provider

import "context"

// MinorUnitsPerMajor is the number of minor units in one shilling. M-Pesa
// only moves whole shillings.
const MinorUnitsPerMajor = 100

type CollectInput struct {
	AmountMinor      int64
	Msisdn           string
	AccountReference string
	Description      string
}

type DisburseInput struct {
	AmountMinor   int64
	Msisdn        string
	CorrelationID string
	Remarks       string
	Occasion      string
}

// Acknowledgement is the provider's acceptance of a request. The final
// outcome always arrives later through a callback.
type Acknowledgement struct {
	ProviderRequestID   string
	ProviderSecondaryID string
	ResponseCode        string
	ResponseDescription string
}

type Gateway interface {
	Collect(ctx context.Context, input *CollectInput) (*Acknowledgement, error)
	Disburse(ctx context.Context, input *DisburseInput) (*Acknowledgement, error)
}
