package entity

import "time"

const (
	DirectionCollection   int32 = 1
	DirectionDisbursement int32 = 2
)

const (
	PaymentRequestStatusPending   int32 = 1
	PaymentRequestStatusSubmitted int32 = 2
	PaymentRequestStatusCompleted int32 = 10
	PaymentRequestStatusFailed    int32 = 20
)

const (
	PayeeTypeOwner  = "owner"
	PayeeTypeDriver = "driver"
	PayeeTypeBroker = "broker"
)

type PaymentRequest struct {
	ID uint64

	CorrelationID string
	Direction     int32

	AmountMinor int64
	Currency    string
	Msisdn      string

	Description string
	Remarks     string
	Occasion    string

	ProviderRequestID   *string
	ProviderSecondaryID *string

	Status             int32
	ResultCode         *string
	ResultDescription  *string
	RawCallbackPayload *string

	RentalID  *string
	VehicleID *string
	OwnerID   *string
	DriverID  *string
	PayeeType *string

	Version int64

	SubmittedAt *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func IsTerminalRequestStatus(status int32) bool {
	return status == PaymentRequestStatusCompleted || status == PaymentRequestStatusFailed
}

func DirectionName(direction int32) string {
	switch direction {
	case DirectionCollection:
		return "collection"
	case DirectionDisbursement:
		return "disbursement"
	default:
		return ""
	}
}

func PaymentRequestStatusName(status int32) string {
	switch status {
	case PaymentRequestStatusPending:
		return "pending"
	case PaymentRequestStatusSubmitted:
		return "submitted"
	case PaymentRequestStatusCompleted:
		return "completed"
	case PaymentRequestStatusFailed:
		return "failed"
	default:
		return ""
	}
}
