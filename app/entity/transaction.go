package entity

import "time"

const (
	TransactionKindCollection       int32 = 1
	TransactionKindOwnerPayout      int32 = 2
	TransactionKindDriverPayout     int32 = 3
	TransactionKindCostAllocation   int32 = 4
	TransactionKindBrokerCommission int32 = 5
)

const (
	TransactionStatusPending   int32 = 1
	TransactionStatusConfirmed int32 = 10
	TransactionStatusFailed    int32 = 20
	TransactionStatusReversed  int32 = 30
)

type Transaction struct {
	ID uint64

	Kind        int32
	AmountMinor int64
	Currency    string
	Status      int32
	OccurredAt  time.Time

	ProviderReceiptID *string
	PaymentRequestID  *uint64

	RelatedRentalID  *string
	RelatedVehicleID *string
	RelatedOwnerID   *string
	RelatedDriverID  *string

	ReversalReason *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

var transactionKindNames = map[int32]string{
	TransactionKindCollection:       "collection",
	TransactionKindOwnerPayout:      "owner_payout",
	TransactionKindDriverPayout:     "driver_payout",
	TransactionKindCostAllocation:   "cost_allocation",
	TransactionKindBrokerCommission: "broker_commission",
}

var transactionStatusNames = map[int32]string{
	TransactionStatusPending:   "pending",
	TransactionStatusConfirmed: "confirmed",
	TransactionStatusFailed:    "failed",
	TransactionStatusReversed:  "reversed",
}

func TransactionKindName(kind int32) string {
	return transactionKindNames[kind]
}

func ParseTransactionKind(name string) (int32, bool) {
	for kind, candidate := range transactionKindNames {
		if candidate == name {
			return kind, true
		}
	}
	return 0, false
}

func TransactionStatusName(status int32) string {
	return transactionStatusNames[status]
}

func ParseTransactionStatus(name string) (int32, bool) {
	for status, candidate := range transactionStatusNames {
		if candidate == name {
			return status, true
		}
	}
	return 0, false
}
