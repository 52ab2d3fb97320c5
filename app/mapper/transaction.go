package mapper

import (
	"github.com/vibast-solutions/ms-go-rental-payments/app/entity"
	"github.com/vibast-solutions/ms-go-rental-payments/app/money"
	"github.com/vibast-solutions/ms-go-rental-payments/app/service"
	"github.com/vibast-solutions/ms-go-rental-payments/app/types"
)

func TransactionToDTO(item *entity.Transaction) *types.Transaction {
	if item == nil {
		return nil
	}

	return &types.Transaction{
		ID:                item.ID,
		Kind:              entity.TransactionKindName(item.Kind),
		AmountMinor:       item.AmountMinor,
		Amount:            money.Format(item.AmountMinor),
		Currency:          item.Currency,
		Status:            entity.TransactionStatusName(item.Status),
		OccurredAt:        formatTime(item.OccurredAt),
		ProviderReceiptID: derefString(item.ProviderReceiptID),
		RentalID:          derefString(item.RelatedRentalID),
		VehicleID:         derefString(item.RelatedVehicleID),
		OwnerID:           derefString(item.RelatedOwnerID),
		DriverID:          derefString(item.RelatedDriverID),
		ReversalReason:    derefString(item.ReversalReason),
		CreatedAt:         formatTime(item.CreatedAt),
	}
}

func TransactionsToDTO(items []*entity.Transaction) []*types.Transaction {
	result := make([]*types.Transaction, 0, len(items))
	for _, item := range items {
		result = append(result, TransactionToDTO(item))
	}
	return result
}

// SummaryToDTO lists every kind, including those with no entries, in kind order.
func SummaryToDTO(period service.Period, summary map[int32]service.KindSummary, currency string) *types.TransactionsSummaryResponse {
	kinds := []int32{
		entity.TransactionKindCollection,
		entity.TransactionKindOwnerPayout,
		entity.TransactionKindDriverPayout,
		entity.TransactionKindCostAllocation,
		entity.TransactionKindBrokerCommission,
	}

	response := &types.TransactionsSummaryResponse{
		From:  formatTime(period.From),
		To:    formatTime(period.To),
		Kinds: make([]*types.KindSummary, 0, len(kinds)),
	}
	for _, kind := range kinds {
		item := summary[kind]
		response.Kinds = append(response.Kinds, &types.KindSummary{
			Kind:       entity.TransactionKindName(kind),
			Count:      item.Count,
			TotalMinor: item.TotalMinor,
			Total:      money.Format(item.TotalMinor),
			Currency:   currency,
		})
	}
	return response
}
