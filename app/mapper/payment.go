package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-rental-payments/app/entity"
	"github.com/vibast-solutions/ms-go-rental-payments/app/money"
	"github.com/vibast-solutions/ms-go-rental-payments/app/service"
	"github.com/vibast-solutions/ms-go-rental-payments/app/types"
)

func PaymentRequestToDTO(item *entity.PaymentRequest) *types.PaymentRequest {
	if item == nil {
		return nil
	}

	return &types.PaymentRequest{
		CorrelationID:       item.CorrelationID,
		Direction:           entity.DirectionName(item.Direction),
		AmountMinor:         item.AmountMinor,
		Amount:              money.Format(item.AmountMinor),
		Currency:            item.Currency,
		Msisdn:              item.Msisdn,
		Status:              entity.PaymentRequestStatusName(item.Status),
		ProviderRequestID:   derefString(item.ProviderRequestID),
		ProviderSecondaryID: derefString(item.ProviderSecondaryID),
		ResultCode:          derefString(item.ResultCode),
		ResultDescription:   derefString(item.ResultDescription),
		RentalID:            derefString(item.RentalID),
		VehicleID:           derefString(item.VehicleID),
		OwnerID:             derefString(item.OwnerID),
		DriverID:            derefString(item.DriverID),
		PayeeType:           derefString(item.PayeeType),
		SubmittedAt:         formatOptionalTime(item.SubmittedAt),
		CompletedAt:         formatOptionalTime(item.CompletedAt),
		CreatedAt:           formatTime(item.CreatedAt),
		UpdatedAt:           formatTime(item.UpdatedAt),
	}
}

func PaymentRequestsToDTO(items []*entity.PaymentRequest) []*types.PaymentRequest {
	result := make([]*types.PaymentRequest, 0, len(items))
	for _, item := range items {
		result = append(result, PaymentRequestToDTO(item))
	}
	return result
}

func InitiationToDTO(result *service.InitiationResult) *types.InitiationResponse {
	if result == nil {
		return nil
	}
	return &types.InitiationResponse{
		CorrelationID:  result.CorrelationID,
		AckStatus:      result.AckStatus,
		PaymentRequest: PaymentRequestToDTO(result.Request),
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
