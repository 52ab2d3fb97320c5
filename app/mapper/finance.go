package mapper

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-rental-payments/app/entity"
	"github.com/vibast-solutions/ms-go-rental-payments/app/money"
	"github.com/vibast-solutions/ms-go-rental-payments/app/service"
	"github.com/vibast-solutions/ms-go-rental-payments/app/types"
)

func NetIncomeToDTO(report *service.NetIncomeReport) *types.NetIncomeResponse {
	if report == nil {
		return nil
	}

	expenses := make(map[string]string, len(report.ExpensesMinor))
	for kind, total := range report.ExpensesMinor {
		expenses[entity.TransactionKindName(kind)] = money.Format(total)
	}

	return &types.NetIncomeResponse{
		From:                 formatTime(report.Period.From),
		To:                   formatTime(report.Period.To),
		TotalRevenue:         money.Format(report.TotalRevenueMinor),
		Expenses:             expenses,
		TotalExpenses:        money.Format(report.TotalExpensesMinor),
		MaintenanceCosts:     money.Format(report.MaintenanceCostsMinor),
		NetIncome:            money.Format(report.NetIncomeMinor),
		GrossProfitMarginPct: report.GrossProfitMargin.StringFixed(2),
		NetProfitMarginPct:   report.NetProfitMargin.StringFixed(2),
	}
}

func UtilizationToDTO(date time.Time, rate decimal.Decimal) *types.FleetUtilizationResponse {
	return &types.FleetUtilizationResponse{
		Date:    date.UTC().Format("2006-01-02"),
		RatePct: rate.StringFixed(2),
	}
}

func RevenuePerCarDayToDTO(period service.Period, valueMinor int64) *types.RevenuePerCarDayResponse {
	return &types.RevenuePerCarDayResponse{
		From:  formatTime(period.From),
		To:    formatTime(period.To),
		Value: money.Format(valueMinor),
	}
}

func ContributionMarginToDTO(report *service.ContributionMarginReport) *types.ContributionMarginResponse {
	if report == nil {
		return nil
	}
	return &types.ContributionMarginResponse{
		VehicleID:        report.VehicleID,
		From:             formatTime(report.Period.From),
		To:               formatTime(report.Period.To),
		SettledRevenue:   money.Format(report.SettledRevenueMinor),
		MaintenanceCosts: money.Format(report.MaintenanceCostsMinor),
		Contribution:     money.Format(report.ContributionMinor),
	}
}

func OwnerPayoutToDTO(snapshot *service.OwnerPayoutSnapshot) *types.OwnerPayoutResponse {
	if snapshot == nil {
		return nil
	}
	return &types.OwnerPayoutResponse{
		OwnerID:             snapshot.OwnerID,
		From:                formatTime(snapshot.Period.From),
		To:                  formatTime(snapshot.Period.To),
		GrossVehicleRevenue: money.Format(snapshot.GrossVehicleRevenueMinor),
		PayoutRateType:      snapshot.PayoutRateType,
		PayoutRateValue:     snapshot.PayoutRateValue.String(),
		ComputedPayout:      money.Format(snapshot.ComputedPayoutMinor),
		ComputedPayoutMinor: snapshot.ComputedPayoutMinor,
	}
}
