package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-rental-payments/app/entity"
	"github.com/vibast-solutions/ms-go-rental-payments/app/money"
	"github.com/vibast-solutions/ms-go-rental-payments/app/repository"
)

type transactionLister interface {
	List(ctx context.Context, filter repository.TransactionFilter) ([]*entity.Transaction, error)
}

// NetIncomeReport nets revenue against the Confirmed expense entries only.
// Maintenance costs reach net income through CostAllocation entries and feed
// the gross margin directly.
type NetIncomeReport struct {
	Period                Period
	TotalRevenueMinor     int64
	ExpensesMinor         map[int32]int64
	TotalExpensesMinor    int64
	MaintenanceCostsMinor int64
	NetIncomeMinor        int64
	GrossProfitMargin     decimal.Decimal
	NetProfitMargin       decimal.Decimal
}

type ContributionMarginReport struct {
	VehicleID             string
	Period                Period
	SettledRevenueMinor   int64
	MaintenanceCostsMinor int64
	ContributionMinor     int64
}

type OwnerPayoutSnapshot struct {
	OwnerID                  string
	Period                   Period
	GrossVehicleRevenueMinor int64
	PayoutRateType           string
	PayoutRateValue          decimal.Decimal
	ComputedPayoutMinor      int64
}

// FinanceService derives reporting figures from the ledger and the
// registries. Everything is computed in minor units; margins and rates are
// percentages rounded to two places.
type FinanceService struct {
	transactions transactionLister
	registry     Registry
	now          func() time.Time

	// payout_due dedupe keys already published by this process
	publishedMu sync.Mutex
	published   map[string]struct{}
}

func NewFinanceService(transactions transactionLister, registry Registry) *FinanceService {
	return &FinanceService{
		transactions: transactions,
		registry:     registry,
		now:          func() time.Time { return time.Now().UTC() },
		published:    map[string]struct{}{},
	}
}

var expenseKinds = []int32{
	entity.TransactionKindOwnerPayout,
	entity.TransactionKindDriverPayout,
	entity.TransactionKindBrokerCommission,
	entity.TransactionKindCostAllocation,
}

func (s *FinanceService) MonthlyNetIncome(ctx context.Context, period Period) (*NetIncomeReport, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}

	revenue, err := s.recognizedRevenue(ctx, period)
	if err != nil {
		return nil, err
	}

	report := &NetIncomeReport{
		Period:            period,
		TotalRevenueMinor: revenue,
		ExpensesMinor:     make(map[int32]int64, len(expenseKinds)),
	}
	for _, kind := range expenseKinds {
		txns, err := s.confirmed(ctx, repository.TransactionFilter{Kind: kind}, period)
		if err != nil {
			return nil, err
		}
		total := sumAmounts(txns)
		report.ExpensesMinor[kind] = total
		report.TotalExpensesMinor += total
	}

	maintenance, err := s.maintenanceCost(ctx, "", period)
	if err != nil {
		return nil, err
	}
	report.MaintenanceCostsMinor = maintenance
	report.NetIncomeMinor = revenue - report.TotalExpensesMinor
	report.GrossProfitMargin = money.Percent(revenue-maintenance, revenue)
	report.NetProfitMargin = money.Percent(report.NetIncomeMinor, revenue)

	return report, nil
}

// FleetUtilizationRate is the share of the eligible fleet under an active
// rental on date. Out-of-service vehicles are not eligible.
func (s *FinanceService) FleetUtilizationRate(ctx context.Context, date time.Time) (decimal.Decimal, error) {
	eligible, err := s.eligibleFleet(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if len(eligible) == 0 {
		return decimal.Zero, nil
	}

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	rentals, err := s.registry.ListRentalsOverlapping(ctx, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return decimal.Zero, err
	}

	rented := make(map[string]struct{})
	for _, rental := range rentals {
		if rental.Status != entity.RentalStatusActive {
			continue
		}
		if _, ok := eligible[rental.VehicleID]; ok {
			rented[rental.VehicleID] = struct{}{}
		}
	}

	return money.Percent(int64(len(rented)), int64(len(eligible))), nil
}

// RevenuePerAvailableCarDay returns recognized revenue per eligible vehicle
// per day, in minor units.
func (s *FinanceService) RevenuePerAvailableCarDay(ctx context.Context, period Period) (int64, error) {
	if err := period.Validate(); err != nil {
		return 0, err
	}

	eligible, err := s.eligibleFleet(ctx)
	if err != nil {
		return 0, err
	}
	carDays := int64(len(eligible)) * period.Days()
	if carDays == 0 {
		return 0, nil
	}

	revenue, err := s.recognizedRevenue(ctx, period)
	if err != nil {
		return 0, err
	}
	return money.DivideMinor(revenue, carDays), nil
}

// VehicleContributionMargin is settled revenue less maintenance. Only
// collections on rentals that are fully paid count as settled.
func (s *FinanceService) VehicleContributionMargin(ctx context.Context, vehicleID string, period Period) (*ContributionMarginReport, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	vehicleID = strings.TrimSpace(vehicleID)
	vehicle, err := s.registry.GetVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if vehicle == nil {
		return nil, ErrVehicleNotFound
	}

	settled, err := s.settledRevenue(ctx, newRentalCache(s.registry), vehicle.ID, period)
	if err != nil {
		return nil, err
	}

	maintenance, err := s.maintenanceCost(ctx, vehicle.ID, period)
	if err != nil {
		return nil, err
	}

	return &ContributionMarginReport{
		VehicleID:             vehicle.ID,
		Period:                period,
		SettledRevenueMinor:   settled,
		MaintenanceCostsMinor: maintenance,
		ContributionMinor:     settled - maintenance,
	}, nil
}

// OwnerPayoutAmount computes what an owner is owed for the period from the
// settled revenue of their vehicles. A fixed-rate owner is owed the
// fixed amount even when the vehicles earned nothing.
func (s *FinanceService) OwnerPayoutAmount(ctx context.Context, ownerID string, period Period) (*OwnerPayoutSnapshot, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	owner, err := s.registry.GetOwner(ctx, strings.TrimSpace(ownerID))
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, ErrOwnerNotFound
	}
	return s.ownerPayout(ctx, owner, period)
}

func (s *FinanceService) ownerPayout(ctx context.Context, owner *entity.Owner, period Period) (*OwnerPayoutSnapshot, error) {
	vehicles, err := s.registry.ListVehicles(ctx, owner.ID)
	if err != nil {
		return nil, err
	}

	rentals := newRentalCache(s.registry)
	var gross int64
	for _, vehicle := range vehicles {
		settled, err := s.settledRevenue(ctx, rentals, vehicle.ID, period)
		if err != nil {
			return nil, err
		}
		gross += settled
	}

	snapshot := &OwnerPayoutSnapshot{
		OwnerID:                  owner.ID,
		Period:                   period,
		GrossVehicleRevenueMinor: gross,
		PayoutRateType:           owner.PayoutRateType,
		PayoutRateValue:          owner.PayoutRateValue,
	}
	switch owner.PayoutRateType {
	case entity.PayoutRatePercentage:
		snapshot.ComputedPayoutMinor = money.ApplyPercent(gross, owner.PayoutRateValue)
	case entity.PayoutRateFixed:
		snapshot.ComputedPayoutMinor = money.FromMajor(owner.PayoutRateValue)
	default:
		return nil, fmt.Errorf("%w: owner %s has unknown payout rate type %q", ErrValidation, owner.ID, owner.PayoutRateType)
	}
	return snapshot, nil
}

// settledRevenue sums the vehicle's Confirmed collections in the period whose
// rental is fully paid. Pending and partially paid rentals are excluded.
func (s *FinanceService) settledRevenue(ctx context.Context, rentals *rentalCache, vehicleID string, period Period) (int64, error) {
	txns, err := s.confirmed(ctx, repository.TransactionFilter{
		Kind:      entity.TransactionKindCollection,
		VehicleID: vehicleID,
	}, period)
	if err != nil {
		return 0, err
	}

	var settled int64
	for _, txn := range txns {
		if txn.RelatedRentalID == nil {
			continue
		}
		rental, err := rentals.get(ctx, *txn.RelatedRentalID)
		if err != nil {
			return 0, err
		}
		if rental != nil && rental.PaymentStatus == entity.RentalPaymentPaid {
			settled += txn.AmountMinor
		}
	}
	return settled, nil
}

// recognizedRevenue sums Confirmed collections in the period. A rental
// introduced by a brokerage contributes only the platform's commission share.
func (s *FinanceService) recognizedRevenue(ctx context.Context, period Period) (int64, error) {
	txns, err := s.confirmed(ctx, repository.TransactionFilter{Kind: entity.TransactionKindCollection}, period)
	if err != nil {
		return 0, err
	}

	rentals := newRentalCache(s.registry)
	var revenue int64
	for _, txn := range txns {
		amount := txn.AmountMinor
		if txn.RelatedRentalID != nil {
			rental, err := rentals.get(ctx, *txn.RelatedRentalID)
			if err != nil {
				return 0, err
			}
			if rental.IsBrokered() {
				var bps int64
				if rental.CommissionShareBps != nil {
					bps = *rental.CommissionShareBps
				}
				amount = money.ApplyBps(amount, bps)
			}
		}
		revenue += amount
	}
	return revenue, nil
}

func (s *FinanceService) confirmed(ctx context.Context, filter repository.TransactionFilter, period Period) ([]*entity.Transaction, error) {
	from, to := period.From, period.To
	filter.HasStatus = true
	filter.Status = entity.TransactionStatusConfirmed
	filter.From = &from
	filter.To = &to
	return s.transactions.List(ctx, filter)
}

func (s *FinanceService) maintenanceCost(ctx context.Context, vehicleID string, period Period) (int64, error) {
	records, err := s.registry.ListMaintenance(ctx, vehicleID, period.From, period.To)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, record := range records {
		total += record.CostMinor
	}
	return total, nil
}

func (s *FinanceService) eligibleFleet(ctx context.Context) (map[string]struct{}, error) {
	vehicles, err := s.registry.ListVehicles(ctx, "")
	if err != nil {
		return nil, err
	}
	eligible := make(map[string]struct{}, len(vehicles))
	for _, vehicle := range vehicles {
		if vehicle.Status == entity.VehicleStatusOutOfService {
			continue
		}
		eligible[vehicle.ID] = struct{}{}
	}
	return eligible, nil
}

func sumAmounts(txns []*entity.Transaction) int64 {
	var total int64
	for _, txn := range txns {
		total += txn.AmountMinor
	}
	return total
}

type rentalCache struct {
	registry Registry
	rentals  map[string]*entity.Rental
}

func newRentalCache(registry Registry) *rentalCache {
	return &rentalCache{registry: registry, rentals: map[string]*entity.Rental{}}
}

func (c *rentalCache) get(ctx context.Context, id string) (*entity.Rental, error) {
	if rental, ok := c.rentals[id]; ok {
		return rental, nil
	}
	rental, err := c.registry.GetRental(ctx, id)
	if err != nil {
		return nil, err
	}
	c.rentals[id] = rental
	return rental, nil
}
