package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RentalStatusActive    = "active"
	RentalStatusCompleted = "completed"
	RentalStatusCancelled = "cancelled"
)

const (
	RentalPaymentPending = "pending"
	RentalPaymentPartial = "partial"
	RentalPaymentPaid    = "paid"
)

const (
	VehicleStatusAvailable    = "available"
	VehicleStatusRented       = "rented"
	VehicleStatusMaintenance  = "maintenance"
	VehicleStatusOutOfService = "out_of_service"
)

const (
	PayoutRatePercentage = "percentage"
	PayoutRateFixed      = "fixed"
)

// Rental is a read model owned by the rentals module.
type Rental struct {
	ID               string
	VehicleID        string
	DriverID         *string
	CustomerMsisdn   string
	Status           string
	PaymentStatus    string
	TotalAmountMinor int64
	StartDate        time.Time
	EndDate          time.Time

	// BrokerID is set for rentals introduced by a third-party brokerage.
	BrokerID *string
	// CommissionShareBps is the platform's share of a brokered rental, in basis points.
	CommissionShareBps *int64
}

func (r *Rental) IsBrokered() bool {
	return r != nil && r.BrokerID != nil && *r.BrokerID != ""
}

type Vehicle struct {
	ID      string
	OwnerID string
	Plate   string
	Status  string
}

type Owner struct {
	ID              string
	Name            string
	Msisdn          string
	PayoutRateType  string
	PayoutRateValue decimal.Decimal
	PayoutDueDay    int
	LastPayoutAt    *time.Time
	LastPayoutMinor *int64
}

type Driver struct {
	ID              string
	Name            string
	Msisdn          string
	LastPayoutAt    *time.Time
	LastPayoutMinor *int64
}

type MaintenanceRecord struct {
	ID          uint64
	VehicleID   string
	CostMinor   int64
	PerformedAt time.Time
}
