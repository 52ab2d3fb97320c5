package service

import (
	"context"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-rental-payments/app/entity"
)

// Registry is the read side of the rental, fleet, owner and driver records
// owned by the rest of the platform.
type Registry interface {
	GetRental(ctx context.Context, id string) (*entity.Rental, error)
	ListRentalsOverlapping(ctx context.Context, from, to time.Time) ([]*entity.Rental, error)
	GetVehicle(ctx context.Context, id string) (*entity.Vehicle, error)
	ListVehicles(ctx context.Context, ownerID string) ([]*entity.Vehicle, error)
	GetOwner(ctx context.Context, id string) (*entity.Owner, error)
	ListOwners(ctx context.Context) ([]*entity.Owner, error)
	GetDriver(ctx context.Context, id string) (*entity.Driver, error)
	ListMaintenance(ctx context.Context, vehicleID string, from, to time.Time) ([]*entity.MaintenanceRecord, error)
}

type RentalPaymentStatusSetter interface {
	SetRentalPaymentStatus(ctx context.Context, rentalID, status string) error
}

type PayoutRecorder interface {
	RecordLastPayout(ctx context.Context, payeeType, payeeID string, amountMinor int64, at time.Time) error
}

// EventPublisher receives events after the state change they describe has
// been committed. Delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, event *entity.DomainEvent) error
}

type rentalTotals interface {
	SumConfirmedForRental(ctx context.Context, rentalID string) (int64, error)
}

type rentalReader interface {
	GetRental(ctx context.Context, id string) (*entity.Rental, error)
}

// RentalPaymentHook decides whether a rental is paid or partially paid from
// the confirmed collections recorded against it.
type RentalPaymentHook struct {
	rentals rentalReader
	totals  rentalTotals
	setter  RentalPaymentStatusSetter
}

func NewRentalPaymentHook(rentals rentalReader, totals rentalTotals, setter RentalPaymentStatusSetter) *RentalPaymentHook {
	return &RentalPaymentHook{rentals: rentals, totals: totals, setter: setter}
}

func (h *RentalPaymentHook) CollectionConfirmed(ctx context.Context, rentalID string) error {
	rental, err := h.rentals.GetRental(ctx, rentalID)
	if err != nil {
		return err
	}
	if rental == nil {
		return fmt.Errorf("rental %s not found", rentalID)
	}

	collected, err := h.totals.SumConfirmedForRental(ctx, rentalID)
	if err != nil {
		return err
	}

	status := entity.RentalPaymentPartial
	switch {
	case collected <= 0:
		status = entity.RentalPaymentPending
	case collected >= rental.TotalAmountMinor:
		status = entity.RentalPaymentPaid
	}
	if status == rental.PaymentStatus {
		return nil
	}

	return h.setter.SetRentalPaymentStatus(ctx, rentalID, status)
}
