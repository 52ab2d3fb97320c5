package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-rental-payments/app/entity"
)

var ErrUnknownPayeeType = errors.New("unknown payee type")

// RegistryRepository reads the rental, vehicle, owner, driver and
// maintenance tables maintained by the rest of the platform. The only
// writes are the payment status of a rental and the last-payout columns.
type RegistryRepository struct {
	db DBTX
}

func NewRegistryRepository(db DBTX) *RegistryRepository {
	return &RegistryRepository{db: db}
}

const rentalColumns = `
	id, vehicle_id, driver_id, customer_msisdn, status, payment_status, total_amount_minor,
	start_date, end_date, broker_id, commission_share_bps
`

func (r *RegistryRepository) GetRental(ctx context.Context, id string) (*entity.Rental, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals WHERE id = ?`

	rental := &entity.Rental{}
	if err := scanRental(conn(ctx, r.db).QueryRowContext(ctx, query, id), rental); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return rental, nil
}

// ListRentalsOverlapping returns rentals whose [start_date, end_date] span
// touches [from, to).
func (r *RegistryRepository) ListRentalsOverlapping(ctx context.Context, from, to time.Time) ([]*entity.Rental, error) {
	query := `
		SELECT ` + rentalColumns + `
		FROM rentals
		WHERE start_date < ? AND end_date >= ?
		ORDER BY start_date ASC
	`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, to, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rentals := make([]*entity.Rental, 0)
	for rows.Next() {
		rental := &entity.Rental{}
		if err := scanRental(rows, rental); err != nil {
			return nil, err
		}
		rentals = append(rentals, rental)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rentals, nil
}

func (r *RegistryRepository) SetRentalPaymentStatus(ctx context.Context, rentalID, status string) error {
	query := `UPDATE rentals SET payment_status = ? WHERE id = ?`
	_, err := conn(ctx, r.db).ExecContext(ctx, query, status, rentalID)
	return err
}

func (r *RegistryRepository) GetVehicle(ctx context.Context, id string) (*entity.Vehicle, error) {
	query := `SELECT id, owner_id, plate, status FROM vehicles WHERE id = ?`

	vehicle := &entity.Vehicle{}
	err := conn(ctx, r.db).QueryRowContext(ctx, query, id).Scan(&vehicle.ID, &vehicle.OwnerID, &vehicle.Plate, &vehicle.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return vehicle, nil
}

// ListVehicles returns the whole fleet, or one owner's vehicles when ownerID
// is set.
func (r *RegistryRepository) ListVehicles(ctx context.Context, ownerID string) ([]*entity.Vehicle, error) {
	query := `SELECT id, owner_id, plate, status FROM vehicles`
	args := make([]interface{}, 0, 1)
	if strings.TrimSpace(ownerID) != "" {
		query += " WHERE owner_id = ?"
		args = append(args, ownerID)
	}
	query += " ORDER BY id ASC"

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vehicles := make([]*entity.Vehicle, 0)
	for rows.Next() {
		vehicle := &entity.Vehicle{}
		if err := rows.Scan(&vehicle.ID, &vehicle.OwnerID, &vehicle.Plate, &vehicle.Status); err != nil {
			return nil, err
		}
		vehicles = append(vehicles, vehicle)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vehicles, nil
}

const ownerColumns = `
	id, name, msisdn, payout_rate_type, payout_rate_value, payout_due_day, last_payout_at, last_payout_minor
`

func (r *RegistryRepository) GetOwner(ctx context.Context, id string) (*entity.Owner, error) {
	query := `SELECT ` + ownerColumns + ` FROM owners WHERE id = ?`

	owner := &entity.Owner{}
	if err := scanOwner(conn(ctx, r.db).QueryRowContext(ctx, query, id), owner); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return owner, nil
}

func (r *RegistryRepository) ListOwners(ctx context.Context) ([]*entity.Owner, error) {
	query := `SELECT ` + ownerColumns + ` FROM owners ORDER BY id ASC`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	owners := make([]*entity.Owner, 0)
	for rows.Next() {
		owner := &entity.Owner{}
		if err := scanOwner(rows, owner); err != nil {
			return nil, err
		}
		owners = append(owners, owner)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return owners, nil
}

func (r *RegistryRepository) GetDriver(ctx context.Context, id string) (*entity.Driver, error) {
	query := `SELECT id, name, msisdn, last_payout_at, last_payout_minor FROM drivers WHERE id = ?`

	driver := &entity.Driver{}
	var lastPayoutAt sql.NullTime
	var lastPayoutMinor sql.NullInt64
	err := conn(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&driver.ID, &driver.Name, &driver.Msisdn, &lastPayoutAt, &lastPayoutMinor,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	driver.LastPayoutAt = timePtrFromNull(lastPayoutAt)
	driver.LastPayoutMinor = int64PtrFromNull(lastPayoutMinor)
	return driver, nil
}

// RecordLastPayout stamps the payee's last payout. Broker payouts have no
// registry row and are ignored.
func (r *RegistryRepository) RecordLastPayout(ctx context.Context, payeeType, payeeID string, amountMinor int64, at time.Time) error {
	var table string
	switch payeeType {
	case entity.PayeeTypeOwner:
		table = "owners"
	case entity.PayeeTypeDriver:
		table = "drivers"
	case entity.PayeeTypeBroker:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownPayeeType, payeeType)
	}

	query := `UPDATE ` + table + ` SET last_payout_at = ?, last_payout_minor = ? WHERE id = ?`
	_, err := conn(ctx, r.db).ExecContext(ctx, query, at, amountMinor, payeeID)
	return err
}

// ListMaintenance returns maintenance performed in [from, to), optionally
// for a single vehicle.
func (r *RegistryRepository) ListMaintenance(ctx context.Context, vehicleID string, from, to time.Time) ([]*entity.MaintenanceRecord, error) {
	query := `
		SELECT id, vehicle_id, cost_minor, performed_at
		FROM maintenance_records
		WHERE performed_at >= ? AND performed_at < ?
	`
	args := []interface{}{from, to}
	if strings.TrimSpace(vehicleID) != "" {
		query += " AND vehicle_id = ?"
		args = append(args, vehicleID)
	}
	query += " ORDER BY performed_at ASC"

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*entity.MaintenanceRecord, 0)
	for rows.Next() {
		record := &entity.MaintenanceRecord{}
		if err := rows.Scan(&record.ID, &record.VehicleID, &record.CostMinor, &record.PerformedAt); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func scanRental(scan rowScanner, rental *entity.Rental) error {
	var driverID sql.NullString
	var brokerID sql.NullString
	var commissionShareBps sql.NullInt64

	err := scan.Scan(
		&rental.ID,
		&rental.VehicleID,
		&driverID,
		&rental.CustomerMsisdn,
		&rental.Status,
		&rental.PaymentStatus,
		&rental.TotalAmountMinor,
		&rental.StartDate,
		&rental.EndDate,
		&brokerID,
		&commissionShareBps,
	)
	if err != nil {
		return err
	}

	rental.DriverID = stringPtrFromNull(driverID)
	rental.BrokerID = stringPtrFromNull(brokerID)
	rental.CommissionShareBps = int64PtrFromNull(commissionShareBps)
	return nil
}

func scanOwner(scan rowScanner, owner *entity.Owner) error {
	var lastPayoutAt sql.NullTime
	var lastPayoutMinor sql.NullInt64

	err := scan.Scan(
		&owner.ID,
		&owner.Name,
		&owner.Msisdn,
		&owner.PayoutRateType,
		&owner.PayoutRateValue,
		&owner.PayoutDueDay,
		&lastPayoutAt,
		&lastPayoutMinor,
	)
	if err != nil {
		return err
	}

	owner.LastPayoutAt = timePtrFromNull(lastPayoutAt)
	owner.LastPayoutMinor = int64PtrFromNull(lastPayoutMinor)
	return nil
}
