package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-rental-payments/app/entity"
)

var ErrDuplicateReceipt = errors.New("provider receipt already recorded")

const transactionColumns = `
	id, kind, amount_minor, currency, status, occurred_at, provider_receipt_id, payment_request_id,
	related_rental_id, related_vehicle_id, related_owner_id, related_driver_id, reversal_reason,
	created_at, updated_at
`

type TransactionFilter struct {
	Kind      int32
	HasStatus bool
	Status    int32
	From      *time.Time
	To        *time.Time
	RentalID  string
	VehicleID string
	OwnerID   string
	DriverID  string
	Limit     int32
	Offset    int32
}

// KindTotal is one row of a per-kind aggregate.
type KindTotal struct {
	Kind       int32
	Count      int64
	TotalMinor int64
}

type TransactionRepository struct {
	db DBTX
}

func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, txn *entity.Transaction) error {
	query := `
		INSERT INTO transactions (
			kind, amount_minor, currency, status, occurred_at, provider_receipt_id, payment_request_id,
			related_rental_id, related_vehicle_id, related_owner_id, related_driver_id, reversal_reason,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		txn.Kind,
		txn.AmountMinor,
		txn.Currency,
		txn.Status,
		txn.OccurredAt,
		nullableStringValue(txn.ProviderReceiptID),
		nullableUint64Value(txn.PaymentRequestID),
		nullableStringValue(txn.RelatedRentalID),
		nullableStringValue(txn.RelatedVehicleID),
		nullableStringValue(txn.RelatedOwnerID),
		nullableStringValue(txn.RelatedDriverID),
		nullableStringValue(txn.ReversalReason),
		txn.CreatedAt,
		txn.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrDuplicateReceipt
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	txn.ID = uint64(id)
	return nil
}

func (r *TransactionRepository) FindByID(ctx context.Context, id uint64) (*entity.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`
	return r.findOne(ctx, query, id)
}

func (r *TransactionRepository) FindByReceipt(ctx context.Context, receiptID string) (*entity.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE provider_receipt_id = ? LIMIT 1`
	return r.findOne(ctx, query, receiptID)
}

// List returns matching entries newest first. A zero Limit means no limit.
func (r *TransactionRepository) List(ctx context.Context, filter TransactionFilter) ([]*entity.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions`
	conditions, args := transactionConditions(filter)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY occurred_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txns := make([]*entity.Transaction, 0)
	for rows.Next() {
		txn := &entity.Transaction{}
		if err := scanTransaction(rows, txn); err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return txns, nil
}

// SummarizeByKind aggregates Confirmed entries with occurred_at in [from, to).
func (r *TransactionRepository) SummarizeByKind(ctx context.Context, from, to time.Time) ([]KindTotal, error) {
	query := `
		SELECT kind, COUNT(*), COALESCE(SUM(amount_minor), 0)
		FROM transactions
		WHERE status = ?
		  AND occurred_at >= ?
		  AND occurred_at < ?
		GROUP BY kind
		ORDER BY kind ASC
	`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, entity.TransactionStatusConfirmed, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make([]KindTotal, 0)
	for rows.Next() {
		var total KindTotal
		if err := rows.Scan(&total.Kind, &total.Count, &total.TotalMinor); err != nil {
			return nil, err
		}
		totals = append(totals, total)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return totals, nil
}

// SumConfirmedForRental totals the Confirmed collections recorded against a rental.
func (r *TransactionRepository) SumConfirmedForRental(ctx context.Context, rentalID string) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount_minor), 0)
		FROM transactions
		WHERE kind = ? AND status = ? AND related_rental_id = ?
	`

	var total int64
	if err := conn(ctx, r.db).QueryRowContext(ctx, query,
		entity.TransactionKindCollection, entity.TransactionStatusConfirmed, rentalID,
	).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// Reverse flips a Confirmed entry to Reversed. ErrVersionConflict means the
// entry was not Confirmed any more.
func (r *TransactionRepository) Reverse(ctx context.Context, id uint64, reason string, now time.Time) error {
	query := `
		UPDATE transactions SET
			status = ?,
			reversal_reason = ?,
			updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		entity.TransactionStatusReversed,
		reason,
		now,
		id,
		entity.TransactionStatusConfirmed,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func transactionConditions(filter TransactionFilter) ([]string, []interface{}) {
	conditions := make([]string, 0, 8)
	args := make([]interface{}, 0, 10)

	if filter.Kind > 0 {
		conditions = append(conditions, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.HasStatus {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.From != nil {
		conditions = append(conditions, "occurred_at >= ?")
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, "occurred_at < ?")
		args = append(args, *filter.To)
	}
	if strings.TrimSpace(filter.RentalID) != "" {
		conditions = append(conditions, "related_rental_id = ?")
		args = append(args, filter.RentalID)
	}
	if strings.TrimSpace(filter.VehicleID) != "" {
		conditions = append(conditions, "related_vehicle_id = ?")
		args = append(args, filter.VehicleID)
	}
	if strings.TrimSpace(filter.OwnerID) != "" {
		conditions = append(conditions, "related_owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if strings.TrimSpace(filter.DriverID) != "" {
		conditions = append(conditions, "related_driver_id = ?")
		args = append(args, filter.DriverID)
	}

	return conditions, args
}

func (r *TransactionRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.Transaction, error) {
	txn := &entity.Transaction{}
	if err := scanTransaction(conn(ctx, r.db).QueryRowContext(ctx, query, args...), txn); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return txn, nil
}

func scanTransaction(scan rowScanner, txn *entity.Transaction) error {
	var receiptID sql.NullString
	var paymentRequestID sql.NullInt64
	var rentalID sql.NullString
	var vehicleID sql.NullString
	var ownerID sql.NullString
	var driverID sql.NullString
	var reversalReason sql.NullString

	err := scan.Scan(
		&txn.ID,
		&txn.Kind,
		&txn.AmountMinor,
		&txn.Currency,
		&txn.Status,
		&txn.OccurredAt,
		&receiptID,
		&paymentRequestID,
		&rentalID,
		&vehicleID,
		&ownerID,
		&driverID,
		&reversalReason,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return err
	}

	txn.ProviderReceiptID = stringPtrFromNull(receiptID)
	txn.PaymentRequestID = uint64PtrFromNull(paymentRequestID)
	txn.RelatedRentalID = stringPtrFromNull(rentalID)
	txn.RelatedVehicleID = stringPtrFromNull(vehicleID)
	txn.RelatedOwnerID = stringPtrFromNull(ownerID)
	txn.RelatedDriverID = stringPtrFromNull(driverID)
	txn.ReversalReason = stringPtrFromNull(reversalReason)

	return nil
}
