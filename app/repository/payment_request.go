package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-rental-payments/app/entity"
)

var ErrPaymentRequestAlreadyExists = errors.New("payment request already exists")

const paymentRequestColumns = `
	id, correlation_id, direction, amount_minor, currency, msisdn, description, remarks, occasion,
	provider_request_id, provider_secondary_id, status, result_code, result_description, raw_callback_payload,
	rental_id, vehicle_id, owner_id, driver_id, payee_type,
	version, submitted_at, completed_at, created_at, updated_at
`

type PaymentRequestRepository struct {
	db DBTX
}

func NewPaymentRequestRepository(db DBTX) *PaymentRequestRepository {
	return &PaymentRequestRepository{db: db}
}

func (r *PaymentRequestRepository) Create(ctx context.Context, request *entity.PaymentRequest) error {
	query := `
		INSERT INTO payment_requests (
			correlation_id, direction, amount_minor, currency, msisdn, description, remarks, occasion,
			provider_request_id, provider_secondary_id, status, result_code, result_description, raw_callback_payload,
			rental_id, vehicle_id, owner_id, driver_id, payee_type,
			version, submitted_at, completed_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		request.CorrelationID,
		request.Direction,
		request.AmountMinor,
		request.Currency,
		request.Msisdn,
		request.Description,
		request.Remarks,
		request.Occasion,
		nullableStringValue(request.ProviderRequestID),
		nullableStringValue(request.ProviderSecondaryID),
		request.Status,
		nullableStringValue(request.ResultCode),
		nullableStringValue(request.ResultDescription),
		nullableStringValue(request.RawCallbackPayload),
		nullableStringValue(request.RentalID),
		nullableStringValue(request.VehicleID),
		nullableStringValue(request.OwnerID),
		nullableStringValue(request.DriverID),
		nullableStringValue(request.PayeeType),
		request.Version,
		nullableTimeValue(request.SubmittedAt),
		nullableTimeValue(request.CompletedAt),
		request.CreatedAt,
		request.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPaymentRequestAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	request.ID = uint64(id)
	return nil
}

// Update writes the mutable columns only if the row still carries
// request.Version. On success the version is advanced in place.
func (r *PaymentRequestRepository) Update(ctx context.Context, request *entity.PaymentRequest) error {
	query := `
		UPDATE payment_requests SET
			provider_request_id = ?,
			provider_secondary_id = ?,
			status = ?,
			result_code = ?,
			result_description = ?,
			raw_callback_payload = ?,
			submitted_at = ?,
			completed_at = ?,
			version = version + 1,
			updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		nullableStringValue(request.ProviderRequestID),
		nullableStringValue(request.ProviderSecondaryID),
		request.Status,
		nullableStringValue(request.ResultCode),
		nullableStringValue(request.ResultDescription),
		nullableStringValue(request.RawCallbackPayload),
		nullableTimeValue(request.SubmittedAt),
		nullableTimeValue(request.CompletedAt),
		request.UpdatedAt,
		request.ID,
		request.Version,
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

	request.Version++
	return nil
}

func (r *PaymentRequestRepository) FindByID(ctx context.Context, id uint64) (*entity.PaymentRequest, error) {
	query := `SELECT ` + paymentRequestColumns + ` FROM payment_requests WHERE id = ?`
	return r.findOne(ctx, query, id)
}

func (r *PaymentRequestRepository) FindByCorrelationID(ctx context.Context, correlationID string) (*entity.PaymentRequest, error) {
	query := `SELECT ` + paymentRequestColumns + ` FROM payment_requests WHERE correlation_id = ? LIMIT 1`
	return r.findOne(ctx, query, correlationID)
}

// FindByProviderID matches either provider identifier, since the two
// callback shapes echo different ones.
func (r *PaymentRequestRepository) FindByProviderID(ctx context.Context, providerID string) (*entity.PaymentRequest, error) {
	query := `
		SELECT ` + paymentRequestColumns + `
		FROM payment_requests
		WHERE provider_request_id = ? OR provider_secondary_id = ?
		ORDER BY id DESC
		LIMIT 1
	`
	return r.findOne(ctx, query, providerID, providerID)
}

func (r *PaymentRequestRepository) ListStaleSubmitted(ctx context.Context, submittedBefore time.Time, limit int32) ([]*entity.PaymentRequest, error) {
	query := `
		SELECT ` + paymentRequestColumns + `
		FROM payment_requests
		WHERE status = ?
		  AND submitted_at IS NOT NULL
		  AND submitted_at <= ?
		ORDER BY submitted_at ASC
		LIMIT ?
	`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, entity.PaymentRequestStatusSubmitted, submittedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := make([]*entity.PaymentRequest, 0)
	for rows.Next() {
		request := &entity.PaymentRequest{}
		if err := scanPaymentRequest(rows, request); err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return requests, nil
}

func (r *PaymentRequestRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.PaymentRequest, error) {
	request := &entity.PaymentRequest{}
	if err := scanPaymentRequest(conn(ctx, r.db).QueryRowContext(ctx, query, args...), request); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return request, nil
}

func scanPaymentRequest(scan rowScanner, request *entity.PaymentRequest) error {
	var providerRequestID sql.NullString
	var providerSecondaryID sql.NullString
	var resultCode sql.NullString
	var resultDescription sql.NullString
	var rawCallbackPayload sql.NullString
	var rentalID sql.NullString
	var vehicleID sql.NullString
	var ownerID sql.NullString
	var driverID sql.NullString
	var payeeType sql.NullString
	var submittedAt sql.NullTime
	var completedAt sql.NullTime

	err := scan.Scan(
		&request.ID,
		&request.CorrelationID,
		&request.Direction,
		&request.AmountMinor,
		&request.Currency,
		&request.Msisdn,
		&request.Description,
		&request.Remarks,
		&request.Occasion,
		&providerRequestID,
		&providerSecondaryID,
		&request.Status,
		&resultCode,
		&resultDescription,
		&rawCallbackPayload,
		&rentalID,
		&vehicleID,
		&ownerID,
		&driverID,
		&payeeType,
		&request.Version,
		&submittedAt,
		&completedAt,
		&request.CreatedAt,
		&request.UpdatedAt,
	)
	if err != nil {
		return err
	}

	request.ProviderRequestID = stringPtrFromNull(providerRequestID)
	request.ProviderSecondaryID = stringPtrFromNull(providerSecondaryID)
	request.ResultCode = stringPtrFromNull(resultCode)
	request.ResultDescription = stringPtrFromNull(resultDescription)
	request.RawCallbackPayload = stringPtrFromNull(rawCallbackPayload)
	request.RentalID = stringPtrFromNull(rentalID)
	request.VehicleID = stringPtrFromNull(vehicleID)
	request.OwnerID = stringPtrFromNull(ownerID)
	request.DriverID = stringPtrFromNull(driverID)
	request.PayeeType = stringPtrFromNull(payeeType)
	request.SubmittedAt = timePtrFromNull(submittedAt)
	request.CompletedAt = timePtrFromNull(completedAt)

	return nil
}
