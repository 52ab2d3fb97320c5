package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-rental-payments/app/entity"
)

type ProviderCallbackRepository struct {
	db DBTX
}

func NewProviderCallbackRepository(db DBTX) *ProviderCallbackRepository {
	return &ProviderCallbackRepository{db: db}
}

func (r *ProviderCallbackRepository) Create(ctx context.Context, callback *entity.ProviderCallback) error {
	query := `
		INSERT INTO provider_callbacks (
			payment_request_id, kind, correlation_id, provider_id, payload_json, status, error, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		nullableUint64Value(callback.PaymentRequestID),
		callback.Kind,
		nullableStringValue(callback.CorrelationID),
		nullableStringValue(callback.ProviderID),
		callback.PayloadJSON,
		callback.Status,
		nullableStringValue(callback.Error),
		callback.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	callback.ID = uint64(id)

	return nil
}
