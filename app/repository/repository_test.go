package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/vibast-solutions/ms-go-rental-payments/app/entity"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func paymentRequestRow(mock sqlmock.Sqlmock, status int32, version int64) *sqlmock.Rows {
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{
		"id", "correlation_id", "direction", "amount_minor", "currency", "msisdn", "description", "remarks", "occasion",
		"provider_request_id", "provider_secondary_id", "status", "result_code", "result_description", "raw_callback_payload",
		"rental_id", "vehicle_id", "owner_id", "driver_id", "payee_type",
		"version", "submitted_at", "completed_at", "created_at", "updated_at",
	}).AddRow(
		7, "A1B2C3D4E5F6", entity.DirectionCollection, 500000, "KES", "254712345678", "weekly", "", "",
		"AG123", "29115-1", status, nil, nil, nil,
		"R1", "V1", "O1", nil, nil,
		version, now, nil, now, now,
	)
}

func TestPaymentRequestFindByCorrelationID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM payment_requests WHERE correlation_id = ?")).
		WithArgs("A1B2C3D4E5F6").
		WillReturnRows(paymentRequestRow(mock, entity.PaymentRequestStatusSubmitted, 2))

	request, err := repo.FindByCorrelationID(context.Background(), "A1B2C3D4E5F6")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if request == nil || request.ID != 7 || request.Version != 2 {
		t.Fatalf("unexpected request: %+v", request)
	}
	if request.ProviderRequestID == nil || *request.ProviderRequestID != "AG123" {
		t.Fatalf("unexpected provider id: %v", request.ProviderRequestID)
	}
	if request.RentalID == nil || *request.RentalID != "R1" || request.DriverID != nil {
		t.Fatalf("unexpected linkage: %+v", request)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPaymentRequestFindMissingReturnsNil(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE provider_request_id = ? OR provider_secondary_id = ?")).
		WithArgs("AG999", "AG999").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	request, err := repo.FindByProviderID(context.Background(), "AG999")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if request != nil {
		t.Fatalf("expected nil request, got %+v", request)
	}
}

func TestPaymentRequestUpdateAdvancesVersion(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRequestRepository(db)

	request := &entity.PaymentRequest{ID: 7, Status: entity.PaymentRequestStatusCompleted, Version: 2, UpdatedAt: time.Now().UTC()}
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = ? AND version = ?")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Update(context.Background(), request); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if request.Version != 3 {
		t.Fatalf("expected version 3, got %d", request.Version)
	}
}

func TestPaymentRequestUpdateStaleVersionConflicts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRequestRepository(db)

	request := &entity.PaymentRequest{ID: 7, Status: entity.PaymentRequestStatusSubmitted, Version: 1, UpdatedAt: time.Now().UTC()}
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = ? AND version = ?")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Update(context.Background(), request); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if request.Version != 1 {
		t.Fatalf("expected version untouched, got %d", request.Version)
	}
}

func TestPaymentRequestCreateDuplicateCorrelation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_requests")).
		WillReturnError(&mysqlDriver.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err := repo.Create(context.Background(), &entity.PaymentRequest{CorrelationID: "A1B2C3D4E5F6"})
	if !errors.Is(err, ErrPaymentRequestAlreadyExists) {
		t.Fatalf("expected ErrPaymentRequestAlreadyExists, got %v", err)
	}
}

func TestTransactionCreateDuplicateReceipt(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionRepository(db)

	receipt := "QFX1"
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions")).
		WillReturnError(&mysqlDriver.MySQLError{Number: 1062, Message: "Duplicate entry 'QFX1'"})

	err := repo.Create(context.Background(), &entity.Transaction{
		Kind:              entity.TransactionKindCollection,
		AmountMinor:       500000,
		Status:            entity.TransactionStatusConfirmed,
		ProviderReceiptID: &receipt,
	})
	if !errors.Is(err, ErrDuplicateReceipt) {
		t.Fatalf("expected ErrDuplicateReceipt, got %v", err)
	}
}

func TestTransactionSummarizeByKind(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionRepository(db)

	from := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY kind")).
		WithArgs(entity.TransactionStatusConfirmed, from, to).
		WillReturnRows(sqlmock.NewRows([]string{"kind", "count", "total"}).
			AddRow(entity.TransactionKindCollection, 3, 1500000).
			AddRow(entity.TransactionKindOwnerPayout, 1, 700000))

	totals, err := repo.SummarizeByKind(context.Background(), from, to)
	if err != nil {
		t.Fatalf("summarize failed: %v", err)
	}
	if len(totals) != 2 || totals[0].Count != 3 || totals[0].TotalMinor != 1500000 || totals[1].Kind != entity.TransactionKindOwnerPayout {
		t.Fatalf("unexpected totals: %+v", totals)
	}
}

func TestTransactionListBuildsFilter(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE kind = ? AND related_vehicle_id = ? ORDER BY occurred_at DESC, id DESC LIMIT ? OFFSET ?")).
		WithArgs(entity.TransactionKindCollection, "V1", int32(10), int32(0)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	txns, err := repo.List(context.Background(), TransactionFilter{Kind: entity.TransactionKindCollection, VehicleID: "V1", Limit: 10})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(txns) != 0 {
		t.Fatalf("expected empty list, got %d", len(txns))
	}
}

func TestTransactionReverseRequiresConfirmed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE transactions SET")).
		WithArgs(entity.TransactionStatusReversed, "chargeback", sqlmock.AnyArg(), uint64(4), entity.TransactionStatusConfirmed).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Reverse(context.Background(), 4, "chargeback", time.Now()); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestWithinTxCommitsAndRepositoriesShareTx(t *testing.T) {
	db, mock := newMockDB(t)
	txManager := NewTxManager(db)
	requests := NewPaymentRequestRepository(db)
	txns := NewTransactionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE payment_requests SET")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions")).WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectCommit()

	request := &entity.PaymentRequest{ID: 7, Version: 1}
	txn := &entity.Transaction{Kind: entity.TransactionKindCollection, AmountMinor: 100}
	err := txManager.WithinTx(context.Background(), func(ctx context.Context) error {
		if err := requests.Update(ctx, request); err != nil {
			return err
		}
		return txns.Create(ctx, txn)
	})
	if err != nil {
		t.Fatalf("within tx failed: %v", err)
	}
	if txn.ID != 11 {
		t.Fatalf("expected inserted id 11, got %d", txn.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	txManager := NewTxManager(db)
	requests := NewPaymentRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE payment_requests SET")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := txManager.WithinTx(context.Background(), func(ctx context.Context) error {
		return requests.Update(ctx, &entity.PaymentRequest{ID: 7, Version: 1})
	})
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRegistryGetOwnerScansDecimalRate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRegistryRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM owners WHERE id = ?")).
		WithArgs("O1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "msisdn", "payout_rate_type", "payout_rate_value", "payout_due_day", "last_payout_at", "last_payout_minor",
		}).AddRow("O1", "Jane Owner", "254712345678", entity.PayoutRatePercentage, "70.00", 31, nil, nil))

	owner, err := repo.GetOwner(context.Background(), "O1")
	if err != nil {
		t.Fatalf("get owner failed: %v", err)
	}
	if owner.PayoutRateValue.String() != "70" || owner.PayoutDueDay != 31 || owner.LastPayoutAt != nil {
		t.Fatalf("unexpected owner: %+v", owner)
	}
}

func TestRegistryRecordLastPayout(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRegistryRepository(db)
	at := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE drivers SET last_payout_at = ?, last_payout_minor = ? WHERE id = ?")).
		WithArgs(at, int64(250000), "D1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.RecordLastPayout(context.Background(), entity.PayeeTypeDriver, "D1", 250000, at); err != nil {
		t.Fatalf("record payout failed: %v", err)
	}
	if err := repo.RecordLastPayout(context.Background(), entity.PayeeTypeBroker, "B1", 100, at); err != nil {
		t.Fatalf("broker payout should be a no-op, got %v", err)
	}
	if err := repo.RecordLastPayout(context.Background(), "customer", "C1", 100, at); !errors.Is(err, ErrUnknownPayeeType) {
		t.Fatalf("expected ErrUnknownPayeeType, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
