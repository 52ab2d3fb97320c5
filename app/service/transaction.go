package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-rental-payments/app/entity"
	"github.com/vibast-solutions/ms-go-rental-payments/app/repository"
)

type transactionRepository interface {
	Create(ctx context.Context, txn *entity.Transaction) error
	FindByID(ctx context.Context, id uint64) (*entity.Transaction, error)
	FindByReceipt(ctx context.Context, receiptID string) (*entity.Transaction, error)
	List(ctx context.Context, filter repository.TransactionFilter) ([]*entity.Transaction, error)
	SummarizeByKind(ctx context.Context, from, to time.Time) ([]repository.KindTotal, error)
	SumConfirmedForRental(ctx context.Context, rentalID string) (int64, error)
	Reverse(ctx context.Context, id uint64, reason string, now time.Time) error
}

type TransactionQuery struct {
	Kind      int32
	Status    *int32
	From      *time.Time
	To        *time.Time
	VehicleID string
	OwnerID   string
	RentalID  string
	DriverID  string
	Limit     int32
	Offset    int32
}

type KindSummary struct {
	Count      int64
	TotalMinor int64
}

// TransactionLedger is the append-only record of money that actually moved.
// Reversal is the only mutation an entry ever sees.
type TransactionLedger struct {
	repo     transactionRepository
	currency string
	now      func() time.Time
}

func NewTransactionLedger(repo transactionRepository, currency string) *TransactionLedger {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "KES"
	}
	return &TransactionLedger{
		repo:     repo,
		currency: currency,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (l *TransactionLedger) Currency() string {
	return l.currency
}

func (l *TransactionLedger) Append(ctx context.Context, txn *entity.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction is required", ErrValidation)
	}
	if !validTransactionKind(txn.Kind) {
		return fmt.Errorf("%w: unknown transaction kind %d", ErrValidation, txn.Kind)
	}
	if txn.AmountMinor <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	switch txn.Status {
	case entity.TransactionStatusPending, entity.TransactionStatusConfirmed, entity.TransactionStatusFailed:
	default:
		return fmt.Errorf("%w: transactions cannot be appended with status %d", ErrValidation, txn.Status)
	}

	if txn.ProviderReceiptID != nil {
		receipt := strings.TrimSpace(*txn.ProviderReceiptID)
		if receipt == "" {
			txn.ProviderReceiptID = nil
		} else {
			txn.ProviderReceiptID = &receipt
			existing, err := l.repo.FindByReceipt(ctx, receipt)
			if err != nil {
				return err
			}
			if existing != nil {
				return fmt.Errorf("%w: %s", ErrDuplicateReceipt, receipt)
			}
		}
	}

	now := l.now()
	if txn.Currency == "" {
		txn.Currency = l.currency
	}
	if txn.OccurredAt.IsZero() {
		txn.OccurredAt = now
	}
	txn.CreatedAt = now
	txn.UpdatedAt = now

	if err := l.repo.Create(ctx, txn); err != nil {
		if errors.Is(err, repository.ErrDuplicateReceipt) {
			return fmt.Errorf("%w: %s", ErrDuplicateReceipt, *txn.ProviderReceiptID)
		}
		return err
	}
	return nil
}

func (l *TransactionLedger) Get(ctx context.Context, id uint64) (*entity.Transaction, error) {
	txn, err := l.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, ErrTransactionNotFound
	}
	return txn, nil
}

// Query lists entries newest first.
func (l *TransactionLedger) Query(ctx context.Context, q TransactionQuery) ([]*entity.Transaction, error) {
	if q.From != nil && q.To != nil && !q.From.Before(*q.To) {
		return nil, fmt.Errorf("%w: from must precede to", ErrValidation)
	}

	filter := repository.TransactionFilter{
		Kind:      q.Kind,
		From:      q.From,
		To:        q.To,
		VehicleID: strings.TrimSpace(q.VehicleID),
		OwnerID:   strings.TrimSpace(q.OwnerID),
		RentalID:  strings.TrimSpace(q.RentalID),
		DriverID:  strings.TrimSpace(q.DriverID),
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
	if q.Status != nil {
		filter.HasStatus = true
		filter.Status = *q.Status
	}

	return l.repo.List(ctx, filter)
}

// SummarizeByKind totals Confirmed entries per kind.
func (l *TransactionLedger) SummarizeByKind(ctx context.Context, period Period) (map[int32]KindSummary, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}

	totals, err := l.repo.SummarizeByKind(ctx, period.From, period.To)
	if err != nil {
		return nil, err
	}

	summary := make(map[int32]KindSummary, len(totals))
	for _, total := range totals {
		summary[total.Kind] = KindSummary{Count: total.Count, TotalMinor: total.TotalMinor}
	}
	return summary, nil
}

func (l *TransactionLedger) Reverse(ctx context.Context, id uint64, reason string) (*entity.Transaction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reversal reason is required", ErrValidation)
	}

	txn, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if txn.Status != entity.TransactionStatusConfirmed {
		return nil, fmt.Errorf("%w: only confirmed transactions can be reversed", ErrInvalidStatus)
	}

	if err := l.repo.Reverse(ctx, id, reason, l.now()); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, fmt.Errorf("%w: transaction changed concurrently", ErrInvalidStatus)
		}
		return nil, err
	}

	return l.Get(ctx, id)
}

func validTransactionKind(kind int32) bool {
	switch kind {
	case entity.TransactionKindCollection,
		entity.TransactionKindOwnerPayout,
		entity.TransactionKindDriverPayout,
		entity.TransactionKindCostAllocation,
		entity.TransactionKindBrokerCommission:
		return true
	default:
		return false
	}
}
