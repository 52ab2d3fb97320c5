package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-rental-payments/app/entity"
	"github.com/vibast-solutions/ms-go-rental-payments/app/provider"
	"github.com/vibast-solutions/ms-go-rental-payments/app/repository"
)

const maxCallbackErrorLength = 1024

type ReconcileOutcome string

const (
	OutcomeApplied   ReconcileOutcome = "applied"
	OutcomeSkipped   ReconcileOutcome = "skipped"
	OutcomeMalformed ReconcileOutcome = "malformed"
)

// RawCallback is an inbound provider notification. CorrelationID comes from
// the callback URL and may be empty.
type RawCallback struct {
	Kind          string
	CorrelationID string
	Payload       []byte
}

type ReconcileResult struct {
	Outcome     ReconcileOutcome
	Reason      string
	Request     *entity.PaymentRequest
	Transaction *entity.Transaction
}

// HandleProviderCallback reconciles a callback and never fails: the provider
// is always acknowledged, problems surface in logs and the callback audit.
func (s *PaymentService) HandleProviderCallback(ctx context.Context, raw RawCallback) {
	result, err := s.Reconcile(ctx, raw)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"kind":           raw.Kind,
			"correlation_id": raw.CorrelationID,
		}).Error("provider callback reconciliation failed")
		s.recordCallback(ctx, raw, nil, nil, entity.ProviderCallbackErrored, err.Error())
		return
	}

	s.logger.WithFields(logrus.Fields{
		"kind":           raw.Kind,
		"correlation_id": raw.CorrelationID,
		"outcome":        string(result.Outcome),
	}).Debug("provider callback handled")
}

// Reconcile applies one provider callback to its payment request. Unmatched,
// duplicate and malformed callbacks are reported through the outcome rather
// than an error; an error means the callback could not be processed at all.
func (s *PaymentService) Reconcile(ctx context.Context, raw RawCallback) (*ReconcileResult, error) {
	log := s.logger.WithFields(logrus.Fields{
		"kind":           raw.Kind,
		"correlation_id": raw.CorrelationID,
	})

	parsed, err := provider.ParseCallback(raw.Payload)
	if err != nil {
		log.WithError(err).Warn("malformed provider callback kept for manual follow-up")
		s.recordCallback(ctx, raw, nil, nil, entity.ProviderCallbackMalformed, err.Error())
		return &ReconcileResult{Outcome: OutcomeMalformed, Reason: err.Error()}, nil
	}
	log = log.WithFields(logrus.Fields{
		"provider_request_id": parsed.ProviderRequestID,
		"result_code":         parsed.ResultCode,
	})

	request, err := s.matchRequest(ctx, raw.CorrelationID, parsed)
	if err != nil {
		return nil, err
	}
	if request == nil {
		log.Info("provider callback does not match any payment request")
		s.recordCallback(ctx, raw, nil, parsed, entity.ProviderCallbackUnmatched, ErrReconciliationSkipped.Error()+": unmatched")
		return &ReconcileResult{Outcome: OutcomeSkipped, Reason: "unmatched"}, nil
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		if entity.IsTerminalRequestStatus(request.Status) {
			if request.Status == entity.PaymentRequestStatusFailed && parsed.Success() && isSubmitFailure(request) {
				log.WithField("payment_request_id", request.ID).
					Warn("provider reports success for a request that failed at submission")
			} else {
				log.WithField("payment_request_id", request.ID).Info("duplicate provider callback ignored")
			}
			s.recordCallback(ctx, raw, &request.ID, parsed, entity.ProviderCallbackDuplicate, ErrReconciliationSkipped.Error()+": already terminal")
			return &ReconcileResult{Outcome: OutcomeSkipped, Reason: "already terminal", Request: request}, nil
		}

		updated, txn, err := s.applyCallback(ctx, request, parsed, raw.Payload)
		if errors.Is(err, repository.ErrVersionConflict) {
			request, err = s.reload(ctx, request.ID)
			if err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		s.recordCallback(ctx, raw, &updated.ID, parsed, entity.ProviderCallbackProcessed, "")
		s.afterSettlement(ctx, updated, txn, log)
		return &ReconcileResult{Outcome: OutcomeApplied, Request: updated, Transaction: txn}, nil
	}

	return nil, fmt.Errorf("reconcile payment request %d: %w", request.ID, repository.ErrVersionConflict)
}

func (s *PaymentService) matchRequest(ctx context.Context, correlationID string, parsed *provider.CallbackResult) (*entity.PaymentRequest, error) {
	if correlationID = strings.ToUpper(strings.TrimSpace(correlationID)); correlationID != "" {
		request, err := s.requestRepo.FindByCorrelationID(ctx, correlationID)
		if err != nil || request != nil {
			return request, err
		}
	}

	for _, providerID := range []string{parsed.ProviderRequestID, parsed.ProviderSecondaryID} {
		if providerID == "" {
			continue
		}
		request, err := s.requestRepo.FindByProviderID(ctx, providerID)
		if err != nil || request != nil {
			return request, err
		}
	}
	return nil, nil
}

// applyCallback writes the terminal status and, for a completed request, the
// ledger entry in one database transaction. ErrVersionConflict means another
// writer got there first.
func (s *PaymentService) applyCallback(
	ctx context.Context,
	request *entity.PaymentRequest,
	parsed *provider.CallbackResult,
	payload []byte,
) (*entity.PaymentRequest, *entity.Transaction, error) {
	now := s.now()
	updated := *request
	oldStatus := request.Status

	code := strconv.Itoa(parsed.ResultCode)
	description := truncate(parsed.ResultDescription, maxResultDescription)
	rawPayload := string(payload)

	updated.Status = entity.PaymentRequestStatusFailed
	if parsed.Success() {
		updated.Status = entity.PaymentRequestStatusCompleted
	}
	updated.ResultCode = &code
	updated.ResultDescription = &description
	updated.RawCallbackPayload = &rawPayload
	updated.CompletedAt = &now
	updated.UpdatedAt = now
	if updated.ProviderRequestID == nil && parsed.ProviderRequestID != "" {
		updated.ProviderRequestID = stringPtr(parsed.ProviderRequestID)
	}
	if updated.ProviderSecondaryID == nil && parsed.ProviderSecondaryID != "" {
		updated.ProviderSecondaryID = stringPtr(parsed.ProviderSecondaryID)
	}

	var txn *entity.Transaction
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.requestRepo.Update(ctx, &updated); err != nil {
			return err
		}

		eventType := "callback_failed"
		if updated.Status == entity.PaymentRequestStatusCompleted {
			eventType = "callback_completed"
			txn = settlementTransaction(&updated, parsed, now)
		}
		s.recordEvent(ctx, &updated, eventType, &oldStatus, &rawPayload)

		if txn == nil {
			return nil
		}
		if err := s.ledger.Append(ctx, txn); err != nil {
			if errors.Is(err, ErrDuplicateReceipt) {
				s.logger.WithField("correlation_id", updated.CorrelationID).
					Info("provider receipt already recorded, treating as settled")
				txn = nil
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return &updated, txn, nil
}

// settlementTransaction builds the ledger entry for a completed request, or
// nil when the request has nothing to book.
func settlementTransaction(request *entity.PaymentRequest, parsed *provider.CallbackResult, now time.Time) *entity.Transaction {
	txn := &entity.Transaction{
		AmountMinor:       request.AmountMinor,
		Currency:          request.Currency,
		Status:            entity.TransactionStatusConfirmed,
		OccurredAt:        now,
		ProviderReceiptID: parsed.ReceiptNumber,
		PaymentRequestID:  &request.ID,
		RelatedRentalID:   request.RentalID,
		RelatedVehicleID:  request.VehicleID,
		RelatedOwnerID:    request.OwnerID,
		RelatedDriverID:   request.DriverID,
	}
	if parsed.AmountMinor != nil && *parsed.AmountMinor > 0 {
		txn.AmountMinor = *parsed.AmountMinor
	}
	if parsed.TransactionTime != nil {
		txn.OccurredAt = *parsed.TransactionTime
	}

	if request.Direction == entity.DirectionCollection {
		if request.RentalID == nil {
			return nil
		}
		txn.Kind = entity.TransactionKindCollection
		return txn
	}

	switch payeeType(request) {
	case entity.PayeeTypeOwner:
		txn.Kind = entity.TransactionKindOwnerPayout
	case entity.PayeeTypeDriver:
		txn.Kind = entity.TransactionKindDriverPayout
	case entity.PayeeTypeBroker:
		txn.Kind = entity.TransactionKindBrokerCommission
	default:
		return nil
	}
	return txn
}

// afterSettlement runs the post-commit hooks and events. Their failures are
// logged; the reconciled state stands.
func (s *PaymentService) afterSettlement(ctx context.Context, request *entity.PaymentRequest, txn *entity.Transaction, log logrus.FieldLogger) {
	now := s.now()

	if request.Status == entity.PaymentRequestStatusFailed {
		s.publish(ctx, failedEvent(request, now))
		return
	}

	event := &entity.DomainEvent{
		CorrelationID: request.CorrelationID,
		AmountMinor:   request.AmountMinor,
		Currency:      request.Currency,
		Attributes:    map[string]string{},
		OccurredAt:    now,
	}
	if txn != nil {
		event.AmountMinor = txn.AmountMinor
		event.OccurredAt = txn.OccurredAt
		if txn.ProviderReceiptID != nil {
			event.ReceiptID = *txn.ProviderReceiptID
		}
	}

	if request.Direction == entity.DirectionCollection {
		event.Type = entity.EventCollectionConfirmed
		if request.RentalID != nil {
			event.Attributes["rental_id"] = *request.RentalID
			if txn != nil && s.collectionHook != nil {
				if err := s.collectionHook.CollectionConfirmed(ctx, *request.RentalID); err != nil {
					log.WithError(err).Warn("rental payment status hook failed")
				}
			}
		}
		s.publish(ctx, event)
		return
	}

	event.Type = entity.EventDisbursementConfirmed
	payee, payeeID := payeeType(request), payeeIDFor(request)
	event.Attributes["payee_type"] = payee
	if payeeID != "" {
		event.Attributes["payee_id"] = payeeID
	}
	if txn != nil && s.payoutRecorder != nil {
		if err := s.payoutRecorder.RecordLastPayout(ctx, payee, payeeID, txn.AmountMinor, txn.OccurredAt); err != nil {
			log.WithError(err).Warn("last payout snapshot hook failed")
		}
	}
	s.publish(ctx, event)
}

func (s *PaymentService) recordCallback(
	ctx context.Context,
	raw RawCallback,
	requestID *uint64,
	parsed *provider.CallbackResult,
	status int32,
	reason string,
) {
	callback := &entity.ProviderCallback{
		PaymentRequestID: requestID,
		Kind:             strings.ToLower(strings.TrimSpace(raw.Kind)),
		CorrelationID:    normalizeOptionalString(raw.CorrelationID),
		PayloadJSON:      string(raw.Payload),
		Status:           status,
		CreatedAt:        s.now(),
	}
	if parsed != nil {
		callback.ProviderID = normalizeOptionalString(parsed.ProviderRequestID)
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		trimmed := truncate(reason, maxCallbackErrorLength)
		callback.Error = &trimmed
	}
	_ = s.callbackRepo.Create(ctx, callback)
}

func isSubmitFailure(request *entity.PaymentRequest) bool {
	if request.ResultCode == nil {
		return false
	}
	return *request.ResultCode == ResultCodeSubmitRejected || *request.ResultCode == ResultCodeSubmitTransportError
}

func payeeType(request *entity.PaymentRequest) string {
	if request.PayeeType == nil {
		return ""
	}
	return *request.PayeeType
}

func payeeIDFor(request *entity.PaymentRequest) string {
	switch payeeType(request) {
	case entity.PayeeTypeOwner:
		if request.OwnerID != nil {
			return *request.OwnerID
		}
	case entity.PayeeTypeDriver:
		if request.DriverID != nil {
			return *request.DriverID
		}
	}
	return ""
}
