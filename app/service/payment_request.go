package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-rental-payments/app/entity"
	"github.com/vibast-solutions/ms-go-rental-payments/app/provider"
	"github.com/vibast-solutions/ms-go-rental-payments/app/repository"
	"github.com/vibast-solutions/ms-go-rental-payments/config"
)

const (
	AckStatusSubmitted = "submitted"
	AckStatusFailed    = "failed"

	ResultCodeSubmitRejected       = "submit_rejected"
	ResultCodeSubmitTransportError = "submit_transport_error"

	correlationIDLength      = 12
	maxCorrelationIDAttempts = 3
	maxCASAttempts           = 3
	defaultBatchSize         = int32(100)
	maxResultDescription     = 512
)

type paymentRequestRepository interface {
	Create(ctx context.Context, request *entity.PaymentRequest) error
	Update(ctx context.Context, request *entity.PaymentRequest) error
	FindByID(ctx context.Context, id uint64) (*entity.PaymentRequest, error)
	FindByCorrelationID(ctx context.Context, correlationID string) (*entity.PaymentRequest, error)
	FindByProviderID(ctx context.Context, providerID string) (*entity.PaymentRequest, error)
	ListStaleSubmitted(ctx context.Context, submittedBefore time.Time, limit int32) ([]*entity.PaymentRequest, error)
}

type paymentEventRepository interface {
	Create(ctx context.Context, event *entity.PaymentEvent) error
}

type providerCallbackRepository interface {
	Create(ctx context.Context, callback *entity.ProviderCallback) error
}

type txRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type collectionHook interface {
	CollectionConfirmed(ctx context.Context, rentalID string) error
}

type linkageRegistry interface {
	GetRental(ctx context.Context, id string) (*entity.Rental, error)
	GetVehicle(ctx context.Context, id string) (*entity.Vehicle, error)
}

type CollectionInput struct {
	AmountMinor int64
	Msisdn      string
	RentalID    string
	Description string
}

type DisbursementInput struct {
	AmountMinor int64
	Msisdn      string
	Remarks     string
	Occasion    string
	PayeeType   string
	OwnerID     string
	DriverID    string
	RentalID    string
}

type InitiationResult struct {
	CorrelationID string
	AckStatus     string
	Request       *entity.PaymentRequest
}

type PaymentService struct {
	requestRepo    paymentRequestRepository
	eventRepo      paymentEventRepository
	callbackRepo   providerCallbackRepository
	ledger         *TransactionLedger
	registry       linkageRegistry
	gateway        provider.Gateway
	tx             txRunner
	publisher      EventPublisher
	collectionHook collectionHook
	payoutRecorder PayoutRecorder
	paymentsCfg    config.PaymentsConfig
	logger         logrus.FieldLogger

	now              func() time.Time
	newCorrelationID func() string
}

func NewPaymentService(
	requestRepo paymentRequestRepository,
	eventRepo paymentEventRepository,
	callbackRepo providerCallbackRepository,
	ledger *TransactionLedger,
	registry linkageRegistry,
	gateway provider.Gateway,
	tx txRunner,
	publisher EventPublisher,
	collectionHook collectionHook,
	payoutRecorder PayoutRecorder,
	paymentsCfg config.PaymentsConfig,
	logger logrus.FieldLogger,
) *PaymentService {
	if strings.TrimSpace(paymentsCfg.Currency) == "" {
		paymentsCfg.Currency = "KES"
	}

	return &PaymentService{
		requestRepo:      requestRepo,
		eventRepo:        eventRepo,
		callbackRepo:     callbackRepo,
		ledger:           ledger,
		registry:         registry,
		gateway:          gateway,
		tx:               tx,
		publisher:        publisher,
		collectionHook:   collectionHook,
		payoutRecorder:   payoutRecorder,
		paymentsCfg:      paymentsCfg,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
		newCorrelationID: newCorrelationID,
	}
}

// CreateCollectionRequest validates the input and persists a Pending request.
// Nothing is written when validation fails.
func (s *PaymentService) CreateCollectionRequest(ctx context.Context, input CollectionInput) (*entity.PaymentRequest, error) {
	msisdn, err := validateAmountAndMsisdn(input.AmountMinor, input.Msisdn)
	if err != nil {
		return nil, err
	}

	request := &entity.PaymentRequest{
		Direction:   entity.DirectionCollection,
		AmountMinor: input.AmountMinor,
		Currency:    s.paymentsCfg.Currency,
		Msisdn:      msisdn,
		Description: strings.TrimSpace(input.Description),
	}
	if err := s.linkRental(ctx, request, strings.TrimSpace(input.RentalID)); err != nil {
		return nil, err
	}

	if err := s.persistNew(ctx, request); err != nil {
		return nil, err
	}
	return request, nil
}

func (s *PaymentService) CreateDisbursementRequest(ctx context.Context, input DisbursementInput) (*entity.PaymentRequest, error) {
	msisdn, err := validateAmountAndMsisdn(input.AmountMinor, input.Msisdn)
	if err != nil {
		return nil, err
	}

	payeeType := strings.ToLower(strings.TrimSpace(input.PayeeType))
	ownerID := normalizeOptionalString(input.OwnerID)
	driverID := normalizeOptionalString(input.DriverID)
	switch payeeType {
	case entity.PayeeTypeOwner:
		if ownerID == nil {
			return nil, fmt.Errorf("%w: owner_id is required for owner payouts", ErrValidation)
		}
	case entity.PayeeTypeDriver:
		if driverID == nil {
			return nil, fmt.Errorf("%w: driver_id is required for driver payouts", ErrValidation)
		}
	case entity.PayeeTypeBroker:
	default:
		return nil, fmt.Errorf("%w: payee_type must be owner, driver or broker", ErrValidation)
	}

	request := &entity.PaymentRequest{
		Direction:   entity.DirectionDisbursement,
		AmountMinor: input.AmountMinor,
		Currency:    s.paymentsCfg.Currency,
		Msisdn:      msisdn,
		Remarks:     strings.TrimSpace(input.Remarks),
		Occasion:    strings.TrimSpace(input.Occasion),
		PayeeType:   &payeeType,
	}
	if err := s.linkRental(ctx, request, strings.TrimSpace(input.RentalID)); err != nil {
		return nil, err
	}
	if ownerID != nil {
		request.OwnerID = ownerID
	}
	if driverID != nil {
		request.DriverID = driverID
	}

	if err := s.persistNew(ctx, request); err != nil {
		return nil, err
	}
	return request, nil
}

// Submit makes exactly one gateway call for a Pending request. On success
// the request is Submitted; on any gateway error it is Failed and the error
// is returned. The returned request reflects the stored state either way.
// The stored row decides eligibility, so a stale or repeated call is refused
// with ErrInvalidStatus.
func (s *PaymentService) Submit(ctx context.Context, request *entity.PaymentRequest) (*entity.PaymentRequest, error) {
	if request == nil {
		return nil, fmt.Errorf("%w: payment request is required", ErrValidation)
	}
	request, err := s.claimForSubmit(ctx, request.ID)
	if err != nil {
		return nil, err
	}

	ack, gatewayErr := s.callGateway(ctx, request)
	now := s.now()

	if gatewayErr != nil {
		code := ResultCodeSubmitRejected
		if provider.IsTransportError(gatewayErr) {
			code = ResultCodeSubmitTransportError
		}
		description := truncate(gatewayErr.Error(), maxResultDescription)
		oldStatus := request.Status

		updated, changed, err := s.updateWithRetry(ctx, request, func(r *entity.PaymentRequest) bool {
			if entity.IsTerminalRequestStatus(r.Status) {
				return false
			}
			oldStatus = r.Status
			r.Status = entity.PaymentRequestStatusFailed
			r.ResultCode = &code
			r.ResultDescription = &description
			r.CompletedAt = &now
			r.UpdatedAt = now
			return true
		})
		if err != nil {
			s.logger.WithError(err).WithField("correlation_id", request.CorrelationID).Error("failed to record submit failure")
			return request, gatewayErr
		}
		if changed {
			s.recordEvent(ctx, updated, "request_submit_failed", &oldStatus, nil)
			s.publish(ctx, failedEvent(updated, now))
		}
		return updated, gatewayErr
	}

	oldStatus := request.Status
	updated, changed, err := s.updateWithRetry(ctx, request, func(r *entity.PaymentRequest) bool {
		wrote := false
		if r.ProviderRequestID == nil && ack.ProviderRequestID != "" {
			r.ProviderRequestID = stringPtr(ack.ProviderRequestID)
			wrote = true
		}
		if r.ProviderSecondaryID == nil && ack.ProviderSecondaryID != "" {
			r.ProviderSecondaryID = stringPtr(ack.ProviderSecondaryID)
			wrote = true
		}
		if r.SubmittedAt == nil {
			r.SubmittedAt = &now
			wrote = true
		}
		// A callback may have completed the request already; only the ids are attached then.
		if r.Status == entity.PaymentRequestStatusPending {
			oldStatus = r.Status
			r.Status = entity.PaymentRequestStatusSubmitted
			wrote = true
		}
		if wrote {
			r.UpdatedAt = now
		}
		return wrote
	})
	if err != nil {
		return nil, err
	}
	if changed && updated.Status == entity.PaymentRequestStatusSubmitted {
		s.recordEvent(ctx, updated, "request_submitted", &oldStatus, nil)
	}

	return updated, nil
}

// claimForSubmit marks the stored request as being submitted so that only
// one caller reaches the gateway for it.
func (s *PaymentService) claimForSubmit(ctx context.Context, id uint64) (*entity.PaymentRequest, error) {
	current, err := s.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != entity.PaymentRequestStatusPending || current.SubmittedAt != nil {
		return nil, fmt.Errorf("%w: only pending requests can be submitted", ErrInvalidStatus)
	}

	now := s.now()
	claimed := *current
	claimed.SubmittedAt = &now
	claimed.UpdatedAt = now
	if err := s.requestRepo.Update(ctx, &claimed); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, fmt.Errorf("%w: request is already being submitted", ErrInvalidStatus)
		}
		return nil, err
	}
	return &claimed, nil
}

// InitiateCollection creates and submits a collection request. When the
// request was created but submission failed, the result is returned along
// with the gateway error.
func (s *PaymentService) InitiateCollection(ctx context.Context, amountMinor int64, msisdn, rentalID, description string) (*InitiationResult, error) {
	request, err := s.CreateCollectionRequest(ctx, CollectionInput{
		AmountMinor: amountMinor,
		Msisdn:      msisdn,
		RentalID:    rentalID,
		Description: description,
	})
	if err != nil {
		return nil, err
	}
	return s.initiate(ctx, request)
}

func (s *PaymentService) InitiateDisbursement(ctx context.Context, input DisbursementInput) (*InitiationResult, error) {
	request, err := s.CreateDisbursementRequest(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.initiate(ctx, request)
}

func (s *PaymentService) GetPaymentRequest(ctx context.Context, correlationID string) (*entity.PaymentRequest, error) {
	correlationID = strings.ToUpper(strings.TrimSpace(correlationID))
	if correlationID == "" {
		return nil, fmt.Errorf("%w: correlation id is required", ErrValidation)
	}

	request, err := s.requestRepo.FindByCorrelationID(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, ErrPaymentRequestNotFound
	}
	return request, nil
}

// ListStaleSubmitted returns requests still Submitted after olderThan. They
// are never failed automatically; an operator confirms with the provider.
func (s *PaymentService) ListStaleSubmitted(ctx context.Context, olderThan time.Duration) ([]*entity.PaymentRequest, error) {
	if olderThan <= 0 {
		olderThan = s.paymentsCfg.StaleSubmittedAfter
	}
	if olderThan <= 0 {
		return nil, fmt.Errorf("%w: stale horizon must be positive", ErrValidation)
	}
	return s.requestRepo.ListStaleSubmitted(ctx, s.now().Add(-olderThan), s.batchSize())
}

func (s *PaymentService) initiate(ctx context.Context, request *entity.PaymentRequest) (*InitiationResult, error) {
	updated, err := s.Submit(ctx, request)
	if updated == nil {
		updated = request
	}

	result := &InitiationResult{
		CorrelationID: updated.CorrelationID,
		AckStatus:     AckStatusSubmitted,
		Request:       updated,
	}
	if err != nil || updated.Status == entity.PaymentRequestStatusFailed {
		result.AckStatus = AckStatusFailed
	}
	return result, err
}

func (s *PaymentService) callGateway(ctx context.Context, request *entity.PaymentRequest) (*provider.Acknowledgement, error) {
	if request.Direction == entity.DirectionDisbursement {
		return s.gateway.Disburse(ctx, &provider.DisburseInput{
			AmountMinor:   request.AmountMinor,
			Msisdn:        request.Msisdn,
			CorrelationID: request.CorrelationID,
			Remarks:       request.Remarks,
			Occasion:      request.Occasion,
		})
	}
	return s.gateway.Collect(ctx, &provider.CollectInput{
		AmountMinor:      request.AmountMinor,
		Msisdn:           request.Msisdn,
		AccountReference: request.CorrelationID,
		Description:      request.Description,
	})
}

func (s *PaymentService) linkRental(ctx context.Context, request *entity.PaymentRequest, rentalID string) error {
	if rentalID == "" {
		return nil
	}

	rental, err := s.registry.GetRental(ctx, rentalID)
	if err != nil {
		return err
	}
	if rental == nil {
		return fmt.Errorf("%w: rental %s not found", ErrValidation, rentalID)
	}

	request.RentalID = stringPtr(rental.ID)
	request.VehicleID = normalizeOptionalString(rental.VehicleID)
	if rental.DriverID != nil {
		request.DriverID = stringPtr(*rental.DriverID)
	}

	if request.VehicleID != nil {
		vehicle, err := s.registry.GetVehicle(ctx, *request.VehicleID)
		if err != nil {
			return err
		}
		if vehicle != nil {
			request.OwnerID = normalizeOptionalString(vehicle.OwnerID)
		}
	}
	return nil
}

// persistNew stores a fresh Pending request under a new correlation id,
// drawing again on the rare collision.
func (s *PaymentService) persistNew(ctx context.Context, request *entity.PaymentRequest) error {
	now := s.now()
	request.Status = entity.PaymentRequestStatusPending
	request.Version = 1
	request.CreatedAt = now
	request.UpdatedAt = now

	var err error
	for attempt := 0; attempt < maxCorrelationIDAttempts; attempt++ {
		request.CorrelationID = s.newCorrelationID()
		err = s.requestRepo.Create(ctx, request)
		if err == nil {
			s.recordEvent(ctx, request, "request_created", nil, nil)
			return nil
		}
		if !errors.Is(err, repository.ErrPaymentRequestAlreadyExists) {
			return err
		}
	}
	return fmt.Errorf("allocate correlation id: %w", err)
}

// updateWithRetry applies mutate and writes it under the version check. On a
// lost race the request is reloaded and mutate runs again against the fresh
// row. mutate returns false when there is nothing to write.
func (s *PaymentService) updateWithRetry(
	ctx context.Context,
	request *entity.PaymentRequest,
	mutate func(r *entity.PaymentRequest) bool,
) (*entity.PaymentRequest, bool, error) {
	current := request
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		candidate := *current
		if !mutate(&candidate) {
			return current, false, nil
		}

		err := s.requestRepo.Update(ctx, &candidate)
		if err == nil {
			return &candidate, true, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, false, err
		}

		current, err = s.reload(ctx, current.ID)
		if err != nil {
			return nil, false, err
		}
	}
	return nil, false, repository.ErrVersionConflict
}

func (s *PaymentService) reload(ctx context.Context, id uint64) (*entity.PaymentRequest, error) {
	request, err := s.requestRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, ErrPaymentRequestNotFound
	}
	return request, nil
}

func (s *PaymentService) recordEvent(ctx context.Context, request *entity.PaymentRequest, eventType string, oldStatus *int32, payload *string) {
	_ = s.eventRepo.Create(ctx, &entity.PaymentEvent{
		PaymentRequestID: request.ID,
		EventType:        eventType,
		OldStatus:        oldStatus,
		NewStatus:        request.Status,
		PayloadJSON:      payload,
		CreatedAt:        s.now(),
	})
}

func (s *PaymentService) publish(ctx context.Context, event *entity.DomainEvent) {
	if s.publisher == nil || event == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event":          event.Type,
			"correlation_id": event.CorrelationID,
		}).Warn("failed to publish event")
	}
}

func (s *PaymentService) batchSize() int32 {
	if s.paymentsCfg.JobBatchSize > 0 {
		return s.paymentsCfg.JobBatchSize
	}
	return defaultBatchSize
}

func validateAmountAndMsisdn(amountMinor int64, rawMsisdn string) (string, error) {
	if amountMinor <= 0 {
		return "", fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if amountMinor%provider.MinorUnitsPerMajor != 0 {
		return "", fmt.Errorf("%w: amount must be a whole number of shillings", ErrValidation)
	}
	msisdn, err := provider.NormalizeMsisdn(rawMsisdn)
	if err != nil {
		return "", fmt.Errorf("%w: msisdn %q is not a valid mobile number", ErrValidation, strings.TrimSpace(rawMsisdn))
	}
	return msisdn, nil
}

func failedEvent(request *entity.PaymentRequest, now time.Time) *entity.DomainEvent {
	attributes := map[string]string{}
	if request.ResultCode != nil {
		attributes["result_code"] = *request.ResultCode
	}
	if request.ResultDescription != nil {
		attributes["result_description"] = *request.ResultDescription
	}
	return &entity.DomainEvent{
		Type:          entity.EventPaymentRequestFailed,
		CorrelationID: request.CorrelationID,
		AmountMinor:   request.AmountMinor,
		Currency:      request.Currency,
		Attributes:    attributes,
		OccurredAt:    now,
	}
}

// newCorrelationID yields a 12 character reference, the longest account
// reference an STK push accepts.
func newCorrelationID() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return id[:correlationIDLength]
}

func normalizeOptionalString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func stringPtr(v string) *string {
	return &v
}

// truncate caps value at max bytes without splitting a UTF-8 sequence.
func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
