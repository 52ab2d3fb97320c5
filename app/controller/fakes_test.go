package controller

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-rental-payments/app/entity"
	"github.com/vibast-solutions/ms-go-rental-payments/app/provider"
	"github.com/vibast-solutions/ms-go-rental-payments/app/repository"
	"github.com/vibast-solutions/ms-go-rental-payments/app/service"
	"github.com/vibast-solutions/ms-go-rental-payments/config"
)

type controllerRequestRepo struct {
	createFn              func(ctx context.Context, request *entity.PaymentRequest) error
	updateFn              func(ctx context.Context, request *entity.PaymentRequest) error
	findByIDFn            func(ctx context.Context, id uint64) (*entity.PaymentRequest, error)
	findByCorrelationIDFn func(ctx context.Context, correlationID string) (*entity.PaymentRequest, error)
	listStaleSubmittedFn  func(ctx context.Context, submittedBefore time.Time, limit int32) ([]*entity.PaymentRequest, error)
	stored                *entity.PaymentRequest
}

func (r *controllerRequestRepo) Create(ctx context.Context, request *entity.PaymentRequest) error {
	if r.createFn != nil {
		return r.createFn(ctx, request)
	}
	request.ID = 1
	copyItem := *request
	r.stored = &copyItem
	return nil
}

func (r *controllerRequestRepo) Update(ctx context.Context, request *entity.PaymentRequest) error {
	if r.updateFn != nil {
		return r.updateFn(ctx, request)
	}
	request.Version++
	copyItem := *request
	r.stored = &copyItem
	return nil
}

func (r *controllerRequestRepo) FindByID(ctx context.Context, id uint64) (*entity.PaymentRequest, error) {
	if r.findByIDFn != nil {
		return r.findByIDFn(ctx, id)
	}
	if r.stored != nil && r.stored.ID == id {
		copyItem := *r.stored
		return &copyItem, nil
	}
	return nil, nil
}

func (r *controllerRequestRepo) FindByCorrelationID(ctx context.Context, correlationID string) (*entity.PaymentRequest, error) {
	if r.findByCorrelationIDFn != nil {
		return r.findByCorrelationIDFn(ctx, correlationID)
	}
	return nil, nil
}

func (r *controllerRequestRepo) FindByProviderID(context.Context, string) (*entity.PaymentRequest, error) {
	return nil, nil
}

func (r *controllerRequestRepo) ListStaleSubmitted(ctx context.Context, submittedBefore time.Time, limit int32) ([]*entity.PaymentRequest, error) {
	if r.listStaleSubmittedFn != nil {
		return r.listStaleSubmittedFn(ctx, submittedBefore, limit)
	}
	return []*entity.PaymentRequest{}, nil
}

type controllerEventRepo struct{}

func (r *controllerEventRepo) Create(context.Context, *entity.PaymentEvent) error {
	return nil
}

type controllerCallbackRepo struct {
	callbacks []*entity.ProviderCallback
}

func (r *controllerCallbackRepo) Create(_ context.Context, callback *entity.ProviderCallback) error {
	r.callbacks = append(r.callbacks, callback)
	return nil
}

type controllerTransactionRepo struct {
	findByIDFn func(ctx context.Context, id uint64) (*entity.Transaction, error)
	listFn     func(ctx context.Context, filter repository.TransactionFilter) ([]*entity.Transaction, error)
	summaryFn  func(ctx context.Context, from, to time.Time) ([]repository.KindTotal, error)
	stored     *entity.Transaction
}

func (r *controllerTransactionRepo) Create(context.Context, *entity.Transaction) error {
	return nil
}

func (r *controllerTransactionRepo) FindByID(ctx context.Context, id uint64) (*entity.Transaction, error) {
	if r.findByIDFn != nil {
		return r.findByIDFn(ctx, id)
	}
	if r.stored != nil && r.stored.ID == id {
		copyItem := *r.stored
		return &copyItem, nil
	}
	return nil, nil
}

func (r *controllerTransactionRepo) FindByReceipt(context.Context, string) (*entity.Transaction, error) {
	return nil, nil
}

func (r *controllerTransactionRepo) List(ctx context.Context, filter repository.TransactionFilter) ([]*entity.Transaction, error) {
	if r.listFn != nil {
		return r.listFn(ctx, filter)
	}
	return []*entity.Transaction{}, nil
}

func (r *controllerTransactionRepo) SummarizeByKind(ctx context.Context, from, to time.Time) ([]repository.KindTotal, error) {
	if r.summaryFn != nil {
		return r.summaryFn(ctx, from, to)
	}
	return []repository.KindTotal{}, nil
}

func (r *controllerTransactionRepo) SumConfirmedForRental(context.Context, string) (int64, error) {
	return 0, nil
}

func (r *controllerTransactionRepo) Reverse(context.Context, uint64, string, time.Time) error {
	return nil
}

type controllerRegistry struct {
	owners   map[string]*entity.Owner
	vehicles []*entity.Vehicle
}

func (r *controllerRegistry) GetRental(context.Context, string) (*entity.Rental, error) {
	return nil, nil
}

func (r *controllerRegistry) ListRentalsOverlapping(context.Context, time.Time, time.Time) ([]*entity.Rental, error) {
	return []*entity.Rental{}, nil
}

func (r *controllerRegistry) GetVehicle(_ context.Context, id string) (*entity.Vehicle, error) {
	for _, vehicle := range r.vehicles {
		if vehicle.ID == id {
			return vehicle, nil
		}
	}
	return nil, nil
}

func (r *controllerRegistry) ListVehicles(context.Context, string) ([]*entity.Vehicle, error) {
	return r.vehicles, nil
}

func (r *controllerRegistry) GetOwner(_ context.Context, id string) (*entity.Owner, error) {
	return r.owners[id], nil
}

func (r *controllerRegistry) ListOwners(context.Context) ([]*entity.Owner, error) {
	owners := make([]*entity.Owner, 0, len(r.owners))
	for _, owner := range r.owners {
		owners = append(owners, owner)
	}
	return owners, nil
}

func (r *controllerRegistry) GetDriver(context.Context, string) (*entity.Driver, error) {
	return nil, nil
}

func (r *controllerRegistry) ListMaintenance(context.Context, string, time.Time, time.Time) ([]*entity.MaintenanceRecord, error) {
	return []*entity.MaintenanceRecord{}, nil
}

func (r *controllerRegistry) RecordLastPayout(context.Context, string, string, int64, time.Time) error {
	return nil
}

type controllerTx struct{}

func (controllerTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type controllerGateway struct {
	ack *provider.Acknowledgement
	err error
}

func (g *controllerGateway) Collect(context.Context, *provider.CollectInput) (*provider.Acknowledgement, error) {
	return g.respond()
}

func (g *controllerGateway) Disburse(context.Context, *provider.DisburseInput) (*provider.Acknowledgement, error) {
	return g.respond()
}

func (g *controllerGateway) respond() (*provider.Acknowledgement, error) {
	if g.err != nil {
		return nil, g.err
	}
	if g.ack != nil {
		return g.ack, nil
	}
	return &provider.Acknowledgement{
		ProviderRequestID:   "ws_CO_191020261030001",
		ProviderSecondaryID: "29115-34620561-1",
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
	}, nil
}

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newPaymentControllerForTest(repo *controllerRequestRepo, gateway *controllerGateway) (*PaymentController, *controllerCallbackRepo) {
	callbacks := &controllerCallbackRepo{}
	registry := &controllerRegistry{}
	ledger := service.NewTransactionLedger(&controllerTransactionRepo{}, "KES")
	paymentService := service.NewPaymentService(
		repo,
		&controllerEventRepo{},
		callbacks,
		ledger,
		registry,
		gateway,
		controllerTx{},
		nil,
		nil,
		registry,
		config.PaymentsConfig{Currency: "KES", StaleSubmittedAfter: 30 * time.Minute, JobBatchSize: 50},
		testLogger(),
	)
	return NewPaymentController(paymentService), callbacks
}
