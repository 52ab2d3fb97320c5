package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-rental-payments/app/entity"
	"github.com/vibast-solutions/ms-go-rental-payments/app/provider"
	"github.com/vibast-solutions/ms-go-rental-payments/app/repository"
	"github.com/vibast-solutions/ms-go-rental-payments/config"
)

type fakeRequestRepo struct {
	mu       sync.Mutex
	requests map[uint64]*entity.PaymentRequest
	nextID   uint64
	findErr  error
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{requests: map[uint64]*entity.PaymentRequest{}, nextID: 1}
}

func (r *fakeRequestRepo) Create(_ context.Context, request *entity.PaymentRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.requests {
		if item.CorrelationID == request.CorrelationID {
			return repository.ErrPaymentRequestAlreadyExists
		}
	}
	request.ID = r.nextID
	r.nextID++
	copyItem := *request
	r.requests[request.ID] = &copyItem
	return nil
}

func (r *fakeRequestRepo) Update(_ context.Context, request *entity.PaymentRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.requests[request.ID]
	if !ok || stored.Version != request.Version {
		return repository.ErrVersionConflict
	}
	request.Version++
	copyItem := *request
	r.requests[request.ID] = &copyItem
	return nil
}

func (r *fakeRequestRepo) FindByID(_ context.Context, id uint64) (*entity.PaymentRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.requests[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *fakeRequestRepo) FindByCorrelationID(_ context.Context, correlationID string) (*entity.PaymentRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, item := range r.requests {
		if item.CorrelationID == correlationID {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *fakeRequestRepo) FindByProviderID(_ context.Context, providerID string) (*entity.PaymentRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.requests {
		if (item.ProviderRequestID != nil && *item.ProviderRequestID == providerID) ||
			(item.ProviderSecondaryID != nil && *item.ProviderSecondaryID == providerID) {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *fakeRequestRepo) ListStaleSubmitted(_ context.Context, submittedBefore time.Time, limit int32) ([]*entity.PaymentRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]*entity.PaymentRequest, 0)
	for _, item := range r.requests {
		if item.Status == entity.PaymentRequestStatusSubmitted && item.SubmittedAt != nil && !item.SubmittedAt.After(submittedBefore) {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SubmittedAt.Before(*items[j].SubmittedAt) })
	if int32(len(items)) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (r *fakeRequestRepo) get(id uint64) *entity.PaymentRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	copyItem := *r.requests[id]
	return &copyItem
}

func (r *fakeRequestRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

type fakeEventRepo struct {
	mu     sync.Mutex
	events []*entity.PaymentEvent
}

func (r *fakeEventRepo) Create(_ context.Context, event *entity.PaymentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copyItem := *event
	r.events = append(r.events, &copyItem)
	return nil
}

func (r *fakeEventRepo) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, event := range r.events {
		out = append(out, event.EventType)
	}
	return out
}

type fakeCallbackRepo struct {
	mu        sync.Mutex
	callbacks []*entity.ProviderCallback
}

func (r *fakeCallbackRepo) Create(_ context.Context, callback *entity.ProviderCallback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copyItem := *callback
	r.callbacks = append(r.callbacks, &copyItem)
	return nil
}

func (r *fakeCallbackRepo) countByStatus(status int32) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, callback := range r.callbacks {
		if callback.Status == status {
			n++
		}
	}
	return n
}

type fakeTransactionRepo struct {
	mu     sync.Mutex
	txns   map[uint64]*entity.Transaction
	nextID uint64
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{txns: map[uint64]*entity.Transaction{}, nextID: 1}
}

func (r *fakeTransactionRepo) Create(_ context.Context, txn *entity.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if txn.ProviderReceiptID != nil {
		for _, item := range r.txns {
			if item.ProviderReceiptID != nil && *item.ProviderReceiptID == *txn.ProviderReceiptID {
				return repository.ErrDuplicateReceipt
			}
		}
	}
	txn.ID = r.nextID
	r.nextID++
	copyItem := *txn
	r.txns[txn.ID] = &copyItem
	return nil
}

func (r *fakeTransactionRepo) FindByID(_ context.Context, id uint64) (*entity.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.txns[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *fakeTransactionRepo) FindByReceipt(_ context.Context, receiptID string) (*entity.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.txns {
		if item.ProviderReceiptID != nil && *item.ProviderReceiptID == receiptID {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *fakeTransactionRepo) List(_ context.Context, filter repository.TransactionFilter) ([]*entity.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]*entity.Transaction, 0)
	for _, item := range r.txns {
		if filter.Kind > 0 && item.Kind != filter.Kind {
			continue
		}
		if filter.HasStatus && item.Status != filter.Status {
			continue
		}
		if filter.From != nil && item.OccurredAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !item.OccurredAt.Before(*filter.To) {
			continue
		}
		if !matchOptional(filter.RentalID, item.RelatedRentalID) ||
			!matchOptional(filter.VehicleID, item.RelatedVehicleID) ||
			!matchOptional(filter.OwnerID, item.RelatedOwnerID) ||
			!matchOptional(filter.DriverID, item.RelatedDriverID) {
			continue
		}
		copyItem := *item
		items = append(items, &copyItem)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].OccurredAt.Equal(items[j].OccurredAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].OccurredAt.After(items[j].OccurredAt)
	})
	if filter.Limit > 0 {
		start := int(filter.Offset)
		if start > len(items) {
			start = len(items)
		}
		end := start + int(filter.Limit)
		if end > len(items) {
			end = len(items)
		}
		items = items[start:end]
	}
	return items, nil
}

func (r *fakeTransactionRepo) SummarizeByKind(_ context.Context, from, to time.Time) ([]repository.KindTotal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byKind := map[int32]*repository.KindTotal{}
	for _, item := range r.txns {
		if item.Status != entity.TransactionStatusConfirmed || item.OccurredAt.Before(from) || !item.OccurredAt.Before(to) {
			continue
		}
		total, ok := byKind[item.Kind]
		if !ok {
			total = &repository.KindTotal{Kind: item.Kind}
			byKind[item.Kind] = total
		}
		total.Count++
		total.TotalMinor += item.AmountMinor
	}
	out := make([]repository.KindTotal, 0, len(byKind))
	for _, total := range byKind {
		out = append(out, *total)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}

func (r *fakeTransactionRepo) SumConfirmedForRental(_ context.Context, rentalID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, item := range r.txns {
		if item.Kind == entity.TransactionKindCollection && item.Status == entity.TransactionStatusConfirmed &&
			item.RelatedRentalID != nil && *item.RelatedRentalID == rentalID {
			total += item.AmountMinor
		}
	}
	return total, nil
}

func (r *fakeTransactionRepo) Reverse(_ context.Context, id uint64, reason string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.txns[id]
	if !ok || item.Status != entity.TransactionStatusConfirmed {
		return repository.ErrVersionConflict
	}
	item.Status = entity.TransactionStatusReversed
	item.ReversalReason = &reason
	item.UpdatedAt = now
	return nil
}

func (r *fakeTransactionRepo) all() []*entity.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entity.Transaction, 0, len(r.txns))
	for _, item := range r.txns {
		copyItem := *item
		out = append(out, &copyItem)
	}
	return out
}

func (r *fakeTransactionRepo) seed(txn entity.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	txn.ID = r.nextID
	r.nextID++
	r.txns[txn.ID] = &txn
}

func matchOptional(want string, got *string) bool {
	if want == "" {
		return true
	}
	return got != nil && *got == want
}

type fakeTx struct{}

func (fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeGateway struct {
	mu           sync.Mutex
	collectCalls []provider.CollectInput
	disburseCall []provider.DisburseInput
	ack          *provider.Acknowledgement
	err          error
	during       func()
}

func (g *fakeGateway) Collect(_ context.Context, input *provider.CollectInput) (*provider.Acknowledgement, error) {
	g.mu.Lock()
	g.collectCalls = append(g.collectCalls, *input)
	during := g.during
	g.mu.Unlock()
	if during != nil {
		during()
	}
	return g.result()
}

func (g *fakeGateway) Disburse(_ context.Context, input *provider.DisburseInput) (*provider.Acknowledgement, error) {
	g.mu.Lock()
	g.disburseCall = append(g.disburseCall, *input)
	g.mu.Unlock()
	return g.result()
}

func (g *fakeGateway) result() (*provider.Acknowledgement, error) {
	if g.err != nil {
		return nil, g.err
	}
	if g.ack != nil {
		ack := *g.ack
		return &ack, nil
	}
	return &provider.Acknowledgement{ProviderRequestID: "AG123", ProviderSecondaryID: "29115-34620561-1", ResponseCode: "0"}, nil
}

type fakeRegistry struct {
	rentals     map[string]*entity.Rental
	vehicles    map[string]*entity.Vehicle
	owners      map[string]*entity.Owner
	drivers     map[string]*entity.Driver
	maintenance []*entity.MaintenanceRecord
	statuses    map[string]string
	payouts     []recordedPayout
	mu          sync.Mutex
}

type recordedPayout struct {
	payeeType   string
	payeeID     string
	amountMinor int64
	at          time.Time
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		rentals:  map[string]*entity.Rental{},
		vehicles: map[string]*entity.Vehicle{},
		owners:   map[string]*entity.Owner{},
		drivers:  map[string]*entity.Driver{},
		statuses: map[string]string{},
	}
}

func (r *fakeRegistry) GetRental(_ context.Context, id string) (*entity.Rental, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rental, ok := r.rentals[id]
	if !ok {
		return nil, nil
	}
	copyItem := *rental
	return &copyItem, nil
}

func (r *fakeRegistry) ListRentalsOverlapping(_ context.Context, from, to time.Time) ([]*entity.Rental, error) {
	out := make([]*entity.Rental, 0)
	for _, rental := range r.rentals {
		if rental.StartDate.Before(to) && !rental.EndDate.Before(from) {
			copyItem := *rental
			out = append(out, &copyItem)
		}
	}
	return out, nil
}

func (r *fakeRegistry) GetVehicle(_ context.Context, id string) (*entity.Vehicle, error) {
	vehicle, ok := r.vehicles[id]
	if !ok {
		return nil, nil
	}
	copyItem := *vehicle
	return &copyItem, nil
}

func (r *fakeRegistry) ListVehicles(_ context.Context, ownerID string) ([]*entity.Vehicle, error) {
	out := make([]*entity.Vehicle, 0)
	for _, vehicle := range r.vehicles {
		if ownerID != "" && vehicle.OwnerID != ownerID {
			continue
		}
		copyItem := *vehicle
		out = append(out, &copyItem)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeRegistry) GetOwner(_ context.Context, id string) (*entity.Owner, error) {
	owner, ok := r.owners[id]
	if !ok {
		return nil, nil
	}
	copyItem := *owner
	return &copyItem, nil
}

func (r *fakeRegistry) ListOwners(_ context.Context) ([]*entity.Owner, error) {
	out := make([]*entity.Owner, 0, len(r.owners))
	for _, owner := range r.owners {
		copyItem := *owner
		out = append(out, &copyItem)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeRegistry) GetDriver(_ context.Context, id string) (*entity.Driver, error) {
	driver, ok := r.drivers[id]
	if !ok {
		return nil, nil
	}
	copyItem := *driver
	return &copyItem, nil
}

func (r *fakeRegistry) ListMaintenance(_ context.Context, vehicleID string, from, to time.Time) ([]*entity.MaintenanceRecord, error) {
	out := make([]*entity.MaintenanceRecord, 0)
	for _, record := range r.maintenance {
		if vehicleID != "" && record.VehicleID != vehicleID {
			continue
		}
		if record.PerformedAt.Before(from) || !record.PerformedAt.Before(to) {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

func (r *fakeRegistry) SetRentalPaymentStatus(_ context.Context, rentalID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[rentalID] = status
	if rental, ok := r.rentals[rentalID]; ok {
		rental.PaymentStatus = status
	}
	return nil
}

func (r *fakeRegistry) RecordLastPayout(_ context.Context, payeeType, payeeID string, amountMinor int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payouts = append(r.payouts, recordedPayout{payeeType: payeeType, payeeID: payeeID, amountMinor: amountMinor, at: at})
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*entity.DomainEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, event *entity.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	copyItem := *event
	p.events = append(p.events, &copyItem)
	return nil
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, event := range p.events {
		out = append(out, event.Type)
	}
	return out
}

type fakeCollectionHook struct {
	mu      sync.Mutex
	rentals []string
}

func (h *fakeCollectionHook) CollectionConfirmed(_ context.Context, rentalID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rentals = append(h.rentals, rentalID)
	return nil
}

func newTestLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type paymentFixture struct {
	service   *PaymentService
	requests  *fakeRequestRepo
	events    *fakeEventRepo
	callbacks *fakeCallbackRepo
	txns      *fakeTransactionRepo
	registry  *fakeRegistry
	gateway   *fakeGateway
	publisher *fakePublisher
	hook      *fakeCollectionHook
}

func newPaymentFixture() *paymentFixture {
	f := &paymentFixture{
		requests:  newFakeRequestRepo(),
		events:    &fakeEventRepo{},
		callbacks: &fakeCallbackRepo{},
		txns:      newFakeTransactionRepo(),
		registry:  newFakeRegistry(),
		gateway:   &fakeGateway{},
		publisher: &fakePublisher{},
		hook:      &fakeCollectionHook{},
	}

	f.registry.vehicles["V1"] = &entity.Vehicle{ID: "V1", OwnerID: "O1", Plate: "KDA 001A", Status: entity.VehicleStatusRented}
	driverID := "D1"
	f.registry.rentals["R1"] = &entity.Rental{
		ID:               "R1",
		VehicleID:        "V1",
		DriverID:         &driverID,
		Status:           entity.RentalStatusActive,
		PaymentStatus:    entity.RentalPaymentPending,
		TotalAmountMinor: 500000,
		StartDate:        time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		EndDate:          time.Date(2026, 10, 7, 0, 0, 0, 0, time.UTC),
	}

	seq := 0
	f.service = NewPaymentService(
		f.requests,
		f.events,
		f.callbacks,
		NewTransactionLedger(f.txns, "KES"),
		f.registry,
		f.gateway,
		fakeTx{},
		f.publisher,
		f.hook,
		f.registry,
		config.PaymentsConfig{Currency: "KES", StaleSubmittedAfter: 30 * time.Minute, JobBatchSize: 50},
		newTestLogger(),
	)
	f.service.newCorrelationID = func() string {
		seq++
		return fmt.Sprintf("CORR%08d", seq)
	}
	return f
}

var errBoom = errors.New("boom")
