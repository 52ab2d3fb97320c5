package types

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-rental-payments/app/entity"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

type Transaction struct {
	ID                uint64 `json:"id"`
	Kind              string `json:"kind"`
	AmountMinor       int64  `json:"amount_minor"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	Status            string `json:"status"`
	OccurredAt        string `json:"occurred_at"`
	ProviderReceiptID string `json:"provider_receipt_id,omitempty"`
	RentalID          string `json:"rental_id,omitempty"`
	VehicleID         string `json:"vehicle_id,omitempty"`
	OwnerID           string `json:"owner_id,omitempty"`
	DriverID          string `json:"driver_id,omitempty"`
	ReversalReason    string `json:"reversal_reason,omitempty"`
	CreatedAt         string `json:"created_at"`
}

type TransactionEnvelopeResponse struct {
	Transaction *Transaction `json:"transaction"`
}

type ListTransactionsResponse struct {
	Transactions []*Transaction `json:"transactions"`
}

type KindSummary struct {
	Kind       string `json:"kind"`
	Count      int64  `json:"count"`
	TotalMinor int64  `json:"total_minor"`
	Total      string `json:"total"`
	Currency   string `json:"currency"`
}

type TransactionsSummaryResponse struct {
	From  string         `json:"from"`
	To    string         `json:"to"`
	Kinds []*KindSummary `json:"kinds"`
}

type ListTransactionsRequest struct {
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

func NewListTransactionsRequestFromContext(ctx echo.Context) (*ListTransactionsRequest, error) {
	req := &ListTransactionsRequest{
		RentalID:  strings.TrimSpace(ctx.QueryParam("rental_id")),
		VehicleID: strings.TrimSpace(ctx.QueryParam("vehicle_id")),
		OwnerID:   strings.TrimSpace(ctx.QueryParam("owner_id")),
		DriverID:  strings.TrimSpace(ctx.QueryParam("driver_id")),
		Limit:     defaultListLimit,
	}

	if raw := strings.ToLower(strings.TrimSpace(ctx.QueryParam("kind"))); raw != "" {
		kind, ok := entity.ParseTransactionKind(raw)
		if !ok {
			return nil, errors.New("invalid kind")
		}
		req.Kind = kind
	}
	if raw := strings.ToLower(strings.TrimSpace(ctx.QueryParam("status"))); raw != "" {
		status, ok := entity.ParseTransactionStatus(raw)
		if !ok {
			return nil, errors.New("invalid status")
		}
		req.HasStatus = true
		req.Status = status
	}

	var err error
	if req.From, err = parseOptionalTime(ctx.QueryParam("from")); err != nil {
		return nil, err
	}
	if req.To, err = parseOptionalTime(ctx.QueryParam("to")); err != nil {
		return nil, err
	}

	if raw := strings.TrimSpace(ctx.QueryParam("limit")); raw != "" {
		limit, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Limit = int32(limit)
	}
	if raw := strings.TrimSpace(ctx.QueryParam("offset")); raw != "" {
		offset, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Offset = int32(offset)
	}

	return req, nil
}

func (r *ListTransactionsRequest) Validate() error {
	if r.Limit == 0 {
		r.Limit = defaultListLimit
	}
	if r.Limit < 0 || r.Limit > maxListLimit {
		return errors.New("limit must be between 1 and 500")
	}
	if r.Offset < 0 {
		return errors.New("offset must be >= 0")
	}
	if r.From != nil && r.To != nil && !r.From.Before(*r.To) {
		return errors.New("from must be before to")
	}
	return nil
}

type ReverseTransactionRequest struct {
	ID     uint64 `json:"-"`
	Reason string `json:"reason"`
}

func NewReverseTransactionRequestFromContext(ctx echo.Context) (*ReverseTransactionRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}

	var body ReverseTransactionRequest
	if err = ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body.ID = id
	body.Reason = strings.TrimSpace(body.Reason)

	return &body, nil
}

func (r *ReverseTransactionRequest) Validate() error {
	if r.ID == 0 {
		return errors.New("invalid transaction id")
	}
	if r.Reason == "" {
		return errors.New("reason is required")
	}
	return nil
}
