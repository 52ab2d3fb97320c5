package types

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const maxCallbackBodyBytes = 64 << 10

type InitiateCollectionRequest struct {
	AmountMinor int64  `json:"amount_minor"`
	Msisdn      string `json:"msisdn"`
	RentalID    string `json:"rental_id"`
	Description string `json:"description"`
}

func NewInitiateCollectionRequestFromContext(ctx echo.Context) (*InitiateCollectionRequest, error) {
	var body InitiateCollectionRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.Msisdn = strings.TrimSpace(body.Msisdn)
	body.RentalID = strings.TrimSpace(body.RentalID)
	body.Description = strings.TrimSpace(body.Description)

	return &body, nil
}

func (r *InitiateCollectionRequest) Validate() error {
	if r.AmountMinor <= 0 {
		return errors.New("amount_minor must be > 0")
	}
	if r.Msisdn == "" {
		return errors.New("msisdn is required")
	}
	return nil
}

type InitiateDisbursementRequest struct {
	AmountMinor int64  `json:"amount_minor"`
	Msisdn      string `json:"msisdn"`
	Remarks     string `json:"remarks"`
	Occasion    string `json:"occasion"`
	PayeeType   string `json:"payee_type"`
	OwnerID     string `json:"owner_id"`
	DriverID    string `json:"driver_id"`
	RentalID    string `json:"rental_id"`
}

func NewInitiateDisbursementRequestFromContext(ctx echo.Context) (*InitiateDisbursementRequest, error) {
	var body InitiateDisbursementRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.Msisdn = strings.TrimSpace(body.Msisdn)
	body.Remarks = strings.TrimSpace(body.Remarks)
	body.Occasion = strings.TrimSpace(body.Occasion)
	body.PayeeType = strings.ToLower(strings.TrimSpace(body.PayeeType))
	body.OwnerID = strings.TrimSpace(body.OwnerID)
	body.DriverID = strings.TrimSpace(body.DriverID)
	body.RentalID = strings.TrimSpace(body.RentalID)

	return &body, nil
}

func (r *InitiateDisbursementRequest) Validate() error {
	if r.AmountMinor <= 0 {
		return errors.New("amount_minor must be > 0")
	}
	if r.Msisdn == "" {
		return errors.New("msisdn is required")
	}
	switch r.PayeeType {
	case "owner":
		if r.OwnerID == "" {
			return errors.New("owner_id is required for owner payouts")
		}
	case "driver":
		if r.DriverID == "" {
			return errors.New("driver_id is required for driver payouts")
		}
	case "broker":
	default:
		return errors.New("payee_type must be owner, driver, or broker")
	}
	return nil
}

type PaymentRequest struct {
	CorrelationID       string `json:"correlation_id"`
	Direction           string `json:"direction"`
	AmountMinor         int64  `json:"amount_minor"`
	Amount              string `json:"amount"`
	Currency            string `json:"currency"`
	Msisdn              string `json:"msisdn"`
	Status              string `json:"status"`
	ProviderRequestID   string `json:"provider_request_id,omitempty"`
	ProviderSecondaryID string `json:"provider_secondary_id,omitempty"`
	ResultCode          string `json:"result_code,omitempty"`
	ResultDescription   string `json:"result_description,omitempty"`
	RentalID            string `json:"rental_id,omitempty"`
	VehicleID           string `json:"vehicle_id,omitempty"`
	OwnerID             string `json:"owner_id,omitempty"`
	DriverID            string `json:"driver_id,omitempty"`
	PayeeType           string `json:"payee_type,omitempty"`
	SubmittedAt         string `json:"submitted_at,omitempty"`
	CompletedAt         string `json:"completed_at,omitempty"`
	CreatedAt           string `json:"created_at"`
	UpdatedAt           string `json:"updated_at"`
}

type InitiationResponse struct {
	CorrelationID  string          `json:"correlation_id"`
	AckStatus      string          `json:"ack_status"`
	PaymentRequest *PaymentRequest `json:"payment_request"`
}

type PaymentRequestEnvelopeResponse struct {
	PaymentRequest *PaymentRequest `json:"payment_request"`
}

type ListPaymentRequestsResponse struct {
	PaymentRequests []*PaymentRequest `json:"payment_requests"`
}

type GetPaymentRequestRequest struct {
	CorrelationID string
}

func NewGetPaymentRequestRequestFromContext(ctx echo.Context) (*GetPaymentRequestRequest, error) {
	return &GetPaymentRequestRequest{
		CorrelationID: strings.ToUpper(strings.TrimSpace(ctx.Param("correlation_id"))),
	}, nil
}

func (r *GetPaymentRequestRequest) Validate() error {
	if r.CorrelationID == "" {
		return errors.New("correlation_id is required")
	}
	return nil
}

type ListStaleRequestsRequest struct {
	OlderThanMinutes int64
}

func NewListStaleRequestsRequestFromContext(ctx echo.Context) (*ListStaleRequestsRequest, error) {
	req := &ListStaleRequestsRequest{}
	if raw := strings.TrimSpace(ctx.QueryParam("older_than_minutes")); raw != "" {
		minutes, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		req.OlderThanMinutes = minutes
	}
	return req, nil
}

func (r *ListStaleRequestsRequest) Validate() error {
	if r.OlderThanMinutes < 0 {
		return errors.New("older_than_minutes must be >= 0")
	}
	return nil
}

// ProviderCallbackRequest is an inbound M-Pesa notification. The body is kept
// verbatim for the audit trail.
type ProviderCallbackRequest struct {
	Kind          string
	CorrelationID string
	Payload       []byte
}

func NewProviderCallbackRequestFromContext(ctx echo.Context) (*ProviderCallbackRequest, error) {
	rawBody, err := io.ReadAll(io.LimitReader(ctx.Request().Body, maxCallbackBodyBytes))
	if err != nil {
		return nil, err
	}

	return &ProviderCallbackRequest{
		Kind:          strings.ToLower(strings.TrimSpace(ctx.Param("kind"))),
		CorrelationID: strings.ToUpper(strings.TrimSpace(ctx.Param("correlation_id"))),
		Payload:       rawBody,
	}, nil
}

func (r *ProviderCallbackRequest) Validate() error {
	if r.Kind != "stk" && r.Kind != "b2c" {
		return errors.New("callback kind must be stk or b2c")
	}
	return nil
}

// CallbackAckResponse is the acknowledgement body Daraja expects.
type CallbackAckResponse struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}
