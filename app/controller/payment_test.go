package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-rental-payments/app/entity"
	"github.com/vibast-solutions/ms-go-rental-payments/app/provider"
	"github.com/vibast-solutions/ms-go-rental-payments/app/types"
)

func TestInitiateCollectionBadBody(t *testing.T) {
	ctrl, _ := newPaymentControllerForTest(&controllerRequestRepo{}, &controllerGateway{})
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/collections", bytes.NewBufferString("{bad"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	if err := ctrl.InitiateCollection(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestInitiateCollectionInvalidMsisdn(t *testing.T) {
	ctrl, _ := newPaymentControllerForTest(&controllerRequestRepo{}, &controllerGateway{})
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/collections", bytes.NewBufferString(`{"amount_minor":100000,"msisdn":"12"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	_ = ctrl.InitiateCollection(ctx)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestInitiateCollectionSuccess(t *testing.T) {
	ctrl, _ := newPaymentControllerForTest(&controllerRequestRepo{}, &controllerGateway{})
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/collections", bytes.NewBufferString(`{"amount_minor":100000,"msisdn":"0712345678","description":"deposit"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	_ = ctrl.InitiateCollection(ctx)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}

	var payload types.InitiationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(payload.CorrelationID) != 12 {
		t.Fatalf("unexpected correlation id %q", payload.CorrelationID)
	}
	if payload.AckStatus != "submitted" {
		t.Fatalf("expected submitted ack, got %q", payload.AckStatus)
	}
	if payload.PaymentRequest == nil || payload.PaymentRequest.Msisdn != "254712345678" {
		t.Fatalf("unexpected payment request payload: %+v", payload.PaymentRequest)
	}
}

func TestInitiateCollectionGatewayRejected(t *testing.T) {
	gateway := &controllerGateway{err: &provider.GatewayRejectedError{Op: "stk_push", Code: "400.002.02", Message: "Bad Request - Invalid PhoneNumber"}}
	ctrl, _ := newPaymentControllerForTest(&controllerRequestRepo{}, gateway)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/collections", bytes.NewBufferString(`{"amount_minor":100000,"msisdn":"254712345678"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	_ = ctrl.InitiateCollection(ctx)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body=%s", rec.Code, rec.Body.String())
	}

	var payload types.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if payload.CorrelationID == "" {
		t.Fatalf("expected correlation id in error response")
	}
}

func TestInitiateDisbursementTransportError(t *testing.T) {
	gateway := &controllerGateway{err: &provider.TransportError{Op: "b2c", Err: errors.New("connection reset")}}
	ctrl, _ := newPaymentControllerForTest(&controllerRequestRepo{}, gateway)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/disbursements", bytes.NewBufferString(`{"amount_minor":500000,"msisdn":"254712345678","payee_type":"owner","owner_id":"O1","remarks":"October payout"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	_ = ctrl.InitiateDisbursement(ctx)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestGetPaymentRequestNotFound(t *testing.T) {
	ctrl, _ := newPaymentControllerForTest(&controllerRequestRepo{}, &controllerGateway{})
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/payment-requests/ab12cd34ef56", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("correlation_id")
	ctx.SetParamValues("ab12cd34ef56")

	_ = ctrl.GetPaymentRequest(ctx)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetPaymentRequestSuccess(t *testing.T) {
	var lookedUp string
	repo := &controllerRequestRepo{findByCorrelationIDFn: func(_ context.Context, correlationID string) (*entity.PaymentRequest, error) {
		lookedUp = correlationID
		return &entity.PaymentRequest{
			ID:            7,
			CorrelationID: correlationID,
			Direction:     entity.DirectionCollection,
			AmountMinor:   100000,
			Currency:      "KES",
			Msisdn:        "254712345678",
			Status:        entity.PaymentRequestStatusSubmitted,
			CreatedAt:     time.Now().UTC(),
			UpdatedAt:     time.Now().UTC(),
		}, nil
	}}
	ctrl, _ := newPaymentControllerForTest(repo, &controllerGateway{})
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/payment-requests/ab12cd34ef56", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("correlation_id")
	ctx.SetParamValues("ab12cd34ef56")

	_ = ctrl.GetPaymentRequest(ctx)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if lookedUp != "AB12CD34EF56" {
		t.Fatalf("expected upper-cased lookup, got %q", lookedUp)
	}
}

func TestListStaleRequestsUsesHorizon(t *testing.T) {
	var cutoff time.Time
	repo := &controllerRequestRepo{listStaleSubmittedFn: func(_ context.Context, submittedBefore time.Time, _ int32) ([]*entity.PaymentRequest, error) {
		cutoff = submittedBefore
		return []*entity.PaymentRequest{}, nil
	}}
	ctrl, _ := newPaymentControllerForTest(repo, &controllerGateway{})
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/payment-requests/stale?older_than_minutes=45", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	_ = ctrl.ListStaleRequests(ctx)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	age := time.Since(cutoff)
	if age < 44*time.Minute || age > 46*time.Minute {
		t.Fatalf("unexpected stale cutoff age %s", age)
	}
}

func TestHandleMpesaCallbackAcknowledgesMalformedPayload(t *testing.T) {
	ctrl, callbacks := newPaymentControllerForTest(&controllerRequestRepo{}, &controllerGateway{})
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/mpesa/stk/AB12CD34EF56", bytes.NewBufferString(`{"unexpected":true}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("kind", "correlation_id")
	ctx.SetParamValues("stk", "AB12CD34EF56")

	_ = ctrl.HandleMpesaCallback(ctx)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var ack types.CallbackAckResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if ack.ResultCode != 0 || ack.ResultDesc != "Accepted" {
		t.Fatalf("unexpected ack: %+v", ack)
	}
	if len(callbacks.callbacks) != 1 || callbacks.callbacks[0].Status != entity.ProviderCallbackMalformed {
		t.Fatalf("expected malformed callback audit, got %+v", callbacks.callbacks)
	}
}

func TestHandleMpesaCallbackUnknownKind(t *testing.T) {
	ctrl, callbacks := newPaymentControllerForTest(&controllerRequestRepo{}, &controllerGateway{})
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/mpesa/c2b", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("kind")
	ctx.SetParamValues("c2b")

	_ = ctrl.HandleMpesaCallback(ctx)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(callbacks.callbacks) != 0 {
		t.Fatalf("expected no callback audit for unknown kind")
	}
}
