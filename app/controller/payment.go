package controller

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-rental-payments/app/factory"
	"github.com/vibast-solutions/ms-go-rental-payments/app/mapper"
	"github.com/vibast-solutions/ms-go-rental-payments/app/provider"
	"github.com/vibast-solutions/ms-go-rental-payments/app/service"
	"github.com/vibast-solutions/ms-go-rental-payments/app/types"
)

type PaymentController struct {
	paymentService *service.PaymentService
	logger         logrus.FieldLogger
}

func NewPaymentController(paymentService *service.PaymentService) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
		logger:         factory.NewModuleLogger("payments-controller"),
	}
}

func (c *PaymentController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *PaymentController) InitiateCollection(ctx echo.Context) error {
	req, err := types.NewInitiateCollectionRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.paymentService.InitiateCollection(ctx.Request().Context(), req.AmountMinor, req.Msisdn, req.RentalID, req.Description)
	if err != nil {
		return c.writeInitiationError(ctx, result, err, "Initiate collection failed")
	}

	return ctx.JSON(http.StatusCreated, mapper.InitiationToDTO(result))
}

func (c *PaymentController) InitiateDisbursement(ctx echo.Context) error {
	req, err := types.NewInitiateDisbursementRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.paymentService.InitiateDisbursement(ctx.Request().Context(), service.DisbursementInput{
		AmountMinor: req.AmountMinor,
		Msisdn:      req.Msisdn,
		Remarks:     req.Remarks,
		Occasion:    req.Occasion,
		PayeeType:   req.PayeeType,
		OwnerID:     req.OwnerID,
		DriverID:    req.DriverID,
		RentalID:    req.RentalID,
	})
	if err != nil {
		return c.writeInitiationError(ctx, result, err, "Initiate disbursement failed")
	}

	return ctx.JSON(http.StatusCreated, mapper.InitiationToDTO(result))
}

func (c *PaymentController) GetPaymentRequest(ctx echo.Context) error {
	req, err := types.NewGetPaymentRequestRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.paymentService.GetPaymentRequest(ctx.Request().Context(), req.CorrelationID)
	if err != nil {
		if errors.Is(err, service.ErrPaymentRequestNotFound) {
			return writeError(ctx, http.StatusNotFound, "payment request not found")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get payment request failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.PaymentRequestEnvelopeResponse{PaymentRequest: mapper.PaymentRequestToDTO(item)})
}

func (c *PaymentController) ListStaleRequests(ctx echo.Context) error {
	req, err := types.NewListStaleRequestsRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	items, err := c.paymentService.ListStaleSubmitted(ctx.Request().Context(), time.Duration(req.OlderThanMinutes)*time.Minute)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			return writeError(ctx, http.StatusBadRequest, err.Error())
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("List stale payment requests failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.ListPaymentRequestsResponse{PaymentRequests: mapper.PaymentRequestsToDTO(items)})
}

// HandleMpesaCallback always acknowledges; Daraja retries anything else and
// the outcome is already recorded in the callback audit.
func (c *PaymentController) HandleMpesaCallback(ctx echo.Context) error {
	ack := &types.CallbackAckResponse{ResultCode: 0, ResultDesc: "Accepted"}

	req, err := types.NewProviderCallbackRequestFromContext(ctx)
	if err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Warn("Failed to read provider callback body")
		return ctx.JSON(http.StatusOK, ack)
	}
	if err := req.Validate(); err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).WithField("kind", req.Kind).Warn("Provider callback on unknown route")
		return ctx.JSON(http.StatusOK, ack)
	}

	c.paymentService.HandleProviderCallback(ctx.Request().Context(), service.RawCallback{
		Kind:          req.Kind,
		CorrelationID: req.CorrelationID,
		Payload:       req.Payload,
	})

	return ctx.JSON(http.StatusOK, ack)
}

func (c *PaymentController) writeInitiationError(ctx echo.Context, result *service.InitiationResult, err error, logMessage string) error {
	correlationID := ""
	if result != nil {
		correlationID = result.CorrelationID
	}

	switch {
	case errors.Is(err, service.ErrValidation):
		return writeError(ctx, http.StatusBadRequest, err.Error())
	case provider.IsGatewayRejected(err):
		return ctx.JSON(http.StatusUnprocessableEntity, &types.ErrorResponse{
			Error:         "payment could not be initiated",
			CorrelationID: correlationID,
		})
	case provider.IsTransportError(err):
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Warn("Payment gateway unavailable")
		return ctx.JSON(http.StatusServiceUnavailable, &types.ErrorResponse{
			Error:         "payment gateway unavailable",
			CorrelationID: correlationID,
		})
	default:
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error(logMessage)
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}
}

func writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
