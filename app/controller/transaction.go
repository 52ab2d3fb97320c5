package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-rental-payments/app/factory"
	"github.com/vibast-solutions/ms-go-rental-payments/app/mapper"
	"github.com/vibast-solutions/ms-go-rental-payments/app/service"
	"github.com/vibast-solutions/ms-go-rental-payments/app/types"
)

type TransactionController struct {
	ledger *service.TransactionLedger
	logger logrus.FieldLogger
}

func NewTransactionController(ledger *service.TransactionLedger) *TransactionController {
	return &TransactionController{
		ledger: ledger,
		logger: factory.NewModuleLogger("transactions-controller"),
	}
}

func (c *TransactionController) ListTransactions(ctx echo.Context) error {
	req, err := types.NewListTransactionsRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	query := service.TransactionQuery{
		Kind:      req.Kind,
		From:      req.From,
		To:        req.To,
		VehicleID: req.VehicleID,
		OwnerID:   req.OwnerID,
		RentalID:  req.RentalID,
		DriverID:  req.DriverID,
		Limit:     req.Limit,
		Offset:    req.Offset,
	}
	if req.HasStatus {
		status := req.Status
		query.Status = &status
	}

	items, err := c.ledger.Query(ctx.Request().Context(), query)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			return writeError(ctx, http.StatusBadRequest, err.Error())
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("List transactions failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.ListTransactionsResponse{Transactions: mapper.TransactionsToDTO(items)})
}

func (c *TransactionController) TransactionsSummary(ctx echo.Context) error {
	req, err := types.NewPeriodRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	period := service.Period{From: req.From, To: req.To}
	summary, err := c.ledger.SummarizeByKind(ctx.Request().Context(), period)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			return writeError(ctx, http.StatusBadRequest, err.Error())
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Summarize transactions failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, mapper.SummaryToDTO(period, summary, c.ledger.Currency()))
}

func (c *TransactionController) ReverseTransaction(ctx echo.Context) error {
	req, err := types.NewReverseTransactionRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.ledger.Reverse(ctx.Request().Context(), req.ID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			return writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrTransactionNotFound):
			return writeError(ctx, http.StatusNotFound, "transaction not found")
		case errors.Is(err, service.ErrInvalidStatus):
			return writeError(ctx, http.StatusConflict, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Reverse transaction failed")
			return writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.TransactionEnvelopeResponse{Transaction: mapper.TransactionToDTO(item)})
}
