package controller

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-rental-payments/app/factory"
	"github.com/vibast-solutions/ms-go-rental-payments/app/mapper"
	"github.com/vibast-solutions/ms-go-rental-payments/app/service"
	"github.com/vibast-solutions/ms-go-rental-payments/app/types"
)

type FinanceController struct {
	financeService *service.FinanceService
	logger         logrus.FieldLogger
}

func NewFinanceController(financeService *service.FinanceService) *FinanceController {
	return &FinanceController{
		financeService: financeService,
		logger:         factory.NewModuleLogger("finance-controller"),
	}
}

func (c *FinanceController) NetIncome(ctx echo.Context) error {
	period, ok, err := c.period(ctx)
	if !ok {
		return err
	}

	report, err := c.financeService.MonthlyNetIncome(ctx.Request().Context(), period)
	if err != nil {
		return c.writeServiceError(ctx, err, "Net income report failed")
	}
	return ctx.JSON(http.StatusOK, mapper.NetIncomeToDTO(report))
}

func (c *FinanceController) RevenuePerAvailableCarDay(ctx echo.Context) error {
	period, ok, err := c.period(ctx)
	if !ok {
		return err
	}

	value, err := c.financeService.RevenuePerAvailableCarDay(ctx.Request().Context(), period)
	if err != nil {
		return c.writeServiceError(ctx, err, "Revenue per car day failed")
	}
	return ctx.JSON(http.StatusOK, mapper.RevenuePerCarDayToDTO(period, value))
}

func (c *FinanceController) FleetUtilization(ctx echo.Context) error {
	req, err := types.NewUtilizationRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	rate, err := c.financeService.FleetUtilizationRate(ctx.Request().Context(), req.Date)
	if err != nil {
		return c.writeServiceError(ctx, err, "Fleet utilization failed")
	}
	return ctx.JSON(http.StatusOK, mapper.UtilizationToDTO(req.Date, rate))
}

func (c *FinanceController) OwnerPayout(ctx echo.Context) error {
	period, ok, err := c.period(ctx)
	if !ok {
		return err
	}
	ownerID := strings.TrimSpace(ctx.Param("id"))
	if ownerID == "" {
		return writeError(ctx, http.StatusBadRequest, "owner id is required")
	}

	snapshot, err := c.financeService.OwnerPayoutAmount(ctx.Request().Context(), ownerID, period)
	if err != nil {
		return c.writeServiceError(ctx, err, "Owner payout failed")
	}
	return ctx.JSON(http.StatusOK, mapper.OwnerPayoutToDTO(snapshot))
}

func (c *FinanceController) VehicleContributionMargin(ctx echo.Context) error {
	period, ok, err := c.period(ctx)
	if !ok {
		return err
	}
	vehicleID := strings.TrimSpace(ctx.Param("id"))
	if vehicleID == "" {
		return writeError(ctx, http.StatusBadRequest, "vehicle id is required")
	}

	report, err := c.financeService.VehicleContributionMargin(ctx.Request().Context(), vehicleID, period)
	if err != nil {
		return c.writeServiceError(ctx, err, "Contribution margin failed")
	}
	return ctx.JSON(http.StatusOK, mapper.ContributionMarginToDTO(report))
}

// period parses the query period. When ok is false the error response has
// already been written and err is what the handler should return.
func (c *FinanceController) period(ctx echo.Context) (service.Period, bool, error) {
	req, err := types.NewPeriodRequestFromContext(ctx)
	if err != nil {
		return service.Period{}, false, writeError(ctx, http.StatusBadRequest, err.Error())
	}
	if err := req.Validate(); err != nil {
		return service.Period{}, false, writeError(ctx, http.StatusBadRequest, err.Error())
	}
	return service.Period{From: req.From, To: req.To}, true, nil
}

func (c *FinanceController) writeServiceError(ctx echo.Context, err error, logMessage string) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		return writeError(ctx, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrOwnerNotFound):
		return writeError(ctx, http.StatusNotFound, "owner not found")
	case errors.Is(err, service.ErrVehicleNotFound):
		return writeError(ctx, http.StatusNotFound, "vehicle not found")
	default:
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error(logMessage)
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}
}
