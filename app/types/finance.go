package types

import (
	"errors"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

// PeriodRequest resolves either ?month=YYYY-MM or a ?from=&to= pair into a
// half-open range. Dates without a time are taken at UTC midnight.
type PeriodRequest struct {
	From time.Time
	To   time.Time
}

func NewPeriodRequestFromContext(ctx echo.Context) (*PeriodRequest, error) {
	if raw := strings.TrimSpace(ctx.QueryParam("month")); raw != "" {
		month, err := time.Parse(monthLayout, raw)
		if err != nil {
			return nil, err
		}
		return &PeriodRequest{From: month, To: month.AddDate(0, 1, 0)}, nil
	}

	from, err := parseOptionalTime(ctx.QueryParam("from"))
	if err != nil {
		return nil, err
	}
	to, err := parseOptionalTime(ctx.QueryParam("to"))
	if err != nil {
		return nil, err
	}

	req := &PeriodRequest{}
	if from != nil {
		req.From = *from
	}
	if to != nil {
		req.To = *to
	}
	return req, nil
}

func (r *PeriodRequest) Validate() error {
	if r.From.IsZero() || r.To.IsZero() {
		return errors.New("month or from/to is required")
	}
	if !r.From.Before(r.To) {
		return errors.New("from must be before to")
	}
	return nil
}

type UtilizationRequest struct {
	Date time.Time
}

func NewUtilizationRequestFromContext(ctx echo.Context) (*UtilizationRequest, error) {
	date, err := parseOptionalTime(ctx.QueryParam("date"))
	if err != nil {
		return nil, err
	}
	if date == nil {
		now := time.Now().UTC()
		date = &now
	}
	return &UtilizationRequest{Date: *date}, nil
}

type NetIncomeResponse struct {
	From             string            `json:"from"`
	To               string            `json:"to"`
	TotalRevenue     string            `json:"total_revenue"`
	Expenses         map[string]string `json:"expenses"`
	TotalExpenses    string            `json:"total_expenses"`
	MaintenanceCosts string            `json:"maintenance_costs"`
	NetIncome        string            `json:"net_income"`
	// Margins are percentages of total revenue, not ratios.
	GrossProfitMarginPct string `json:"gross_profit_margin_pct"`
	NetProfitMarginPct   string `json:"net_profit_margin_pct"`
}

type FleetUtilizationResponse struct {
	Date string `json:"date"`
	// RatePct is the share of the eligible fleet on rental, as a percentage.
	RatePct string `json:"rate_pct"`
}

type RevenuePerCarDayResponse struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
}

type ContributionMarginResponse struct {
	VehicleID        string `json:"vehicle_id"`
	From             string `json:"from"`
	To               string `json:"to"`
	SettledRevenue   string `json:"settled_revenue"`
	MaintenanceCosts string `json:"maintenance_costs"`
	Contribution     string `json:"contribution"`
}

type OwnerPayoutResponse struct {
	OwnerID             string `json:"owner_id"`
	From                string `json:"from"`
	To                  string `json:"to"`
	GrossVehicleRevenue string `json:"gross_vehicle_revenue"`
	PayoutRateType      string `json:"payout_rate_type"`
	PayoutRateValue     string `json:"payout_rate_value"`
	ComputedPayout      string `json:"computed_payout"`
	ComputedPayoutMinor int64  `json:"computed_payout_minor"`
}

func parseOptionalTime(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, errors.New("dates must be YYYY-MM-DD or RFC3339")
	}
	return &t, nil
}
