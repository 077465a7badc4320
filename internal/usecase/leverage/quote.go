package leverage

import (
	"github.com/shopspring/decimal"

	"github.com/simaogato/tradejournal-backend/internal/domain"
	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
	"github.com/simaogato/tradejournal-backend/internal/usecase/fees"
)

// QuoteRequest describes a planned trade
type QuoteRequest struct {
	Exchange string
	Side     domain.Side
	Entry    decimal.Decimal
	Stop     decimal.Decimal
	Target   *decimal.Decimal
	// Leverage is optional; zero means use the maximum safe leverage
	Leverage decimal.Decimal
	// Balance and RiskPct are optional; both are needed for sizing
	Balance decimal.Decimal
	RiskPct decimal.Decimal
}

// Quote is the calculator output for a planned trade
type Quote struct {
	Exchange              string
	ExchangeMaxLeverage   int
	MaintenanceMarginRate decimal.Decimal
	StopPct               decimal.Decimal
	MaxSafeLeverage       int
	Leverage              decimal.Decimal
	LiquidationPrice      decimal.Decimal
	// LiquidatedBeforeStop is true when the chosen leverage liquidates before the stop is hit
	LiquidatedBeforeStop bool
	RiskReward           *decimal.Decimal
	Sizing               *Sizing
	EstimatedFees        *decimal.Decimal
}

// Calculator quotes planned trades against an exchange fee schedule
type Calculator struct {
	Schedule *fees.Schedule
}

// NewCalculator creates a new Calculator instance
func NewCalculator(schedule *fees.Schedule) *Calculator {
	return &Calculator{Schedule: schedule}
}

// Quote bundles max leverage, liquidation, sizing and risk/reward for one plan
func (c *Calculator) Quote(req QuoteRequest) (*Quote, error) {
	if !req.Entry.IsPositive() || !req.Stop.IsPositive() {
		return nil, apperrors.ValidationError("entry and stop must be positive")
	}
	if req.Side != domain.SideLong && req.Side != domain.SideShort {
		return nil, apperrors.ValidationError("side must be LONG or SHORT")
	}
	if req.Side == domain.SideLong && !req.Stop.LessThan(req.Entry) {
		return nil, apperrors.ValidationError("stop must be below entry for a LONG")
	}
	if req.Side == domain.SideShort && !req.Stop.GreaterThan(req.Entry) {
		return nil, apperrors.ValidationError("stop must be above entry for a SHORT")
	}

	ef := c.Schedule.For(req.Exchange)
	stopPct := req.Entry.Sub(req.Stop).Abs().Div(req.Entry).Mul(hundred)

	maxSafe, err := MaxLeverageFromStopPercent(stopPct, ef.MaintenanceMarginRate, ef.MaxLeverage)
	if err != nil {
		return nil, err
	}

	lev := req.Leverage
	if lev.IsZero() {
		lev = decimal.NewFromInt(int64(maxSafe))
	}
	if lev.LessThan(one) || lev.GreaterThan(decimal.NewFromInt(int64(ef.MaxLeverage))) {
		return nil, apperrors.ValidationErrorf("leverage must be between 1 and %d on %s", ef.MaxLeverage, ef.Exchange)
	}

	liq, err := LiquidationPrice(req.Side, req.Entry, lev, ef.MaintenanceMarginRate)
	if err != nil {
		return nil, err
	}

	q := &Quote{
		Exchange:              ef.Exchange,
		ExchangeMaxLeverage:   ef.MaxLeverage,
		MaintenanceMarginRate: ef.MaintenanceMarginRate,
		StopPct:               stopPct.Round(4),
		MaxSafeLeverage:       maxSafe,
		Leverage:              lev,
		LiquidationPrice:      liq,
	}
	switch req.Side {
	case domain.SideLong:
		q.LiquidatedBeforeStop = liq.GreaterThanOrEqual(req.Stop)
	case domain.SideShort:
		q.LiquidatedBeforeStop = liq.LessThanOrEqual(req.Stop)
	}

	if req.Target != nil {
		rr, err := RiskReward(req.Side, req.Entry, req.Stop, *req.Target)
		if err != nil {
			return nil, err
		}
		rr = rr.Round(2)
		q.RiskReward = &rr
	}

	if req.Balance.IsPositive() && req.RiskPct.IsPositive() {
		sizing, err := PositionSize(req.Balance, req.RiskPct, req.Entry, req.Stop, ef.MaxLeverage)
		if err != nil {
			return nil, err
		}
		q.Sizing = sizing
		est := c.Schedule.EstimateRoundTrip(ef.Exchange, sizing.Notional, domain.FeeTypeTaker)
		q.EstimatedFees = &est
	}

	return q, nil
}
