// Package leverage holds the position calculator: maximum safe leverage for a
// stop distance, isolated-margin liquidation prices, risk based position
// sizing and risk/reward.
package leverage

import (
	"github.com/shopspring/decimal"

	"github.com/simaogato/tradejournal-backend/internal/domain"
	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// MaxLeverageFromStopPercent returns the highest whole leverage whose
// liquidation distance (1/L − mmr) is not inside a stop placed stopPct
// percent from entry: floor(1 / (stopPct/100 + mmr)), clamped to [1, maxCap].
func MaxLeverageFromStopPercent(stopPct, mmr decimal.Decimal, maxCap int) (int, error) {
	if !stopPct.IsPositive() {
		return 0, apperrors.ValidationError("stop distance must be positive")
	}
	if mmr.IsNegative() || mmr.GreaterThanOrEqual(one) {
		return 0, apperrors.ValidationError("maintenance margin rate must be in [0, 1)")
	}
	if maxCap < 1 {
		maxCap = 1
	}
	if stopPct.GreaterThanOrEqual(hundred) {
		return 1, nil
	}

	denom := stopPct.Div(hundred).Add(mmr)
	l := int(one.Div(denom).Floor().IntPart())
	if l < 1 {
		l = 1
	}
	if l > maxCap {
		l = maxCap
	}
	return l, nil
}

// LiquidationPrice is the isolated-margin liquidation price of a position
func LiquidationPrice(side domain.Side, entry, lev, mmr decimal.Decimal) (decimal.Decimal, error) {
	if !entry.IsPositive() {
		return decimal.Zero, apperrors.ValidationError("entry price must be positive")
	}
	if lev.LessThan(one) {
		return decimal.Zero, apperrors.ValidationError("leverage must be at least 1")
	}
	if mmr.IsNegative() || mmr.GreaterThanOrEqual(one) {
		return decimal.Zero, apperrors.ValidationError("maintenance margin rate must be in [0, 1)")
	}

	inv := one.Div(lev)
	var price decimal.Decimal
	switch side {
	case domain.SideLong:
		price = entry.Mul(one.Sub(inv).Add(mmr))
	case domain.SideShort:
		price = entry.Mul(one.Add(inv).Sub(mmr))
	default:
		return decimal.Zero, apperrors.ValidationError("side must be LONG or SHORT")
	}
	if price.IsNegative() {
		return decimal.Zero, nil
	}
	return price, nil
}

// Sizing is the result of risk based position sizing
type Sizing struct {
	RiskAmount       decimal.Decimal
	Quantity         decimal.Decimal
	Notional         decimal.Decimal
	RequiredLeverage int
	Margin           decimal.Decimal
}

// PositionSize sizes a position so that hitting stop loses riskPct percent of balance.
func PositionSize(balance, riskPct, entry, stop decimal.Decimal, maxCap int) (*Sizing, error) {
	if !balance.IsPositive() {
		return nil, apperrors.ValidationError("balance must be positive")
	}
	if !riskPct.IsPositive() || riskPct.GreaterThan(hundred) {
		return nil, apperrors.ValidationError("risk percent must be in (0, 100]")
	}
	if !entry.IsPositive() || !stop.IsPositive() {
		return nil, apperrors.ValidationError("entry and stop must be positive")
	}
	distance := entry.Sub(stop).Abs()
	if distance.IsZero() {
		return nil, apperrors.ValidationError("stop cannot equal entry")
	}

	risk := balance.Mul(riskPct).Div(hundred)
	qty := risk.Div(distance)
	notional := qty.Mul(entry)

	required := notional.Div(balance).Ceil()
	if required.LessThan(one) {
		required = one
	}
	if maxCap >= 1 && required.GreaterThan(decimal.NewFromInt(int64(maxCap))) {
		return nil, apperrors.ValidationErrorf("position needs %s× leverage, above the %d× limit", required, maxCap).
			WithField("required_leverage", required.IntPart())
	}

	return &Sizing{
		RiskAmount:       risk,
		Quantity:         qty,
		Notional:         notional,
		RequiredLeverage: int(required.IntPart()),
		Margin:           notional.Div(required),
	}, nil
}

// RiskReward returns reward divided by risk for a planned trade
func RiskReward(side domain.Side, entry, stop, target decimal.Decimal) (decimal.Decimal, error) {
	switch side {
	case domain.SideLong:
		if !stop.LessThan(entry) || !target.GreaterThan(entry) {
			return decimal.Zero, apperrors.ValidationError("a LONG needs stop below and target above entry")
		}
	case domain.SideShort:
		if !stop.GreaterThan(entry) || !target.LessThan(entry) {
			return decimal.Zero, apperrors.ValidationError("a SHORT needs stop above and target below entry")
		}
	default:
		return decimal.Zero, apperrors.ValidationError("side must be LONG or SHORT")
	}
	risk := entry.Sub(stop).Abs()
	reward := target.Sub(entry).Abs()
	return reward.Div(risk), nil
}
