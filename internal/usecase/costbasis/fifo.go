// Package costbasis computes FIFO cost basis and realized P&L from a sequence
// of spot-style fills.
package costbasis

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
)

// FillSide is the direction of a fill
type FillSide string

const (
	Buy  FillSide = "BUY"
	Sell FillSide = "SELL"
)

// Fill is one execution
type Fill struct {
	Time     time.Time
	Side     FillSide
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Fee      decimal.Decimal
}

// Lot is an open acquisition; Cost includes the buy fee share still attached to it
type Lot struct {
	AcquiredAt time.Time
	Quantity   decimal.Decimal
	Cost       decimal.Decimal
}

// UnitCost is the lot's cost per unit
func (l Lot) UnitCost() decimal.Decimal {
	if l.Quantity.IsZero() {
		return decimal.Zero
	}
	return l.Cost.Div(l.Quantity)
}

// Disposal is the part of a sell matched against one lot
type Disposal struct {
	Quantity    decimal.Decimal
	CostBasis   decimal.Decimal
	Proceeds    decimal.Decimal // net of the prorated sell fee
	RealizedPnL decimal.Decimal
	AcquiredAt  time.Time
	DisposedAt  time.Time
}

// Result is the outcome of replaying fills
type Result struct {
	OpenLots     []Lot
	Disposals    []Disposal
	RealizedPnL  decimal.Decimal
	OpenQuantity decimal.Decimal
	OpenCost     decimal.Decimal
	// AverageCost is the cost per unit of the open lots, zero when flat
	AverageCost decimal.Decimal
	BoughtQty   decimal.Decimal
	SoldQty     decimal.Decimal
}

// CalculateFIFO replays fills in time order (stable for equal times).
// Logic:
//  1. A BUY opens a lot whose cost is price × qty + fee
//  2. A SELL consumes the oldest lots first, splitting a lot when partially consumed
//  3. The sell fee is spread across that sell's disposals by quantity
//
// Safety: cost is split so that consumed + remaining equals the original lot
// cost exactly, and Σbought = Σsold + Σopen holds for every result.
func CalculateFIFO(fills []Fill) (*Result, error) {
	for i, f := range fills {
		if f.Side != Buy && f.Side != Sell {
			return nil, apperrors.ValidationErrorf("fill %d: side must be BUY or SELL", i)
		}
		if !f.Quantity.IsPositive() {
			return nil, apperrors.ValidationErrorf("fill %d: quantity must be positive", i)
		}
		if !f.Price.IsPositive() {
			return nil, apperrors.ValidationErrorf("fill %d: price must be positive", i)
		}
		if f.Fee.IsNegative() {
			return nil, apperrors.ValidationErrorf("fill %d: fee cannot be negative", i)
		}
	}

	// Sort a copy by time, remembering the caller's index for error messages
	order := make([]int, len(fills))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return fills[order[a]].Time.Before(fills[order[b]].Time)
	})

	res := &Result{}
	var lots []Lot

	for _, idx := range order {
		f := fills[idx]

		if f.Side == Buy {
			lots = append(lots, Lot{
				AcquiredAt: f.Time,
				Quantity:   f.Quantity,
				Cost:       f.Price.Mul(f.Quantity).Add(f.Fee),
			})
			res.BoughtQty = res.BoughtQty.Add(f.Quantity)
			continue
		}

		held := decimal.Zero
		for _, l := range lots {
			held = held.Add(l.Quantity)
		}
		if f.Quantity.GreaterThan(held) {
			return nil, apperrors.ValidationErrorf("fill %d sells %s but only %s is held", idx, f.Quantity, held).
				WithField("fill_index", idx)
		}

		remaining := f.Quantity
		feeLeft := f.Fee
		start := len(res.Disposals)

		for remaining.IsPositive() {
			lot := &lots[0]
			take := decimal.Min(remaining, lot.Quantity)

			var cost decimal.Decimal
			if take.Equal(lot.Quantity) {
				cost = lot.Cost
			} else {
				cost = lot.Cost.Mul(take).Div(lot.Quantity)
			}

			fee := f.Fee.Mul(take).Div(f.Quantity)
			remaining = remaining.Sub(take)
			if remaining.IsZero() {
				// last slice of this sell absorbs rounding
				fee = feeLeft
			}
			feeLeft = feeLeft.Sub(fee)

			proceeds := f.Price.Mul(take).Sub(fee)
			res.Disposals = append(res.Disposals, Disposal{
				Quantity:    take,
				CostBasis:   cost,
				Proceeds:    proceeds,
				RealizedPnL: proceeds.Sub(cost),
				AcquiredAt:  lot.AcquiredAt,
				DisposedAt:  f.Time,
			})

			lot.Quantity = lot.Quantity.Sub(take)
			lot.Cost = lot.Cost.Sub(cost)
			if lot.Quantity.IsZero() {
				lots = lots[1:]
			}
		}

		for _, disp := range res.Disposals[start:] {
			res.RealizedPnL = res.RealizedPnL.Add(disp.RealizedPnL)
		}
		res.SoldQty = res.SoldQty.Add(f.Quantity)
	}

	res.OpenLots = lots
	for _, l := range lots {
		res.OpenQuantity = res.OpenQuantity.Add(l.Quantity)
		res.OpenCost = res.OpenCost.Add(l.Cost)
	}
	if res.OpenQuantity.IsPositive() {
		res.AverageCost = res.OpenCost.Div(res.OpenQuantity)
	}

	return res, nil
}
