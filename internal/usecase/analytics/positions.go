package analytics

import (
	"github.com/shopspring/decimal"

	"github.com/simaogato/tradejournal-backend/internal/domain"
)

// Position is an open trade marked to market.
// Priced is false when no price was available; the mark fields are then zero.
type Position struct {
	Trade         *domain.Trade
	Priced        bool
	MarkPrice     decimal.Decimal
	UnrealizedPnL decimal.Decimal // after fees already paid
	UnrealizedROE decimal.Decimal // percent of margin
}

// UnrealizedPnL marks open trades with prices keyed by symbol
func UnrealizedPnL(trades []*domain.Trade, prices map[string]decimal.Decimal) []Position {
	out := make([]Position, 0, len(trades))
	for _, t := range trades {
		if t.IsClosed() {
			continue
		}
		p := Position{Trade: t}
		if mark, ok := prices[t.Symbol]; ok && mark.IsPositive() {
			p.Priced = true
			p.MarkPrice = mark
			p.UnrealizedPnL = t.PnLAt(mark).Sub(t.Fees).Sub(t.FundingFees)
			if margin := t.Margin(); margin.IsPositive() {
				p.UnrealizedROE = p.UnrealizedPnL.Div(margin).Mul(hundred).Round(2)
			}
		}
		out = append(out, p)
	}
	return out
}

// TotalUnrealized sums the priced positions
func TotalUnrealized(positions []Position) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		if p.Priced {
			total = total.Add(p.UnrealizedPnL)
		}
	}
	return total
}
