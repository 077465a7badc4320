package fees

import (
	"github.com/shopspring/decimal"

	"github.com/simaogato/tradejournal-backend/internal/domain"
)

// FeeBreakdown totals what a set of trades paid to exchanges
type FeeBreakdown struct {
	ByType          map[domain.FeeType]decimal.Decimal
	TradingFees     decimal.Decimal
	FundingPaid     decimal.Decimal // >= 0
	FundingReceived decimal.Decimal // >= 0
	NetFunding      decimal.Decimal // paid minus received
	TotalCost       decimal.Decimal // trading fees plus net funding
	GrossProfit     decimal.Decimal // sum of positive gross P&L
	// PctOfGrossProfit is nil when there was no gross profit
	PctOfGrossProfit *decimal.Decimal
}

// Breakdown aggregates fees and funding over trades, open ones included
func Breakdown(trades []*domain.Trade) FeeBreakdown {
	b := FeeBreakdown{ByType: make(map[domain.FeeType]decimal.Decimal)}

	for _, t := range trades {
		ft := t.FeeType
		if ft == "" {
			ft = domain.FeeTypeUnknown
		}
		b.ByType[ft] = b.ByType[ft].Add(t.Fees)
		b.TradingFees = b.TradingFees.Add(t.Fees)

		if t.FundingFees.IsPositive() {
			b.FundingPaid = b.FundingPaid.Add(t.FundingFees)
		} else {
			b.FundingReceived = b.FundingReceived.Add(t.FundingFees.Neg())
		}

		if gross := t.GrossPnL(); gross.IsPositive() {
			b.GrossProfit = b.GrossProfit.Add(gross)
		}
	}

	b.NetFunding = b.FundingPaid.Sub(b.FundingReceived)
	b.TotalCost = b.TradingFees.Add(b.NetFunding)
	if b.GrossProfit.IsPositive() {
		pct := b.TotalCost.Div(b.GrossProfit).Mul(decimal.NewFromInt(100)).Round(2)
		b.PctOfGrossProfit = &pct
	}
	return b
}
