package costbasis

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/tradejournal-backend/internal/domain"
	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
)

// SymbolReport is the FIFO view of one symbol's journaled LONG trades
type SymbolReport struct {
	Symbol string
	*Result
	// ExcludedShorts counts SHORT trades, which spot cost basis does not model
	ExcludedShorts int
	MarkPrice      *decimal.Decimal
	UnrealizedPnL  *decimal.Decimal
}

// CostBasisService derives cost basis from the trade journal
type CostBasisService struct {
	TradeRepo  domain.TradeRepository
	MarketData domain.MarketData
}

// NewCostBasisService creates a new CostBasisService instance
func NewCostBasisService(tradeRepo domain.TradeRepository, marketData domain.MarketData) *CostBasisService {
	return &CostBasisService{
		TradeRepo:  tradeRepo,
		MarketData: marketData,
	}
}

// TradeFills turns LONG trades into fills: a BUY at entry and, once closed, a
// SELL at exit. Trading fees are split between the two by notional.
func TradeFills(trades []*domain.Trade) ([]Fill, int) {
	fills := make([]Fill, 0, len(trades)*2)
	shorts := 0
	for _, t := range trades {
		if t.Side != domain.SideLong {
			shorts++
			continue
		}

		buyFee := t.Fees
		if t.IsClosed() {
			entryNotional := t.Notional()
			exitNotional := t.ExitPrice.Mul(t.Quantity)
			total := entryNotional.Add(exitNotional)
			if total.IsPositive() {
				buyFee = t.Fees.Mul(entryNotional).Div(total).Round(8)
			}
		}

		fills = append(fills, Fill{
			Time:     t.OpenedAt,
			Side:     Buy,
			Quantity: t.Quantity,
			Price:    t.EntryPrice,
			Fee:      buyFee,
		})
		if t.IsClosed() {
			fills = append(fills, Fill{
				Time:     *t.ClosedAt,
				Side:     Sell,
				Quantity: t.Quantity,
				Price:    *t.ExitPrice,
				Fee:      t.Fees.Sub(buyFee),
			})
		}
	}
	return fills, shorts
}

// ForSymbol runs FIFO over the user's trades in symbol and marks any open
// quantity at the current price. A price lookup failure leaves the mark empty.
func (s *CostBasisService) ForSymbol(ctx context.Context, userID uuid.UUID, symbol string) (*SymbolReport, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, apperrors.ValidationError("symbol is required")
	}

	all, err := s.TradeRepo.ListRange(ctx, userID, nil, nil)
	if err != nil {
		return nil, err
	}
	trades := make([]*domain.Trade, 0, len(all))
	for _, t := range all {
		if t.Symbol == symbol {
			trades = append(trades, t)
		}
	}

	fills, shorts := TradeFills(trades)
	result, err := CalculateFIFO(fills)
	if err != nil {
		return nil, err
	}

	report := &SymbolReport{Symbol: symbol, Result: result, ExcludedShorts: shorts}

	if result.OpenQuantity.IsPositive() && s.MarketData != nil {
		if mark, err := s.MarketData.Price(ctx, symbol); err == nil {
			unrealized := mark.Mul(result.OpenQuantity).Sub(result.OpenCost)
			report.MarkPrice = &mark
			report.UnrealizedPnL = &unrealized
		}
	}

	return report, nil
}
