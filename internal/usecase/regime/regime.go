// Package regime labels market conditions from recent candles using the
// efficiency ratio and average true range.
package regime

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/tradejournal-backend/internal/domain"
	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
)

// Label is a detected market regime
type Label string

const (
	TrendingUp   Label = "TRENDING_UP"
	TrendingDown Label = "TRENDING_DOWN"
	Ranging      Label = "RANGING"
	Volatile     Label = "VOLATILE"
	Unknown      Label = "UNKNOWN"
)

var hundred = decimal.NewFromInt(100)

// Config tunes detection thresholds
type Config struct {
	Window         int
	TrendER        decimal.Decimal
	VolatileATRPct decimal.Decimal
}

// DefaultConfig returns the standard thresholds
func DefaultConfig() Config {
	return Config{
		Window:         20,
		TrendER:        decimal.RequireFromString("0.3"),
		VolatileATRPct: decimal.NewFromInt(4),
	}
}

// Result is a label with the metrics that produced it
type Result struct {
	Label           Label
	Reason          string
	EfficiencyRatio decimal.Decimal
	ATRPct          decimal.Decimal
	SlopePct        decimal.Decimal
	Candles         int
}

// Detect classifies the last cfg.Window candles. Candles must be in time order.
func Detect(candles []domain.Candle, cfg Config) Result {
	if cfg.Window < 2 {
		cfg.Window = DefaultConfig().Window
	}
	if len(candles) < cfg.Window+1 {
		return Result{
			Label:   Unknown,
			Reason:  fmt.Sprintf("need %d candles, got %d", cfg.Window+1, len(candles)),
			Candles: len(candles),
		}
	}

	// window+1 closes give window changes; the first candle only supplies a previous close
	recent := candles[len(candles)-cfg.Window-1:]
	first := recent[0].Close
	last := recent[len(recent)-1].Close

	path := decimal.Zero
	trSum := decimal.Zero
	for i := 1; i < len(recent); i++ {
		prev := recent[i-1].Close
		c := recent[i]
		path = path.Add(c.Close.Sub(prev).Abs())

		tr := c.High.Sub(c.Low)
		tr = decimal.Max(tr, c.High.Sub(prev).Abs(), c.Low.Sub(prev).Abs())
		trSum = trSum.Add(tr)
	}

	res := Result{Candles: len(candles)}
	if !last.IsPositive() || !first.IsPositive() {
		res.Label = Unknown
		res.Reason = "non-positive close price"
		return res
	}

	if path.IsPositive() {
		res.EfficiencyRatio = last.Sub(first).Abs().Div(path).Round(4)
	}
	atr := trSum.Div(decimal.NewFromInt(int64(cfg.Window)))
	res.ATRPct = atr.Div(last).Mul(hundred).Round(4)
	res.SlopePct = last.Sub(first).Div(first).Mul(hundred).Round(4)

	switch {
	case res.ATRPct.GreaterThanOrEqual(cfg.VolatileATRPct):
		res.Label = Volatile
		res.Reason = fmt.Sprintf("ATR %s%% >= %s%%", res.ATRPct, cfg.VolatileATRPct)
	case res.EfficiencyRatio.GreaterThanOrEqual(cfg.TrendER) && res.SlopePct.IsPositive():
		res.Label = TrendingUp
		res.Reason = fmt.Sprintf("efficiency %s >= %s, rising", res.EfficiencyRatio, cfg.TrendER)
	case res.EfficiencyRatio.GreaterThanOrEqual(cfg.TrendER) && res.SlopePct.IsNegative():
		res.Label = TrendingDown
		res.Reason = fmt.Sprintf("efficiency %s >= %s, falling", res.EfficiencyRatio, cfg.TrendER)
	default:
		res.Label = Ranging
		res.Reason = fmt.Sprintf("efficiency %s below %s", res.EfficiencyRatio, cfg.TrendER)
	}
	return res
}

// PlanGate rejects users whose plan lacks advanced analytics
type PlanGate interface {
	RequireAdvancedAnalytics(ctx context.Context, userID uuid.UUID) error
}

// RegimeService detects regimes from live market data
type RegimeService struct {
	MarketData domain.MarketData
	Plans      PlanGate
	Config     Config
}

// NewRegimeService creates a new RegimeService instance
func NewRegimeService(marketData domain.MarketData) *RegimeService {
	return &RegimeService{
		MarketData: marketData,
		Config:     DefaultConfig(),
	}
}

// ForUser is ForSymbol for a user; regime lookup is an advanced analytics feature.
func (s *RegimeService) ForUser(ctx context.Context, userID uuid.UUID, symbol string, interval domain.KlineInterval) (*Result, error) {
	if s.Plans != nil {
		if err := s.Plans.RequireAdvancedAnalytics(ctx, userID); err != nil {
			return nil, err
		}
	}
	return s.ForSymbol(ctx, symbol, interval)
}

// ForSymbol fetches recent candles for symbol and classifies them
func (s *RegimeService) ForSymbol(ctx context.Context, symbol string, interval domain.KlineInterval) (*Result, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, apperrors.ValidationError("symbol is required")
	}
	if interval == "" {
		interval = "4h"
	}
	if !interval.Valid() {
		return nil, apperrors.ValidationErrorf("unsupported interval %q", interval)
	}

	candles, err := s.MarketData.Klines(ctx, symbol, interval, s.Config.Window+1)
	if err != nil {
		return nil, err
	}
	res := Detect(candles, s.Config)
	return &res, nil
}
