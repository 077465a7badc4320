package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/simaogato/tradejournal-backend/internal/domain"
	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
)

const (
	tickerPricePath = "/api/v3/ticker/price"
	klinesPath      = "/api/v3/klines"

	maxKlines = 1000
)

type tickerPrice struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

func normalizeSymbol(symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", apperrors.ValidationError("symbol is required")
	}
	return symbol, nil
}

// Price returns the latest price of symbol.
func (c *Client) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return decimal.Zero, err
	}

	var tp tickerPrice
	if err := c.get(ctx, tickerPricePath, url.Values{"symbol": {symbol}}, &tp); err != nil {
		return decimal.Zero, err
	}
	return tp.Price, nil
}

// Prices returns the latest prices of symbols in one request.
// Duplicates are collapsed; an empty input returns an empty map.
func (c *Client) Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	seen := make(map[string]bool, len(symbols))
	wanted := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s, err := normalizeSymbol(s)
		if err != nil {
			return nil, err
		}
		if !seen[s] {
			seen[s] = true
			wanted = append(wanted, s)
		}
	}
	if len(wanted) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	raw, err := json.Marshal(wanted)
	if err != nil {
		return nil, err
	}
	var tps []tickerPrice
	if err := c.get(ctx, tickerPricePath, url.Values{"symbols": {string(raw)}}, &tps); err != nil {
		return nil, err
	}

	out := make(map[string]decimal.Decimal, len(tps))
	for _, tp := range tps {
		out[tp.Symbol] = tp.Price
	}
	return out, nil
}

// Klines returns the most recent candles in time order.
func (c *Client) Klines(ctx context.Context, symbol string, interval domain.KlineInterval, limit int) ([]domain.Candle, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if !interval.Valid() {
		return nil, apperrors.ValidationErrorf("unsupported interval %q", interval)
	}
	if limit < 1 || limit > maxKlines {
		return nil, apperrors.ValidationErrorf("limit must be between 1 and %d", maxKlines)
	}

	query := url.Values{
		"symbol":   {symbol},
		"interval": {string(interval)},
		"limit":    {strconv.Itoa(limit)},
	}
	var rows [][]json.RawMessage
	if err := c.get(ctx, klinesPath, query, &rows); err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(rows))
	for i, row := range rows {
		candle, err := parseKline(row)
		if err != nil {
			return nil, apperrors.ExternalError("unexpected market data response", fmt.Errorf("kline %d: %w", i, err))
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// parseKline decodes [openTime, open, high, low, close, volume, ...]
func parseKline(row []json.RawMessage) (domain.Candle, error) {
	if len(row) < 6 {
		return domain.Candle{}, fmt.Errorf("expected at least 6 fields, got %d", len(row))
	}

	var openMs int64
	if err := json.Unmarshal(row[0], &openMs); err != nil {
		return domain.Candle{}, fmt.Errorf("open time: %w", err)
	}

	var vals [5]decimal.Decimal
	for i := range vals {
		if err := json.Unmarshal(row[i+1], &vals[i]); err != nil {
			return domain.Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
	}

	return domain.Candle{
		OpenTime: time.UnixMilli(openMs).UTC(),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}
