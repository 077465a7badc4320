package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV bar
type Candle struct {
	OpenTime time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
}

// KlineInterval is a candle resolution
type KlineInterval string

var klineIntervals = map[KlineInterval]bool{
	"1m": true, "5m": true, "15m": true, "1h": true, "4h": true, "1d": true, "1w": true,
}

// Valid reports whether the interval is supported
func (i KlineInterval) Valid() bool {
	return klineIntervals[i]
}
