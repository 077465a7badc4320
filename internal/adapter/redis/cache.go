package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/simaogato/tradejournal-backend/internal/domain"
)

const keyPrefix = "tradejournal:"

func priceKey(symbol string) string {
	return keyPrefix + "price:" + symbol
}

func klineKey(symbol string, interval domain.KlineInterval, limit int) string {
	return fmt.Sprintf("%sklines:%s:%s:%d", keyPrefix, symbol, interval, limit)
}

// MarketCache is a read-through cache in front of a market data source.
// Redis failures are logged and the request falls through to the source.
type MarketCache struct {
	next     domain.MarketData
	rdb      *goredis.Client
	sf       singleflight.Group
	priceTTL time.Duration
	klineTTL time.Duration
	log      *logrus.Logger
}

var _ domain.MarketData = (*MarketCache)(nil)

// NewMarketCache wraps next with a cache that keeps prices for priceTTL and
// candles for klineTTL.
func NewMarketCache(client *Client, next domain.MarketData, priceTTL, klineTTL time.Duration, log *logrus.Logger) *MarketCache {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &MarketCache{
		next:     next,
		rdb:      client.rdb,
		priceTTL: priceTTL,
		klineTTL: klineTTL,
		log:      log,
	}
}

// load runs fn once per key across concurrent callers. The shared call keeps
// the first caller's values but not its cancellation; each caller still stops
// waiting when its own ctx is done.
func (c *MarketCache) load(ctx context.Context, key string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.sf.DoChan(key, func() (interface{}, error) {
		return fn(detached)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// Price returns the cached price of symbol, loading it on a miss.
func (c *MarketCache) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	key := priceKey(symbol)

	if cached, err := c.rdb.Get(ctx, key).Result(); err == nil {
		if price, err := decimal.NewFromString(cached); err == nil {
			return price, nil
		}
	} else if !errors.Is(err, goredis.Nil) {
		c.log.WithError(err).WithField("key", key).Warn("Price cache read failed")
	}

	v, err := c.load(ctx, key, func(ctx context.Context) (interface{}, error) {
		price, err := c.next.Price(ctx, symbol)
		if err != nil {
			return nil, err
		}
		if err := c.rdb.Set(ctx, key, price.String(), c.priceTTL).Err(); err != nil {
			c.log.WithError(err).WithField("key", key).Warn("Price cache write failed")
		}
		return price, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

// Prices serves cached symbols from Redis and loads the rest in one call.
func (c *MarketCache) Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	wanted := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if !seen[s] {
			seen[s] = true
			wanted = append(wanted, s)
		}
	}

	keys := make([]string, len(wanted))
	for i, s := range wanted {
		keys[i] = priceKey(s)
	}

	missing := wanted
	if vals, err := c.rdb.MGet(ctx, keys...).Result(); err == nil {
		missing = missing[:0:0]
		for i, v := range vals {
			str, ok := v.(string)
			if !ok {
				missing = append(missing, wanted[i])
				continue
			}
			price, err := decimal.NewFromString(str)
			if err != nil {
				missing = append(missing, wanted[i])
				continue
			}
			out[wanted[i]] = price
		}
	} else {
		c.log.WithError(err).Warn("Price cache read failed")
	}

	if len(missing) == 0 {
		return out, nil
	}

	fresh, err := c.next.Prices(ctx, missing)
	if err != nil {
		return nil, err
	}

	pipe := c.rdb.Pipeline()
	for sym, price := range fresh {
		out[sym] = price
		pipe.Set(ctx, priceKey(sym), price.String(), c.priceTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.WithError(err).Warn("Price cache write failed")
	}
	return out, nil
}

// Klines returns cached candles, loading them on a miss.
func (c *MarketCache) Klines(ctx context.Context, symbol string, interval domain.KlineInterval, limit int) ([]domain.Candle, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	key := klineKey(symbol, interval, limit)

	if cached, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var candles []domain.Candle
		if err := json.Unmarshal(cached, &candles); err == nil {
			return candles, nil
		}
	} else if !errors.Is(err, goredis.Nil) {
		c.log.WithError(err).WithField("key", key).Warn("Kline cache read failed")
	}

	v, err := c.load(ctx, key, func(ctx context.Context) (interface{}, error) {
		candles, err := c.next.Klines(ctx, symbol, interval, limit)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(candles); err == nil {
			if err := c.rdb.Set(ctx, key, data, c.klineTTL).Err(); err != nil {
				c.log.WithError(err).WithField("key", key).Warn("Kline cache write failed")
			}
		}
		return candles, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Candle), nil
}
