package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/tradejournal-backend/internal/domain"
	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
)

type recorderSpy struct {
	mu      sync.Mutex
	results []string
}

func (r *recorderSpy) ExternalRequest(service, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, service+":"+result)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...ClientOption) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	base := []ClientOption{
		WithBaseURL(srv.URL),
		WithRetries(2, time.Millisecond),
		WithRateLimit(1000),
	}
	return NewClient(append(base, opts...)...)
}

func TestNewClient_Options(t *testing.T) {
	hc := &http.Client{}
	c := NewClient(WithHTTPClient(hc), WithTimeout(3*time.Second), WithRetries(5, time.Second), WithBaseURL("http://x"))

	assert.Same(t, hc, c.httpClient)
	assert.Equal(t, 3*time.Second, c.httpClient.Timeout)
	assert.Equal(t, 5, c.maxRetries)
	assert.Equal(t, time.Second, c.retryBackoff)
	assert.Equal(t, "http://x", c.baseURL)
	assert.NotNil(t, c.breaker)
}

func TestClient_Price(t *testing.T) {
	spy := &recorderSpy{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"64250.12000000"}`))
	}, WithRecorder(spy))

	price, err := c.Price(context.Background(), " btcusdt ")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("64250.12")))
	assert.Equal(t, []string{"binance:ok"}, spy.results)
}

func TestClient_Prices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `["BTCUSDT","ETHUSDT"]`, r.URL.Query().Get("symbols"))
		w.Write([]byte(`[{"symbol":"BTCUSDT","price":"64000"},{"symbol":"ETHUSDT","price":"3100.5"}]`))
	})

	prices, err := c.Prices(context.Background(), []string{"BTCUSDT", "ethusdt", "BTCUSDT"})
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.True(t, prices["ETHUSDT"].Equal(decimal.RequireFromString("3100.5")))

	empty, err := c.Prices(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestClient_Klines(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "4h", q.Get("interval"))
		assert.Equal(t, "2", q.Get("limit"))
		w.Write([]byte(`[
			[1700000000000,"100.0","110.0","95.0","105.0","12.5",1700014399999,"0",10,"0","0","0"],
			[1700014400000,"105.0","108.0","101.0","102.0","8",1700028799999,"0",7,"0","0","0"]
		]`))
	})

	candles, err := c.Klines(context.Background(), "BTCUSDT", "4h", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), candles[0].OpenTime)
	assert.True(t, candles[0].High.Equal(decimal.NewFromInt(110)))
	assert.True(t, candles[1].Close.Equal(decimal.NewFromInt(102)))
	assert.True(t, candles[1].Volume.Equal(decimal.NewFromInt(8)))
}

func TestClient_Klines_Validation(t *testing.T) {
	c := NewClient(WithBaseURL("http://127.0.0.1:1"))

	tests := []struct {
		name     string
		symbol   string
		interval domain.KlineInterval
		limit    int
	}{
		{"empty symbol", "", "1h", 10},
		{"bad interval", "BTCUSDT", "2h", 10},
		{"zero limit", "BTCUSDT", "1h", 0},
		{"limit too large", "BTCUSDT", "1h", 1001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Klines(context.Background(), tt.symbol, tt.interval, tt.limit)
			assert.True(t, apperrors.IsType(err, apperrors.TypeValidation))
		})
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"1"}`))
	})

	_, err := c.Price(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_InvalidSymbolIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	})

	_, err := c.Price(context.Background(), "NOPEUSDT")
	assert.True(t, apperrors.IsType(err, apperrors.TypeValidation))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_RateLimited(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Price(context.Background(), "BTCUSDT")
	assert.True(t, apperrors.IsType(err, apperrors.TypeRateLimited))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	spy := &recorderSpy{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, WithRetries(0, time.Millisecond), WithRecorder(spy))

	for i := 0; i < 5; i++ {
		_, err := c.Price(context.Background(), "BTCUSDT")
		assert.True(t, apperrors.IsType(err, apperrors.TypeExternal))
	}
	require.Equal(t, int32(5), calls.Load())

	_, err := c.Price(context.Background(), "BTCUSDT")
	assert.True(t, apperrors.IsType(err, apperrors.TypeExternal))
	assert.Equal(t, int32(5), calls.Load(), "open breaker short-circuits the request")
	assert.Equal(t, "binance:rejected", spy.results[len(spy.results)-1])
}
