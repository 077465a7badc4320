//go:build integration

package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/simaogato/tradejournal-backend/internal/domain"
)

var testRedisURL string

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis container: %v\n", err)
		os.Exit(1)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get redis endpoint: %v\n", err)
		os.Exit(1)
	}
	testRedisURL = "redis://" + endpoint

	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func setupTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(testRedisURL)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, client.rdb.FlushAll(ctx).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestMarketCache_ServesFromRedis(t *testing.T) {
	client := setupTestClient(t)
	src := newCountingSource()
	cache := NewMarketCache(client, src, time.Minute, time.Minute, quietLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		price, err := cache.Price(ctx, "BTCUSDT")
		require.NoError(t, err)
		assert.True(t, price.Equal(decimal.NewFromInt(64000)))
	}
	assert.Equal(t, 1, src.count("price"))

	// BTCUSDT is already cached, only ETHUSDT goes upstream.
	prices, err := cache.Prices(ctx, []string{"BTCUSDT", "ETHUSDT"})
	require.NoError(t, err)
	assert.Len(t, prices, 2)
	assert.Equal(t, 1, src.count("prices"))

	_, err = cache.Prices(ctx, []string{"ETHUSDT", "BTCUSDT"})
	require.NoError(t, err)
	assert.Equal(t, 1, src.count("prices"))

	first, err := cache.Klines(ctx, "BTCUSDT", "4h", 5)
	require.NoError(t, err)
	second, err := cache.Klines(ctx, "BTCUSDT", "4h", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, src.count("klines"))
	require.Len(t, second, 5)
	assert.True(t, first[4].Close.Equal(second[4].Close))
	assert.True(t, first[4].OpenTime.Equal(second[4].OpenTime))
}

func TestMarketCache_ExpiresEntries(t *testing.T) {
	client := setupTestClient(t)
	src := newCountingSource()
	cache := NewMarketCache(client, src, 100*time.Millisecond, time.Minute, quietLogger())
	ctx := context.Background()

	_, err := cache.Price(ctx, "ETHUSDT")
	require.NoError(t, err)
	time.Sleep(250 * time.Millisecond)
	_, err = cache.Price(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 2, src.count("price"))
}

func TestEventBus_PublishAndRun(t *testing.T) {
	client := setupTestClient(t)
	bus := NewEventBus(client, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan domain.Event, 16)
	done := make(chan error, 1)
	go func() {
		done <- bus.Run(ctx, func(ev domain.Event) {
			select {
			case received <- ev:
			default:
			}
		})
	}()

	userID := uuid.New()
	ev, err := domain.NewEvent(domain.EventXPAwarded, userID, map[string]int{"amount": 10}, time.Now())
	require.NoError(t, err)

	// The subscriber may not be attached yet; publish until it is.
	require.Eventually(t, func() bool {
		require.NoError(t, bus.Publish(context.Background(), ev))
		select {
		case got := <-received:
			assert.Equal(t, domain.EventXPAwarded, got.Type)
			assert.Equal(t, userID, got.UserID)
			assert.JSONEq(t, `{"amount":10}`, string(got.Payload))
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
