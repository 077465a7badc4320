package leverage

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/tradejournal-backend/internal/domain"
	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
	"github.com/simaogato/tradejournal-backend/internal/usecase/fees"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestMaxLeverageFromStopPercent(t *testing.T) {
	tests := []struct {
		name    string
		stopPct string
		mmr     string
		cap     int
		want    int
		wantErr bool
	}{
		{"1% stop, no mmr", "1", "0", 200, 100, false},
		{"1% stop with 0.5% mmr", "1", "0.005", 200, 66, false},
		{"2% stop on binance mmr", "2", "0.004", 125, 41, false},
		{"Tiny stop is clamped to cap", "0.1", "0", 125, 125, false},
		{"Wide stop still allows 1x", "60", "0.005", 125, 1, false},
		{"Stop at 100% returns 1", "100", "0.004", 125, 1, false},
		{"Stop beyond 100% returns 1", "250", "0", 125, 1, false},
		{"Cap below 1 is treated as 1", "1", "0", 0, 1, false},
		{"Zero stop is rejected", "0", "0.004", 125, 0, true},
		{"Negative stop is rejected", "-1", "0.004", 125, 0, true},
		{"Negative mmr is rejected", "1", "-0.01", 125, 0, true},
		{"mmr of 1 is rejected", "1", "1", 125, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MaxLeverageFromStopPercent(d(tt.stopPct), d(tt.mmr), tt.cap)
			if tt.wantErr {
				assert.True(t, apperrors.IsType(err, apperrors.TypeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMaxLeverage_LiquidationNotInsideStop(t *testing.T) {
	mmr := d("0.004")
	entry := d("50000")
	for _, pct := range []string{"0.3", "0.75", "1", "1.7", "2.5", "5", "12"} {
		stopPct := d(pct)
		lev, err := MaxLeverageFromStopPercent(stopPct, mmr, domain.MaxLeverage)
		require.NoError(t, err)

		liq, err := LiquidationPrice(domain.SideLong, entry, decimal.NewFromInt(int64(lev)), mmr)
		require.NoError(t, err)

		stop := entry.Mul(one.Sub(stopPct.Div(hundred)))
		assert.True(t, liq.LessThanOrEqual(stop), "stop %s%%: liq %s above stop %s at %dx", pct, liq, stop, lev)
	}
}

func TestLiquidationPrice(t *testing.T) {
	tests := []struct {
		name  string
		side  domain.Side
		entry string
		lev   string
		mmr   string
		want  string
	}{
		{"LONG 10x", domain.SideLong, "100", "10", "0.005", "90.5"},
		{"SHORT 10x", domain.SideShort, "100", "10", "0.005", "109.5"},
		{"LONG 1x no mmr", domain.SideLong, "100", "1", "0", "0"},
		{"SHORT 1x", domain.SideShort, "100", "1", "0", "200"},
		{"LONG 1x with mmr floors above zero", domain.SideLong, "100", "1", "0.01", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LiquidationPrice(tt.side, d(tt.entry), d(tt.lev), d(tt.mmr))
			require.NoError(t, err)
			assert.True(t, d(tt.want).Equal(got), "got %s", got)
		})
	}

	_, err := LiquidationPrice(domain.SideLong, d("100"), d("0.5"), d("0"))
	assert.Error(t, err)
	_, err = LiquidationPrice("FLAT", d("100"), d("2"), d("0"))
	assert.Error(t, err)
}

func TestPositionSize(t *testing.T) {
	s, err := PositionSize(d("10000"), d("1"), d("100"), d("98"), 125)
	require.NoError(t, err)

	assert.True(t, d("100").Equal(s.RiskAmount))
	assert.True(t, d("50").Equal(s.Quantity))
	assert.True(t, d("5000").Equal(s.Notional))
	assert.Equal(t, 1, s.RequiredLeverage)
	assert.True(t, d("5000").Equal(s.Margin))

	s, err = PositionSize(d("1000"), d("2"), d("100"), d("99.5"), 125)
	require.NoError(t, err)
	// risk 20 / 0.5 = 40 units, notional 4000 -> 4x
	assert.Equal(t, 4, s.RequiredLeverage)
	assert.True(t, d("1000").Equal(s.Margin))

	_, err = PositionSize(d("1000"), d("2"), d("100"), d("100"), 125)
	assert.ErrorContains(t, err, "stop cannot equal entry")

	_, err = PositionSize(d("1000"), d("5"), d("100"), d("99.9"), 20)
	assert.ErrorContains(t, err, "above the 20× limit")
}

func TestRiskReward(t *testing.T) {
	rr, err := RiskReward(domain.SideLong, d("100"), d("95"), d("115"))
	require.NoError(t, err)
	assert.True(t, d("3").Equal(rr))

	rr, err = RiskReward(domain.SideShort, d("100"), d("104"), d("90"))
	require.NoError(t, err)
	assert.True(t, d("2.5").Equal(rr))

	_, err = RiskReward(domain.SideLong, d("100"), d("105"), d("115"))
	assert.Error(t, err)
	_, err = RiskReward(domain.SideShort, d("100"), d("104"), d("101"))
	assert.Error(t, err)
}

func TestCalculator_Quote(t *testing.T) {
	c := NewCalculator(fees.DefaultSchedule())
	target := d("52000")

	q, err := c.Quote(QuoteRequest{
		Exchange: "binance",
		Side:     domain.SideLong,
		Entry:    d("50000"),
		Stop:     d("49000"),
		Target:   &target,
		Balance:  d("2000"),
		RiskPct:  d("1"),
	})
	require.NoError(t, err)

	assert.Equal(t, "binance", q.Exchange)
	assert.True(t, d("2").Equal(q.StopPct))
	assert.Equal(t, 41, q.MaxSafeLeverage)
	assert.True(t, d("41").Equal(q.Leverage))
	assert.False(t, q.LiquidatedBeforeStop)
	require.NotNil(t, q.RiskReward)
	assert.True(t, d("2").Equal(*q.RiskReward))
	require.NotNil(t, q.Sizing)
	assert.True(t, d("0.02").Equal(q.Sizing.Quantity))
	require.NotNil(t, q.EstimatedFees)
	assert.True(t, d("1").Equal(*q.EstimatedFees))

	// Explicit leverage above the safe value liquidates before the stop
	q, err = c.Quote(QuoteRequest{Exchange: "binance", Side: domain.SideShort, Entry: d("100"), Stop: d("105"), Leverage: d("50")})
	require.NoError(t, err)
	assert.True(t, q.LiquidatedBeforeStop)
	assert.Nil(t, q.Sizing)

	_, err = c.Quote(QuoteRequest{Exchange: "binance", Side: domain.SideLong, Entry: d("100"), Stop: d("101")})
	assert.Error(t, err)

	_, err = c.Quote(QuoteRequest{Exchange: "binance", Side: domain.SideLong, Entry: d("100"), Stop: d("99"), Leverage: d("126")})
	assert.Error(t, err)
}
