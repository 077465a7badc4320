package analytics

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/tradejournal-backend/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var t0 = time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC) // Monday

// closed builds a LONG with qty 1 whose net P&L is pnl, closed hours after t0
func closed(symbol string, pnl string, hours int) *domain.Trade {
	entry := d("100")
	exit := entry.Add(d(pnl))
	opened := t0.Add(time.Duration(hours) * time.Hour)
	closedAt := opened.Add(30 * time.Minute)
	return &domain.Trade{
		ID:         uuid.New(),
		Symbol:     symbol,
		Side:       domain.SideLong,
		Status:     domain.TradeStatusClosed,
		EntryPrice: entry,
		ExitPrice:  &exit,
		Quantity:   d("1"),
		Leverage:   d("1"),
		OpenedAt:   opened,
		ClosedAt:   &closedAt,
	}
}

func open(symbol string) *domain.Trade {
	return &domain.Trade{
		ID:         uuid.New(),
		Symbol:     symbol,
		Side:       domain.SideLong,
		Status:     domain.TradeStatusOpen,
		EntryPrice: d("100"),
		Quantity:   d("2"),
		Leverage:   d("5"),
		Fees:       d("1"),
		OpenedAt:   t0,
	}
}

func sample() []*domain.Trade {
	return []*domain.Trade{
		closed("BTCUSDT", "10", 0),
		closed("BTCUSDT", "20", 1),
		closed("ETHUSDT", "-15", 2),
		closed("ETHUSDT", "-5", 3),
		closed("SOLUSDT", "0", 4),
		closed("BTCUSDT", "30", 5),
		open("BTCUSDT"),
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sample(), d("1000"))

	assert.Equal(t, 7, s.TotalTrades)
	assert.Equal(t, 1, s.OpenTrades)
	assert.Equal(t, 6, s.ClosedTrades)
	assert.Equal(t, 3, s.Wins)
	assert.Equal(t, 2, s.Losses)
	assert.Equal(t, 1, s.Breakeven)
	assert.True(t, d("50").Equal(s.WinRate), "win rate %s", s.WinRate)
	assert.True(t, d("60").Equal(s.GrossProfit))
	assert.True(t, d("-20").Equal(s.GrossLoss))
	assert.True(t, d("40").Equal(s.NetPnL))
	assert.True(t, d("1").Equal(s.TotalFees))
	require.NotNil(t, s.ProfitFactor)
	assert.True(t, d("3").Equal(*s.ProfitFactor))
	assert.True(t, d("20").Equal(s.AverageWin))
	assert.True(t, d("-10").Equal(s.AverageLoss))
	assert.True(t, d("30").Equal(s.LargestWin))
	assert.True(t, d("-15").Equal(s.LargestLoss))
	assert.Equal(t, 2, s.LongestWinStreak)
	assert.Equal(t, 2, s.LongestLossStreak)
	assert.Equal(t, 30*time.Minute, s.AverageHold)

	// Peak 1030 after two wins, trough 1010 after two losses
	assert.True(t, d("20").Equal(s.MaxDrawdown), "drawdown %s", s.MaxDrawdown)
	assert.True(t, d("1.94").Equal(s.MaxDrawdownPct), "drawdown pct %s", s.MaxDrawdownPct)
}

func TestSummarize_NoLossesHasNoProfitFactor(t *testing.T) {
	s := Summarize([]*domain.Trade{closed("BTCUSDT", "5", 0)}, decimal.Zero)

	assert.Nil(t, s.ProfitFactor)
	assert.True(t, s.MaxDrawdown.IsZero())
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, decimal.Zero)

	assert.Equal(t, 0, s.TotalTrades)
	assert.True(t, s.WinRate.IsZero())
	assert.Equal(t, time.Duration(0), s.AverageHold)
}

func TestAverageRMultiple(t *testing.T) {
	a := closed("BTCUSDT", "10", 0)
	stopA := d("95")
	a.StopLoss = &stopA
	b := closed("BTCUSDT", "-5", 1)
	stopB := d("95")
	b.StopLoss = &stopB

	avg := AverageRMultiple([]*domain.Trade{a, b})
	require.NotNil(t, avg)
	assert.True(t, d("0.5").Equal(*avg))
	assert.Nil(t, AverageRMultiple([]*domain.Trade{closed("BTCUSDT", "10", 0)}))

	rs := RMultiples([]*domain.Trade{a, b})
	require.Len(t, rs, 2)
	assert.True(t, d("2").Equal(rs[0]))
	assert.True(t, d("-1").Equal(rs[1]))
}

func TestEquityCurve(t *testing.T) {
	trades := sample()
	// out of order input
	trades[0], trades[5] = trades[5], trades[0]

	curve := EquityCurve(trades, d("100"))

	require.Len(t, curve, 6)
	want := []string{"110", "130", "115", "110", "110", "140"}
	for i, w := range want {
		assert.True(t, d(w).Equal(curve[i].Equity), "point %d: %s", i, curve[i].Equity)
	}
	assert.True(t, d("20").Equal(curve[3].Drawdown))
	assert.True(t, curve[5].Drawdown.IsZero())
}

func TestCalendar(t *testing.T) {
	late := closed("BTCUSDT", "10", 15) // closes 00:30 UTC Tuesday
	trades := []*domain.Trade{closed("BTCUSDT", "5", 0), closed("ETHUSDT", "-2", 1), late}

	utc := Calendar(trades, time.UTC)
	require.Len(t, utc, 2)
	assert.Equal(t, "2026-02-02", utc[0].Date)
	assert.Equal(t, 2, utc[0].Trades)
	assert.Equal(t, 1, utc[0].Wins)
	assert.True(t, d("3").Equal(utc[0].NetPnL))
	assert.Equal(t, "2026-02-03", utc[1].Date)

	ny := time.FixedZone("EST", -5*60*60)
	local := Calendar(trades, ny)
	require.Len(t, local, 1)
	assert.Equal(t, 3, local[0].Trades)
}

func TestBreakdowns(t *testing.T) {
	trades := sample()
	trades[0].Setup = "breakout"
	trades[0].Tags = []string{"fomc", "a+"}
	trades[2].Tags = []string{"fomc"}

	symbols := BySymbol(trades)
	require.Len(t, symbols, 3)
	assert.Equal(t, "BTCUSDT", symbols[0].Key)
	assert.Equal(t, 3, symbols[0].Trades)
	assert.True(t, d("100").Equal(symbols[0].WinRate))
	assert.Equal(t, "SOLUSDT", symbols[1].Key)
	assert.Equal(t, "ETHUSDT", symbols[2].Key)

	sides := BySide(trades)
	require.Len(t, sides, 1)
	assert.Equal(t, 6, sides[0].Trades)

	setups := BySetup(trades)
	require.Len(t, setups, 2)
	assert.Equal(t, Unspecified, setups[0].Key)

	tags := ByTag(trades)
	require.Len(t, tags, 2)
	assert.Equal(t, "a+", tags[0].Key)
	assert.Equal(t, "fomc", tags[1].Key)
	assert.Equal(t, 2, tags[1].Trades)
	assert.True(t, d("-5").Equal(tags[1].NetPnL))

	weekdays := ByWeekday(trades, time.UTC)
	require.Len(t, weekdays, 1)
	assert.Equal(t, "Monday", weekdays[0].Key)

	hours := ByHour(trades, time.UTC)
	require.Len(t, hours, 6)
	assert.Equal(t, "09", hours[0].Key)
	assert.Equal(t, "14", hours[5].Key)
}

func TestUnrealizedPnL(t *testing.T) {
	btc := open("BTCUSDT")
	eth := open("ETHUSDT")
	positions := UnrealizedPnL([]*domain.Trade{btc, eth, closed("BTCUSDT", "1", 0)}, map[string]decimal.Decimal{
		"BTCUSDT": d("110"),
	})

	require.Len(t, positions, 2)
	assert.True(t, positions[0].Priced)
	// (110-100)*2 - 1 fee
	assert.True(t, d("19").Equal(positions[0].UnrealizedPnL))
	// margin 200/5 = 40
	assert.True(t, d("47.5").Equal(positions[0].UnrealizedROE))
	assert.False(t, positions[1].Priced)
	assert.True(t, d("19").Equal(TotalUnrealized(positions)))
}
