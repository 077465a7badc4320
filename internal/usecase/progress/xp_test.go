package progress

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/simaogato/tradejournal-backend/internal/domain"
)

func TestCalculateXP(t *testing.T) {
	tests := []struct {
		name     string
		activity Activity
		want     int
	}{
		{"Nothing earns nothing", Activity{}, 0},
		{"Single logged trade", Activity{TradesLogged: 1}, 10},
		{"Journaled and tagged trade", Activity{TradesLogged: 1, TradesJournaled: 1, TradesTagged: 1}, 18},
		{"Closed trade", Activity{TradesClosed: 1}, 5},
		{"Import rows", Activity{ImportRows: 25}, 50},
		{"Streak bonus", Activity{Streak: 7}, 14},
		{"Streak bonus is capped at 30 days", Activity{Streak: 90}, 60},
		{"Negative counts are ignored", Activity{TradesLogged: -4, ImportRows: -1}, 0},
		{"Clamped to the remaining cap", Activity{TradesLogged: 5, EarnedToday: 480}, 20},
		{"Nothing left after the cap", Activity{TradesLogged: 5, EarnedToday: 500}, 0},
		{"Large import hits the cap", Activity{ImportRows: 1000}, DailyXPCap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateXP(tt.activity))
		})
	}
}

func TestCalculateXP_MonotoneAndCapped(t *testing.T) {
	prev := 0
	for n := 0; n <= 200; n++ {
		got := CalculateXP(Activity{TradesLogged: n, TradesJournaled: n / 2, ImportRows: n})
		assert.GreaterOrEqual(t, got, prev, "xp decreased at n=%d", n)
		assert.LessOrEqual(t, got, DailyXPCap)
		prev = got
	}
}

func TestXPForLevel(t *testing.T) {
	assert.Equal(t, 0, XPForLevel(1))
	assert.Equal(t, 100, XPForLevel(2))
	assert.Equal(t, 300, XPForLevel(3))
	assert.Equal(t, 495000, XPForLevel(100))

	for l := 1; l < MaxLevel; l++ {
		assert.Less(t, XPForLevel(l), XPForLevel(l+1))
	}
}

func TestLevelForXP(t *testing.T) {
	tests := []struct {
		xp   int
		want int
	}{
		{-10, 1},
		{0, 1},
		{99, 1},
		{100, 2},
		{299, 2},
		{300, 3},
		{495000, 100},
		{10_000_000, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelForXP(tt.xp), "xp=%d", tt.xp)
	}
}

func TestTierForLevel(t *testing.T) {
	tests := []struct {
		level int
		want  domain.Tier
	}{
		{1, domain.TierBronze},
		{9, domain.TierBronze},
		{10, domain.TierSilver},
		{24, domain.TierSilver},
		{25, domain.TierGold},
		{50, domain.TierPlatinum},
		{74, domain.TierPlatinum},
		{75, domain.TierDiamond},
		{99, domain.TierDiamond},
		{100, domain.TierLegend},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TierForLevel(tt.level), "level=%d", tt.level)
	}
}

func TestNextStreak(t *testing.T) {
	today := time.Date(2026, 4, 10, 15, 0, 0, 0, time.UTC)
	sameDay := time.Date(2026, 4, 10, 1, 0, 0, 0, time.UTC)
	yesterday := time.Date(2026, 4, 9, 23, 59, 0, 0, time.UTC)
	longAgo := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 1, NextStreak(0, nil, today))
	assert.Equal(t, 4, NextStreak(4, &sameDay, today))
	assert.Equal(t, 5, NextStreak(4, &yesterday, today))
	assert.Equal(t, 1, NextStreak(4, &longAgo, today))
}

func TestTradeActivity(t *testing.T) {
	exit := decimal.NewFromInt(100)
	tr := &domain.Trade{
		Notes:  "Waited for the retest, entry on the second wick",
		Tags:   []string{"breakout"},
		Status: domain.TradeStatusClosed,
	}
	tr.ExitPrice = &exit

	a := TradeActivity(tr)
	assert.Equal(t, Activity{TradesLogged: 1, TradesJournaled: 1, TradesTagged: 1, TradesClosed: 1}, a)

	bare := TradeActivity(&domain.Trade{Notes: "  short  "})
	assert.Equal(t, Activity{TradesLogged: 1}, bare)
}
