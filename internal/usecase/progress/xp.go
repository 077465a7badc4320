// Package progress implements the XP engine: per-action rewards, the daily
// cap, the level curve, tiers and activity streaks.
package progress

import (
	"strings"
	"time"

	"github.com/simaogato/tradejournal-backend/internal/domain"
)

// XP per action
const (
	XPTradeLogged    = 10
	XPTradeJournaled = 5
	XPTradeTagged    = 3
	XPTradeClosed    = 5
	XPImportRow      = 2
	XPGoalAchieved   = 100
	XPPerStreakDay   = 2

	MaxStreakBonusDays = 30
	DailyXPCap         = 500
	MaxLevel           = 100

	// JournalMinNotes is the note length that counts as a journaled trade
	JournalMinNotes = 20
)

// Activity is a bundle of actions to reward together.
// EarnedToday is the capped XP the user already received today.
type Activity struct {
	TradesLogged    int
	TradesJournaled int
	TradesTagged    int
	TradesClosed    int
	ImportRows      int
	Streak          int
	EarnedToday     int
}

func nonNeg(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// StreakBonus is the XP granted for reaching a streak of the given length
func StreakBonus(streak int) int {
	streak = nonNeg(streak)
	if streak > MaxStreakBonusDays {
		streak = MaxStreakBonusDays
	}
	return XPPerStreakDay * streak
}

// CalculateXP sums the rewards of an activity and clamps the result to what
// is left of today's cap.
func CalculateXP(a Activity) int {
	total := XPTradeLogged*nonNeg(a.TradesLogged) +
		XPTradeJournaled*nonNeg(a.TradesJournaled) +
		XPTradeTagged*nonNeg(a.TradesTagged) +
		XPTradeClosed*nonNeg(a.TradesClosed) +
		XPImportRow*nonNeg(a.ImportRows) +
		StreakBonus(a.Streak)

	return capped(total, a.EarnedToday)
}

func capped(amount, earnedToday int) int {
	remaining := DailyXPCap - nonNeg(earnedToday)
	if remaining < 0 {
		remaining = 0
	}
	amount = nonNeg(amount)
	if amount > remaining {
		return remaining
	}
	return amount
}

// XPForLevel is the cumulative XP needed to reach level: 50·L·(L−1)
func XPForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	return 50 * level * (level - 1)
}

// LevelForXP returns the highest level whose threshold xp has reached
func LevelForXP(xp int) int {
	level := 1
	for level < MaxLevel && XPForLevel(level+1) <= xp {
		level++
	}
	return level
}

// TierForLevel maps a level onto its tier
func TierForLevel(level int) domain.Tier {
	switch {
	case level >= 100:
		return domain.TierLegend
	case level >= 75:
		return domain.TierDiamond
	case level >= 50:
		return domain.TierPlatinum
	case level >= 25:
		return domain.TierGold
	case level >= 10:
		return domain.TierSilver
	default:
		return domain.TierBronze
	}
}

// Day truncates t to midnight UTC
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NextStreak advances a streak for activity on today.
// Same day keeps the streak, the following day extends it, any gap restarts it.
func NextStreak(current int, lastActive *time.Time, today time.Time) int {
	if lastActive == nil || current <= 0 {
		return 1
	}
	last, day := Day(*lastActive), Day(today)
	switch {
	case last.Equal(day):
		return current
	case last.AddDate(0, 0, 1).Equal(day):
		return current + 1
	default:
		return 1
	}
}

// TradeActivity is the activity a single trade contributes
func TradeActivity(t *domain.Trade) Activity {
	a := Activity{TradesLogged: 1}
	if len([]rune(strings.TrimSpace(t.Notes))) >= JournalMinNotes {
		a.TradesJournaled = 1
	}
	if t.Setup != "" || len(t.Tags) > 0 {
		a.TradesTagged = 1
	}
	if t.IsClosed() {
		a.TradesClosed = 1
	}
	return a
}
