package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
)

// GoalKind is the metric a goal tracks
type GoalKind string

const (
	GoalKindNetPnL      GoalKind = "NET_PNL"
	GoalKindWinRate     GoalKind = "WIN_RATE"
	GoalKindTradeCount  GoalKind = "TRADE_COUNT"
	GoalKindMaxLossDays GoalKind = "MAX_LOSS_DAYS"
)

// GoalPeriod is the window a goal resets on
type GoalPeriod string

const (
	GoalPeriodWeekly  GoalPeriod = "WEEKLY"
	GoalPeriodMonthly GoalPeriod = "MONTHLY"
)

// Goal is a user-defined target evaluated per period
type Goal struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Kind       GoalKind
	Target     decimal.Decimal
	Period     GoalPeriod
	Title      string
	CreatedAt  time.Time
	AchievedAt *time.Time
}

// Validate ensures the goal adheres to domain rules
func (g *Goal) Validate() error {
	if g.UserID == uuid.Nil {
		return apperrors.ValidationError("goal must belong to a user")
	}
	switch g.Kind {
	case GoalKindNetPnL, GoalKindWinRate, GoalKindTradeCount, GoalKindMaxLossDays:
	default:
		return apperrors.ValidationError("goal kind must be NET_PNL, WIN_RATE, TRADE_COUNT or MAX_LOSS_DAYS")
	}
	if g.Period != GoalPeriodWeekly && g.Period != GoalPeriodMonthly {
		return apperrors.ValidationError("goal period must be WEEKLY or MONTHLY")
	}
	// MAX_LOSS_DAYS may legitimately target zero loss days.
	if g.Kind == GoalKindMaxLossDays {
		if g.Target.IsNegative() {
			return apperrors.ValidationError("goal target cannot be negative")
		}
	} else if !g.Target.IsPositive() {
		return apperrors.ValidationError("goal target must be positive")
	}
	if g.Kind == GoalKindWinRate && g.Target.GreaterThan(hundred) {
		return apperrors.ValidationError("win rate target cannot exceed 100")
	}
	if (g.Kind == GoalKindTradeCount || g.Kind == GoalKindMaxLossDays) && !g.Target.IsInteger() {
		return apperrors.ValidationError("count targets must be whole numbers")
	}
	if len(strings.TrimSpace(g.Title)) > 120 {
		return apperrors.ValidationError("goal title exceeds 120 characters")
	}
	return nil
}

// Window returns the [start, end) period containing now, in UTC.
// Weekly periods start on Monday.
func (g *Goal) Window(now time.Time) (time.Time, time.Time) {
	return PeriodWindow(g.Period, now)
}

// PeriodWindow returns the [start, end) window of the given period containing now.
func PeriodWindow(period GoalPeriod, now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if period == GoalPeriodWeekly {
		offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7)
	}
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// GoalProgress is the evaluated state of a goal in its current period
type GoalProgress struct {
	Goal         Goal
	PeriodStart  time.Time
	PeriodEnd    time.Time
	Current      decimal.Decimal
	Percent      decimal.Decimal // 0..100
	Achieved     bool
	NewlyReached bool
}
