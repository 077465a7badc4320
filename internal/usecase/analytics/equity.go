package analytics

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/tradejournal-backend/internal/domain"
)

// EquityPoint is the account state after one closed trade
type EquityPoint struct {
	Time        time.Time
	TradeID     uuid.UUID
	PnL         decimal.Decimal
	Equity      decimal.Decimal
	Drawdown    decimal.Decimal // distance below the running peak, >= 0
	DrawdownPct decimal.Decimal
}

// EquityCurve returns cumulative equity ordered by close time
func EquityCurve(trades []*domain.Trade, startingCapital decimal.Decimal) []EquityPoint {
	return equityCurve(closedByTime(trades), startingCapital)
}

func equityCurve(closed []*domain.Trade, startingCapital decimal.Decimal) []EquityPoint {
	points := make([]EquityPoint, 0, len(closed))
	equity := startingCapital
	peak := startingCapital

	for _, t := range closed {
		net := t.NetPnL()
		equity = equity.Add(net)
		if equity.GreaterThan(peak) {
			peak = equity
		}

		p := EquityPoint{
			Time:     *t.ClosedAt,
			TradeID:  t.ID,
			PnL:      net,
			Equity:   equity,
			Drawdown: peak.Sub(equity),
		}
		if peak.IsPositive() {
			p.DrawdownPct = p.Drawdown.Div(peak).Mul(hundred).Round(2)
		}
		points = append(points, p)
	}
	return points
}

// CalendarDay is the P&L of trades closed on one local calendar day
type CalendarDay struct {
	Date   string // 2006-01-02 in the requested location
	NetPnL decimal.Decimal
	Trades int
	Wins   int
}

// Calendar groups closed trades by the day they closed in loc
func Calendar(trades []*domain.Trade, loc *time.Location) []CalendarDay {
	if loc == nil {
		loc = time.UTC
	}
	days := make(map[string]*CalendarDay)
	for _, t := range closedByTime(trades) {
		key := t.ClosedAt.In(loc).Format(time.DateOnly)
		day, ok := days[key]
		if !ok {
			day = &CalendarDay{Date: key}
			days[key] = day
		}
		day.NetPnL = day.NetPnL.Add(t.NetPnL())
		day.Trades++
		if t.Outcome() == domain.OutcomeWin {
			day.Wins++
		}
	}

	out := make([]CalendarDay, 0, len(days))
	for _, day := range days {
		out = append(out, *day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
