// Package analytics aggregates journaled trades into performance statistics.
// All functions are pure; Report wires them to the repositories.
package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/simaogato/tradejournal-backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Summary is the headline statistics of a set of trades
type Summary struct {
	TotalTrades  int
	OpenTrades   int
	ClosedTrades int
	Wins         int
	Losses       int
	Breakeven    int
	WinRate      decimal.Decimal // percent of closed trades

	GrossProfit  decimal.Decimal // sum of winning net P&L
	GrossLoss    decimal.Decimal // sum of losing net P&L, <= 0
	NetPnL       decimal.Decimal
	TotalFees    decimal.Decimal
	TotalFunding decimal.Decimal
	ProfitFactor *decimal.Decimal // nil when there are no losses
	AverageWin   decimal.Decimal
	AverageLoss  decimal.Decimal
	Expectancy   decimal.Decimal // net P&L per closed trade
	LargestWin   decimal.Decimal
	LargestLoss  decimal.Decimal

	MaxDrawdown    decimal.Decimal // >= 0, in quote currency
	MaxDrawdownPct decimal.Decimal

	LongestWinStreak  int
	LongestLossStreak int
	AverageHold       time.Duration
}

// closedByTime returns the closed trades ordered by close time, ties by open time
func closedByTime(trades []*domain.Trade) []*domain.Trade {
	closed := make([]*domain.Trade, 0, len(trades))
	for _, t := range trades {
		if t.IsClosed() && t.ClosedAt != nil {
			closed = append(closed, t)
		}
	}
	sort.SliceStable(closed, func(i, j int) bool {
		if closed[i].ClosedAt.Equal(*closed[j].ClosedAt) {
			return closed[i].OpenedAt.Before(closed[j].OpenedAt)
		}
		return closed[i].ClosedAt.Before(*closed[j].ClosedAt)
	})
	return closed
}

// Summarize computes headline statistics. startingCapital anchors the
// drawdown percentage; with no capital the percentage is measured against
// peak cumulative profit.
func Summarize(trades []*domain.Trade, startingCapital decimal.Decimal) Summary {
	s := Summary{TotalTrades: len(trades)}

	closed := closedByTime(trades)
	s.ClosedTrades = len(closed)
	s.OpenTrades = s.TotalTrades - s.ClosedTrades

	var (
		winStreak, lossStreak int
		totalHold             time.Duration
	)

	for _, t := range trades {
		s.TotalFees = s.TotalFees.Add(t.Fees)
		s.TotalFunding = s.TotalFunding.Add(t.FundingFees)
	}

	for _, t := range closed {
		net := t.NetPnL()
		s.NetPnL = s.NetPnL.Add(net)
		totalHold += t.HoldDuration()

		switch t.Outcome() {
		case domain.OutcomeWin:
			s.Wins++
			s.GrossProfit = s.GrossProfit.Add(net)
			if net.GreaterThan(s.LargestWin) {
				s.LargestWin = net
			}
			winStreak++
			lossStreak = 0
		case domain.OutcomeLoss:
			s.Losses++
			s.GrossLoss = s.GrossLoss.Add(net)
			if net.LessThan(s.LargestLoss) {
				s.LargestLoss = net
			}
			lossStreak++
			winStreak = 0
		default:
			s.Breakeven++
			winStreak, lossStreak = 0, 0
		}
		if winStreak > s.LongestWinStreak {
			s.LongestWinStreak = winStreak
		}
		if lossStreak > s.LongestLossStreak {
			s.LongestLossStreak = lossStreak
		}
	}

	if s.ClosedTrades > 0 {
		n := decimal.NewFromInt(int64(s.ClosedTrades))
		s.WinRate = decimal.NewFromInt(int64(s.Wins)).Div(n).Mul(hundred).Round(2)
		s.Expectancy = s.NetPnL.Div(n).Round(8)
		s.AverageHold = totalHold / time.Duration(s.ClosedTrades)
	}
	if s.Wins > 0 {
		s.AverageWin = s.GrossProfit.Div(decimal.NewFromInt(int64(s.Wins))).Round(8)
	}
	if s.Losses > 0 {
		s.AverageLoss = s.GrossLoss.Div(decimal.NewFromInt(int64(s.Losses))).Round(8)
	}
	if !s.GrossLoss.IsZero() {
		pf := s.GrossProfit.Div(s.GrossLoss.Abs()).Round(4)
		s.ProfitFactor = &pf
	}

	curve := equityCurve(closed, startingCapital)
	for _, p := range curve {
		if p.Drawdown.GreaterThan(s.MaxDrawdown) {
			s.MaxDrawdown = p.Drawdown
		}
		if p.DrawdownPct.GreaterThan(s.MaxDrawdownPct) {
			s.MaxDrawdownPct = p.DrawdownPct
		}
	}

	return s
}
