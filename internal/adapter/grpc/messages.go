package grpc

import (
	"time"

	"github.com/simaogato/tradejournal-backend/internal/domain"
	"github.com/simaogato/tradejournal-backend/internal/usecase/capital"
)

// Money and quantity fields travel as decimal strings, IDs as UUID strings.

type Empty struct{}

type Trade struct {
	ID          string     `json:"id"`
	Symbol      string     `json:"symbol"`
	Exchange    string     `json:"exchange,omitempty"`
	Side        string     `json:"side"`
	Status      string     `json:"status"`
	EntryPrice  string     `json:"entry_price"`
	ExitPrice   string     `json:"exit_price,omitempty"`
	Quantity    string     `json:"quantity"`
	Leverage    string     `json:"leverage"`
	Fees        string     `json:"fees"`
	FundingFees string     `json:"funding_fees"`
	FeeType     string     `json:"fee_type"`
	StopLoss    string     `json:"stop_loss,omitempty"`
	TakeProfit  string     `json:"take_profit,omitempty"`
	Setup       string     `json:"setup,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	Tags        []string   `json:"tags"`
	Source      string     `json:"source"`
	OpenedAt    time.Time  `json:"opened_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	GrossPnL    string     `json:"gross_pnl"`
	NetPnL      string     `json:"net_pnl"`
	ROE         string     `json:"roe"`
	Outcome     string     `json:"outcome"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type LogTradeRequest struct {
	Symbol      string     `json:"symbol"`
	Exchange    string     `json:"exchange"`
	Side        string     `json:"side"`
	EntryPrice  string     `json:"entry_price"`
	ExitPrice   string     `json:"exit_price"`
	Quantity    string     `json:"quantity"`
	Leverage    string     `json:"leverage"`
	Fees        string     `json:"fees"`
	FundingFees string     `json:"funding_fees"`
	FeeType     string     `json:"fee_type"`
	StopLoss    string     `json:"stop_loss"`
	TakeProfit  string     `json:"take_profit"`
	Setup       string     `json:"setup"`
	Notes       string     `json:"notes"`
	Tags        []string   `json:"tags"`
	OpenedAt    time.Time  `json:"opened_at"`
	ClosedAt    *time.Time `json:"closed_at"`
}

type TradeResponse struct {
	Trade     *Trade `json:"trade"`
	XPAwarded int    `json:"xp_awarded"`
	LeveledUp bool   `json:"leveled_up"`
}

// UpdateTradeRequest changes only the fields that are set.
type UpdateTradeRequest struct {
	ID          string     `json:"id"`
	Symbol      *string    `json:"symbol"`
	Exchange    *string    `json:"exchange"`
	Side        *string    `json:"side"`
	EntryPrice  *string    `json:"entry_price"`
	ExitPrice   *string    `json:"exit_price"`
	Quantity    *string    `json:"quantity"`
	Leverage    *string    `json:"leverage"`
	Fees        *string    `json:"fees"`
	FundingFees *string    `json:"funding_fees"`
	FeeType     *string    `json:"fee_type"`
	StopLoss    *string    `json:"stop_loss"`
	TakeProfit  *string    `json:"take_profit"`
	ClearStop   bool       `json:"clear_stop"`
	ClearTarget bool       `json:"clear_target"`
	Setup       *string    `json:"setup"`
	Notes       *string    `json:"notes"`
	Tags        *[]string  `json:"tags"`
	OpenedAt    *time.Time `json:"opened_at"`
	ClosedAt    *time.Time `json:"closed_at"`
}

type CloseTradeRequest struct {
	ID        string     `json:"id"`
	ExitPrice string     `json:"exit_price"`
	ClosedAt  *time.Time `json:"closed_at"`
	Fees      string     `json:"fees"`
}

type IDRequest struct {
	ID string `json:"id"`
}

type ListTradesRequest struct {
	Status string     `json:"status"`
	Side   string     `json:"side"`
	Symbol string     `json:"symbol"`
	Setup  string     `json:"setup"`
	Tag    string     `json:"tag"`
	From   *time.Time `json:"from"`
	To     *time.Time `json:"to"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

type ListTradesResponse struct {
	Trades []*Trade `json:"trades"`
	Total  int      `json:"total"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
}

type AnalyticsRequest struct {
	From     *time.Time `json:"from"`
	To       *time.Time `json:"to"`
	Symbol   string     `json:"symbol"`
	Timezone string     `json:"timezone"`
}

type OverviewRequest struct {
	Timezone string `json:"timezone"`
}

type Goal struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Target     string     `json:"target"`
	Period     string     `json:"period"`
	Title      string     `json:"title,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	AchievedAt *time.Time `json:"achieved_at,omitempty"`
}

type CreateGoalRequest struct {
	Kind   string `json:"kind"`
	Target string `json:"target"`
	Period string `json:"period"`
	Title  string `json:"title"`
}

type ListGoalsResponse struct {
	Goals []*Goal `json:"goals"`
}

type GoalProgress struct {
	Goal         *Goal     `json:"goal"`
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
	Current      string    `json:"current"`
	Percent      string    `json:"percent"`
	Achieved     bool      `json:"achieved"`
	NewlyReached bool      `json:"newly_reached"`
}

type EvaluateGoalsResponse struct {
	Goals []GoalProgress `json:"goals"`
}

type Widget struct {
	ID       string         `json:"id,omitempty"`
	Kind     string         `json:"kind"`
	Position int            `json:"position"`
	Width    int            `json:"width"`
	Settings map[string]any `json:"settings,omitempty"`
}

type LayoutMessage struct {
	Widgets []Widget `json:"widgets"`
}

type CapitalEntry struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Amount     string    `json:"amount"`
	Exchange   string    `json:"exchange,omitempty"`
	Note       string    `json:"note,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type RecordCapitalRequest struct {
	Kind       string    `json:"kind"`
	Amount     string    `json:"amount"`
	Exchange   string    `json:"exchange"`
	Note       string    `json:"note"`
	OccurredAt time.Time `json:"occurred_at"`
}

type ListCapitalResponse struct {
	Entries []CapitalEntry   `json:"entries"`
	Balance *capital.Balance `json:"balance"`
}

type QuoteLeverageRequest struct {
	Exchange string `json:"exchange"`
	Side     string `json:"side"`
	Entry    string `json:"entry"`
	Stop     string `json:"stop"`
	Target   string `json:"target"`
	Leverage string `json:"leverage"`
	Balance  string `json:"balance"`
	RiskPct  string `json:"risk_pct"`
}

type SymbolRequest struct {
	Symbol string `json:"symbol"`
}

type MarketRegimeRequest struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}

func toTrade(t *domain.Trade) *Trade {
	out := &Trade{
		ID:          t.ID.String(),
		Symbol:      t.Symbol,
		Exchange:    t.Exchange,
		Side:        string(t.Side),
		Status:      string(t.Status),
		EntryPrice:  t.EntryPrice.String(),
		Quantity:    t.Quantity.String(),
		Leverage:    t.Leverage.String(),
		Fees:        t.Fees.String(),
		FundingFees: t.FundingFees.String(),
		FeeType:     string(t.FeeType),
		Setup:       t.Setup,
		Notes:       t.Notes,
		Tags:        t.Tags,
		Source:      string(t.Source),
		OpenedAt:    t.OpenedAt,
		ClosedAt:    t.ClosedAt,
		GrossPnL:    t.GrossPnL().String(),
		NetPnL:      t.NetPnL().String(),
		ROE:         t.ROE().Round(2).String(),
		Outcome:     string(t.Outcome()),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if t.ExitPrice != nil {
		out.ExitPrice = t.ExitPrice.String()
	}
	if t.StopLoss != nil {
		out.StopLoss = t.StopLoss.String()
	}
	if t.TakeProfit != nil {
		out.TakeProfit = t.TakeProfit.String()
	}
	return out
}

func toGoal(g *domain.Goal) *Goal {
	return &Goal{
		ID:         g.ID.String(),
		Kind:       string(g.Kind),
		Target:     g.Target.String(),
		Period:     string(g.Period),
		Title:      g.Title,
		CreatedAt:  g.CreatedAt,
		AchievedAt: g.AchievedAt,
	}
}

func toGoalProgress(p domain.GoalProgress) GoalProgress {
	g := p.Goal
	return GoalProgress{
		Goal:         toGoal(&g),
		PeriodStart:  p.PeriodStart,
		PeriodEnd:    p.PeriodEnd,
		Current:      p.Current.String(),
		Percent:      p.Percent.String(),
		Achieved:     p.Achieved,
		NewlyReached: p.NewlyReached,
	}
}

func toWidgets(ws []domain.Widget) []Widget {
	out := make([]Widget, len(ws))
	for i, w := range ws {
		out[i] = Widget{
			ID:       w.ID.String(),
			Kind:     string(w.Kind),
			Position: w.Position,
			Width:    w.Width,
			Settings: w.Settings,
		}
	}
	return out
}

func toCapitalEntry(c domain.CapitalLog) CapitalEntry {
	return CapitalEntry{
		ID:         c.ID.String(),
		Kind:       string(c.Kind),
		Amount:     c.Amount.String(),
		Exchange:   c.Exchange,
		Note:       c.Note,
		OccurredAt: c.OccurredAt,
	}
}
