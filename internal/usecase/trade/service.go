// Package trade implements the journal's trade lifecycle: logging, editing,
// closing and deleting trades, listings and marked open positions.
package trade

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/simaogato/tradejournal-backend/internal/domain"
	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
	"github.com/simaogato/tradejournal-backend/internal/usecase/analytics"
	"github.com/simaogato/tradejournal-backend/internal/usecase/fees"
	"github.com/simaogato/tradejournal-backend/internal/usecase/leverage"
	"github.com/simaogato/tradejournal-backend/internal/usecase/progress"
)

// XPRecorder awards XP for trade activity
type XPRecorder interface {
	RecordTradeActivity(ctx context.Context, trade *domain.Trade) (*progress.AwardResult, error)
	RecordTradeClosed(ctx context.Context, trade *domain.Trade) (*progress.AwardResult, error)
}

// QuotaChecker enforces the plan's monthly trade quota
type QuotaChecker interface {
	CheckTradeQuota(ctx context.Context, userID uuid.UUID) error
}

// GoalEvaluator re-evaluates goals after P&L changes
type GoalEvaluator interface {
	Evaluate(ctx context.Context, userID uuid.UUID, now time.Time) ([]domain.GoalProgress, error)
}

// Observer is notified of every stored trade
type Observer interface {
	TradeLogged(source domain.TradeSource)
}

// LogTradeInput is a new trade as entered by the user.
// A trade with an exit price is logged as CLOSED.
type LogTradeInput struct {
	UserID      uuid.UUID
	Symbol      string
	Exchange    string
	Side        domain.Side
	EntryPrice  decimal.Decimal
	ExitPrice   *decimal.Decimal
	Quantity    decimal.Decimal
	Leverage    decimal.Decimal
	Fees        decimal.Decimal
	FundingFees decimal.Decimal
	FeeType     domain.FeeType
	StopLoss    *decimal.Decimal
	TakeProfit  *decimal.Decimal
	Setup       string
	Notes       string
	Tags        []string
	OpenedAt    time.Time
	ClosedAt    *time.Time
}

// LogResult is a stored trade plus the XP it earned.
// Award is nil when XP could not be recorded; the trade is stored regardless.
type LogResult struct {
	Trade *domain.Trade
	Award *progress.AwardResult
}

// TradePage is one page of a trade listing
type TradePage struct {
	Trades []*domain.Trade
	Total  int
	Limit  int
	Offset int
}

// PositionView is an open trade marked to market with its liquidation price
type PositionView struct {
	analytics.Position
	LiquidationPrice decimal.Decimal
}

// OpenPositionsView lists open positions; PricesStale is set when marks could not be fetched
type OpenPositionsView struct {
	Positions       []PositionView
	TotalUnrealized decimal.Decimal
	PricesStale     bool
}

// TradeService handles the trade lifecycle
type TradeService struct {
	TradeRepo  domain.TradeRepository
	Schedule   *fees.Schedule
	MarketData domain.MarketData
	Publisher  domain.EventPublisher
	XP         XPRecorder
	Quota      QuotaChecker
	Goals      GoalEvaluator
	Observer   Observer
	Failures   domain.FailureReporter
	Clock      clockwork.Clock
}

// NewTradeService creates a new TradeService instance
func NewTradeService(tradeRepo domain.TradeRepository, schedule *fees.Schedule, marketData domain.MarketData, publisher domain.EventPublisher, clock clockwork.Clock) *TradeService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if schedule == nil {
		schedule = fees.DefaultSchedule()
	}
	return &TradeService{
		TradeRepo:  tradeRepo,
		Schedule:   schedule,
		MarketData: marketData,
		Publisher:  publisher,
		Clock:      clock,
	}
}

// classifyFees fills in the fee type when the user did not set one
func (s *TradeService) classifyFees(t *domain.Trade) {
	if t.FeeType == "" || t.FeeType == domain.FeeTypeUnknown {
		t.FeeType = s.Schedule.ClassifyTrade(t)
	}
}

// LogTrade validates and stores a new trade, then awards XP and notifies clients
func (s *TradeService) LogTrade(ctx context.Context, in LogTradeInput) (*LogResult, error) {
	now := s.Clock.Now().UTC()

	t := &domain.Trade{
		ID:          uuid.New(),
		UserID:      in.UserID,
		Symbol:      in.Symbol,
		Exchange:    in.Exchange,
		Side:        in.Side,
		Status:      domain.TradeStatusOpen,
		EntryPrice:  in.EntryPrice,
		Quantity:    in.Quantity,
		Leverage:    in.Leverage,
		Fees:        in.Fees,
		FundingFees: in.FundingFees,
		FeeType:     in.FeeType,
		StopLoss:    in.StopLoss,
		TakeProfit:  in.TakeProfit,
		Setup:       in.Setup,
		Notes:       in.Notes,
		Tags:        in.Tags,
		Source:      domain.TradeSourceManual,
		OpenedAt:    in.OpenedAt.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.OpenedAt.IsZero() {
		t.OpenedAt = now
	}
	if in.ExitPrice != nil {
		exit := *in.ExitPrice
		t.Status = domain.TradeStatusClosed
		t.ExitPrice = &exit
		closedAt := now
		if in.ClosedAt != nil {
			closedAt = in.ClosedAt.UTC()
		}
		t.ClosedAt = &closedAt
	} else if in.ClosedAt != nil {
		return nil, apperrors.ValidationError("closed_at requires an exit price")
	}

	t.Normalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.OpenedAt.After(now.Add(time.Minute)) {
		return nil, apperrors.ValidationError("opened_at cannot be in the future")
	}

	if s.Quota != nil {
		if err := s.Quota.CheckTradeQuota(ctx, t.UserID); err != nil {
			return nil, err
		}
	}

	s.classifyFees(t)

	if err := s.TradeRepo.Create(ctx, t); err != nil {
		return nil, err
	}
	if s.Observer != nil {
		s.Observer.TradeLogged(t.Source)
	}

	result := &LogResult{Trade: t}
	if s.XP != nil {
		if award, err := s.XP.RecordTradeActivity(ctx, t); err != nil {
			s.fail(ctx, "trade.xp", err)
		} else {
			result.Award = award
		}
	}
	if t.IsClosed() {
		s.evaluateGoals(ctx, t.UserID)
	}
	s.publish(ctx, domain.EventTradeCreated, t)

	return result, nil
}

// TradePatch holds the fields to change; nil fields are left untouched.
// Status only changes through CloseTrade.
type TradePatch struct {
	Symbol      *string
	Exchange    *string
	Side        *domain.Side
	EntryPrice  *decimal.Decimal
	ExitPrice   *decimal.Decimal
	Quantity    *decimal.Decimal
	Leverage    *decimal.Decimal
	Fees        *decimal.Decimal
	FundingFees *decimal.Decimal
	FeeType     *domain.FeeType
	StopLoss    *decimal.Decimal
	TakeProfit  *decimal.Decimal
	ClearStop   bool
	ClearTarget bool
	Setup       *string
	Notes       *string
	Tags        *[]string
	OpenedAt    *time.Time
	ClosedAt    *time.Time
}

// UpdateTrade applies a patch to one of the user's trades
func (s *TradeService) UpdateTrade(ctx context.Context, userID, id uuid.UUID, patch TradePatch) (*domain.Trade, error) {
	t, err := s.TradeRepo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if (patch.ExitPrice != nil || patch.ClosedAt != nil) && !t.IsClosed() {
		return nil, apperrors.ConflictError("use close to set the exit of an open trade")
	}

	if patch.Symbol != nil {
		t.Symbol = *patch.Symbol
	}
	if patch.Exchange != nil {
		t.Exchange = *patch.Exchange
	}
	if patch.Side != nil {
		t.Side = *patch.Side
	}
	if patch.EntryPrice != nil {
		t.EntryPrice = *patch.EntryPrice
	}
	if patch.ExitPrice != nil {
		exit := *patch.ExitPrice
		t.ExitPrice = &exit
	}
	if patch.Quantity != nil {
		t.Quantity = *patch.Quantity
	}
	if patch.Leverage != nil {
		t.Leverage = *patch.Leverage
	}
	if patch.Fees != nil {
		t.Fees = *patch.Fees
	}
	if patch.FundingFees != nil {
		t.FundingFees = *patch.FundingFees
	}
	if patch.FeeType != nil {
		t.FeeType = *patch.FeeType
	}
	if patch.ClearStop {
		t.StopLoss = nil
	} else if patch.StopLoss != nil {
		stop := *patch.StopLoss
		t.StopLoss = &stop
	}
	if patch.ClearTarget {
		t.TakeProfit = nil
	} else if patch.TakeProfit != nil {
		target := *patch.TakeProfit
		t.TakeProfit = &target
	}
	if patch.Setup != nil {
		t.Setup = *patch.Setup
	}
	if patch.Notes != nil {
		t.Notes = *patch.Notes
	}
	if patch.Tags != nil {
		t.Tags = append([]string(nil), (*patch.Tags)...)
	}
	if patch.OpenedAt != nil {
		t.OpenedAt = patch.OpenedAt.UTC()
	}
	if patch.ClosedAt != nil {
		closedAt := patch.ClosedAt.UTC()
		t.ClosedAt = &closedAt
	}

	t.Normalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if patch.Fees != nil || patch.EntryPrice != nil || patch.ExitPrice != nil || patch.Quantity != nil || patch.Exchange != nil {
		if patch.FeeType == nil {
			t.FeeType = domain.FeeTypeUnknown
		}
		s.classifyFees(t)
	}
	t.UpdatedAt = s.Clock.Now().UTC()

	if err := s.TradeRepo.Update(ctx, t); err != nil {
		return nil, err
	}
	if t.IsClosed() {
		s.evaluateGoals(ctx, userID)
	}
	return t, nil
}

// CloseTrade moves an open trade to CLOSED at exit. A nil closedAt means now.
func (s *TradeService) CloseTrade(ctx context.Context, userID, id uuid.UUID, exit decimal.Decimal, closedAt *time.Time, extraFees decimal.Decimal) (*LogResult, error) {
	t, err := s.TradeRepo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	at := s.Clock.Now().UTC()
	if closedAt != nil {
		at = closedAt.UTC()
	}
	if err := t.Close(exit, at, extraFees); err != nil {
		return nil, err
	}
	t.FeeType = domain.FeeTypeUnknown
	s.classifyFees(t)
	t.UpdatedAt = s.Clock.Now().UTC()

	if err := s.TradeRepo.Update(ctx, t); err != nil {
		return nil, err
	}

	result := &LogResult{Trade: t}
	if s.XP != nil {
		if award, err := s.XP.RecordTradeClosed(ctx, t); err != nil {
			s.fail(ctx, "trade.xp", err)
		} else {
			result.Award = award
		}
	}
	s.evaluateGoals(ctx, userID)
	s.publish(ctx, domain.EventTradeClosed, t)

	return result, nil
}

// DeleteTrade removes one of the user's trades
func (s *TradeService) DeleteTrade(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.TradeRepo.Delete(ctx, userID, id); err != nil {
		return err
	}
	if s.Publisher != nil {
		ev, err := domain.NewEvent(domain.EventTradeDeleted, userID, map[string]any{"trade_id": id}, s.Clock.Now())
		if err == nil {
			err = s.Publisher.Publish(ctx, ev)
		}
		if err != nil {
			s.fail(ctx, "trade.publish", err)
		}
	}
	return nil
}

// GetTrade returns one of the user's trades
func (s *TradeService) GetTrade(ctx context.Context, userID, id uuid.UUID) (*domain.Trade, error) {
	return s.TradeRepo.GetByID(ctx, userID, id)
}

// ListTrades returns a filtered page of trades and the total match count
func (s *TradeService) ListTrades(ctx context.Context, userID uuid.UUID, filter domain.TradeFilter) (*TradePage, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	trades, err := s.TradeRepo.List(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.TradeRepo.Count(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	return &TradePage{Trades: trades, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// OpenPositions marks the user's open trades at current prices.
// A failed price lookup still returns the positions, unpriced, with PricesStale set.
func (s *TradeService) OpenPositions(ctx context.Context, userID uuid.UUID) (*OpenPositionsView, error) {
	status := domain.TradeStatusOpen
	filter := domain.TradeFilter{Status: &status, Limit: domain.MaxTradeLimit}
	trades, err := s.TradeRepo.List(ctx, userID, filter)
	if err != nil {
		return nil, err
	}

	view := &OpenPositionsView{Positions: []PositionView{}}
	if len(trades) == 0 {
		return view, nil
	}

	symbols := make([]string, 0, len(trades))
	seen := make(map[string]bool)
	for _, t := range trades {
		if !seen[t.Symbol] {
			seen[t.Symbol] = true
			symbols = append(symbols, t.Symbol)
		}
	}

	var prices map[string]decimal.Decimal
	if s.MarketData != nil {
		prices, err = s.MarketData.Prices(ctx, symbols)
	}
	if s.MarketData == nil || err != nil {
		view.PricesStale = true
		prices = nil
	}

	for _, p := range analytics.UnrealizedPnL(trades, prices) {
		pv := PositionView{Position: p}
		mmr := s.Schedule.For(p.Trade.Exchange).MaintenanceMarginRate
		if liq, err := leverage.LiquidationPrice(p.Trade.Side, p.Trade.EntryPrice, p.Trade.Leverage, mmr); err == nil {
			pv.LiquidationPrice = liq
		}
		view.Positions = append(view.Positions, pv)
	}
	view.TotalUnrealized = analytics.TotalUnrealized(analyticsPositions(view.Positions))

	return view, nil
}

func analyticsPositions(views []PositionView) []analytics.Position {
	out := make([]analytics.Position, len(views))
	for i := range views {
		out[i] = views[i].Position
	}
	return out
}

// evaluateGoals is best effort; a goal failure never fails the trade write
func (s *TradeService) evaluateGoals(ctx context.Context, userID uuid.UUID) {
	if s.Goals == nil {
		return
	}
	if _, err := s.Goals.Evaluate(ctx, userID, s.Clock.Now()); err != nil {
		s.fail(ctx, "trade.goals", err)
	}
}

func (s *TradeService) fail(ctx context.Context, op string, err error) {
	if s.Failures != nil {
		s.Failures.SideEffectFailed(ctx, op, err)
	}
}

func (s *TradeService) publish(ctx context.Context, eventType domain.EventType, t *domain.Trade) {
	if s.Publisher == nil {
		return
	}
	payload := map[string]any{
		"trade_id": t.ID,
		"symbol":   t.Symbol,
		"side":     t.Side,
		"status":   t.Status,
	}
	if t.IsClosed() {
		payload["net_pnl"] = t.NetPnL().String()
	}
	ev, err := domain.NewEvent(eventType, t.UserID, payload, s.Clock.Now())
	if err == nil {
		err = s.Publisher.Publish(ctx, ev)
	}
	if err != nil {
		s.fail(ctx, "trade.publish", err)
	}
}
