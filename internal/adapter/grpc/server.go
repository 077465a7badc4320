package grpc

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/simaogato/tradejournal-backend/internal/domain"
	"github.com/simaogato/tradejournal-backend/internal/platform/auth"
	"github.com/simaogato/tradejournal-backend/internal/usecase/analytics"
	"github.com/simaogato/tradejournal-backend/internal/usecase/capital"
	"github.com/simaogato/tradejournal-backend/internal/usecase/costbasis"
	"github.com/simaogato/tradejournal-backend/internal/usecase/dashboard"
	"github.com/simaogato/tradejournal-backend/internal/usecase/goal"
	"github.com/simaogato/tradejournal-backend/internal/usecase/leverage"
	"github.com/simaogato/tradejournal-backend/internal/usecase/progress"
	"github.com/simaogato/tradejournal-backend/internal/usecase/regime"
	"github.com/simaogato/tradejournal-backend/internal/usecase/subscription"
	"github.com/simaogato/tradejournal-backend/internal/usecase/trade"
)

// Server implements the JournalService gRPC server
type Server struct {
	TradeService        *trade.TradeService
	AnalyticsService    *analytics.AnalyticsService
	DashboardService    *dashboard.DashboardService
	ProgressService     *progress.ProgressService
	GoalService         *goal.GoalService
	CapitalService      *capital.CapitalService
	Calculator          *leverage.Calculator
	CostBasisService    *costbasis.CostBasisService
	RegimeService       *regime.RegimeService
	SubscriptionService *subscription.SubscriptionService
}

// userID returns the caller injected by AuthInterceptor
func userID(ctx context.Context) (uuid.UUID, error) {
	p, ok := auth.FromContext(ctx)
	if !ok {
		return uuid.Nil, status.Error(codes.Unauthenticated, "missing credentials")
	}
	return p.UserID, nil
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid %s format: %v", field, err)
	}
	return id, nil
}

// parseDecimal parses a required decimal string
func parseDecimal(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, status.Errorf(codes.InvalidArgument, "invalid %s format: %v", field, err)
	}
	return d, nil
}

// optionalDecimal returns nil for an empty string
func optionalDecimal(field, raw string) (*decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	d, err := parseDecimal(field, raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// decimalOrZero treats an empty string as zero
func decimalOrZero(field, raw string) (decimal.Decimal, error) {
	d, err := optionalDecimal(field, raw)
	if err != nil || d == nil {
		return decimal.Zero, err
	}
	return *d, nil
}

func location(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "unknown timezone %q", tz)
	}
	return loc, nil
}

func tradeResponse(res *trade.LogResult) *TradeResponse {
	out := &TradeResponse{Trade: toTrade(res.Trade)}
	if res.Award != nil {
		out.XPAwarded = res.Award.Awarded
		out.LeveledUp = res.Award.LeveledUp
	}
	return out
}

// LogTrade handles the LogTrade RPC
func (s *Server) LogTrade(ctx context.Context, req *LogTradeRequest) (*TradeResponse, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}

	in := trade.LogTradeInput{
		UserID:   uid,
		Symbol:   req.Symbol,
		Exchange: req.Exchange,
		Side:     domain.Side(strings.ToUpper(req.Side)),
		FeeType:  domain.FeeType(strings.ToUpper(req.FeeType)),
		Setup:    req.Setup,
		Notes:    req.Notes,
		Tags:     req.Tags,
		OpenedAt: req.OpenedAt,
		ClosedAt: req.ClosedAt,
	}
	if in.EntryPrice, err = parseDecimal("entry_price", req.EntryPrice); err != nil {
		return nil, err
	}
	if in.Quantity, err = parseDecimal("quantity", req.Quantity); err != nil {
		return nil, err
	}
	if in.ExitPrice, err = optionalDecimal("exit_price", req.ExitPrice); err != nil {
		return nil, err
	}
	if in.Leverage, err = decimalOrZero("leverage", req.Leverage); err != nil {
		return nil, err
	}
	if in.Fees, err = decimalOrZero("fees", req.Fees); err != nil {
		return nil, err
	}
	if in.FundingFees, err = decimalOrZero("funding_fees", req.FundingFees); err != nil {
		return nil, err
	}
	if in.StopLoss, err = optionalDecimal("stop_loss", req.StopLoss); err != nil {
		return nil, err
	}
	if in.TakeProfit, err = optionalDecimal("take_profit", req.TakeProfit); err != nil {
		return nil, err
	}

	res, err := s.TradeService.LogTrade(ctx, in)
	if err != nil {
		return nil, mapError(err)
	}
	return tradeResponse(res), nil
}

// UpdateTrade handles the UpdateTrade RPC
func (s *Server) UpdateTrade(ctx context.Context, req *UpdateTradeRequest) (*Trade, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseID("id", req.ID)
	if err != nil {
		return nil, err
	}

	patch := trade.TradePatch{
		Symbol:      req.Symbol,
		Exchange:    req.Exchange,
		ClearStop:   req.ClearStop,
		ClearTarget: req.ClearTarget,
		Setup:       req.Setup,
		Notes:       req.Notes,
		Tags:        req.Tags,
		OpenedAt:    req.OpenedAt,
		ClosedAt:    req.ClosedAt,
	}
	if req.Side != nil {
		side := domain.Side(strings.ToUpper(*req.Side))
		patch.Side = &side
	}
	if req.FeeType != nil {
		ft := domain.FeeType(strings.ToUpper(*req.FeeType))
		patch.FeeType = &ft
	}

	decimals := []struct {
		field string
		raw   *string
		dst   **decimal.Decimal
	}{
		{"entry_price", req.EntryPrice, &patch.EntryPrice},
		{"exit_price", req.ExitPrice, &patch.ExitPrice},
		{"quantity", req.Quantity, &patch.Quantity},
		{"leverage", req.Leverage, &patch.Leverage},
		{"fees", req.Fees, &patch.Fees},
		{"funding_fees", req.FundingFees, &patch.FundingFees},
		{"stop_loss", req.StopLoss, &patch.StopLoss},
		{"take_profit", req.TakeProfit, &patch.TakeProfit},
	}
	for _, d := range decimals {
		if d.raw == nil {
			continue
		}
		v, err := parseDecimal(d.field, *d.raw)
		if err != nil {
			return nil, err
		}
		*d.dst = &v
	}

	t, err := s.TradeService.UpdateTrade(ctx, uid, id, patch)
	if err != nil {
		return nil, mapError(err)
	}
	return toTrade(t), nil
}

// CloseTrade handles the CloseTrade RPC
func (s *Server) CloseTrade(ctx context.Context, req *CloseTradeRequest) (*TradeResponse, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	exit, err := parseDecimal("exit_price", req.ExitPrice)
	if err != nil {
		return nil, err
	}
	fees, err := decimalOrZero("fees", req.Fees)
	if err != nil {
		return nil, err
	}

	res, err := s.TradeService.CloseTrade(ctx, uid, id, exit, req.ClosedAt, fees)
	if err != nil {
		return nil, mapError(err)
	}
	return tradeResponse(res), nil
}

// DeleteTrade handles the DeleteTrade RPC
func (s *Server) DeleteTrade(ctx context.Context, req *IDRequest) (*Empty, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	if err := s.TradeService.DeleteTrade(ctx, uid, id); err != nil {
		return nil, mapError(err)
	}
	return &Empty{}, nil
}

// GetTrade handles the GetTrade RPC
func (s *Server) GetTrade(ctx context.Context, req *IDRequest) (*Trade, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	t, err := s.TradeService.GetTrade(ctx, uid, id)
	if err != nil {
		return nil, mapError(err)
	}
	return toTrade(t), nil
}

// ListTrades handles the ListTrades RPC
func (s *Server) ListTrades(ctx context.Context, req *ListTradesRequest) (*ListTradesResponse, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}

	filter := domain.TradeFilter{
		Symbol: strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Setup:  req.Setup,
		Tag:    strings.ToLower(strings.TrimSpace(req.Tag)),
		From:   req.From,
		To:     req.To,
		Limit:  req.Limit,
		Offset: req.Offset,
	}
	if req.Status != "" {
		st := domain.TradeStatus(strings.ToUpper(req.Status))
		if st != domain.TradeStatusOpen && st != domain.TradeStatusClosed {
			return nil, status.Errorf(codes.InvalidArgument, "invalid status %q", req.Status)
		}
		filter.Status = &st
	}
	if req.Side != "" {
		side := domain.Side(strings.ToUpper(req.Side))
		if side != domain.SideLong && side != domain.SideShort {
			return nil, status.Errorf(codes.InvalidArgument, "invalid side %q", req.Side)
		}
		filter.Side = &side
	}

	page, err := s.TradeService.ListTrades(ctx, uid, filter)
	if err != nil {
		return nil, mapError(err)
	}

	out := &ListTradesResponse{
		Trades: make([]*Trade, len(page.Trades)),
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	for i, t := range page.Trades {
		out.Trades[i] = toTrade(t)
	}
	return out, nil
}

// GetOpenPositions handles the GetOpenPositions RPC
func (s *Server) GetOpenPositions(ctx context.Context, _ *Empty) (*trade.OpenPositionsView, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	view, err := s.TradeService.OpenPositions(ctx, uid)
	if err != nil {
		return nil, mapError(err)
	}
	return view, nil
}

// GetAnalytics handles the GetAnalytics RPC
func (s *Server) GetAnalytics(ctx context.Context, req *AnalyticsRequest) (*analytics.Report, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	loc, err := location(req.Timezone)
	if err != nil {
		return nil, err
	}
	report, err := s.AnalyticsService.Report(ctx, uid, analytics.ReportFilter{
		From:     req.From,
		To:       req.To,
		Symbol:   req.Symbol,
		Location: loc,
	})
	if err != nil {
		return nil, mapError(err)
	}
	return report, nil
}

// GetOverview handles the GetOverview RPC
func (s *Server) GetOverview(ctx context.Context, req *OverviewRequest) (*dashboard.Overview, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	loc, err := location(req.Timezone)
	if err != nil {
		return nil, err
	}
	overview, err := s.DashboardService.Overview(ctx, uid, loc)
	if err != nil {
		return nil, mapError(err)
	}
	return overview, nil
}

// GetProgress handles the GetProgress RPC
func (s *Server) GetProgress(ctx context.Context, _ *Empty) (*progress.Snapshot, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := s.ProgressService.Get(ctx, uid)
	if err != nil {
		return nil, mapError(err)
	}
	return snap, nil
}

// CreateGoal handles the CreateGoal RPC
func (s *Server) CreateGoal(ctx context.Context, req *CreateGoalRequest) (*Goal, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	target, err := parseDecimal("target", req.Target)
	if err != nil {
		return nil, err
	}
	g, err := s.GoalService.Create(ctx, goal.CreateGoalInput{
		UserID: uid,
		Kind:   domain.GoalKind(req.Kind),
		Target: target,
		Period: domain.GoalPeriod(req.Period),
		Title:  req.Title,
	})
	if err != nil {
		return nil, mapError(err)
	}
	return toGoal(g), nil
}

// ListGoals handles the ListGoals RPC
func (s *Server) ListGoals(ctx context.Context, _ *Empty) (*ListGoalsResponse, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	goals, err := s.GoalService.List(ctx, uid)
	if err != nil {
		return nil, mapError(err)
	}
	out := &ListGoalsResponse{Goals: make([]*Goal, len(goals))}
	for i, g := range goals {
		out.Goals[i] = toGoal(g)
	}
	return out, nil
}

// DeleteGoal handles the DeleteGoal RPC
func (s *Server) DeleteGoal(ctx context.Context, req *IDRequest) (*Empty, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	if err := s.GoalService.Delete(ctx, uid, id); err != nil {
		return nil, mapError(err)
	}
	return &Empty{}, nil
}

// EvaluateGoals handles the EvaluateGoals RPC
func (s *Server) EvaluateGoals(ctx context.Context, _ *Empty) (*EvaluateGoalsResponse, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	progresses, err := s.GoalService.Progress(ctx, uid)
	if err != nil {
		return nil, mapError(err)
	}
	out := &EvaluateGoalsResponse{Goals: make([]GoalProgress, len(progresses))}
	for i, p := range progresses {
		out.Goals[i] = toGoalProgress(p)
	}
	return out, nil
}

// GetLayout handles the GetLayout RPC
func (s *Server) GetLayout(ctx context.Context, _ *Empty) (*LayoutMessage, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	widgets, err := s.DashboardService.Layout(ctx, uid)
	if err != nil {
		return nil, mapError(err)
	}
	return &LayoutMessage{Widgets: toWidgets(widgets)}, nil
}

// SaveLayout handles the SaveLayout RPC
func (s *Server) SaveLayout(ctx context.Context, req *LayoutMessage) (*LayoutMessage, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	widgets := make([]domain.Widget, len(req.Widgets))
	for i, w := range req.Widgets {
		widgets[i] = domain.Widget{
			Kind:     domain.WidgetKind(strings.ToUpper(w.Kind)),
			Position: w.Position,
			Width:    w.Width,
			Settings: w.Settings,
		}
	}
	saved, err := s.DashboardService.SaveLayout(ctx, uid, widgets)
	if err != nil {
		return nil, mapError(err)
	}
	return &LayoutMessage{Widgets: toWidgets(saved)}, nil
}

// ResetLayout handles the ResetLayout RPC
func (s *Server) ResetLayout(ctx context.Context, _ *Empty) (*LayoutMessage, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	widgets, err := s.DashboardService.ResetLayout(ctx, uid)
	if err != nil {
		return nil, mapError(err)
	}
	return &LayoutMessage{Widgets: toWidgets(widgets)}, nil
}

// RecordCapital handles the RecordCapital RPC
func (s *Server) RecordCapital(ctx context.Context, req *RecordCapitalRequest) (*CapitalEntry, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	amount, err := parseDecimal("amount", req.Amount)
	if err != nil {
		return nil, err
	}
	entry, err := s.CapitalService.Record(ctx, capital.RecordInput{
		UserID:     uid,
		Kind:       domain.CapitalKind(req.Kind),
		Amount:     amount,
		Exchange:   req.Exchange,
		Note:       req.Note,
		OccurredAt: req.OccurredAt,
	})
	if err != nil {
		return nil, mapError(err)
	}
	out := toCapitalEntry(*entry)
	return &out, nil
}

// ListCapital handles the ListCapital RPC
func (s *Server) ListCapital(ctx context.Context, _ *Empty) (*ListCapitalResponse, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.CapitalService.List(ctx, uid)
	if err != nil {
		return nil, mapError(err)
	}
	balance, err := s.CapitalService.Balance(ctx, uid)
	if err != nil {
		return nil, mapError(err)
	}
	out := &ListCapitalResponse{Entries: make([]CapitalEntry, len(entries)), Balance: balance}
	for i, e := range entries {
		out.Entries[i] = toCapitalEntry(e)
	}
	return out, nil
}

// DeleteCapital handles the DeleteCapital RPC
func (s *Server) DeleteCapital(ctx context.Context, req *IDRequest) (*Empty, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	if err := s.CapitalService.Delete(ctx, uid, id); err != nil {
		return nil, mapError(err)
	}
	return &Empty{}, nil
}

// QuoteLeverage handles the QuoteLeverage RPC
func (s *Server) QuoteLeverage(ctx context.Context, req *QuoteLeverageRequest) (*leverage.Quote, error) {
	if _, err := userID(ctx); err != nil {
		return nil, err
	}

	q := leverage.QuoteRequest{
		Exchange: req.Exchange,
		Side:     domain.Side(strings.ToUpper(req.Side)),
	}
	var err error
	if q.Entry, err = parseDecimal("entry", req.Entry); err != nil {
		return nil, err
	}
	if q.Stop, err = parseDecimal("stop", req.Stop); err != nil {
		return nil, err
	}
	if q.Target, err = optionalDecimal("target", req.Target); err != nil {
		return nil, err
	}
	if q.Leverage, err = decimalOrZero("leverage", req.Leverage); err != nil {
		return nil, err
	}
	if q.Balance, err = decimalOrZero("balance", req.Balance); err != nil {
		return nil, err
	}
	if q.RiskPct, err = decimalOrZero("risk_pct", req.RiskPct); err != nil {
		return nil, err
	}

	quote, err := s.Calculator.Quote(q)
	if err != nil {
		return nil, mapError(err)
	}
	return quote, nil
}

// CalculateCostBasis handles the CalculateCostBasis RPC
func (s *Server) CalculateCostBasis(ctx context.Context, req *SymbolRequest) (*costbasis.SymbolReport, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	report, err := s.CostBasisService.ForSymbol(ctx, uid, req.Symbol)
	if err != nil {
		return nil, mapError(err)
	}
	return report, nil
}

// GetMarketRegime handles the GetMarketRegime RPC
func (s *Server) GetMarketRegime(ctx context.Context, req *MarketRegimeRequest) (*regime.Result, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.RegimeService.ForUser(ctx, uid, req.Symbol, domain.KlineInterval(req.Interval))
	if err != nil {
		return nil, mapError(err)
	}
	return res, nil
}

// GetSubscription handles the GetSubscription RPC
func (s *Server) GetSubscription(ctx context.Context, _ *Empty) (*subscription.View, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	view, err := s.SubscriptionService.Get(ctx, uid)
	if err != nil {
		return nil, mapError(err)
	}
	return view, nil
}
