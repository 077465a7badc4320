// Package dashboard assembles the home screen: the user's widget layout
// and an overview combining statistics, progress, goals and positions.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/simaogato/tradejournal-backend/internal/domain"
	"github.com/simaogato/tradejournal-backend/internal/usecase/analytics"
	"github.com/simaogato/tradejournal-backend/internal/usecase/progress"
	"github.com/simaogato/tradejournal-backend/internal/usecase/trade"
)

// TradeSource loads journal trades and starting capital
type TradeSource interface {
	Trades(ctx context.Context, userID uuid.UUID, filter analytics.ReportFilter) ([]*domain.Trade, error)
	StartingCapital(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
}

// ProgressSource loads the user's gamification snapshot
type ProgressSource interface {
	Get(ctx context.Context, userID uuid.UUID) (*progress.Snapshot, error)
}

// GoalSource evaluates the user's goals
type GoalSource interface {
	Progress(ctx context.Context, userID uuid.UUID) ([]domain.GoalProgress, error)
}

// PositionSource marks open trades to market
type PositionSource interface {
	OpenPositions(ctx context.Context, userID uuid.UUID) (*trade.OpenPositionsView, error)
}

// Overview is everything the dashboard renders in one response
type Overview struct {
	Layout          []domain.Widget
	StartingCapital decimal.Decimal
	Summary         analytics.Summary
	MonthSummary    analytics.Summary
	EquityCurve     []analytics.EquityPoint
	MonthCalendar   []analytics.CalendarDay
	Progress        *progress.Snapshot
	Goals           []domain.GoalProgress
	OpenPositions   *trade.OpenPositionsView
}

// DashboardService handles dashboard-related operations
type DashboardService struct {
	WidgetRepo domain.WidgetRepository
	Trades     TradeSource
	Progress   ProgressSource
	Goals      GoalSource
	Positions  PositionSource
	Clock      clockwork.Clock
}

// NewDashboardService creates a new DashboardService instance
func NewDashboardService(
	widgetRepo domain.WidgetRepository,
	trades TradeSource,
	progressSource ProgressSource,
	goals GoalSource,
	positions PositionSource,
	clock clockwork.Clock,
) *DashboardService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &DashboardService{
		WidgetRepo: widgetRepo,
		Trades:     trades,
		Progress:   progressSource,
		Goals:      goals,
		Positions:  positions,
		Clock:      clock,
	}
}

// Overview loads every dashboard section concurrently.
// Sections are independent reads; the first failure cancels the rest.
func (s *DashboardService) Overview(ctx context.Context, userID uuid.UUID, loc *time.Location) (*Overview, error) {
	if loc == nil {
		loc = time.UTC
	}
	now := s.Clock.Now().In(loc)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)

	out := &Overview{}
	var trades []*domain.Trade
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		layout, err := s.Layout(gctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load layout: %w", err)
		}
		out.Layout = layout
		return nil
	})
	g.Go(func() error {
		var err error
		if trades, err = s.Trades.Trades(gctx, userID, analytics.ReportFilter{}); err != nil {
			return fmt.Errorf("failed to load trades: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		capital, err := s.Trades.StartingCapital(gctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load capital: %w", err)
		}
		out.StartingCapital = capital
		return nil
	})
	if s.Progress != nil {
		g.Go(func() error {
			snap, err := s.Progress.Get(gctx, userID)
			if err != nil {
				return fmt.Errorf("failed to load progress: %w", err)
			}
			out.Progress = snap
			return nil
		})
	}
	if s.Goals != nil {
		g.Go(func() error {
			goals, err := s.Goals.Progress(gctx, userID)
			if err != nil {
				return fmt.Errorf("failed to evaluate goals: %w", err)
			}
			out.Goals = goals
			return nil
		})
	}
	if s.Positions != nil {
		g.Go(func() error {
			positions, err := s.Positions.OpenPositions(gctx, userID)
			if err != nil {
				return fmt.Errorf("failed to load open positions: %w", err)
			}
			out.OpenPositions = positions
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out.Summary = analytics.Summarize(trades, out.StartingCapital)
	out.EquityCurve = analytics.EquityCurve(trades, out.StartingCapital)

	month := make([]*domain.Trade, 0, len(trades))
	for _, t := range trades {
		if t.ClosedAt != nil && !t.ClosedAt.Before(monthStart) {
			month = append(month, t)
		}
	}
	out.MonthSummary = analytics.Summarize(month, out.StartingCapital)
	out.MonthCalendar = analytics.Calendar(month, loc)

	return out, nil
}
