package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/tradejournal-backend/internal/domain"
	"github.com/simaogato/tradejournal-backend/internal/mocks"
	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
	"github.com/simaogato/tradejournal-backend/internal/usecase/analytics"
	"github.com/simaogato/tradejournal-backend/internal/usecase/progress"
	"github.com/simaogato/tradejournal-backend/internal/usecase/trade"
)

var now = time.Date(2024, 6, 20, 12, 0, 0, 0, time.UTC)

type stubTrades struct {
	trades  []*domain.Trade
	capital decimal.Decimal
	err     error
}

func (s *stubTrades) Trades(ctx context.Context, userID uuid.UUID, filter analytics.ReportFilter) ([]*domain.Trade, error) {
	return s.trades, s.err
}

func (s *stubTrades) StartingCapital(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	return s.capital, nil
}

type stubProgress struct{ snap *progress.Snapshot }

func (s stubProgress) Get(ctx context.Context, userID uuid.UUID) (*progress.Snapshot, error) {
	return s.snap, nil
}

type stubGoals struct{ goals []domain.GoalProgress }

func (s stubGoals) Progress(ctx context.Context, userID uuid.UUID) ([]domain.GoalProgress, error) {
	return s.goals, nil
}

type stubPositions struct{ view *trade.OpenPositionsView }

func (s stubPositions) OpenPositions(ctx context.Context, userID uuid.UUID) (*trade.OpenPositionsView, error) {
	return s.view, nil
}

func closedTrade(pnl int64, closedAt time.Time) *domain.Trade {
	exit := decimal.NewFromInt(100 + pnl)
	return &domain.Trade{
		ID:         uuid.New(),
		Symbol:     "ETHUSDT",
		Side:       domain.SideLong,
		Status:     domain.TradeStatusClosed,
		EntryPrice: decimal.NewFromInt(100),
		ExitPrice:  &exit,
		Quantity:   decimal.NewFromInt(1),
		Leverage:   decimal.NewFromInt(1),
		OpenedAt:   closedAt.Add(-time.Hour),
		ClosedAt:   &closedAt,
	}
}

func TestLayout_SeedsDefaultsOnFirstUse(t *testing.T) {
	repo := new(mocks.WidgetRepository)
	svc := NewDashboardService(repo, nil, nil, nil, nil, nil)
	ctx := context.Background()
	userID := uuid.New()

	repo.On("List", ctx, userID).Return([]domain.Widget{}, nil)
	repo.On("ReplaceLayout", ctx, userID, mock.MatchedBy(func(w []domain.Widget) bool {
		return len(w) == len(DefaultWidgets)
	})).Return(nil)

	widgets, err := svc.Layout(ctx, userID)

	require.NoError(t, err)
	require.Len(t, widgets, len(DefaultWidgets))
	assert.Equal(t, domain.WidgetPnLSummary, widgets[0].Kind)
	for i, w := range widgets {
		assert.Equal(t, i, w.Position)
		assert.Equal(t, userID, w.UserID)
	}
	repo.AssertExpectations(t)
}

func TestLayout_ReturnsSavedLayout(t *testing.T) {
	repo := new(mocks.WidgetRepository)
	svc := NewDashboardService(repo, nil, nil, nil, nil, nil)
	ctx := context.Background()
	userID := uuid.New()
	saved := []domain.Widget{{Kind: domain.WidgetCalendar, Width: 4}}
	repo.On("List", ctx, userID).Return(saved, nil)

	widgets, err := svc.Layout(ctx, userID)

	require.NoError(t, err)
	assert.Equal(t, saved, widgets)
	repo.AssertNotCalled(t, "ReplaceLayout", mock.Anything, mock.Anything, mock.Anything)
}

func TestSaveLayout_RenumbersByPosition(t *testing.T) {
	repo := new(mocks.WidgetRepository)
	svc := NewDashboardService(repo, nil, nil, nil, nil, nil)
	ctx := context.Background()
	userID := uuid.New()
	repo.On("ReplaceLayout", ctx, userID, mock.Anything).Return(nil)

	widgets, err := svc.SaveLayout(ctx, userID, []domain.Widget{
		{Kind: domain.WidgetGoals, Position: 7, Width: 2},
		{Kind: domain.WidgetFeeBreakdown, Position: 3, Width: 1},
	})

	require.NoError(t, err)
	require.Len(t, widgets, 2)
	assert.Equal(t, domain.WidgetFeeBreakdown, widgets[0].Kind)
	assert.Equal(t, 0, widgets[0].Position)
	assert.Equal(t, domain.WidgetGoals, widgets[1].Kind)
	assert.Equal(t, 1, widgets[1].Position)
	assert.NotEqual(t, uuid.Nil, widgets[1].ID)
}

func TestSaveLayout_RejectsDuplicates(t *testing.T) {
	repo := new(mocks.WidgetRepository)
	svc := NewDashboardService(repo, nil, nil, nil, nil, nil)

	_, err := svc.SaveLayout(context.Background(), uuid.New(), []domain.Widget{
		{Kind: domain.WidgetGoals, Width: 2},
		{Kind: domain.WidgetGoals, Width: 1},
	})

	assert.True(t, apperrors.IsType(err, apperrors.TypeValidation))
	repo.AssertNotCalled(t, "ReplaceLayout", mock.Anything, mock.Anything, mock.Anything)
}

func TestOverview(t *testing.T) {
	repo := new(mocks.WidgetRepository)
	ctx := context.Background()
	userID := uuid.New()
	repo.On("List", mock.Anything, userID).Return([]domain.Widget{{Kind: domain.WidgetStreak, Width: 1}}, nil)

	trades := &stubTrades{
		trades: []*domain.Trade{
			closedTrade(40, time.Date(2024, 5, 30, 10, 0, 0, 0, time.UTC)),
			closedTrade(-10, time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)),
			closedTrade(25, time.Date(2024, 6, 18, 10, 0, 0, 0, time.UTC)),
		},
		capital: decimal.NewFromInt(1000),
	}
	snap := &progress.Snapshot{ActiveStreak: 4}
	positions := &trade.OpenPositionsView{PricesStale: true}

	svc := NewDashboardService(repo, trades, stubProgress{snap}, stubGoals{[]domain.GoalProgress{{}}}, stubPositions{positions}, clockwork.NewFakeClockAt(now))

	ov, err := svc.Overview(ctx, userID, nil)

	require.NoError(t, err)
	assert.Len(t, ov.Layout, 1)
	assert.Equal(t, 3, ov.Summary.ClosedTrades)
	assert.True(t, ov.Summary.NetPnL.Equal(decimal.NewFromInt(55)))
	assert.Equal(t, 2, ov.MonthSummary.ClosedTrades)
	assert.True(t, ov.MonthSummary.NetPnL.Equal(decimal.NewFromInt(15)))
	assert.Len(t, ov.MonthCalendar, 2)
	require.Len(t, ov.EquityCurve, 3)
	assert.True(t, ov.EquityCurve[2].Equity.Equal(decimal.NewFromInt(1055)))
	assert.Same(t, snap, ov.Progress)
	assert.Len(t, ov.Goals, 1)
	assert.True(t, ov.OpenPositions.PricesStale)
}

func TestOverview_FailsWhenASectionFails(t *testing.T) {
	repo := new(mocks.WidgetRepository)
	userID := uuid.New()
	repo.On("List", mock.Anything, userID).Return([]domain.Widget{{Kind: domain.WidgetStreak, Width: 1}}, nil)
	trades := &stubTrades{err: errors.New("db down")}
	svc := NewDashboardService(repo, trades, nil, nil, nil, clockwork.NewFakeClockAt(now))

	_, err := svc.Overview(context.Background(), userID, time.UTC)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load trades")
}
