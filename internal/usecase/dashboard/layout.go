package dashboard

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/simaogato/tradejournal-backend/internal/domain"
)

// DefaultWidget describes a widget every new dashboard starts with
type DefaultWidget struct {
	Kind  domain.WidgetKind
	Width int
}

// DefaultWidgets is the layout seeded for users who never saved one
var DefaultWidgets = []DefaultWidget{
	{Kind: domain.WidgetPnLSummary, Width: 4},
	{Kind: domain.WidgetEquityCurve, Width: 2},
	{Kind: domain.WidgetCalendar, Width: 2},
	{Kind: domain.WidgetWinRate, Width: 1},
	{Kind: domain.WidgetStreak, Width: 1},
	{Kind: domain.WidgetGoals, Width: 2},
}

// DefaultLayout builds the default widgets for a user
func DefaultLayout(userID uuid.UUID) []domain.Widget {
	widgets := make([]domain.Widget, len(DefaultWidgets))
	for i, d := range DefaultWidgets {
		widgets[i] = domain.Widget{
			ID:       uuid.New(),
			UserID:   userID,
			Kind:     d.Kind,
			Position: i,
			Width:    d.Width,
			Settings: map[string]any{},
		}
	}
	return widgets
}

// Layout returns the user's widgets, seeding the default layout on first use
func (s *DashboardService) Layout(ctx context.Context, userID uuid.UUID) ([]domain.Widget, error) {
	widgets, err := s.WidgetRepo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(widgets) > 0 {
		return widgets, nil
	}

	widgets = DefaultLayout(userID)
	if err := domain.ValidateLayout(widgets); err != nil {
		return nil, err
	}
	if err := s.WidgetRepo.ReplaceLayout(ctx, userID, widgets); err != nil {
		return nil, err
	}
	return widgets, nil
}

// SaveLayout replaces the user's layout. Widgets are ordered by their
// submitted position and renumbered from zero.
func (s *DashboardService) SaveLayout(ctx context.Context, userID uuid.UUID, widgets []domain.Widget) ([]domain.Widget, error) {
	out := make([]domain.Widget, len(widgets))
	copy(out, widgets)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })

	for i := range out {
		if out[i].ID == uuid.Nil {
			out[i].ID = uuid.New()
		}
		out[i].UserID = userID
		out[i].Position = i
		if out[i].Settings == nil {
			out[i].Settings = map[string]any{}
		}
	}
	if err := domain.ValidateLayout(out); err != nil {
		return nil, err
	}
	if err := s.WidgetRepo.ReplaceLayout(ctx, userID, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ResetLayout restores the default layout
func (s *DashboardService) ResetLayout(ctx context.Context, userID uuid.UUID) ([]domain.Widget, error) {
	widgets := DefaultLayout(userID)
	if err := s.WidgetRepo.ReplaceLayout(ctx, userID, widgets); err != nil {
		return nil, err
	}
	return widgets, nil
}
