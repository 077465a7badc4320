package domain

import (
	"github.com/google/uuid"

	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
)

// WidgetKind identifies a dashboard widget
type WidgetKind string

const (
	WidgetPnLSummary      WidgetKind = "PNL_SUMMARY"
	WidgetEquityCurve     WidgetKind = "EQUITY_CURVE"
	WidgetCalendar        WidgetKind = "CALENDAR"
	WidgetWinRate         WidgetKind = "WIN_RATE"
	WidgetStreak          WidgetKind = "STREAK"
	WidgetGoals           WidgetKind = "GOALS"
	WidgetFeeBreakdown    WidgetKind = "FEE_BREAKDOWN"
	WidgetSymbolBreakdown WidgetKind = "SYMBOL_BREAKDOWN"
	WidgetOpenPositions   WidgetKind = "OPEN_POSITIONS"
)

const MaxWidgets = 20

var widgetKinds = map[WidgetKind]bool{
	WidgetPnLSummary: true, WidgetEquityCurve: true, WidgetCalendar: true,
	WidgetWinRate: true, WidgetStreak: true, WidgetGoals: true,
	WidgetFeeBreakdown: true, WidgetSymbolBreakdown: true, WidgetOpenPositions: true,
}

// Widget is one tile of a user's dashboard layout
type Widget struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Kind     WidgetKind
	Position int
	Width    int // grid columns, 1..4
	Settings map[string]any
}

// Validate ensures the widget adheres to domain rules
func (w *Widget) Validate() error {
	if !widgetKinds[w.Kind] {
		return apperrors.ValidationErrorf("unknown widget kind %q", w.Kind)
	}
	if w.Width < 1 || w.Width > 4 {
		return apperrors.ValidationError("widget width must be between 1 and 4")
	}
	if w.Position < 0 {
		return apperrors.ValidationError("widget position must be non-negative")
	}
	return nil
}

// ValidateLayout checks a full layout: widget rules, size and unique kinds.
func ValidateLayout(widgets []Widget) error {
	if len(widgets) > MaxWidgets {
		return apperrors.ValidationErrorf("a layout holds at most %d widgets", MaxWidgets)
	}
	seen := make(map[WidgetKind]bool, len(widgets))
	for i := range widgets {
		if err := widgets[i].Validate(); err != nil {
			return err
		}
		if seen[widgets[i].Kind] {
			return apperrors.ValidationErrorf("widget %s appears more than once", widgets[i].Kind)
		}
		seen[widgets[i].Kind] = true
	}
	return nil
}
