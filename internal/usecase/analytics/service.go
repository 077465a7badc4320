package analytics

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/tradejournal-backend/internal/domain"
	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
	"github.com/simaogato/tradejournal-backend/internal/usecase/fees"
)

// PlanChecker reports whether the user's plan includes advanced analytics
type PlanChecker interface {
	HasAdvancedAnalytics(ctx context.Context, userID uuid.UUID) (bool, error)
}

// ReportFilter narrows a report; nil bounds are open, nil Location means UTC
type ReportFilter struct {
	From     *time.Time
	To       *time.Time
	Symbol   string
	Location *time.Location
}

// Advanced holds the breakdowns reserved for paid plans
type Advanced struct {
	ByWeekday  []Bucket
	ByHour     []Bucket
	BySetup    []Bucket
	ByTag      []Bucket
	RMultiples []decimal.Decimal
	// AverageRMultiple is nil when no closed trade has a stop
	AverageRMultiple *decimal.Decimal
}

// Report is the full analytics view for a user
type Report struct {
	StartingCapital decimal.Decimal
	Summary         Summary
	EquityCurve     []EquityPoint
	Calendar        []CalendarDay
	BySymbol        []Bucket
	BySide          []Bucket
	Fees            fees.FeeBreakdown
	Advanced        *Advanced
	// AdvancedLocked is set when the plan does not include Advanced
	AdvancedLocked bool
}

// AnalyticsService assembles reports from the journal
type AnalyticsService struct {
	TradeRepo   domain.TradeRepository
	CapitalRepo domain.CapitalRepository
	Plans       PlanChecker
}

// NewAnalyticsService creates a new AnalyticsService instance
func NewAnalyticsService(tradeRepo domain.TradeRepository, capitalRepo domain.CapitalRepository, plans PlanChecker) *AnalyticsService {
	return &AnalyticsService{
		TradeRepo:   tradeRepo,
		CapitalRepo: capitalRepo,
		Plans:       plans,
	}
}

// Trades loads the trades a filter selects
func (s *AnalyticsService) Trades(ctx context.Context, userID uuid.UUID, filter ReportFilter) ([]*domain.Trade, error) {
	trades, err := s.TradeRepo.ListRange(ctx, userID, filter.From, filter.To)
	if err != nil {
		return nil, err
	}
	symbol := strings.ToUpper(strings.TrimSpace(filter.Symbol))
	if symbol == "" {
		return trades, nil
	}
	out := trades[:0:0]
	for _, t := range trades {
		if t.Symbol == symbol {
			out = append(out, t)
		}
	}
	return out, nil
}

// StartingCapital is the user's net deposits, the base of the equity curve
func (s *AnalyticsService) StartingCapital(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	if s.CapitalRepo == nil {
		return decimal.Zero, nil
	}
	logs, err := s.CapitalRepo.List(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return domain.NetCapital(logs), nil
}

// Report builds the analytics report. Advanced breakdowns are included only
// when the user's plan allows them.
func (s *AnalyticsService) Report(ctx context.Context, userID uuid.UUID, filter ReportFilter) (*Report, error) {
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, apperrors.ValidationError("from must be before to")
	}
	loc := filter.Location
	if loc == nil {
		loc = time.UTC
	}

	trades, err := s.Trades(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	capital, err := s.StartingCapital(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := &Report{
		StartingCapital: capital,
		Summary:         Summarize(trades, capital),
		EquityCurve:     EquityCurve(trades, capital),
		Calendar:        Calendar(trades, loc),
		BySymbol:        BySymbol(trades),
		BySide:          BySide(trades),
		Fees:            fees.Breakdown(trades),
	}

	advanced := true
	if s.Plans != nil {
		if advanced, err = s.Plans.HasAdvancedAnalytics(ctx, userID); err != nil {
			return nil, err
		}
	}
	if !advanced {
		report.AdvancedLocked = true
		return report, nil
	}

	report.Advanced = &Advanced{
		ByWeekday:  ByWeekday(trades, loc),
		ByHour:     ByHour(trades, loc),
		BySetup:    BySetup(trades),
		ByTag:      ByTag(trades),
		RMultiples: RMultiples(trades),

		AverageRMultiple: AverageRMultiple(trades),
	}
	return report, nil
}
