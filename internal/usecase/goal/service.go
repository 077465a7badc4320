// Package goal manages user goals and evaluates them against the trades
// closed in each goal's current period.
package goal

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/simaogato/tradejournal-backend/internal/domain"
	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
	"github.com/simaogato/tradejournal-backend/internal/usecase/progress"
)

// MaxGoals caps how many goals a user may keep
const MaxGoals = 20

var hundred = decimal.NewFromInt(100)

// AchievementRecorder awards XP when a goal is reached
type AchievementRecorder interface {
	RecordGoalAchieved(ctx context.Context, userID, goalID uuid.UUID) (*progress.AwardResult, error)
}

// CreateGoalInput is a new goal as entered by the user
type CreateGoalInput struct {
	UserID uuid.UUID
	Kind   domain.GoalKind
	Target decimal.Decimal
	Period domain.GoalPeriod
	Title  string
}

// GoalService handles goal business logic
type GoalService struct {
	GoalRepo  domain.GoalRepository
	TradeRepo domain.TradeRepository
	XP        AchievementRecorder
	Publisher domain.EventPublisher
	Failures  domain.FailureReporter
	Clock     clockwork.Clock
}

// NewGoalService creates a new GoalService instance
func NewGoalService(goalRepo domain.GoalRepository, tradeRepo domain.TradeRepository, clock clockwork.Clock) *GoalService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &GoalService{
		GoalRepo:  goalRepo,
		TradeRepo: tradeRepo,
		Clock:     clock,
	}
}

// Create validates and stores a new goal
func (s *GoalService) Create(ctx context.Context, in CreateGoalInput) (*domain.Goal, error) {
	g := &domain.Goal{
		ID:        uuid.New(),
		UserID:    in.UserID,
		Kind:      domain.GoalKind(strings.ToUpper(strings.TrimSpace(string(in.Kind)))),
		Target:    in.Target,
		Period:    domain.GoalPeriod(strings.ToUpper(strings.TrimSpace(string(in.Period)))),
		Title:     strings.TrimSpace(in.Title),
		CreatedAt: s.Clock.Now().UTC(),
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.GoalRepo.List(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if len(existing) >= MaxGoals {
		return nil, apperrors.ValidationErrorf("a user can keep at most %d goals", MaxGoals)
	}

	if err := s.GoalRepo.Create(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// List returns the user's goals
func (s *GoalService) List(ctx context.Context, userID uuid.UUID) ([]*domain.Goal, error) {
	return s.GoalRepo.List(ctx, userID)
}

// Delete removes a goal
func (s *GoalService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return s.GoalRepo.Delete(ctx, userID, id)
}

// Progress evaluates the user's goals at the current time
func (s *GoalService) Progress(ctx context.Context, userID uuid.UUID) ([]domain.GoalProgress, error) {
	return s.Evaluate(ctx, userID, s.Clock.Now())
}

// Evaluate computes every goal's progress in the period containing now and
// records achievements reached since the last evaluation.
//
// MAX_LOSS_DAYS can only be judged once a period is over, so its
// achievement is decided on the previous, completed period while the
// reported progress covers the current one.
func (s *GoalService) Evaluate(ctx context.Context, userID uuid.UUID, now time.Time) ([]domain.GoalProgress, error) {
	goals, err := s.GoalRepo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(goals) == 0 {
		return []domain.GoalProgress{}, nil
	}

	trades, err := s.TradeRepo.ListRange(ctx, userID, nil, nil)
	if err != nil {
		return nil, err
	}

	results := make([]domain.GoalProgress, 0, len(goals))
	for _, g := range goals {
		start, end := g.Window(now)
		p := Measure(g, trades, start, end)

		markStart, markAt, reached := start, now.UTC(), p.Achieved
		if g.Kind == domain.GoalKindMaxLossDays {
			prevStart, _ := g.Window(start.Add(-time.Nanosecond))
			prev := Measure(g, trades, prevStart, start)
			markStart, markAt = prevStart, start
			reached = prev.Achieved && g.CreatedAt.Before(prevStart)
		}

		if reached && !alreadyMarked(g, markStart) {
			newly, err := s.GoalRepo.MarkAchieved(ctx, g.ID, markStart, markAt)
			if err != nil {
				return nil, err
			}
			if newly {
				p.NewlyReached = true
				p.Goal.AchievedAt = &markAt
				s.reward(ctx, g)
			}
		}
		results = append(results, p)
	}
	return results, nil
}

func alreadyMarked(g *domain.Goal, periodStart time.Time) bool {
	return g.AchievedAt != nil && !g.AchievedAt.Before(periodStart)
}

func (s *GoalService) reward(ctx context.Context, g *domain.Goal) {
	if s.XP != nil {
		if _, err := s.XP.RecordGoalAchieved(ctx, g.UserID, g.ID); err != nil {
			s.fail(ctx, "goal.xp", err)
		}
	}
	if s.Publisher != nil {
		payload := map[string]any{"goal_id": g.ID, "kind": g.Kind, "title": g.Title}
		ev, err := domain.NewEvent(domain.EventGoalAchieved, g.UserID, payload, s.Clock.Now())
		if err == nil {
			err = s.Publisher.Publish(ctx, ev)
		}
		if err != nil {
			s.fail(ctx, "goal.publish", err)
		}
	}
}

func (s *GoalService) fail(ctx context.Context, op string, err error) {
	if s.Failures != nil {
		s.Failures.SideEffectFailed(ctx, op, err)
	}
}

// Measure computes a goal's progress over trades in [start, end).
// Closed-trade metrics use ClosedAt; TRADE_COUNT counts trades opened in the window.
func Measure(g *domain.Goal, trades []*domain.Trade, start, end time.Time) domain.GoalProgress {
	in := func(t time.Time) bool { return !t.Before(start) && t.Before(end) }

	var (
		net          = decimal.Zero
		closed, wins int
		opened       int
		dayPnL       = map[time.Time]decimal.Decimal{}
	)
	for _, t := range trades {
		if in(t.OpenedAt) {
			opened++
		}
		if !t.IsClosed() || t.ClosedAt == nil || !in(*t.ClosedAt) {
			continue
		}
		closed++
		pnl := t.NetPnL()
		net = net.Add(pnl)
		if t.Outcome() == domain.OutcomeWin {
			wins++
		}
		c := t.ClosedAt.UTC()
		day := time.Date(c.Year(), c.Month(), c.Day(), 0, 0, 0, 0, time.UTC)
		dayPnL[day] = dayPnL[day].Add(pnl)
	}

	p := domain.GoalProgress{Goal: *g, PeriodStart: start, PeriodEnd: end}

	switch g.Kind {
	case domain.GoalKindNetPnL:
		p.Current = net
		p.Percent = percentOf(net, g.Target)
		p.Achieved = net.GreaterThanOrEqual(g.Target)
	case domain.GoalKindWinRate:
		p.Current = decimal.Zero
		if closed > 0 {
			p.Current = decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(closed))).Mul(hundred).Round(2)
		}
		p.Percent = percentOf(p.Current, g.Target)
		p.Achieved = closed > 0 && p.Current.GreaterThanOrEqual(g.Target)
	case domain.GoalKindTradeCount:
		p.Current = decimal.NewFromInt(int64(opened))
		p.Percent = percentOf(p.Current, g.Target)
		p.Achieved = p.Current.GreaterThanOrEqual(g.Target)
	case domain.GoalKindMaxLossDays:
		lossDays := 0
		for _, v := range dayPnL {
			if v.IsNegative() {
				lossDays++
			}
		}
		p.Current = decimal.NewFromInt(int64(lossDays))
		p.Percent = budgetLeft(p.Current, g.Target)
		p.Achieved = p.Current.LessThanOrEqual(g.Target)
	}
	return p
}

func percentOf(current, target decimal.Decimal) decimal.Decimal {
	if !target.IsPositive() {
		return decimal.Zero
	}
	return clampPct(current.Div(target).Mul(hundred))
}

// budgetLeft is the share of the allowed loss days not yet used
func budgetLeft(used, allowed decimal.Decimal) decimal.Decimal {
	if allowed.IsZero() {
		if used.IsZero() {
			return hundred
		}
		return decimal.Zero
	}
	return clampPct(allowed.Sub(used).Div(allowed).Mul(hundred))
}

func clampPct(v decimal.Decimal) decimal.Decimal {
	switch {
	case v.IsNegative():
		return decimal.Zero
	case v.GreaterThan(hundred):
		return hundred
	}
	return v.Round(2)
}
