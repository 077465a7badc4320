package progress

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/simaogato/tradejournal-backend/internal/domain"
	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
)

// Observer is notified of every XP ledger row that was written
type Observer interface {
	XPAwarded(reason domain.XPReason, amount int)
}

// AwardResult describes what an award changed
type AwardResult struct {
	Awarded     int // total XP granted, streak bonus included
	StreakBonus int
	Progress    *domain.UserProgress
	LeveledUp   bool
	TierChanged bool
}

// Snapshot is the progress view returned to clients
// ActiveStreak is zero once the last active day is before yesterday.
type Snapshot struct {
	Progress         *domain.UserProgress
	ActiveStreak     int
	CurrentLevelXP   int
	NextLevelXP      int
	LevelProgressPct int
	EarnedToday      int
	DailyXPRemaining int
}

// ProgressService handles XP awards and streak tracking
type ProgressService struct {
	ProgressRepo domain.ProgressRepository
	Publisher    domain.EventPublisher
	Observer     Observer
	Failures     domain.FailureReporter
	Clock        clockwork.Clock
}

// NewProgressService creates a new ProgressService instance
func NewProgressService(progressRepo domain.ProgressRepository, publisher domain.EventPublisher, clock clockwork.Clock) *ProgressService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ProgressService{
		ProgressRepo: progressRepo,
		Publisher:    publisher,
		Clock:        clock,
	}
}

func (s *ProgressService) load(ctx context.Context, userID uuid.UUID) (*domain.UserProgress, error) {
	p, err := s.ProgressRepo.Get(ctx, userID)
	if err != nil {
		if apperrors.IsType(err, apperrors.TypeNotFound) {
			return domain.NewUserProgress(userID), nil
		}
		return nil, err
	}
	return p, nil
}

// Award grants amount XP for reason, subject to the daily cap (goal XP is
// exempt), and advances the user's streak. The first activity of a day that
// extends a streak also earns the streak bonus. Goal XP is a reward, not
// activity, so it leaves the streak alone.
func (s *ProgressService) Award(ctx context.Context, userID uuid.UUID, reason domain.XPReason, amount int, refID *uuid.UUID) (*AwardResult, error) {
	if userID == uuid.Nil {
		return nil, apperrors.ValidationError("user id is required")
	}
	if amount < 0 {
		return nil, apperrors.ValidationError("xp amount cannot be negative")
	}

	now := s.Clock.Now().UTC()
	today := Day(now)
	result := &AwardResult{}
	var (
		prevLevel int
		prevTier  domain.Tier
		events    []*domain.XPEvent
	)

	p, err := s.ProgressRepo.Update(ctx, userID, func(p *domain.UserProgress, ledger domain.XPLedger) ([]*domain.XPEvent, error) {
		prevLevel, prevTier = p.Level, p.Tier
		*result = AwardResult{}
		events = nil

		earned, err := ledger.SumSince(ctx, userID, today, domain.XPGoalAchieved)
		if err != nil {
			return nil, err
		}

		granted := amount
		if reason != domain.XPGoalAchieved {
			granted = capped(amount, earned)
			earned += granted
		}
		if granted > 0 {
			events = append(events, apply(p, reason, granted, refID, now))
			result.Awarded = granted
		}

		if reason != domain.XPGoalAchieved {
			newDay := p.LastActiveDay == nil || !Day(*p.LastActiveDay).Equal(today)
			p.CurrentStreak = NextStreak(p.CurrentStreak, p.LastActiveDay, today)
			if p.CurrentStreak > p.LongestStreak {
				p.LongestStreak = p.CurrentStreak
			}
			p.LastActiveDay = &today

			if newDay && p.CurrentStreak > 1 {
				if bonus := capped(StreakBonus(p.CurrentStreak), earned); bonus > 0 {
					events = append(events, apply(p, domain.XPStreakBonus, bonus, nil, now))
					result.StreakBonus = bonus
					result.Awarded += bonus
				}
			}
		}

		p.UpdatedAt = now
		return events, nil
	})
	if err != nil {
		return nil, err
	}

	result.Progress = p
	result.LeveledUp = p.Level > prevLevel
	result.TierChanged = p.Tier != prevTier

	if s.Observer != nil {
		for _, ev := range events {
			s.Observer.XPAwarded(ev.Reason, ev.Amount)
		}
	}

	if result.Awarded > 0 {
		s.publish(ctx, domain.EventXPAwarded, userID, map[string]any{
			"reason": reason,
			"amount": result.Awarded,
			"xp":     p.XP,
			"level":  p.Level,
		})
	}
	if result.LeveledUp {
		s.publish(ctx, domain.EventLevelUp, userID, map[string]any{
			"level": p.Level,
			"tier":  p.Tier,
		})
	}

	return result, nil
}

// apply adds XP to p and returns the ledger row describing it
func apply(p *domain.UserProgress, reason domain.XPReason, amount int, refID *uuid.UUID, now time.Time) *domain.XPEvent {
	p.XP += amount
	p.Level = LevelForXP(p.XP)
	p.Tier = TierForLevel(p.Level)
	return &domain.XPEvent{
		ID:        uuid.New(),
		UserID:    p.UserID,
		Reason:    reason,
		Amount:    amount,
		RefID:     refID,
		CreatedAt: now,
	}
}

// RecordTradeActivity awards the XP a newly logged trade earns
func (s *ProgressService) RecordTradeActivity(ctx context.Context, trade *domain.Trade) (*AwardResult, error) {
	amount := CalculateXP(TradeActivity(trade))
	return s.Award(ctx, trade.UserID, domain.XPTradeLogged, amount, &trade.ID)
}

// RecordTradeClosed awards the XP for closing an open trade
func (s *ProgressService) RecordTradeClosed(ctx context.Context, trade *domain.Trade) (*AwardResult, error) {
	return s.Award(ctx, trade.UserID, domain.XPTradeClosed, XPTradeClosed, &trade.ID)
}

// RecordImport awards XP for imported rows
func (s *ProgressService) RecordImport(ctx context.Context, userID uuid.UUID, rows int) (*AwardResult, error) {
	if rows <= 0 {
		return &AwardResult{}, nil
	}
	amount := CalculateXP(Activity{ImportRows: rows})
	return s.Award(ctx, userID, domain.XPImportRow, amount, nil)
}

// RecordGoalAchieved awards the goal bonus, which ignores the daily cap
func (s *ProgressService) RecordGoalAchieved(ctx context.Context, userID, goalID uuid.UUID) (*AwardResult, error) {
	return s.Award(ctx, userID, domain.XPGoalAchieved, XPGoalAchieved, &goalID)
}

// Get returns the user's progress; users without any activity start at level 1
func (s *ProgressService) Get(ctx context.Context, userID uuid.UUID) (*Snapshot, error) {
	p, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now().UTC()
	today := Day(now)
	earned, err := s.ProgressRepo.SumSince(ctx, userID, today, domain.XPGoalAchieved)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Progress:         p,
		CurrentLevelXP:   XPForLevel(p.Level),
		NextLevelXP:      XPForLevel(p.Level + 1),
		EarnedToday:      earned,
		DailyXPRemaining: capped(DailyXPCap, earned),
	}
	if p.Level >= MaxLevel {
		snap.NextLevelXP = snap.CurrentLevelXP
		snap.LevelProgressPct = 100
	} else if span := snap.NextLevelXP - snap.CurrentLevelXP; span > 0 {
		snap.LevelProgressPct = (p.XP - snap.CurrentLevelXP) * 100 / span
	}
	if p.LastActiveDay != nil && !Day(*p.LastActiveDay).Before(today.AddDate(0, 0, -1)) {
		snap.ActiveStreak = p.CurrentStreak
	}
	return snap, nil
}

// publish is best effort; realtime delivery never fails an award
func (s *ProgressService) publish(ctx context.Context, t domain.EventType, userID uuid.UUID, payload any) {
	if s.Publisher == nil {
		return
	}
	ev, err := domain.NewEvent(t, userID, payload, s.Clock.Now())
	if err == nil {
		err = s.Publisher.Publish(ctx, ev)
	}
	if err != nil && s.Failures != nil {
		s.Failures.SideEffectFailed(ctx, "progress.publish", err)
	}
}
