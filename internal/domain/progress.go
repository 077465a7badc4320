package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tier is the cosmetic rank derived from level
type Tier string

const (
	TierBronze   Tier = "BRONZE"
	TierSilver   Tier = "SILVER"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
	TierDiamond  Tier = "DIAMOND"
	TierLegend   Tier = "LEGEND"
)

// XPReason names what earned an XP award
type XPReason string

const (
	XPTradeLogged    XPReason = "TRADE_LOGGED"
	XPTradeJournaled XPReason = "TRADE_JOURNALED"
	XPTradeTagged    XPReason = "TRADE_TAGGED"
	XPTradeClosed    XPReason = "TRADE_CLOSED"
	XPImportRow      XPReason = "IMPORT_ROW"
	XPGoalAchieved   XPReason = "GOAL_ACHIEVED"
	XPStreakBonus    XPReason = "STREAK_BONUS"
)

// UserProgress is the gamification state of a user
type UserProgress struct {
	UserID        uuid.UUID
	XP            int
	Level         int
	Tier          Tier
	CurrentStreak int
	LongestStreak int
	LastActiveDay *time.Time // UTC midnight of the last active day
	UpdatedAt     time.Time
}

// NewUserProgress is the starting state for a user
func NewUserProgress(userID uuid.UUID) *UserProgress {
	return &UserProgress{
		UserID: userID,
		Level:  1,
		Tier:   TierBronze,
	}
}

// XPEvent is an append-only ledger row of awarded XP
type XPEvent struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Reason    XPReason
	Amount    int
	RefID     *uuid.UUID
	CreatedAt time.Time
}
