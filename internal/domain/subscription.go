package domain

import (
	"time"

	"github.com/google/uuid"
)

// Plan is a subscription tier
type Plan string

const (
	PlanFree  Plan = "FREE"
	PlanPro   Plan = "PRO"
	PlanElite Plan = "ELITE"
)

// SubscriptionStatus mirrors the billing provider's subscription state
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "ACTIVE"
	SubscriptionTrialing SubscriptionStatus = "TRIALING"
	SubscriptionPastDue  SubscriptionStatus = "PAST_DUE"
	SubscriptionCanceled SubscriptionStatus = "CANCELED"
)

// Unlimited marks a limit that does not apply
const Unlimited = -1

// PlanLimits describes what a plan allows per calendar month
type PlanLimits struct {
	TradesPerMonth            int
	ScreenshotImportsPerMonth int
	CSVRowsPerImport          int
	AdvancedAnalytics         bool
}

var planLimits = map[Plan]PlanLimits{
	PlanFree:  {TradesPerMonth: 50, ScreenshotImportsPerMonth: 3, CSVRowsPerImport: 200, AdvancedAnalytics: false},
	PlanPro:   {TradesPerMonth: Unlimited, ScreenshotImportsPerMonth: 100, CSVRowsPerImport: 5000, AdvancedAnalytics: true},
	PlanElite: {TradesPerMonth: Unlimited, ScreenshotImportsPerMonth: 1000, CSVRowsPerImport: 20000, AdvancedAnalytics: true},
}

// Limits returns the limits of a plan; unknown plans get FREE limits.
func (p Plan) Limits() PlanLimits {
	if l, ok := planLimits[p]; ok {
		return l
	}
	return planLimits[PlanFree]
}

// Valid reports whether p is a known plan
func (p Plan) Valid() bool {
	_, ok := planLimits[p]
	return ok
}

// Subscription is a user's billing state
type Subscription struct {
	UserID               uuid.UUID
	Plan                 Plan
	Status               SubscriptionStatus
	StripeCustomerID     string
	StripeSubscriptionID string
	CurrentPeriodEnd     *time.Time
	UpdatedAt            time.Time
}

// DefaultSubscription is the state of a user who never subscribed
func DefaultSubscription(userID uuid.UUID) *Subscription {
	return &Subscription{
		UserID: userID,
		Plan:   PlanFree,
		Status: SubscriptionActive,
	}
}

// EffectivePlan is the plan whose limits apply at now.
// Lapsed, canceled or expired subscriptions fall back to FREE.
func (s *Subscription) EffectivePlan(now time.Time) Plan {
	if s == nil {
		return PlanFree
	}
	if s.Status != SubscriptionActive && s.Status != SubscriptionTrialing {
		return PlanFree
	}
	if s.CurrentPeriodEnd != nil && !now.Before(*s.CurrentPeriodEnd) {
		return PlanFree
	}
	if !s.Plan.Valid() {
		return PlanFree
	}
	return s.Plan
}

// Usage counts metered actions in the current month
type Usage struct {
	TradesThisMonth            int
	ScreenshotImportsThisMonth int
}
