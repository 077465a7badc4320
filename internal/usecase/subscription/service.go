// Package subscription owns plans, quota checks and the billing lifecycle
// driven by Stripe Checkout and webhooks.
package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/simaogato/tradejournal-backend/internal/domain"
	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
)

// Event types handled from the billing provider
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// CheckoutRequest asks the billing provider for a hosted checkout page
type CheckoutRequest struct {
	UserID     uuid.UUID
	Email      string
	Plan       domain.Plan
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// SessionObject is the part of a completed checkout session the service uses
type SessionObject struct {
	ClientReferenceID string
	CustomerID        string
	SubscriptionID    string
	Metadata          map[string]string
}

// SubscriptionObject is the part of a provider subscription the service uses
type SubscriptionObject struct {
	ID               string
	CustomerID       string
	Status           string
	PriceID          string
	CurrentPeriodEnd time.Time
	Metadata         map[string]string
}

// WebhookEvent is a verified, decoded provider event
type WebhookEvent struct {
	ID           string
	Type         string
	Session      *SessionObject
	Subscription *SubscriptionObject
}

// Billing is the payment provider
type Billing interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error)
	// ParseWebhook verifies the signature header and decodes the payload
	ParseWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error)
}

// View is a user's subscription with what it currently allows
type View struct {
	Subscription  *domain.Subscription
	EffectivePlan domain.Plan
	Limits        domain.PlanLimits
	Usage         domain.Usage
}

// SubscriptionService handles plans, quotas and billing
type SubscriptionService struct {
	SubscriptionRepo domain.SubscriptionRepository
	TradeRepo        domain.TradeRepository
	ImportRepo       domain.ImportRepository
	Billing          Billing
	Publisher        domain.EventPublisher
	Failures         domain.FailureReporter
	Clock            clockwork.Clock

	// PriceIDs maps paid plans to the provider's price IDs
	PriceIDs   map[domain.Plan]string
	SuccessURL string
	CancelURL  string
}

// NewSubscriptionService creates a new SubscriptionService instance
func NewSubscriptionService(subRepo domain.SubscriptionRepository, tradeRepo domain.TradeRepository, importRepo domain.ImportRepository, clock clockwork.Clock) *SubscriptionService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SubscriptionService{
		SubscriptionRepo: subRepo,
		TradeRepo:        tradeRepo,
		ImportRepo:       importRepo,
		Clock:            clock,
		PriceIDs:         map[domain.Plan]string{},
	}
}

// MonthStart is the first instant of now's UTC calendar month
func MonthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func (s *SubscriptionService) load(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	sub, err := s.SubscriptionRepo.Get(ctx, userID)
	if err != nil {
		if apperrors.IsType(err, apperrors.TypeNotFound) {
			return domain.DefaultSubscription(userID), nil
		}
		return nil, err
	}
	return sub, nil
}

// Plan returns the user's effective plan
func (s *SubscriptionService) Plan(ctx context.Context, userID uuid.UUID) (domain.Plan, error) {
	sub, err := s.load(ctx, userID)
	if err != nil {
		return "", err
	}
	return sub.EffectivePlan(s.Clock.Now()), nil
}

// Get returns the subscription, its effective plan and this month's usage
func (s *SubscriptionService) Get(ctx context.Context, userID uuid.UUID) (*View, error) {
	sub, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.Clock.Now()
	plan := sub.EffectivePlan(now)
	since := MonthStart(now)

	trades, err := s.TradeRepo.CountCreatedSince(ctx, userID, since)
	if err != nil {
		return nil, err
	}
	screenshots, err := s.ImportRepo.CountSince(ctx, userID, domain.ImportKindScreenshot, since)
	if err != nil {
		return nil, err
	}

	return &View{
		Subscription:  sub,
		EffectivePlan: plan,
		Limits:        plan.Limits(),
		Usage: domain.Usage{
			TradesThisMonth:            trades,
			ScreenshotImportsThisMonth: screenshots,
		},
	}, nil
}

func limitError(what string, limit int, plan domain.Plan) error {
	return apperrors.ForbiddenError("monthly "+what+" limit reached on the "+string(plan)+" plan").
		WithField("limit", limit).
		WithField("plan", plan)
}

// CheckTradeQuota fails with forbidden once the month's trade quota is used up
func (s *SubscriptionService) CheckTradeQuota(ctx context.Context, userID uuid.UUID) error {
	return s.CheckTradeQuotaFor(ctx, userID, 1)
}

// CheckTradeQuotaFor checks that n more trades fit in this month's quota
func (s *SubscriptionService) CheckTradeQuotaFor(ctx context.Context, userID uuid.UUID, n int) error {
	plan, err := s.Plan(ctx, userID)
	if err != nil {
		return err
	}
	limit := plan.Limits().TradesPerMonth
	if limit == domain.Unlimited {
		return nil
	}
	used, err := s.TradeRepo.CountCreatedSince(ctx, userID, MonthStart(s.Clock.Now()))
	if err != nil {
		return err
	}
	if used+n > limit {
		return limitError("trade", limit, plan)
	}
	return nil
}

// CheckScreenshotQuota fails with forbidden once the month's screenshot imports are used up
func (s *SubscriptionService) CheckScreenshotQuota(ctx context.Context, userID uuid.UUID) error {
	plan, err := s.Plan(ctx, userID)
	if err != nil {
		return err
	}
	limit := plan.Limits().ScreenshotImportsPerMonth
	if limit == domain.Unlimited {
		return nil
	}
	used, err := s.ImportRepo.CountSince(ctx, userID, domain.ImportKindScreenshot, MonthStart(s.Clock.Now()))
	if err != nil {
		return err
	}
	if used >= limit {
		return limitError("screenshot import", limit, plan)
	}
	return nil
}

// CSVRowLimit is the number of rows a single CSV import may hold
func (s *SubscriptionService) CSVRowLimit(ctx context.Context, userID uuid.UUID) (int, error) {
	plan, err := s.Plan(ctx, userID)
	if err != nil {
		return 0, err
	}
	return plan.Limits().CSVRowsPerImport, nil
}

// HasAdvancedAnalytics reports whether the plan includes advanced analytics
func (s *SubscriptionService) HasAdvancedAnalytics(ctx context.Context, userID uuid.UUID) (bool, error) {
	plan, err := s.Plan(ctx, userID)
	if err != nil {
		return false, err
	}
	return plan.Limits().AdvancedAnalytics, nil
}

// RequireAdvancedAnalytics fails with forbidden on plans without advanced analytics
func (s *SubscriptionService) RequireAdvancedAnalytics(ctx context.Context, userID uuid.UUID) error {
	plan, err := s.Plan(ctx, userID)
	if err != nil {
		return err
	}
	if !plan.Limits().AdvancedAnalytics {
		return apperrors.ForbiddenError("advanced analytics require a PRO or ELITE plan").WithField("plan", plan)
	}
	return nil
}
