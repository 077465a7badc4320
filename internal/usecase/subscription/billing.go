package subscription

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/simaogato/tradejournal-backend/internal/domain"
	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
)

// CreateCheckout starts a hosted checkout for a paid plan and returns its URL
func (s *SubscriptionService) CreateCheckout(ctx context.Context, userID uuid.UUID, email string, plan domain.Plan) (string, error) {
	if s.Billing == nil {
		return "", apperrors.InternalError("billing is not configured", nil)
	}
	if plan != domain.PlanPro && plan != domain.PlanElite {
		return "", apperrors.ValidationError("plan must be PRO or ELITE")
	}
	priceID := s.PriceIDs[plan]
	if priceID == "" {
		return "", apperrors.InternalError("no price configured for plan "+string(plan), nil)
	}

	current, err := s.Plan(ctx, userID)
	if err != nil {
		return "", err
	}
	if current == plan {
		return "", apperrors.ConflictError("already subscribed to " + string(plan))
	}

	return s.Billing.CreateCheckoutSession(ctx, CheckoutRequest{
		UserID:     userID,
		Email:      email,
		Plan:       plan,
		PriceID:    priceID,
		SuccessURL: s.SuccessURL,
		CancelURL:  s.CancelURL,
	})
}

// PlanForPrice maps a provider price ID back to a plan
func (s *SubscriptionService) PlanForPrice(priceID string) (domain.Plan, bool) {
	for plan, id := range s.PriceIDs {
		if id != "" && id == priceID {
			return plan, true
		}
	}
	return "", false
}

// StatusFromProvider maps a Stripe subscription status onto ours
func StatusFromProvider(status string) domain.SubscriptionStatus {
	switch status {
	case "active":
		return domain.SubscriptionActive
	case "trialing":
		return domain.SubscriptionTrialing
	case "past_due", "unpaid", "incomplete", "paused":
		return domain.SubscriptionPastDue
	default:
		return domain.SubscriptionCanceled
	}
}

// HandleWebhook verifies and applies a provider event. Unknown event types
// and events for unknown subscriptions are acknowledged without changes.
// Applying the same event twice leaves the same row.
func (s *SubscriptionService) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	if s.Billing == nil {
		return apperrors.InternalError("billing is not configured", nil)
	}
	event, err := s.Billing.ParseWebhook(payload, signatureHeader)
	if err != nil {
		return err
	}

	var sub *domain.Subscription
	switch event.Type {
	case EventCheckoutCompleted:
		sub, err = s.applyCheckout(ctx, event.Session)
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		sub, err = s.applySubscription(ctx, event.Type, event.Subscription)
	default:
		return nil
	}
	if err != nil || sub == nil {
		return err
	}

	sub.UpdatedAt = s.Clock.Now().UTC()
	if err := s.SubscriptionRepo.Upsert(ctx, sub); err != nil {
		return err
	}

	if s.Publisher != nil {
		payload := map[string]any{"plan": sub.Plan, "status": sub.Status}
		ev, err := domain.NewEvent(domain.EventSubscriptionUpdated, sub.UserID, payload, s.Clock.Now())
		if err == nil {
			err = s.Publisher.Publish(ctx, ev)
		}
		if err != nil && s.Failures != nil {
			s.Failures.SideEffectFailed(ctx, "subscription.publish", err)
		}
	}
	return nil
}

func (s *SubscriptionService) applyCheckout(ctx context.Context, session *SessionObject) (*domain.Subscription, error) {
	if session == nil {
		return nil, apperrors.ValidationError("checkout event has no session")
	}
	userID, err := uuid.Parse(session.ClientReferenceID)
	if err != nil {
		return nil, apperrors.ValidationError("checkout session has no valid client reference")
	}
	plan := domain.Plan(strings.ToUpper(session.Metadata["plan"]))
	if plan != domain.PlanPro && plan != domain.PlanElite {
		return nil, apperrors.ValidationErrorf("checkout session has unknown plan %q", session.Metadata["plan"])
	}

	sub, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	sub.Plan = plan
	sub.Status = domain.SubscriptionActive
	sub.StripeCustomerID = session.CustomerID
	sub.StripeSubscriptionID = session.SubscriptionID
	// a period end left over from a lapsed subscription would keep the plan
	// downgraded until the next subscription.updated arrives
	if sub.CurrentPeriodEnd != nil && !s.Clock.Now().Before(*sub.CurrentPeriodEnd) {
		sub.CurrentPeriodEnd = nil
	}
	return sub, nil
}

func (s *SubscriptionService) applySubscription(ctx context.Context, eventType string, obj *SubscriptionObject) (*domain.Subscription, error) {
	if obj == nil || obj.ID == "" {
		return nil, apperrors.ValidationError("subscription event has no subscription")
	}

	sub, err := s.SubscriptionRepo.GetByStripeSubscriptionID(ctx, obj.ID)
	if err != nil {
		if !apperrors.IsType(err, apperrors.TypeNotFound) {
			return nil, err
		}
		// The checkout event may not have arrived yet; fall back to the metadata user.
		userID, perr := uuid.Parse(obj.Metadata["user_id"])
		if perr != nil {
			return nil, nil
		}
		if sub, err = s.load(ctx, userID); err != nil {
			return nil, err
		}
	}

	sub.StripeSubscriptionID = obj.ID
	if obj.CustomerID != "" {
		sub.StripeCustomerID = obj.CustomerID
	}
	if !obj.CurrentPeriodEnd.IsZero() {
		end := obj.CurrentPeriodEnd.UTC()
		sub.CurrentPeriodEnd = &end
	}
	if plan, ok := s.PlanForPrice(obj.PriceID); ok {
		sub.Plan = plan
	}

	if eventType == EventSubscriptionDeleted {
		sub.Status = domain.SubscriptionCanceled
	} else {
		sub.Status = StatusFromProvider(obj.Status)
	}
	return sub, nil
}
