package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/simaogato/tradejournal-backend/internal/domain"
)

// subscriptionRepository implements domain.SubscriptionRepository
type subscriptionRepository struct {
	db *DB
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *DB) domain.SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

const subscriptionColumns = `user_id, plan, status, stripe_customer_id, stripe_subscription_id, current_period_end, updated_at`

func scanSubscription(s scanner) (*domain.Subscription, error) {
	var (
		sub          domain.Subscription
		plan, status string
		stripeSub    sql.NullString
		periodEnd    sql.NullTime
	)
	if err := s.Scan(&sub.UserID, &plan, &status, &sub.StripeCustomerID, &stripeSub, &periodEnd, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	sub.Plan = domain.Plan(plan)
	sub.Status = domain.SubscriptionStatus(status)
	sub.StripeSubscriptionID = stripeSub.String
	sub.CurrentPeriodEnd = timePtr(periodEnd)
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	return &sub, nil
}

func (r *subscriptionRepository) Get(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1`
	sub, err := scanSubscription(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		return nil, mapError(err, "subscription")
	}
	return sub, nil
}

func (r *subscriptionRepository) GetByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE stripe_subscription_id = $1`
	sub, err := scanSubscription(r.db.QueryRowContext(ctx, query, stripeSubscriptionID))
	if err != nil {
		return nil, mapError(err, "subscription")
	}
	return sub, nil
}

func (r *subscriptionRepository) Upsert(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			plan = EXCLUDED.plan,
			status = EXCLUDED.status,
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			current_period_end = EXCLUDED.current_period_end,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		sub.UserID, string(sub.Plan), string(sub.Status), sub.StripeCustomerID,
		nullString(sub.StripeSubscriptionID), nullTime(sub.CurrentPeriodEnd), sub.UpdatedAt.UTC(),
	)
	return mapError(err, "subscription")
}
