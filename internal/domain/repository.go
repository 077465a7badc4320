package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradeRepository defines the interface for trade persistence operations.
// Every read and write is scoped to a user; a trade owned by someone else is
// reported as not found.
type TradeRepository interface {
	// Create creates a new trade
	Create(ctx context.Context, trade *Trade) error

	// CreateBatch inserts all trades in a single database transaction
	CreateBatch(ctx context.Context, trades []*Trade) error

	// Update overwrites a trade's mutable fields
	Update(ctx context.Context, trade *Trade) error

	// Delete removes a trade
	Delete(ctx context.Context, userID, id uuid.UUID) error

	// GetByID retrieves a trade by its ID
	GetByID(ctx context.Context, userID, id uuid.UUID) (*Trade, error)

	// List retrieves a filtered, paginated list ordered by OpenedAt descending
	List(ctx context.Context, userID uuid.UUID, filter TradeFilter) ([]*Trade, error)

	// Count returns the number of trades matching filter, ignoring pagination
	Count(ctx context.Context, userID uuid.UUID, filter TradeFilter) (int, error)

	// ListRange returns every trade opened in [from, to); nil bounds are open
	ListRange(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]*Trade, error)

	// ExistingExternalIDs returns which of ids are already stored for the user,
	// matching either a trade's external id or its own id
	ExistingExternalIDs(ctx context.Context, userID uuid.UUID, ids []string) (map[string]bool, error)

	// CountCreatedSince counts trades created at or after since
	CountCreatedSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
}

// GoalRepository defines the interface for goal persistence operations
type GoalRepository interface {
	Create(ctx context.Context, goal *Goal) error
	List(ctx context.Context, userID uuid.UUID) ([]*Goal, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error

	// MarkAchieved sets AchievedAt to at unless it is already at or after
	// periodStart. Returns true only for the call that actually set it.
	MarkAchieved(ctx context.Context, id uuid.UUID, periodStart, at time.Time) (bool, error)
}

// SubscriptionRepository defines the interface for subscription persistence operations
type SubscriptionRepository interface {
	// Get returns the user's subscription or a not-found error
	Get(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// GetByStripeSubscriptionID looks up a subscription by the provider's ID
	GetByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*Subscription, error)

	// Upsert inserts or replaces the user's subscription
	Upsert(ctx context.Context, sub *Subscription) error
}

// ImportRepository defines the interface for import audit records
type ImportRepository interface {
	Record(ctx context.Context, rec *ImportRecord) error
	CountSince(ctx context.Context, userID uuid.UUID, kind ImportKind, since time.Time) (int, error)
}

// WidgetRepository defines the interface for dashboard layout persistence
type WidgetRepository interface {
	// List returns the user's widgets ordered by position
	List(ctx context.Context, userID uuid.UUID) ([]Widget, error)

	// ReplaceLayout atomically replaces all of the user's widgets
	ReplaceLayout(ctx context.Context, userID uuid.UUID, widgets []Widget) error
}

// CapitalRepository defines the interface for capital log persistence
type CapitalRepository interface {
	Create(ctx context.Context, entry *CapitalLog) error
	List(ctx context.Context, userID uuid.UUID) ([]CapitalLog, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// ProgressRepository defines the interface for gamification persistence
type ProgressRepository interface {
	// Get returns the user's progress or a not-found error
	Get(ctx context.Context, userID uuid.UUID) (*UserProgress, error)

	// Update locks the user's progress row, creating a level 1 row when none
	// exists, and hands it to fn. The mutated progress and the ledger rows fn
	// returns are written in the same transaction, so concurrent awards for
	// one user are serialized.
	Update(ctx context.Context, userID uuid.UUID, fn func(p *UserProgress, ledger XPLedger) ([]*XPEvent, error)) (*UserProgress, error)

	XPLedger
}

// XPLedger reads the XP event ledger
type XPLedger interface {
	// SumSince totals XP awarded at or after since, skipping the excluded reasons
	SumSince(ctx context.Context, userID uuid.UUID, since time.Time, exclude ...XPReason) (int, error)
}

// MarketData provides public market prices and candles
type MarketData interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
	Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
	Klines(ctx context.Context, symbol string, interval KlineInterval, limit int) ([]Candle, error)
}

// EventPublisher pushes realtime events to a user's connected clients
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
