// Package mocks provides testify mocks of the domain ports for use case tests.
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/simaogato/tradejournal-backend/internal/domain"
)

// TradeRepository is a mock implementation of domain.TradeRepository
type TradeRepository struct {
	mock.Mock
}

func (m *TradeRepository) Create(ctx context.Context, trade *domain.Trade) error {
	args := m.Called(ctx, trade)
	return args.Error(0)
}

func (m *TradeRepository) CreateBatch(ctx context.Context, trades []*domain.Trade) error {
	args := m.Called(ctx, trades)
	return args.Error(0)
}

func (m *TradeRepository) Update(ctx context.Context, trade *domain.Trade) error {
	args := m.Called(ctx, trade)
	return args.Error(0)
}

func (m *TradeRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

func (m *TradeRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*domain.Trade, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Trade), args.Error(1)
}

func (m *TradeRepository) List(ctx context.Context, userID uuid.UUID, filter domain.TradeFilter) ([]*domain.Trade, error) {
	args := m.Called(ctx, userID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Trade), args.Error(1)
}

func (m *TradeRepository) Count(ctx context.Context, userID uuid.UUID, filter domain.TradeFilter) (int, error) {
	args := m.Called(ctx, userID, filter)
	return args.Int(0), args.Error(1)
}

func (m *TradeRepository) ListRange(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]*domain.Trade, error) {
	args := m.Called(ctx, userID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Trade), args.Error(1)
}

func (m *TradeRepository) ExistingExternalIDs(ctx context.Context, userID uuid.UUID, ids []string) (map[string]bool, error) {
	args := m.Called(ctx, userID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]bool), args.Error(1)
}

func (m *TradeRepository) CountCreatedSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	args := m.Called(ctx, userID, since)
	return args.Int(0), args.Error(1)
}

// GoalRepository is a mock implementation of domain.GoalRepository
type GoalRepository struct {
	mock.Mock
}

func (m *GoalRepository) Create(ctx context.Context, goal *domain.Goal) error {
	args := m.Called(ctx, goal)
	return args.Error(0)
}

func (m *GoalRepository) List(ctx context.Context, userID uuid.UUID) ([]*domain.Goal, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Goal), args.Error(1)
}

func (m *GoalRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

func (m *GoalRepository) MarkAchieved(ctx context.Context, id uuid.UUID, periodStart, at time.Time) (bool, error) {
	args := m.Called(ctx, id, periodStart, at)
	return args.Bool(0), args.Error(1)
}

// SubscriptionRepository is a mock implementation of domain.SubscriptionRepository
type SubscriptionRepository struct {
	mock.Mock
}

func (m *SubscriptionRepository) Get(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subscription), args.Error(1)
}

func (m *SubscriptionRepository) GetByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*domain.Subscription, error) {
	args := m.Called(ctx, stripeSubscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subscription), args.Error(1)
}

func (m *SubscriptionRepository) Upsert(ctx context.Context, sub *domain.Subscription) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

// ImportRepository is a mock implementation of domain.ImportRepository
type ImportRepository struct {
	mock.Mock
}

func (m *ImportRepository) Record(ctx context.Context, rec *domain.ImportRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *ImportRepository) CountSince(ctx context.Context, userID uuid.UUID, kind domain.ImportKind, since time.Time) (int, error) {
	args := m.Called(ctx, userID, kind, since)
	return args.Int(0), args.Error(1)
}

// WidgetRepository is a mock implementation of domain.WidgetRepository
type WidgetRepository struct {
	mock.Mock
}

func (m *WidgetRepository) List(ctx context.Context, userID uuid.UUID) ([]domain.Widget, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Widget), args.Error(1)
}

func (m *WidgetRepository) ReplaceLayout(ctx context.Context, userID uuid.UUID, widgets []domain.Widget) error {
	args := m.Called(ctx, userID, widgets)
	return args.Error(0)
}

// CapitalRepository is a mock implementation of domain.CapitalRepository
type CapitalRepository struct {
	mock.Mock
}

func (m *CapitalRepository) Create(ctx context.Context, entry *domain.CapitalLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *CapitalRepository) List(ctx context.Context, userID uuid.UUID) ([]domain.CapitalLog, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CapitalLog), args.Error(1)
}

func (m *CapitalRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

// MarketData is a mock implementation of domain.MarketData
type MarketData struct {
	mock.Mock
}

func (m *MarketData) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MarketData) Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	args := m.Called(ctx, symbols)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]decimal.Decimal), args.Error(1)
}

func (m *MarketData) Klines(ctx context.Context, symbol string, interval domain.KlineInterval, limit int) ([]domain.Candle, error) {
	args := m.Called(ctx, symbol, interval, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Candle), args.Error(1)
}

// Publisher records published events
type Publisher struct {
	mu     sync.Mutex
	Events []domain.Event
	// Err, when set, is returned by Publish and the event is dropped
	Err error
}

func (m *Publisher) Publish(ctx context.Context, event domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Events = append(m.Events, event)
	return nil
}

// Types returns the types of the published events in order
func (m *Publisher) Types() []domain.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]domain.EventType, len(m.Events))
	for i, e := range m.Events {
		types[i] = e.Type
	}
	return types
}

// FailureReporter records reported side-effect failures by operation
type FailureReporter struct {
	mu  sync.Mutex
	Ops []string
}

func (m *FailureReporter) SideEffectFailed(ctx context.Context, op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Ops = append(m.Ops, op)
}

// Reported returns the operations reported so far
func (m *FailureReporter) Reported() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Ops...)
}
