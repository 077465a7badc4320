// Package capital records deposits and withdrawals that form a user's
// starting capital.
package capital

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/simaogato/tradejournal-backend/internal/domain"
)

// RecordInput is a capital movement as entered by the user.
// A zero OccurredAt means now.
type RecordInput struct {
	UserID     uuid.UUID
	Kind       domain.CapitalKind
	Amount     decimal.Decimal
	Exchange   string
	Note       string
	OccurredAt time.Time
}

// Balance is the net capital with its per-exchange split
type Balance struct {
	Net        decimal.Decimal
	Deposits   decimal.Decimal
	Withdrawn  decimal.Decimal
	ByExchange map[string]decimal.Decimal
}

// CapitalService handles capital log business logic
type CapitalService struct {
	CapitalRepo domain.CapitalRepository
	Clock       clockwork.Clock
}

// NewCapitalService creates a new CapitalService instance
func NewCapitalService(repo domain.CapitalRepository, clock clockwork.Clock) *CapitalService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CapitalService{CapitalRepo: repo, Clock: clock}
}

// Record validates and stores a deposit or withdrawal
func (s *CapitalService) Record(ctx context.Context, in RecordInput) (*domain.CapitalLog, error) {
	entry := &domain.CapitalLog{
		ID:         uuid.New(),
		UserID:     in.UserID,
		Kind:       domain.CapitalKind(strings.ToUpper(strings.TrimSpace(string(in.Kind)))),
		Amount:     in.Amount,
		Exchange:   in.Exchange,
		Note:       strings.TrimSpace(in.Note),
		OccurredAt: in.OccurredAt.UTC(),
	}
	if in.OccurredAt.IsZero() {
		entry.OccurredAt = s.Clock.Now().UTC()
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	if err := s.CapitalRepo.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// List returns the user's capital log, newest first
func (s *CapitalService) List(ctx context.Context, userID uuid.UUID) ([]domain.CapitalLog, error) {
	logs, err := s.CapitalRepo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].OccurredAt.After(logs[j].OccurredAt)
	})
	return logs, nil
}

// Balance sums the user's capital movements
func (s *CapitalService) Balance(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	logs, err := s.CapitalRepo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	b := &Balance{
		Net:        domain.NetCapital(logs),
		Deposits:   decimal.Zero,
		Withdrawn:  decimal.Zero,
		ByExchange: make(map[string]decimal.Decimal),
	}
	for i := range logs {
		if logs[i].Kind == domain.CapitalDeposit {
			b.Deposits = b.Deposits.Add(logs[i].Amount)
		} else {
			b.Withdrawn = b.Withdrawn.Add(logs[i].Amount)
		}
		ex := logs[i].Exchange
		if ex == "" {
			ex = "unspecified"
		}
		b.ByExchange[ex] = b.ByExchange[ex].Add(logs[i].Signed())
	}
	return b, nil
}

// NetCapital is deposits minus withdrawals
func (s *CapitalService) NetCapital(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	b, err := s.Balance(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return b.Net, nil
}

// Delete removes a capital log entry
func (s *CapitalService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return s.CapitalRepo.Delete(ctx, userID, id)
}
