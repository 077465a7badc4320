package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
)

// CapitalKind is the direction of a capital movement
type CapitalKind string

const (
	CapitalDeposit    CapitalKind = "DEPOSIT"
	CapitalWithdrawal CapitalKind = "WITHDRAWAL"
)

// CapitalLog records money moved into or out of trading accounts
type CapitalLog struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Kind       CapitalKind
	Amount     decimal.Decimal // always positive
	Exchange   string
	Note       string
	OccurredAt time.Time
}

// Validate ensures the capital log adheres to domain rules
func (c *CapitalLog) Validate() error {
	if c.UserID == uuid.Nil {
		return apperrors.ValidationError("capital log must belong to a user")
	}
	if c.Kind != CapitalDeposit && c.Kind != CapitalWithdrawal {
		return apperrors.ValidationError("capital kind must be DEPOSIT or WITHDRAWAL")
	}
	if !c.Amount.IsPositive() {
		return apperrors.ValidationError("capital amount must be positive")
	}
	if c.OccurredAt.IsZero() {
		return apperrors.ValidationError("occurred_at is required")
	}
	c.Exchange = strings.ToLower(strings.TrimSpace(c.Exchange))
	return nil
}

// Signed returns the amount with withdrawals negative
func (c *CapitalLog) Signed() decimal.Decimal {
	if c.Kind == CapitalWithdrawal {
		return c.Amount.Neg()
	}
	return c.Amount
}

// NetCapital sums deposits minus withdrawals
func NetCapital(logs []CapitalLog) decimal.Decimal {
	total := decimal.Zero
	for i := range logs {
		total = total.Add(logs[i].Signed())
	}
	return total
}
