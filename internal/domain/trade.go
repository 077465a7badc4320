package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
)

// Side is the direction of a position
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// TradeStatus is the lifecycle state of a trade
type TradeStatus string

const (
	TradeStatusOpen   TradeStatus = "OPEN"
	TradeStatusClosed TradeStatus = "CLOSED"
)

// TradeSource records how a trade entered the journal
type TradeSource string

const (
	TradeSourceManual     TradeSource = "MANUAL"
	TradeSourceCSV        TradeSource = "CSV"
	TradeSourceScreenshot TradeSource = "SCREENSHOT"
)

// FeeType classifies the liquidity role implied by a trade's fees
type FeeType string

const (
	FeeTypeMaker   FeeType = "MAKER"
	FeeTypeTaker   FeeType = "TAKER"
	FeeTypeMixed   FeeType = "MIXED"
	FeeTypeUnknown FeeType = "UNKNOWN"
)

// Outcome is the result of a closed trade
type Outcome string

const (
	OutcomeWin       Outcome = "WIN"
	OutcomeLoss      Outcome = "LOSS"
	OutcomeBreakeven Outcome = "BREAKEVEN"
	OutcomeOpen      Outcome = "OPEN"
)

const (
	MaxLeverage    = 200
	MaxTags        = 10
	MaxTagLength   = 32
	MaxNotesLength = 5000
)

var hundred = decimal.NewFromInt(100)

// Trade is a single journaled position.
// Prices are quote-currency per unit, Quantity is in base units.
type Trade struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Symbol      string
	Exchange    string
	Side        Side
	Status      TradeStatus
	EntryPrice  decimal.Decimal
	ExitPrice   *decimal.Decimal // set iff CLOSED
	Quantity    decimal.Decimal
	Leverage    decimal.Decimal
	Fees        decimal.Decimal // trading fees, always >= 0
	FundingFees decimal.Decimal // signed: positive = paid, negative = received
	FeeType     FeeType
	StopLoss    *decimal.Decimal
	TakeProfit  *decimal.Decimal
	Setup       string
	Notes       string
	Tags        []string
	Source      TradeSource
	ExternalID  string // dedup key for imported rows
	OpenedAt    time.Time
	ClosedAt    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Normalize canonicalizes free-form fields in place.
// Symbols are upper-cased, exchanges lower-cased, tags trimmed and de-duplicated.
func (t *Trade) Normalize() {
	t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
	t.Exchange = strings.ToLower(strings.TrimSpace(t.Exchange))
	t.Setup = strings.TrimSpace(t.Setup)
	if t.Leverage.IsZero() {
		t.Leverage = decimal.NewFromInt(1)
	}
	if t.FeeType == "" {
		t.FeeType = FeeTypeUnknown
	}
	if t.Source == "" {
		t.Source = TradeSourceManual
	}

	seen := make(map[string]bool, len(t.Tags))
	tags := make([]string, 0, len(t.Tags))
	for _, tag := range t.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	t.Tags = tags
}

// Validate ensures the trade adheres to domain rules
func (t *Trade) Validate() error {
	if t.UserID == uuid.Nil {
		return apperrors.ValidationError("trade must belong to a user")
	}
	if t.Symbol == "" {
		return apperrors.ValidationError("symbol is required")
	}
	if t.Side != SideLong && t.Side != SideShort {
		return apperrors.ValidationError("side must be LONG or SHORT")
	}
	if t.Status != TradeStatusOpen && t.Status != TradeStatusClosed {
		return apperrors.ValidationError("status must be OPEN or CLOSED")
	}
	if !t.EntryPrice.IsPositive() {
		return apperrors.ValidationError("entry price must be positive")
	}
	if !t.Quantity.IsPositive() {
		return apperrors.ValidationError("quantity must be positive")
	}
	if t.Leverage.LessThan(decimal.NewFromInt(1)) || t.Leverage.GreaterThan(decimal.NewFromInt(MaxLeverage)) {
		return apperrors.ValidationErrorf("leverage must be between 1 and %d", MaxLeverage)
	}
	if t.Fees.IsNegative() {
		return apperrors.ValidationError("fees cannot be negative")
	}
	if t.OpenedAt.IsZero() {
		return apperrors.ValidationError("opened_at is required")
	}

	switch t.Status {
	case TradeStatusClosed:
		if t.ExitPrice == nil || !t.ExitPrice.IsPositive() {
			return apperrors.ValidationError("closed trade must have a positive exit price")
		}
		if t.ClosedAt == nil {
			return apperrors.ValidationError("closed trade must have closed_at")
		}
		if t.ClosedAt.Before(t.OpenedAt) {
			return apperrors.ValidationError("closed_at cannot be before opened_at")
		}
	case TradeStatusOpen:
		if t.ExitPrice != nil || t.ClosedAt != nil {
			return apperrors.ValidationError("open trade cannot have an exit")
		}
	}

	if t.StopLoss != nil {
		if !t.StopLoss.IsPositive() {
			return apperrors.ValidationError("stop loss must be positive")
		}
		if t.Side == SideLong && !t.StopLoss.LessThan(t.EntryPrice) {
			return apperrors.ValidationError("stop loss must be below entry for a LONG")
		}
		if t.Side == SideShort && !t.StopLoss.GreaterThan(t.EntryPrice) {
			return apperrors.ValidationError("stop loss must be above entry for a SHORT")
		}
	}
	if t.TakeProfit != nil && !t.TakeProfit.IsPositive() {
		return apperrors.ValidationError("take profit must be positive")
	}

	if len(t.Tags) > MaxTags {
		return apperrors.ValidationErrorf("at most %d tags are allowed", MaxTags)
	}
	for _, tag := range t.Tags {
		if utf8.RuneCountInString(tag) > MaxTagLength {
			return apperrors.ValidationErrorf("tag %q exceeds %d characters", tag, MaxTagLength)
		}
	}
	if utf8.RuneCountInString(t.Notes) > MaxNotesLength {
		return apperrors.ValidationErrorf("notes exceed %d characters", MaxNotesLength)
	}

	return nil
}

// IsClosed reports whether the trade has an exit
func (t *Trade) IsClosed() bool {
	return t.Status == TradeStatusClosed && t.ExitPrice != nil
}

func (t *Trade) direction() decimal.Decimal {
	if t.Side == SideShort {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// PnLAt is the gross P&L if the position were closed at price.
func (t *Trade) PnLAt(price decimal.Decimal) decimal.Decimal {
	return price.Sub(t.EntryPrice).Mul(t.Quantity).Mul(t.direction())
}

// GrossPnL is the price P&L before fees. Zero while open.
func (t *Trade) GrossPnL() decimal.Decimal {
	if !t.IsClosed() {
		return decimal.Zero
	}
	return t.PnLAt(*t.ExitPrice)
}

// NetPnL is GrossPnL minus trading fees and funding.
func (t *Trade) NetPnL() decimal.Decimal {
	if !t.IsClosed() {
		return decimal.Zero
	}
	return t.GrossPnL().Sub(t.Fees).Sub(t.FundingFees)
}

// Notional is the entry value of the position
func (t *Trade) Notional() decimal.Decimal {
	return t.EntryPrice.Mul(t.Quantity)
}

// Margin is the collateral committed at the trade's leverage
func (t *Trade) Margin() decimal.Decimal {
	lev := t.Leverage
	if !lev.IsPositive() {
		lev = decimal.NewFromInt(1)
	}
	return t.Notional().Div(lev)
}

// ROE is net P&L as a percentage of margin
func (t *Trade) ROE() decimal.Decimal {
	margin := t.Margin()
	if margin.IsZero() {
		return decimal.Zero
	}
	return t.NetPnL().Div(margin).Mul(hundred)
}

// RMultiple expresses net P&L in units of initial risk.
// Returns false when the trade has no stop loss or is still open.
func (t *Trade) RMultiple() (decimal.Decimal, bool) {
	if t.StopLoss == nil || !t.IsClosed() {
		return decimal.Zero, false
	}
	risk := t.EntryPrice.Sub(*t.StopLoss).Abs().Mul(t.Quantity)
	if risk.IsZero() {
		return decimal.Zero, false
	}
	return t.NetPnL().Div(risk), true
}

// Outcome classifies the trade result
func (t *Trade) Outcome() Outcome {
	if !t.IsClosed() {
		return OutcomeOpen
	}
	net := t.NetPnL()
	switch {
	case net.IsPositive():
		return OutcomeWin
	case net.IsNegative():
		return OutcomeLoss
	default:
		return OutcomeBreakeven
	}
}

// HoldDuration is the time between open and close. Zero while open.
func (t *Trade) HoldDuration() time.Duration {
	if t.ClosedAt == nil {
		return 0
	}
	return t.ClosedAt.Sub(t.OpenedAt)
}

// Close transitions an open trade to CLOSED at the given exit.
func (t *Trade) Close(exit decimal.Decimal, at time.Time, extraFees decimal.Decimal) error {
	if t.Status != TradeStatusOpen {
		return apperrors.ConflictError("trade is already closed")
	}
	if extraFees.IsNegative() {
		return apperrors.ValidationError("fees cannot be negative")
	}
	t.Status = TradeStatusClosed
	t.ExitPrice = &exit
	closedAt := at.UTC()
	t.ClosedAt = &closedAt
	t.Fees = t.Fees.Add(extraFees)
	return t.Validate()
}

// TradeFilter narrows trade listings
type TradeFilter struct {
	Status *TradeStatus
	Symbol string
	Side   *Side
	Setup  string
	Tag    string
	From   *time.Time // inclusive, against OpenedAt
	To     *time.Time // exclusive, against OpenedAt
	Limit  int
	Offset int
}

const (
	DefaultTradeLimit = 50
	MaxTradeLimit     = 500
)

// Validate checks pagination bounds and fills in the default limit
func (f *TradeFilter) Validate() error {
	if f.Limit == 0 {
		f.Limit = DefaultTradeLimit
	}
	if f.Limit < 0 || f.Limit > MaxTradeLimit {
		return apperrors.ValidationErrorf("limit must be between 1 and %d", MaxTradeLimit)
	}
	if f.Offset < 0 {
		return apperrors.ValidationError("offset must be non-negative")
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return apperrors.ValidationError("from must be before to")
	}
	f.Symbol = strings.ToUpper(strings.TrimSpace(f.Symbol))
	f.Tag = strings.ToLower(strings.TrimSpace(f.Tag))
	return nil
}
