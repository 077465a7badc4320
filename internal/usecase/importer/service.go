// Package importer brings trades into the journal in bulk from exchange CSV
// exports or screenshot extractions, and exports them back to CSV.
package importer

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/simaogato/tradejournal-backend/internal/domain"
	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
	"github.com/simaogato/tradejournal-backend/internal/usecase/fees"
	"github.com/simaogato/tradejournal-backend/internal/usecase/progress"
)

// Quotas enforces the plan limits that apply to imports
type Quotas interface {
	CSVRowLimit(ctx context.Context, userID uuid.UUID) (int, error)
	CheckScreenshotQuota(ctx context.Context, userID uuid.UUID) error
	CheckTradeQuotaFor(ctx context.Context, userID uuid.UUID, n int) error
}

// XPRecorder awards XP for imported rows
type XPRecorder interface {
	RecordImport(ctx context.Context, userID uuid.UUID, rows int) (*progress.AwardResult, error)
}

// Observer is notified of finished imports
type Observer interface {
	ImportCompleted(kind domain.ImportKind, imported, duplicates, failed int)
}

// ImportResult summarizes one import
type ImportResult struct {
	ImportID   uuid.UUID
	Imported   int
	Duplicates int
	Failed     int
	Errors     []RowError
	Trades     []*domain.Trade
}

// ScreenshotRow is a trade extracted from a screenshot by the vision service
type ScreenshotRow struct {
	Symbol     string           `json:"symbol"`
	Side       string           `json:"side"`
	EntryPrice decimal.Decimal  `json:"entry_price"`
	ExitPrice  *decimal.Decimal `json:"exit_price,omitempty"`
	Quantity   decimal.Decimal  `json:"quantity"`
	Leverage   decimal.Decimal  `json:"leverage"`
	Fees       decimal.Decimal  `json:"fees"`
	OpenedAt   time.Time        `json:"opened_at"`
	ClosedAt   *time.Time       `json:"closed_at,omitempty"`
	Notes      string           `json:"notes,omitempty"`
}

// ImportService handles bulk trade imports and exports
type ImportService struct {
	TradeRepo  domain.TradeRepository
	ImportRepo domain.ImportRepository
	Quotas     Quotas
	XP         XPRecorder
	Publisher  domain.EventPublisher
	Observer   Observer
	Failures   domain.FailureReporter
	Schedule   *fees.Schedule
	Clock      clockwork.Clock
}

// NewImportService creates a new ImportService instance
func NewImportService(tradeRepo domain.TradeRepository, importRepo domain.ImportRepository, quotas Quotas, clock clockwork.Clock) *ImportService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ImportService{
		TradeRepo:  tradeRepo,
		ImportRepo: importRepo,
		Quotas:     quotas,
		Schedule:   fees.DefaultSchedule(),
		Clock:      clock,
	}
}

// ImportCSV parses an exchange export and stores the trades it has not seen before
func (s *ImportService) ImportCSV(ctx context.Context, userID uuid.UUID, exchange string, format Format, r io.Reader) (*ImportResult, error) {
	limit := domain.Unlimited
	if s.Quotas != nil {
		var err error
		if limit, err = s.Quotas.CSVRowLimit(ctx, userID); err != nil {
			return nil, err
		}
	}

	rows, rowErrs, err := ParseCSV(r, format)
	if err != nil {
		return nil, err
	}
	if total := len(rows) + len(rowErrs); limit != domain.Unlimited && total > limit {
		return nil, apperrors.ForbiddenError("csv file exceeds the plan's row limit").
			WithField("rows", total).
			WithField("limit", limit)
	}

	return s.ingest(ctx, userID, exchange, domain.ImportKindCSV, string(format), rows, rowErrs)
}

// ImportScreenshot stores trades extracted from a screenshot
func (s *ImportService) ImportScreenshot(ctx context.Context, userID uuid.UUID, exchange string, extracted []ScreenshotRow) (*ImportResult, error) {
	if len(extracted) == 0 {
		return nil, apperrors.ValidationError("no trades were extracted from the screenshot")
	}
	if s.Quotas != nil {
		if err := s.Quotas.CheckScreenshotQuota(ctx, userID); err != nil {
			return nil, err
		}
	}

	rows := make([]Row, 0, len(extracted))
	var rowErrs []RowError
	for i, e := range extracted {
		line := i + 1
		side, ok := ParseSide(e.Side)
		if !ok {
			rowErrs = append(rowErrs, RowError{Line: line, Field: fieldSide, Message: "unknown side " + e.Side})
			continue
		}
		row := Row{
			Line:       line,
			Symbol:     strings.ToUpper(strings.TrimSpace(e.Symbol)),
			Side:       side,
			EntryPrice: e.EntryPrice,
			ExitPrice:  e.ExitPrice,
			Quantity:   e.Quantity.Abs(),
			Leverage:   e.Leverage,
			Fees:       e.Fees.Abs(),
			OpenedAt:   e.OpenedAt.UTC(),
			Notes:      e.Notes,
		}
		if e.ClosedAt != nil {
			closed := e.ClosedAt.UTC()
			row.ClosedAt = &closed
		}
		if row.OpenedAt.IsZero() && row.ClosedAt != nil {
			row.OpenedAt = *row.ClosedAt
		}
		row.ExternalID = Fingerprint(row)
		rows = append(rows, row)
	}

	return s.ingest(ctx, userID, exchange, domain.ImportKindScreenshot, "vision", rows, rowErrs)
}

func sourceFor(kind domain.ImportKind) domain.TradeSource {
	if kind == domain.ImportKindScreenshot {
		return domain.TradeSourceScreenshot
	}
	return domain.TradeSourceCSV
}

// ingest validates rows, drops duplicates and inserts the rest in one batch
func (s *ImportService) ingest(ctx context.Context, userID uuid.UUID, exchange string, kind domain.ImportKind, format string, rows []Row, rowErrs []RowError) (*ImportResult, error) {
	now := s.Clock.Now().UTC()
	result := &ImportResult{ImportID: uuid.New(), Errors: rowErrs}
	if result.Errors == nil {
		result.Errors = []RowError{}
	}

	candidates := make([]*domain.Trade, 0, len(rows))
	for _, row := range rows {
		t, err := s.toTrade(userID, exchange, kind, row, now)
		if err != nil {
			result.Errors = append(result.Errors, RowError{Line: row.Line, Message: apperrors.As(err).Message})
			continue
		}
		candidates = append(candidates, t)
	}

	ids := make([]string, len(candidates))
	for i, t := range candidates {
		ids[i] = t.ExternalID
	}
	existing := map[string]bool{}
	if len(ids) > 0 {
		var err error
		if existing, err = s.TradeRepo.ExistingExternalIDs(ctx, userID, ids); err != nil {
			return nil, err
		}
	}

	fresh := make([]*domain.Trade, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, t := range candidates {
		if existing[t.ExternalID] || seen[t.ExternalID] {
			result.Duplicates++
			continue
		}
		seen[t.ExternalID] = true
		fresh = append(fresh, t)
	}

	if len(fresh) > 0 {
		if s.Quotas != nil {
			if err := s.Quotas.CheckTradeQuotaFor(ctx, userID, len(fresh)); err != nil {
				return nil, err
			}
		}
		if err := s.TradeRepo.CreateBatch(ctx, fresh); err != nil {
			return nil, err
		}
	}

	result.Imported = len(fresh)
	result.Failed = len(result.Errors)
	result.Trades = fresh

	s.finish(ctx, userID, kind, format, result, now)
	return result, nil
}

func (s *ImportService) toTrade(userID uuid.UUID, exchange string, kind domain.ImportKind, row Row, now time.Time) (*domain.Trade, error) {
	t := &domain.Trade{
		ID:          uuid.New(),
		UserID:      userID,
		Symbol:      row.Symbol,
		Exchange:    exchange,
		Side:        row.Side,
		Status:      domain.TradeStatusOpen,
		EntryPrice:  row.EntryPrice,
		Quantity:    row.Quantity,
		Leverage:    row.Leverage,
		Fees:        row.Fees,
		FundingFees: row.Funding,
		Setup:       row.Setup,
		Notes:       row.Notes,
		Tags:        row.Tags,
		Source:      sourceFor(kind),
		ExternalID:  row.ExternalID,
		OpenedAt:    row.OpenedAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if row.ExitPrice != nil {
		t.Status = domain.TradeStatusClosed
		t.ExitPrice = row.ExitPrice
		t.ClosedAt = row.ClosedAt
	}

	t.Normalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if s.Schedule != nil {
		t.FeeType = s.Schedule.ClassifyTrade(t)
	}
	return t, nil
}

// finish records the audit row and fires the side effects. None of them can
// fail the import once trades are stored.
func (s *ImportService) finish(ctx context.Context, userID uuid.UUID, kind domain.ImportKind, format string, result *ImportResult, now time.Time) {
	rec := &domain.ImportRecord{
		ID:         result.ImportID,
		UserID:     userID,
		Kind:       kind,
		Format:     format,
		Imported:   result.Imported,
		Duplicates: result.Duplicates,
		Failed:     result.Failed,
		CreatedAt:  now,
	}
	if err := s.ImportRepo.Record(ctx, rec); err != nil {
		s.fail(ctx, "import.record", err)
	}

	if s.XP != nil && result.Imported > 0 {
		if _, err := s.XP.RecordImport(ctx, userID, result.Imported); err != nil {
			s.fail(ctx, "import.xp", err)
		}
	}
	if s.Observer != nil {
		s.Observer.ImportCompleted(kind, result.Imported, result.Duplicates, result.Failed)
	}
	if s.Publisher != nil {
		payload := map[string]any{
			"import_id":  result.ImportID,
			"kind":       kind,
			"imported":   result.Imported,
			"duplicates": result.Duplicates,
			"failed":     result.Failed,
		}
		ev, err := domain.NewEvent(domain.EventImportCompleted, userID, payload, now)
		if err == nil {
			err = s.Publisher.Publish(ctx, ev)
		}
		if err != nil {
			s.fail(ctx, "import.publish", err)
		}
	}
}

func (s *ImportService) fail(ctx context.Context, op string, err error) {
	if s.Failures != nil {
		s.Failures.SideEffectFailed(ctx, op, err)
	}
}
