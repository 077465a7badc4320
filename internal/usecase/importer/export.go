package importer

import (
	"context"
	"encoding/csv"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/simaogato/tradejournal-backend/internal/domain"
)

// ExportFilter selects the trades to export; nil bounds are open
type ExportFilter struct {
	From   *time.Time
	To     *time.Time
	Symbol string
}

// ExportCSV writes the user's trades in the generic format, oldest first.
// The output can be imported again; the id column keeps re-imports deduplicated.
func (s *ImportService) ExportCSV(ctx context.Context, userID uuid.UUID, w io.Writer, filter ExportFilter) (int, error) {
	trades, err := s.TradeRepo.ListRange(ctx, userID, filter.From, filter.To)
	if err != nil {
		return 0, err
	}
	symbol := strings.ToUpper(strings.TrimSpace(filter.Symbol))

	selected := make([]*domain.Trade, 0, len(trades))
	for _, t := range trades {
		if symbol == "" || t.Symbol == symbol {
			selected = append(selected, t)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].OpenedAt.Before(selected[j].OpenedAt)
	})

	cw := csv.NewWriter(w)
	if err := cw.Write(GenericHeader); err != nil {
		return 0, err
	}
	for _, t := range selected {
		if err := cw.Write(exportRecord(t)); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	return len(selected), cw.Error()
}

func exportRecord(t *domain.Trade) []string {
	exit, closed := "", ""
	if t.ExitPrice != nil {
		exit = t.ExitPrice.String()
	}
	if t.ClosedAt != nil {
		closed = t.ClosedAt.UTC().Format(time.RFC3339Nano)
	}
	id := t.ExternalID
	if id == "" {
		id = t.ID.String()
	}
	return []string{
		t.Symbol,
		string(t.Side),
		t.EntryPrice.String(),
		exit,
		t.Quantity.String(),
		t.Leverage.String(),
		t.Fees.String(),
		t.FundingFees.String(),
		t.OpenedAt.UTC().Format(time.RFC3339Nano),
		closed,
		t.Setup,
		t.Notes,
		strings.Join(t.Tags, ";"),
		id,
	}
}
