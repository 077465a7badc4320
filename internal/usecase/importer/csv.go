package importer

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/simaogato/tradejournal-backend/internal/domain"
	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
)

// Format names a CSV layout
type Format string

const (
	FormatGeneric        Format = "generic"
	FormatBinanceFutures Format = "binance_futures"
	FormatBybit          Format = "bybit"
)

// Canonical field names
const (
	fieldSymbol   = "symbol"
	fieldSide     = "side"
	fieldEntry    = "entry_price"
	fieldExit     = "exit_price"
	fieldQuantity = "quantity"
	fieldLeverage = "leverage"
	fieldFees     = "fees"
	fieldFunding  = "funding"
	fieldOpenedAt = "opened_at"
	fieldClosedAt = "closed_at"
	fieldSetup    = "setup"
	fieldNotes    = "notes"
	fieldTags     = "tags"
	fieldID       = "id"
)

// GenericHeader is the column order written by ExportCSV
var GenericHeader = []string{
	fieldSymbol, fieldSide, fieldEntry, fieldExit, fieldQuantity, fieldLeverage,
	fieldFees, fieldFunding, fieldOpenedAt, fieldClosedAt, fieldSetup, fieldNotes,
	fieldTags, fieldID,
}

type column struct {
	field    string
	aliases  []string
	required bool
}

var layouts = map[Format][]column{
	FormatGeneric: {
		{field: fieldSymbol, aliases: []string{"symbol"}, required: true},
		{field: fieldSide, aliases: []string{"side"}, required: true},
		{field: fieldEntry, aliases: []string{"entry_price"}, required: true},
		{field: fieldExit, aliases: []string{"exit_price"}},
		{field: fieldQuantity, aliases: []string{"quantity"}, required: true},
		{field: fieldLeverage, aliases: []string{"leverage"}},
		{field: fieldFees, aliases: []string{"fees"}},
		{field: fieldFunding, aliases: []string{"funding"}},
		{field: fieldOpenedAt, aliases: []string{"opened_at"}, required: true},
		{field: fieldClosedAt, aliases: []string{"closed_at"}},
		{field: fieldSetup, aliases: []string{"setup"}},
		{field: fieldNotes, aliases: []string{"notes"}},
		{field: fieldTags, aliases: []string{"tags"}},
		{field: fieldID, aliases: []string{"id"}},
	},
	FormatBinanceFutures: {
		{field: fieldSymbol, aliases: []string{"symbol"}, required: true},
		{field: fieldSide, aliases: []string{"side"}, required: true},
		{field: fieldEntry, aliases: []string{"entry price", "avg. entry price"}, required: true},
		{field: fieldExit, aliases: []string{"close price", "avg. close price"}, required: true},
		{field: fieldQuantity, aliases: []string{"closed vol.", "closed volume"}, required: true},
		{field: fieldFees, aliases: []string{"fee", "fees"}},
		{field: fieldFunding, aliases: []string{"funding fee"}},
		{field: fieldOpenedAt, aliases: []string{"opened"}, required: true},
		{field: fieldClosedAt, aliases: []string{"closed"}, required: true},
	},
	FormatBybit: {
		{field: fieldSymbol, aliases: []string{"contracts"}, required: true},
		{field: fieldSide, aliases: []string{"side"}, required: true},
		{field: fieldEntry, aliases: []string{"entry price"}, required: true},
		{field: fieldExit, aliases: []string{"exit price"}, required: true},
		{field: fieldQuantity, aliases: []string{"qty"}, required: true},
		{field: fieldFees, aliases: []string{"fees"}},
		{field: fieldClosedAt, aliases: []string{"trade time"}, required: true},
	},
}

// ParseFormat validates a format name; empty means generic
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return FormatGeneric, nil
	}
	if _, ok := layouts[f]; !ok {
		return "", apperrors.ValidationErrorf("unknown csv format %q", s)
	}
	return f, nil
}

// Row is one parsed trade line
type Row struct {
	Line       int
	Symbol     string
	Side       domain.Side
	EntryPrice decimal.Decimal
	ExitPrice  *decimal.Decimal
	Quantity   decimal.Decimal
	Leverage   decimal.Decimal
	Fees       decimal.Decimal
	Funding    decimal.Decimal
	OpenedAt   time.Time
	ClosedAt   *time.Time
	Setup      string
	Notes      string
	Tags       []string
	ExternalID string
}

// RowError describes why a line was skipped
type RowError struct {
	Line    int    `json:"line"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("line %d: %s: %s", e.Line, e.Field, e.Message)
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}

// ParseCSV reads trades in the given format. Lines that fail to parse are
// reported as RowErrors and never abort the file; a missing header or
// required column does.
func ParseCSV(r io.Reader, format Format) ([]Row, []RowError, error) {
	cols, ok := layouts[format]
	if !ok {
		return nil, nil, apperrors.ValidationErrorf("unknown csv format %q", format)
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, apperrors.ValidationError("csv file is empty")
	}
	if err != nil {
		return nil, nil, apperrors.ValidationErrorf("csv header is unreadable: %v", err)
	}

	positions := make(map[string]int, len(header))
	for i, h := range header {
		name := normalizeHeader(h)
		if _, dup := positions[name]; !dup {
			positions[name] = i
		}
	}

	index := make(map[string]int, len(cols))
	for _, c := range cols {
		for _, alias := range c.aliases {
			if i, ok := positions[alias]; ok {
				index[c.field] = i
				break
			}
		}
		if _, found := index[c.field]; !found && c.required {
			return nil, nil, apperrors.ValidationErrorf("csv is missing the %q column", c.aliases[0]).
				WithField("format", format)
		}
	}

	var (
		rows    []Row
		rowErrs []RowError
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				rowErrs = append(rowErrs, RowError{Line: perr.Line, Message: perr.Err.Error()})
				continue
			}
			return nil, nil, apperrors.ValidationErrorf("csv is unreadable: %v", err)
		}
		line, _ := reader.FieldPos(0)
		if blank(record) {
			continue
		}

		get := func(field string) string {
			i, ok := index[field]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		row, rerr := parseRow(format, line, get)
		if rerr != nil {
			rowErrs = append(rowErrs, *rerr)
			continue
		}
		rows = append(rows, row)
	}
	return rows, rowErrs, nil
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func parseRow(format Format, line int, get func(string) string) (Row, *RowError) {
	fail := func(field, msg string) (Row, *RowError) {
		return Row{}, &RowError{Line: line, Field: field, Message: msg}
	}

	row := Row{Line: line, Leverage: decimal.NewFromInt(1)}

	row.Symbol = strings.ToUpper(get(fieldSymbol))
	if row.Symbol == "" {
		return fail(fieldSymbol, "is required")
	}

	side, ok := ParseSide(get(fieldSide))
	if !ok {
		return fail(fieldSide, fmt.Sprintf("unknown side %q", get(fieldSide)))
	}
	row.Side = side

	var err error
	if row.EntryPrice, err = ParseNumber(get(fieldEntry)); err != nil {
		return fail(fieldEntry, err.Error())
	}
	if row.Quantity, err = ParseNumber(get(fieldQuantity)); err != nil {
		return fail(fieldQuantity, err.Error())
	}
	row.Quantity = row.Quantity.Abs()

	if v := get(fieldExit); v != "" {
		exit, err := ParseNumber(v)
		if err != nil {
			return fail(fieldExit, err.Error())
		}
		row.ExitPrice = &exit
	}
	if v := get(fieldLeverage); v != "" {
		if row.Leverage, err = ParseNumber(strings.TrimSuffix(strings.ToLower(v), "x")); err != nil {
			return fail(fieldLeverage, err.Error())
		}
	}
	if v := get(fieldFees); v != "" {
		fee, err := ParseNumber(v)
		if err != nil {
			return fail(fieldFees, err.Error())
		}
		// Exchanges export fees as negative balance changes.
		row.Fees = fee.Abs()
	}
	if v := get(fieldFunding); v != "" {
		funding, err := ParseNumber(v)
		if err != nil {
			return fail(fieldFunding, err.Error())
		}
		row.Funding = funding
		if format != FormatGeneric {
			// Exchange exports show funding as a balance change; the journal stores paid as positive.
			row.Funding = funding.Neg()
		}
	}

	if v := get(fieldClosedAt); v != "" {
		closed, err := ParseTime(v)
		if err != nil {
			return fail(fieldClosedAt, err.Error())
		}
		row.ClosedAt = &closed
	}
	if v := get(fieldOpenedAt); v != "" {
		if row.OpenedAt, err = ParseTime(v); err != nil {
			return fail(fieldOpenedAt, err.Error())
		}
	} else if row.ClosedAt != nil {
		row.OpenedAt = *row.ClosedAt
	} else {
		return fail(fieldOpenedAt, "is required")
	}

	if row.ExitPrice != nil && row.ClosedAt == nil {
		return fail(fieldClosedAt, "is required when exit_price is set")
	}
	if row.ExitPrice == nil && row.ClosedAt != nil {
		return fail(fieldExit, "is required when closed_at is set")
	}

	row.Setup = get(fieldSetup)
	row.Notes = get(fieldNotes)
	if v := get(fieldTags); v != "" {
		row.Tags = strings.Split(v, ";")
	}

	row.ExternalID = get(fieldID)
	if row.ExternalID == "" {
		row.ExternalID = Fingerprint(row)
	}
	return row, nil
}

// ParseSide accepts LONG/SHORT and BUY/SELL in any case
func ParseSide(s string) (domain.Side, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LONG", "BUY":
		return domain.SideLong, true
	case "SHORT", "SELL":
		return domain.SideShort, true
	}
	return "", false
}

// ParseNumber parses a decimal, tolerating thousands separators and a
// trailing unit such as "0.5 BTC" or "12.3 USDT".
func ParseNumber(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Zero, errors.New("is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a number", s)
	}
	return d, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.DateTime,
	"2006-01-02T15:04:05",
	"2006/01/02 15:04:05",
}

// ParseTime accepts RFC3339, "2006-01-02 15:04:05" (UTC) and unix milliseconds
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("is required")
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a recognized timestamp", s)
}

// Fingerprint derives a stable dedup key from a row's trade fields
func Fingerprint(r Row) string {
	exit, closed := "", ""
	if r.ExitPrice != nil {
		exit = r.ExitPrice.String()
	}
	if r.ClosedAt != nil {
		closed = strconv.FormatInt(r.ClosedAt.UnixMilli(), 10)
	}
	key := strings.Join([]string{
		strings.ToUpper(r.Symbol),
		string(r.Side),
		r.EntryPrice.String(),
		exit,
		r.Quantity.String(),
		strconv.FormatInt(r.OpenedAt.UnixMilli(), 10),
		closed,
	}, "|")
	sum := sha256.Sum256([]byte(key))
	return "sha256:" + hex.EncodeToString(sum[:])
}
