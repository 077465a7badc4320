package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/simaogato/tradejournal-backend/internal/domain"
)

// tradeRepository implements domain.TradeRepository
type tradeRepository struct {
	db *DB
}

// NewTradeRepository creates a new trade repository
func NewTradeRepository(db *DB) domain.TradeRepository {
	return &tradeRepository{db: db}
}

const tradeColumns = `id, user_id, symbol, exchange, side, status, entry_price, exit_price,
	quantity, leverage, fees, funding_fees, fee_type, stop_loss, take_profit, setup, notes,
	tags, source, external_id, opened_at, closed_at, created_at, updated_at`

const insertTradeQuery = `INSERT INTO trades (` + tradeColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
		$18, $19, $20, $21, $22, $23, $24)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(nd decimal.NullDecimal) *decimal.Decimal {
	if !nd.Valid {
		return nil
	}
	d := nd.Decimal
	return &d
}

func insertTrade(ctx context.Context, ex execer, t *domain.Trade) error {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := ex.ExecContext(ctx, insertTradeQuery,
		t.ID, t.UserID, t.Symbol, t.Exchange, string(t.Side), string(t.Status),
		t.EntryPrice, nullDecimal(t.ExitPrice), t.Quantity, t.Leverage, t.Fees, t.FundingFees,
		string(t.FeeType), nullDecimal(t.StopLoss), nullDecimal(t.TakeProfit), t.Setup, t.Notes,
		pq.Array(tags), string(t.Source), nullString(t.ExternalID),
		t.OpenedAt.UTC(), nullTime(t.ClosedAt), t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
	)
	return err
}

func scanTrade(s scanner) (*domain.Trade, error) {
	var (
		t                          domain.Trade
		side, status, feeType, src string
		exit, stop, takeProfit     decimal.NullDecimal
		tags                       pq.StringArray
		externalID                 sql.NullString
		closedAt                   sql.NullTime
	)
	err := s.Scan(
		&t.ID, &t.UserID, &t.Symbol, &t.Exchange, &side, &status, &t.EntryPrice, &exit,
		&t.Quantity, &t.Leverage, &t.Fees, &t.FundingFees, &feeType, &stop, &takeProfit,
		&t.Setup, &t.Notes, &tags, &src, &externalID, &t.OpenedAt, &closedAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Side = domain.Side(side)
	t.Status = domain.TradeStatus(status)
	t.FeeType = domain.FeeType(feeType)
	t.Source = domain.TradeSource(src)
	t.ExitPrice = decimalPtr(exit)
	t.StopLoss = decimalPtr(stop)
	t.TakeProfit = decimalPtr(takeProfit)
	t.Tags = []string(tags)
	t.ExternalID = externalID.String
	t.OpenedAt = t.OpenedAt.UTC()
	t.ClosedAt = timePtr(closedAt)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func (r *tradeRepository) Create(ctx context.Context, t *domain.Trade) error {
	return mapError(insertTrade(ctx, r.db, t), "trade")
}

// CreateBatch inserts all trades in one transaction; a failure stores none
func (r *tradeRepository) CreateBatch(ctx context.Context, trades []*domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertTradeQuery)
		if err != nil {
			return fmt.Errorf("failed to prepare trade insert: %w", err)
		}
		defer stmt.Close()

		for _, t := range trades {
			if err := insertTrade(ctx, stmtExecer{stmt}, t); err != nil {
				return mapError(err, "trade")
			}
		}
		return nil
	})
}

type stmtExecer struct{ stmt *sql.Stmt }

func (s stmtExecer) ExecContext(ctx context.Context, _ string, args ...any) (sql.Result, error) {
	return s.stmt.ExecContext(ctx, args...)
}

func (r *tradeRepository) Update(ctx context.Context, t *domain.Trade) error {
	query := `
		UPDATE trades SET
			symbol = $3, exchange = $4, side = $5, status = $6, entry_price = $7, exit_price = $8,
			quantity = $9, leverage = $10, fees = $11, funding_fees = $12, fee_type = $13,
			stop_loss = $14, take_profit = $15, setup = $16, notes = $17, tags = $18,
			opened_at = $19, closed_at = $20, updated_at = $21
		WHERE id = $1 AND user_id = $2
	`
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	res, err := r.db.ExecContext(ctx, query,
		t.ID, t.UserID, t.Symbol, t.Exchange, string(t.Side), string(t.Status),
		t.EntryPrice, nullDecimal(t.ExitPrice), t.Quantity, t.Leverage, t.Fees, t.FundingFees,
		string(t.FeeType), nullDecimal(t.StopLoss), nullDecimal(t.TakeProfit), t.Setup, t.Notes,
		pq.Array(tags), t.OpenedAt.UTC(), nullTime(t.ClosedAt), t.UpdatedAt.UTC(),
	)
	if err != nil {
		return mapError(err, "trade")
	}
	return expectOne(res, "trade")
}

func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err, what)
	}
	if n == 0 {
		return mapError(sql.ErrNoRows, what)
	}
	return nil
}

func (r *tradeRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM trades WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return mapError(err, "trade")
	}
	return expectOne(res, "trade")
}

func (r *tradeRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE id = $1 AND user_id = $2`
	t, err := scanTrade(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		return nil, mapError(err, "trade")
	}
	return t, nil
}

// whereFilter builds the WHERE clause of a filtered listing; args start at $1 = user_id
func whereFilter(userID uuid.UUID, f domain.TradeFilter) (string, []any) {
	clauses := []string{"user_id = $1"}
	args := []any{userID}
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	if f.Side != nil {
		add("side = $%d", string(*f.Side))
	}
	if f.Symbol != "" {
		add("symbol = $%d", f.Symbol)
	}
	if f.Setup != "" {
		add("setup = $%d", f.Setup)
	}
	if f.Tag != "" {
		add("$%d = ANY(tags)", f.Tag)
	}
	if f.From != nil {
		add("opened_at >= $%d", f.From.UTC())
	}
	if f.To != nil {
		add("opened_at < $%d", f.To.UTC())
	}
	return strings.Join(clauses, " AND "), args
}

func (r *tradeRepository) List(ctx context.Context, userID uuid.UUID, f domain.TradeFilter) ([]*domain.Trade, error) {
	where, args := whereFilter(userID, f)
	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM trades WHERE %s ORDER BY opened_at DESC, id LIMIT $%d OFFSET $%d`,
		tradeColumns, where, len(args)-1, len(args))
	return r.query(ctx, query, args...)
}

func (r *tradeRepository) Count(ctx context.Context, userID uuid.UUID, f domain.TradeFilter) (int, error) {
	where, args := whereFilter(userID, f)
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades WHERE `+where, args...).Scan(&n); err != nil {
		return 0, mapError(err, "trade")
	}
	return n, nil
}

func (r *tradeRepository) ListRange(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]*domain.Trade, error) {
	where, args := whereFilter(userID, domain.TradeFilter{From: from, To: to})
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE ` + where + ` ORDER BY opened_at, id`
	return r.query(ctx, query, args...)
}

func (r *tradeRepository) query(ctx context.Context, query string, args ...any) ([]*domain.Trade, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "trade")
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, mapError(err, "trade")
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "trade")
	}
	return trades, nil
}

func (r *tradeRepository) ExistingExternalIDs(ctx context.Context, userID uuid.UUID, ids []string) (map[string]bool, error) {
	found := make(map[string]bool)
	if len(ids) == 0 {
		return found, nil
	}
	// exports carry the trade id for rows without an external id, so a
	// re-imported export matches either column
	rows, err := r.db.QueryContext(ctx, `
		SELECT id::text, COALESCE(external_id, '')
		FROM trades
		WHERE user_id = $1 AND (external_id = ANY($2) OR id::text = ANY($2))
	`, userID, pq.Array(ids))
	if err != nil {
		return nil, mapError(err, "trade")
	}
	defer rows.Close()

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for rows.Next() {
		var id, externalID string
		if err := rows.Scan(&id, &externalID); err != nil {
			return nil, mapError(err, "trade")
		}
		for _, key := range []string{id, externalID} {
			if want[key] {
				found[key] = true
			}
		}
	}
	return found, mapError(rows.Err(), "trade")
}

func (r *tradeRepository) CountCreatedSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trades WHERE user_id = $1 AND created_at >= $2`,
		userID, since.UTC()).Scan(&n)
	if err != nil {
		return 0, mapError(err, "trade")
	}
	return n, nil
}
