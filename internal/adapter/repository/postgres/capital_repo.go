package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/simaogato/tradejournal-backend/internal/domain"
)

// capitalRepository implements domain.CapitalRepository
type capitalRepository struct {
	db *DB
}

// NewCapitalRepository creates a new capital log repository
func NewCapitalRepository(db *DB) domain.CapitalRepository {
	return &capitalRepository{db: db}
}

func (r *capitalRepository) Create(ctx context.Context, c *domain.CapitalLog) error {
	query := `
		INSERT INTO capital_logs (id, user_id, kind, amount, exchange, note, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.UserID, string(c.Kind), c.Amount, c.Exchange, c.Note, c.OccurredAt.UTC())
	return mapError(err, "capital log")
}

func (r *capitalRepository) List(ctx context.Context, userID uuid.UUID) ([]domain.CapitalLog, error) {
	query := `
		SELECT id, user_id, kind, amount, exchange, note, occurred_at
		FROM capital_logs
		WHERE user_id = $1
		ORDER BY occurred_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, mapError(err, "capital log")
	}
	defer rows.Close()

	logs := make([]domain.CapitalLog, 0)
	for rows.Next() {
		var (
			c    domain.CapitalLog
			kind string
		)
		if err := rows.Scan(&c.ID, &c.UserID, &kind, &c.Amount, &c.Exchange, &c.Note, &c.OccurredAt); err != nil {
			return nil, mapError(err, "capital log")
		}
		c.Kind = domain.CapitalKind(kind)
		c.OccurredAt = c.OccurredAt.UTC()
		logs = append(logs, c)
	}
	return logs, mapError(rows.Err(), "capital log")
}

func (r *capitalRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM capital_logs WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return mapError(err, "capital log")
	}
	return expectOne(res, "capital log")
}
