package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/simaogato/tradejournal-backend/internal/domain"
)

// goalRepository implements domain.GoalRepository
type goalRepository struct {
	db *DB
}

// NewGoalRepository creates a new goal repository
func NewGoalRepository(db *DB) domain.GoalRepository {
	return &goalRepository{db: db}
}

func (r *goalRepository) Create(ctx context.Context, g *domain.Goal) error {
	query := `
		INSERT INTO goals (id, user_id, kind, target, period, title, created_at, achieved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		g.ID, g.UserID, string(g.Kind), g.Target, string(g.Period), g.Title,
		g.CreatedAt.UTC(), nullTime(g.AchievedAt),
	)
	return mapError(err, "goal")
}

func (r *goalRepository) List(ctx context.Context, userID uuid.UUID) ([]*domain.Goal, error) {
	query := `
		SELECT id, user_id, kind, target, period, title, created_at, achieved_at
		FROM goals
		WHERE user_id = $1
		ORDER BY created_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, mapError(err, "goal")
	}
	defer rows.Close()

	goals := make([]*domain.Goal, 0)
	for rows.Next() {
		var (
			g            domain.Goal
			kind, period string
			achievedAt   sql.NullTime
		)
		if err := rows.Scan(&g.ID, &g.UserID, &kind, &g.Target, &period, &g.Title, &g.CreatedAt, &achievedAt); err != nil {
			return nil, mapError(err, "goal")
		}
		g.Kind = domain.GoalKind(kind)
		g.Period = domain.GoalPeriod(period)
		g.CreatedAt = g.CreatedAt.UTC()
		g.AchievedAt = timePtr(achievedAt)
		goals = append(goals, &g)
	}
	return goals, mapError(rows.Err(), "goal")
}

func (r *goalRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM goals WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return mapError(err, "goal")
	}
	return expectOne(res, "goal")
}

// MarkAchieved is a conditional update so concurrent evaluations reward once
func (r *goalRepository) MarkAchieved(ctx context.Context, id uuid.UUID, periodStart, at time.Time) (bool, error) {
	query := `
		UPDATE goals SET achieved_at = $3
		WHERE id = $1 AND (achieved_at IS NULL OR achieved_at < $2)
	`
	res, err := r.db.ExecContext(ctx, query, id, periodStart.UTC(), at.UTC())
	if err != nil {
		return false, mapError(err, "goal")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapError(err, "goal")
	}
	return n == 1, nil
}
