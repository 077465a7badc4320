package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/simaogato/tradejournal-backend/internal/domain"
)

// progressRepository implements domain.ProgressRepository
type progressRepository struct {
	db *DB
}

// NewProgressRepository creates a new progress repository
func NewProgressRepository(db *DB) domain.ProgressRepository {
	return &progressRepository{db: db}
}

const selectProgress = `
	SELECT user_id, xp, level, tier, current_streak, longest_streak, last_active_day, updated_at
	FROM user_progress
	WHERE user_id = $1
`

func scanProgress(row *sql.Row) (*domain.UserProgress, error) {
	var (
		p          domain.UserProgress
		tier       string
		lastActive sql.NullTime
	)
	err := row.Scan(
		&p.UserID, &p.XP, &p.Level, &tier, &p.CurrentStreak, &p.LongestStreak, &lastActive, &p.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err, "progress")
	}
	p.Tier = domain.Tier(tier)
	p.LastActiveDay = timePtr(lastActive)
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (r *progressRepository) Get(ctx context.Context, userID uuid.UUID) (*domain.UserProgress, error) {
	return scanProgress(r.db.QueryRowContext(ctx, selectProgress, userID))
}

// Update serializes awards per user with a row lock held until commit
func (r *progressRepository) Update(ctx context.Context, userID uuid.UUID, fn func(p *domain.UserProgress, ledger domain.XPLedger) ([]*domain.XPEvent, error)) (*domain.UserProgress, error) {
	var out *domain.UserProgress
	err := r.db.inTx(ctx, func(tx *sql.Tx) error {
		seed := domain.NewUserProgress(userID)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO user_progress (user_id, level, tier) VALUES ($1, $2, $3) ON CONFLICT (user_id) DO NOTHING`,
			userID, seed.Level, string(seed.Tier))
		if err != nil {
			return mapError(err, "progress")
		}

		p, err := scanProgress(tx.QueryRowContext(ctx, selectProgress+" FOR UPDATE", userID))
		if err != nil {
			return err
		}

		events, err := fn(p, txLedger{tx: tx})
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE user_progress SET
				xp = $2,
				level = $3,
				tier = $4,
				current_streak = $5,
				longest_streak = $6,
				last_active_day = $7,
				updated_at = $8
			WHERE user_id = $1
		`, p.UserID, p.XP, p.Level, string(p.Tier), p.CurrentStreak, p.LongestStreak,
			nullTime(p.LastActiveDay), p.UpdatedAt.UTC())
		if err != nil {
			return mapError(err, "progress")
		}

		for _, event := range events {
			var ref uuid.NullUUID
			if event.RefID != nil {
				ref = uuid.NullUUID{UUID: *event.RefID, Valid: true}
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO xp_events (id, user_id, reason, amount, ref_id, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
				event.ID, event.UserID, string(event.Reason), event.Amount, ref, event.CreatedAt.UTC())
			if err != nil {
				return mapError(err, "xp event")
			}
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// txLedger reads the ledger inside the award transaction
type txLedger struct {
	tx *sql.Tx
}

func (l txLedger) SumSince(ctx context.Context, userID uuid.UUID, since time.Time, exclude ...domain.XPReason) (int, error) {
	return sumSince(ctx, l.tx, userID, since, exclude)
}

func (r *progressRepository) SumSince(ctx context.Context, userID uuid.UUID, since time.Time, exclude ...domain.XPReason) (int, error) {
	return sumSince(ctx, r.db, userID, since, exclude)
}

func sumSince(ctx context.Context, q queryRower, userID uuid.UUID, since time.Time, exclude []domain.XPReason) (int, error) {
	reasons := make([]string, len(exclude))
	for i, reason := range exclude {
		reasons[i] = string(reason)
	}
	var total int
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM xp_events
		WHERE user_id = $1 AND created_at >= $2 AND NOT (reason = ANY($3))
	`, userID, since.UTC(), pq.Array(reasons)).Scan(&total)
	if err != nil {
		return 0, mapError(err, "xp event")
	}
	return total, nil
}
