package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/simaogato/tradejournal-backend/internal/domain"
)

// importRepository implements domain.ImportRepository
type importRepository struct {
	db *DB
}

// NewImportRepository creates a new import repository
func NewImportRepository(db *DB) domain.ImportRepository {
	return &importRepository{db: db}
}

func (r *importRepository) Record(ctx context.Context, rec *domain.ImportRecord) error {
	query := `
		INSERT INTO imports (id, user_id, kind, format, imported, duplicates, failed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.UserID, string(rec.Kind), rec.Format,
		rec.Imported, rec.Duplicates, rec.Failed, rec.CreatedAt.UTC(),
	)
	return mapError(err, "import")
}

func (r *importRepository) CountSince(ctx context.Context, userID uuid.UUID, kind domain.ImportKind, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM imports WHERE user_id = $1 AND kind = $2 AND created_at >= $3`,
		userID, string(kind), since.UTC()).Scan(&n)
	if err != nil {
		return 0, mapError(err, "import")
	}
	return n, nil
}
