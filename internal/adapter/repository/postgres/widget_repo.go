package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/simaogato/tradejournal-backend/internal/domain"
)

// widgetRepository implements domain.WidgetRepository
type widgetRepository struct {
	db *DB
}

// NewWidgetRepository creates a new widget repository
func NewWidgetRepository(db *DB) domain.WidgetRepository {
	return &widgetRepository{db: db}
}

func (r *widgetRepository) List(ctx context.Context, userID uuid.UUID) ([]domain.Widget, error) {
	query := `
		SELECT id, user_id, kind, position, width, settings
		FROM widgets
		WHERE user_id = $1
		ORDER BY position
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, mapError(err, "widget")
	}
	defer rows.Close()

	widgets := make([]domain.Widget, 0)
	for rows.Next() {
		var (
			w        domain.Widget
			kind     string
			settings []byte
		)
		if err := rows.Scan(&w.ID, &w.UserID, &kind, &w.Position, &w.Width, &settings); err != nil {
			return nil, mapError(err, "widget")
		}
		w.Kind = domain.WidgetKind(kind)
		if err := json.Unmarshal(settings, &w.Settings); err != nil {
			return nil, fmt.Errorf("failed to decode widget settings: %w", err)
		}
		widgets = append(widgets, w)
	}
	return widgets, mapError(rows.Err(), "widget")
}

// ReplaceLayout deletes and re-inserts the layout in one transaction
func (r *widgetRepository) ReplaceLayout(ctx context.Context, userID uuid.UUID, widgets []domain.Widget) error {
	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM widgets WHERE user_id = $1`, userID); err != nil {
			return mapError(err, "widget")
		}
		for _, w := range widgets {
			settings := w.Settings
			if settings == nil {
				settings = map[string]any{}
			}
			raw, err := json.Marshal(settings)
			if err != nil {
				return fmt.Errorf("failed to encode widget settings: %w", err)
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO widgets (id, user_id, kind, position, width, settings) VALUES ($1, $2, $3, $4, $5, $6)`,
				w.ID, userID, string(w.Kind), w.Position, w.Width, string(raw))
			if err != nil {
				return mapError(err, "widget")
			}
		}
		return nil
	})
}
