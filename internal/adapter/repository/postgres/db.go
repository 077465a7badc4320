package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq" // PostgreSQL driver
	"github.com/sirupsen/logrus"

	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
	"github.com/simaogato/tradejournal-backend/internal/platform/retry"
)

//go:embed schema.sql
var schema string

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// ConnectPolicy is how long NewDB keeps waiting for the database to accept connections
var ConnectPolicy = retry.Policy{
	MaxAttempts:    10,
	InitialBackoff: 500 * time.Millisecond,
}

// NewDB opens a connection pool and waits until the database answers a ping.
// connectionString accepts both URL and "host=... dbname=..." forms.
func NewDB(ctx context.Context, connectionString string, logger *logrus.Logger) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	policy := ConnectPolicy
	if logger != nil {
		policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
			logger.WithError(err).WithFields(logrus.Fields{
				"attempt": attempt,
				"backoff": backoff,
			}).Warn("Database not ready, retrying")
		}
	}

	err = retry.DoVoid(ctx, policy, func(error) retry.Action { return retry.Retry }, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// inTx runs fn in a transaction, committing only when fn succeeds
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Postgres error codes the repositories translate
const (
	uniqueViolation = "23505"
	checkViolation  = "23514"
)

// mapError turns driver errors into structured errors. what names the entity.
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFoundError(what + " not found")
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case uniqueViolation:
			return apperrors.ConflictError(what + " already exists")
		case checkViolation:
			return apperrors.ValidationError(what + " violates a constraint: " + pqErr.Constraint)
		}
	}
	return apperrors.InternalError("failed to access "+what, err)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
