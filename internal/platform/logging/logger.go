// Package logging builds the application logger and carries request-scoped
// fields (correlation and user IDs) through context.
package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

type contextKey int

const (
	correlationKey contextKey = iota
	userKey
)

var base = logrus.StandardLogger()

// New builds a logger for the given level ("debug", "info", "warn", "error";
// defaults to "info") and format ("json" or "text"; defaults to "json").
// The returned logger also becomes the fallback used by FromContext.
func New(level, format string) *logrus.Logger {
	return newLogger(level, format, os.Stdout)
}

func newLogger(level, format string, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.Out = out

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	if format == "text" {
		log.Formatter = &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		}
	} else {
		log.Formatter = &logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "severity",
				logrus.FieldKeyMsg:   "message",
			},
			TimestampFormat: time.RFC3339Nano,
		}
	}

	base = log
	return log
}

// NewCorrelationID generates an 8-character hex correlation ID.
func NewCorrelationID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// WithCorrelationID returns a context carrying the given correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// CorrelationID extracts the correlation ID from ctx.
func CorrelationID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(correlationKey).(string)
	return id, ok && id != ""
}

// WithUserID records the authenticated user for log lines.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey, userID)
}

// FromContext returns a log entry decorated with the request-scoped fields in ctx.
func FromContext(ctx context.Context) *logrus.Entry {
	entry := logrus.NewEntry(base)
	if ctx == nil {
		return entry
	}
	fields := logrus.Fields{}
	if id, ok := CorrelationID(ctx); ok {
		fields["correlation_id"] = id
	}
	if uid, ok := ctx.Value(userKey).(string); ok && uid != "" {
		fields["user_id"] = uid
	}
	if len(fields) == 0 {
		return entry.WithContext(ctx)
	}
	return entry.WithContext(ctx).WithFields(fields)
}
