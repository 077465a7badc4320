package domain

import (
	"time"

	"github.com/google/uuid"
)

// ImportKind is the channel a batch of trades arrived through
type ImportKind string

const (
	ImportKindCSV        ImportKind = "CSV"
	ImportKindScreenshot ImportKind = "SCREENSHOT"
)

// ImportRecord is the audit row of one import; it meters plan quotas
type ImportRecord struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Kind       ImportKind
	Format     string
	Imported   int
	Duplicates int
	Failed     int
	CreatedAt  time.Time
}
