package journals

import (
	"time"

	"github.com/google/uuid"
)

// JournalStatus enumerates journal lifecycle values. Transitions are one way:
// a posted entry is immutable and corrected only by offsetting entries.
type JournalStatus string

const (
	JournalStatusDraft  JournalStatus = "DRAFT"
	JournalStatusPosted JournalStatus = "POSTED"
)

// JournalEntry captures posting metadata.
type JournalEntry struct {
	ID           int64
	Date         time.Time
	Reference    string
	Memo         string
	SourceModule string
	SourceID     uuid.UUID
	PostedBy     int64
	PostedAt     time.Time
	Status       JournalStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Lines        []JournalLine
}

// JournalLine stores debit or credit amount for an account.
type JournalLine struct {
	ID           int64
	JournalID    int64
	AccountID    int64
	Debit        float64
	Credit       float64
	CostCenterID *int64
	Memo         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
