package journals

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian/internal/ledger/shared"
)

// PostingLineInput describes a journal line for posting request.
type PostingLineInput struct {
	AccountID    int64
	Debit        float64
	Credit       float64
	CostCenterID *int64
	Memo         string
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	Date         time.Time
	Reference    string
	Memo         string
	SourceModule string
	SourceID     uuid.UUID
	PostedBy     int64
	Lines        []PostingLineInput
}

// Validate ensures posting input meets minimum criteria. Balance is a hard
// precondition checked before persistence is attempted.
func (in PostingInput) Validate() error {
	if in.Date.IsZero() {
		return errors.New("ledger: posting date required")
	}
	if in.Reference == "" {
		return errors.New("ledger: reference required")
	}
	if len(in.Lines) < 2 {
		return shared.ErrTooFewLines
	}
	var debit, credit float64
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("line %d: %w", idx, shared.ErrMissingAccount)
		}
		if line.Debit < 0 || line.Credit < 0 {
			return fmt.Errorf("ledger: line %d negative amount", idx)
		}
		if line.Debit > 0 && line.Credit > 0 {
			return fmt.Errorf("ledger: line %d cannot be both debit and credit", idx)
		}
		debit += line.Debit
		credit += line.Credit
	}
	if fmt.Sprintf("%.2f", debit) != fmt.Sprintf("%.2f", credit) {
		return shared.ErrUnbalanced
	}
	if in.SourceModule == "" {
		return errors.New("ledger: source module required")
	}
	if in.SourceID == uuid.Nil {
		return errors.New("ledger: source id required")
	}
	return nil
}

// ReverseInput wraps parameters for reversal by offsetting entry.
type ReverseInput struct {
	EntryID int64
	Date    time.Time
	ActorID int64
	Memo    string
}
