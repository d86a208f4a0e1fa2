package closing

import (
	"errors"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian/internal/ledger/journals"
)

// CloseInput carries parameters for a fiscal year close.
type CloseInput struct {
	Year    int
	ActorID int64
	Memo    string
}

// Validate checks the close request before any work starts.
func (in CloseInput) Validate() error {
	if in.Year < 1900 || in.Year > 9999 {
		return errors.New("closing: year out of range")
	}
	return nil
}

// Reference builds the reserved closing reference for the year.
func (in CloseInput) Reference() string {
	return fmt.Sprintf("CLOSE-%d", in.Year)
}

// YearEnd returns the last day of the fiscal year in UTC.
func (in CloseInput) YearEnd() time.Time {
	return time.Date(in.Year, time.December, 31, 0, 0, 0, 0, time.UTC)
}

// CloseResult reports the outcome of a completed close.
type CloseResult struct {
	Entry          journals.JournalEntry `json:"entry"`
	NetIncome      float64               `json:"net_income"`
	ZeroedAccounts int                   `json:"zeroed_accounts"`
}

// PLBalance is the cumulative net movement of one profit and loss leaf
// account through year end. Net uses the debit-positive convention.
type PLBalance struct {
	AccountID int64
	Code      string
	Net       float64
}
