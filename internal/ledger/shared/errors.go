package shared

import "errors"

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("ledger: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("ledger: journal requires at least two lines")
	// ErrMissingAccount indicates a line without an account reference.
	ErrMissingAccount = errors.New("ledger: journal line missing account")
	// ErrAccountNotFound indicates a line references an unknown account.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrGroupAccountPosting indicates a posting targets a group account.
	ErrGroupAccountPosting = errors.New("ledger: cannot post to a group account")
	// ErrClosedPeriod indicates the posting date falls inside a closed period.
	ErrClosedPeriod = errors.New("ledger: posting date inside closed period")
	// ErrDuplicateReference indicates the journal reference is already used.
	ErrDuplicateReference = errors.New("ledger: journal reference already used")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("ledger: journal entry not found")
	// ErrInvalidStatus indicates action can't proceed.
	ErrInvalidStatus = errors.New("ledger: invalid status transition")
	// ErrYearAlreadyClosed indicates a re-closing attempt.
	ErrYearAlreadyClosed = errors.New("ledger: fiscal year already closed")
	// ErrNothingToClose indicates every P&L account already sits at zero.
	ErrNothingToClose = errors.New("ledger: nothing to close")
	// ErrMappingNotFound indicates account mapping missing.
	ErrMappingNotFound = errors.New("ledger: account mapping not found")
)
