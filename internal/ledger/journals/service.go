package journals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian/internal/ledger/shared"
	internalShared "github.com/meridian-erp/meridian/internal/shared"
)

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// CacheBumper invalidates derived balance caches after a commit.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// Service validates and persists balanced journal entries.
type Service struct {
	repo  Repository
	audit AuditPort
	cache CacheBumper
	now   func() time.Time
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort, cache CacheBumper) *Service {
	return &Service{repo: repo, audit: audit, cache: cache, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) List(ctx context.Context, limit int) ([]JournalEntry, error) {
	return s.repo.List(ctx, limit)
}

func (s *Service) Get(ctx context.Context, entryID int64) (JournalEntry, error) {
	entry, lines, err := s.repo.GetWithLines(ctx, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

// Post validates and persists a balanced entry. On a reference collision the
// engine derives a numeric-suffixed reference and retries exactly once; a
// second collision is terminal. Header and lines commit atomically.
func (s *Service) Post(ctx context.Context, input PostingInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	entry, err := s.postOnce(ctx, input, input.Reference)
	if errors.Is(err, shared.ErrDuplicateReference) {
		entry, err = s.postOnce(ctx, input, input.Reference+"-2")
	}
	if err != nil {
		return JournalEntry{}, err
	}
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, internalShared.AuditLog{
			ActorID:  input.PostedBy,
			Action:   "journal.post",
			Entity:   "journal_entry",
			EntityID: fmt.Sprintf("%d", entry.ID),
			Meta: map[string]any{
				"reference":     entry.Reference,
				"source_module": input.SourceModule,
				"source_id":     input.SourceID.String(),
			},
			At: s.now(),
		})
	}
	return entry, nil
}

func (s *Service) postOnce(ctx context.Context, input PostingInput, reference string) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := PostInTx(ctx, tx, input, reference)
		if err != nil {
			return err
		}
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// PostInTx runs the posting checks and inserts inside an already open
// transaction. Composite operations (period close, inventory revaluation)
// reuse it so their journal rows share their transaction boundary.
func PostInTx(ctx context.Context, tx TxRepository, input PostingInput, reference string) (JournalEntry, error) {
	lastClosed, err := tx.GetLastClosedDate(ctx)
	if err != nil {
		return JournalEntry{}, err
	}
	if !lastClosed.IsZero() && !input.Date.After(lastClosed) {
		return JournalEntry{}, shared.ErrClosedPeriod
	}

	ids := make([]int64, 0, len(input.Lines))
	for _, line := range input.Lines {
		ids = append(ids, line.AccountID)
	}
	found, err := tx.LookupPostableAccounts(ctx, ids)
	if err != nil {
		return JournalEntry{}, err
	}
	for _, line := range input.Lines {
		account, ok := found[line.AccountID]
		if !ok {
			return JournalEntry{}, fmt.Errorf("account %d: %w", line.AccountID, shared.ErrAccountNotFound)
		}
		if account.IsGroup {
			return JournalEntry{}, fmt.Errorf("account %s: %w", account.Code, shared.ErrGroupAccountPosting)
		}
	}

	inserted, err := tx.InsertJournalEntry(ctx, input, reference)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := tx.InsertJournalLines(ctx, inserted.ID, input.Lines); err != nil {
		return JournalEntry{}, err
	}
	inserted.Lines = toJournalLines(inserted.ID, input.Lines)
	return inserted, nil
}

// Reverse produces a new offsetting entry with debit and credit swapped on
// every line, dated at the reversal date. The original is never mutated.
func (s *Service) Reverse(ctx context.Context, input ReverseInput) (JournalEntry, error) {
	if input.EntryID == 0 {
		return JournalEntry{}, errors.New("ledger: entry id required")
	}
	original, lines, err := s.repo.GetWithLines(ctx, input.EntryID)
	if err != nil {
		return JournalEntry{}, err
	}
	if original.Status != JournalStatusPosted {
		return JournalEntry{}, shared.ErrInvalidStatus
	}
	date := input.Date
	if date.IsZero() {
		date = s.now()
	}
	posting := PostingInput{
		Date:         date,
		Reference:    original.Reference + "-REV",
		Memo:         defaultReversalMemo(input.Memo, original.Reference),
		SourceModule: original.SourceModule + ":REVERSAL",
		SourceID:     uuid.New(),
		PostedBy:     input.ActorID,
		Lines:        reverseLines(lines),
	}
	reversal, err := s.Post(ctx, posting)
	if err != nil {
		return JournalEntry{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, internalShared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "journal.reverse",
			Entity:   "journal_entry",
			EntityID: fmt.Sprintf("%d", input.EntryID),
			Meta: map[string]any{
				"reversal_id":        reversal.ID,
				"reversal_reference": reversal.Reference,
			},
			At: s.now(),
		})
	}
	return reversal, nil
}

func reverseLines(lines []JournalLine) []PostingLineInput {
	out := make([]PostingLineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, PostingLineInput{
			AccountID:    line.AccountID,
			Debit:        line.Credit,
			Credit:       line.Debit,
			CostCenterID: line.CostCenterID,
			Memo:         line.Memo,
		})
	}
	return out
}

func toJournalLines(entryID int64, lines []PostingLineInput) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, JournalLine{
			JournalID:    entryID,
			AccountID:    line.AccountID,
			Debit:        line.Debit,
			Credit:       line.Credit,
			CostCenterID: line.CostCenterID,
			Memo:         line.Memo,
		})
	}
	return out
}

func defaultReversalMemo(memo, reference string) string {
	if memo != "" {
		return memo
	}
	return fmt.Sprintf("Reversal of %s", reference)
}
