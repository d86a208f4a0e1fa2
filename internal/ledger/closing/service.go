package closing

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian/internal/ledger/journals"
	"github.com/meridian-erp/meridian/internal/ledger/settings"
	"github.com/meridian-erp/meridian/internal/ledger/shared"
	internalShared "github.com/meridian-erp/meridian/internal/shared"
)

// amounts below half a cent are treated as already zero
const closeEpsilon = 0.005

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// CacheBumper invalidates derived balance caches after a commit.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// Service runs fiscal year closes. The close posts one balanced entry that
// zeroes every profit and loss leaf and moves the net result to retained
// earnings, then advances the closed boundary, all in one transaction.
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

// CloseYear performs the year end close for the given fiscal year.
func (s *Service) CloseYear(ctx context.Context, in CloseInput) (CloseResult, error) {
	if err := in.Validate(); err != nil {
		return CloseResult{}, err
	}
	var result CloseResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx CloseTx) error {
		reference := in.Reference()
		taken, err := tx.HasReference(ctx, reference)
		if err != nil {
			return err
		}
		if taken {
			return shared.ErrYearAlreadyClosed
		}
		yearEnd := in.YearEnd()
		lastClosed, err := tx.LastClosedDate(ctx)
		if err != nil {
			return err
		}
		if !lastClosed.Before(yearEnd) {
			return shared.ErrYearAlreadyClosed
		}

		balances, err := tx.ProfitAndLossThrough(ctx, yearEnd)
		if err != nil {
			return err
		}
		lines, netIncome := buildClosingLines(balances)
		zeroed := len(lines)
		if zeroed == 0 {
			return shared.ErrNothingToClose
		}

		retainedID, err := tx.MappedAccount(ctx, settings.MappingRetainedEarnings)
		if err != nil {
			return err
		}
		if line, ok := retainedEarningsLine(retainedID, netIncome); ok {
			lines = append(lines, line)
		}

		posting := journals.PostingInput{
			Date:         yearEnd,
			Reference:    reference,
			Memo:         closeMemo(in),
			SourceModule: "CLOSING",
			SourceID:     uuid.New(),
			PostedBy:     in.ActorID,
			Lines:        lines,
		}
		if err := posting.Validate(); err != nil {
			return err
		}
		entry, err := tx.PostJournal(ctx, posting, reference)
		if err != nil {
			return err
		}
		if err := tx.AdvanceLastClosedDate(ctx, yearEnd); err != nil {
			return err
		}
		result = CloseResult{Entry: entry, NetIncome: netIncome, ZeroedAccounts: zeroed}
		return nil
	})
	if err != nil {
		return CloseResult{}, err
	}
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, internalShared.AuditLog{
			ActorID:  in.ActorID,
			Action:   "period.close",
			Entity:   "journal_entry",
			EntityID: fmt.Sprintf("%d", result.Entry.ID),
			Meta: map[string]any{
				"year":       in.Year,
				"reference":  result.Entry.Reference,
				"net_income": result.NetIncome,
			},
			At: s.now(),
		})
	}
	return result, nil
}

// buildClosingLines offsets every nonzero profit and loss balance and
// returns the net income, positive when revenue exceeds expense.
func buildClosingLines(balances []PLBalance) ([]journals.PostingLineInput, float64) {
	var lines []journals.PostingLineInput
	var netIncome float64
	for _, b := range balances {
		if math.Abs(b.Net) < closeEpsilon {
			continue
		}
		line := journals.PostingLineInput{AccountID: b.AccountID, Memo: "Year end close"}
		if b.Net > 0 {
			line.Credit = round2(b.Net)
		} else {
			line.Debit = round2(-b.Net)
		}
		netIncome -= b.Net
		lines = append(lines, line)
	}
	return lines, round2(netIncome)
}

func retainedEarningsLine(accountID int64, netIncome float64) (journals.PostingLineInput, bool) {
	if math.Abs(netIncome) < closeEpsilon {
		return journals.PostingLineInput{}, false
	}
	line := journals.PostingLineInput{AccountID: accountID, Memo: "Net result to retained earnings"}
	if netIncome > 0 {
		line.Credit = netIncome
	} else {
		line.Debit = -netIncome
	}
	return line, true
}

func closeMemo(in CloseInput) string {
	if in.Memo != "" {
		return in.Memo
	}
	return fmt.Sprintf("Year end close %d", in.Year)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
