package closing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian/internal/ledger/journals"
	"github.com/meridian-erp/meridian/internal/ledger/shared"
	"github.com/meridian-erp/meridian/internal/platform/db"
)

// Repository opens the transaction a year close runs in.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, CloseTx) error) error
}

// CloseTx exposes the operations available inside a close transaction. The
// closing entry is posted through the journal engine so every posting
// invariant applies to the close itself.
type CloseTx interface {
	HasReference(ctx context.Context, reference string) (bool, error)
	LastClosedDate(ctx context.Context) (time.Time, error)
	ProfitAndLossThrough(ctx context.Context, asOf time.Time) ([]PLBalance, error)
	MappedAccount(ctx context.Context, key string) (int64, error)
	PostJournal(ctx context.Context, in journals.PostingInput, reference string) (journals.JournalEntry, error)
	AdvanceLastClosedDate(ctx context.Context, to time.Time) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a pgx backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, CloseTx) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &closeTx{tx: tx})
	})
}

type closeTx struct {
	tx pgx.Tx
}

func (c *closeTx) HasReference(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := c.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM journal_entries WHERE reference=$1)`, reference).Scan(&exists)
	return exists, err
}

func (c *closeTx) LastClosedDate(ctx context.Context) (time.Time, error) {
	var closed *time.Time
	err := c.tx.QueryRow(ctx, `SELECT last_closed_date FROM org_settings WHERE id=1`).Scan(&closed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	if closed == nil {
		return time.Time{}, nil
	}
	return *closed, nil
}

func (c *closeTx) ProfitAndLossThrough(ctx context.Context, asOf time.Time) ([]PLBalance, error) {
	rows, err := c.tx.Query(ctx, `SELECT a.id, a.code, COALESCE(SUM(jl.debit - jl.credit),0)
FROM accounts a
JOIN journal_lines jl ON jl.account_id = a.id
JOIN journal_entries je ON je.id = jl.je_id
WHERE a.type IN ('REVENUE','EXPENSE') AND a.is_group = FALSE
  AND je.status='POSTED' AND je.date <= $1
GROUP BY a.id, a.code
ORDER BY a.code`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var balances []PLBalance
	for rows.Next() {
		var b PLBalance
		if err := rows.Scan(&b.AccountID, &b.Code, &b.Net); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

func (c *closeTx) MappedAccount(ctx context.Context, key string) (int64, error) {
	var accountID int64
	err := c.tx.QueryRow(ctx, `SELECT account_id FROM account_mappings WHERE key=$1`, key).Scan(&accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrMappingNotFound
		}
		return 0, err
	}
	return accountID, nil
}

func (c *closeTx) PostJournal(ctx context.Context, in journals.PostingInput, reference string) (journals.JournalEntry, error) {
	return journals.PostInTx(ctx, journals.NewTxRepository(c.tx), in, reference)
}

func (c *closeTx) AdvanceLastClosedDate(ctx context.Context, to time.Time) error {
	_, err := c.tx.Exec(ctx, `UPDATE org_settings SET last_closed_date=$1, updated_at=NOW() WHERE id=1`, to)
	return err
}
