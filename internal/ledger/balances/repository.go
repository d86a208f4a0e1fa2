package balances

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AccountTotal carries raw posted debit/credit sums for one account.
type AccountTotal struct {
	AccountID int64
	Debit     float64
	Credit    float64
}

// Repository aggregates posted journal lines. Only POSTED entries count and
// boundary dates are inclusive on both ends.
type Repository interface {
	TotalsThrough(ctx context.Context, asOf time.Time) (map[int64]AccountTotal, error)
	TotalsBetween(ctx context.Context, start, end time.Time) (map[int64]AccountTotal, error)
	TotalsForAccount(ctx context.Context, accountID int64, start, end *time.Time) (AccountTotal, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a pgx backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) TotalsThrough(ctx context.Context, asOf time.Time) (map[int64]AccountTotal, error) {
	rows, err := r.db.Query(ctx, `SELECT jl.account_id, COALESCE(SUM(jl.debit),0), COALESCE(SUM(jl.credit),0)
FROM journal_lines jl
JOIN journal_entries je ON je.id = jl.je_id
WHERE je.status='POSTED' AND je.date <= $1
GROUP BY jl.account_id`, asOf)
	if err != nil {
		return nil, err
	}
	return collectTotals(rows)
}

func (r *repository) TotalsBetween(ctx context.Context, start, end time.Time) (map[int64]AccountTotal, error) {
	rows, err := r.db.Query(ctx, `SELECT jl.account_id, COALESCE(SUM(jl.debit),0), COALESCE(SUM(jl.credit),0)
FROM journal_lines jl
JOIN journal_entries je ON je.id = jl.je_id
WHERE je.status='POSTED' AND je.date >= $1 AND je.date <= $2
GROUP BY jl.account_id`, start, end)
	if err != nil {
		return nil, err
	}
	return collectTotals(rows)
}

func (r *repository) TotalsForAccount(ctx context.Context, accountID int64, start, end *time.Time) (AccountTotal, error) {
	total := AccountTotal{AccountID: accountID}
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(jl.debit),0), COALESCE(SUM(jl.credit),0)
FROM journal_lines jl
JOIN journal_entries je ON je.id = jl.je_id
WHERE je.status='POSTED' AND jl.account_id=$1
  AND ($2::timestamptz IS NULL OR je.date >= $2)
  AND ($3::timestamptz IS NULL OR je.date <= $3)`, accountID, start, end).
		Scan(&total.Debit, &total.Credit)
	return total, err
}

type totalRows interface {
	Next() bool
	Scan(dest ...any) error
	Close()
	Err() error
}

func collectTotals(rows totalRows) (map[int64]AccountTotal, error) {
	defer rows.Close()
	totals := make(map[int64]AccountTotal)
	for rows.Next() {
		var t AccountTotal
		if err := rows.Scan(&t.AccountID, &t.Debit, &t.Credit); err != nil {
			return nil, err
		}
		totals[t.AccountID] = t
	}
	return totals, rows.Err()
}
