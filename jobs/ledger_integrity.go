package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian/internal/observability"
)

// IntegrityChecker verifies that every posted entry still balances and that
// the ledger as a whole nets to zero.
type IntegrityChecker struct {
	db      *pgxpool.Pool
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewIntegrityChecker constructs IntegrityChecker.
func NewIntegrityChecker(db *pgxpool.Pool, logger *slog.Logger, metrics *observability.Metrics) *IntegrityChecker {
	return &IntegrityChecker{db: db, logger: logger, metrics: metrics}
}

// Handle runs the sweep as an asynq task.
func (c *IntegrityChecker) Handle(ctx context.Context, t *asynq.Task) error {
	if err := c.Run(ctx); err != nil {
		c.metrics.ObserveJob(TaskLedgerIntegrity, "error")
		return err
	}
	c.metrics.ObserveJob(TaskLedgerIntegrity, "ok")
	return nil
}

// Run checks both the global net and per-entry balance of posted lines.
func (c *IntegrityChecker) Run(ctx context.Context) error {
	var totalDebit, totalCredit float64
	err := c.db.QueryRow(ctx, `SELECT COALESCE(SUM(jl.debit),0), COALESCE(SUM(jl.credit),0)
FROM journal_lines jl
JOIN journal_entries je ON je.id = jl.je_id
WHERE je.status='POSTED'`).Scan(&totalDebit, &totalCredit)
	if err != nil {
		return err
	}
	if diff := totalDebit - totalCredit; diff > 0.01 || diff < -0.01 {
		c.logger.Error("ledger out of balance",
			slog.Float64("total_debit", totalDebit),
			slog.Float64("total_credit", totalCredit))
		return fmt.Errorf("jobs: ledger out of balance by %.2f", diff)
	}

	rows, err := c.db.Query(ctx, `SELECT je.id, je.reference, SUM(jl.debit) - SUM(jl.credit) AS diff
FROM journal_entries je
JOIN journal_lines jl ON jl.je_id = je.id
WHERE je.status='POSTED'
GROUP BY je.id, je.reference
HAVING ABS(SUM(jl.debit) - SUM(jl.credit)) > 0.01`)
	if err != nil {
		return err
	}
	defer rows.Close()
	broken := 0
	for rows.Next() {
		var id int64
		var reference string
		var diff float64
		if err := rows.Scan(&id, &reference, &diff); err != nil {
			return err
		}
		broken++
		c.logger.Error("unbalanced journal entry",
			slog.Int64("entry_id", id),
			slog.String("reference", reference),
			slog.Float64("diff", diff))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if broken > 0 {
		return fmt.Errorf("jobs: %d unbalanced journal entries", broken)
	}
	c.logger.Info("ledger integrity sweep clean",
		slog.Float64("total_debit", totalDebit),
		slog.Float64("total_credit", totalCredit))
	return nil
}
