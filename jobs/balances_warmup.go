package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian/internal/ledger/balances"
	"github.com/meridian-erp/meridian/internal/observability"
)

// BalancesWarmer pre-builds the current month's trial balance so the first
// reader after a cache bump does not pay the aggregation cost.
type BalancesWarmer struct {
	service *balances.Service
	cache   *balances.Cache
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewBalancesWarmer constructs BalancesWarmer.
func NewBalancesWarmer(service *balances.Service, cache *balances.Cache, logger *slog.Logger, metrics *observability.Metrics) *BalancesWarmer {
	return &BalancesWarmer{service: service, cache: cache, logger: logger, metrics: metrics, now: time.Now}
}

// Handle runs the warmup as an asynq task.
func (w *BalancesWarmer) Handle(ctx context.Context, t *asynq.Task) error {
	if err := w.Run(ctx); err != nil {
		w.metrics.ObserveJob(TaskBalancesWarmup, "error")
		return err
	}
	w.metrics.ObserveJob(TaskBalancesWarmup, "ok")
	return nil
}

// Run rebuilds and caches the month-to-date trial balance.
func (w *BalancesWarmer) Run(ctx context.Context) error {
	now := w.now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	key, err := w.cache.BuildKey(ctx, "ledger", "tb", start.Format("2006-01-02"), end.Format("2006-01-02"))
	if err != nil {
		return err
	}
	var tb balances.TrialBalance
	if err := w.cache.FetchJSON(ctx, key, &tb, func(ctx context.Context) (interface{}, error) {
		return w.service.TrialBalance(ctx, start, end)
	}); err != nil {
		return err
	}
	w.logger.Info("trial balance cache warmed",
		slog.String("from", start.Format("2006-01-02")),
		slog.String("to", end.Format("2006-01-02")),
		slog.Int("groups", len(tb.Groups)))
	return nil
}
