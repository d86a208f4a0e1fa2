package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian/internal/observability"
	"github.com/meridian-erp/meridian/internal/shared"
)

const idempotencyRetention = 7 * 24 * time.Hour

// IdempotencyCleaner prunes processed movement keys past retention.
type IdempotencyCleaner struct {
	store   *shared.IdempotencyStore
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewIdempotencyCleaner constructs IdempotencyCleaner.
func NewIdempotencyCleaner(store *shared.IdempotencyStore, logger *slog.Logger, metrics *observability.Metrics) *IdempotencyCleaner {
	return &IdempotencyCleaner{store: store, logger: logger, metrics: metrics}
}

// Handle runs the cleanup as an asynq task.
func (c *IdempotencyCleaner) Handle(ctx context.Context, t *asynq.Task) error {
	if err := c.store.Cleanup(ctx, idempotencyRetention); err != nil {
		c.metrics.ObserveJob(TaskIdempotencyCleanup, "error")
		return err
	}
	c.metrics.ObserveJob(TaskIdempotencyCleanup, "ok")
	c.logger.Info("idempotency keys pruned", slog.Duration("retention", idempotencyRetention))
	return nil
}
