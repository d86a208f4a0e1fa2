package jobs

import (
	"context"
	"log/slog"
	"math"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian/internal/inventory"
	"github.com/meridian-erp/meridian/internal/observability"
)

// RevalScanner flags positions that warrant a manual revaluation: negative
// balances under the soft policy and residual value stuck on zero-quantity
// positions. It never restates costs itself.
type RevalScanner struct {
	positions inventory.RepositoryPort
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewRevalScanner constructs RevalScanner.
func NewRevalScanner(positions inventory.RepositoryPort, logger *slog.Logger, metrics *observability.Metrics) *RevalScanner {
	return &RevalScanner{positions: positions, logger: logger, metrics: metrics}
}

// Handle runs the scan as an asynq task.
func (s *RevalScanner) Handle(ctx context.Context, t *asynq.Task) error {
	if err := s.Run(ctx); err != nil {
		s.metrics.ObserveJob(TaskInventoryRevalScan, "error")
		return err
	}
	s.metrics.ObserveJob(TaskInventoryRevalScan, "ok")
	return nil
}

// Run lists all positions and logs revaluation candidates.
func (s *RevalScanner) Run(ctx context.Context) error {
	positions, err := s.positions.ListPositions(ctx, 0)
	if err != nil {
		return err
	}
	flagged := 0
	for _, p := range positions {
		switch {
		case p.Qty < -0.0001:
			flagged++
			s.logger.Warn("negative stock position",
				slog.Int64("warehouse_id", p.WarehouseID),
				slog.Int64("product_id", p.ProductID),
				slog.Float64("qty", p.Qty),
				slog.Float64("avg_cost", p.AvgCost))
		case math.Abs(p.Qty) < 0.0001 && math.Abs(p.Value()) > 0.01:
			flagged++
			s.logger.Warn("residual value on empty position",
				slog.Int64("warehouse_id", p.WarehouseID),
				slog.Int64("product_id", p.ProductID),
				slog.Float64("value", p.Value()))
		}
	}
	s.logger.Info("inventory revaluation scan finished",
		slog.Int("positions", len(positions)),
		slog.Int("flagged", flagged))
	return nil
}
