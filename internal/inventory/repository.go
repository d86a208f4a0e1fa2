package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian/internal/ledger/journals"
	"github.com/meridian-erp/meridian/internal/platform/db"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error)
	ListPositions(ctx context.Context, warehouseID int64) ([]Position, error)
}

// TxRepository exposes transactional operations used by the service. The
// position row stays locked for the duration of the movement so the
// read-modify-write of qty and average cost is serialized.
type TxRepository interface {
	GetPositionForUpdate(ctx context.Context, warehouseID, productID int64) (Position, error)
	UpsertPosition(ctx context.Context, position Position) error
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
	InsertMovementLines(ctx context.Context, movementID int64, lines []MovementLine) error
	InsertCardEntry(ctx context.Context, card StockCardEntry, warehouseID, productID, movementID int64) error
	PostJournal(ctx context.Context, in journals.PostingInput, reference string) (journals.JournalEntry, error)
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func (r *Repository) GetStockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT tx_code, tx_type, posted_at, qty_in, qty_out, balance_qty, unit_cost, balance_cost, note
FROM stock_cards
WHERE warehouse_id=$1 AND product_id=$2
  AND ($3::timestamptz IS NULL OR posted_at >= $3)
  AND ($4::timestamptz IS NULL OR posted_at <= $4)
ORDER BY posted_at DESC, id DESC
LIMIT $5`, filter.WarehouseID, filter.ProductID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cards []StockCardEntry
	for rows.Next() {
		var c StockCardEntry
		if err := rows.Scan(&c.TxCode, &c.TxType, &c.PostedAt, &c.QtyIn, &c.QtyOut, &c.BalanceQty, &c.UnitCost, &c.BalanceCost, &c.Note); err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

func (r *Repository) ListPositions(ctx context.Context, warehouseID int64) ([]Position, error) {
	rows, err := r.pool.Query(ctx, `SELECT warehouse_id, product_id, qty, avg_cost, updated_at
FROM inventory_positions
WHERE ($1 = 0 OR warehouse_id = $1)
ORDER BY warehouse_id, product_id`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var positions []Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.WarehouseID, &p.ProductID, &p.Qty, &p.AvgCost, &p.UpdatedAt); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

type txRepo struct {
	tx pgx.Tx
}

func (r *txRepo) GetPositionForUpdate(ctx context.Context, warehouseID, productID int64) (Position, error) {
	var p Position
	err := r.tx.QueryRow(ctx, `SELECT warehouse_id, product_id, qty, avg_cost, updated_at
FROM inventory_positions WHERE warehouse_id=$1 AND product_id=$2 FOR UPDATE`, warehouseID, productID).
		Scan(&p.WarehouseID, &p.ProductID, &p.Qty, &p.AvgCost, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Position{WarehouseID: warehouseID, ProductID: productID}, ErrPositionNotFound
		}
		return Position{}, err
	}
	return p, nil
}

func (r *txRepo) UpsertPosition(ctx context.Context, position Position) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_positions (warehouse_id, product_id, qty, avg_cost, updated_at)
VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (warehouse_id, product_id) DO UPDATE SET qty=EXCLUDED.qty, avg_cost=EXCLUDED.avg_cost, updated_at=NOW()`,
		position.WarehouseID, position.ProductID, position.Qty, position.AvgCost)
	return err
}

func (r *txRepo) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_movements (code, tx_type, warehouse_id, ref_module, ref_id, note, posted_at, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		movement.Code, movement.Type, movement.WarehouseID, movement.RefModule, nullString(movement.RefID), movement.Note, movement.PostedAt, nullInt(movement.CreatedBy)).
		Scan(&id)
	return id, err
}

func (r *txRepo) InsertMovementLines(ctx context.Context, movementID int64, lines []MovementLine) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO inventory_movement_lines (movement_id, product_id, qty, unit_cost, src_warehouse_id, dst_warehouse_id)
VALUES ($1,$2,$3,$4,$5,$6)`,
			movementID, line.ProductID, line.Qty, line.UnitCost, nullInt(line.SrcWarehouseID), nullInt(line.DstWarehouseID)); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepo) InsertCardEntry(ctx context.Context, card StockCardEntry, warehouseID, productID, movementID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_cards (warehouse_id, product_id, movement_id, tx_code, tx_type, qty_in, qty_out, balance_qty, unit_cost, balance_cost, posted_at, note)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		warehouseID, productID, movementID, card.TxCode, card.TxType, card.QtyIn, card.QtyOut, card.BalanceQty, card.UnitCost, card.BalanceCost, card.PostedAt, card.Note)
	return err
}

func (r *txRepo) PostJournal(ctx context.Context, in journals.PostingInput, reference string) (journals.JournalEntry, error) {
	return journals.PostInTx(ctx, journals.NewTxRepository(r.tx), in, reference)
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}

func nullString(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}
