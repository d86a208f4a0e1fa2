package inventory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian/internal/ledger/journals"
)

type storedCard struct {
	card        StockCardEntry
	warehouseID int64
	productID   int64
}

type memoryRepo struct {
	positions map[string]Position
	movements []Movement
	lines     map[int64][]MovementLine
	cards     []storedCard
	postings  []journals.PostingInput
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		positions: make(map[string]Position),
		lines:     make(map[int64][]MovementLine),
	}
}

func posKey(warehouseID, productID int64) string {
	return fmt.Sprintf("%d:%d", warehouseID, productID)
}

func (r *memoryRepo) seed(warehouseID, productID int64, qty, avgCost float64) {
	r.positions[posKey(warehouseID, productID)] = Position{
		WarehouseID: warehouseID, ProductID: productID, Qty: qty, AvgCost: avgCost,
	}
}

func (r *memoryRepo) position(warehouseID, productID int64) Position {
	return r.positions[posKey(warehouseID, productID)]
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{
		repo:      r,
		positions: make(map[string]Position, len(r.positions)),
	}
	for k, v := range r.positions {
		tx.positions[k] = v
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.positions = tx.positions
	r.movements = append(r.movements, tx.movements...)
	for id, lines := range tx.lines {
		r.lines[id] = lines
	}
	r.cards = append(r.cards, tx.cards...)
	r.postings = append(r.postings, tx.postings...)
	return nil
}

func (r *memoryRepo) GetStockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error) {
	var out []StockCardEntry
	for _, sc := range r.cards {
		if sc.warehouseID == filter.WarehouseID && sc.productID == filter.ProductID {
			out = append(out, sc.card)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListPositions(ctx context.Context, warehouseID int64) ([]Position, error) {
	var out []Position
	for _, p := range r.positions {
		if warehouseID == 0 || p.WarehouseID == warehouseID {
			out = append(out, p)
		}
	}
	return out, nil
}

type memoryTx struct {
	repo      *memoryRepo
	positions map[string]Position
	movements []Movement
	lines     map[int64][]MovementLine
	cards     []storedCard
	postings  []journals.PostingInput
}

func (tx *memoryTx) GetPositionForUpdate(ctx context.Context, warehouseID, productID int64) (Position, error) {
	p, ok := tx.positions[posKey(warehouseID, productID)]
	if !ok {
		return Position{WarehouseID: warehouseID, ProductID: productID}, ErrPositionNotFound
	}
	return p, nil
}

func (tx *memoryTx) UpsertPosition(ctx context.Context, position Position) error {
	tx.positions[posKey(position.WarehouseID, position.ProductID)] = position
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	tx.repo.nextID++
	movement.ID = tx.repo.nextID
	tx.movements = append(tx.movements, movement)
	return movement.ID, nil
}

func (tx *memoryTx) InsertMovementLines(ctx context.Context, movementID int64, lines []MovementLine) error {
	if tx.lines == nil {
		tx.lines = make(map[int64][]MovementLine)
	}
	tx.lines[movementID] = lines
	return nil
}

func (tx *memoryTx) InsertCardEntry(ctx context.Context, card StockCardEntry, warehouseID, productID, movementID int64) error {
	tx.cards = append(tx.cards, storedCard{card: card, warehouseID: warehouseID, productID: productID})
	return nil
}

func (tx *memoryTx) PostJournal(ctx context.Context, in journals.PostingInput, reference string) (journals.JournalEntry, error) {
	tx.postings = append(tx.postings, in)
	return journals.JournalEntry{
		ID:        int64(len(tx.repo.postings) + len(tx.postings)),
		Date:      in.Date,
		Reference: reference,
		SourceID:  in.SourceID,
		Status:    journals.JournalStatusPosted,
	}, nil
}

type fakeHooks struct {
	stockAccount int64
}

func (h *fakeHooks) RevaluationPosting(ctx context.Context, evt RevaluationEvent) (journals.PostingInput, error) {
	stock := journals.PostingLineInput{AccountID: h.stockAccount}
	contra := journals.PostingLineInput{AccountID: evt.ContraAccountID}
	if evt.Delta > 0 {
		stock.Debit = evt.Delta
		contra.Credit = evt.Delta
	} else {
		stock.Credit = -evt.Delta
		contra.Debit = -evt.Delta
	}
	return journals.PostingInput{
		Date:         evt.PostedAt,
		Reference:    evt.Code + "-GL",
		SourceModule: "INVENTORY",
		SourceID:     uuid.New(),
		PostedBy:     evt.ActorID,
		Lines:        []journals.PostingLineInput{stock, contra},
	}, nil
}

func newTestService(repo *memoryRepo, cfg ServiceConfig) *Service {
	svc := NewService(repo, nil, nil, cfg, &fakeHooks{stockAccount: 150})
	svc.WithNow(func() time.Time {
		return time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)
	})
	return svc
}

func TestReceiveComputesWeightedAverage(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	first, err := svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ProductID: 10, Qty: 10, UnitCost: 100})
	require.NoError(t, err)
	require.InDelta(t, 10, first.Position.Qty, 0.001)
	require.InDelta(t, 100, first.Position.AvgCost, 0.001)

	second, err := svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ProductID: 10, Qty: 10, UnitCost: 200})
	require.NoError(t, err)
	require.InDelta(t, 20, second.Position.Qty, 0.001)
	require.InDelta(t, 150, second.Position.AvgCost, 0.001)
}

func TestReceiveValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo(), ServiceConfig{})
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ProductID: 10, Qty: 0, UnitCost: 100})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ProductID: 10, Qty: 5, UnitCost: -1})
	require.ErrorIs(t, err, ErrInvalidUnitCost)
}

func TestIssueLeavesAverageUntouched(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 10, 20, 150)
	svc := newTestService(repo, ServiceConfig{})

	result, err := svc.Issue(context.Background(), IssueInput{WarehouseID: 1, ProductID: 10, Qty: 5})
	require.NoError(t, err)
	require.InDelta(t, 15, result.Position.Qty, 0.001)
	require.InDelta(t, 150, result.Position.AvgCost, 0.001)
	require.Empty(t, result.Warning)
	require.InDelta(t, 150, result.Card.UnitCost, 0.001)
}

func TestIssueBeyondStockWarnsByDefault(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 10, 3, 80)
	svc := newTestService(repo, ServiceConfig{})

	result, err := svc.Issue(context.Background(), IssueInput{WarehouseID: 1, ProductID: 10, Qty: 5})
	require.NoError(t, err)
	require.InDelta(t, -2, result.Position.Qty, 0.001)
	require.InDelta(t, 80, result.Position.AvgCost, 0.001)
	require.Contains(t, result.Warning, "insufficient stock")
}

func TestIssueBeyondStockBlockedWhenConfigured(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 10, 3, 80)
	svc := newTestService(repo, ServiceConfig{BlockNegativeStock: true})

	_, err := svc.Issue(context.Background(), IssueInput{WarehouseID: 1, ProductID: 10, Qty: 5})
	require.ErrorIs(t, err, ErrNegativeStock)

	// Nothing committed.
	require.InDelta(t, 3, repo.position(1, 10).Qty, 0.001)
	require.Empty(t, repo.movements)
	require.Empty(t, repo.cards)
}

func TestTransferCarriesSourceCost(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 10, 10, 120)
	repo.seed(2, 10, 10, 200)
	svc := newTestService(repo, ServiceConfig{})

	out, in, err := svc.Transfer(context.Background(), TransferInput{
		ProductID: 10, Qty: 10, SrcWarehouse: 1, DstWarehouse: 2,
	})
	require.NoError(t, err)
	require.InDelta(t, 0, out.Position.Qty, 0.001)
	require.InDelta(t, 120, out.Position.AvgCost, 0.001, "source average survives a full issue")
	require.InDelta(t, 20, in.Position.Qty, 0.001)
	require.InDelta(t, 160, in.Position.AvgCost, 0.001, "destination blends at the source cost")
}

func TestTransferRejectsSameWarehouse(t *testing.T) {
	svc := newTestService(newMemoryRepo(), ServiceConfig{})
	_, _, err := svc.Transfer(context.Background(), TransferInput{ProductID: 10, Qty: 1, SrcWarehouse: 1, DstWarehouse: 1})
	require.ErrorIs(t, err, ErrSameWarehouse)
}

func TestRevaluePostsDeltaJournal(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 10, 20, 150)
	svc := newTestService(repo, ServiceConfig{})

	result, err := svc.Revalue(context.Background(), RevalueInput{
		WarehouseID: 1, ProductID: 10, NewUnitCost: 180, ContraAccountID: 720,
	})
	require.NoError(t, err)
	require.InDelta(t, 600, result.Delta, 0.001)
	require.InDelta(t, 180, result.Position.AvgCost, 0.001)
	require.InDelta(t, 20, result.Position.Qty, 0.001)

	require.Len(t, repo.postings, 1)
	posting := repo.postings[0]
	require.Len(t, posting.Lines, 2)
	require.InDelta(t, 600, posting.Lines[0].Debit, 0.001)
	require.Equal(t, int64(150), posting.Lines[0].AccountID)
	require.InDelta(t, 600, posting.Lines[1].Credit, 0.001)
	require.Equal(t, int64(720), posting.Lines[1].AccountID)
}

func TestRevalueDownwardSwapsSides(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 10, 10, 150)
	svc := newTestService(repo, ServiceConfig{})

	result, err := svc.Revalue(context.Background(), RevalueInput{
		WarehouseID: 1, ProductID: 10, NewUnitCost: 140, ContraAccountID: 720,
	})
	require.NoError(t, err)
	require.InDelta(t, -100, result.Delta, 0.001)

	posting := repo.postings[0]
	require.InDelta(t, 100, posting.Lines[0].Credit, 0.001)
	require.InDelta(t, 100, posting.Lines[1].Debit, 0.001)
}

func TestRevalueRejectsZeroDelta(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 10, 20, 150)
	svc := newTestService(repo, ServiceConfig{})

	_, err := svc.Revalue(context.Background(), RevalueInput{
		WarehouseID: 1, ProductID: 10, NewUnitCost: 150, ContraAccountID: 720,
	})
	require.ErrorIs(t, err, ErrZeroDelta)
	require.Empty(t, repo.postings)
}

func TestRevalueRejectsZeroQuantity(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 10, 0, 0)
	svc := newTestService(repo, ServiceConfig{})

	_, err := svc.Revalue(context.Background(), RevalueInput{
		WarehouseID: 1, ProductID: 10, NewUnitCost: 150, ContraAccountID: 720,
	})
	require.ErrorIs(t, err, ErrZeroQuantityCost)
}

func TestRevalueRequiresContraAccount(t *testing.T) {
	svc := newTestService(newMemoryRepo(), ServiceConfig{})
	_, err := svc.Revalue(context.Background(), RevalueInput{WarehouseID: 1, ProductID: 10, NewUnitCost: 150})
	require.ErrorIs(t, err, ErrMissingContraAccount)
}

func TestProduceDerivesUnitCost(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 20, 100, 10) // component A
	repo.seed(1, 30, 50, 4)   // component B
	svc := newTestService(repo, ServiceConfig{})

	result, err := svc.Produce(context.Background(), ProduceInput{
		WarehouseID: 1,
		ProductID:   40,
		Qty:         10,
		Components: []ComponentInput{
			{ProductID: 20, Qty: 5},  // 5 * 10 = 50
			{ProductID: 30, Qty: 10}, // 10 * 4 = 40
		},
		Overhead: 10, // total 100 for 10 units
	})
	require.NoError(t, err)
	require.InDelta(t, 10, result.UnitCost, 0.001)
	require.InDelta(t, 10, result.Finished.Position.Qty, 0.001)
	require.InDelta(t, 10, result.Finished.Position.AvgCost, 0.001)

	require.InDelta(t, 95, repo.position(1, 20).Qty, 0.001)
	require.InDelta(t, 40, repo.position(1, 30).Qty, 0.001)
	require.InDelta(t, 10, repo.position(1, 20).AvgCost, 0.001)
}

func TestProduceBlockedComponentRollsBackEverything(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 20, 100, 10)
	repo.seed(1, 30, 2, 4)
	svc := newTestService(repo, ServiceConfig{BlockNegativeStock: true})

	_, err := svc.Produce(context.Background(), ProduceInput{
		WarehouseID: 1,
		ProductID:   40,
		Qty:         10,
		Components: []ComponentInput{
			{ProductID: 20, Qty: 5},
			{ProductID: 30, Qty: 10},
		},
	})
	require.ErrorIs(t, err, ErrNegativeStock)

	require.InDelta(t, 100, repo.position(1, 20).Qty, 0.001)
	require.InDelta(t, 2, repo.position(1, 30).Qty, 0.001)
	require.Zero(t, repo.position(1, 40).Qty)
	require.Empty(t, repo.movements)
}

func TestProduceValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo(), ServiceConfig{})
	ctx := context.Background()

	_, err := svc.Produce(ctx, ProduceInput{WarehouseID: 1, ProductID: 40, Qty: 10})
	require.Error(t, err)

	_, err = svc.Produce(ctx, ProduceInput{
		WarehouseID: 1, ProductID: 40, Qty: 10,
		Components: []ComponentInput{{ProductID: 40, Qty: 1}},
	})
	require.Error(t, err)
}

func TestStockCardAccumulatesMovements(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ProductID: 10, Qty: 10, UnitCost: 100})
	require.NoError(t, err)
	_, err = svc.Issue(ctx, IssueInput{WarehouseID: 1, ProductID: 10, Qty: 4})
	require.NoError(t, err)

	cards, err := svc.StockCard(ctx, StockCardFilter{WarehouseID: 1, ProductID: 10})
	require.NoError(t, err)
	require.Len(t, cards, 2)
	require.InDelta(t, 10, cards[0].QtyIn, 0.001)
	require.InDelta(t, 4, cards[1].QtyOut, 0.001)
	require.InDelta(t, 6, cards[1].BalanceQty, 0.001)
}
