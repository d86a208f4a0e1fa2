package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian/internal/ledger/journals"
	"github.com/meridian-erp/meridian/internal/shared"
)

const qtyEpsilon = 0.0001

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// LedgerHooks builds ledger postings for movements that carry a value effect.
type LedgerHooks interface {
	RevaluationPosting(ctx context.Context, evt RevaluationEvent) (journals.PostingInput, error)
}

// RevaluationEvent describes a cost restatement handed to the ledger.
type RevaluationEvent struct {
	Code            string
	WarehouseID     int64
	ProductID       int64
	Delta           float64
	ContraAccountID int64
	ActorID         int64
	PostedAt        time.Time
	Note            string
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// BlockNegativeStock hardens the default soft-warning policy into a
	// rejection when an issue would drive quantity below zero.
	BlockNegativeStock bool
}

// Service coordinates inventory operations. Every movement runs in one
// transaction with the touched position rows locked, so average cost is a
// pure function of prior state and the movement.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	hooks       LedgerHooks
	blockNeg    bool
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, cfg ServiceConfig, hooks LedgerHooks) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem, hooks: hooks, blockNeg: cfg.BlockNegativeStock, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Receive posts an inbound receipt and folds its cost into the weighted
// average.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (MovementResult, error) {
	if input.WarehouseID == 0 || input.ProductID == 0 {
		return MovementResult{}, errors.New("inventory: warehouse and product required")
	}
	if input.Qty <= 0 {
		return MovementResult{}, ErrInvalidQuantity
	}
	if input.UnitCost < 0 {
		return MovementResult{}, ErrInvalidUnitCost
	}
	now := s.now().UTC()
	code := movementCode(input.Code, "RCV", now)

	var result MovementResult
	err := s.withIdempotency(ctx, MovementTypeReceipt, code, input.WarehouseID, input.ProductID, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			position, err := lockPosition(ctx, tx, input.WarehouseID, input.ProductID)
			if err != nil {
				return err
			}
			position, err = receiveInto(position, input.Qty, input.UnitCost)
			if err != nil {
				return err
			}
			movementID, err := s.writeMovement(ctx, tx, Movement{
				Code:        code,
				Type:        MovementTypeReceipt,
				WarehouseID: input.WarehouseID,
				RefModule:   input.RefModule,
				RefID:       input.RefID,
				Note:        input.Note,
				PostedAt:    now,
				CreatedBy:   input.ActorID,
			}, []MovementLine{{ProductID: input.ProductID, Qty: input.Qty, UnitCost: input.UnitCost, DstWarehouseID: input.WarehouseID}})
			if err != nil {
				return err
			}
			card, err := s.writeCard(ctx, tx, position, movementID, code, MovementTypeReceipt, input.Qty, input.UnitCost, now, input.Note)
			if err != nil {
				return err
			}
			if err := tx.UpsertPosition(ctx, position); err != nil {
				return err
			}
			result = MovementResult{Card: card, Position: position}
			return nil
		})
	})
	if err != nil {
		return MovementResult{}, err
	}
	s.recordAudit(ctx, input.ActorID, MovementTypeReceipt, input.WarehouseID, input.ProductID, input.Qty, input.Note)
	return result, nil
}

// Issue posts an outbound movement at the position's current average cost.
// The average never changes on the way out.
func (s *Service) Issue(ctx context.Context, input IssueInput) (MovementResult, error) {
	if input.WarehouseID == 0 || input.ProductID == 0 {
		return MovementResult{}, errors.New("inventory: warehouse and product required")
	}
	if input.Qty <= 0 {
		return MovementResult{}, ErrInvalidQuantity
	}
	now := s.now().UTC()
	code := movementCode(input.Code, "ISS", now)

	var result MovementResult
	err := s.withIdempotency(ctx, MovementTypeIssue, code, input.WarehouseID, input.ProductID, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			position, err := lockPosition(ctx, tx, input.WarehouseID, input.ProductID)
			if err != nil {
				return err
			}
			position, warning, err := s.issueFrom(position, input.Qty)
			if err != nil {
				return err
			}
			movementID, err := s.writeMovement(ctx, tx, Movement{
				Code:        code,
				Type:        MovementTypeIssue,
				WarehouseID: input.WarehouseID,
				RefModule:   input.RefModule,
				RefID:       input.RefID,
				Note:        input.Note,
				PostedAt:    now,
				CreatedBy:   input.ActorID,
			}, []MovementLine{{ProductID: input.ProductID, Qty: -input.Qty, UnitCost: position.AvgCost, SrcWarehouseID: input.WarehouseID}})
			if err != nil {
				return err
			}
			card, err := s.writeCard(ctx, tx, position, movementID, code, MovementTypeIssue, -input.Qty, position.AvgCost, now, input.Note)
			if err != nil {
				return err
			}
			if err := tx.UpsertPosition(ctx, position); err != nil {
				return err
			}
			result = MovementResult{Card: card, Position: position, Warning: warning}
			return nil
		})
	})
	if err != nil {
		return MovementResult{}, err
	}
	s.recordAudit(ctx, input.ActorID, MovementTypeIssue, input.WarehouseID, input.ProductID, -input.Qty, input.Note)
	return result, nil
}

// Transfer issues at the source and receives at the destination in one
// transaction. The item carries the source's average cost with it.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (MovementResult, MovementResult, error) {
	if input.SrcWarehouse == 0 || input.DstWarehouse == 0 || input.ProductID == 0 {
		return MovementResult{}, MovementResult{}, errors.New("inventory: warehouse and product required")
	}
	if input.SrcWarehouse == input.DstWarehouse {
		return MovementResult{}, MovementResult{}, ErrSameWarehouse
	}
	if input.Qty <= 0 {
		return MovementResult{}, MovementResult{}, ErrInvalidQuantity
	}
	now := s.now().UTC()
	code := movementCode(input.Code, "TRF", now)

	var out, in MovementResult
	err := s.withIdempotency(ctx, MovementTypeTransfer, code, input.SrcWarehouse, input.ProductID, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			src, err := lockPosition(ctx, tx, input.SrcWarehouse, input.ProductID)
			if err != nil {
				return err
			}
			carriedCost := src.AvgCost
			src, warning, err := s.issueFrom(src, input.Qty)
			if err != nil {
				return err
			}
			dst, err := lockPosition(ctx, tx, input.DstWarehouse, input.ProductID)
			if err != nil {
				return err
			}
			dst, err = receiveInto(dst, input.Qty, carriedCost)
			if err != nil {
				return err
			}
			movementID, err := s.writeMovement(ctx, tx, Movement{
				Code:        code,
				Type:        MovementTypeTransfer,
				WarehouseID: input.SrcWarehouse,
				RefModule:   input.RefModule,
				RefID:       input.RefID,
				Note:        input.Note,
				PostedAt:    now,
				CreatedBy:   input.ActorID,
			}, []MovementLine{{
				ProductID:      input.ProductID,
				Qty:            input.Qty,
				UnitCost:       carriedCost,
				SrcWarehouseID: input.SrcWarehouse,
				DstWarehouseID: input.DstWarehouse,
			}})
			if err != nil {
				return err
			}
			outCard, err := s.writeCard(ctx, tx, src, movementID, code+"-OUT", MovementTypeTransfer, -input.Qty, carriedCost, now,
				fmt.Sprintf("Transfer to %d: %s", input.DstWarehouse, input.Note))
			if err != nil {
				return err
			}
			inCard, err := s.writeCard(ctx, tx, dst, movementID, code+"-IN", MovementTypeTransfer, input.Qty, carriedCost, now,
				fmt.Sprintf("Transfer from %d: %s", input.SrcWarehouse, input.Note))
			if err != nil {
				return err
			}
			if err := tx.UpsertPosition(ctx, src); err != nil {
				return err
			}
			if err := tx.UpsertPosition(ctx, dst); err != nil {
				return err
			}
			out = MovementResult{Card: outCard, Position: src, Warning: warning}
			in = MovementResult{Card: inCard, Position: dst}
			return nil
		})
	})
	if err != nil {
		return MovementResult{}, MovementResult{}, err
	}
	s.recordAudit(ctx, input.ActorID, MovementTypeTransfer, input.SrcWarehouse, input.ProductID, input.Qty, input.Note)
	return out, in, nil
}

// Revalue restates the position to the new unit cost and posts the value
// delta against the contra account. Position update and journal entry share
// one transaction.
func (s *Service) Revalue(ctx context.Context, input RevalueInput) (RevalueResult, error) {
	if input.WarehouseID == 0 || input.ProductID == 0 {
		return RevalueResult{}, errors.New("inventory: warehouse and product required")
	}
	if input.NewUnitCost < 0 {
		return RevalueResult{}, ErrInvalidUnitCost
	}
	if input.ContraAccountID == 0 {
		return RevalueResult{}, ErrMissingContraAccount
	}
	if s.hooks == nil {
		return RevalueResult{}, errors.New("inventory: ledger hooks not configured")
	}
	now := s.now().UTC()
	code := movementCode(input.Code, "RVL", now)

	var result RevalueResult
	err := s.withIdempotency(ctx, MovementTypeRevalue, code, input.WarehouseID, input.ProductID, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			position, err := tx.GetPositionForUpdate(ctx, input.WarehouseID, input.ProductID)
			if err != nil {
				return err
			}
			if position.Qty < qtyEpsilon {
				return ErrZeroQuantityCost
			}
			delta := round2((input.NewUnitCost - position.AvgCost) * position.Qty)
			if math.Abs(delta) < 0.005 {
				return ErrZeroDelta
			}
			posting, err := s.hooks.RevaluationPosting(ctx, RevaluationEvent{
				Code:            code,
				WarehouseID:     input.WarehouseID,
				ProductID:       input.ProductID,
				Delta:           delta,
				ContraAccountID: input.ContraAccountID,
				ActorID:         input.ActorID,
				PostedAt:        now,
				Note:            input.Note,
			})
			if err != nil {
				return err
			}
			if err := posting.Validate(); err != nil {
				return err
			}
			entry, err := tx.PostJournal(ctx, posting, posting.Reference)
			if err != nil {
				return err
			}
			position.AvgCost = input.NewUnitCost
			movementID, err := s.writeMovement(ctx, tx, Movement{
				Code:        code,
				Type:        MovementTypeRevalue,
				WarehouseID: input.WarehouseID,
				RefModule:   "LEDGER",
				RefID:       entry.SourceID.String(),
				Note:        input.Note,
				PostedAt:    now,
				CreatedBy:   input.ActorID,
			}, []MovementLine{{ProductID: input.ProductID, Qty: 0, UnitCost: input.NewUnitCost, DstWarehouseID: input.WarehouseID}})
			if err != nil {
				return err
			}
			if _, err := s.writeCard(ctx, tx, position, movementID, code, MovementTypeRevalue, 0, input.NewUnitCost, now, input.Note); err != nil {
				return err
			}
			if err := tx.UpsertPosition(ctx, position); err != nil {
				return err
			}
			result = RevalueResult{Position: position, Delta: delta, JournalID: entry.ID, JournalRef: entry.Reference}
			return nil
		})
	})
	if err != nil {
		return RevalueResult{}, err
	}
	s.recordAudit(ctx, input.ActorID, MovementTypeRevalue, input.WarehouseID, input.ProductID, 0, input.Note)
	return result, nil
}

// Produce consumes BOM components at their current average costs, adds
// overhead, and receives the finished good at the derived unit cost.
func (s *Service) Produce(ctx context.Context, input ProduceInput) (ProduceResult, error) {
	if input.WarehouseID == 0 || input.ProductID == 0 {
		return ProduceResult{}, errors.New("inventory: warehouse and product required")
	}
	if input.Qty <= 0 {
		return ProduceResult{}, ErrInvalidQuantity
	}
	if len(input.Components) == 0 {
		return ProduceResult{}, errors.New("inventory: at least one component required")
	}
	if input.Overhead < 0 {
		return ProduceResult{}, ErrInvalidUnitCost
	}
	for _, comp := range input.Components {
		if comp.ProductID == 0 || comp.Qty <= 0 {
			return ProduceResult{}, ErrInvalidQuantity
		}
		if comp.ProductID == input.ProductID {
			return ProduceResult{}, errors.New("inventory: finished good cannot consume itself")
		}
	}
	now := s.now().UTC()
	code := movementCode(input.Code, "PRD", now)

	var result ProduceResult
	err := s.withIdempotency(ctx, MovementTypeProduce, code, input.WarehouseID, input.ProductID, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			lines := make([]MovementLine, 0, len(input.Components)+1)
			consumed := make([]MovementResult, 0, len(input.Components))
			var totalCost float64

			type pendingCard struct {
				position Position
				suffix   string
				qty      float64
				cost     float64
				note     string
			}
			var cards []pendingCard

			for _, comp := range input.Components {
				position, err := lockPosition(ctx, tx, input.WarehouseID, comp.ProductID)
				if err != nil {
					return err
				}
				componentCost := position.AvgCost
				position, warning, err := s.issueFrom(position, comp.Qty)
				if err != nil {
					return err
				}
				totalCost += comp.Qty * componentCost
				lines = append(lines, MovementLine{
					ProductID:      comp.ProductID,
					Qty:            -comp.Qty,
					UnitCost:       componentCost,
					SrcWarehouseID: input.WarehouseID,
				})
				if err := tx.UpsertPosition(ctx, position); err != nil {
					return err
				}
				cards = append(cards, pendingCard{
					position: position,
					suffix:   fmt.Sprintf("-C%d", comp.ProductID),
					qty:      -comp.Qty,
					cost:     componentCost,
					note:     fmt.Sprintf("Consumed for %s", code),
				})
				consumed = append(consumed, MovementResult{Position: position, Warning: warning})
			}

			totalCost += input.Overhead
			unitCost := round2(totalCost / input.Qty)

			finished, err := lockPosition(ctx, tx, input.WarehouseID, input.ProductID)
			if err != nil {
				return err
			}
			finished, err = receiveInto(finished, input.Qty, unitCost)
			if err != nil {
				return err
			}
			lines = append(lines, MovementLine{
				ProductID:      input.ProductID,
				Qty:            input.Qty,
				UnitCost:       unitCost,
				DstWarehouseID: input.WarehouseID,
			})
			if err := tx.UpsertPosition(ctx, finished); err != nil {
				return err
			}

			movementID, err := s.writeMovement(ctx, tx, Movement{
				Code:        code,
				Type:        MovementTypeProduce,
				WarehouseID: input.WarehouseID,
				Note:        input.Note,
				PostedAt:    now,
				CreatedBy:   input.ActorID,
			}, lines)
			if err != nil {
				return err
			}
			for i, pc := range cards {
				card, err := s.writeCard(ctx, tx, pc.position, movementID, code+pc.suffix, MovementTypeProduce, pc.qty, pc.cost, now, pc.note)
				if err != nil {
					return err
				}
				consumed[i].Card = card
			}
			finishedCard, err := s.writeCard(ctx, tx, finished, movementID, code, MovementTypeProduce, input.Qty, unitCost, now, input.Note)
			if err != nil {
				return err
			}
			result = ProduceResult{
				Finished:   MovementResult{Card: finishedCard, Position: finished},
				Components: consumed,
				UnitCost:   unitCost,
			}
			return nil
		})
	})
	if err != nil {
		return ProduceResult{}, err
	}
	s.recordAudit(ctx, input.ActorID, MovementTypeProduce, input.WarehouseID, input.ProductID, input.Qty, input.Note)
	return result, nil
}

// StockCard lists stock card entries.
func (s *Service) StockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error) {
	if filter.WarehouseID == 0 || filter.ProductID == 0 {
		return nil, errors.New("inventory: warehouse and product required")
	}
	return s.repo.GetStockCard(ctx, filter)
}

// Positions lists current positions, optionally scoped to a warehouse.
func (s *Service) Positions(ctx context.Context, warehouseID int64) ([]Position, error) {
	return s.repo.ListPositions(ctx, warehouseID)
}

// receiveInto folds qty at unitCost into the position's weighted average.
func receiveInto(position Position, qty, unitCost float64) (Position, error) {
	newQty := position.Qty + qty
	if math.Abs(newQty) < qtyEpsilon {
		return Position{}, ErrZeroQuantityCost
	}
	totalCost := position.Qty*position.AvgCost + qty*unitCost
	position.Qty = newQty
	position.AvgCost = totalCost / newQty
	return position, nil
}

// issueFrom removes qty at the current average. The average is left alone,
// including when the balance goes negative under the soft policy.
func (s *Service) issueFrom(position Position, qty float64) (Position, string, error) {
	newQty := position.Qty - qty
	if math.Abs(newQty) < qtyEpsilon {
		newQty = 0
	}
	var warning string
	if newQty < 0 {
		if s.blockNeg {
			return Position{}, "", ErrNegativeStock
		}
		warning = fmt.Sprintf("insufficient stock: balance %.2f after issuing %.2f", newQty, qty)
	}
	position.Qty = newQty
	return position, warning, nil
}

func (s *Service) writeMovement(ctx context.Context, tx TxRepository, movement Movement, lines []MovementLine) (int64, error) {
	movementID, err := tx.InsertMovement(ctx, movement)
	if err != nil {
		return 0, err
	}
	if err := tx.InsertMovementLines(ctx, movementID, lines); err != nil {
		return 0, err
	}
	return movementID, nil
}

func (s *Service) writeCard(ctx context.Context, tx TxRepository, position Position, movementID int64, code string, txType MovementType, qtyChange, unitCost float64, postedAt time.Time, note string) (StockCardEntry, error) {
	card := StockCardEntry{
		TxCode:      code,
		TxType:      txType,
		PostedAt:    postedAt,
		QtyIn:       math.Max(qtyChange, 0),
		QtyOut:      math.Max(-qtyChange, 0),
		BalanceQty:  position.Qty,
		UnitCost:    unitCost,
		BalanceCost: position.AvgCost,
		Note:        note,
	}
	if err := tx.InsertCardEntry(ctx, card, position.WarehouseID, position.ProductID, movementID); err != nil {
		return StockCardEntry{}, err
	}
	return card, nil
}

func (s *Service) withIdempotency(ctx context.Context, txType MovementType, code string, warehouseID, productID int64, fn func() error) error {
	if s.idempotency == nil {
		return fn()
	}
	key := fmt.Sprintf("%s:%s:%d:%d", txType, code, warehouseID, productID)
	if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
		return err
	}
	if err := fn(); err != nil {
		_ = s.idempotency.Delete(ctx, key)
		return err
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, txType MovementType, warehouseID, productID int64, qty float64, note string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   fmt.Sprintf("inventory:%s", txType),
		Entity:   "inventory_movement",
		EntityID: fmt.Sprintf("%s:%d", txType, productID),
		Meta: map[string]any{
			"warehouse_id": warehouseID,
			"product_id":   productID,
			"qty":          qty,
			"note":         note,
		},
		At: s.now(),
	})
}

func movementCode(code, prefix string, now time.Time) string {
	if code != "" {
		return code
	}
	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixNano(), uuid.NewString()[:8])
}

func lockPosition(ctx context.Context, tx TxRepository, warehouseID, productID int64) (Position, error) {
	position, err := tx.GetPositionForUpdate(ctx, warehouseID, productID)
	if err != nil && !errors.Is(err, ErrPositionNotFound) {
		return Position{}, err
	}
	return position, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
