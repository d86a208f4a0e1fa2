package inventory

import (
	"errors"
	"time"
)

// MovementType enumerates supported inventory movements.
type MovementType string

const (
	// MovementTypeReceipt represents an inbound movement.
	MovementTypeReceipt MovementType = "RECEIPT"
	// MovementTypeIssue represents an outbound movement at average cost.
	MovementTypeIssue MovementType = "ISSUE"
	// MovementTypeTransfer moves stock between warehouses at source cost.
	MovementTypeTransfer MovementType = "TRANSFER"
	// MovementTypeAdjust indicates manual adjustments.
	MovementTypeAdjust MovementType = "ADJUST"
	// MovementTypeRevalue restates the carrying cost of a position.
	MovementTypeRevalue MovementType = "REVALUE"
	// MovementTypeProduce consumes components and receives a finished good.
	MovementTypeProduce MovementType = "PRODUCE"
)

// Position summarises stock per warehouse and product. Qty and AvgCost are
// only ever changed together inside a movement transaction.
type Position struct {
	WarehouseID int64
	ProductID   int64
	Qty         float64
	AvgCost     float64
	UpdatedAt   time.Time
}

// Value returns the carrying value of the position.
func (p Position) Value() float64 {
	return p.Qty * p.AvgCost
}

// Movement models the header of an inventory movement.
type Movement struct {
	ID          int64
	Code        string
	Type        MovementType
	WarehouseID int64
	RefModule   string
	RefID       string
	Note        string
	PostedAt    time.Time
	CreatedBy   int64
	CreatedAt   time.Time
}

// MovementLine models each product movement line.
type MovementLine struct {
	ID             int64
	MovementID     int64
	ProductID      int64
	Qty            float64
	UnitCost       float64
	SrcWarehouseID int64
	DstWarehouseID int64
}

// StockCardEntry describes an inventory card entry for reports.
type StockCardEntry struct {
	TxCode      string       `json:"tx_code"`
	TxType      MovementType `json:"tx_type"`
	PostedAt    time.Time    `json:"posted_at"`
	QtyIn       float64      `json:"qty_in"`
	QtyOut      float64      `json:"qty_out"`
	BalanceQty  float64      `json:"balance_qty"`
	UnitCost    float64      `json:"unit_cost"`
	BalanceCost float64      `json:"balance_cost"`
	Note        string       `json:"note"`
}

// MovementResult reports the outcome of a posted movement. Warning is set
// when the movement succeeded under the soft negative-stock policy.
type MovementResult struct {
	Card     StockCardEntry `json:"card"`
	Position Position       `json:"position"`
	Warning  string         `json:"warning,omitempty"`
}

// ReceiveInput describes an inbound receipt.
type ReceiveInput struct {
	Code        string
	WarehouseID int64
	ProductID   int64
	Qty         float64
	UnitCost    float64
	Note        string
	ActorID     int64
	RefModule   string
	RefID       string
}

// IssueInput describes an outbound issue. Cost always comes from the
// position's current average; callers never supply it.
type IssueInput struct {
	Code        string
	WarehouseID int64
	ProductID   int64
	Qty         float64
	Note        string
	ActorID     int64
	RefModule   string
	RefID       string
}

// TransferInput describes a transfer between warehouses.
type TransferInput struct {
	Code         string
	ProductID    int64
	Qty          float64
	SrcWarehouse int64
	DstWarehouse int64
	Note         string
	ActorID      int64
	RefModule    string
	RefID        string
}

// RevalueInput restates a position to a new unit cost. The value delta is
// posted to the ledger against the contra account.
type RevalueInput struct {
	Code            string
	WarehouseID     int64
	ProductID       int64
	NewUnitCost     float64
	ContraAccountID int64
	Note            string
	ActorID         int64
}

// ComponentInput is one BOM line consumed by a production order.
type ComponentInput struct {
	ProductID int64
	Qty       float64
}

// ProduceInput consumes components and receives the finished product at the
// derived unit cost.
type ProduceInput struct {
	Code        string
	WarehouseID int64
	ProductID   int64
	Qty         float64
	Components  []ComponentInput
	Overhead    float64
	Note        string
	ActorID     int64
}

// ProduceResult reports the finished receipt and the consumed components.
type ProduceResult struct {
	Finished   MovementResult   `json:"finished"`
	Components []MovementResult `json:"components"`
	UnitCost   float64          `json:"unit_cost"`
}

// RevalueResult reports the position restatement and the posted delta.
type RevalueResult struct {
	Position   Position `json:"position"`
	Delta      float64  `json:"delta"`
	JournalID  int64    `json:"journal_id"`
	JournalRef string   `json:"journal_ref"`
}

// StockCardFilter filters card entries.
type StockCardFilter struct {
	WarehouseID int64
	ProductID   int64
	From        time.Time
	To          time.Time
	Limit       int
}

// ErrNegativeStock triggered when a movement would drive qty negative and
// the hard block is enabled.
var ErrNegativeStock = errors.New("inventory: negative stock not allowed")

// ErrInvalidQuantity indicates invalid qty.
var ErrInvalidQuantity = errors.New("inventory: quantity must be positive")

// ErrInvalidUnitCost indicates invalid cost value.
var ErrInvalidUnitCost = errors.New("inventory: unit cost must be >= 0")

// ErrZeroQuantityCost indicates an average cost that cannot be derived
// because the resulting quantity is zero.
var ErrZeroQuantityCost = errors.New("inventory: cost undefined at zero quantity")

// ErrZeroDelta indicates a revaluation that changes nothing.
var ErrZeroDelta = errors.New("inventory: revaluation delta is zero")

// ErrMissingContraAccount indicates a revaluation without a contra account.
var ErrMissingContraAccount = errors.New("inventory: contra account required")

// ErrPositionNotFound indicates a missing position row.
var ErrPositionNotFound = errors.New("inventory: position not found")

// ErrSameWarehouse indicates a transfer onto itself.
var ErrSameWarehouse = errors.New("inventory: source and destination warehouse must differ")
