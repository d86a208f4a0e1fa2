// Package integration wires cross-module effects: inventory movements that
// carry a value change are translated into balanced ledger postings here.
package integration

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian/internal/inventory"
	"github.com/meridian-erp/meridian/internal/ledger/journals"
	"github.com/meridian-erp/meridian/internal/ledger/settings"
)

// SettingsPort resolves logical account roles to concrete account ids.
type SettingsPort interface {
	GetMapping(ctx context.Context, key string) (settings.AccountMapping, error)
}

// LedgerHooks builds journal postings for inventory value events. The stock
// account comes from configuration, the contra account from the caller.
type LedgerHooks struct {
	settings SettingsPort
}

// NewLedgerHooks constructs LedgerHooks.
func NewLedgerHooks(settings SettingsPort) *LedgerHooks {
	return &LedgerHooks{settings: settings}
}

// RevaluationPosting maps a cost restatement to a two-line entry. A positive
// delta writes the stock up (debit inventory, credit contra); a negative
// delta writes it down.
func (h *LedgerHooks) RevaluationPosting(ctx context.Context, evt inventory.RevaluationEvent) (journals.PostingInput, error) {
	mapping, err := h.settings.GetMapping(ctx, settings.MappingInventoryStock)
	if err != nil {
		return journals.PostingInput{}, err
	}
	amount := evt.Delta
	stockLine := journals.PostingLineInput{AccountID: mapping.AccountID, Memo: revalMemo(evt)}
	contraLine := journals.PostingLineInput{AccountID: evt.ContraAccountID, Memo: revalMemo(evt)}
	if amount > 0 {
		stockLine.Debit = amount
		contraLine.Credit = amount
	} else {
		stockLine.Credit = -amount
		contraLine.Debit = -amount
	}
	return journals.PostingInput{
		Date:         evt.PostedAt,
		Reference:    fmt.Sprintf("%s-GL", evt.Code),
		Memo:         revalMemo(evt),
		SourceModule: "INVENTORY",
		SourceID:     uuid.New(),
		PostedBy:     evt.ActorID,
		Lines:        []journals.PostingLineInput{stockLine, contraLine},
	}, nil
}

func revalMemo(evt inventory.RevaluationEvent) string {
	if evt.Note != "" {
		return evt.Note
	}
	return fmt.Sprintf("Inventory revaluation %s (product %d, warehouse %d)", evt.Code, evt.ProductID, evt.WarehouseID)
}
