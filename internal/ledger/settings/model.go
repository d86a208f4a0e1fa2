package settings

import "time"

// Settings carries organization-wide ledger configuration. The core treats it
// as read-only; only period closing advances LastClosedDate.
type Settings struct {
	LastClosedDate time.Time
	BaseCurrency   string
	UpdatedAt      time.Time
}

// AccountMapping binds a logical role (retained earnings, inventory stock,
// revaluation gain) to a concrete account id. Resolving business roles to
// accounts is configuration, never hardcoded in the engine.
type AccountMapping struct {
	Key       string
	AccountID int64
	CreatedAt time.Time
}

// Well-known mapping keys consumed by the core.
const (
	MappingRetainedEarnings = "close.retained_earnings"
	MappingInventoryStock   = "inventory.stock"
)
