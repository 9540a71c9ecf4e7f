package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementPostedEvent notifies downstream modules (costing, finance posting)
// that a ledger movement committed.
type MovementPostedEvent struct {
	MovementID  uuid.UUID
	WarehouseID int64
	ItemID      int64
	Kind        MovementKind
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	Reference   Reference
	PostedAt    time.Time
}

// IntegrationHandler receives inventory events for financial integration.
type IntegrationHandler interface {
	HandleStockMovementPosted(ctx context.Context, evt MovementPostedEvent) error
}
