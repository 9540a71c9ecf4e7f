package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementKind enumerates supported inventory movements. The sign of a
// movement is derived from its kind: inbound kinds add to physical stock,
// outbound kinds subtract.
type MovementKind string

const (
	// KindReceipt represents goods received against a purchase document.
	KindReceipt MovementKind = "RECEIPT"
	// KindSale represents an outbound dispatch against a sales document.
	KindSale MovementKind = "SALE"
	// KindSaleReturn represents goods coming back from a customer.
	KindSaleReturn MovementKind = "SALE_RETURN"
	// KindPurchaseReturn represents goods sent back to a vendor.
	KindPurchaseReturn MovementKind = "PURCHASE_RETURN"
	// KindAdjustmentIn is a manual correction adding stock.
	KindAdjustmentIn MovementKind = "ADJUSTMENT_IN"
	// KindAdjustmentOut is a manual correction removing stock. It is the only
	// kind permitted to drive physical stock negative, and only when the
	// caller acknowledges a known shortage.
	KindAdjustmentOut MovementKind = "ADJUSTMENT_OUT"
	// KindTransferIn is the receiving leg of a warehouse transfer.
	KindTransferIn MovementKind = "TRANSFER_IN"
	// KindTransferOut is the dispatching leg of a warehouse transfer.
	KindTransferOut MovementKind = "TRANSFER_OUT"
)

// Inbound reports whether the kind adds to physical stock.
func (k MovementKind) Inbound() bool {
	switch k {
	case KindReceipt, KindSaleReturn, KindAdjustmentIn, KindTransferIn:
		return true
	}
	return false
}

// Valid reports whether the kind is one of the supported movements.
func (k MovementKind) Valid() bool {
	switch k {
	case KindReceipt, KindSale, KindSaleReturn, KindPurchaseReturn,
		KindAdjustmentIn, KindAdjustmentOut, KindTransferIn, KindTransferOut:
		return true
	}
	return false
}

// Reference identifies the upstream document that caused a movement. The
// (Type, ID) pair is the idempotency key per (warehouse, item); values are
// opaque to this module.
type Reference struct {
	Type   string
	ID     string
	Number string
}

// StockMovement is an immutable ledger entry. Rows are terminal on creation;
// corrections are new entries, never updates.
type StockMovement struct {
	ID          uuid.UUID
	WarehouseID int64
	ItemID      int64
	Kind        MovementKind
	Quantity    decimal.Decimal // signed
	UnitCost    decimal.Decimal
	Reference   Reference
	StockBefore decimal.Decimal
	StockAfter  decimal.Decimal
	Note        string
	PostedAt    time.Time
	ActorID     int64
}

// StockLevel is the mutable aggregate per (warehouse, item) key. It is a
// projection of the ledger and is rebuildable from it; mutations happen only
// under the key's exclusive hold.
type StockLevel struct {
	WarehouseID int64
	ItemID      int64
	Physical    decimal.Decimal
	Reserved    decimal.Decimal
	AvgCost     decimal.Decimal
	UpdatedAt   time.Time
}

// Available returns physical minus reserved quantity.
func (l StockLevel) Available() decimal.Decimal {
	return l.Physical.Sub(l.Reserved)
}

// Value returns the carrying value of physical stock at average cost.
func (l StockLevel) Value() decimal.Decimal {
	return l.Physical.Mul(l.AvgCost)
}

// ReservationStatus tracks the reservation state machine. ACTIVE is the only
// non-terminal state.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationFulfilled ReservationStatus = "FULFILLED"
	ReservationCancelled ReservationStatus = "CANCELLED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

// ReleaseReasonExpired marks a release performed by the expiry sweep; it
// transitions the reservation to EXPIRED instead of CANCELLED.
const ReleaseReasonExpired = "expired"

// Reservation is a soft hold reducing available stock without consuming
// physical stock.
type Reservation struct {
	ID            uuid.UUID
	WarehouseID   int64
	ItemID        int64
	Reserved      decimal.Decimal
	Fulfilled     decimal.Decimal
	Status        ReservationStatus
	Reference     Reference
	ReleaseReason string
	CreatedAt     time.Time
	ExpiresAt     time.Time // zero means the hold never expires
}

// Remaining returns the unfulfilled quantity.
func (r Reservation) Remaining() decimal.Decimal {
	return r.Reserved.Sub(r.Fulfilled)
}

// Batch is a physically distinct lot below StockLevel granularity, used for
// FIFO picking. Batch rows are mutated only while holding the key's lock.
type Batch struct {
	ID          uuid.UUID
	WarehouseID int64
	ItemID      int64
	BatchNumber string
	ReceivedAt  time.Time
	ExpiresAt   time.Time // zero means no expiry
	UnitCost    decimal.Decimal
	Quantity    decimal.Decimal
	Remaining   decimal.Decimal
}

// Expired reports whether the batch is past its expiry as of now.
func (b Batch) Expired(now time.Time) bool {
	return !b.ExpiresAt.IsZero() && b.ExpiresAt.Before(now)
}

// BatchConsumption names a batch and the quantity an outbound movement takes
// from it.
type BatchConsumption struct {
	BatchID  uuid.UUID
	Quantity decimal.Decimal
}

// Allocation is one line of a FIFO allocation result.
type Allocation struct {
	BatchID     uuid.UUID
	BatchNumber string
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	ExpiresAt   time.Time
	IsExpired   bool
}

// VarianceRow reports reconciliation output for one item.
type VarianceRow struct {
	ItemID     int64
	Calculated decimal.Decimal
	Recorded   decimal.Decimal
	Variance   decimal.Decimal
}

// ValuationRow reports replayed stock value for one item as of a date.
type ValuationRow struct {
	ItemID   int64
	Quantity decimal.Decimal
	Value    decimal.Decimal
}

// MovementFilter narrows movement history queries.
type MovementFilter struct {
	WarehouseID int64
	ItemID      int64
	Kind        MovementKind
	From        time.Time
	To          time.Time
	Limit       int
}

// Business-rule and caller errors surfaced by the service.
var (
	// ErrInsufficientStock indicates available stock cannot cover the request.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInsufficientStockAcrossBatches indicates batch remainders cannot
	// cover an allocation request.
	ErrInsufficientStockAcrossBatches = errors.New("inventory: insufficient stock across batches")
	// ErrDuplicateReference indicates the (reference type, id) pair already
	// produced a movement for the key.
	ErrDuplicateReference = errors.New("inventory: duplicate reference")
	// ErrInvalidState indicates an operation on a terminal reservation.
	ErrInvalidState = errors.New("inventory: reservation not active")
	// ErrOverFulfillment indicates a fulfillment beyond remaining quantity.
	ErrOverFulfillment = errors.New("inventory: fulfillment exceeds remaining quantity")
	// ErrInvalidQuantity indicates a zero or negative quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrInvalidUnitCost indicates a negative unit cost.
	ErrInvalidUnitCost = errors.New("inventory: unit cost must be >= 0")
	// ErrReservationNotFound indicates a missing reservation row.
	ErrReservationNotFound = errors.New("inventory: reservation not found")
	// ErrBatchNotFound indicates a missing batch row.
	ErrBatchNotFound = errors.New("inventory: batch not found")
)
