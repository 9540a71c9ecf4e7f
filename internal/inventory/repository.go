package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrLevelNotFound indicates a missing stock level row. Levels are created
// lazily on first movement for a key.
var ErrLevelNotFound = errors.New("inventory: stock level not found")

// MovementSum aggregates replayed ledger rows for one item.
type MovementSum struct {
	ItemID   int64
	Quantity decimal.Decimal
	Value    decimal.Decimal
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetLevel(ctx context.Context, warehouseID, itemID int64) (StockLevel, error)
	ListLevels(ctx context.Context, warehouseID int64) ([]StockLevel, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error)
	// ListBatches returns batches for a key ordered by received date then id,
	// the candidate order for FIFO allocation.
	ListBatches(ctx context.Context, warehouseID, itemID int64) ([]Batch, error)
	// SumMovements replays the ledger up to asOf. A zero itemID means all
	// items in the warehouse.
	SumMovements(ctx context.Context, warehouseID, itemID int64, asOf time.Time) ([]MovementSum, error)
	GetReservation(ctx context.Context, id uuid.UUID) (Reservation, error)
	// ListExpired returns ACTIVE reservations whose expiry has passed.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Reservation, error)
}

// TxRepository exposes transactional operations used by the service. All
// writes for one operation commit together or not at all.
type TxRepository interface {
	// InsertMovement appends a ledger row. A duplicate (warehouse, item,
	// reference type, reference id) combination fails with
	// ErrDuplicateReference.
	InsertMovement(ctx context.Context, movement StockMovement) error
	GetLevelForUpdate(ctx context.Context, warehouseID, itemID int64) (StockLevel, error)
	UpsertLevel(ctx context.Context, level StockLevel) error

	FindBatchByNumber(ctx context.Context, warehouseID, itemID int64, batchNumber string) (Batch, error)
	InsertBatch(ctx context.Context, batch Batch) error
	GetBatchForUpdate(ctx context.Context, id uuid.UUID) (Batch, error)
	UpdateBatch(ctx context.Context, batch Batch) error

	InsertReservation(ctx context.Context, reservation Reservation) error
	GetReservationForUpdate(ctx context.Context, id uuid.UUID) (Reservation, error)
	UpdateReservation(ctx context.Context, reservation Reservation) error
}
