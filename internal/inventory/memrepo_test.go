package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryRepo backs service tests with in-process state and real transaction
// semantics: a unit of work runs on a copy and only commits on success.
type memoryState struct {
	levels       map[string]StockLevel
	movements    []StockMovement
	refs         map[string]struct{}
	batches      map[uuid.UUID]Batch
	reservations map[uuid.UUID]Reservation
}

type memoryRepo struct {
	mu    sync.Mutex
	state memoryState
}

type memoryTx struct {
	state *memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{
		levels:       map[string]StockLevel{},
		refs:         map[string]struct{}{},
		batches:      map[uuid.UUID]Batch{},
		reservations: map[uuid.UUID]Reservation{},
	}}
}

func levelKey(warehouseID, itemID int64) string {
	return fmt.Sprintf("%d:%d", warehouseID, itemID)
}

func refKey(warehouseID, itemID int64, ref Reference) string {
	return fmt.Sprintf("%d:%d:%s:%s", warehouseID, itemID, ref.Type, ref.ID)
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		levels:       make(map[string]StockLevel, len(s.levels)),
		movements:    make([]StockMovement, len(s.movements)),
		refs:         make(map[string]struct{}, len(s.refs)),
		batches:      make(map[uuid.UUID]Batch, len(s.batches)),
		reservations: make(map[uuid.UUID]Reservation, len(s.reservations)),
	}
	for k, v := range s.levels {
		out.levels[k] = v
	}
	copy(out.movements, s.movements)
	for k := range s.refs {
		out.refs[k] = struct{}{}
	}
	for k, v := range s.batches {
		out.batches[k] = v
	}
	for k, v := range s.reservations {
		out.reservations[k] = v
	}
	return out
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	staged := r.state.clone()
	if err := fn(ctx, &memoryTx{state: &staged}); err != nil {
		return err
	}
	r.state = staged
	return nil
}

func (r *memoryRepo) GetLevel(ctx context.Context, warehouseID, itemID int64) (StockLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	level, ok := r.state.levels[levelKey(warehouseID, itemID)]
	if !ok {
		return StockLevel{WarehouseID: warehouseID, ItemID: itemID}, ErrLevelNotFound
	}
	return level, nil
}

func (r *memoryRepo) ListLevels(ctx context.Context, warehouseID int64) ([]StockLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	levels := []StockLevel{}
	for _, level := range r.state.levels {
		if level.WarehouseID == warehouseID {
			levels = append(levels, level)
		}
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].ItemID < levels[j].ItemID })
	return levels, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	movements := []StockMovement{}
	for _, m := range r.state.movements {
		if m.WarehouseID != filter.WarehouseID {
			continue
		}
		if filter.ItemID != 0 && m.ItemID != filter.ItemID {
			continue
		}
		if filter.Kind != "" && m.Kind != filter.Kind {
			continue
		}
		if !filter.From.IsZero() && m.PostedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && m.PostedAt.After(filter.To) {
			continue
		}
		movements = append(movements, m)
	}
	sort.SliceStable(movements, func(i, j int) bool { return movements[i].PostedAt.After(movements[j].PostedAt) })
	if filter.Limit > 0 && len(movements) > filter.Limit {
		movements = movements[:filter.Limit]
	}
	return movements, nil
}

func (r *memoryRepo) ListBatches(ctx context.Context, warehouseID, itemID int64) ([]Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	batches := []Batch{}
	for _, b := range r.state.batches {
		if b.WarehouseID == warehouseID && b.ItemID == itemID {
			batches = append(batches, b)
		}
	}
	sort.Slice(batches, func(i, j int) bool {
		if !batches[i].ReceivedAt.Equal(batches[j].ReceivedAt) {
			return batches[i].ReceivedAt.Before(batches[j].ReceivedAt)
		}
		return batches[i].BatchNumber < batches[j].BatchNumber
	})
	return batches, nil
}

func (r *memoryRepo) SumMovements(ctx context.Context, warehouseID, itemID int64, asOf time.Time) ([]MovementSum, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byItem := map[int64]MovementSum{}
	for _, m := range r.state.movements {
		if m.WarehouseID != warehouseID {
			continue
		}
		if itemID != 0 && m.ItemID != itemID {
			continue
		}
		if !asOf.IsZero() && m.PostedAt.After(asOf) {
			continue
		}
		sum := byItem[m.ItemID]
		sum.ItemID = m.ItemID
		sum.Quantity = sum.Quantity.Add(m.Quantity)
		sum.Value = sum.Value.Add(m.Quantity.Mul(m.UnitCost))
		byItem[m.ItemID] = sum
	}
	sums := make([]MovementSum, 0, len(byItem))
	for _, sum := range byItem {
		sums = append(sums, sum)
	}
	sort.Slice(sums, func(i, j int) bool { return sums[i].ItemID < sums[j].ItemID })
	return sums, nil
}

func (r *memoryRepo) GetReservation(ctx context.Context, id uuid.UUID) (Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.state.reservations[id]
	if !ok {
		return Reservation{}, ErrReservationNotFound
	}
	return res, nil
}

func (r *memoryRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	expired := []Reservation{}
	for _, res := range r.state.reservations {
		if res.Status == ReservationActive && !res.ExpiresAt.IsZero() && res.ExpiresAt.Before(now) {
			expired = append(expired, res)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ExpiresAt.Before(expired[j].ExpiresAt) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, movement StockMovement) error {
	key := refKey(movement.WarehouseID, movement.ItemID, movement.Reference)
	if _, ok := tx.state.refs[key]; ok {
		return ErrDuplicateReference
	}
	tx.state.refs[key] = struct{}{}
	tx.state.movements = append(tx.state.movements, movement)
	return nil
}

func (tx *memoryTx) GetLevelForUpdate(ctx context.Context, warehouseID, itemID int64) (StockLevel, error) {
	level, ok := tx.state.levels[levelKey(warehouseID, itemID)]
	if !ok {
		return StockLevel{WarehouseID: warehouseID, ItemID: itemID}, ErrLevelNotFound
	}
	return level, nil
}

func (tx *memoryTx) UpsertLevel(ctx context.Context, level StockLevel) error {
	tx.state.levels[levelKey(level.WarehouseID, level.ItemID)] = level
	return nil
}

func (tx *memoryTx) FindBatchByNumber(ctx context.Context, warehouseID, itemID int64, batchNumber string) (Batch, error) {
	for _, b := range tx.state.batches {
		if b.WarehouseID == warehouseID && b.ItemID == itemID && b.BatchNumber == batchNumber {
			return b, nil
		}
	}
	return Batch{}, ErrBatchNotFound
}

func (tx *memoryTx) InsertBatch(ctx context.Context, batch Batch) error {
	tx.state.batches[batch.ID] = batch
	return nil
}

func (tx *memoryTx) GetBatchForUpdate(ctx context.Context, id uuid.UUID) (Batch, error) {
	batch, ok := tx.state.batches[id]
	if !ok {
		return Batch{}, ErrBatchNotFound
	}
	return batch, nil
}

func (tx *memoryTx) UpdateBatch(ctx context.Context, batch Batch) error {
	tx.state.batches[batch.ID] = batch
	return nil
}

func (tx *memoryTx) InsertReservation(ctx context.Context, reservation Reservation) error {
	tx.state.reservations[reservation.ID] = reservation
	return nil
}

func (tx *memoryTx) GetReservationForUpdate(ctx context.Context, id uuid.UUID) (Reservation, error) {
	res, ok := tx.state.reservations[id]
	if !ok {
		return Reservation{}, ErrReservationNotFound
	}
	return res, nil
}

func (tx *memoryTx) UpdateReservation(ctx context.Context, reservation Reservation) error {
	tx.state.reservations[reservation.ID] = reservation
	return nil
}
