package inventory

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Allocate selects batches to satisfy the requested quantity in FIFO order.
// It is a read-only selection: nothing is decremented until the caller posts
// the outbound movement consuming the returned lines. Expired batches are
// skipped unless allowExpired is set, in which case they are eligible and
// flagged so the caller can branch (e.g. write-offs).
func (s *Service) Allocate(ctx context.Context, warehouseID, itemID int64, quantity decimal.Decimal, allowExpired bool) ([]Allocation, error) {
	if warehouseID == 0 || itemID == 0 {
		return nil, errors.New("inventory: warehouse and item required")
	}
	if !quantity.IsPositive() {
		return nil, ErrInvalidQuantity
	}
	batches, err := s.repo.ListBatches(ctx, warehouseID, itemID)
	if err != nil {
		return nil, err
	}
	return SelectBatches(batches, quantity, allowExpired, s.now())
}

// SelectBatches is the pure FIFO selection: candidates ordered by received
// date ascending, ties broken by batch number ascending, greedily taking
// min(remaining, still needed) from each. Fails with
// ErrInsufficientStockAcrossBatches when the candidates cannot cover the
// request.
func SelectBatches(batches []Batch, quantity decimal.Decimal, allowExpired bool, now time.Time) ([]Allocation, error) {
	sorted := make([]Batch, len(batches))
	copy(sorted, batches)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].ReceivedAt.Equal(sorted[j].ReceivedAt) {
			return sorted[i].ReceivedAt.Before(sorted[j].ReceivedAt)
		}
		return sorted[i].BatchNumber < sorted[j].BatchNumber
	})

	needed := quantity
	var allocations []Allocation
	for _, batch := range sorted {
		if !batch.Remaining.IsPositive() {
			continue
		}
		expired := batch.Expired(now)
		if expired && !allowExpired {
			continue
		}
		take := decimal.Min(batch.Remaining, needed)
		allocations = append(allocations, Allocation{
			BatchID:     batch.ID,
			BatchNumber: batch.BatchNumber,
			Quantity:    take,
			UnitCost:    batch.UnitCost,
			ExpiresAt:   batch.ExpiresAt,
			IsExpired:   expired,
		})
		needed = needed.Sub(take)
		if needed.IsZero() {
			return allocations, nil
		}
	}
	return nil, ErrInsufficientStockAcrossBatches
}
