package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Reconcile recomputes stock for a warehouse (optionally one item) by
// replaying the ledger up to asOf and compares the result against the cached
// stock levels. It never corrects anything: a nonzero variance means the
// projection drifted from the ledger and needs operator attention, and
// healing it silently could mask a real integrity bug. Concurrent identical
// reconciliations share one execution.
func (s *Service) Reconcile(ctx context.Context, warehouseID, itemID int64, asOf time.Time) ([]VarianceRow, error) {
	if warehouseID == 0 {
		return nil, errors.New("inventory: warehouse required")
	}
	key := fmt.Sprintf("reconcile:%d:%d:%d", warehouseID, itemID, asOf.UnixNano())
	rows, err, _ := s.reconcileGroup.Do(key, func() (any, error) {
		return s.reconcile(ctx, warehouseID, itemID, asOf)
	})
	if err != nil {
		return nil, err
	}
	return rows.([]VarianceRow), nil
}

func (s *Service) reconcile(ctx context.Context, warehouseID, itemID int64, asOf time.Time) ([]VarianceRow, error) {
	sums, err := s.repo.SumMovements(ctx, warehouseID, itemID, asOf)
	if err != nil {
		return nil, err
	}
	calculated := make(map[int64]decimal.Decimal, len(sums))
	for _, sum := range sums {
		calculated[sum.ItemID] = sum.Quantity
	}

	recorded := make(map[int64]decimal.Decimal)
	if itemID != 0 {
		level, err := s.repo.GetLevel(ctx, warehouseID, itemID)
		if err != nil && !errors.Is(err, ErrLevelNotFound) {
			return nil, err
		}
		recorded[itemID] = level.Physical
	} else {
		levels, err := s.repo.ListLevels(ctx, warehouseID)
		if err != nil {
			return nil, err
		}
		for _, level := range levels {
			recorded[level.ItemID] = level.Physical
		}
	}

	itemIDs := make(map[int64]struct{}, len(calculated)+len(recorded))
	for id := range calculated {
		itemIDs[id] = struct{}{}
	}
	for id := range recorded {
		itemIDs[id] = struct{}{}
	}

	rows := make([]VarianceRow, 0, len(itemIDs))
	for id := range itemIDs {
		calc := calculated[id]
		rec := recorded[id]
		rows = append(rows, VarianceRow{
			ItemID:     id,
			Calculated: calc,
			Recorded:   rec,
			Variance:   calc.Sub(rec),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ItemID < rows[j].ItemID })
	return rows, nil
}

// Valuation reports replayed stock quantity and value per item as of a date.
// Items whose replayed quantity is zero or negative are omitted.
func (s *Service) Valuation(ctx context.Context, warehouseID int64, asOf time.Time) ([]ValuationRow, error) {
	if warehouseID == 0 {
		return nil, errors.New("inventory: warehouse required")
	}
	sums, err := s.repo.SumMovements(ctx, warehouseID, 0, asOf)
	if err != nil {
		return nil, err
	}
	rows := make([]ValuationRow, 0, len(sums))
	for _, sum := range sums {
		if !sum.Quantity.IsPositive() {
			continue
		}
		rows = append(rows, ValuationRow{
			ItemID:   sum.ItemID,
			Quantity: sum.Quantity,
			Value:    sum.Value,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ItemID < rows[j].ItemID })
	return rows, nil
}
