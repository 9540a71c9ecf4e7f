package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ReserveInput describes a soft-hold request tied to a sales document.
type ReserveInput struct {
	WarehouseID int64
	ItemID      int64
	Quantity    decimal.Decimal
	Reference   Reference
	ActorID     int64
	// TTL overrides the service default; zero falls back to it.
	TTL time.Duration
}

// Reserve places a hold against available stock. A request that exceeds
// availability is rejected whole; there are no partial grants, so concurrent
// reservations for one key resolve deterministically in lock-acquisition
// order.
func (s *Service) Reserve(ctx context.Context, input ReserveInput) (Reservation, error) {
	if input.WarehouseID == 0 || input.ItemID == 0 {
		return Reservation{}, errors.New("inventory: warehouse and item required")
	}
	if !input.Quantity.IsPositive() {
		return Reservation{}, ErrInvalidQuantity
	}
	if input.Reference.Type == "" || input.Reference.ID == "" {
		return Reservation{}, errors.New("inventory: reference type and id required")
	}

	release, err := s.locks.Acquire(ctx, shared.StockLockKey(input.WarehouseID, input.ItemID))
	if err != nil {
		return Reservation{}, err
	}
	defer release()

	now := s.now()
	ttl := input.TTL
	if ttl <= 0 {
		ttl = s.reservationTTL
	}
	var reservation Reservation
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		level, err := tx.GetLevelForUpdate(ctx, input.WarehouseID, input.ItemID)
		if err != nil {
			if errors.Is(err, ErrLevelNotFound) {
				return ErrInsufficientStock
			}
			return err
		}
		if level.Available().LessThan(input.Quantity) {
			return ErrInsufficientStock
		}
		level.Reserved = level.Reserved.Add(input.Quantity)
		level.UpdatedAt = now
		if err := tx.UpsertLevel(ctx, level); err != nil {
			return err
		}

		reservation = Reservation{
			ID:          uuid.New(),
			WarehouseID: input.WarehouseID,
			ItemID:      input.ItemID,
			Reserved:    input.Quantity,
			Status:      ReservationActive,
			Reference:   input.Reference,
			CreatedAt:   now,
		}
		if ttl > 0 {
			reservation.ExpiresAt = now.Add(ttl)
		}
		return tx.InsertReservation(ctx, reservation)
	})
	if err != nil {
		return Reservation{}, err
	}

	s.recordAudit(ctx, input.ActorID, "inventory:reserve", "stock_reservation", reservation.ID.String(), map[string]any{
		"warehouse_id": input.WarehouseID,
		"item_id":      input.ItemID,
		"quantity":     input.Quantity.String(),
		"reference":    fmt.Sprintf("%s/%s", input.Reference.Type, input.Reference.ID),
	})
	return reservation, nil
}

// Fulfill consumes part of an ACTIVE hold. The caller pairs each fulfillment
// with the outbound dispatch movement; fulfill first so the freed hold covers
// the dispatch. When remaining reaches zero the reservation transitions to
// FULFILLED.
func (s *Service) Fulfill(ctx context.Context, id uuid.UUID, quantity decimal.Decimal) (Reservation, error) {
	if !quantity.IsPositive() {
		return Reservation{}, ErrInvalidQuantity
	}
	return s.mutateReservation(ctx, id, func(res *Reservation, level *StockLevel) error {
		if quantity.GreaterThan(res.Remaining()) {
			return ErrOverFulfillment
		}
		res.Fulfilled = res.Fulfilled.Add(quantity)
		if res.Remaining().IsZero() {
			res.Status = ReservationFulfilled
		}
		level.Reserved = level.Reserved.Sub(quantity)
		return nil
	})
}

// Release returns an ACTIVE hold's remaining quantity to the available pool.
// The reservation transitions to EXPIRED when the reason is the expiry sweep,
// CANCELLED otherwise. Terminal reservations fail with ErrInvalidState.
func (s *Service) Release(ctx context.Context, id uuid.UUID, reason string) (Reservation, error) {
	return s.mutateReservation(ctx, id, func(res *Reservation, level *StockLevel) error {
		level.Reserved = level.Reserved.Sub(res.Remaining())
		res.ReleaseReason = reason
		if reason == ReleaseReasonExpired {
			res.Status = ReservationExpired
		} else {
			res.Status = ReservationCancelled
		}
		return nil
	})
}

// mutateReservation loads the reservation to learn its key, takes the key
// hold, then re-reads and mutates reservation and level in one unit of work.
// Only ACTIVE reservations may be mutated.
func (s *Service) mutateReservation(ctx context.Context, id uuid.UUID, mutate func(*Reservation, *StockLevel) error) (Reservation, error) {
	peek, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return Reservation{}, err
	}

	release, err := s.locks.Acquire(ctx, shared.StockLockKey(peek.WarehouseID, peek.ItemID))
	if err != nil {
		return Reservation{}, err
	}
	defer release()

	now := s.now()
	var updated Reservation
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		res, err := tx.GetReservationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if res.Status != ReservationActive {
			return ErrInvalidState
		}
		level, err := tx.GetLevelForUpdate(ctx, res.WarehouseID, res.ItemID)
		if err != nil {
			return err
		}
		if err := mutate(&res, &level); err != nil {
			return err
		}
		level.UpdatedAt = now
		if err := tx.UpsertLevel(ctx, level); err != nil {
			return err
		}
		if err := tx.UpdateReservation(ctx, res); err != nil {
			return err
		}
		updated = res
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}

	s.recordAudit(ctx, 0, fmt.Sprintf("inventory:reservation:%s", updated.Status), "stock_reservation", updated.ID.String(), map[string]any{
		"warehouse_id": updated.WarehouseID,
		"item_id":      updated.ItemID,
		"fulfilled":    updated.Fulfilled.String(),
		"remaining":    updated.Remaining().String(),
	})
	return updated, nil
}

// GetReservation reads one reservation by id.
func (s *Service) GetReservation(ctx context.Context, id uuid.UUID) (Reservation, error) {
	return s.repo.GetReservation(ctx, id)
}

// ReleaseExpired releases ACTIVE reservations whose expiry has passed,
// returning how many were released. Reservations that turn terminal between
// listing and release are skipped. The periodic caller lives in the worker;
// the service runs no timers of its own.
func (s *Service) ReleaseExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	expired, err := s.repo.ListExpired(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, res := range expired {
		if _, err := s.Release(ctx, res.ID, ReleaseReasonExpired); err != nil {
			if errors.Is(err, ErrInvalidState) || errors.Is(err, ErrReservationNotFound) {
				continue
			}
			return released, err
		}
		released++
	}
	return released, nil
}
