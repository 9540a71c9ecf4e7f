package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// AllowNegativeStock disables the negative-physical guard globally.
	AllowNegativeStock bool
	// LockWait bounds the wait for a key's exclusive hold.
	LockWait time.Duration
	// ReservationTTL is the default hold validity; zero means holds never
	// expire unless the caller sets a TTL.
	ReservationTTL time.Duration
}

// Service coordinates ledger, level, reservation and batch state. Every
// state-changing operation serialises on the (warehouse, item) key: the key
// hold is acquired first, then the unit of work runs, then the hold drops.
// The hold is always taken before any reservation row for the key.
type Service struct {
	repo           RepositoryPort
	audit          AuditPort
	locks          *shared.KeyedLock
	integration    IntegrationHandler
	allowNeg       bool
	reservationTTL time.Duration
	reconcileGroup singleflight.Group
	clock          func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cfg ServiceConfig, integration IntegrationHandler) *Service {
	return &Service{
		repo:           repo,
		audit:          audit,
		locks:          shared.NewKeyedLock(cfg.LockWait),
		integration:    integration,
		allowNeg:       cfg.AllowNegativeStock,
		reservationTTL: cfg.ReservationTTL,
		clock:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now().UTC()
}

// MovementInput describes a request to post one ledger movement. Quantity is
// unsigned; the sign is derived from Kind.
type MovementInput struct {
	WarehouseID int64
	ItemID      int64
	Kind        MovementKind
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	Reference   Reference
	ActorID     int64
	Note        string

	// BatchNumber attributes an inbound movement to a batch, creating the
	// batch on first receipt.
	BatchNumber string
	BatchExpiry time.Time
	// Consume names the batches an outbound movement takes stock from,
	// typically the result of Allocate.
	Consume []BatchConsumption
	// AcknowledgeShortage permits an ADJUSTMENT_OUT to drive physical stock
	// negative when correcting a known shortage.
	AcknowledgeShortage bool
}

// MovementResult reports the committed movement.
type MovementResult struct {
	MovementID  uuid.UUID
	StockBefore decimal.Decimal
	StockAfter  decimal.Decimal
	UnitCost    decimal.Decimal
	AvgCost     decimal.Decimal
}

// ApplyMovement appends a ledger entry and updates the stock level (and any
// named batches) atomically. Re-posting the same reference for a key fails
// with ErrDuplicateReference and leaves all state unchanged.
func (s *Service) ApplyMovement(ctx context.Context, input MovementInput) (MovementResult, error) {
	if err := validateMovement(input); err != nil {
		return MovementResult{}, err
	}
	release, err := s.locks.Acquire(ctx, shared.StockLockKey(input.WarehouseID, input.ItemID))
	if err != nil {
		return MovementResult{}, err
	}
	defer release()
	return s.applyLocked(ctx, input)
}

func validateMovement(input MovementInput) error {
	if input.WarehouseID == 0 || input.ItemID == 0 {
		return errors.New("inventory: warehouse and item required")
	}
	if !input.Kind.Valid() {
		return fmt.Errorf("inventory: unknown movement kind %q", input.Kind)
	}
	if !input.Quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	if input.UnitCost.IsNegative() {
		return ErrInvalidUnitCost
	}
	if input.Reference.Type == "" || input.Reference.ID == "" {
		return errors.New("inventory: reference type and id required")
	}
	return nil
}

// applyLocked runs the movement unit of work. The caller must hold the key
// lock.
func (s *Service) applyLocked(ctx context.Context, input MovementInput) (MovementResult, error) {
	now := s.now()
	var result MovementResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		level, err := tx.GetLevelForUpdate(ctx, input.WarehouseID, input.ItemID)
		if err != nil && !errors.Is(err, ErrLevelNotFound) {
			return err
		}
		if errors.Is(err, ErrLevelNotFound) {
			level = StockLevel{WarehouseID: input.WarehouseID, ItemID: input.ItemID}
		}

		signed := input.Quantity
		if !input.Kind.Inbound() {
			signed = signed.Neg()
		}
		before := level.Physical
		after := before.Add(signed)

		shortageOK := s.allowNeg || (input.Kind == KindAdjustmentOut && input.AcknowledgeShortage)
		if !input.Kind.Inbound() && !shortageOK {
			if after.IsNegative() {
				return ErrInsufficientStock
			}
			// Outbound stock must come out of the unreserved pool; reserved
			// holds are consumed through Fulfill first.
			if after.LessThan(level.Reserved) {
				return ErrInsufficientStock
			}
		}

		unitCost := input.UnitCost
		avg := level.AvgCost
		if input.Kind.Inbound() {
			total := before.Mul(level.AvgCost).Add(input.Quantity.Mul(unitCost))
			if after.IsPositive() {
				avg = total.Div(after)
			} else {
				avg = decimal.Zero
			}
		} else {
			unitCost = level.AvgCost
			if !after.IsPositive() {
				avg = decimal.Zero
			}
		}

		movement := StockMovement{
			ID:          uuid.New(),
			WarehouseID: input.WarehouseID,
			ItemID:      input.ItemID,
			Kind:        input.Kind,
			Quantity:    signed,
			UnitCost:    unitCost,
			Reference:   input.Reference,
			StockBefore: before,
			StockAfter:  after,
			Note:        input.Note,
			PostedAt:    now,
			ActorID:     input.ActorID,
		}
		if err := tx.InsertMovement(ctx, movement); err != nil {
			return err
		}
		if err := s.applyBatches(ctx, tx, input, now); err != nil {
			return err
		}

		level.Physical = after
		level.AvgCost = avg
		level.UpdatedAt = now
		if err := tx.UpsertLevel(ctx, level); err != nil {
			return err
		}

		result = MovementResult{
			MovementID:  movement.ID,
			StockBefore: before,
			StockAfter:  after,
			UnitCost:    unitCost,
			AvgCost:     avg,
		}
		return nil
	})
	if err != nil {
		return MovementResult{}, err
	}

	s.recordAudit(ctx, input.ActorID, fmt.Sprintf("inventory:%s", input.Kind), "stock_movement", result.MovementID.String(), map[string]any{
		"warehouse_id": input.WarehouseID,
		"item_id":      input.ItemID,
		"quantity":     input.Quantity.String(),
		"reference":    fmt.Sprintf("%s/%s", input.Reference.Type, input.Reference.ID),
	})
	if s.integration != nil {
		evt := MovementPostedEvent{
			MovementID:  result.MovementID,
			WarehouseID: input.WarehouseID,
			ItemID:      input.ItemID,
			Kind:        input.Kind,
			Quantity:    input.Quantity,
			UnitCost:    result.UnitCost,
			Reference:   input.Reference,
			PostedAt:    now,
		}
		// The movement stands once the transaction commits; a failed publish
		// must not turn it into a caller-visible error. The publisher logs
		// its own failures and the stream can be backfilled from the ledger.
		_ = s.integration.HandleStockMovementPosted(ctx, evt)
	}
	return result, nil
}

func (s *Service) applyBatches(ctx context.Context, tx TxRepository, input MovementInput, now time.Time) error {
	if input.Kind.Inbound() {
		if input.BatchNumber == "" {
			return nil
		}
		batch, err := tx.FindBatchByNumber(ctx, input.WarehouseID, input.ItemID, input.BatchNumber)
		if errors.Is(err, ErrBatchNotFound) {
			return tx.InsertBatch(ctx, Batch{
				ID:          uuid.New(),
				WarehouseID: input.WarehouseID,
				ItemID:      input.ItemID,
				BatchNumber: input.BatchNumber,
				ReceivedAt:  now,
				ExpiresAt:   input.BatchExpiry,
				UnitCost:    input.UnitCost,
				Quantity:    input.Quantity,
				Remaining:   input.Quantity,
			})
		}
		if err != nil {
			return err
		}
		batch.Quantity = batch.Quantity.Add(input.Quantity)
		batch.Remaining = batch.Remaining.Add(input.Quantity)
		return tx.UpdateBatch(ctx, batch)
	}

	for _, consume := range input.Consume {
		if !consume.Quantity.IsPositive() {
			return ErrInvalidQuantity
		}
		batch, err := tx.GetBatchForUpdate(ctx, consume.BatchID)
		if err != nil {
			return err
		}
		if batch.WarehouseID != input.WarehouseID || batch.ItemID != input.ItemID {
			return fmt.Errorf("inventory: batch %s belongs to a different warehouse/item", consume.BatchID)
		}
		if consume.Quantity.GreaterThan(batch.Remaining) {
			return ErrInsufficientStockAcrossBatches
		}
		batch.Remaining = batch.Remaining.Sub(consume.Quantity)
		if err := tx.UpdateBatch(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

// TransferInput describes a stock transfer between warehouses.
type TransferInput struct {
	SrcWarehouse int64
	DstWarehouse int64
	ItemID       int64
	Quantity     decimal.Decimal
	Reference    Reference
	ActorID      int64
	Note         string
}

// Transfer moves stock between warehouses as an OUT movement at the source
// followed by an IN movement at the destination, both sharing the same
// reference. If the IN leg fails, retrying with the same reference completes
// the transfer: a duplicate on the OUT leg means that leg already committed,
// so the retry recovers it from the ledger and resumes with the IN leg. Only
// when both legs are already posted does the retry fail as a duplicate.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (MovementResult, MovementResult, error) {
	if input.SrcWarehouse == 0 || input.DstWarehouse == 0 || input.ItemID == 0 {
		return MovementResult{}, MovementResult{}, errors.New("inventory: warehouse and item required")
	}
	if input.SrcWarehouse == input.DstWarehouse {
		return MovementResult{}, MovementResult{}, errors.New("inventory: source and destination warehouse must differ")
	}
	if !input.Quantity.IsPositive() {
		return MovementResult{}, MovementResult{}, ErrInvalidQuantity
	}

	out, err := s.ApplyMovement(ctx, MovementInput{
		WarehouseID: input.SrcWarehouse,
		ItemID:      input.ItemID,
		Kind:        KindTransferOut,
		Quantity:    input.Quantity,
		Reference:   input.Reference,
		ActorID:     input.ActorID,
		Note:        fmt.Sprintf("Transfer to warehouse %d: %s", input.DstWarehouse, input.Note),
	})
	if errors.Is(err, ErrDuplicateReference) {
		out, err = s.recoverTransferOut(ctx, input)
	}
	if err != nil {
		return MovementResult{}, MovementResult{}, err
	}
	in, err := s.ApplyMovement(ctx, MovementInput{
		WarehouseID: input.DstWarehouse,
		ItemID:      input.ItemID,
		Kind:        KindTransferIn,
		Quantity:    input.Quantity,
		UnitCost:    out.UnitCost,
		Reference:   input.Reference,
		ActorID:     input.ActorID,
		Note:        fmt.Sprintf("Transfer from warehouse %d: %s", input.SrcWarehouse, input.Note),
	})
	if err != nil {
		return out, MovementResult{}, err
	}
	return out, in, nil
}

// recoverTransferOut finds the OUT leg a previous transfer attempt committed
// for the same reference and quantity, so the retry can resume with the IN
// leg instead of stranding stock in flight.
func (s *Service) recoverTransferOut(ctx context.Context, input TransferInput) (MovementResult, error) {
	movements, err := s.repo.ListMovements(ctx, MovementFilter{
		WarehouseID: input.SrcWarehouse,
		ItemID:      input.ItemID,
		Kind:        KindTransferOut,
		Limit:       200,
	})
	if err != nil {
		return MovementResult{}, err
	}
	for _, m := range movements {
		if m.Reference.Type != input.Reference.Type || m.Reference.ID != input.Reference.ID {
			continue
		}
		if !m.Quantity.Abs().Equal(input.Quantity) {
			return MovementResult{}, fmt.Errorf("inventory: transfer reference %s/%s was posted with quantity %s: %w",
				m.Reference.Type, m.Reference.ID, m.Quantity.Abs(), ErrDuplicateReference)
		}
		return MovementResult{
			MovementID:  m.ID,
			StockBefore: m.StockBefore,
			StockAfter:  m.StockAfter,
			UnitCost:    m.UnitCost,
			AvgCost:     m.UnitCost,
		}, nil
	}
	return MovementResult{}, ErrDuplicateReference
}

// CountInput describes an adjust-to-physical-count request.
type CountInput struct {
	WarehouseID     int64
	ItemID          int64
	CountedQuantity decimal.Decimal
	Reference       Reference
	ActorID         int64
	Note            string
}

// AdjustToCount posts the adjustment that brings recorded stock to the
// counted quantity. A zero delta posts nothing and returns the current
// position with a nil movement id.
func (s *Service) AdjustToCount(ctx context.Context, input CountInput) (MovementResult, error) {
	if input.WarehouseID == 0 || input.ItemID == 0 {
		return MovementResult{}, errors.New("inventory: warehouse and item required")
	}
	if input.CountedQuantity.IsNegative() {
		return MovementResult{}, ErrInvalidQuantity
	}
	release, err := s.locks.Acquire(ctx, shared.StockLockKey(input.WarehouseID, input.ItemID))
	if err != nil {
		return MovementResult{}, err
	}
	defer release()

	level, err := s.repo.GetLevel(ctx, input.WarehouseID, input.ItemID)
	if err != nil && !errors.Is(err, ErrLevelNotFound) {
		return MovementResult{}, err
	}
	delta := input.CountedQuantity.Sub(level.Physical)
	if delta.IsZero() {
		return MovementResult{StockBefore: level.Physical, StockAfter: level.Physical, AvgCost: level.AvgCost}, nil
	}

	kind := KindAdjustmentIn
	if delta.IsNegative() {
		kind = KindAdjustmentOut
	}
	return s.applyLocked(ctx, MovementInput{
		WarehouseID: input.WarehouseID,
		ItemID:      input.ItemID,
		Kind:        kind,
		Quantity:    delta.Abs(),
		UnitCost:    level.AvgCost,
		Reference:   input.Reference,
		ActorID:     input.ActorID,
		Note:        fmt.Sprintf("Stock count correction: %s", input.Note),
		// A physical count states reality, shortages included.
		AcknowledgeShortage: true,
	})
}

// GetLevel returns the current position for a key. A key without movements
// reads as zero stock.
func (s *Service) GetLevel(ctx context.Context, warehouseID, itemID int64) (StockLevel, error) {
	if warehouseID == 0 || itemID == 0 {
		return StockLevel{}, errors.New("inventory: warehouse and item required")
	}
	level, err := s.repo.GetLevel(ctx, warehouseID, itemID)
	if errors.Is(err, ErrLevelNotFound) {
		return StockLevel{WarehouseID: warehouseID, ItemID: itemID}, nil
	}
	return level, err
}

// ListLevels returns current positions for every item in a warehouse.
func (s *Service) ListLevels(ctx context.Context, warehouseID int64) ([]StockLevel, error) {
	if warehouseID == 0 {
		return nil, errors.New("inventory: warehouse required")
	}
	return s.repo.ListLevels(ctx, warehouseID)
}

// GetMovements lists ledger history matching the filter.
func (s *Service) GetMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	if filter.WarehouseID == 0 {
		return nil, errors.New("inventory: warehouse required")
	}
	if filter.Limit <= 0 {
		filter.Limit = 200
	}
	return s.repo.ListMovements(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
	})
}
