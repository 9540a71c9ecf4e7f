// Package integration forwards inventory events to downstream consumers
// (finance posting, costing) over a Redis stream.
package integration

import (
	"context"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
)

// StreamStockMovements is the Redis stream carrying committed movements.
const StreamStockMovements = "meridian:stock_movements"

// maxStreamLen bounds the stream so an idle consumer cannot grow it without
// limit. Trimming is approximate (XADD MAXLEN ~).
const maxStreamLen = 100_000

// Publisher appends committed stock movements to a Redis stream.
type Publisher struct {
	client *redis.Client
	logger *slog.Logger
}

// NewPublisher constructs Publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

// HandleStockMovementPosted publishes the event. The movement is already
// committed when this runs; a publish failure is reported to the caller so it
// can surface the degraded integration, but the movement stands.
func (p *Publisher) HandleStockMovementPosted(ctx context.Context, evt inventory.MovementPostedEvent) error {
	if p == nil || p.client == nil {
		return errors.New("integration: publisher not configured")
	}
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamStockMovements,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]any{
			"movement_id":  evt.MovementID.String(),
			"warehouse_id": evt.WarehouseID,
			"item_id":      evt.ItemID,
			"kind":         string(evt.Kind),
			"quantity":     evt.Quantity.String(),
			"unit_cost":    evt.UnitCost.String(),
			"ref_type":     evt.Reference.Type,
			"ref_id":       evt.Reference.ID,
			"posted_at":    evt.PostedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		},
	}).Err()
	if err != nil {
		p.logger.Error("publish stock movement",
			slog.String("movement_id", evt.MovementID.String()),
			slog.Any("error", err))
		return err
	}
	return nil
}
