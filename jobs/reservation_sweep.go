package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
)

// ReservationReleaser releases expired reservation holds.
type ReservationReleaser interface {
	ReleaseExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// ReservationSweeper periodically returns expired holds to the available
// pool. TTLs are only observed here; nothing expires a hold inline.
type ReservationSweeper struct {
	service   ReservationReleaser
	metrics   *jobmetrics.Metrics
	logger    *slog.Logger
	batchSize int
}

// NewReservationSweeper constructs the sweep handler.
func NewReservationSweeper(service ReservationReleaser, metrics *jobmetrics.Metrics, logger *slog.Logger, batchSize int) *ReservationSweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ReservationSweeper{service: service, metrics: metrics, logger: logger, batchSize: batchSize}
}

// Handle processes TaskReservationSweep tasks.
func (s *ReservationSweeper) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ReservationSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := s.metrics.Track("reservation_sweep")

	released, err := s.service.ReleaseExpired(ctx, time.Now().UTC(), s.batchSize)
	if err != nil {
		s.logger.Error("reservation sweep failed",
			slog.Int("released", released),
			slog.Any("error", err))
		return tracker.End(err)
	}
	s.metrics.AddReleased(released)
	if released > 0 {
		s.logger.Info("reservation sweep released expired holds", slog.Int("released", released))
	}
	return tracker.End(nil)
}
