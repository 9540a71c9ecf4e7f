package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReservationSweep releases stock reservations whose TTL has passed.
	TaskReservationSweep = "inventory:reservation_sweep"
	// TaskReconcileScan replays the stock ledger and reports cache drift.
	TaskReconcileScan = "inventory:reconcile_scan"
)

// ReservationSweepPayload carries scheduling metadata for the expiry sweep.
type ReservationSweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewReservationSweepTask constructs an Asynq task for the expiry sweep.
func NewReservationSweepTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ReservationSweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReservationSweep, body, asynq.Queue(QueueDefault)), nil
}

// ReconcileScanPayload scopes a reconciliation run. A zero WarehouseID means
// every configured warehouse.
type ReconcileScanPayload struct {
	WarehouseID  int64     `json:"warehouse_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewReconcileScanTask constructs an Asynq task for the drift scan.
func NewReconcileScanTask(payload ReconcileScanPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcileScan, body, asynq.Queue(QueueDefault)), nil
}
