package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/innkeep/innkeep/internal/agencies"
)

const (
	// QueueCritical carries work a committed booking still owes, such as agency counters.
	QueueCritical = "critical"
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskAgencyStatsApply re-applies an agency stats delta that failed after commit.
	TaskAgencyStatsApply = "agency:stats:apply"
	// TaskReservationConfirmation sends the guest confirmation for a new booking.
	TaskReservationConfirmation = "reservation:confirmation"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
	// TaskInventoryReconcile compares ledger sold counts with live reservations.
	TaskInventoryReconcile = "inventory:reconcile"
)

// ReservationConfirmationPayload names the booking to confirm.
type ReservationConfirmationPayload struct {
	ReservationID int64 `json:"reservation_id"`
}

// IdempotencyCleanupPayload controls how old a key must be to be purged.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// InventoryReconcilePayload sets the scanned window relative to the run date.
type InventoryReconcilePayload struct {
	LookbackDays  int `json:"lookback_days"`
	LookaheadDays int `json:"lookahead_days"`
}

// NewAgencyStatsTask wraps a stats delta. The reservation id makes the task id
// unique per delta so a double enqueue is rejected by asynq.
func NewAgencyStatsTask(delta agencies.StatsDelta, maxRetry int) (*asynq.Task, error) {
	body, err := json.Marshal(delta)
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.Queue(QueueCritical), asynq.MaxRetry(maxRetry)}
	if delta.ReservationID > 0 {
		kind := "record"
		if delta.Bookings < 0 {
			kind = "reverse"
		}
		opts = append(opts, asynq.TaskID(TaskAgencyStatsApply+":"+kind+":"+itoa64(delta.ReservationID)))
	}
	return asynq.NewTask(TaskAgencyStatsApply, body, opts...), nil
}

// NewReservationConfirmationTask constructs the confirmation task.
func NewReservationConfirmationTask(reservationID int64) (*asynq.Task, error) {
	body, err := json.Marshal(ReservationConfirmationPayload{ReservationID: reservationID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReservationConfirmation, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// NewIdempotencyCleanupTask constructs the cron task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// NewInventoryReconcileTask constructs the cron task.
func NewInventoryReconcileTask(lookbackDays, lookaheadDays int) (*asynq.Task, error) {
	body, err := json.Marshal(InventoryReconcilePayload{LookbackDays: lookbackDays, LookaheadDays: lookaheadDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryReconcile, body, asynq.Queue(QueueDefault)), nil
}
