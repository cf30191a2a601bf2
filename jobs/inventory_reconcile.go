package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/innkeep/innkeep/internal/inventory"
	jobmetrics "github.com/innkeep/innkeep/internal/jobs"
	"github.com/innkeep/innkeep/internal/shared"
)

// DriftScanner reports ledger drift over a date window.
type DriftScanner interface {
	Run(ctx context.Context, from, to time.Time) ([]inventory.Drift, error)
}

// InventoryReconcileJob runs the ledger drift scan on a schedule.
type InventoryReconcileJob struct {
	Scanner DriftScanner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewInventoryReconcileJob wires the reconcile handler.
func NewInventoryReconcileJob(scanner DriftScanner, logger *slog.Logger, metrics *jobmetrics.Metrics) *InventoryReconcileJob {
	return &InventoryReconcileJob{
		Scanner: scanner,
		Logger:  logger,
		Metrics: metrics,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// Handle scans [today - lookback, today + lookahead].
func (j *InventoryReconcileJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Scanner == nil {
		return errors.New("inventory reconcile: handler not configured")
	}
	var payload InventoryReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("inventory reconcile: decode: %v: %w", err, asynq.SkipRetry)
		}
	}
	if payload.LookbackDays < 0 {
		payload.LookbackDays = 0
	}
	if payload.LookaheadDays <= 0 {
		payload.LookaheadDays = 365
	}

	tracker := j.Metrics.Track(TaskInventoryReconcile)
	defer func() { err = tracker.End(err) }()

	today := shared.DateOnly(j.clock())
	from := today.AddDate(0, 0, -payload.LookbackDays)
	to := today.AddDate(0, 0, payload.LookaheadDays)
	drifts, err := j.Scanner.Run(ctx, from, to)
	if err != nil {
		return err
	}
	j.Metrics.AddItems(TaskInventoryReconcile, len(drifts))
	if len(drifts) > 0 {
		loggerOr(j.Logger).Warn("inventory drift detected",
			slog.Int("nights", len(drifts)),
			slog.String("from", from.Format(shared.DateLayout)),
			slog.String("to", to.Format(shared.DateLayout)))
	}
	return nil
}
