package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/innkeep/innkeep/internal/agencies"
	jobmetrics "github.com/innkeep/innkeep/internal/jobs"
	"github.com/innkeep/innkeep/internal/shared"
)

// StatsApplier writes an agency stats delta.
type StatsApplier interface {
	ApplyStats(ctx context.Context, delta agencies.StatsDelta) error
}

// AgencyStatsJob drains the agency stats retry queue.
type AgencyStatsJob struct {
	Applier StatsApplier
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAgencyStatsJob wires the retry sink.
func NewAgencyStatsJob(applier StatsApplier, logger *slog.Logger, metrics *jobmetrics.Metrics) *AgencyStatsJob {
	return &AgencyStatsJob{Applier: applier, Logger: logger, Metrics: metrics}
}

// Handle applies one delta. A delta for a vanished agency can never succeed
// and is dropped without retry.
func (j *AgencyStatsJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Applier == nil {
		return errors.New("agency stats: handler not configured")
	}
	var delta agencies.StatsDelta
	if err := json.Unmarshal(t.Payload(), &delta); err != nil {
		return fmt.Errorf("agency stats: decode: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskAgencyStatsApply)
	defer func() { err = tracker.End(err) }()

	logger := loggerOr(j.Logger).With(
		slog.Int64("agency_id", delta.AgencyID),
		slog.Int64("reservation_id", delta.ReservationID))
	if err := j.Applier.ApplyStats(ctx, delta); err != nil {
		if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrValidation) {
			logger.Error("agency stats dropped", slog.String("revenue", delta.Revenue.String()), slog.Any("error", err))
			return fmt.Errorf("agency stats: %v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	logger.Info("agency stats applied", slog.Int64("bookings", delta.Bookings))
	return nil
}

func loggerOr(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
