package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/innkeep/innkeep/internal/shared"
)

// DriftSource reports nights whose ledger disagrees with live reservations.
type DriftSource interface {
	SoldDrift(ctx context.Context, from, to time.Time) ([]Drift, error)
}

// Reconciler scans the ledger for drift. It only reports; corrections stay a
// manual decision.
type Reconciler struct {
	source DriftSource
	logger *slog.Logger
}

// NewReconciler builds a Reconciler.
func NewReconciler(source DriftSource, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{source: source, logger: logger}
}

// Run checks [from, to] and logs each drifting night.
func (r *Reconciler) Run(ctx context.Context, from, to time.Time) ([]Drift, error) {
	from, to = shared.DateOnly(from), shared.DateOnly(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: end before start", shared.ErrValidation)
	}
	drifts, err := r.source.SoldDrift(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("inventory: reconcile: %w", err)
	}
	for _, d := range drifts {
		r.logger.Warn("inventory drift",
			slog.Int64("property_id", d.PropertyID),
			slog.Int64("room_type_id", d.RoomTypeID),
			slog.String("date", d.Date.Format(shared.DateLayout)),
			slog.Int("ledger_sold", d.LedgerSold),
			slog.Int("booked", d.Booked))
	}
	r.logger.Info("inventory reconcile complete", slog.Int("drift", len(drifts)))
	return drifts, nil
}
