package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/innkeep/innkeep/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	FindRange(ctx context.Context, propertyID, roomTypeID int64, start, end time.Time) ([]Record, error)
}

// CalendarInvalidator drops cached calendar reads after a ledger write.
type CalendarInvalidator interface {
	Bump(ctx context.Context, propertyID, roomTypeID int64) error
}

// ConflictObserver counts rejected increments by reason.
type ConflictObserver interface {
	ObserveInventoryConflict(reason string)
}

// Service coordinates inventory operations.
type Service struct {
	repo    RepositoryPort
	audit   shared.AuditRecorder
	cache   CalendarInvalidator
	metrics ConflictObserver
	logger  *slog.Logger
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Cache   CalendarInvalidator
	Metrics ConflictObserver
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, cache: cfg.Cache, metrics: cfg.Metrics, logger: logger}
}

// FindRange returns the ledger rows for [start, end] ordered by date. Every
// call reads the store.
func (s *Service) FindRange(ctx context.Context, propertyID, roomTypeID int64, start, end time.Time) ([]Record, error) {
	if propertyID <= 0 || roomTypeID <= 0 {
		return nil, fmt.Errorf("%w: property and room type required", shared.ErrValidation)
	}
	start, end = shared.DateOnly(start), shared.DateOnly(end)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end before start", shared.ErrValidation)
	}
	if len(shared.DateRange(start, end)) > MaxBulkRangeDays {
		return nil, fmt.Errorf("%w: range exceeds %d days", shared.ErrValidation, MaxBulkRangeDays)
	}
	records, err := s.repo.FindRange(ctx, propertyID, roomTypeID, start, end)
	if err != nil {
		return nil, fmt.Errorf("inventory: find range: %w", err)
	}
	return records, nil
}

// CheckAvailability walks every night of the stay and stops at the first one
// that cannot take the rooms. The check-out day is not a night. A missing row
// counts as zero allotment.
func (s *Service) CheckAvailability(ctx context.Context, propertyID, roomTypeID int64, checkIn, checkOut time.Time, rooms int) (Availability, error) {
	if rooms < 1 {
		return Availability{}, fmt.Errorf("%w: rooms must be >= 1", shared.ErrValidation)
	}
	checkIn, checkOut = shared.DateOnly(checkIn), shared.DateOnly(checkOut)
	if !checkIn.Before(checkOut) {
		return Availability{}, fmt.Errorf("%w: check_in must be before check_out", shared.ErrValidation)
	}
	records, err := s.FindRange(ctx, propertyID, roomTypeID, checkIn, checkOut)
	if err != nil {
		return Availability{}, err
	}
	byDate := make(map[time.Time]Record, len(records))
	for _, rec := range records {
		byDate[shared.DateOnly(rec.Date)] = rec
	}
	for _, night := range shared.StayNights(checkIn, checkOut) {
		rec, ok := byDate[night]
		reason := ReasonNoAvailability
		if ok {
			reason = rec.BlockReason(rooms)
		}
		if reason != "" {
			date := night
			return Availability{Available: false, Date: &date, Reason: reason}, nil
		}
	}
	return Availability{Available: true}, nil
}

// IncrementSold sells qty rooms on every date in one transaction.
func (s *Service) IncrementSold(ctx context.Context, propertyID, roomTypeID int64, dates []time.Time, qty int) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return s.IncrementSoldTx(ctx, tx, propertyID, roomTypeID, dates, qty)
	})
	if err != nil {
		return err
	}
	s.InvalidateCalendar(ctx, propertyID, roomTypeID)
	return nil
}

// IncrementSoldTx applies the conditional increment for each date inside the
// caller's transaction. The first night that cannot take qty aborts with an
// UnavailableError; the caller must roll back.
func (s *Service) IncrementSoldTx(ctx context.Context, tx TxRepository, propertyID, roomTypeID int64, dates []time.Time, qty int) error {
	nights, err := normalizeBatch(propertyID, roomTypeID, dates, qty)
	if err != nil {
		return err
	}
	for _, night := range nights {
		applied, err := tx.IncrementSold(ctx, propertyID, roomTypeID, night, qty)
		if err != nil {
			return fmt.Errorf("inventory: increment sold: %w", err)
		}
		if applied {
			continue
		}
		reason := ReasonNoAvailability
		rec, err := tx.Get(ctx, propertyID, roomTypeID, night)
		switch {
		case err == nil:
			if r := rec.BlockReason(qty); r != "" {
				reason = r
			}
		case !errors.Is(err, ErrRecordNotFound):
			return fmt.Errorf("inventory: load night: %w", err)
		}
		if s.metrics != nil {
			s.metrics.ObserveInventoryConflict(string(reason))
		}
		return &UnavailableError{Date: night, Reason: reason}
	}
	return nil
}

// DecrementSold releases qty rooms on every date in one transaction.
func (s *Service) DecrementSold(ctx context.Context, propertyID, roomTypeID int64, dates []time.Time, qty int) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return s.DecrementSoldTx(ctx, tx, propertyID, roomTypeID, dates, qty)
	})
	if err != nil {
		return err
	}
	s.InvalidateCalendar(ctx, propertyID, roomTypeID)
	return nil
}

// DecrementSoldTx releases rooms inside the caller's transaction. Sold never
// drops below zero.
func (s *Service) DecrementSoldTx(ctx context.Context, tx TxRepository, propertyID, roomTypeID int64, dates []time.Time, qty int) error {
	nights, err := normalizeBatch(propertyID, roomTypeID, dates, qty)
	if err != nil {
		return err
	}
	for _, night := range nights {
		found, err := tx.DecrementSold(ctx, propertyID, roomTypeID, night, qty)
		if err != nil {
			return fmt.Errorf("inventory: decrement sold: %w", err)
		}
		if !found {
			s.logger.Warn("inventory release on missing night",
				slog.Int64("property_id", propertyID),
				slog.Int64("room_type_id", roomTypeID),
				slog.String("date", night.Format(shared.DateLayout)))
		}
	}
	return nil
}

// BulkConfigure upserts every night in [Start, End], patching only the given
// fields. Returns the number of rows written.
func (s *Service) BulkConfigure(ctx context.Context, input BulkConfigInput) (int, error) {
	if err := input.Validate(); err != nil {
		return 0, err
	}
	input.Start, input.End = shared.DateOnly(input.Start), shared.DateOnly(input.End)
	var records []Record
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		records, err = tx.UpsertRange(ctx, input)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("inventory: bulk configure: %w", err)
	}
	s.InvalidateCalendar(ctx, input.PropertyID, input.RoomTypeID)
	shared.RecordAudit(ctx, s.logger, s.audit, shared.AuditLog{
		OrganizationID: input.OrganizationID,
		ActorID:        input.ActorID,
		Action:         shared.AuditActionBulkWrite,
		Entity:         "inventory",
		EntityID:       fmt.Sprintf("%d:%d:%s..%s", input.PropertyID, input.RoomTypeID, input.Start.Format(shared.DateLayout), input.End.Format(shared.DateLayout)),
		Changes:        shared.AuditChanges{After: bulkAuditPatch(input)},
		Description:    fmt.Sprintf("configured %d inventory nights", len(records)),
	})
	return len(records), nil
}

// InvalidateCalendar bumps the cached calendar version. Failures only log;
// the ledger stays authoritative.
func (s *Service) InvalidateCalendar(ctx context.Context, propertyID, roomTypeID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx, propertyID, roomTypeID); err != nil {
		s.logger.Warn("inventory cache bump", slog.Int64("property_id", propertyID), slog.Int64("room_type_id", roomTypeID), slog.Any("error", err))
	}
}

func normalizeBatch(propertyID, roomTypeID int64, dates []time.Time, qty int) ([]time.Time, error) {
	if propertyID <= 0 || roomTypeID <= 0 {
		return nil, fmt.Errorf("%w: property and room type required", shared.ErrValidation)
	}
	if qty < 1 {
		return nil, fmt.Errorf("%w: quantity must be >= 1", shared.ErrValidation)
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("%w: dates required", shared.ErrValidation)
	}
	seen := make(map[time.Time]struct{}, len(dates))
	nights := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		d = shared.DateOnly(d)
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		nights = append(nights, d)
	}
	// Ascending order keeps lock acquisition consistent across bookings.
	sort.Slice(nights, func(i, j int) bool { return nights[i].Before(nights[j]) })
	return nights, nil
}

func bulkAuditPatch(in BulkConfigInput) map[string]any {
	patch := map[string]any{
		"start": in.Start.Format(shared.DateLayout),
		"end":   in.End.Format(shared.DateLayout),
	}
	if in.Allotment != nil {
		patch["allotment"] = *in.Allotment
	}
	if in.OverbookingAllowed != nil {
		patch["overbooking_allowed"] = *in.OverbookingAllowed
	}
	if in.StopSell != nil {
		patch["stop_sell"] = *in.StopSell
	}
	if in.Closed != nil {
		patch["closed"] = *in.Closed
	}
	if in.MinNights != nil {
		patch["min_nights"] = *in.MinNights
	}
	if in.MaxNights != nil {
		patch["max_nights"] = *in.MaxNights
	}
	return patch
}
