package agencies

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/innkeep/innkeep/internal/pricing"
	"github.com/innkeep/innkeep/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Agency, error)
	ApplyStats(ctx context.Context, delta StatsDelta) error
	MarkCommissions(ctx context.Context, agencyID int64, reservationIDs []int64, target CommissionStatus) (int, error)
	CommissionTotals(ctx context.Context, agencyID int64, from, to time.Time) ([]CommissionTotal, error)
}

// StatsRetryQueue defers a stats delta that could not be applied inline.
type StatsRetryQueue interface {
	EnqueueAgencyStats(ctx context.Context, delta StatsDelta) error
}

// Service implements agency lookups, commission rates and stats.
type Service struct {
	repo   RepositoryPort
	retry  StatsRetryQueue
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, retry StatsRetryQueue, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, retry: retry, audit: audit, logger: logger}
}

// Get loads an agency of orgID.
func (s *Service) Get(ctx context.Context, orgID, agencyID int64) (Agency, error) {
	if agencyID <= 0 {
		return Agency{}, fmt.Errorf("%w: agency_id required", shared.ErrValidation)
	}
	agency, err := s.repo.Get(ctx, agencyID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Agency{}, fmt.Errorf("%w: agency %d", shared.ErrNotFound, agencyID)
		}
		return Agency{}, fmt.Errorf("agencies: get: %w", err)
	}
	if agency.OrganizationID != orgID || agency.Status == shared.LifecycleDeleted {
		return Agency{}, fmt.Errorf("%w: agency %d", shared.ErrNotFound, agencyID)
	}
	return agency, nil
}

// ResolveCommission returns the validated commission percentage for a booking.
func (s *Service) ResolveCommission(ctx context.Context, orgID, agencyID, propertyID int64) (decimal.Decimal, error) {
	agency, err := s.Get(ctx, orgID, agencyID)
	if err != nil {
		return decimal.Zero, err
	}
	if !agency.IsActive() {
		return decimal.Zero, fmt.Errorf("%w: agency %d is not active", shared.ErrValidation, agencyID)
	}
	rate := agency.CommissionRate(propertyID)
	if err := pricing.ValidateCommissionRate(rate); err != nil {
		return decimal.Zero, err
	}
	return rate, nil
}

// RecordBooking adds a booking to the agency counters. Failures are queued
// for retry and never returned to the booking flow.
func (s *Service) RecordBooking(ctx context.Context, delta StatsDelta) {
	s.record(ctx, delta)
}

// ReverseBooking removes a cancelled booking from the agency counters.
func (s *Service) ReverseBooking(ctx context.Context, delta StatsDelta) {
	s.record(ctx, delta.Negate())
}

func (s *Service) record(ctx context.Context, delta StatsDelta) {
	err := s.repo.ApplyStats(ctx, delta)
	if err == nil {
		return
	}
	logger := s.logger.With(
		slog.Int64("agency_id", delta.AgencyID),
		slog.Int64("reservation_id", delta.ReservationID),
		slog.Int64("bookings", delta.Bookings),
		slog.String("revenue", delta.Revenue.String()),
		slog.String("commission", delta.Commission.String()))
	if errors.Is(err, ErrNotFound) {
		logger.Error("agency stats target missing", slog.Any("error", err))
		return
	}
	logger.Warn("agency stats deferred", slog.Any("error", err))
	if s.retry == nil {
		logger.Error("agency stats lost: no retry queue")
		return
	}
	// The request context may already be done; the queue write must still happen.
	if qerr := s.retry.EnqueueAgencyStats(context.WithoutCancel(ctx), delta); qerr != nil {
		logger.Error("agency stats lost", slog.Any("error", qerr))
	}
}

// ApplyStats applies a queued delta. Used by the retry job.
func (s *Service) ApplyStats(ctx context.Context, delta StatsDelta) error {
	if delta.AgencyID <= 0 {
		return fmt.Errorf("%w: agency_id required", shared.ErrValidation)
	}
	if err := s.repo.ApplyStats(ctx, delta); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: agency %d", shared.ErrNotFound, delta.AgencyID)
		}
		return fmt.Errorf("agencies: apply stats: %w", err)
	}
	return nil
}

// MarkCommissionsInvoiced moves PENDING commissions to INVOICED.
func (s *Service) MarkCommissionsInvoiced(ctx context.Context, actor shared.Actor, agencyID int64, reservationIDs []int64) (int, error) {
	return s.mark(ctx, actor, agencyID, reservationIDs, CommissionInvoiced)
}

// MarkCommissionsPaid marks commissions PAID with today's paid date. Rows
// already paid are left alone and not counted.
func (s *Service) MarkCommissionsPaid(ctx context.Context, actor shared.Actor, agencyID int64, reservationIDs []int64) (int, error) {
	return s.mark(ctx, actor, agencyID, reservationIDs, CommissionPaid)
}

func (s *Service) mark(ctx context.Context, actor shared.Actor, agencyID int64, reservationIDs []int64, target CommissionStatus) (int, error) {
	ids := uniquePositive(reservationIDs)
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: reservation_ids required", shared.ErrValidation)
	}
	if _, err := s.Get(ctx, actor.OrganizationID, agencyID); err != nil {
		return 0, err
	}
	changed, err := s.repo.MarkCommissions(ctx, agencyID, ids, target)
	if err != nil {
		return 0, fmt.Errorf("agencies: mark commissions: %w", err)
	}
	shared.RecordAudit(ctx, s.logger, s.audit, shared.AuditLog{
		OrganizationID: actor.OrganizationID,
		ActorID:        actor.ID,
		Action:         shared.AuditActionUpdate,
		Entity:         "agency_commissions",
		EntityID:       fmt.Sprintf("%d", agencyID),
		Changes:        shared.AuditChanges{After: map[string]any{"status": target, "reservation_ids": ids, "changed": changed}},
		Description:    fmt.Sprintf("marked %d commissions %s", changed, target),
	})
	return changed, nil
}

// CommissionReport groups commissions of reservations checking in within
// [from, to] by status. All three buckets are always present.
func (s *Service) CommissionReport(ctx context.Context, orgID, agencyID int64, from, to time.Time) (CommissionReport, error) {
	from, to = shared.DateOnly(from), shared.DateOnly(to)
	if to.Before(from) {
		return CommissionReport{}, fmt.Errorf("%w: end before start", shared.ErrValidation)
	}
	if _, err := s.Get(ctx, orgID, agencyID); err != nil {
		return CommissionReport{}, err
	}
	totals, err := s.repo.CommissionTotals(ctx, agencyID, from, to)
	if err != nil {
		return CommissionReport{}, fmt.Errorf("agencies: commission totals: %w", err)
	}
	index := make(map[CommissionStatus]int, 3)
	report := CommissionReport{AgencyID: agencyID, From: from, To: to}
	for i, status := range CommissionStatuses() {
		index[status] = i
		report.Buckets = append(report.Buckets, CommissionBucket{Status: status, Amounts: map[string]decimal.Decimal{}})
	}
	for _, t := range totals {
		i, ok := index[t.Status]
		if !ok {
			continue
		}
		bucket := &report.Buckets[i]
		bucket.Count += t.Count
		bucket.Amounts[t.Currency] = bucket.Amounts[t.Currency].Add(t.Amount)
	}
	return report, nil
}

func uniquePositive(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
