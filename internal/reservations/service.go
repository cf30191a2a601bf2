package reservations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/innkeep/innkeep/internal/agencies"
	"github.com/innkeep/innkeep/internal/catalog"
	"github.com/innkeep/innkeep/internal/inventory"
	"github.com/innkeep/innkeep/internal/pricing"
	"github.com/innkeep/innkeep/internal/shared"
)

const idempotencyModule = "reservations.create"

// AuditEntity is the audit_logs entity name of reservations.
const AuditEntity = "reservation"

// RepositoryPort abstracts reservation persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	Get(ctx context.Context, id int64) (Reservation, error)
	GetByReference(ctx context.Context, ref string) (Reservation, error)
	List(ctx context.Context, filter ListFilter) ([]Reservation, int, error)
}

// CatalogPort resolves the booked property, room type and rate plan.
type CatalogPort interface {
	ResolveBookable(ctx context.Context, orgID, propertyID, roomTypeID, ratePlanID int64) (catalog.Target, error)
}

// InventoryPort is the ledger surface used by bookings.
type InventoryPort interface {
	CheckAvailability(ctx context.Context, propertyID, roomTypeID int64, checkIn, checkOut time.Time, rooms int) (inventory.Availability, error)
	IncrementSoldTx(ctx context.Context, tx inventory.TxRepository, propertyID, roomTypeID int64, dates []time.Time, qty int) error
	DecrementSoldTx(ctx context.Context, tx inventory.TxRepository, propertyID, roomTypeID int64, dates []time.Time, qty int) error
	InvalidateCalendar(ctx context.Context, propertyID, roomTypeID int64)
}

// PricingPort prices a stay.
type PricingPort interface {
	SumRange(ctx context.Context, propertyID, roomTypeID, ratePlanID int64, checkIn, checkOut time.Time) (pricing.Quote, error)
	ApplyTax(subtotal decimal.Decimal) pricing.Tax
}

// AgencyPort resolves commission and keeps agency counters.
type AgencyPort interface {
	ResolveCommission(ctx context.Context, orgID, agencyID, propertyID int64) (decimal.Decimal, error)
	RecordBooking(ctx context.Context, delta agencies.StatsDelta)
	ReverseBooking(ctx context.Context, delta agencies.StatsDelta)
}

// IdempotencyPort remembers processed create requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Notifier queues the guest confirmation.
type Notifier interface {
	EnqueueReservationConfirmation(ctx context.Context, reservationID int64) error
}

// OutcomeObserver counts booking attempts by outcome.
type OutcomeObserver interface {
	ObserveReservation(outcome string)
}

// Deps groups the collaborators of Service. Idempotency, Notifier, Metrics
// and Audit are optional.
type Deps struct {
	Repo        RepositoryPort
	Catalog     CatalogPort
	Inventory   InventoryPort
	Pricing     PricingPort
	Agencies    AgencyPort
	Idempotency IdempotencyPort
	Notifier    Notifier
	Metrics     OutcomeObserver
	Audit       shared.AuditRecorder
	Logger      *slog.Logger
	Now         func() time.Time
}

// Service drives the reservation lifecycle.
type Service struct {
	repo        RepositoryPort
	catalog     CatalogPort
	inventory   InventoryPort
	pricing     PricingPort
	agencies    AgencyPort
	idempotency IdempotencyPort
	notifier    Notifier
	metrics     OutcomeObserver
	audit       shared.AuditRecorder
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the reservation service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:        deps.Repo,
		catalog:     deps.Catalog,
		inventory:   deps.Inventory,
		pricing:     deps.Pricing,
		agencies:    deps.Agencies,
		idempotency: deps.Idempotency,
		notifier:    deps.Notifier,
		metrics:     deps.Metrics,
		audit:       deps.Audit,
		logger:      logger,
		now:         now,
	}
}

// Create books a stay. The reservation row and the sold counters of every
// night commit together or not at all.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateInput) (result CreateResult, err error) {
	defer func() { s.observe(err) }()
	if err := input.Validate(); err != nil {
		return CreateResult{}, err
	}

	if key := strings.TrimSpace(input.IdempotencyKey); key != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			return CreateResult{}, err
		}
		defer func() {
			if err == nil {
				return
			}
			if derr := s.idempotency.Delete(context.WithoutCancel(ctx), key); derr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", derr))
			}
		}()
	}

	if _, err := s.catalog.ResolveBookable(ctx, actor.OrganizationID, input.PropertyID, input.RoomTypeID, input.RatePlanID); err != nil {
		return CreateResult{}, err
	}

	verdict, err := s.inventory.CheckAvailability(ctx, input.PropertyID, input.RoomTypeID, input.CheckIn, input.CheckOut, input.RoomsRequested)
	if err != nil {
		return CreateResult{}, err
	}
	if err := verdict.Err(); err != nil {
		return CreateResult{}, err
	}

	quote, err := s.pricing.SumRange(ctx, input.PropertyID, input.RoomTypeID, input.RatePlanID, input.CheckIn, input.CheckOut)
	if err != nil {
		return CreateResult{}, err
	}
	// Ledger prices are per room night.
	total := quote.Subtotal.Mul(decimal.NewFromInt(int64(input.RoomsRequested))).Round(2)
	tax := s.pricing.ApplyTax(total)

	var commission *Commission
	if input.AgencyID != nil {
		rate, err := s.agencies.ResolveCommission(ctx, actor.OrganizationID, *input.AgencyID, input.PropertyID)
		if err != nil {
			return CreateResult{}, err
		}
		commission = &Commission{
			Percentage: rate,
			Amount:     pricing.ApplyCommission(total, rate),
			Currency:   quote.Currency,
			Status:     agencies.CommissionPending,
		}
	}

	res := Reservation{
		OrganizationID:        actor.OrganizationID,
		PropertyID:            input.PropertyID,
		RoomTypeID:            input.RoomTypeID,
		RatePlanID:            input.RatePlanID,
		AgencyID:              input.AgencyID,
		CreatedByUserID:       actor.ID,
		CheckInDate:           input.CheckIn,
		CheckOutDate:          input.CheckOut,
		RoomsRequested:        input.RoomsRequested,
		Guest:                 input.Guest,
		TotalPrice:            total,
		TaxAmount:             tax.TaxAmount,
		TotalWithTax:          tax.TotalWithTax,
		Currency:              quote.Currency,
		Source:                input.Source,
		PaymentResponsibility: input.PaymentResponsibility,
		Commission:            commission,
		Status:                StatusConfirmed,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		if err := tx.Insert(ctx, &res); err != nil {
			return fmt.Errorf("reservations: insert: %w", err)
		}
		return s.inventory.IncrementSoldTx(ctx, tx.Inventory(), res.PropertyID, res.RoomTypeID, res.Nights(), res.RoomsRequested)
	})
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return CreateResult{}, fmt.Errorf("%w: booking reference collision, retry", shared.ErrConflict)
		}
		return CreateResult{}, err
	}

	s.inventory.InvalidateCalendar(ctx, res.PropertyID, res.RoomTypeID)
	if delta, ok := res.StatsDelta(); ok {
		s.agencies.RecordBooking(ctx, delta)
	}
	s.record(ctx, actor, shared.AuditActionCreate, nil, res,
		fmt.Sprintf("reservation %s created for %s", res.BookingReference, res.Guest.FullName()))
	if s.notifier != nil {
		if err := s.notifier.EnqueueReservationConfirmation(ctx, res.ID); err != nil {
			s.logger.Warn("queue confirmation", slog.Int64("reservation_id", res.ID), slog.Any("error", err))
		}
	}
	s.logger.Info("reservation created",
		slog.Int64("reservation_id", res.ID),
		slog.String("booking_reference", res.BookingReference),
		slog.Int64("property_id", res.PropertyID),
		slog.Int("rooms", res.RoomsRequested),
		slog.Int("nights", quote.Nights))

	return CreateResult{
		Reservation: res,
		Pricing: PricingSummary{
			TotalPrice:     total,
			TaxAmount:      tax.TaxAmount,
			TaxRate:        tax.Rate,
			TotalWithTax:   tax.TotalWithTax,
			Currency:       quote.Currency,
			Nights:         quote.Nights,
			PriceBreakdown: quote.Breakdown,
		},
	}, nil
}

// Cancel releases the stay. The row lock makes a concurrent second cancel
// see the cancelled state, so inventory is released once.
func (s *Service) Cancel(ctx context.Context, actor shared.Actor, id int64, reason string) (Reservation, error) {
	reason = strings.TrimSpace(reason)
	var before, after Reservation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		current, err := s.lockOwned(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		if !CanTransition(current.Status, StatusCancelled) {
			return &InvalidStateError{Current: current.Status, Action: "cancel"}
		}
		before = current
		after = current
		now := s.now()
		actorID := actor.ID
		after.Status = StatusCancelled
		after.CancellationReason = reason
		after.CancelledAt = &now
		after.CancelledByUserID = &actorID
		after.UpdatedAt = now
		if err := tx.Update(ctx, after); err != nil {
			return fmt.Errorf("reservations: update: %w", err)
		}
		return s.inventory.DecrementSoldTx(ctx, tx.Inventory(), after.PropertyID, after.RoomTypeID, after.Nights(), after.RoomsRequested)
	})
	if err != nil {
		return Reservation{}, err
	}

	s.inventory.InvalidateCalendar(ctx, after.PropertyID, after.RoomTypeID)
	if delta, ok := after.StatsDelta(); ok {
		s.agencies.ReverseBooking(ctx, delta)
	}
	description := fmt.Sprintf("reservation %s cancelled", after.BookingReference)
	if reason != "" {
		description += ": " + reason
	}
	s.record(ctx, actor, shared.AuditActionCancel, before, after, description)
	return after, nil
}

// CheckIn moves a confirmed reservation to checked_in.
func (s *Service) CheckIn(ctx context.Context, actor shared.Actor, id int64) (Reservation, error) {
	return s.transition(ctx, actor, id, StatusCheckedIn, "check in", shared.AuditActionCheckIn, func(r *Reservation, now time.Time) {
		r.CheckedInAt = &now
	})
}

// CheckOut moves a checked-in reservation to checked_out.
func (s *Service) CheckOut(ctx context.Context, actor shared.Actor, id int64) (Reservation, error) {
	return s.transition(ctx, actor, id, StatusCheckedOut, "check out", shared.AuditActionCheckOut, func(r *Reservation, now time.Time) {
		r.CheckedOutAt = &now
	})
}

// MarkNoShow closes a confirmed reservation whose guest never arrived. The
// rooms stay sold.
func (s *Service) MarkNoShow(ctx context.Context, actor shared.Actor, id int64) (Reservation, error) {
	return s.transition(ctx, actor, id, StatusNoShow, "mark no-show", shared.AuditActionNoShow, nil)
}

func (s *Service) transition(ctx context.Context, actor shared.Actor, id int64, to Status, action, auditAction string, stamp func(*Reservation, time.Time)) (Reservation, error) {
	var before, after Reservation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		current, err := s.lockOwned(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		if !CanTransition(current.Status, to) {
			return &InvalidStateError{Current: current.Status, Action: action}
		}
		before = current
		after = current
		now := s.now()
		after.Status = to
		after.UpdatedAt = now
		if stamp != nil {
			stamp(&after, now)
		}
		if err := tx.Update(ctx, after); err != nil {
			return fmt.Errorf("reservations: update: %w", err)
		}
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}
	s.record(ctx, actor, auditAction, before, after,
		fmt.Sprintf("reservation %s %s -> %s", after.BookingReference, before.Status, after.Status))
	return after, nil
}

// Get loads a reservation visible to actor.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (Reservation, error) {
	if id <= 0 {
		return Reservation{}, fmt.Errorf("%w: id required", shared.ErrValidation)
	}
	res, err := s.repo.Get(ctx, id)
	return s.visible(actor, res, err, fmt.Sprintf("reservation %d", id))
}

// GetByReference loads a reservation by its booking reference.
func (s *Service) GetByReference(ctx context.Context, actor shared.Actor, ref string) (Reservation, error) {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	if ref == "" {
		return Reservation{}, fmt.Errorf("%w: booking reference required", shared.ErrValidation)
	}
	res, err := s.repo.GetByReference(ctx, ref)
	return s.visible(actor, res, err, "reservation "+ref)
}

// List pages through the actor's organization.
func (s *Service) List(ctx context.Context, actor shared.Actor, filter ListFilter) (shared.Page[Reservation], error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return shared.Page[Reservation]{}, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, filter.Status)
	}
	filter.OrganizationID = actor.OrganizationID
	filter.Page, filter.Limit = shared.NormalizePage(filter.Page, filter.Limit)
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return shared.Page[Reservation]{}, fmt.Errorf("reservations: list: %w", err)
	}
	return shared.NewPage(items, filter.Page, filter.Limit, total), nil
}

func (s *Service) lockOwned(ctx context.Context, tx TxStore, actor shared.Actor, id int64) (Reservation, error) {
	if id <= 0 {
		return Reservation{}, fmt.Errorf("%w: id required", shared.ErrValidation)
	}
	res, err := tx.GetForUpdate(ctx, id)
	return s.visible(actor, res, err, fmt.Sprintf("reservation %d", id))
}

func (s *Service) visible(actor shared.Actor, res Reservation, err error, what string) (Reservation, error) {
	if errors.Is(err, ErrNotFound) {
		return Reservation{}, fmt.Errorf("%w: %s", shared.ErrNotFound, what)
	}
	if err != nil {
		return Reservation{}, fmt.Errorf("reservations: load: %w", err)
	}
	if actor.Role != shared.RoleSuperAdmin && res.OrganizationID != actor.OrganizationID {
		return Reservation{}, fmt.Errorf("%w: %s", shared.ErrNotFound, what)
	}
	return res, nil
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action string, before any, after Reservation, description string) {
	shared.RecordAudit(ctx, s.logger, s.audit, shared.AuditLog{
		OrganizationID: after.OrganizationID,
		ActorID:        actor.ID,
		Action:         action,
		Entity:         AuditEntity,
		EntityID:       fmt.Sprintf("%d", after.ID),
		Changes:        shared.AuditChanges{Before: before, After: after},
		Description:    description,
	})
}

func (s *Service) observe(err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveReservation(Outcome(err))
}

// Outcome classifies a create result for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "confirmed"
	case errors.Is(err, shared.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, shared.ErrPricingIncomplete):
		return "pricing_incomplete"
	case errors.Is(err, shared.ErrValidation):
		return "invalid"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
