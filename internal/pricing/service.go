package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/innkeep/innkeep/internal/shared"
)

// DefaultTaxRate is the flat VAT applied when none is configured.
var DefaultTaxRate = decimal.RequireFromString("0.07")

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	FindRange(ctx context.Context, propertyID, roomTypeID, ratePlanID int64, start, end time.Time) ([]Record, error)
	UpsertDates(ctx context.Context, in BulkUpsertInput, dates []time.Time) (int, error)
	SoftDelete(ctx context.Context, propertyID, roomTypeID, ratePlanID int64, start, end time.Time) (int, error)
}

// Service aggregates and maintains the price ledger.
type Service struct {
	repo    RepositoryPort
	audit   shared.AuditRecorder
	logger  *slog.Logger
	taxRate decimal.Decimal
}

// NewService builds Service. A negative taxRate falls back to DefaultTaxRate;
// zero is a valid rate for tax-exempt properties.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, logger *slog.Logger, taxRate decimal.Decimal) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if taxRate.IsNegative() {
		taxRate = DefaultTaxRate
	}
	return &Service{repo: repo, audit: audit, logger: logger, taxRate: taxRate}
}

// TaxRate returns the configured VAT rate.
func (s *Service) TaxRate() decimal.Decimal { return s.taxRate }

// SumRange prices every night in [checkIn, checkOut). Partial pricing is
// never returned.
func (s *Service) SumRange(ctx context.Context, propertyID, roomTypeID, ratePlanID int64, checkIn, checkOut time.Time) (Quote, error) {
	if err := validateKey(propertyID, roomTypeID, ratePlanID); err != nil {
		return Quote{}, err
	}
	nights := shared.Nights(checkIn, checkOut)
	if nights <= 0 {
		return Quote{}, fmt.Errorf("%w: check_in must be before check_out", shared.ErrValidation)
	}
	checkIn, checkOut = shared.DateOnly(checkIn), shared.DateOnly(checkIn).AddDate(0, 0, nights)
	records, err := s.repo.FindRange(ctx, propertyID, roomTypeID, ratePlanID, checkIn, checkOut)
	if err != nil {
		return Quote{}, fmt.Errorf("pricing: find range: %w", err)
	}

	byDate := make(map[time.Time]Record, len(records))
	for _, rec := range records {
		byDate[shared.DateOnly(rec.Date)] = rec
	}
	incomplete := &PricingIncompleteError{}
	for _, night := range shared.StayNights(checkIn, checkOut) {
		rec, ok := byDate[night]
		switch {
		case !ok:
			incomplete.Missing = append(incomplete.Missing, night)
		case !rec.IsAvailable:
			incomplete.Unavailable = append(incomplete.Unavailable, night)
		}
	}
	if len(incomplete.Missing) > 0 || len(incomplete.Unavailable) > 0 || len(records) != nights {
		return Quote{}, incomplete
	}

	quote := Quote{Subtotal: decimal.Zero, Nights: nights, Breakdown: make([]NightPrice, 0, nights)}
	for i, rec := range records {
		if i == 0 {
			quote.Currency = rec.Currency
		} else if rec.Currency != quote.Currency {
			return Quote{}, fmt.Errorf("%w: mixed currencies %s and %s", shared.ErrPricingIncomplete, quote.Currency, rec.Currency)
		}
		quote.Subtotal = quote.Subtotal.Add(rec.Amount)
		quote.Breakdown = append(quote.Breakdown, NightPrice{Date: shared.DateOnly(rec.Date), Amount: rec.Amount})
	}
	quote.Subtotal = quote.Subtotal.Round(2)
	return quote, nil
}

// ApplyTax computes VAT on subtotal at the configured rate.
func (s *Service) ApplyTax(subtotal decimal.Decimal) Tax {
	taxAmount := subtotal.Mul(s.taxRate).Round(2)
	return Tax{
		Rate:         s.taxRate,
		TaxAmount:    taxAmount,
		TotalWithTax: subtotal.Add(taxAmount).Round(2),
	}
}

// FindRange lists live prices in [start, end].
func (s *Service) FindRange(ctx context.Context, propertyID, roomTypeID, ratePlanID int64, start, end time.Time) ([]Record, error) {
	if err := validateKey(propertyID, roomTypeID, ratePlanID); err != nil {
		return nil, err
	}
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	records, err := s.repo.FindRange(ctx, propertyID, roomTypeID, ratePlanID, shared.DateOnly(start), shared.DateOnly(end).AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("pricing: find range: %w", err)
	}
	return records, nil
}

// BulkUpsert writes the amount on every selected date. AI suggested rates go
// through here with SourceAISuggestion.
func (s *Service) BulkUpsert(ctx context.Context, input BulkUpsertInput) (int, error) {
	if err := input.Validate(); err != nil {
		return 0, err
	}
	input.Start, input.End = shared.DateOnly(input.Start), shared.DateOnly(input.End)
	input.Amount = input.Amount.Round(2)
	dates := input.Dates()
	if len(dates) == 0 {
		return 0, nil
	}
	n, err := s.repo.UpsertDates(ctx, input, dates)
	if err != nil {
		return 0, fmt.Errorf("pricing: bulk upsert: %w", err)
	}
	shared.RecordAudit(ctx, s.logger, s.audit, shared.AuditLog{
		OrganizationID: input.OrganizationID,
		ActorID:        input.ActorID,
		Action:         shared.AuditActionBulkWrite,
		Entity:         "prices",
		EntityID:       rangeEntityID(input.PropertyID, input.RoomTypeID, input.RatePlanID, input.Start, input.End),
		Changes: shared.AuditChanges{After: map[string]any{
			"amount":       input.Amount.StringFixed(2),
			"currency":     input.Currency,
			"source":       input.Source,
			"is_available": input.IsAvailable,
			"dates":        len(dates),
		}},
		Description: fmt.Sprintf("upserted %d prices", n),
	})
	return n, nil
}

// DeleteRange soft-deletes prices in [Start, End].
func (s *Service) DeleteRange(ctx context.Context, input DeleteRangeInput) (int, error) {
	if err := validateKey(input.PropertyID, input.RoomTypeID, input.RatePlanID); err != nil {
		return 0, err
	}
	if err := validateRange(input.Start, input.End); err != nil {
		return 0, err
	}
	start, end := shared.DateOnly(input.Start), shared.DateOnly(input.End)
	n, err := s.repo.SoftDelete(ctx, input.PropertyID, input.RoomTypeID, input.RatePlanID, start, end)
	if err != nil {
		return 0, fmt.Errorf("pricing: delete range: %w", err)
	}
	shared.RecordAudit(ctx, s.logger, s.audit, shared.AuditLog{
		OrganizationID: input.OrganizationID,
		ActorID:        input.ActorID,
		Action:         shared.AuditActionBulkWrite,
		Entity:         "prices",
		EntityID:       rangeEntityID(input.PropertyID, input.RoomTypeID, input.RatePlanID, start, end),
		Changes:        shared.AuditChanges{After: map[string]any{"deleted": n}},
		Description:    fmt.Sprintf("soft deleted %d prices", n),
	})
	return n, nil
}

func rangeEntityID(propertyID, roomTypeID, ratePlanID int64, start, end time.Time) string {
	return fmt.Sprintf("%d:%d:%d:%s..%s", propertyID, roomTypeID, ratePlanID, start.Format(shared.DateLayout), end.Format(shared.DateLayout))
}
