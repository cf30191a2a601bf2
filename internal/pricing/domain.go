package pricing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/innkeep/innkeep/internal/shared"
)

// Currency is an ISO 4217 code accepted by the price ledger.
type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
	CurrencyTRY Currency = "TRY"
)

var supportedCurrencies = map[Currency]struct{}{
	CurrencyEUR: {},
	CurrencyUSD: {},
	CurrencyGBP: {},
	CurrencyTRY: {},
}

// ParseCurrency normalises and validates a currency code.
func ParseCurrency(code string) (Currency, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return "", fmt.Errorf("%w: unknown currency %q", shared.ErrValidation, code)
	}
	c := Currency(unit.String())
	if _, ok := supportedCurrencies[c]; !ok {
		return "", fmt.Errorf("%w: unsupported currency %s", shared.ErrValidation, c)
	}
	return c, nil
}

// Source records who wrote a price.
type Source string

const (
	SourceManual         Source = "MANUAL"
	SourceSystem         Source = "SYSTEM"
	SourceChannelManager Source = "CHANNEL_MANAGER"
	SourceAPI            Source = "API"
	SourceBulkUpload     Source = "BULK_UPLOAD"
	SourceAISuggestion   Source = "AI_SUGGESTION"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceManual, SourceSystem, SourceChannelManager, SourceAPI, SourceBulkUpload, SourceAISuggestion:
		return true
	}
	return false
}

// Record is one nightly rate for a property, room type and rate plan.
type Record struct {
	ID          int64           `json:"id"`
	PropertyID  int64           `json:"property_id"`
	RoomTypeID  int64           `json:"room_type_id"`
	RatePlanID  int64           `json:"rate_plan_id"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    Currency        `json:"currency"`
	Source      Source          `json:"source"`
	IsAvailable bool            `json:"is_available"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NightPrice is one line of a quote breakdown.
type NightPrice struct {
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// Quote is the per-room sum of a stay.
type Quote struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	Currency  Currency        `json:"currency"`
	Nights    int             `json:"nights"`
	Breakdown []NightPrice    `json:"breakdown"`
}

// Tax is the VAT applied on a subtotal.
type Tax struct {
	Rate         decimal.Decimal `json:"rate"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
	TotalWithTax decimal.Decimal `json:"total_with_tax"`
}

// PricingIncompleteError lists the nights that block pricing.
type PricingIncompleteError struct {
	Missing     []time.Time
	Unavailable []time.Time
}

func (e *PricingIncompleteError) Error() string {
	parts := make([]string, 0, 2)
	if len(e.Missing) > 0 {
		parts = append(parts, "missing prices for "+joinDates(e.Missing))
	}
	if len(e.Unavailable) > 0 {
		parts = append(parts, "price closed on "+joinDates(e.Unavailable))
	}
	return "pricing: " + strings.Join(parts, "; ")
}

// Unwrap exposes the shared sentinel.
func (e *PricingIncompleteError) Unwrap() error { return shared.ErrPricingIncomplete }

// ProblemExtensions carries the offending nights to API clients.
func (e *PricingIncompleteError) ProblemExtensions() map[string]any {
	return map[string]any{
		"missing_dates":     formatDates(e.Missing),
		"unavailable_dates": formatDates(e.Unavailable),
	}
}

// MaxCommissionRate is the highest commission percentage accepted.
var MaxCommissionRate = decimal.NewFromInt(50)

// ValidateCommissionRate accepts percentages in [0, 50].
func ValidateCommissionRate(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(MaxCommissionRate) {
		return fmt.Errorf("%w: commission rate %s outside 0-50", shared.ErrValidation, pct.String())
	}
	return nil
}

// ApplyCommission returns round(subtotal * pct / 100, 2).
func ApplyCommission(subtotal, pct decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(pct).Div(decimal.NewFromInt(100)).Round(2)
}

// BulkUpsertInput writes one price per date in [Start, End]. An empty
// Weekdays list selects every day.
type BulkUpsertInput struct {
	OrganizationID int64
	ActorID        int64
	PropertyID     int64
	RoomTypeID     int64
	RatePlanID     int64
	Start          time.Time
	End            time.Time
	Weekdays       []time.Weekday
	Amount         decimal.Decimal
	Currency       Currency
	Source         Source
	IsAvailable    bool
}

// MaxBulkRangeDays bounds a single bulk write.
const MaxBulkRangeDays = 366

// Dates expands the range, applying the weekday filter.
func (in BulkUpsertInput) Dates() []time.Time {
	days := shared.DateRange(in.Start, in.End)
	if len(in.Weekdays) == 0 {
		return days
	}
	allowed := make(map[time.Weekday]struct{}, len(in.Weekdays))
	for _, wd := range in.Weekdays {
		allowed[wd] = struct{}{}
	}
	filtered := days[:0]
	for _, d := range days {
		if _, ok := allowed[d.Weekday()]; ok {
			filtered = append(filtered, d)
		}
	}
	return filtered
}

// Validate checks ids, range, amount, currency and source.
func (in BulkUpsertInput) Validate() error {
	if err := validateKey(in.PropertyID, in.RoomTypeID, in.RatePlanID); err != nil {
		return err
	}
	if err := validateRange(in.Start, in.End); err != nil {
		return err
	}
	if in.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must be >= 0", shared.ErrValidation)
	}
	if _, ok := supportedCurrencies[in.Currency]; !ok {
		return fmt.Errorf("%w: unsupported currency %q", shared.ErrValidation, in.Currency)
	}
	if !in.Source.Valid() {
		return fmt.Errorf("%w: unknown source %q", shared.ErrValidation, in.Source)
	}
	return nil
}

// DeleteRangeInput soft-deletes prices in [Start, End].
type DeleteRangeInput struct {
	OrganizationID int64
	ActorID        int64
	PropertyID     int64
	RoomTypeID     int64
	RatePlanID     int64
	Start          time.Time
	End            time.Time
}

func validateKey(propertyID, roomTypeID, ratePlanID int64) error {
	if propertyID <= 0 || roomTypeID <= 0 || ratePlanID <= 0 {
		return fmt.Errorf("%w: property, room type and rate plan required", shared.ErrValidation)
	}
	return nil
}

func validateRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: start and end required", shared.ErrValidation)
	}
	start, end = shared.DateOnly(start), shared.DateOnly(end)
	if end.Before(start) {
		return fmt.Errorf("%w: end before start", shared.ErrValidation)
	}
	if len(shared.DateRange(start, end)) > MaxBulkRangeDays {
		return fmt.Errorf("%w: range exceeds %d days", shared.ErrValidation, MaxBulkRangeDays)
	}
	return nil
}

func formatDates(dates []time.Time) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(shared.DateLayout)
	}
	return out
}

func joinDates(dates []time.Time) string {
	return strings.Join(formatDates(dates), ", ")
}
