package reservations

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/innkeep/innkeep/internal/agencies"
	"github.com/innkeep/innkeep/internal/pricing"
	"github.com/innkeep/innkeep/internal/shared"
)

// Status is the lifecycle state of a reservation.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusCheckedIn  Status = "checked_in"
	StatusCheckedOut Status = "checked_out"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCheckedIn, StatusCheckedOut, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed},
	StatusConfirmed: {StatusCheckedIn, StatusCancelled, StatusNoShow},
	StatusCheckedIn: {StatusCheckedOut, StatusCancelled},
}

// CanTransition reports whether a reservation in from may move to to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Source records the channel a booking came through.
type Source string

const (
	SourceDirect  Source = "DIRECT"
	SourceAgency  Source = "AGENCY"
	SourcePhone   Source = "PHONE"
	SourceEmail   Source = "EMAIL"
	SourceWalkIn  Source = "WALK_IN"
	SourceWebsite Source = "WEBSITE"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceDirect, SourceAgency, SourcePhone, SourceEmail, SourceWalkIn, SourceWebsite:
		return true
	}
	return false
}

// PaymentResponsibility names who settles the bill.
type PaymentResponsibility string

const (
	PayGuest  PaymentResponsibility = "GUEST"
	PayAgency PaymentResponsibility = "AGENCY"
)

// Guest is the lead guest of a stay.
type Guest struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Phone     string `json:"phone,omitempty" validate:"omitempty,max=40"`
	Adults    int    `json:"adults" validate:"gte=0,lte=20"`
	Children  int    `json:"children" validate:"gte=0,lte=20"`
	Notes     string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

// FullName joins the guest names.
func (g Guest) FullName() string {
	return strings.TrimSpace(g.FirstName + " " + g.LastName)
}

// Commission is the agency's cut of a booking.
type Commission struct {
	Percentage decimal.Decimal           `json:"percentage"`
	Amount     decimal.Decimal           `json:"amount"`
	Currency   pricing.Currency          `json:"currency"`
	Status     agencies.CommissionStatus `json:"status"`
	PaidDate   *time.Time                `json:"paid_date,omitempty"`
}

// Reservation is a booked stay.
type Reservation struct {
	ID                    int64                 `json:"id"`
	OrganizationID        int64                 `json:"organization_id"`
	BookingReference      string                `json:"booking_reference"`
	PropertyID            int64                 `json:"property_id"`
	RoomTypeID            int64                 `json:"room_type_id"`
	RatePlanID            int64                 `json:"rate_plan_id"`
	AgencyID              *int64                `json:"agency_id,omitempty"`
	CreatedByUserID       int64                 `json:"created_by_user_id"`
	CheckInDate           time.Time             `json:"check_in_date"`
	CheckOutDate          time.Time             `json:"check_out_date"`
	RoomsRequested        int                   `json:"rooms_requested"`
	Guest                 Guest                 `json:"guest"`
	TotalPrice            decimal.Decimal       `json:"total_price"`
	TaxAmount             decimal.Decimal       `json:"tax_amount"`
	TotalWithTax          decimal.Decimal       `json:"total_with_tax"`
	Currency              pricing.Currency      `json:"currency"`
	Source                Source                `json:"source"`
	PaymentResponsibility PaymentResponsibility `json:"payment_responsibility"`
	Commission            *Commission           `json:"commission,omitempty"`
	Status                Status                `json:"status"`
	CancellationReason    string                `json:"cancellation_reason,omitempty"`
	CancelledAt           *time.Time            `json:"cancelled_at,omitempty"`
	CancelledByUserID     *int64                `json:"cancelled_by_user_id,omitempty"`
	CheckedInAt           *time.Time            `json:"checked_in_at,omitempty"`
	CheckedOutAt          *time.Time            `json:"checked_out_at,omitempty"`
	CreatedAt             time.Time             `json:"created_at"`
	UpdatedAt             time.Time             `json:"updated_at"`
}

// Nights lists the nights the stay occupies.
func (r Reservation) Nights() []time.Time {
	return shared.StayNights(r.CheckInDate, r.CheckOutDate)
}

// StatsDelta is the agency stats contribution of r, or false when r has no agency.
func (r Reservation) StatsDelta() (agencies.StatsDelta, bool) {
	if r.AgencyID == nil {
		return agencies.StatsDelta{}, false
	}
	delta := agencies.StatsDelta{AgencyID: *r.AgencyID, ReservationID: r.ID, Bookings: 1, Revenue: r.TotalPrice, Commission: decimal.Zero}
	if r.Commission != nil {
		delta.Commission = r.Commission.Amount
	}
	return delta, true
}

// PricingSummary is the price part of a creation result.
type PricingSummary struct {
	TotalPrice     decimal.Decimal      `json:"total_price"`
	TaxAmount      decimal.Decimal      `json:"tax_amount"`
	TaxRate        decimal.Decimal      `json:"tax_rate"`
	TotalWithTax   decimal.Decimal      `json:"total_with_tax"`
	Currency       pricing.Currency     `json:"currency"`
	Nights         int                  `json:"nights"`
	PriceBreakdown []pricing.NightPrice `json:"price_breakdown"`
}

// CreateResult is returned by Create.
type CreateResult struct {
	Reservation Reservation    `json:"reservation"`
	Pricing     PricingSummary `json:"pricing"`
}

// CreateInput carries a booking request.
type CreateInput struct {
	IdempotencyKey        string
	PropertyID            int64
	RoomTypeID            int64
	RatePlanID            int64
	AgencyID              *int64
	CheckIn               time.Time
	CheckOut              time.Time
	RoomsRequested        int
	Guest                 Guest
	Source                Source
	PaymentResponsibility PaymentResponsibility
}

// Validate checks the request shape before any lookups run.
func (in *CreateInput) Validate() error {
	in.CheckIn, in.CheckOut = shared.DateOnly(in.CheckIn), shared.DateOnly(in.CheckOut)
	var problems []string
	if in.PropertyID <= 0 || in.RoomTypeID <= 0 || in.RatePlanID <= 0 {
		problems = append(problems, "property, room type and rate plan are required")
	}
	if in.CheckIn.IsZero() || in.CheckOut.IsZero() || !in.CheckIn.Before(in.CheckOut) {
		problems = append(problems, "check_in must be before check_out")
	}
	if in.RoomsRequested < 1 {
		problems = append(problems, "rooms_requested must be >= 1")
	}
	if strings.TrimSpace(in.Guest.FirstName) == "" || strings.TrimSpace(in.Guest.LastName) == "" {
		problems = append(problems, "guest name is required")
	}
	if in.Source == "" {
		in.Source = SourceDirect
		if in.AgencyID != nil {
			in.Source = SourceAgency
		}
	}
	if !in.Source.Valid() {
		problems = append(problems, fmt.Sprintf("unknown source %q", in.Source))
	}
	if in.AgencyID != nil && *in.AgencyID <= 0 {
		problems = append(problems, "agency_id must be positive")
	}
	if in.Source == SourceAgency && in.AgencyID == nil {
		problems = append(problems, "agency source requires agency_id")
	}
	switch in.PaymentResponsibility {
	case "":
		in.PaymentResponsibility = PayGuest
	case PayGuest:
	case PayAgency:
		if in.AgencyID == nil {
			problems = append(problems, "agency payment requires agency_id")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown payment responsibility %q", in.PaymentResponsibility))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", shared.ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

// ListFilter narrows a reservation listing.
type ListFilter struct {
	OrganizationID int64
	PropertyID     int64
	AgencyID       int64
	Status         Status
	Reference      string
	GuestName      string
	CheckInFrom    *time.Time
	CheckInTo      *time.Time
	Page           int
	Limit          int
}

// InvalidStateError rejects a transition from the current status.
type InvalidStateError struct {
	Current Status
	Action  string
}

func (e *InvalidStateError) Error() string {
	switch {
	case e.Action == "cancel" && e.Current == StatusCancelled:
		return "reservation already cancelled"
	case e.Action == "cancel" && e.Current == StatusCheckedOut:
		return "cannot cancel checked-out reservation"
	}
	return fmt.Sprintf("cannot %s reservation in status %s", e.Action, e.Current)
}

// Unwrap exposes the shared sentinel.
func (e *InvalidStateError) Unwrap() error { return shared.ErrInvalidState }

// ProblemExtensions names the current state for API clients.
func (e *InvalidStateError) ProblemExtensions() map[string]any {
	return map[string]any{"current_status": e.Current, "action": e.Action}
}
