package inventory

import (
	"fmt"
	"time"

	"github.com/innkeep/innkeep/internal/shared"
)

// Reason explains why a night cannot be sold.
type Reason string

const (
	// ReasonClosed marks a night closed for sale.
	ReasonClosed Reason = "closed"
	// ReasonStopSell marks a night under stop-sell.
	ReasonStopSell Reason = "stop_sell"
	// ReasonNoAvailability marks a sold out or unconfigured night.
	ReasonNoAvailability Reason = "no_availability"
)

// MaxBulkRangeDays bounds a single bulk configuration call.
const MaxBulkRangeDays = 366

// Record is the ledger row for one property, room type and calendar day.
type Record struct {
	PropertyID         int64     `json:"property_id"`
	RoomTypeID         int64     `json:"room_type_id"`
	Date               time.Time `json:"date"`
	Allotment          int       `json:"allotment"`
	Sold               int       `json:"sold"`
	OverbookingAllowed int       `json:"overbooking_allowed"`
	Available          int       `json:"available"`
	StopSell           bool      `json:"stop_sell"`
	Closed             bool      `json:"closed"`
	MinNightsOverride  *int      `json:"min_nights_override,omitempty"`
	MaxNights          *int      `json:"max_nights,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ComputeAvailable derives sellable rooms from the ledger counters.
func ComputeAvailable(allotment, sold, overbooking int) int {
	available := allotment - sold + overbooking
	if available < 0 {
		return 0
	}
	return available
}

// Recompute refreshes Available from the counters.
func (r *Record) Recompute() {
	r.Available = ComputeAvailable(r.Allotment, r.Sold, r.OverbookingAllowed)
}

// IsBookable reports whether rooms can still be sold on this night.
func (r Record) IsBookable(rooms int) bool {
	return r.BlockReason(rooms) == ""
}

// BlockReason returns the reason the night cannot take rooms, or "" when it can.
func (r Record) BlockReason(rooms int) Reason {
	switch {
	case r.Closed:
		return ReasonClosed
	case r.StopSell:
		return ReasonStopSell
	case ComputeAvailable(r.Allotment, r.Sold, r.OverbookingAllowed) < rooms:
		return ReasonNoAvailability
	default:
		return ""
	}
}

// Availability is the verdict for a stay.
type Availability struct {
	Available bool       `json:"available"`
	Date      *time.Time `json:"date,omitempty"`
	Reason    Reason     `json:"reason,omitempty"`
}

// Err converts a negative verdict into an UnavailableError.
func (a Availability) Err() error {
	if a.Available {
		return nil
	}
	var date time.Time
	if a.Date != nil {
		date = *a.Date
	}
	return &UnavailableError{Date: date, Reason: a.Reason}
}

// UnavailableError names the first night that blocks a stay.
type UnavailableError struct {
	Date   time.Time
	Reason Reason
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("inventory: %s on %s", e.Reason, e.Date.Format(shared.DateLayout))
}

// Unwrap exposes the shared sentinel.
func (e *UnavailableError) Unwrap() error { return shared.ErrUnavailable }

// ProblemExtensions carries the failing night to API clients.
func (e *UnavailableError) ProblemExtensions() map[string]any {
	return map[string]any{
		"date":   e.Date.Format(shared.DateLayout),
		"reason": string(e.Reason),
	}
}

// BulkConfigInput patches every night in [Start, End]. Nil fields keep the
// stored value.
type BulkConfigInput struct {
	OrganizationID     int64
	ActorID            int64
	PropertyID         int64
	RoomTypeID         int64
	Start              time.Time
	End                time.Time
	Allotment          *int
	OverbookingAllowed *int
	StopSell           *bool
	Closed             *bool
	MinNights          *int
	MaxNights          *int
}

// Validate checks ids, range and counters.
func (in BulkConfigInput) Validate() error {
	if in.PropertyID <= 0 || in.RoomTypeID <= 0 {
		return fmt.Errorf("%w: property and room type required", shared.ErrValidation)
	}
	if in.Start.IsZero() || in.End.IsZero() {
		return fmt.Errorf("%w: start and end required", shared.ErrValidation)
	}
	start, end := shared.DateOnly(in.Start), shared.DateOnly(in.End)
	if end.Before(start) {
		return fmt.Errorf("%w: end before start", shared.ErrValidation)
	}
	if len(shared.DateRange(start, end)) > MaxBulkRangeDays {
		return fmt.Errorf("%w: range exceeds %d days", shared.ErrValidation, MaxBulkRangeDays)
	}
	for name, v := range map[string]*int{
		"allotment":           in.Allotment,
		"overbooking_allowed": in.OverbookingAllowed,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%w: %s must be >= 0", shared.ErrValidation, name)
		}
	}
	for name, v := range map[string]*int{
		"min_nights": in.MinNights,
		"max_nights": in.MaxNights,
	} {
		if v != nil && *v < 1 {
			return fmt.Errorf("%w: %s must be >= 1", shared.ErrValidation, name)
		}
	}
	if in.MinNights != nil && in.MaxNights != nil && *in.MinNights > *in.MaxNights {
		return fmt.Errorf("%w: min_nights exceeds max_nights", shared.ErrValidation)
	}
	if in.Allotment == nil && in.OverbookingAllowed == nil && in.StopSell == nil && in.Closed == nil && in.MinNights == nil && in.MaxNights == nil {
		return fmt.Errorf("%w: nothing to update", shared.ErrValidation)
	}
	return nil
}

// apply patches r in place and recomputes Available.
func (in BulkConfigInput) apply(r *Record) {
	if in.Allotment != nil {
		r.Allotment = *in.Allotment
	}
	if in.OverbookingAllowed != nil {
		r.OverbookingAllowed = *in.OverbookingAllowed
	}
	if in.StopSell != nil {
		r.StopSell = *in.StopSell
	}
	if in.Closed != nil {
		r.Closed = *in.Closed
	}
	if in.MinNights != nil {
		v := *in.MinNights
		r.MinNightsOverride = &v
	}
	if in.MaxNights != nil {
		v := *in.MaxNights
		r.MaxNights = &v
	}
	r.Recompute()
}

// Drift is a night whose ledger sold count disagrees with live reservations.
type Drift struct {
	PropertyID int64     `json:"property_id"`
	RoomTypeID int64     `json:"room_type_id"`
	Date       time.Time `json:"date"`
	LedgerSold int       `json:"ledger_sold"`
	Booked     int       `json:"booked"`
}
