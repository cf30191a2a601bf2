package agencies

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/innkeep/innkeep/internal/shared"
)

// CommissionStatus tracks the payout state of a booking commission.
type CommissionStatus string

const (
	CommissionPending  CommissionStatus = "PENDING"
	CommissionInvoiced CommissionStatus = "INVOICED"
	CommissionPaid     CommissionStatus = "PAID"
)

// CommissionStatuses lists the report buckets in lifecycle order.
func CommissionStatuses() []CommissionStatus {
	return []CommissionStatus{CommissionPending, CommissionInvoiced, CommissionPaid}
}

// Stats are the running counters kept on the agency row.
type Stats struct {
	TotalBookings   int64           `json:"total_bookings"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	TotalCommission decimal.Decimal `json:"total_commission"`
}

// StatsDelta is one commutative change to Stats.
type StatsDelta struct {
	AgencyID      int64           `json:"agency_id"`
	ReservationID int64           `json:"reservation_id"`
	Bookings      int64           `json:"bookings"`
	Revenue       decimal.Decimal `json:"revenue"`
	Commission    decimal.Decimal `json:"commission"`
}

// Negate returns the delta that undoes d.
func (d StatsDelta) Negate() StatsDelta {
	return StatsDelta{
		AgencyID:      d.AgencyID,
		ReservationID: d.ReservationID,
		Bookings:      -d.Bookings,
		Revenue:       d.Revenue.Neg(),
		Commission:    d.Commission.Neg(),
	}
}

// Agency is a sales partner that earns commission on attributed bookings.
type Agency struct {
	ID                    int64                     `json:"id"`
	OrganizationID        int64                     `json:"organization_id"`
	Code                  string                    `json:"code"`
	Name                  string                    `json:"name"`
	Status                shared.Lifecycle          `json:"status"`
	DefaultCommissionRate decimal.Decimal           `json:"default_commission_rate"`
	PropertyRates         map[int64]decimal.Decimal `json:"property_rates,omitempty"`
	Stats                 Stats                     `json:"stats"`
}

// IsActive reports whether the agency may take new bookings.
func (a Agency) IsActive() bool {
	return a.Status.Live()
}

// CommissionRate returns the property override or the agency default.
func (a Agency) CommissionRate(propertyID int64) decimal.Decimal {
	if rate, ok := a.PropertyRates[propertyID]; ok {
		return rate
	}
	return a.DefaultCommissionRate
}

// CommissionBucket aggregates commissions in one status.
type CommissionBucket struct {
	Status  CommissionStatus           `json:"status"`
	Count   int                        `json:"count"`
	Amounts map[string]decimal.Decimal `json:"amounts"`
}

// CommissionReport groups an agency's commissions by status.
type CommissionReport struct {
	AgencyID int64              `json:"agency_id"`
	From     time.Time          `json:"from"`
	To       time.Time          `json:"to"`
	Buckets  []CommissionBucket `json:"buckets"`
}

// CommissionTotal is one (status, currency) aggregate row.
type CommissionTotal struct {
	Status   CommissionStatus
	Currency string
	Count    int
	Amount   decimal.Decimal
}
