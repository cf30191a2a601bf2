package agencies

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/innkeep/innkeep/internal/shared"
)

// ErrNotFound indicates a missing agency row.
var ErrNotFound = errors.New("agency not found")

// Repository persists agencies in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get loads an agency with its property overrides.
func (r *Repository) Get(ctx context.Context, id int64) (Agency, error) {
	var a Agency
	var status string
	err := r.pool.QueryRow(ctx, `SELECT id, organization_id, code, name, status, default_commission_rate, total_bookings, total_revenue, total_commission
FROM agencies WHERE id = $1`, id).Scan(&a.ID, &a.OrganizationID, &a.Code, &a.Name, &status, &a.DefaultCommissionRate,
		&a.Stats.TotalBookings, &a.Stats.TotalRevenue, &a.Stats.TotalCommission)
	if errors.Is(err, pgx.ErrNoRows) {
		return Agency{}, ErrNotFound
	}
	if err != nil {
		return Agency{}, err
	}
	a.Status = shared.Lifecycle(status)

	rows, err := r.pool.Query(ctx, `SELECT property_id, commission_rate FROM agency_property_rates WHERE agency_id = $1`, id)
	if err != nil {
		return Agency{}, err
	}
	defer rows.Close()
	a.PropertyRates = make(map[int64]decimal.Decimal)
	for rows.Next() {
		var propertyID int64
		var rate decimal.Decimal
		if err := rows.Scan(&propertyID, &rate); err != nil {
			return Agency{}, err
		}
		a.PropertyRates[propertyID] = rate
	}
	return a, rows.Err()
}

// ApplyStats adds delta to the counters in a single statement.
func (r *Repository) ApplyStats(ctx context.Context, delta StatsDelta) error {
	tag, err := r.pool.Exec(ctx, `UPDATE agencies
SET total_bookings = total_bookings + $2,
    total_revenue = total_revenue + $3,
    total_commission = total_commission + $4,
    updated_at = NOW()
WHERE id = $1`, delta.AgencyID, delta.Bookings, delta.Revenue, delta.Commission)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCommissions moves commissions of the agency's reservations into target.
// Only rows that are not already there change.
func (r *Repository) MarkCommissions(ctx context.Context, agencyID int64, reservationIDs []int64, target CommissionStatus) (int, error) {
	var sql string
	switch target {
	case CommissionPaid:
		sql = `UPDATE reservations SET commission_status = 'PAID', commission_paid_date = NOW(), updated_at = NOW()
WHERE agency_id = $1 AND id = ANY($2) AND commission_status <> 'PAID' AND status <> 'cancelled'`
	case CommissionInvoiced:
		sql = `UPDATE reservations SET commission_status = 'INVOICED', updated_at = NOW()
WHERE agency_id = $1 AND id = ANY($2) AND commission_status = 'PENDING' AND status <> 'cancelled'`
	default:
		return 0, errors.New("agencies: unsupported commission target")
	}
	tag, err := r.pool.Exec(ctx, sql, agencyID, reservationIDs)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// CommissionTotals aggregates non-cancelled reservations checking in within [from, to].
func (r *Repository) CommissionTotals(ctx context.Context, agencyID int64, from, to time.Time) ([]CommissionTotal, error) {
	rows, err := r.pool.Query(ctx, `SELECT commission_status, commission_currency, COUNT(*), COALESCE(SUM(commission_amount), 0)
FROM reservations
WHERE agency_id = $1 AND check_in_date BETWEEN $2 AND $3 AND status <> 'cancelled'
GROUP BY commission_status, commission_currency`, agencyID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var totals []CommissionTotal
	for rows.Next() {
		var t CommissionTotal
		var status string
		if err := rows.Scan(&status, &t.Currency, &t.Count, &t.Amount); err != nil {
			return nil, err
		}
		t.Status = CommissionStatus(status)
		totals = append(totals, t)
	}
	return totals, rows.Err()
}
