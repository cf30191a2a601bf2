package reservations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/innkeep/innkeep/internal/agencies"
	"github.com/innkeep/innkeep/internal/inventory"
	"github.com/innkeep/innkeep/internal/platform/db"
	"github.com/innkeep/innkeep/internal/pricing"
	"github.com/innkeep/innkeep/internal/shared"
)

// ErrNotFound indicates a missing reservation row.
var ErrNotFound = errors.New("reservation not found")

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists reservations in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxStore is the transactional view used by booking writes.
type TxStore interface {
	Insert(ctx context.Context, res *Reservation) error
	GetForUpdate(ctx context.Context, id int64) (Reservation, error)
	Update(ctx context.Context, res Reservation) error
	// Inventory binds ledger statements to the same transaction.
	Inventory() inventory.TxRepository
}

type txStore struct {
	tx pgx.Tx
}

// WithTx runs fn in a read-committed transaction. The inventory guards are
// conditional updates and the reservation is locked with FOR UPDATE, so no
// stronger isolation is needed.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return db.WithTxIso(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{tx: tx})
	})
}

const selectColumns = `id, organization_id, booking_reference, property_id, room_type_id, rate_plan_id, agency_id,
created_by_user_id, check_in_date, check_out_date, rooms_requested, guest,
total_price, tax_amount, total_with_tax, currency, source, payment_responsibility,
commission_percentage, commission_amount, commission_currency, commission_status, commission_paid_date,
status, COALESCE(cancellation_reason, ''), cancelled_at, cancelled_by_user_id, checked_in_at, checked_out_at,
created_at, updated_at`

// Get loads a reservation by id.
func (r *Repository) Get(ctx context.Context, id int64) (Reservation, error) {
	return scanReservation(r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM reservations WHERE id = $1`, id))
}

// GetByReference loads a reservation by booking reference.
func (r *Repository) GetByReference(ctx context.Context, ref string) (Reservation, error) {
	return scanReservation(r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM reservations WHERE booking_reference = $1`, ref))
}

// List returns one page of reservations and the total match count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Reservation, int, error) {
	where, args := listWhere(filter)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reservations WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, limit := shared.NormalizePage(filter.Page, filter.Limit)
	args = append(args, limit, shared.Offset(page, limit))
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM reservations WHERE %s
ORDER BY check_in_date DESC, id DESC LIMIT $%d OFFSET $%d`, selectColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, res)
	}
	return items, total, rows.Err()
}

func listWhere(filter ListFilter) (string, []any) {
	clauses := []string{"organization_id = $1"}
	args := []any{filter.OrganizationID}
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.PropertyID > 0 {
		add("property_id = $%d", filter.PropertyID)
	}
	if filter.AgencyID > 0 {
		add("agency_id = $%d", filter.AgencyID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Reference != "" {
		add("booking_reference = $%d", filter.Reference)
	}
	if filter.GuestName != "" {
		add("(guest->>'first_name') || ' ' || (guest->>'last_name') ILIKE $%d", "%"+filter.GuestName+"%")
	}
	if filter.CheckInFrom != nil {
		add("check_in_date >= $%d", *filter.CheckInFrom)
	}
	if filter.CheckInTo != nil {
		add("check_in_date <= $%d", *filter.CheckInTo)
	}
	return strings.Join(clauses, " AND "), args
}

// NewBookingReference returns a fresh human-readable reference.
func NewBookingReference() string {
	id := uuid.New()
	return "BK-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:12])
}

func (s *txStore) Inventory() inventory.TxRepository {
	return inventory.NewTxRepository(s.tx)
}

func (s *txStore) Insert(ctx context.Context, res *Reservation) error {
	if res.BookingReference == "" {
		res.BookingReference = NewBookingReference()
	}
	var pct, amount decimal.NullDecimal
	var commissionCurrency, commissionStatus *string
	if c := res.Commission; c != nil {
		pct = decimal.NullDecimal{Decimal: c.Percentage, Valid: true}
		amount = decimal.NullDecimal{Decimal: c.Amount, Valid: true}
		cur, status := string(c.Currency), string(c.Status)
		commissionCurrency, commissionStatus = &cur, &status
	}
	return s.tx.QueryRow(ctx, `INSERT INTO reservations (
organization_id, booking_reference, property_id, room_type_id, rate_plan_id, agency_id,
created_by_user_id, check_in_date, check_out_date, rooms_requested, guest,
total_price, tax_amount, total_with_tax, currency, source, payment_responsibility,
commission_percentage, commission_amount, commission_currency, commission_status, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
RETURNING id, created_at, updated_at`,
		res.OrganizationID, res.BookingReference, res.PropertyID, res.RoomTypeID, res.RatePlanID, res.AgencyID,
		res.CreatedByUserID, res.CheckInDate, res.CheckOutDate, res.RoomsRequested, res.Guest,
		res.TotalPrice, res.TaxAmount, res.TotalWithTax, string(res.Currency), string(res.Source), string(res.PaymentResponsibility),
		pct, amount, commissionCurrency, commissionStatus, string(res.Status),
	).Scan(&res.ID, &res.CreatedAt, &res.UpdatedAt)
}

func (s *txStore) GetForUpdate(ctx context.Context, id int64) (Reservation, error) {
	return scanReservation(s.tx.QueryRow(ctx, `SELECT `+selectColumns+` FROM reservations WHERE id = $1 FOR UPDATE`, id))
}

// Update writes the lifecycle columns; booking terms never change after create.
func (s *txStore) Update(ctx context.Context, res Reservation) error {
	var reason *string
	if res.CancellationReason != "" {
		reason = &res.CancellationReason
	}
	tag, err := s.tx.Exec(ctx, `UPDATE reservations
SET status = $2, cancellation_reason = $3, cancelled_at = $4, cancelled_by_user_id = $5,
    checked_in_at = $6, checked_out_at = $7, updated_at = $8
WHERE id = $1`, res.ID, string(res.Status), reason, res.CancelledAt, res.CancelledByUserID,
		res.CheckedInAt, res.CheckedOutAt, res.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanReservation(row pgx.Row) (Reservation, error) {
	var res Reservation
	var currency, source, payment, status string
	var pct, amount decimal.NullDecimal
	var commissionCurrency, commissionStatus *string
	var paidDate *time.Time
	err := row.Scan(&res.ID, &res.OrganizationID, &res.BookingReference, &res.PropertyID, &res.RoomTypeID, &res.RatePlanID, &res.AgencyID,
		&res.CreatedByUserID, &res.CheckInDate, &res.CheckOutDate, &res.RoomsRequested, &res.Guest,
		&res.TotalPrice, &res.TaxAmount, &res.TotalWithTax, &currency, &source, &payment,
		&pct, &amount, &commissionCurrency, &commissionStatus, &paidDate,
		&status, &res.CancellationReason, &res.CancelledAt, &res.CancelledByUserID, &res.CheckedInAt, &res.CheckedOutAt,
		&res.CreatedAt, &res.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, ErrNotFound
	}
	if err != nil {
		return Reservation{}, err
	}
	res.Currency = pricing.Currency(currency)
	res.Source = Source(source)
	res.PaymentResponsibility = PaymentResponsibility(payment)
	res.Status = Status(status)
	if res.AgencyID != nil && pct.Valid {
		c := &Commission{Percentage: pct.Decimal, Amount: amount.Decimal, PaidDate: paidDate}
		if commissionCurrency != nil {
			c.Currency = pricing.Currency(*commissionCurrency)
		}
		if commissionStatus != nil {
			c.Status = agencies.CommissionStatus(*commissionStatus)
		}
		res.Commission = c
	}
	return res, nil
}
