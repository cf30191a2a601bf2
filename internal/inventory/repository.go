package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/innkeep/innkeep/internal/platform/db"
)

// ErrRecordNotFound indicates a missing ledger row.
var ErrRecordNotFound = errors.New("inventory record not found")

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	// IncrementSold applies the conditional increment and reports whether the row changed.
	IncrementSold(ctx context.Context, propertyID, roomTypeID int64, date time.Time, qty int) (bool, error)
	// DecrementSold releases rooms, flooring sold at zero. Reports whether the row exists.
	DecrementSold(ctx context.Context, propertyID, roomTypeID int64, date time.Time, qty int) (bool, error)
	Get(ctx context.Context, propertyID, roomTypeID int64, date time.Time) (Record, error)
	UpsertRange(ctx context.Context, input BulkConfigInput) ([]Record, error)
}

type txRepo struct {
	q querier
}

// NewTxRepository binds inventory statements to a transaction owned by another module.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{q: tx}
}

// WithTx executes the callback inside a read-committed transaction. The
// conditional updates carry their own guards, so row locks are enough.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxIso(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

const selectColumns = `property_id, room_type_id, date, allotment, sold, overbooking_allowed, available, stop_sell, closed, min_nights_override, max_nights, updated_at`

// FindRange returns rows for [start, end] ordered by date.
func (r *Repository) FindRange(ctx context.Context, propertyID, roomTypeID int64, start, end time.Time) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+selectColumns+`
FROM inventory
WHERE property_id = $1 AND room_type_id = $2 AND date BETWEEN $3 AND $4
ORDER BY date ASC`, propertyID, roomTypeID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SoldDrift compares ledger sold counts with live reservations per night.
func (r *Repository) SoldDrift(ctx context.Context, from, to time.Time) ([]Drift, error) {
	rows, err := r.pool.Query(ctx, `WITH booked AS (
	SELECT res.property_id, res.room_type_id, gs::date AS date, SUM(res.rooms_requested) AS rooms
	FROM reservations res
	CROSS JOIN LATERAL generate_series(res.check_in_date, res.check_out_date - 1, interval '1 day') gs
	WHERE res.status IN ('confirmed', 'checked_in', 'checked_out', 'no_show')
	  AND res.check_out_date > $1 AND res.check_in_date <= $2
	GROUP BY res.property_id, res.room_type_id, gs::date
)
SELECT i.property_id, i.room_type_id, i.date, i.sold, COALESCE(b.rooms, 0)
FROM inventory i
LEFT JOIN booked b ON b.property_id = i.property_id AND b.room_type_id = i.room_type_id AND b.date = i.date
WHERE i.date BETWEEN $1 AND $2 AND i.sold <> COALESCE(b.rooms, 0)
ORDER BY i.date, i.property_id, i.room_type_id`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var drifts []Drift
	for rows.Next() {
		var d Drift
		if err := rows.Scan(&d.PropertyID, &d.RoomTypeID, &d.Date, &d.LedgerSold, &d.Booked); err != nil {
			return nil, err
		}
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}

func (r *txRepo) IncrementSold(ctx context.Context, propertyID, roomTypeID int64, date time.Time, qty int) (bool, error) {
	tag, err := r.q.Exec(ctx, `UPDATE inventory
SET sold = sold + $4,
    available = GREATEST(0, allotment - (sold + $4) + overbooking_allowed),
    updated_at = NOW()
WHERE property_id = $1 AND room_type_id = $2 AND date = $3
  AND NOT closed AND NOT stop_sell
  AND sold + $4 <= allotment + overbooking_allowed`, propertyID, roomTypeID, date, qty)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepo) DecrementSold(ctx context.Context, propertyID, roomTypeID int64, date time.Time, qty int) (bool, error) {
	tag, err := r.q.Exec(ctx, `UPDATE inventory
SET sold = GREATEST(0, sold - $4),
    available = GREATEST(0, allotment - GREATEST(0, sold - $4) + overbooking_allowed),
    updated_at = NOW()
WHERE property_id = $1 AND room_type_id = $2 AND date = $3`, propertyID, roomTypeID, date, qty)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepo) Get(ctx context.Context, propertyID, roomTypeID int64, date time.Time) (Record, error) {
	row := r.q.QueryRow(ctx, `SELECT `+selectColumns+`
FROM inventory WHERE property_id = $1 AND room_type_id = $2 AND date = $3`, propertyID, roomTypeID, date)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	return rec, err
}

func (r *txRepo) UpsertRange(ctx context.Context, in BulkConfigInput) ([]Record, error) {
	rows, err := r.q.Query(ctx, `INSERT INTO inventory AS inv (property_id, room_type_id, date, allotment, sold, overbooking_allowed, available, stop_sell, closed, min_nights_override, max_nights, updated_at)
SELECT $1, $2, d::date,
       COALESCE($5::int, 0), 0, COALESCE($6::int, 0),
       GREATEST(0, COALESCE($5::int, 0) + COALESCE($6::int, 0)),
       COALESCE($7::bool, false), COALESCE($8::bool, false), $9::int, $10::int, NOW()
FROM generate_series($3::date, $4::date, interval '1 day') AS d
ON CONFLICT (property_id, room_type_id, date) DO UPDATE SET
    allotment = COALESCE($5::int, inv.allotment),
    overbooking_allowed = COALESCE($6::int, inv.overbooking_allowed),
    stop_sell = COALESCE($7::bool, inv.stop_sell),
    closed = COALESCE($8::bool, inv.closed),
    min_nights_override = COALESCE($9::int, inv.min_nights_override),
    max_nights = COALESCE($10::int, inv.max_nights),
    available = GREATEST(0, COALESCE($5::int, inv.allotment) - inv.sold + COALESCE($6::int, inv.overbooking_allowed)),
    updated_at = NOW()
RETURNING `+selectColumns,
		in.PropertyID, in.RoomTypeID, in.Start, in.End,
		in.Allotment, in.OverbookingAllowed, in.StopSell, in.Closed, in.MinNights, in.MaxNights)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.PropertyID, &rec.RoomTypeID, &rec.Date, &rec.Allotment, &rec.Sold, &rec.OverbookingAllowed,
		&rec.Available, &rec.StopSell, &rec.Closed, &rec.MinNightsOverride, &rec.MaxNights, &rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	rec.Date = rec.Date.UTC()
	return rec, nil
}
