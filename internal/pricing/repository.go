package pricing

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/innkeep/innkeep/internal/platform/db"
)

// Repository persists price records in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindRange returns live prices with start <= date < end, ordered by date.
func (r *Repository) FindRange(ctx context.Context, propertyID, roomTypeID, ratePlanID int64, start, end time.Time) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, property_id, room_type_id, rate_plan_id, date, amount, currency, source, is_available, deleted_at, updated_at
FROM prices
WHERE property_id = $1 AND room_type_id = $2 AND rate_plan_id = $3
  AND date >= $4 AND date < $5 AND deleted_at IS NULL
ORDER BY date ASC`, propertyID, roomTypeID, ratePlanID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		var rec Record
		var cur, src string
		if err := rows.Scan(&rec.ID, &rec.PropertyID, &rec.RoomTypeID, &rec.RatePlanID, &rec.Date, &rec.Amount, &cur, &src, &rec.IsAvailable, &rec.DeletedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Date = rec.Date.UTC()
		rec.Currency = Currency(cur)
		rec.Source = Source(src)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UpsertDates overwrites one price per date and revives soft-deleted rows.
func (r *Repository) UpsertDates(ctx context.Context, in BulkUpsertInput, dates []time.Time) (int, error) {
	var affected int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `INSERT INTO prices (property_id, room_type_id, rate_plan_id, date, amount, currency, source, is_available, deleted_at, updated_at)
SELECT $1, $2, $3, d, $5, $6, $7, $8, NULL, NOW()
FROM unnest($4::date[]) AS d
ON CONFLICT (property_id, room_type_id, rate_plan_id, date) DO UPDATE SET
    amount = EXCLUDED.amount,
    currency = EXCLUDED.currency,
    source = EXCLUDED.source,
    is_available = EXCLUDED.is_available,
    deleted_at = NULL,
    updated_at = NOW()`,
			in.PropertyID, in.RoomTypeID, in.RatePlanID, dates, in.Amount, string(in.Currency), string(in.Source), in.IsAvailable)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	return int(affected), err
}

// SoftDelete marks live prices in [start, end] as deleted.
func (r *Repository) SoftDelete(ctx context.Context, propertyID, roomTypeID, ratePlanID int64, start, end time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE prices SET deleted_at = NOW(), updated_at = NOW()
WHERE property_id = $1 AND room_type_id = $2 AND rate_plan_id = $3
  AND date BETWEEN $4 AND $5 AND deleted_at IS NULL`, propertyID, roomTypeID, ratePlanID, start, end)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
