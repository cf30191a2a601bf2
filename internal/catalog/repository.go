package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/innkeep/innkeep/internal/shared"
)

// ErrNotFound indicates a missing catalog row.
var ErrNotFound = errors.New("catalog: not found")

// Repository reads catalog rows from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetProperty loads one property.
func (r *Repository) GetProperty(ctx context.Context, id int64) (Property, error) {
	var p Property
	var status string
	err := r.pool.QueryRow(ctx, `SELECT id, organization_id, code, name, status FROM properties WHERE id = $1`, id).
		Scan(&p.ID, &p.OrganizationID, &p.Code, &p.Name, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Property{}, ErrNotFound
	}
	p.Status = shared.Lifecycle(status)
	return p, err
}

// GetRoomType loads one room type.
func (r *Repository) GetRoomType(ctx context.Context, id int64) (RoomType, error) {
	var rt RoomType
	var status string
	err := r.pool.QueryRow(ctx, `SELECT id, property_id, code, name, is_bookable, status FROM room_types WHERE id = $1`, id).
		Scan(&rt.ID, &rt.PropertyID, &rt.Code, &rt.Name, &rt.IsBookable, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return RoomType{}, ErrNotFound
	}
	rt.Status = shared.Lifecycle(status)
	return rt, err
}

// GetRatePlan loads one rate plan.
func (r *Repository) GetRatePlan(ctx context.Context, id int64) (RatePlan, error) {
	var rp RatePlan
	var status string
	err := r.pool.QueryRow(ctx, `SELECT id, property_id, room_type_id, code, name, status FROM rate_plans WHERE id = $1`, id).
		Scan(&rp.ID, &rp.PropertyID, &rp.RoomTypeID, &rp.Code, &rp.Name, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return RatePlan{}, ErrNotFound
	}
	rp.Status = shared.Lifecycle(status)
	return rp, err
}
