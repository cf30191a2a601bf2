package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// WindowParams selects one slice of the trail.
type WindowParams struct {
	Filters TimelineFilters
	Offset  int
	// Limit <= 0 reads every matching row.
	Limit int
}

// PgRepository reads audit_logs.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Window returns matching rows newest first.
func (r *PgRepository) Window(ctx context.Context, params WindowParams) ([]TimelineRow, error) {
	where, args := timelineWhere(params.Filters)
	sql := `SELECT id, occurred_at, organization_id, actor_id, action, entity, entity_id,
COALESCE(description, ''), COALESCE(changes, '{}'::jsonb), COALESCE(ip_address, ''), COALESCE(user_agent, '')
FROM audit_logs WHERE ` + where + ` ORDER BY occurred_at DESC, id DESC`
	if params.Limit > 0 {
		args = append(args, params.Limit, params.Offset)
		sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TimelineRow
	for rows.Next() {
		var row TimelineRow
		var changes []byte
		if err := rows.Scan(&row.ID, &row.At, &row.OrganizationID, &row.ActorID, &row.Action, &row.Entity, &row.EntityID,
			&row.Description, &changes, &row.IPAddress, &row.UserAgent); err != nil {
			return nil, err
		}
		row.Changes = changes
		out = append(out, row)
	}
	return out, rows.Err()
}

func timelineWhere(f TimelineFilters) (string, []any) {
	clauses := []string{"TRUE"}
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.OrganizationID > 0 {
		add("organization_id = $%d", f.OrganizationID)
	}
	if !f.From.IsZero() {
		add("occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("occurred_at < $%d", f.To)
	}
	if f.ActorID > 0 {
		add("actor_id = $%d", f.ActorID)
	}
	if f.Entity != "" {
		add("entity = $%d", f.Entity)
	}
	if f.EntityID != "" {
		add("entity_id = $%d", f.EntityID)
	}
	if f.Action != "" {
		add("action = $%d", strings.ToUpper(f.Action))
	}
	return strings.Join(clauses, " AND "), args
}
