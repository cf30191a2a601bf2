package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Audit actions written by the booking core.
const (
	AuditActionCreate    = "CREATE"
	AuditActionUpdate    = "UPDATE"
	AuditActionCancel    = "CANCEL"
	AuditActionCheckIn   = "CHECK_IN"
	AuditActionCheckOut  = "CHECK_OUT"
	AuditActionNoShow    = "NO_SHOW"
	AuditActionBulkWrite = "BULK_UPDATE"
)

// AuditChanges holds before/after snapshots of the audited entity.
type AuditChanges struct {
	Before any `json:"before"`
	After  any `json:"after"`
}

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	OrganizationID int64
	ActorID        int64
	Action         string
	Entity         string
	EntityID       string
	Changes        AuditChanges
	Description    string
	IPAddress      string
	UserAgent      string
	At             time.Time
}

// AuditRecorder appends audit records.
type AuditRecorder interface {
	Record(ctx context.Context, log AuditLog) error
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	changes, err := json.Marshal(log.Changes)
	if err != nil {
		return err
	}
	var at any
	if !log.At.IsZero() {
		at = log.At
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (organization_id, actor_id, action, entity, entity_id, changes, description, ip_address, user_agent, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, NOW()))`,
		nullInt(log.OrganizationID), nullInt(log.ActorID), log.Action, log.Entity, log.EntityID, changes, log.Description, log.IPAddress, log.UserAgent, at)
	return err
}

// RecordAudit appends a record without ever failing the caller. Request
// metadata from ctx fills the client fields when they are empty.
func RecordAudit(ctx context.Context, logger *slog.Logger, recorder AuditRecorder, log AuditLog) {
	if recorder == nil {
		return
	}
	meta := RequestMetaFromContext(ctx)
	if log.IPAddress == "" {
		log.IPAddress = meta.IPAddress
	}
	if log.UserAgent == "" {
		log.UserAgent = meta.UserAgent
	}
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	if err := recorder.Record(ctx, log); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("audit record failed",
			slog.String("action", log.Action),
			slog.String("entity", log.Entity),
			slog.String("entity_id", log.EntityID),
			slog.Any("error", err))
	}
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
