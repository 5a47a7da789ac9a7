package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/crmauth/internal/models"
)

type AuditRepo struct {
	DB DBTX
}

const createAuditEvent = `-- name: CreateAuditEvent
INSERT INTO audit_logs (id, user_id, activity, entity_type, entity_id, system_activity, details)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, created_at, user_id, activity, entity_type, entity_id, system_activity, details
`

func (r *AuditRepo) CreateEvent(ctx context.Context, event models.AuditEvent) (models.AuditEvent, error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createAuditEvent,
		event.ID, event.UserID, event.Activity, event.EntityType, event.EntityID, event.SystemActivity, event.Details,
	)
	created, err := pgx.CollectOneRow(rows, rowToAuditEvent)
	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const listUserEvents = `-- name: ListUserEvents
SELECT id, created_at, user_id, activity, entity_type, entity_id, system_activity, details
FROM audit_logs
WHERE user_id = $1
ORDER BY created_at DESC, id
LIMIT $2
`

// Newest first
func (r *AuditRepo) ListUserEvents(ctx context.Context, userID uuid.UUID, limit int) ([]models.AuditEvent, error) {
	rows, _ := r.DB.Query(ctx, listUserEvents, userID, limit)
	events, err := pgx.CollectRows(rows, rowToAuditEvent)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return events, nil
}

func rowToAuditEvent(row pgx.CollectableRow) (models.AuditEvent, error) {
	var e models.AuditEvent
	err := row.Scan(&e.ID, &e.CreatedAt, &e.UserID, &e.Activity, &e.EntityType, &e.EntityID, &e.SystemActivity, &e.Details)
	return e, err
}
