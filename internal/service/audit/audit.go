package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/crmauth/internal/logger"
	"github.com/nkiryanov/crmauth/internal/models"
	"github.com/nkiryanov/crmauth/internal/repository"
)

// Audit trail writer
// Failed writes are logged and never break the operation being audited
type Service struct {
	repo   repository.AuditRepo
	logger logger.Logger
}

func NewService(repo repository.AuditRepo, l logger.Logger) *Service {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Service{
		repo:   repo,
		logger: l.WithGroup("audit"),
	}
}

func (s *Service) RecordUserActivity(ctx context.Context, userID uuid.UUID, activity string, entityType string, entityID uuid.UUID) {
	s.record(ctx, models.AuditEvent{
		UserID:     &userID,
		Activity:   activity,
		EntityType: entityType,
		EntityID:   &entityID,
	})
}

func (s *Service) RecordSystemActivity(ctx context.Context, activity string, entityType string, details string) {
	s.record(ctx, models.AuditEvent{
		Activity:       activity,
		EntityType:     entityType,
		SystemActivity: true,
		Details:        details,
	})
}

func (s *Service) ListUserActivity(ctx context.Context, userID uuid.UUID, limit int) ([]models.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	events, err := s.repo.ListUserEvents(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("error while listing audit events. Err: %w", err)
	}
	return events, nil
}

func (s *Service) record(ctx context.Context, event models.AuditEvent) {
	// The event already happened, client going away must not drop it
	ctx = context.WithoutCancel(ctx)

	if _, err := s.repo.CreateEvent(ctx, event); err != nil {
		s.logger.Error("Audit event not saved", "activity", event.Activity, "entity_type", event.EntityType, "error", err)
		return
	}
	s.logger.Debug("Audit event saved", "activity", event.Activity, "entity_type", event.EntityType)
}
