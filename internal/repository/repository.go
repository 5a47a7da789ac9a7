package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/crmauth/internal/models"
)

// User repository interface
type UserRepo interface {
	// Create user
	// If user with username or email exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, user models.User) (models.User, error)

	// Get user by it's id or login
	// Login matches the username or the email (case insensitive)
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByLogin(ctx context.Context, login string) (models.User, error)

	UpdatePassword(ctx context.Context, userID uuid.UUID, hashedPassword string) error
	UpdateLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error

	// Store reset ticket, overwriting any previous one
	SetResetTicket(ctx context.Context, userID uuid.UUID, ticket models.ResetTicket) error

	// Swap the password hash and clear the ticket in one step
	// Only succeeds if the ticket hash matches and it is not expired at 'now'
	// Otherwise must return apperrors.ErrResetTicketInvalid
	RedeemResetTicket(ctx context.Context, userID uuid.UUID, tokenHash string, hashedPassword string, now time.Time) (models.User, error)
}

// Audit log repository interface
type AuditRepo interface {
	CreateEvent(ctx context.Context, event models.AuditEvent) (models.AuditEvent, error)
	ListUserEvents(ctx context.Context, userID uuid.UUID, limit int) ([]models.AuditEvent, error)
}

type Storage interface {
	User() UserRepo
	Audit() AuditRepo

	// Run fn in transaction. Storage passed to fn is bound to the transaction
	InTx(ctx context.Context, fn func(Storage) error) error
}
