package user

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/crmauth/internal/apperrors"
	"github.com/nkiryanov/crmauth/internal/models"
	"github.com/nkiryanov/crmauth/internal/repository"
	"github.com/nkiryanov/crmauth/internal/service/auth"
)

// New user data as submitted by an administrator
type Registration struct {
	Username    string
	Email       string
	Password    string
	FullName    string
	PhoneNumber string

	// Defaults to USER role if empty
	Roles []string
}

type UserService struct {
	hasher  auth.PasswordHasher
	storage repository.Storage
}

func NewService(hasher auth.PasswordHasher, storage repository.Storage) *UserService {
	if hasher == nil {
		hasher = auth.BcryptHasher{}
	}

	return &UserService{
		hasher:  hasher,
		storage: storage,
	}
}

// Register creates active user on behalf of actor
// The user and its USER_CREATED audit event are saved together or not at all
func (s *UserService) Register(ctx context.Context, actorID uuid.UUID, reg Registration) (models.User, error) {
	var user models.User

	if reg.Password == "" {
		return user, errors.New("can't use empty password")
	}

	roles, err := normalizeRoles(reg.Roles)
	if err != nil {
		return user, err
	}

	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	err = s.storage.InTx(ctx, func(storage repository.Storage) error {
		var err error

		user, err = storage.User().CreateUser(ctx, models.User{
			Username:       reg.Username,
			Email:          reg.Email,
			FullName:       reg.FullName,
			PhoneNumber:    reg.PhoneNumber,
			HashedPassword: hash,
			Roles:          roles,
			Active:         true,
		})
		if err != nil {
			return fmt.Errorf("can't create user. Err: %w", err)
		}

		_, err = storage.Audit().CreateEvent(ctx, models.AuditEvent{
			UserID:     &actorID,
			Activity:   models.ActivityUserCreated,
			EntityType: models.EntityUser,
			EntityID:   &user.ID,
		})
		if err != nil {
			return fmt.Errorf("can't save audit event. Err: %w", err)
		}

		return nil
	})

	return user, err
}

// Upper cased, deduplicated and checked against the known set
func normalizeRoles(roles []string) ([]string, error) {
	if len(roles) == 0 {
		return []string{models.RoleUser}, nil
	}

	normalized := make([]string, 0, len(roles))
	for _, role := range roles {
		role = strings.ToUpper(strings.TrimSpace(role))
		if !slices.Contains(models.KnownRoles, role) {
			return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownRole, role)
		}
		if !slices.Contains(normalized, role) {
			normalized = append(normalized, role)
		}
	}
	return normalized, nil
}
