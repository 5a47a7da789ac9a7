package user

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/crmauth/internal/apperrors"
	"github.com/nkiryanov/crmauth/internal/models"
	"github.com/nkiryanov/crmauth/internal/repository"
	"github.com/nkiryanov/crmauth/internal/repository/postgres"
	"github.com/nkiryanov/crmauth/internal/service/auth"
	"github.com/nkiryanov/crmauth/internal/testutil"
)

func TestUser(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	hasher := auth.BcryptHasher{Cost: bcrypt.MinCost}
	adminID := uuid.New()

	// Helper function to create UserService within transaction
	inTx := func(t *testing.T, fn func(s *UserService, storage repository.Storage)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			userService := NewService(hasher, storage)
			fn(userService, storage)
		})
	}

	registration := func(username string, roles ...string) Registration {
		return Registration{
			Username: username,
			Email:    username + "@example.com",
			Password: "password123",
			FullName: "Test User",
			Roles:    roles,
		}
	}

	t.Run("Register", func(t *testing.T) {
		t.Run("create ok", func(t *testing.T) {
			inTx(t, func(s *UserService, storage repository.Storage) {
				user, err := s.Register(t.Context(), adminID, registration("test-user", "manager", "USER", "Manager"))

				require.NoError(t, err, "creating new user should be ok")
				require.NotEmpty(t, user.ID, "user ID should not be empty")
				require.Equal(t, "test-user", user.Username, "username should match")
				require.NotEqual(t, "password123", user.HashedPassword, "password should be hashed")
				require.NoError(t, hasher.Compare(user.HashedPassword, "password123"))
				require.Equal(t, []string{models.RoleManager, models.RoleUser}, user.Roles, "roles normalized")
				require.True(t, user.Active)

				events, err := storage.Audit().ListUserEvents(t.Context(), adminID, 10)
				require.NoError(t, err)
				require.Len(t, events, 1, "creation audited in same transaction")
				assert.Equal(t, models.ActivityUserCreated, events[0].Activity)
				require.NotNil(t, events[0].EntityID)
				assert.Equal(t, user.ID, *events[0].EntityID)
			})
		})

		t.Run("default role", func(t *testing.T) {
			inTx(t, func(s *UserService, _ repository.Storage) {
				user, err := s.Register(t.Context(), adminID, registration("plain"))

				require.NoError(t, err)
				assert.Equal(t, []string{models.RoleUser}, user.Roles)
			})
		})

		t.Run("unknown role fail", func(t *testing.T) {
			inTx(t, func(s *UserService, _ repository.Storage) {
				_, err := s.Register(t.Context(), adminID, registration("test-user", "ROOT"))

				require.ErrorIs(t, err, apperrors.ErrUnknownRole)
			})
		})

		t.Run("empty password fail", func(t *testing.T) {
			inTx(t, func(s *UserService, _ repository.Storage) {
				reg := registration("test-user")
				reg.Password = ""

				_, err := s.Register(t.Context(), adminID, reg)

				require.Error(t, err, "creating user with empty password should fail")
			})
		})

		t.Run("user exists fail and nothing audited", func(t *testing.T) {
			inTx(t, func(s *UserService, storage repository.Storage) {
				_, err := s.Register(t.Context(), adminID, registration("test-user"))
				require.NoError(t, err)

				_, err = s.Register(t.Context(), adminID, registration("test-user"))
				require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)

				events, err := storage.Audit().ListUserEvents(t.Context(), adminID, 10)
				require.NoError(t, err)
				assert.Len(t, events, 1, "failed registration rolled back")
			})
		})
	})
}
