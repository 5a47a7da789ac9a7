package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/crmauth/internal/apperrors"
	"github.com/nkiryanov/crmauth/internal/models"
)

type UserRepo struct {
	DB DBTX
}

const userColumns = `id, created_at, updated_at, username, email, full_name, phone_number,
	password_hash, roles, active, last_login_at, reset_token_hash, reset_token_expires_at`

const createUser = `-- name: CreateUser
INSERT INTO users (id, username, email, full_name, phone_number, password_hash, roles, active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + userColumns

func (r *UserRepo) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	roles := user.Roles
	if roles == nil {
		roles = []string{}
	}

	rows, _ := r.DB.Query(ctx, createUser,
		user.ID, user.Username, user.Email, user.FullName, user.PhoneNumber, user.HashedPassword, roles, user.Active,
	)
	created, err := pgx.CollectOneRow(rows, rowToUser)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return created, apperrors.ErrUserAlreadyExists
		}

		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getUserByID = `-- name: GetUserByID
SELECT ` + userColumns + `
FROM users
WHERE id = $1
`

func (r *UserRepo) GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByID, id)
	return collectUser(rows)
}

// Username match wins over email match if both exist for different users
const getUserByLogin = `-- name: GetUserByLogin
SELECT ` + userColumns + `
FROM users
WHERE username = $1 OR LOWER(email) = LOWER($1)
ORDER BY (username = $1) DESC
LIMIT 1
`

func (r *UserRepo) GetUserByLogin(ctx context.Context, login string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByLogin, login)
	return collectUser(rows)
}

const updatePassword = `-- name: UpdatePassword
UPDATE users
SET password_hash = $2, updated_at = NOW()
WHERE id = $1
`

func (r *UserRepo) UpdatePassword(ctx context.Context, userID uuid.UUID, hashedPassword string) error {
	tag, err := r.DB.Exec(ctx, updatePassword, userID, hashedPassword)
	return affectedOne(tag, err)
}

const updateLastLogin = `-- name: UpdateLastLogin
UPDATE users
SET last_login_at = $2
WHERE id = $1
`

func (r *UserRepo) UpdateLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error {
	tag, err := r.DB.Exec(ctx, updateLastLogin, userID, at)
	return affectedOne(tag, err)
}

const setResetTicket = `-- name: SetResetTicket
UPDATE users
SET reset_token_hash = $2, reset_token_expires_at = $3, updated_at = NOW()
WHERE id = $1
`

func (r *UserRepo) SetResetTicket(ctx context.Context, userID uuid.UUID, ticket models.ResetTicket) error {
	tag, err := r.DB.Exec(ctx, setResetTicket, userID, ticket.TokenHash, ticket.ExpiresAt)
	return affectedOne(tag, err)
}

// Single statement, so two concurrent redemptions of the same ticket can't both win
const redeemResetTicket = `-- name: RedeemResetTicket
UPDATE users
SET password_hash = $3,
	reset_token_hash = NULL,
	reset_token_expires_at = NULL,
	updated_at = NOW()
WHERE id = $1
	AND reset_token_hash = $2
	AND reset_token_expires_at > $4
RETURNING ` + userColumns

func (r *UserRepo) RedeemResetTicket(
	ctx context.Context,
	userID uuid.UUID,
	tokenHash string,
	hashedPassword string,
	now time.Time,
) (models.User, error) {
	rows, _ := r.DB.Query(ctx, redeemResetTicket, userID, tokenHash, hashedPassword, now)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrResetTicketInvalid
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

func collectUser(rows pgx.Rows) (models.User, error) {
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

func affectedOne(tag pgconn.CommandTag, err error) error {
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrUserNotFound
	default:
		return nil
	}
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var (
		u         models.User
		resetHash *string
	)
	err := row.Scan(
		&u.ID, &u.CreatedAt, &u.UpdatedAt, &u.Username, &u.Email, &u.FullName, &u.PhoneNumber,
		&u.HashedPassword, &u.Roles, &u.Active, &u.LastLoginAt, &resetHash, &u.ResetTokenExpiresAt,
	)
	if resetHash != nil {
		u.ResetTokenHash = *resetHash
	}
	return u, err
}
