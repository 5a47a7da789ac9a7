package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/crmauth/internal/apperrors"
	"github.com/nkiryanov/crmauth/internal/logger"
	"github.com/nkiryanov/crmauth/internal/models"
	"github.com/nkiryanov/crmauth/internal/repository"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

// Mints and verifies signed tokens. Knows nothing about revocation
type TokenManager interface {
	Issue(subject uuid.UUID, roles []string, kind models.TokenKind) (models.IssuedToken, error)
	IssuePair(user models.User) (models.TokenPair, error)
	Verify(token string, kinds ...models.TokenKind) (models.TokenClaims, error)
}

// Failed login counters keyed by request source
type AttemptTracker interface {
	IsBlocked(ctx context.Context, source string) (bool, error)
	RecordFailure(ctx context.Context, source string) error
	RecordSuccess(ctx context.Context, source string) error
}

// Registry of tokens rejected even though they verify
type Blacklist interface {
	// Must return true only for the call that inserted the entry
	Revoke(ctx context.Context, token string, expiresAt time.Time) (bool, error)
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// Audit trail. Implementations deal with their own write failures
type AuditRecorder interface {
	RecordUserActivity(ctx context.Context, userID uuid.UUID, activity string, entityType string, entityID uuid.UUID)
	RecordSystemActivity(ctx context.Context, activity string, entityType string, details string)
}

// Delivers reset token to the user, e.g. by e-mail
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, user models.User, token models.IssuedToken) error
}

type Config struct {
	// Hasher to use during login and password changes
	Hasher PasswordHasher

	// If the attempt tracker is unavailable let logins through instead of failing them
	LockoutFailOpen bool

	// Clock for last login and reset ticket checks
	Now func() time.Time

	Logger logger.Logger
}

// Collaborators the service can't work without
type Deps struct {
	Tokens    TokenManager
	Users     repository.UserRepo
	Attempts  AttemptTracker
	Blacklist Blacklist
	Audit     AuditRecorder
	Notifier  ResetNotifier
}

// Auth service
type AuthService struct {
	tokens    TokenManager
	users     repository.UserRepo
	attempts  AttemptTracker
	blacklist Blacklist
	audit     AuditRecorder
	notifier  ResetNotifier

	// hasher to hash or compare user passwords
	hasher PasswordHasher

	// Compared against when there is no real hash, so every login path costs one hash comparison
	dummyHash string

	failOpen bool
	now      func() time.Time
	logger   logger.Logger
}

func NewService(cfg Config, deps Deps) (*AuthService, error) {
	// Set default bcrypt hasher if not user provided by user
	if cfg.Hasher == nil {
		cfg.Hasher = BcryptHasher{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}

	if deps.Tokens == nil || deps.Users == nil || deps.Attempts == nil ||
		deps.Blacklist == nil || deps.Audit == nil || deps.Notifier == nil {
		return nil, errors.New("auth service dependencies must not be nil")
	}

	dummyHash, err := cfg.Hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("error while preparing dummy hash. Err: %w", err)
	}

	return &AuthService{
		tokens:    deps.Tokens,
		users:     deps.Users,
		attempts:  deps.Attempts,
		blacklist: deps.Blacklist,
		audit:     deps.Audit,
		notifier:  deps.Notifier,
		hasher:    cfg.Hasher,
		dummyHash: dummyHash,
		failOpen:  cfg.LockoutFailOpen,
		now:       cfg.Now,
		logger:    cfg.Logger,
	}, nil
}

// Authenticate checks credentials of the login attempt made from source
// Unknown user, disabled user and wrong password are indistinguishable for the caller
func (s *AuthService) Authenticate(ctx context.Context, source string, loginID string, password string) (models.AuthResult, error) {
	var result models.AuthResult

	blocked, err := s.attempts.IsBlocked(ctx, source)
	if err != nil {
		if !s.failOpen {
			s.audit.RecordSystemActivity(ctx, models.ActivityLoginError, models.EntityAuth, "attempt tracker unavailable")
			return result, fmt.Errorf("lockout check failed: %w", err)
		}
		s.logger.Warn("Attempt tracker unavailable, lockout skipped", "source", source, "error", err)
	}
	if blocked {
		_ = s.hasher.Compare(s.dummyHash, password)
		s.audit.RecordSystemActivity(ctx, models.ActivityLoginFailed, models.EntityAuth, "source locked out")
		return result, apperrors.ErrTooManyAttempts
	}

	user, err := s.users.GetUserByLogin(ctx, loginID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		_ = s.hasher.Compare(s.dummyHash, password)
		return result, s.loginFailed(ctx, source)
	case err != nil:
		s.audit.RecordSystemActivity(ctx, models.ActivityLoginError, models.EntityAuth, "credential store unavailable")
		return result, fmt.Errorf("error while loading user. Err: %w", err)
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil || !user.Active {
		return result, s.loginFailed(ctx, source)
	}

	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		s.audit.RecordSystemActivity(ctx, models.ActivityLoginError, models.EntityAuth, "token issue failed")
		return result, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	if err := s.attempts.RecordSuccess(ctx, source); err != nil {
		s.logger.Warn("Attempt counter not reset", "source", source, "error", err)
	}

	now := s.now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("Last login not updated", "user_id", user.ID, "error", err)
	} else {
		user.LastLoginAt = &now
	}

	s.audit.RecordUserActivity(ctx, user.ID, models.ActivityLogin, models.EntityUser, user.ID)

	return models.AuthResult{Pair: pair, User: user.Info()}, nil
}

func (s *AuthService) loginFailed(ctx context.Context, source string) error {
	if err := s.attempts.RecordFailure(ctx, source); err != nil {
		s.logger.Warn("Failed attempt not recorded", "source", source, "error", err)
	}
	s.audit.RecordSystemActivity(ctx, models.ActivityLoginFailed, models.EntityAuth, "")
	return apperrors.ErrInvalidCredentials
}

// Refresh exchanges refresh token for a new pair. The presented token is revoked, so it works once
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (models.AuthResult, error) {
	var result models.AuthResult

	claims, err := s.tokens.Verify(refreshToken, models.TokenKindRefresh)
	if err != nil {
		return result, fmt.Errorf("%w: %w", apperrors.ErrTokenRefresh, err)
	}

	revoked, err := s.blacklist.IsRevoked(ctx, refreshToken)
	if err != nil {
		return result, fmt.Errorf("error while checking refresh token. Err: %w", err)
	}
	if revoked {
		return result, fmt.Errorf("%w: token already used or revoked", apperrors.ErrTokenRefresh)
	}

	// Only the request that inserted the entry may proceed, concurrent ones lost the race
	inserted, err := s.blacklist.Revoke(ctx, refreshToken, claims.ExpiresAt)
	if err != nil {
		return result, fmt.Errorf("error while rotating refresh token. Err: %w", err)
	}
	if !inserted {
		return result, fmt.Errorf("%w: token already used", apperrors.ErrTokenRefresh)
	}

	user, err := s.users.GetUserByID(ctx, claims.Subject)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return result, fmt.Errorf("%w: %w", apperrors.ErrTokenRefresh, err)
	case err != nil:
		return result, fmt.Errorf("error while loading user. Err: %w", err)
	case !user.Active:
		return result, fmt.Errorf("%w: user disabled", apperrors.ErrTokenRefresh)
	}

	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		return result, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	s.audit.RecordUserActivity(ctx, user.ID, models.ActivityTokenRefresh, models.EntityAuth, user.ID)

	return models.AuthResult{Pair: pair, User: user.Info()}, nil
}

// Logout revokes access or refresh token
// Tokens that don't verify are already dead, so they are not an error
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Verify(token, models.TokenKindAccess, models.TokenKindRefresh)
	if err != nil {
		s.logger.Debug("Logout with invalid token ignored", "error", err)
		return nil
	}

	if _, err := s.blacklist.Revoke(ctx, token, claims.ExpiresAt); err != nil {
		return fmt.Errorf("error while revoking token. Err: %w", err)
	}

	s.audit.RecordUserActivity(ctx, claims.Subject, models.ActivityLogout, models.EntityUser, claims.Subject)

	return nil
}

// VerifyAccess returns claims of valid, not revoked access token
func (s *AuthService) VerifyAccess(ctx context.Context, accessToken string) (models.TokenClaims, error) {
	claims, err := s.tokens.Verify(accessToken, models.TokenKindAccess)
	if err != nil {
		return claims, err
	}

	revoked, err := s.blacklist.IsRevoked(ctx, accessToken)
	if err != nil {
		return models.TokenClaims{}, fmt.Errorf("error while checking access token. Err: %w", err)
	}
	if revoked {
		return models.TokenClaims{}, fmt.Errorf("%w: token revoked", apperrors.ErrInvalidToken)
	}

	return claims, nil
}

func (s *AuthService) GetUserInfo(ctx context.Context, accessToken string) (models.UserInfo, error) {
	claims, err := s.VerifyAccess(ctx, accessToken)
	if err != nil {
		return models.UserInfo{}, err
	}

	user, err := s.users.GetUserByID(ctx, claims.Subject)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return models.UserInfo{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidToken, err)
	case err != nil:
		return models.UserInfo{}, fmt.Errorf("error while loading user. Err: %w", err)
	case !user.Active:
		return models.UserInfo{}, fmt.Errorf("%w: user disabled", apperrors.ErrInvalidToken)
	}

	return user.Info(), nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword string, newPassword string) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("error while loading user. Err: %w", err)
	}

	if err := s.hasher.Compare(user.HashedPassword, currentPassword); err != nil {
		return apperrors.ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("can't use this as password, error=%w", err)
	}

	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("error while saving password. Err: %w", err)
	}

	s.audit.RecordUserActivity(ctx, user.ID, models.ActivityPasswordChange, models.EntityUser, user.ID)

	return nil
}

// RequestPasswordReset stores reset ticket and sends it to the user
// Unknown login is not an error, callers must not learn which logins exist
func (s *AuthService) RequestPasswordReset(ctx context.Context, loginIDOrEmail string) error {
	user, err := s.users.GetUserByLogin(ctx, loginIDOrEmail)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		s.logger.Debug("Password reset for unknown login ignored")
		return nil
	case err != nil:
		return fmt.Errorf("error while loading user. Err: %w", err)
	case !user.Active:
		s.logger.Debug("Password reset for disabled user ignored", "user_id", user.ID)
		return nil
	}

	token, err := s.tokens.Issue(user.ID, nil, models.TokenKindPasswordReset)
	if err != nil {
		return fmt.Errorf("reset token could not generated. Err: %w", err)
	}

	// Only the fingerprint is stored, the token itself leaves with the notification
	ticket := models.ResetTicket{TokenHash: models.Fingerprint(token.Value), ExpiresAt: token.ExpiresAt}
	if err := s.users.SetResetTicket(ctx, user.ID, ticket); err != nil {
		return fmt.Errorf("error while saving reset ticket. Err: %w", err)
	}

	if err := s.notifier.SendPasswordReset(ctx, user, token); err != nil {
		return fmt.Errorf("error while sending reset token. Err: %w", err)
	}

	s.audit.RecordUserActivity(ctx, user.ID, models.ActivityPasswordResetRequest, models.EntityUser, user.ID)

	return nil
}

// ResetPassword redeems reset token. False means the token is not usable: bad, expired, used or superseded
func (s *AuthService) ResetPassword(ctx context.Context, resetToken string, newPassword string) (bool, error) {
	claims, err := s.tokens.Verify(resetToken, models.TokenKindPasswordReset)
	if err != nil {
		s.logger.Debug("Password reset with invalid token", "error", err)
		return false, nil
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return false, fmt.Errorf("can't use this as password, error=%w", err)
	}

	_, err = s.users.RedeemResetTicket(ctx, claims.Subject, models.Fingerprint(resetToken), hash, s.now())
	switch {
	case errors.Is(err, apperrors.ErrResetTicketInvalid):
		s.logger.Debug("Password reset ticket rejected", "user_id", claims.Subject)
		return false, nil
	case err != nil:
		return false, fmt.Errorf("error while redeeming reset ticket. Err: %w", err)
	}

	s.audit.RecordUserActivity(ctx, claims.Subject, models.ActivityPasswordReset, models.EntityUser, claims.Subject)

	return true, nil
}
