package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/crmauth/internal/handlers/middleware"
	"github.com/nkiryanov/crmauth/internal/logger"
	"github.com/nkiryanov/crmauth/internal/models"
	"github.com/nkiryanov/crmauth/internal/service/user"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	userService userService,
	auditService auditService,
	trusted middleware.TrustedProxies,
	logger logger.Logger,
) http.Handler {
	withAuth := middleware.AuthMiddleware(authService, logger)
	adminOnly := func(h http.Handler) http.Handler {
		return chain(h, withAuth, middleware.RequireRole(models.RoleAdmin))
	}

	apiauth := http.NewServeMux()

	apiauth.Handle("POST /login", handleLogin(authService, logger))
	apiauth.Handle("POST /refresh-token", handleRefresh(authService, logger))
	apiauth.Handle("POST /logout", handleLogout(authService, logger))
	apiauth.Handle("GET /user-info", handleUserInfo(authService, logger))

	apiauth.Handle("POST /register", adminOnly(handleRegister(userService, logger)))
	apiauth.Handle("GET /activity", withAuth(handleActivity(auditService, logger)))

	apiauth.Handle("POST /password/change", withAuth(handleChangePassword(authService, logger)))
	apiauth.Handle("POST /password/reset-request", handleResetRequest(authService, logger))
	apiauth.Handle("POST /password/reset", handleResetPassword(authService, logger))

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", apiauth))

	handler := chain(root,
		middleware.RealIP(trusted),
		middleware.LoggerMiddleware(logger),
		middleware.Recover(logger),
	)

	return handler
}

type authService interface {
	// Login from source (client ip)
	// Has to return apperrors.ErrInvalidCredentials or apperrors.ErrTooManyAttempts on rejected login
	Authenticate(ctx context.Context, source string, loginID string, password string) (models.AuthResult, error)

	// Rotate refresh token. Rejected token has to be reported as apperrors.ErrInvalidToken
	Refresh(ctx context.Context, refreshToken string) (models.AuthResult, error)

	// Revoke access or refresh token
	Logout(ctx context.Context, token string) error

	VerifyAccess(ctx context.Context, accessToken string) (models.TokenClaims, error)
	GetUserInfo(ctx context.Context, accessToken string) (models.UserInfo, error)

	// Has to return apperrors.ErrInvalidCredentials if current password doesn't match
	ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword string, newPassword string) error

	RequestPasswordReset(ctx context.Context, loginIDOrEmail string) error
	ResetPassword(ctx context.Context, resetToken string, newPassword string) (bool, error)
}

type userService interface {
	// Has to return apperrors.ErrUserAlreadyExists if username or email is taken
	Register(ctx context.Context, actorID uuid.UUID, reg user.Registration) (models.User, error)
}

type auditService interface {
	ListUserActivity(ctx context.Context, userID uuid.UUID, limit int) ([]models.AuditEvent, error)
}
