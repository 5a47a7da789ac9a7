package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/nkiryanov/crmauth/internal/apperrors"
	"github.com/nkiryanov/crmauth/internal/handlers/render"
	"github.com/nkiryanov/crmauth/internal/handlers/userctx"
	"github.com/nkiryanov/crmauth/internal/models"
	"github.com/nkiryanov/crmauth/internal/service/auth"
)

const bearerScheme = "Bearer"

type accessVerifier interface {
	VerifyAccess(ctx context.Context, accessToken string) (models.TokenClaims, error)
}

type errorLogger interface {
	Error(msg string, args ...any)
}

// Token from 'Authorization: Bearer <token>' header, empty if there is none
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, bearerScheme) {
		return ""
	}
	return strings.TrimSpace(token)
}

// AuthMiddleware puts verified access token claims to request context
func AuthMiddleware(v accessVerifier, l errorLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyAccess(r.Context(), token)
			switch {
			case errors.Is(err, apperrors.ErrInvalidToken):
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			case err != nil:
				l.Error("Access token verification failed", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			ctx := userctx.New(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole has to be used behind AuthMiddleware
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := userctx.FromContext(r.Context())
			if !ok {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if err := auth.RequireRole(claims, roles...); err != nil {
				render.ServiceError(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
