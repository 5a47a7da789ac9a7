package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/nkiryanov/crmauth/internal/apperrors"
	"github.com/nkiryanov/crmauth/internal/handlers/middleware"
	"github.com/nkiryanov/crmauth/internal/handlers/render"
	"github.com/nkiryanov/crmauth/internal/logger"
	"github.com/nkiryanov/crmauth/internal/models"
)

type tokenResponse struct {
	AccessToken        string          `json:"accessToken"`
	RefreshToken       string          `json:"refreshToken"`
	TokenExpiry        time.Time       `json:"tokenExpiry"`
	RefreshTokenExpiry time.Time       `json:"refreshTokenExpiry"`
	Principal          models.UserInfo `json:"principal"`
}

type principalResponse struct {
	Principal models.UserInfo `json:"principal"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func newTokenResponse(res models.AuthResult) tokenResponse {
	return tokenResponse{
		AccessToken:        res.Pair.Access.Value,
		RefreshToken:       res.Pair.Refresh.Value,
		TokenExpiry:        res.Pair.Access.ExpiresAt,
		RefreshTokenExpiry: res.Pair.Refresh.ExpiresAt,
		Principal:          res.User,
	}
}

func handleLogin(s authService, l logger.Logger) http.Handler {
	type request struct {
		LoginID  string `json:"loginId" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		res, err := s.Authenticate(r.Context(), middleware.ClientIP(r), data.LoginID, data.Password)
		switch {
		case err == nil:
			render.JSON(w, newTokenResponse(res))
		// Lockout looks exactly like bad credentials
		case errors.Is(err, apperrors.ErrInvalidCredentials), errors.Is(err, apperrors.ErrTooManyAttempts):
			render.ServiceError(w, "Invalid credentials", http.StatusUnauthorized)
		default:
			l.Error("Login failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleRefresh(s authService, l logger.Logger) http.Handler {
	type request struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		res, err := s.Refresh(r.Context(), data.RefreshToken)
		switch {
		case err == nil:
			render.JSON(w, newTokenResponse(res))
		case errors.Is(err, apperrors.ErrInvalidToken):
			render.ServiceError(w, "Invalid refresh token", http.StatusUnauthorized)
		default:
			l.Error("Token refresh failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

// Logout accepts any bearer token. Invalid one is already useless, so it is still 200
func handleLogout(s authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := middleware.BearerToken(r)
		if token == "" {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if err := s.Logout(r.Context(), token); err != nil {
			l.Error("Logout failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, messageResponse{Message: "Logged out"})
	})
}

func handleUserInfo(s authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := middleware.BearerToken(r)
		if token == "" {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		info, err := s.GetUserInfo(r.Context(), token)
		switch {
		case err == nil:
			render.JSON(w, principalResponse{Principal: info})
		case errors.Is(err, apperrors.ErrInvalidToken):
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		default:
			l.Error("User info failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
