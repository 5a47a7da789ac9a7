package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/crmauth/internal/apperrors"
	"github.com/nkiryanov/crmauth/internal/handlers/render"
	"github.com/nkiryanov/crmauth/internal/handlers/userctx"
	"github.com/nkiryanov/crmauth/internal/logger"
)

func handleChangePassword(s authService, l logger.Logger) http.Handler {
	type request struct {
		CurrentPassword string `json:"currentPassword" validate:"required"`
		NewPassword     string `json:"newPassword" validate:"required,min=8,max=128"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		err = s.ChangePassword(r.Context(), claims.Subject, data.CurrentPassword, data.NewPassword)
		switch {
		case err == nil:
			render.JSON(w, messageResponse{Message: "Password changed"})
		case errors.Is(err, apperrors.ErrInvalidCredentials):
			render.ServiceError(w, "Current password is incorrect", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		default:
			l.Error("Password change failed", "user_id", claims.Subject, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

// Always 200: response must not tell whether the account exists
func handleResetRequest(s authService, l logger.Logger) http.Handler {
	type request struct {
		Email string `json:"email" validate:"required,max=254"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		if err := s.RequestPasswordReset(r.Context(), data.Email); err != nil {
			l.Error("Password reset request failed", "error", err)
		}

		render.JSON(w, messageResponse{Message: "If the account exists, reset instructions have been sent"})
	})
}

func handleResetPassword(s authService, l logger.Logger) http.Handler {
	type request struct {
		ResetToken  string `json:"resetToken" validate:"required"`
		NewPassword string `json:"newPassword" validate:"required,min=8,max=128"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		ok, err := s.ResetPassword(r.Context(), data.ResetToken, data.NewPassword)
		switch {
		case err != nil:
			l.Error("Password reset failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		case !ok:
			render.ServiceError(w, "Invalid or expired reset token", http.StatusBadRequest)
		default:
			render.JSON(w, messageResponse{Message: "Password has been reset"})
		}
	})
}
