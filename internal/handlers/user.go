package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/crmauth/internal/apperrors"
	"github.com/nkiryanov/crmauth/internal/handlers/render"
	"github.com/nkiryanov/crmauth/internal/handlers/userctx"
	"github.com/nkiryanov/crmauth/internal/logger"
	"github.com/nkiryanov/crmauth/internal/service/user"
)

func handleRegister(s userService, l logger.Logger) http.Handler {
	type request struct {
		LoginID     string   `json:"loginId" validate:"required,min=2,max=50"`
		Email       string   `json:"email" validate:"required,email,max=120"`
		Password    string   `json:"password" validate:"required,min=8,max=128"`
		FullName    string   `json:"fullName" validate:"required,max=100"`
		PhoneNumber string   `json:"phoneNumber" validate:"omitempty,max=20"`
		Roles       []string `json:"roles" validate:"omitempty,dive,crmrole"`
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

		created, err := s.Register(r.Context(), claims.Subject, user.Registration{
			Username:    data.LoginID,
			Email:       data.Email,
			Password:    data.Password,
			FullName:    data.FullName,
			PhoneNumber: data.PhoneNumber,
			Roles:       data.Roles,
		})
		switch {
		case err == nil:
			render.JSONWithStatus(w, principalResponse{Principal: created.Info()}, http.StatusCreated)
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "User already exists", http.StatusConflict)
		case errors.Is(err, apperrors.ErrUnknownRole):
			render.ServiceError(w, "Unknown role", http.StatusBadRequest)
		default:
			l.Error("User registration failed", "actor_id", claims.Subject, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
