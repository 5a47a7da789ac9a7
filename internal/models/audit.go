package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit activities emitted by the auth core
const (
	ActivityLogin                = "LOGIN"
	ActivityLoginFailed          = "LOGIN_FAILED"
	ActivityLoginError           = "LOGIN_ERROR"
	ActivityLogout               = "LOGOUT"
	ActivityTokenRefresh         = "TOKEN_REFRESH"
	ActivityPasswordChange       = "PASSWORD_CHANGE"
	ActivityPasswordResetRequest = "PASSWORD_RESET_REQUEST"
	ActivityPasswordReset        = "PASSWORD_RESET"
	ActivityUserCreated          = "USER_CREATED"
)

const (
	EntityUser = "USER"
	EntityAuth = "AUTH"
)

type AuditEvent struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	UserID         *uuid.UUID // nil for system activity
	Activity       string
	EntityType     string
	EntityID       *uuid.UUID
	SystemActivity bool
	Details        string
}
