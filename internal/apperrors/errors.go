package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrUnknownRole       = errors.New("unknown role")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTooManyAttempts    = errors.New("too many failed login attempts")
	ErrForbidden          = errors.New("forbidden")

	ErrInvalidToken = errors.New("invalid token")

	// Refresh path specialization: errors.Is(ErrTokenRefresh, ErrInvalidToken) is true
	ErrTokenRefresh = fmt.Errorf("refresh token rejected: %w", ErrInvalidToken)

	// Reset ticket is absent, expired, already redeemed or belongs to a newer request
	ErrResetTicketInvalid = errors.New("password reset ticket is invalid")

	ErrAttemptTrackerUnavailable = errors.New("login attempt tracker unavailable")
	ErrBlacklistUnavailable      = errors.New("token blacklist unavailable")
)
