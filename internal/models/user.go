package models

import (
	"time"

	"github.com/google/uuid"
)

// Roles known to the CRM
const (
	RoleAdmin    = "ADMIN"
	RoleManager  = "MANAGER"
	RoleSalesRep = "SALES_REP"
	RoleUser     = "USER"
)

var KnownRoles = []string{RoleAdmin, RoleManager, RoleSalesRep, RoleUser}

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Username       string
	Email          string
	FullName       string
	PhoneNumber    string
	HashedPassword string
	Roles          []string
	Active         bool
	LastLoginAt    *time.Time // nil if user never logged in

	// Password reset ticket. Empty hash means no pending reset
	ResetTokenHash      string
	ResetTokenExpiresAt *time.Time
}

// Public projection of the user: safe to return to clients
type UserInfo struct {
	ID          uuid.UUID  `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FullName    string     `json:"fullName"`
	PhoneNumber string     `json:"phoneNumber,omitempty"`
	Roles       []string   `json:"roles"`
	Active      bool       `json:"active"`
	LastLoginAt *time.Time `json:"lastLogin,omitempty"`
}

func (u User) Info() UserInfo {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}

	return UserInfo{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FullName:    u.FullName,
		PhoneNumber: u.PhoneNumber,
		Roles:       roles,
		Active:      u.Active,
		LastLoginAt: u.LastLoginAt,
	}
}

// Password reset ticket stored against the user
type ResetTicket struct {
	TokenHash string
	ExpiresAt time.Time
}
