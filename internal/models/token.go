package models

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"time"

	"github.com/google/uuid"
)

type TokenKind string

const (
	TokenKindAccess        TokenKind = "access"
	TokenKindRefresh       TokenKind = "refresh"
	TokenKindPasswordReset TokenKind = "password_reset"
)

// Verified token payload. Never mutated after it was minted
type TokenClaims struct {
	ID        string
	Subject   uuid.UUID
	Roles     []string
	Kind      TokenKind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (c TokenClaims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued by TokenManager
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// Result of successful login or refresh
type AuthResult struct {
	Pair TokenPair
	User UserInfo
}

// Stable key for storing a token without keeping the token itself
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
