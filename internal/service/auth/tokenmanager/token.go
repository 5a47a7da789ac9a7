package tokenmanager

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/nkiryanov/crmauth/internal/apperrors"
	"github.com/nkiryanov/crmauth/internal/models"
)

const (
	DefaultAccessTTL     = 15 * time.Minute
	DefaultRefreshTTL    = 7 * 24 * time.Hour
	DefaultResetTTL      = 24 * time.Hour
	defaultSigningMethod = "HS256"
	DefaultClockSkew     = 30 * time.Second

	MaxClockSkew = 2 * time.Minute

	// Config.ClockSkew value for exact exp and iat checks
	NoClockSkew time.Duration = -1
)

type tokenClaims struct {
	jwt.RegisteredClaims
	Kind  models.TokenKind `json:"typ"`
	Roles []string         `json:"roles,omitempty"`
}

// Token manager with sensible default
type Config struct {
	// Secret key every signing key is derived from
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm, one of HS256, HS384, HS512
	// If not set than default is used
	Alg string

	// Token lifetimes per kind
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration

	// Tolerance applied to exp and iat checks. Zero means default, NoClockSkew (any negative) disables tolerance
	ClockSkew time.Duration

	// Clock used both to mint and to verify tokens
	Now func() time.Time
}

type TokenManager struct {
	// Per kind signing keys: a token of one kind never verifies as another
	keys map[models.TokenKind][]byte

	// JWT MAC (Message Authentication Code) algorithm
	alg jwt.SigningMethod

	ttl  map[models.TokenKind]time.Duration
	skew time.Duration
	now  func() time.Time
}

func New(cfg Config) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg, ok := jwt.GetSigningMethod(cfg.Alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing method %q, expected HMAC one", cfg.Alg)
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, DefaultAccessTTL)
	setDefaultDuration(&cfg.RefreshTTL, DefaultRefreshTTL)
	setDefaultDuration(&cfg.ResetTTL, DefaultResetTTL)
	setDefaultDuration(&cfg.ClockSkew, DefaultClockSkew)

	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 || cfg.ResetTTL < 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	if cfg.ClockSkew < 0 {
		cfg.ClockSkew = 0
	}
	if cfg.ClockSkew > MaxClockSkew {
		return nil, fmt.Errorf("clock skew %s exceeds maximum %s", cfg.ClockSkew, MaxClockSkew)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	m := &TokenManager{
		keys: make(map[models.TokenKind][]byte, 3),
		alg:  alg,
		ttl: map[models.TokenKind]time.Duration{
			models.TokenKindAccess:        cfg.AccessTTL,
			models.TokenKindRefresh:       cfg.RefreshTTL,
			models.TokenKindPasswordReset: cfg.ResetTTL,
		},
		skew: cfg.ClockSkew,
		now:  cfg.Now,
	}

	for kind := range m.ttl {
		key, err := deriveKey(cfg.SecretKey, kind, alg.Hash.Size())
		if err != nil {
			return nil, err
		}
		m.keys[kind] = key
	}

	return m, nil
}

// HKDF-SHA256 with the kind as info
func deriveKey(secret string, kind models.TokenKind, size int) ([]byte, error) {
	key := make([]byte, size)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("crmauth/token/"+string(kind)))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("error while deriving %s signing key. Err: %w", kind, err)
	}
	return key, nil
}

// Lifetime used by Issue for the kind
func (m *TokenManager) TTL(kind models.TokenKind) time.Duration {
	return m.ttl[kind]
}

// Tolerance actually applied to time claims
func (m *TokenManager) ClockSkew() time.Duration {
	return m.skew
}

// Issue token with the default lifetime of its kind
func (m *TokenManager) Issue(subject uuid.UUID, roles []string, kind models.TokenKind) (models.IssuedToken, error) {
	return m.IssueWithTTL(subject, roles, kind, m.ttl[kind])
}

func (m *TokenManager) IssueWithTTL(subject uuid.UUID, roles []string, kind models.TokenKind, ttl time.Duration) (models.IssuedToken, error) {
	var issued models.IssuedToken

	key, ok := m.keys[kind]
	if !ok {
		return issued, fmt.Errorf("unknown token kind %q", kind)
	}
	if ttl <= 0 {
		return issued, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}

	now := m.now().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	token := jwt.NewWithClaims(
		m.alg,
		tokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				Subject:   subject.String(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			Kind:  kind,
			Roles: roles,
		},
	)
	value, err := token.SignedString(key)
	if err != nil {
		return issued, fmt.Errorf("error while signing %s token. Err: %w", kind, err)
	}

	return models.IssuedToken{Value: value, ExpiresAt: expiresAt}, nil
}

// Issue access and refresh token for the user
func (m *TokenManager) IssuePair(user models.User) (models.TokenPair, error) {
	var pair models.TokenPair

	access, err := m.Issue(user.ID, user.Roles, models.TokenKindAccess)
	if err != nil {
		return pair, err
	}

	refresh, err := m.Issue(user.ID, user.Roles, models.TokenKindRefresh)
	if err != nil {
		return pair, err
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

// Parse and validate token of one of the expected kinds
// Revocation is not checked here
func (m *TokenManager) Verify(token string, kinds ...models.TokenKind) (models.TokenClaims, error) {
	var verified models.TokenClaims

	if len(kinds) == 0 {
		return verified, errors.New("at least one token kind must be expected")
	}

	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (any, error) {
			// Claims are not trusted yet: the key of the claimed kind proves the kind
			if !slices.Contains(kinds, claims.Kind) {
				return nil, fmt.Errorf("unexpected token kind %q", claims.Kind)
			}
			return m.keys[claims.Kind], nil
		},
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithLeeway(m.skew),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return verified, fmt.Errorf("%w: %w", apperrors.ErrInvalidToken, err)
	}

	subject, err := uuid.Parse(claims.Subject)
	if err != nil {
		return verified, fmt.Errorf("%w: bad subject: %w", apperrors.ErrInvalidToken, err)
	}

	var issuedAt time.Time
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}

	return models.TokenClaims{
		ID:        claims.ID,
		Subject:   subject,
		Roles:     claims.Roles,
		Kind:      claims.Kind,
		IssuedAt:  issuedAt,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Subject of a valid token of any kind
func (m *TokenManager) SubjectOf(token string) (uuid.UUID, error) {
	claims, err := m.Verify(token, models.TokenKindAccess, models.TokenKindRefresh, models.TokenKindPasswordReset)
	if err != nil {
		return uuid.Nil, err
	}
	return claims.Subject, nil
}
