package tokenmanager

import (
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/crmauth/internal/apperrors"
	"github.com/nkiryanov/crmauth/internal/models"
)

func mustParseTime(value string) time.Time {
	dt, err := time.Parse("2006-01-02 15:04:05Z07:00", value)
	if err != nil {
		panic(err)
	}
	return dt
}

// Manual clock, tests move it explicitly
type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func Test_TokenManager(t *testing.T) {
	testUser := models.User{
		ID:             uuid.New(),
		CreatedAt:      mustParseTime("2024-01-01 19:00:01Z"),
		Username:       "testuser",
		HashedPassword: "hashed_password",
		Roles:          []string{models.RoleManager, models.RoleUser},
	}

	newManager := func(t *testing.T, cfg Config) (*TokenManager, *clock) {
		c := &clock{now: mustParseTime("2025-03-01 10:00:00Z")}
		cfg.SecretKey = "test-secret-key"
		cfg.Now = c.Now

		m, err := New(cfg)
		require.NoError(t, err, "token manager should be created without errors")
		return m, c
	}

	t.Run("new defaults", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err, "token manager should be created without errors")

		assert.Equal(t, DefaultAccessTTL, m.TTL(models.TokenKindAccess), "default access token TTL should be set")
		assert.Equal(t, DefaultRefreshTTL, m.TTL(models.TokenKindRefresh), "default refresh token TTL")
		assert.Equal(t, DefaultResetTTL, m.TTL(models.TokenKindPasswordReset), "default reset token TTL")
		assert.Equal(t, DefaultClockSkew, m.skew)
		assert.Equal(t, defaultSigningMethod, m.alg.Alg(), "default signing method should be set")
	})

	t.Run("new config errors", func(t *testing.T) {
		tests := []struct {
			name string
			cfg  Config
		}{
			{"empty secret", Config{}},
			{"rsa alg", Config{SecretKey: "secret", Alg: "RS256"}},
			{"unknown alg", Config{SecretKey: "secret", Alg: "whatever"}},
			{"negative ttl", Config{SecretKey: "secret", AccessTTL: -time.Second}},
			{"too large skew", Config{SecretKey: "secret", ClockSkew: 3 * time.Minute}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := New(tt.cfg)
				assert.Error(t, err)
			})
		}
	})

	t.Run("negative skew disables tolerance", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret", ClockSkew: NoClockSkew})
		require.NoError(t, err)

		assert.Zero(t, m.skew)
	})

	t.Run("IssuePair", func(t *testing.T) {
		t.Run("return token pair", func(t *testing.T) {
			m, c := newManager(t, Config{AccessTTL: 15 * time.Minute, RefreshTTL: 24 * time.Hour})

			pair, err := m.IssuePair(testUser)

			require.NoError(t, err)
			assert.NotEmpty(t, pair.Access.Value, "access token should not be empty")
			assert.Equal(t, c.now.Add(15*time.Minute), pair.Access.ExpiresAt)
			assert.NotEmpty(t, pair.Refresh.Value, "refresh token should not be empty")
			assert.Equal(t, c.now.Add(24*time.Hour), pair.Refresh.ExpiresAt)
		})

		t.Run("access claims", func(t *testing.T) {
			m, c := newManager(t, Config{})
			pair, err := m.IssuePair(testUser)
			require.NoError(t, err)

			claims, err := m.Verify(pair.Access.Value, models.TokenKindAccess)

			require.NoError(t, err)
			assert.Equal(t, testUser.ID, claims.Subject, "user ID in token should match")
			assert.Equal(t, testUser.Roles, claims.Roles)
			assert.Equal(t, models.TokenKindAccess, claims.Kind)
			assert.NotEmpty(t, claims.ID, "token has to has jti")
			assert.True(t, c.now.Equal(claims.IssuedAt))
			assert.True(t, pair.Access.ExpiresAt.Equal(claims.ExpiresAt), "access expires at should match token pair")
		})

		t.Run("generate different tokens within same second", func(t *testing.T) {
			m, _ := newManager(t, Config{})

			pair1, err := m.IssuePair(testUser)
			require.NoError(t, err)
			pair2, err := m.IssuePair(testUser)
			require.NoError(t, err)

			assert.NotEqual(t, pair1.Refresh.Value, pair2.Refresh.Value, "refresh tokens should be different")
			assert.NotEqual(t, pair1.Access.Value, pair2.Access.Value, "access tokens should be different")
		})
	})

	t.Run("Issue", func(t *testing.T) {
		t.Run("timestamps truncated to seconds", func(t *testing.T) {
			m, c := newManager(t, Config{})
			c.Advance(700 * time.Millisecond)

			issued, err := m.Issue(testUser.ID, nil, models.TokenKindPasswordReset)

			require.NoError(t, err)
			assert.Equal(t, c.now.Truncate(time.Second).Add(DefaultResetTTL), issued.ExpiresAt)
		})

		t.Run("explicit ttl", func(t *testing.T) {
			m, c := newManager(t, Config{})

			issued, err := m.IssueWithTTL(testUser.ID, nil, models.TokenKindAccess, time.Minute)

			require.NoError(t, err)
			assert.Equal(t, c.now.Add(time.Minute), issued.ExpiresAt)
		})

		t.Run("bad ttl or kind", func(t *testing.T) {
			m, _ := newManager(t, Config{})

			_, err := m.IssueWithTTL(testUser.ID, nil, models.TokenKindAccess, 0)
			assert.Error(t, err)

			_, err = m.Issue(testUser.ID, nil, models.TokenKind("session"))
			assert.Error(t, err)
		})
	})

	t.Run("Verify", func(t *testing.T) {
		t.Run("not a token", func(t *testing.T) {
			m, _ := newManager(t, Config{})

			_, err := m.Verify("invalid token", models.TokenKindAccess)

			require.ErrorIs(t, err, apperrors.ErrInvalidToken, "parsing even not a token should return an error")
		})

		t.Run("no kinds expected", func(t *testing.T) {
			m, _ := newManager(t, Config{})
			issued, err := m.Issue(testUser.ID, nil, models.TokenKindAccess)
			require.NoError(t, err)

			_, err = m.Verify(issued.Value)

			require.Error(t, err)
		})

		t.Run("kind mismatch", func(t *testing.T) {
			m, _ := newManager(t, Config{})
			kinds := []models.TokenKind{models.TokenKindAccess, models.TokenKindRefresh, models.TokenKindPasswordReset}

			for _, issuedKind := range kinds {
				issued, err := m.Issue(testUser.ID, nil, issuedKind)
				require.NoError(t, err)

				for _, expected := range kinds {
					_, err := m.Verify(issued.Value, expected)
					if issuedKind == expected {
						assert.NoError(t, err)
					} else {
						assert.ErrorIs(t, err, apperrors.ErrInvalidToken, "%s token must not verify as %s", issuedKind, expected)
					}
				}
			}
		})

		t.Run("kinds signed with distinct keys", func(t *testing.T) {
			m, c := newManager(t, Config{})
			// Refresh claims signed by the access key pretend to be a refresh token
			forged := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   testUser.ID.String(),
					IssuedAt:  jwt.NewNumericDate(c.now),
					ExpiresAt: jwt.NewNumericDate(c.now.Add(time.Hour)),
				},
				Kind: models.TokenKindRefresh,
			})
			value, err := forged.SignedString(m.keys[models.TokenKindAccess])
			require.NoError(t, err)

			_, err = m.Verify(value, models.TokenKindRefresh)

			assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
		})

		t.Run("other secret", func(t *testing.T) {
			m, _ := newManager(t, Config{})
			other, err := New(Config{SecretKey: "other-secret", Now: m.now})
			require.NoError(t, err)
			issued, err := other.Issue(testUser.ID, nil, models.TokenKindAccess)
			require.NoError(t, err)

			_, err = m.Verify(issued.Value, models.TokenKindAccess)

			assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
		})

		t.Run("tampered payload", func(t *testing.T) {
			m, _ := newManager(t, Config{})
			issued, err := m.Issue(testUser.ID, []string{models.RoleUser}, models.TokenKindAccess)
			require.NoError(t, err)
			admin, err := m.Issue(testUser.ID, []string{models.RoleAdmin}, models.TokenKindAccess)
			require.NoError(t, err)

			// Header and signature of the first token with payload of the second
			parts := strings.Split(issued.Value, ".")
			adminParts := strings.Split(admin.Value, ".")
			tampered := strings.Join([]string{parts[0], adminParts[1], parts[2]}, ".")

			_, err = m.Verify(tampered, models.TokenKindAccess)

			assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
		})

		t.Run("not signed token", func(t *testing.T) {
			m, c := newManager(t, Config{})
			token := jwt.NewWithClaims(
				jwt.SigningMethodNone,
				tokenClaims{
					RegisteredClaims: jwt.RegisteredClaims{
						ID:        uuid.NewString(),
						Subject:   testUser.ID.String(),
						IssuedAt:  jwt.NewNumericDate(c.now),
						ExpiresAt: jwt.NewNumericDate(c.now.Add(15 * time.Minute)),
					},
					Kind: models.TokenKindAccess,
				},
			)
			access, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
			require.NoError(t, err)

			_, err = m.Verify(access, models.TokenKindAccess)

			require.ErrorIs(t, err, apperrors.ErrInvalidToken, "Valid token with empty alg must fail")
		})

		t.Run("expiry is exclusive with zero skew", func(t *testing.T) {
			m, c := newManager(t, Config{AccessTTL: time.Minute, ClockSkew: NoClockSkew})
			issued, err := m.Issue(testUser.ID, nil, models.TokenKindAccess)
			require.NoError(t, err)

			c.Advance(time.Minute - time.Second)
			_, err = m.Verify(issued.Value, models.TokenKindAccess)
			require.NoError(t, err, "one second before expiry is valid")

			c.Advance(time.Second)
			_, err = m.Verify(issued.Value, models.TokenKindAccess)
			require.ErrorIs(t, err, apperrors.ErrInvalidToken, "now == expiresAt is expired")
		})

		t.Run("skew tolerance", func(t *testing.T) {
			m, c := newManager(t, Config{AccessTTL: time.Minute, ClockSkew: 30 * time.Second})
			issued, err := m.Issue(testUser.ID, nil, models.TokenKindAccess)
			require.NoError(t, err)

			c.Advance(time.Minute + 29*time.Second)
			_, err = m.Verify(issued.Value, models.TokenKindAccess)
			require.NoError(t, err, "within skew")

			c.Advance(time.Second)
			_, err = m.Verify(issued.Value, models.TokenKindAccess)
			require.ErrorIs(t, err, apperrors.ErrInvalidToken, "skew exhausted")
		})

		t.Run("issued in the future", func(t *testing.T) {
			m, c := newManager(t, Config{ClockSkew: 30 * time.Second})
			issued, err := m.Issue(testUser.ID, nil, models.TokenKindAccess)
			require.NoError(t, err)

			c.Advance(-31 * time.Second)
			_, err = m.Verify(issued.Value, models.TokenKindAccess)

			require.ErrorIs(t, err, apperrors.ErrInvalidToken)
		})

		t.Run("randomized clock offsets", func(t *testing.T) {
			const (
				ttl  = 10 * time.Minute
				skew = 30 * time.Second
			)
			m, c := newManager(t, Config{AccessTTL: ttl, ClockSkew: skew})
			issuedAt := c.now
			issued, err := m.Issue(testUser.ID, nil, models.TokenKindAccess)
			require.NoError(t, err)

			rnd := rand.New(rand.NewPCG(1, 2))
			for range 500 {
				// Whole seconds from well before issue to well after expiry
				offset := time.Duration(rnd.IntN(int((ttl+5*skew)/time.Second))-int(3*skew/time.Second)) * time.Second
				c.now = issuedAt.Add(offset)

				_, err := m.Verify(issued.Value, models.TokenKindAccess)

				valid := offset >= -skew && offset < ttl+skew
				if valid {
					assert.NoError(t, err, "offset %s must be accepted", offset)
				} else {
					assert.ErrorIs(t, err, apperrors.ErrInvalidToken, "offset %s must be rejected", offset)
				}
			}
		})
	})

	t.Run("SubjectOf", func(t *testing.T) {
		m, c := newManager(t, Config{})

		for _, kind := range []models.TokenKind{models.TokenKindAccess, models.TokenKindRefresh, models.TokenKindPasswordReset} {
			issued, err := m.Issue(testUser.ID, nil, kind)
			require.NoError(t, err)

			subject, err := m.SubjectOf(issued.Value)

			require.NoError(t, err, kind)
			assert.Equal(t, testUser.ID, subject)
		}

		expired, err := m.IssueWithTTL(testUser.ID, nil, models.TokenKindAccess, time.Second)
		require.NoError(t, err)
		c.Advance(time.Hour)

		_, err = m.SubjectOf(expired.Value)
		assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
	})
}
