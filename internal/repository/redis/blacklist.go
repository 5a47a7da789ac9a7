package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nkiryanov/crmauth/internal/apperrors"
	"github.com/nkiryanov/crmauth/internal/models"
)

type BlacklistConfig struct {
	// Entries outlive the token by Grace, so a token accepted within clock skew stays revoked
	Grace time.Duration

	Now func() time.Time
}

// Revoked tokens keyed by fingerprint. Keys expire together with the token
type Blacklist struct {
	client goredis.UniversalClient
	grace  time.Duration
	now    func() time.Time
}

func NewBlacklist(client goredis.UniversalClient, cfg BlacklistConfig) *Blacklist {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Blacklist{
		client: client,
		grace:  cfg.Grace,
		now:    cfg.Now,
	}
}

func (b *Blacklist) key(token string) string {
	return keyPrefix + "revoked:" + models.Fingerprint(token)
}

// Revoke returns true only for the call that actually inserted the entry
func (b *Blacklist) Revoke(ctx context.Context, token string, expiresAt time.Time) (bool, error) {
	ttl := max(expiresAt.Sub(b.now())+b.grace, time.Second)

	inserted, err := b.client.SetNX(ctx, b.key(token), expiresAt.Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %w", apperrors.ErrBlacklistUnavailable, err)
	}

	return inserted, nil
}

func (b *Blacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	err := b.client.Get(ctx, b.key(token)).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, goredis.Nil):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %w", apperrors.ErrBlacklistUnavailable, err)
	}
}
