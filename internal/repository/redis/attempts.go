package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nkiryanov/crmauth/internal/apperrors"
)

const (
	DefaultMaxAttempts = 5
	DefaultWindow      = 15 * time.Minute
)

// Increment and start the window in one step: a counter never lives without ttl
var recordFailureLua = goredis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

type AttemptsConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// Per-source failed login counters shared between service replicas
type AttemptTracker struct {
	client      goredis.UniversalClient
	maxAttempts int
	window      time.Duration
}

func NewAttemptTracker(client goredis.UniversalClient, cfg AttemptsConfig) *AttemptTracker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}

	return &AttemptTracker{
		client:      client,
		maxAttempts: cfg.MaxAttempts,
		window:      cfg.Window,
	}
}

func (t *AttemptTracker) key(source string) string {
	return keyPrefix + "attempts:" + source
}

func (t *AttemptTracker) IsBlocked(ctx context.Context, source string) (bool, error) {
	count, err := t.client.Get(ctx, t.key(source)).Int()
	switch {
	case errors.Is(err, goredis.Nil):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("%w: %w", apperrors.ErrAttemptTrackerUnavailable, err)
	}

	return count >= t.maxAttempts, nil
}

func (t *AttemptTracker) RecordFailure(ctx context.Context, source string) error {
	err := recordFailureLua.Run(ctx, t.client, []string{t.key(source)}, t.window.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrAttemptTrackerUnavailable, err)
	}
	return nil
}

func (t *AttemptTracker) RecordSuccess(ctx context.Context, source string) error {
	if err := t.client.Del(ctx, t.key(source)).Err(); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrAttemptTrackerUnavailable, err)
	}
	return nil
}
