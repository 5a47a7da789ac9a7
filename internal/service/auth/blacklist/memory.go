// Package blacklist keeps revoked tokens in process memory until they expire.
package blacklist

import (
	"context"
	"sync"
	"time"

	"github.com/nkiryanov/crmauth/internal/logger"
	"github.com/nkiryanov/crmauth/internal/models"
)

type Config struct {
	// Entries outlive the token by Grace, so a token accepted within clock skew stays revoked
	Grace time.Duration

	Now    func() time.Time
	Logger logger.Logger
}

type MemoryBlacklist struct {
	mu sync.Mutex

	// Token fingerprint -> moment the entry may be dropped
	entries map[string]time.Time

	grace  time.Duration
	now    func() time.Time
	logger logger.Logger
}

func NewMemory(cfg Config) *MemoryBlacklist {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}

	return &MemoryBlacklist{
		entries: make(map[string]time.Time),
		grace:   cfg.Grace,
		now:     cfg.Now,
		logger:  cfg.Logger,
	}
}

// Revoke returns true only for the call that actually inserted the entry
func (b *MemoryBlacklist) Revoke(_ context.Context, token string, expiresAt time.Time) (bool, error) {
	key := models.Fingerprint(token)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if until, ok := b.entries[key]; ok && now.Before(until) {
		return false, nil
	}

	until := expiresAt.Add(b.grace)
	if floor := now.Add(time.Second); until.Before(floor) {
		until = floor
	}
	b.entries[key] = until
	return true, nil
}

func (b *MemoryBlacklist) IsRevoked(_ context.Context, token string) (bool, error) {
	key := models.Fingerprint(token)

	b.mu.Lock()
	defer b.mu.Unlock()

	until, ok := b.entries[key]
	if !ok {
		return false, nil
	}
	if !b.now().Before(until) {
		delete(b.entries, key)
		return false, nil
	}
	return true, nil
}

// Drop entries whose tokens can't verify anymore, returns how many were dropped
func (b *MemoryBlacklist) Prune(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	pruned := 0
	for key, until := range b.entries {
		if !now.Before(until) {
			delete(b.entries, key)
			pruned++
		}
	}
	return pruned
}

func (b *MemoryBlacklist) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.entries)
}

// Run prunes periodically until ctx is done
func (b *MemoryBlacklist) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pruned := b.Prune(b.now()); pruned > 0 {
				b.logger.Debug("Revoked tokens pruned", "count", pruned)
			}
		}
	}
}
