// Package attempts keeps per-source failed login counters in process memory.
package attempts

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultMaxAttempts = 5
	DefaultWindow      = 15 * time.Minute
)

type Config struct {
	MaxAttempts int
	Window      time.Duration
	Now         func() time.Time
}

type counter struct {
	count     int
	expiresAt time.Time
}

// Tracker for a single replica. Every call is linearizable per source
type MemoryTracker struct {
	mu       sync.Mutex
	counters map[string]counter

	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

func NewMemoryTracker(cfg Config) *MemoryTracker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &MemoryTracker{
		counters:    make(map[string]counter),
		maxAttempts: cfg.MaxAttempts,
		window:      cfg.Window,
		now:         cfg.Now,
	}
}

// Live counter for the source; expired one is evicted. Caller holds the lock
func (t *MemoryTracker) get(source string, now time.Time) (counter, bool) {
	c, ok := t.counters[source]
	if ok && !now.Before(c.expiresAt) {
		delete(t.counters, source)
		return counter{}, false
	}
	return c, ok
}

func (t *MemoryTracker) IsBlocked(_ context.Context, source string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, _ := t.get(source, t.now())
	return c.count >= t.maxAttempts, nil
}

// Window starts with the first failure and is not extended by later ones
func (t *MemoryTracker) RecordFailure(_ context.Context, source string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	c, ok := t.get(source, now)
	if !ok {
		c.expiresAt = now.Add(t.window)
	}
	c.count++
	t.counters[source] = c

	return nil
}

func (t *MemoryTracker) RecordSuccess(_ context.Context, source string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.counters, source)
	return nil
}

// Drop every expired counter, returns how many were dropped
func (t *MemoryTracker) Prune(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	pruned := 0
	for source, c := range t.counters {
		if !now.Before(c.expiresAt) {
			delete(t.counters, source)
			pruned++
		}
	}
	return pruned
}
