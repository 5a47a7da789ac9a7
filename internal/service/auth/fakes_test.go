package auth

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/crmauth/internal/models"
	"github.com/nkiryanov/crmauth/internal/repository"
)

// Manual clock shared by every time dependent component of the test service
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type auditRecorder struct {
	mu         sync.Mutex
	activities []string
}

func (r *auditRecorder) RecordUserActivity(_ context.Context, _ uuid.UUID, activity string, _ string, _ uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activities = append(r.activities, activity)
}

func (r *auditRecorder) RecordSystemActivity(_ context.Context, activity string, _ string, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activities = append(r.activities, activity)
}

func (r *auditRecorder) Activities() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.activities)
}

// Keeps the last reset token sent to every user
type resetOutbox struct {
	mu   sync.Mutex
	sent map[uuid.UUID]string
	err  error
}

func (o *resetOutbox) SendPasswordReset(_ context.Context, user models.User, token models.IssuedToken) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.err != nil {
		return o.err
	}
	if o.sent == nil {
		o.sent = make(map[uuid.UUID]string)
	}
	o.sent[user.ID] = token.Value
	return nil
}

func (o *resetOutbox) Last(userID uuid.UUID) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sent[userID]
}

// Allow to use functions as attempt tracker
type trackerFuncs struct {
	isBlocked     func(ctx context.Context, source string) (bool, error)
	recordFailure func(ctx context.Context, source string) error
	recordSuccess func(ctx context.Context, source string) error
}

func (f trackerFuncs) IsBlocked(ctx context.Context, source string) (bool, error) {
	return f.isBlocked(ctx, source)
}

func (f trackerFuncs) RecordFailure(ctx context.Context, source string) error {
	return f.recordFailure(ctx, source)
}

func (f trackerFuncs) RecordSuccess(ctx context.Context, source string) error {
	return f.recordSuccess(ctx, source)
}

// Allow to use functions as blacklist
type blacklistFuncs struct {
	revoke    func(ctx context.Context, token string, expiresAt time.Time) (bool, error)
	isRevoked func(ctx context.Context, token string) (bool, error)
}

func (f blacklistFuncs) Revoke(ctx context.Context, token string, expiresAt time.Time) (bool, error) {
	return f.revoke(ctx, token, expiresAt)
}

func (f blacklistFuncs) IsRevoked(ctx context.Context, token string) (bool, error) {
	return f.isRevoked(ctx, token)
}

// User repo where only the needed methods are set. Others panic
type usersStub struct {
	repository.UserRepo

	getByID    func(ctx context.Context, id uuid.UUID) (models.User, error)
	getByLogin func(ctx context.Context, login string) (models.User, error)
}

func (s usersStub) GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	return s.getByID(ctx, id)
}

func (s usersStub) GetUserByLogin(ctx context.Context, login string) (models.User, error) {
	return s.getByLogin(ctx, login)
}

func (s usersStub) UpdateLastLogin(context.Context, uuid.UUID, time.Time) error {
	return nil
}

// Counts comparisons, so tests can see every login path pays for one
type countingHasher struct {
	BcryptHasher
	compares atomic.Int32
}

func (h *countingHasher) Compare(hashedPassword string, password string) error {
	h.compares.Add(1)
	return h.BcryptHasher.Compare(hashedPassword, password)
}
