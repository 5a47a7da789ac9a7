package notify

import (
	"context"

	"github.com/nkiryanov/crmauth/internal/logger"
	"github.com/nkiryanov/crmauth/internal/models"
)

const DefaultQueueSize = 64

type Notifier interface {
	SendPasswordReset(ctx context.Context, user models.User, token models.IssuedToken) error
}

type resetMessage struct {
	user  models.User
	token models.IssuedToken
}

// Queue hands reset messages to a background worker, so the caller returns
// in the same time whether an e-mail is sent or not.
// Messages are delivered only while Run is running.
type Queue struct {
	next     Notifier
	messages chan resetMessage
	logger   logger.Logger
}

func NewQueue(next Notifier, size int, l logger.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Queue{
		next:     next,
		messages: make(chan resetMessage, size),
		logger:   l,
	}
}

// Never blocks. Message is dropped with an error log if the queue is full
func (q *Queue) SendPasswordReset(_ context.Context, user models.User, token models.IssuedToken) error {
	select {
	case q.messages <- resetMessage{user: user, token: token}:
	default:
		q.logger.Error("Password reset queue is full, message dropped", "user_id", user.ID)
	}
	return nil
}

// Run delivers queued messages until ctx is done, then flushes what is already queued.
// Accepted messages are sent with cancellation detached from ctx
func (q *Queue) Run(ctx context.Context) {
	sendCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			q.flush(sendCtx)
			return
		case m := <-q.messages:
			q.deliver(sendCtx, m)
		}
	}
}

func (q *Queue) flush(ctx context.Context) {
	for {
		select {
		case m := <-q.messages:
			q.deliver(ctx, m)
		default:
			return
		}
	}
}

func (q *Queue) deliver(ctx context.Context, m resetMessage) {
	if err := q.next.SendPasswordReset(ctx, m.user, m.token); err != nil {
		q.logger.Warn("Password reset not delivered", "user_id", m.user.ID, "error", err)
	}
}
