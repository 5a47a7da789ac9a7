package notify

import (
	"context"

	"github.com/nkiryanov/crmauth/internal/logger"
	"github.com/nkiryanov/crmauth/internal/models"
)

// Used when SMTP is not configured. Reset link only shows up on debug level
type LogNotifier struct {
	resetURL string
	logger   logger.Logger
}

func NewLogNotifier(resetURL string, l logger.Logger) *LogNotifier {
	if l == nil {
		l = logger.NewNoOpLogger()
	}
	return &LogNotifier{resetURL: resetURL, logger: l}
}

func (n *LogNotifier) SendPasswordReset(_ context.Context, user models.User, token models.IssuedToken) error {
	n.logger.Info("Password reset requested, no mailer configured", "user_id", user.ID, "expires_at", token.ExpiresAt)

	link := resetLink(n.resetURL, token.Value)
	if link == "" {
		link = token.Value
	}
	n.logger.Debug("Password reset link", "reset_link", link)
	return nil
}
