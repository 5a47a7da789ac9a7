// Package notify delivers password reset tokens to users.
package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	gomail "gopkg.in/mail.v2"

	"github.com/nkiryanov/crmauth/internal/logger"
	"github.com/nkiryanov/crmauth/internal/models"
)

// Satisfied by *gomail.Dialer
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type MailerConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// Page the user opens to set new password. Token is appended as 'token' query parameter
	// If empty the bare token is sent
	ResetURL string
}

type Mailer struct {
	sender   Sender
	from     string
	resetURL string
	logger   logger.Logger
}

func NewMailer(cfg MailerConfig, l logger.Logger) *Mailer {
	return NewMailerWithSender(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg, l)
}

func NewMailerWithSender(sender Sender, cfg MailerConfig, l logger.Logger) *Mailer {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Mailer{
		sender:   sender,
		from:     cfg.From,
		resetURL: cfg.ResetURL,
		logger:   l,
	}
}

func (m *Mailer) SendPasswordReset(_ context.Context, user models.User, token models.IssuedToken) error {
	message := gomail.NewMessage(gomail.SetEncoding(gomail.Unencoded))
	message.SetHeader("From", m.from)
	message.SetHeader("To", user.Email)
	message.SetHeader("Subject", "Password reset")
	message.SetBody("text/plain", resetBody(user, token, m.resetURL))

	if err := m.sender.DialAndSend(message); err != nil {
		m.logger.Error("Password reset email failed", "user_id", user.ID, "error", err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.Info("Password reset email sent", "user_id", user.ID)
	return nil
}

func resetBody(user models.User, token models.IssuedToken, resetURL string) string {
	name := user.FullName
	if name == "" {
		name = user.Username
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", name)
	b.WriteString("We received a request to reset your password.\n")
	if link := resetLink(resetURL, token.Value); link != "" {
		fmt.Fprintf(&b, "Open the link to set a new one: %s\n", link)
	} else {
		fmt.Fprintf(&b, "Use this reset token to set a new one: %s\n", token.Value)
	}
	fmt.Fprintf(&b, "It is valid until %s.\n\n", token.ExpiresAt.UTC().Format(time.RFC1123))
	b.WriteString("If you did not request a reset, ignore this email.\n")

	return b.String()
}

// Empty if base is not configured or not a valid url
func resetLink(base string, token string) string {
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
