package notification

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strings"
	"time"

	mail "github.com/go-mail/mail"
	"github.com/tendant/account-provisioner/pkg/domain"
)

// DefaultResetPath is where reset links point, relative to AppBaseURL.
const DefaultResetPath = "/reset-password"

type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string

	AppBaseURL string
	ResetPath  string
	// ResetTTL is only mentioned in the mail body.
	ResetTTL time.Duration
}

// EmailService sends account mails over SMTP. Without an SMTP host every
// send fails with domain.ErrMailerNotConfigured.
type EmailService struct {
	config EmailConfig
	logger *slog.Logger
	send   func(*mail.Message) error
}

func NewEmailService(config EmailConfig, logger *slog.Logger) *EmailService {
	if config.ResetPath == "" {
		config.ResetPath = DefaultResetPath
	}
	if config.ResetTTL <= 0 {
		config.ResetTTL = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &EmailService{config: config, logger: logger}
	if config.Host != "" {
		s.send = s.dialAndSend
	}
	return s
}

// SendPasswordReset mails the reset link for token to the account owner.
func (s *EmailService) SendPasswordReset(ctx context.Context, to, name, token string) error {
	if s.send == nil {
		s.logger.Warn("SMTP not configured, password reset email not sent", "to", to)
		return domain.ErrMailerNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	greeting := "Hello,"
	if name != "" {
		greeting = fmt.Sprintf("Hello %s,", name)
	}
	expiry := formatTTL(s.config.ResetTTL)
	resetURL := s.resetURL(token)

	text := fmt.Sprintf("%s\n\nA password reset has been requested for your account.\n"+
		"Open this link to choose a new password:\n\n%s\n\n"+
		"The link expires in %s. If you did not request this, ignore this email.\n",
		greeting, resetURL, expiry)

	body := fmt.Sprintf(`<html><body>
		<p>%s</p>
		<h2>Reset Your Password</h2>
		<p>A password reset has been requested for your account.</p>
		<p><a href="%s">Click here to reset your password</a></p>
		<p>Or copy this link to your browser: %s</p>
		<p>This link will expire in %s.</p>
		<p>If you did not request this password reset, please ignore this email.</p>
	</body></html>`, html.EscapeString(greeting), html.EscapeString(resetURL), html.EscapeString(resetURL), expiry)

	m := mail.NewMessage()
	m.SetAddressHeader("From", s.config.From, s.config.FromName)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Reset Your Password")
	m.SetBody("text/plain", text)
	m.AddAlternative("text/html", body)

	if err := s.send(m); err != nil {
		s.logger.Error("failed to send password reset email", "error", err, "to", to)
		return fmt.Errorf("smtp send: %w", err)
	}
	s.logger.Info("password reset email sent", "to", to)
	return nil
}

func (s *EmailService) resetURL(token string) string {
	base := strings.TrimRight(s.config.AppBaseURL, "/")
	return base + s.config.ResetPath + "?token=" + url.QueryEscape(token)
}

func (s *EmailService) dialAndSend(m *mail.Message) error {
	d := mail.NewDialer(s.config.Host, s.config.Port, s.config.User, s.config.Password)
	d.TLSConfig = &tls.Config{ServerName: s.config.Host}
	if s.config.Port == 465 {
		d.SSL = true
	}
	return d.DialAndSend(m)
}

func formatTTL(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "1 hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", d/time.Hour)
	default:
		return fmt.Sprintf("%d minutes", d/time.Minute)
	}
}
