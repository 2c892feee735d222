// Package notify sends best-effort email notifications to licensees.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"

	"licensegate/internal/config"
	"licensegate/pkg/contracts/domain"
)

// Notifier delivers license notifications. Implementations are best-effort:
// a delivery failure is logged, never returned to the caller's client.
type Notifier interface {
	LicenseCreated(ctx context.Context, to string, rec *domain.LicenseRecord) error
}

// SMTPNotifier sends notifications through a plain-auth SMTP relay
type SMTPNotifier struct {
	cfg    config.SMTPConfig
	logger *slog.Logger
	// send is swapped in tests
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPNotifier creates a notifier from SMTP configuration. Returns nil
// if no host is configured, which callers treat as notification disabled.
func NewSMTPNotifier(cfg config.SMTPConfig, logger *slog.Logger) *SMTPNotifier {
	if cfg.Host == "" {
		return nil
	}
	return &SMTPNotifier{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "notifier")),
		send:   smtp.SendMail,
	}
}

// LicenseCreated emails the licensee their new license details. The token
// appears in full here and nowhere else: email is the delivery channel.
func (n *SMTPNotifier) LicenseCreated(ctx context.Context, to string, rec *domain.LicenseRecord) error {
	from := n.cfg.From
	if from == "" {
		from = n.cfg.User
	}

	body := fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: Your license for %s\r\n"+
		"\r\n"+
		"Hello %s,\r\n\r\n"+
		"A license has been issued for %s.\r\n\r\n"+
		"License key: %s\r\n"+
		"Tier: %s\r\n"+
		"Expires: %s\r\n\r\n"+
		"Keep this key secret.\r\n",
		from, to, rec.Domain, rec.Licensee, rec.Domain,
		rec.Token, rec.Tier, rec.ExpiresAt.Format("2006-01-02"))

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	auth := smtp.PlainAuth("", n.cfg.User, n.cfg.Password, n.cfg.Host)

	if err := n.send(addr, auth, from, []string{to}, []byte(body)); err != nil {
		n.logger.WarnContext(ctx, "license notification failed",
			slog.String("to", to),
			slog.String("license_id", rec.ID),
			slog.String("error", err.Error()),
		)
		return err
	}

	n.logger.InfoContext(ctx, "license notification sent",
		slog.String("to", to),
		slog.String("license_id", rec.ID),
	)
	return nil
}
