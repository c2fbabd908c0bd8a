// Package providers holds adapters for external collaborators the
// application talks to besides its own database.
package providers

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/rs/zerolog"

	"github.com/Skryldev/apikit/config"
)

// EmailProvider sends transactional email. Implementations must be safe
// for concurrent use.
type EmailProvider interface {
	Send(ctx context.Context, to, subject, body string) error
	HealthCheck(ctx context.Context) error
}

// NewEmailProvider returns an SMTP-backed provider when SMTP is configured,
// else a no-op provider that only logs. Callers never need to care which.
func NewEmailProvider(cfg *config.Settings, log zerolog.Logger) EmailProvider {
	if cfg.SMTPHost == "" {
		return &noopEmail{log: log}
	}
	return &smtpEmail{cfg: cfg, log: log}
}

// smtpEmail delivers via a plain SMTP relay.
type smtpEmail struct {
	cfg *config.Settings
	log zerolog.Logger
}

func (p *smtpEmail) addr() string {
	return fmt.Sprintf("%s:%d", p.cfg.SMTPHost, p.cfg.SMTPPort)
}

func (p *smtpEmail) auth() smtp.Auth {
	if p.cfg.SMTPUser == "" {
		return nil
	}
	return smtp.PlainAuth("", p.cfg.SMTPUser, p.cfg.SMTPPassword, p.cfg.SMTPHost)
}

func (p *smtpEmail) Send(_ context.Context, to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		p.cfg.SMTPFromEmail, to, subject, body)

	if err := smtp.SendMail(p.addr(), p.auth(), p.cfg.SMTPFromEmail, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("providers/email: send to %s: %w", to, err)
	}
	p.log.Info().Str("to", to).Str("subject", subject).Msg("email sent")
	return nil
}

// HealthCheck verifies the SMTP relay accepts TCP connections.
func (p *smtpEmail) HealthCheck(ctx context.Context) error {
	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", p.addr())
	if err != nil {
		return fmt.Errorf("providers/email: health check: %w", err)
	}
	return conn.Close()
}

// noopEmail is used when SMTP is unconfigured (tests, local development).
type noopEmail struct {
	log zerolog.Logger
}

func (p *noopEmail) Send(_ context.Context, to, subject, _ string) error {
	p.log.Debug().Str("to", to).Str("subject", subject).Msg("email disabled; dropping message")
	return nil
}

func (p *noopEmail) HealthCheck(context.Context) error { return nil }
