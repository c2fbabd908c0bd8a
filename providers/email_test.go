package providers

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/Skryldev/apikit/config"
)

func TestNewEmailProvider_NoopWhenUnconfigured(t *testing.T) {
	p := NewEmailProvider(&config.Settings{}, zerolog.Nop())

	_, ok := p.(*noopEmail)
	assert.True(t, ok, "expected noop provider without SMTP host")

	// The no-op provider always succeeds so create flows never stall on it.
	assert.NoError(t, p.Send(context.Background(), "a@b.com", "s", "b"))
	assert.NoError(t, p.HealthCheck(context.Background()))
}

func TestNewEmailProvider_SMTPWhenConfigured(t *testing.T) {
	cfg := &config.Settings{
		SMTPHost:      "smtp.example.com",
		SMTPPort:      587,
		SMTPUser:      "mailer",
		SMTPPassword:  "secret",
		SMTPFromEmail: "noreply@example.com",
	}
	p := NewEmailProvider(cfg, zerolog.Nop())

	se, ok := p.(*smtpEmail)
	assert.True(t, ok, "expected SMTP provider with host configured")
	assert.Equal(t, "smtp.example.com:587", se.addr())
	assert.NotNil(t, se.auth())

	se.cfg.SMTPUser = ""
	assert.Nil(t, se.auth(), "anonymous relay skips auth")
}
