package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripdesk/backoffice/internal/config"
)

func TestNewSMTPMailer_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.SMTPConfig
		wantErr bool
	}{
		{name: "defaults", cfg: config.SMTPConfig{Host: "smtp.local", Port: "587", TLSMode: "auto"}},
		{name: "bad port", cfg: config.SMTPConfig{Host: "smtp.local", Port: "abc"}, wantErr: true},
		{name: "bad tls mode", cfg: config.SMTPConfig{Host: "smtp.local", Port: "25", TLSMode: "maybe"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSMTPMailer(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSMTPMailer_NotConfigured(t *testing.T) {
	m, err := NewSMTPMailer(config.SMTPConfig{Port: "587"})
	require.NoError(t, err)
	assert.False(t, m.IsConfigured())
	assert.Error(t, m.Send(context.Background(), MailMessage{To: "a@b.c"}))
}

func TestSMTPMailer_CancelledContextSkipsDial(t *testing.T) {
	m, err := NewSMTPMailer(config.SMTPConfig{Host: "smtp.invalid", Port: "587"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, MailMessage{To: "a@b.c"}), context.Canceled)
}

func TestSMTPMailer_BuildMessageHeaders(t *testing.T) {
	m, err := NewSMTPMailer(config.SMTPConfig{Host: "smtp.local", Port: "587", From: "no-reply@tripdesk.local"})
	require.NoError(t, err)

	msg := m.buildMessage(MailMessage{To: "alice@x.com", Subject: "Hi", TextBody: "body"})
	assert.Equal(t, []string{"no-reply@tripdesk.local"}, msg.GetHeader("From"))
	assert.Equal(t, []string{"alice@x.com"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"Hi"}, msg.GetHeader("Subject"))
}
