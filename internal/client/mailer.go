// SMTP 서버와 통신하는 메일 클라이언트 정의
//
// 환경변수:
//   - SMTP_HOST: 비어 있으면 메일 전송 비활성화
//   - SMTP_PORT (default: 587)
//   - SMTP_USER / SMTP_PASSWORD
//   - SMTP_FROM (default: no-reply@tripdesk.local)
//   - SMTP_TLS_MODE: auto | starttls | ssl | none

package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"time"

	"github.com/go-mail/mail"
	"github.com/tripdesk/backoffice/internal/config"
)

// MailMessage - 전송할 메일 내용
type MailMessage struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// SMTPMailer - go-mail 기반 SMTP 전송 클라이언트
type SMTPMailer struct {
	host     string
	port     int
	user     string
	password string
	from     string
	tlsMode  string
	timeout  time.Duration
}

func NewSMTPMailer(cfg config.SMTPConfig) (*SMTPMailer, error) {
	port, err := strconv.Atoi(cfg.Port)
	if err != nil || port <= 0 {
		return nil, fmt.Errorf("invalid SMTP_PORT %q", cfg.Port)
	}
	switch cfg.TLSMode {
	case "", "auto", "starttls", "ssl", "none":
	default:
		return nil, fmt.Errorf("invalid SMTP_TLS_MODE %q", cfg.TLSMode)
	}

	return &SMTPMailer{
		host:     cfg.Host,
		port:     port,
		user:     cfg.User,
		password: cfg.Password,
		from:     cfg.From,
		tlsMode:  cfg.TLSMode,
		timeout:  10 * time.Second,
	}, nil
}

// SMTP host가 설정되어 있는지 체크
func (m *SMTPMailer) IsConfigured() bool {
	return m != nil && m.host != ""
}

// Send delivers one message. go-mail has no context support, so ctx is only
// checked before dialing and the dialer carries its own timeout.
func (m *SMTPMailer) Send(ctx context.Context, msg MailMessage) error {
	if !m.IsConfigured() {
		return fmt.Errorf("smtp host not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	d := mail.NewDialer(m.host, m.port, m.user, m.password)
	d.Timeout = m.timeout
	d.TLSConfig = &tls.Config{ServerName: m.host}
	switch m.tlsMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.TLSConfig = nil
		d.StartTLSPolicy = mail.NoStartTLS
	default:
		// auto/starttls: go-mail이 가능한 경우 STARTTLS 협상
	}

	if err := d.DialAndSend(m.buildMessage(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (m *SMTPMailer) buildMessage(msg MailMessage) *mail.Message {
	out := mail.NewMessage()
	out.SetHeader("From", m.from)
	out.SetHeader("To", msg.To)
	out.SetHeader("Subject", msg.Subject)

	// text/plain 우선, html은 alternative로 첨부
	if msg.TextBody != "" {
		out.SetBody("text/plain", msg.TextBody)
	}
	if msg.HTMLBody != "" {
		if msg.TextBody == "" {
			out.SetBody("text/html", msg.HTMLBody)
		} else {
			out.AddAlternative("text/html", msg.HTMLBody)
		}
	}
	return out
}
