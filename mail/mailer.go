// Package mail is the outbound "deliver text to address" capability.
// Delivery failures are reported, never retried inline; callers decide
// whether a failed send aborts their operation (for verification codes
// it must not).
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// Mailer delivers a plain-text message to a single recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPConfig configures an SMTPMailer.
type SMTPConfig struct {
	Addr     string // host:port
	From     string
	Username string
	Password string
}

// SMTPMailer sends through an authenticated SMTP relay. The net/smtp
// client enforces its own dial and write timeouts; there is no inline
// retry here.
type SMTPMailer struct {
	cfg SMTPConfig
}

// NewSMTPMailer validates cfg and returns the mailer.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Addr == "" || cfg.From == "" {
		return nil, fmt.Errorf("smtp mailer requires addr and from")
	}
	return &SMTPMailer{cfg: cfg}, nil
}

// Send implements Mailer.
func (m *SMTPMailer) Send(_ context.Context, to, subject, body string) error {
	host := m.cfg.Addr
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, host)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		m.cfg.From, to, subject, body)

	if err := smtp.SendMail(m.cfg.Addr, auth, m.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// LogMailer writes messages to the log instead of sending them.
// Development-mode replacement for a real relay.
type LogMailer struct {
	Log *slog.Logger
}

// Send implements Mailer.
func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	log := m.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("mail (log-only mode)", "to", to, "subject", subject, "body", body)
	return nil
}
