// Package email delivers rendered notifications through the configured
// provider.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/mail"
	"net/smtp"
	"strings"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
	ProviderID() string
}

type Config struct {
	// Service is log, smtp or webhook. Empty means log.
	Service  string
	APIKey   string
	APIURL   string
	From     string
	SMTPHost string
	SMTPPort string
}

// New picks the sender for cfg. Without an API key only smtp is usable, so
// webhook falls back to log.
func New(cfg Config, logger *slog.Logger) (Sender, error) {
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = "no-reply@agribeta.local"
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Service)) {
	case "", "log":
		return NewLogSender(logger), nil
	case "smtp":
		return NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, from), nil
	case "webhook":
		if strings.TrimSpace(cfg.APIKey) == "" {
			logger.Warn("EMAIL_API_KEY not set; logging emails instead of sending")
			return NewLogSender(logger), nil
		}
		return NewWebhookSender(cfg.APIURL, cfg.APIKey, from)
	default:
		return nil, fmt.Errorf("unknown EMAIL_SERVICE %q", cfg.Service)
	}
}

// SMTPSender sends email via unauthenticated SMTP (Mailpit-compatible).
type SMTPSender struct {
	addr string
	from string
}

func NewSMTPSender(host string, port string, from string) *SMTPSender {
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%s", strings.TrimSpace(host), strings.TrimSpace(port)),
		from: from,
	}
}

func (s *SMTPSender) ProviderID() string { return "smtp" }

func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	raw, to, err := buildMessage(s.from, msg)
	if err != nil {
		return err
	}
	return smtp.SendMail(s.addr, nil, s.from, []string{to}, []byte(raw))
}

// buildMessage renders msg as an RFC 5322 message. The recipient must be a
// single address and the subject is folded onto one encoded line, so no
// value can start a header of its own.
func buildMessage(from string, msg Message) (raw, to string, err error) {
	addr, err := mail.ParseAddress(msg.To)
	if err != nil {
		return "", "", fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	subject := strings.Join(strings.Fields(msg.Subject), " ")
	body := strings.ReplaceAll(strings.ReplaceAll(msg.Body, "\r\n", "\n"), "\n", "\r\n")
	raw = fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from,
		addr.String(),
		mime.QEncoding.Encode("utf-8", subject),
		body,
	)
	return raw, addr.Address, nil
}

// LogSender records intended sends without delivering them.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) ProviderID() string { return "log" }

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "email send (stub)", "to", msg.To, "subject", msg.Subject, "body_bytes", len(msg.Body))
	return nil
}
