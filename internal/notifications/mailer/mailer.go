package mailer

import (
	"context"
	"crypto/tls"
	"fmt"

	"staybook/pkg/config"
	"staybook/pkg/kafka"
	"staybook/pkg/logger"

	gomail "gopkg.in/gomail.v2"
)

// Sender delivers a single email with a plain text body and an optional HTML
// alternative.
type Sender interface {
	Send(ctx context.Context, to, subject, textBody, htmlBody string) error
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPSender struct {
	dialer dialer
	from   string
	log    *logger.Logger
}

func NewSMTPSender(cfg *config.Config) *SMTPSender {
	d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	d.TLSConfig = &tls.Config{
		ServerName: cfg.SMTPHost,
		MinVersion: tls.VersionTLS12,
	}

	return &SMTPSender{
		dialer: d,
		from:   cfg.SMTPFrom,
		log:    cfg.Log,
	}
}

// Send reports SMTP failures as transient so the consumer retries them.
func (s *SMTPSender) Send(ctx context.Context, to, subject, textBody, htmlBody string) error {
	if to == "" {
		return kafka.NewPermanentError("email recipient is empty", nil)
	}
	if err := ctx.Err(); err != nil {
		return kafka.NewTransientError("email send cancelled", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", textBody)
	if htmlBody != "" {
		m.AddAlternative("text/html", htmlBody)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		s.log.Warn("Failed to send email", "to", to, "subject", subject, "error", err)
		return kafka.NewTransientError(fmt.Sprintf("failed to send email to %s", to), err)
	}

	s.log.Info("Email sent", "to", to, "subject", subject)
	return nil
}
