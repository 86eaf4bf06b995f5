// Package email delivers rendered alert emails, either directly over SMTP or
// by queueing them on Kafka for the worker.
package email

import (
	"context"
	"strings"
	"time"

	"gopkg.in/mail.v2"

	"github.com/turtacn/LexAlert/internal/config"
	"github.com/turtacn/LexAlert/internal/domain/deadline"
	"github.com/turtacn/LexAlert/internal/domain/notification"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/pkg/errors"
)

// Sender hands one email off for delivery.
type Sender interface {
	Send(ctx context.Context, e notification.Email) error
}

// Dialer is the part of mail.Dialer used to deliver a message.
type Dialer interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTPSender sends each email in its own SMTP session.
type SMTPSender struct {
	dialer Dialer
	from   string
	logger logging.Logger
}

// NewSMTPSender builds a sender from the smtp config section.
func NewSMTPSender(cfg config.SMTPConfig, log logging.Logger) *SMTPSender {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.Timeout = cfg.Timeout
	if cfg.StartTLS {
		d.StartTLSPolicy = mail.MandatoryStartTLS
	} else {
		d.StartTLSPolicy = mail.OpportunisticStartTLS
	}
	return NewSMTPSenderWithDialer(d, cfg.From, log)
}

// NewSMTPSenderWithDialer wraps an existing dialer (for testing).
func NewSMTPSenderWithDialer(d Dialer, from string, log logging.Logger) *SMTPSender {
	return &SMTPSender{dialer: d, from: from, logger: log}
}

func (s *SMTPSender) Send(ctx context.Context, e notification.Email) error {
	if err := validate(e); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	if err := s.dialer.DialAndSend(s.compose(e)); err != nil {
		return errors.Wrap(err, errors.ErrCodeAlertDeliveryFailed, "smtp send failed")
	}
	s.logger.Info("Alert email sent",
		logging.String("dedupe_key", e.DedupeKey),
		logging.String("rule", string(e.Rule)),
		logging.Duration("latency", time.Since(start)))
	return nil
}

func (s *SMTPSender) compose(e notification.Email) *mail.Message {
	m := mail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", e.To)
	m.SetHeader("Subject", subjectFor(e))
	if e.Severity == deadline.SeverityDanger {
		m.SetHeader("X-Priority", "1")
		m.SetHeader("Importance", "high")
	}
	m.SetHeader("X-LexAlert-Dedupe-Key", e.DedupeKey)
	m.SetBody("text/plain", e.Body)
	return m
}

func subjectFor(e notification.Email) string {
	if e.Severity == deadline.SeverityDanger {
		return "[URGENT] " + e.Subject
	}
	return e.Subject
}

func validate(e notification.Email) error {
	switch {
	case strings.TrimSpace(e.To) == "":
		return errors.InvalidParam("email recipient is required")
	case e.DedupeKey == "":
		return errors.InvalidParam("email dedupe key is required")
	}
	return nil
}
