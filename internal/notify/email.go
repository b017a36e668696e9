package notify

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// SMTPConfig holds mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailSender sends ChannelEmail messages over SMTP.
type EmailSender struct {
	dialer mailDialer
	from   string
}

var _ Notifier = (*EmailSender)(nil)

func NewEmailSender(cfg SMTPConfig) *EmailSender {
	return &EmailSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

// Notify sends msg. A message with HTML gets a text/plain alternative so
// clients that block HTML still show the code.
func (s *EmailSender) Notify(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("notify: email without recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	if msg.HTML != "" {
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	} else {
		m.SetBody("text/plain", msg.Text)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("notify: sending email to %s: %w", msg.To, err)
	}
	return nil
}
