package notify

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// SMTPSender delivers mail through an authenticated SMTP relay.
type SMTPSender struct {
	Server   string
	Port     int
	User     string
	Password string
	FromName string
}

func (s *SMTPSender) Type() string { return "smtp" }

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(s.User, s.FromName))
	m.SetHeader("To", msg.To...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTMLBody)

	d := gomail.NewDialer(s.Server, s.Port, s.User, s.Password)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send to %v failed: %w", msg.To, err)
	}
	return nil
}

// NoEmail is used when no mail provider is configured. Messages are dropped.
type NoEmail struct{}

func (NoEmail) Type() string { return "none" }

func (NoEmail) Send(ctx context.Context, msg Message) error {
	return ErrNotConfigured
}
