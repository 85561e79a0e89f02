package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ErlanBelekov/backend-skeleton/internal/domain"
	"gopkg.in/gomail.v2"
)

// SMTPSender delivers through an SMTP relay (STARTTLS on 587 by default).
type SMTPSender struct {
	dialer   *gomail.Dialer
	from     string
	fromName string
	logger   *slog.Logger

	deliver func(m *gomail.Message) error
}

func NewSMTPSender(host string, port int, username, password, from, fromName string, logger *slog.Logger) *SMTPSender {
	d := gomail.NewDialer(host, port, username, password)
	s := &SMTPSender{
		dialer:   d,
		from:     from,
		fromName: fromName,
		logger:   logger.With("component", "smtp_mailer", "host", host, "port", port),
	}
	s.deliver = func(m *gomail.Message) error { return d.DialAndSend(m) }
	return s
}

// Send hands the message to the relay. gomail has no context support, so
// the SMTP exchange runs in its own goroutine; when ctx ends first Send
// returns ctx.Err() and the exchange is left to finish on its own.
func (s *SMTPSender) Send(ctx context.Context, msg domain.EmailMessage) error {
	m := gomail.NewMessage(gomail.SetCharset("UTF-8"))
	m.SetAddressHeader("From", s.from, s.fromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTMLBody)

	done := make(chan error, 1)
	go func() {
		done <- s.deliver(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "smtp send abandoned", "to", msg.To, "error", ctx.Err())
		return fmt.Errorf("smtp send: %w", ctx.Err())
	}
}
