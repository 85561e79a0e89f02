// Package email holds the mail transports. A transport takes an already
// rendered message and delivers it; it knows nothing about templates.
package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ErlanBelekov/backend-skeleton/internal/domain"
	"github.com/resend/resend-go/v2"
)

type Sender interface {
	Send(ctx context.Context, msg domain.EmailMessage) error
}

// LogSender logs emails instead of sending them. Used for MAIL_TRANSPORT=log.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With("component", "log_mailer")}
}

func (s *LogSender) Send(ctx context.Context, msg domain.EmailMessage) error {
	s.logger.InfoContext(ctx, "email (not delivered)",
		"to", msg.To,
		"subject", msg.Subject,
		"template", msg.TemplateName,
		"body", msg.HTMLBody,
	)
	return nil
}

// ResendSender sends emails via the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey), from: from}
}

func (s *ResendSender) Send(ctx context.Context, msg domain.EmailMessage) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTMLBody,
	}
	_, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

type Options struct {
	Transport string // log, smtp or resend
	From      string
	FromName  string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string

	ResendAPIKey string
}

// NewSender picks the transport named in opts.Transport; unknown names fall back to logging.
func NewSender(opts Options, logger *slog.Logger) Sender {
	switch opts.Transport {
	case "smtp":
		return NewSMTPSender(opts.SMTPHost, opts.SMTPPort, opts.SMTPUsername, opts.SMTPPassword, opts.From, opts.FromName, logger)
	case "resend":
		from := opts.From
		if opts.FromName != "" {
			from = fmt.Sprintf("%s <%s>", opts.FromName, opts.From)
		}
		return NewResendSender(opts.ResendAPIKey, from)
	default:
		return NewLogSender(logger)
	}
}
