// Package notification renders named email templates and hands the result
// to a mail transport. Nothing is retried here; retry policy belongs to
// the caller.
package notification

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"time"

	"github.com/ErlanBelekov/backend-skeleton/internal/domain"
	"github.com/ErlanBelekov/backend-skeleton/internal/metrics"
	"github.com/go-playground/validator/v10"
)

const (
	SubjectWelcome       = "Welcome to Our Platform"
	SubjectPasswordReset = "Password Reset Request"
	SubjectVerification  = "Verify Your Email"
)

type renderer interface {
	Render(name string, vars map[string]any) (string, error)
}

type transport interface {
	Send(ctx context.Context, msg domain.EmailMessage) error
}

type Dispatcher struct {
	renderer  renderer
	transport transport
	timeout   time.Duration
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewDispatcher wires a renderer and a transport. timeout bounds each
// transport call independently of the caller's cancellation; zero means
// no bound.
func NewDispatcher(r renderer, t transport, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		renderer:  r,
		transport: t,
		timeout:   timeout,
		validate:  validator.New(),
		logger:    logger.With("component", "notification"),
	}
}

// Send renders templateName with variables and makes exactly one delivery
// attempt. Render failures return *TemplateError and never reach the
// transport; transport failures return *DeliveryError.
func (d *Dispatcher) Send(ctx context.Context, to, subject, templateName string, variables map[string]any) error {
	vars := make(map[string]any, len(variables))
	maps.Copy(vars, variables)

	html, err := d.renderer.Render(templateName, vars)
	if err != nil {
		metrics.EmailsTotal.WithLabelValues(templateName, "template_error").Inc()
		var te *TemplateError
		if errors.As(err, &te) {
			return err
		}
		return &TemplateError{Name: templateName, Err: err}
	}

	if err := d.validate.Var(to, "required,email"); err != nil {
		metrics.EmailsTotal.WithLabelValues(templateName, "delivery_error").Inc()
		return &DeliveryError{To: to, Err: ErrInvalidAddress}
	}

	msg := domain.EmailMessage{
		To:           to,
		Subject:      subject,
		TemplateName: templateName,
		Variables:    vars,
		HTMLBody:     html,
	}

	// A caller that goes away must not abort a delivery already under way.
	sendCtx := context.WithoutCancel(ctx)
	if d.timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(sendCtx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	err = d.transport.Send(sendCtx, msg)
	metrics.EmailSendDuration.WithLabelValues(templateName).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EmailsTotal.WithLabelValues(templateName, "delivery_error").Inc()
		return &DeliveryError{To: to, Err: err}
	}

	metrics.EmailsTotal.WithLabelValues(templateName, "sent").Inc()
	d.logger.DebugContext(ctx, "email sent", "template", templateName, "to", to)
	return nil
}

func (d *Dispatcher) SendWelcomeEmail(ctx context.Context, to, username string) error {
	return d.Send(ctx, to, SubjectWelcome, TemplateWelcome, map[string]any{"username": username})
}

func (d *Dispatcher) SendPasswordResetEmail(ctx context.Context, to, resetLink string) error {
	return d.Send(ctx, to, SubjectPasswordReset, TemplatePasswordReset, map[string]any{"resetLink": resetLink})
}

func (d *Dispatcher) SendVerificationEmail(ctx context.Context, to, verificationLink string) error {
	return d.Send(ctx, to, SubjectVerification, TemplateVerification, map[string]any{"verificationLink": verificationLink})
}
