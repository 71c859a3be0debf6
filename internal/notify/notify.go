// Package notify delivers emails and SMS. Delivery is best effort: callers log
// failures and never roll back the state change that triggered a message.
package notify

import (
	"context"
	"errors"
)

// Template names under templates/.
const (
	TemplateVerificationCode = "verification_code"
	TemplatePasswordReset    = "password_reset"
	TemplatePasswordChanged  = "password_changed"
	TemplateWelcome          = "welcome"
)

var ErrNotConfigured = errors.New("notify: transport not configured")

type Email struct {
	To       string
	Subject  string
	Template string
	Lang     string
	Data     map[string]any
}

type Dispatcher interface {
	SendEmail(ctx context.Context, msg Email) error
	SendSMS(ctx context.Context, to, message string) error
}

type EmailSender interface {
	SendEmail(ctx context.Context, msg Email) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

// Multi routes each kind of message to its own transport.
type Multi struct {
	Mail EmailSender
	SMS  SMSSender
}

func (m Multi) SendEmail(ctx context.Context, msg Email) error {
	if m.Mail == nil {
		return ErrNotConfigured
	}
	return m.Mail.SendEmail(ctx, msg)
}

func (m Multi) SendSMS(ctx context.Context, to, message string) error {
	if m.SMS == nil {
		return ErrNotConfigured
	}
	return m.SMS.SendSMS(ctx, to, message)
}
