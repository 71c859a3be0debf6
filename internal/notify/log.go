package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogDispatcher writes messages to the logger instead of delivering them.
// Bodies are only logged when Verbose is set, for local development.
type LogDispatcher struct {
	Logger  *zap.SugaredLogger
	Verbose bool
}

func (d LogDispatcher) SendEmail(_ context.Context, msg Email) error {
	body, err := Render(msg.Template, msg.Lang, msg.Data)
	if err != nil {
		return err
	}
	if d.Verbose {
		d.Logger.Infow("email (not sent)", "to", msg.To, "subject", msg.Subject, "template", msg.Template, "body", body)
		return nil
	}
	d.Logger.Infow("email (not sent)", "to", msg.To, "subject", msg.Subject, "template", msg.Template)
	return nil
}

func (d LogDispatcher) SendSMS(_ context.Context, to, message string) error {
	if d.Verbose {
		d.Logger.Infow("sms (not sent)", "to", to, "message", message)
		return nil
	}
	d.Logger.Infow("sms (not sent)", "to", to)
	return nil
}
