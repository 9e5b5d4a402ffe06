package email

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Sender provides a testable abstraction over email delivery.
type Sender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// LoggingSender writes messages to the log instead of delivering them. It is
// used when SES is not configured.
type LoggingSender struct{}

func (LoggingSender) Send(ctx context.Context, recipient, subject, body string) error {
	log.Ctx(ctx).Info().
		Str("recipient", recipient).
		Str("subject", subject).
		Int("body_bytes", len(body)).
		Msg("Email delivery disabled; message logged")
	return nil
}
