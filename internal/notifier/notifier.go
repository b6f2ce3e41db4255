// Package notifier delivers the digest email to a single recipient.
package notifier

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// DefaultFrom is the sender address used when none is configured.
const DefaultFrom = "noreply@videogames.com"

// Notifier sends one HTML email. Implementations return *DeliveryError for
// every failure and never retry.
type Notifier interface {
	SendDigest(ctx context.Context, to, subject, html string) error
}

// DeliveryError is a failed send to one recipient.
type DeliveryError struct {
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %v", e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// LogMailer writes digests to the log instead of sending them.
type LogMailer struct {
	logger zerolog.Logger
}

func NewLogMailer(logger zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger.With().Str("component", "log_mailer").Logger()}
}

func (m *LogMailer) SendDigest(ctx context.Context, to, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return &DeliveryError{Recipient: to, Err: err}
	}
	m.logger.Info().
		Str("to", to).
		Str("subject", subject).
		Int("bytes", len(html)).
		Msg("digest email (not sent, no SMTP host configured)")
	return nil
}
