// Package notify delivers rendered alerts over SMTP, webhooks, NATS or the
// process log.
package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	apperrors "github.com/tareqmamari/logs-ratio-server/internal/errors"
	"github.com/tareqmamari/logs-ratio-server/internal/tracing"
)

// Message is the payload handed to a Sender. Body is HTML.
type Message struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender delivers a message or reports why it could not.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Multi fans a message out to every sender. Each failure is wrapped as a
// DISPATCH_FAILED error naming its channel and all failures are joined.
type Multi struct {
	senders []Sender
}

// NewMulti creates a fan-out sender.
func NewMulti(senders ...Sender) *Multi {
	return &Multi{senders: senders}
}

// Name implements Sender.
func (m *Multi) Name() string {
	return "multi"
}

// Senders returns the wrapped senders.
func (m *Multi) Senders() []Sender {
	return m.senders
}

// Send implements Sender.
func (m *Multi) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range m.senders {
		if err := s.Send(ctx, msg); err != nil {
			errs = append(errs, apperrors.NewDispatchFailed(s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// LogSender writes alerts to the process log. It is the fallback when no
// delivery channel is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a log-only sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger.Named("alerts")}
}

// Name implements Sender.
func (l *LogSender) Name() string {
	return "log"
}

// Send implements Sender.
func (l *LogSender) Send(ctx context.Context, msg Message) error {
	_, span := tracing.NotifySpan(ctx, l.Name())
	defer span.End()

	l.logger.Warn("Alert",
		zap.String("subject", msg.Subject),
		zap.Int("body_size", len(msg.Body)),
	)
	return nil
}
