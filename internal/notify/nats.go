package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/tareqmamari/logs-ratio-server/internal/security"
	"github.com/tareqmamari/logs-ratio-server/internal/tracing"
)

const flushTimeout = 5 * time.Second

// Publisher is the subset of *nats.Conn used by NATSSender.
type Publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// NATSSender publishes alerts as JSON on a subject.
type NATSSender struct {
	conn    Publisher
	subject string
	logger  *zap.Logger
	close   func()
}

// ConnectNATS dials the server and returns a sender publishing on subject.
func ConnectNATS(url, subject string, logger *zap.Logger) (*NATSSender, error) {
	nc, err := nats.Connect(url,
		nats.Name("logs-ratio-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", security.MaskURL(c.ConnectedUrl())))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", security.MaskURL(url), err)
	}

	s := NewNATSSender(nc, subject, logger)
	s.close = nc.Close
	return s, nil
}

// NewNATSSender wraps an existing connection.
func NewNATSSender(conn Publisher, subject string, logger *zap.Logger) *NATSSender {
	return &NATSSender{
		conn:    conn,
		subject: subject,
		logger:  logger.Named("nats"),
	}
}

// Name implements Sender.
func (n *NATSSender) Name() string {
	return "nats"
}

// Send implements Sender. The publish is flushed so a dead connection is
// reported instead of buffered.
func (n *NATSSender) Send(ctx context.Context, msg Message) error {
	ctx, span := tracing.NotifySpan(ctx, n.Name())
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	if err := n.conn.Publish(n.subject, data); err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("failed to publish to %s: %w", n.subject, err)
	}
	// FlushWithContext rejects contexts without a deadline.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("failed to flush NATS connection: %w", err)
	}

	n.logger.Debug("Alert published", zap.String("subject", n.subject))
	tracing.SetSuccess(span)
	return nil
}

// Close closes the underlying connection when this sender opened it.
func (n *NATSSender) Close() error {
	if n.close != nil {
		n.close()
	}
	return nil
}
