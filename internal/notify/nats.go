// Package notify carries enqueue wake-ups from API processes to delivery
// workers over NATS. Wake-ups only shorten the wait before the next cycle;
// the database remains the queue and workers still poll on their interval.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// SubjectEnqueued is published once per inserted record with the record id as payload.
const SubjectEnqueued = "mail.enqueued"

// NATSNotifier publishes and receives enqueue wake-ups.
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// Connect dials NATS with unbounded reconnects. The connection name shows up
// in the server's connz listing.
func Connect(url, name string, logger *slog.Logger) (*NATSNotifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "notify")

	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSNotifier{conn: conn, subject: SubjectEnqueued, logger: logger}, nil
}

// NotifyEnqueued publishes a wake-up for id. Publishing is fire-and-forget;
// a lost wake-up only delays delivery until the next poll.
func (n *NATSNotifier) NotifyEnqueued(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.conn.Publish(n.subject, []byte(id.String())); err != nil {
		return fmt.Errorf("failed to publish %s: %w", n.subject, err)
	}
	return nil
}

// Subscribe forwards every wake-up into wake without blocking.
// The returned function unsubscribes.
func (n *NATSNotifier) Subscribe(wake chan<- struct{}) (func() error, error) {
	sub, err := n.conn.Subscribe(n.subject, func(msg *nats.Msg) {
		n.logger.Debug("wake-up received", "email_id", string(msg.Data))
		Signal(wake)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", n.subject, err)
	}
	return sub.Unsubscribe, nil
}

// Close drains pending publishes and closes the connection.
func (n *NATSNotifier) Close() {
	if err := n.conn.Drain(); err != nil {
		n.logger.Warn("nats drain failed", "error", err)
		n.conn.Close()
	}
}

// Signal performs a non-blocking send on wake. A full channel already holds
// a pending wake-up, so extra signals are dropped.
func Signal(wake chan<- struct{}) {
	if wake == nil {
		return
	}
	select {
	case wake <- struct{}{}:
	default:
	}
}
