// Package natsbus publishes task lifecycle events to NATS.
//
// Each event is JSON-encoded and published on "<prefix>.<status>", for example
// "vidq.tasks.success", so subscribers can follow one status or all of them
// with "<prefix>.>".
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/phrazzld/vidq/internal/events"
)

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher is an events.EventHandler that forwards events to NATS.
type Publisher struct {
	conn   Conn
	prefix string
	logger *slog.Logger
}

var _ events.EventHandler = (*Publisher)(nil)

// Connect dials url and returns a publisher on the new connection together with
// the connection so the caller can drain it on shutdown.
func Connect(url, prefix string, logger *slog.Logger) (*Publisher, *nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("vidq"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrlRedacted())
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return NewPublisher(nc, prefix, logger), nc, nil
}

// NewPublisher wraps an existing connection.
func NewPublisher(conn Conn, prefix string, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		prefix: prefix,
		logger: logger.With("component", "nats_publisher"),
	}
}

// Subject returns the subject an event with status is published on.
func (p *Publisher) Subject(event *events.TaskEvent) string {
	return p.prefix + "." + string(event.Status)
}

// HandleEvent publishes event.
func (p *Publisher) HandleEvent(ctx context.Context, event *events.TaskEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	subject := p.Subject(event)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	p.logger.Debug("event published", "subject", subject, "task_id", event.TaskID)
	return nil
}
