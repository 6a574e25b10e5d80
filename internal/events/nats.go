package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/phrazzld/cronq/internal/redact"
)

// DefaultSubjectPrefix is the subject prefix used when none is configured.
const DefaultSubjectPrefix = "cronq.task"

// Connect dials the NATS server at url with the reconnect settings the
// worker uses.
func Connect(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With(slog.String("component", "nats"))

	opts := []nats.Option{
		nats.Name(name),
		nats.Timeout(5 * time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("disconnected from nats", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("reconnected to nats", slog.String("url", redact.URL(nc.ConnectedUrl())))
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", redact.URL(url), err)
	}
	return nc, nil
}

// NATSPublisher is an EventHandler that forwards every event as JSON to a
// NATS subject derived from the event type.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

// NewNATSPublisher creates a publisher on an established connection.
// An empty prefix falls back to DefaultSubjectPrefix.
func NewNATSPublisher(conn *nats.Conn, prefix string, logger *slog.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{
		conn:   conn,
		prefix: prefix,
		logger: logger.With(slog.String("component", "nats_publisher")),
	}
}

// HandleEvent implements EventHandler.
func (p *NATSPublisher) HandleEvent(ctx context.Context, event *TaskEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.ID, err)
	}

	subject := event.Subject(p.prefix)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event %s to %s: %w", event.ID, subject, err)
	}

	p.logger.Debug("published event",
		slog.String("subject", subject),
		slog.String("event_id", event.ID.String()))
	return nil
}

// Subscribe delivers events published on subject to handler. Use
// "<prefix>.<name>" for one event type or "<prefix>.>" for all of them.
// Messages that do not decode are logged and dropped.
func Subscribe(conn *nats.Conn, subject string, handler EventHandler, logger *slog.Logger) (*nats.Subscription, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With(slog.String("component", "nats_subscriber"), slog.String("subject", subject))

	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		var event TaskEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Warn("dropping undecodable event", slog.String("error", err.Error()))
			return
		}
		if err := handler.HandleEvent(context.Background(), &event); err != nil {
			log.Error("event handler failed",
				slog.String("event_id", event.ID.String()),
				slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	return sub, nil
}
