// Package natsbridge forwards hierarchy change events to NATS so services
// outside this process can react to reporting-line changes.
package natsbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/feedback-hub/modules/hierarchy/domain/events"
	"github.com/iota-uz/feedback-hub/pkg/outbox"
)

type publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

type Forwarder struct {
	conn    *nats.Conn
	pub     publisher
	subject string
	logger  *logrus.Logger
}

// Connect dials url and returns a forwarder publishing under subject.<organization id>.
func Connect(url, subject string, logger *logrus.Logger) (*Forwarder, error) {
	opts := []nats.Option{
		nats.Name("feedback-hub"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("NATS disconnected")
				return
			}
			logger.Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infof("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			if sub != nil {
				logger.WithError(err).Errorf("NATS error on subscription %s", sub.Subject)
				return
			}
			logger.WithError(err).Error("NATS async error")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	logger.Infof("Connected to NATS at %s", nc.ConnectedUrl())
	f := newForwarder(nc, subject, logger)
	f.conn = nc
	return f, nil
}

func newForwarder(pub publisher, subject string, logger *logrus.Logger) *Forwarder {
	return &Forwarder{pub: pub, subject: subject, logger: logger}
}

// Handle is an eventbus subscriber used when the outbox relay is off.
// Publish failures are logged and dropped.
func (f *Forwarder) Handle(e *events.HierarchyChanged) {
	data, err := json.Marshal(e)
	if err != nil {
		f.logger.WithError(err).Error("failed to encode hierarchy event")
		return
	}
	subject := f.subjectFor(e.OrganizationID)
	if err := f.pub.Publish(subject, data); err != nil {
		f.logger.WithError(err).WithFields(logrus.Fields{
			"subject":     subject,
			"edge_id":     e.EdgeID,
			"change_type": e.ChangeType,
		}).Warn("failed to forward hierarchy event")
	}
}

// Dispatch delivers a relayed outbox message. Publish only buffers, so the
// connection is flushed before returning; the relay acks on nil and schedules
// a retry on any error.
func (f *Forwarder) Dispatch(ctx context.Context, env outbox.Envelope) error {
	subject := f.subjectFor(env.OrganizationID)
	if err := f.pub.Publish(subject, env.Payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	if err := f.pub.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", subject, err)
	}
	return nil
}

func (f *Forwarder) subjectFor(orgID uuid.UUID) string {
	return f.subject + "." + orgID.String()
}

// Close drains the connection, flushing pending publishes.
func (f *Forwarder) Close() error {
	if f.conn == nil {
		return nil
	}
	return f.conn.Drain()
}
