package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/provio-systems/provio/internal/models"
)

// DefaultSubject is where provisioning audit events are published for
// downstream consumers (SIEM ingestion, alerting).
const DefaultSubject = "provio.audit.events"

// NATSForwarder publishes recorded audit events to a NATS subject.
type NATSForwarder struct {
	conn    *nats.Conn
	subject string
}

// NewNATSForwarder connects to the NATS server at url. An empty
// subject falls back to DefaultSubject.
func NewNATSForwarder(url, subject string) (*NATSForwarder, error) {
	conn, err := nats.Connect(url,
		nats.Name("provio-audit-forwarder"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("audit: connect nats: %w", err)
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSForwarder{conn: conn, subject: subject}, nil
}

// Forward publishes the event as JSON. The emitter treats failures as
// log-only; forwarding is best-effort by design.
func (f *NATSForwarder) Forward(ctx context.Context, event *models.AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: marshal event: %w", err)
	}
	if err := f.conn.Publish(f.subject, data); err != nil {
		return fmt.Errorf("audit: publish event: %w", err)
	}
	return nil
}

// Close drains the connection, letting queued publishes flush.
func (f *NATSForwarder) Close() {
	_ = f.conn.Drain()
}
