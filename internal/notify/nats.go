package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSNotifier publishes events to an ops subject so the monitoring bus can
// consume them
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
}

// NewNATSNotifier connects to the NATS server and targets the given subject
func NewNATSNotifier(url, subject string) (*NATSNotifier, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSNotifier{conn: conn, subject: subject}, nil
}

func (n *NATSNotifier) Notify(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", n.subject, err)
	}

	// Events are low-volume and operators rely on them; push them out now
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flushing event to %s: %w", n.subject, err)
	}
	return nil
}

func (n *NATSNotifier) Close() error {
	n.conn.Close()
	return nil
}
