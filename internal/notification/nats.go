package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSNotifier publishes events as JSON on "charges.<kind>".
type NATSNotifier struct {
	nc *nats.Conn
}

// NewNATSNotifier wraps an established NATS connection.
func NewNATSNotifier(nc *nats.Conn) *NATSNotifier {
	return &NATSNotifier{nc: nc}
}

// Send publishes the event. Delivery is fire-and-forget, like any core NATS publish.
func (n *NATSNotifier) Send(_ context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode charge event: %w", err)
	}
	if err := n.nc.Publish(event.Subject(), payload); err != nil {
		return fmt.Errorf("publish %s: %w", event.Subject(), err)
	}
	return nil
}
