package evolved

import (
	"encoding/json"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/GoSim-25-26J-441/race-evolution/pkg/logger"
)

// NATSPublisher publishes run events on a NATS subject. Events of one run go
// to "<subject>.<run_id>".
type NATSPublisher struct {
	nc      *natsgo.Conn
	subject string
}

// NewNATSPublisher connects to url. The connection keeps retrying in the
// background, so a NATS server that starts later still receives events.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	nc, err := natsgo.Connect(url,
		natsgo.Name("race-evolution"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		natsgo.ReconnectHandler(func(c *natsgo.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{nc: nc, subject: subject}, nil
}

// Subject returns the subject events of runID are published on
func (p *NATSPublisher) Subject(runID string) string {
	return p.subject + "." + runID
}

// Publish sends the event as JSON
func (p *NATSPublisher) Publish(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := p.nc.Publish(p.Subject(event.RunID), payload); err != nil {
		return fmt.Errorf("failed to publish event for run %s: %w", event.RunID, err)
	}
	return nil
}

// Close flushes pending events and closes the connection
func (p *NATSPublisher) Close() {
	if p.nc.IsConnected() {
		if err := p.nc.FlushTimeout(2 * time.Second); err != nil {
			logger.Warn("NATS flush failed", "error", err)
		}
	}
	p.nc.Close()
}
