// Package broadcast publishes finished snapshots to NATS for downstream viewers.
package broadcast

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rewired-gh/skywatch/internal/logger"
	"github.com/rewired-gh/skywatch/internal/models"
)

// Message is the payload published per cycle.
type Message struct {
	CycleID     string          `json:"cycle_id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Aircraft    models.Snapshot `json:"aircraft"`
}

// Publisher sends snapshots on a subject. A publisher that never connected
// drops messages silently.
type Publisher struct {
	conn    *nats.Conn
	subject string
	mu      sync.Mutex
}

// NewPublisher creates an unconnected publisher for subject.
func NewPublisher(subject string) *Publisher {
	return &Publisher{subject: subject}
}

// Connect dials the NATS server with automatic reconnects.
func (p *Publisher) Connect(url string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	opts := []nats.Option{
		nats.Name("skywatch"),
		nats.Timeout(timeout),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	p.conn = conn
	logger.Info("NATS connected to %s (subject %s)", url, p.subject)
	return nil
}

// Enabled reports whether messages will be sent.
func (p *Publisher) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil
}

// Publish sends one cycle's snapshot.
func (p *Publisher) Publish(cycleID string, snap models.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil
	}
	if snap == nil {
		snap = models.Snapshot{}
	}

	data, err := json.Marshal(Message{CycleID: cycleID, GeneratedAt: time.Now().UTC(), Aircraft: snap})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return p.conn.FlushTimeout(5 * time.Second)
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		if err := p.conn.Drain(); err != nil {
			p.conn.Close()
		}
		p.conn = nil
	}
}
