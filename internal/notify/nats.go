package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// natsConn is the subset of *nats.Conn used by NATSPublisher.
type natsConn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes every event on a single core NATS subject.
type NATSPublisher struct {
	conn      natsConn
	subject   string
	onMetrics MetricsRecorder
	logger    *zap.Logger
}

// NewNATSPublisher creates a NATSPublisher writing to subject.
func NewNATSPublisher(conn natsConn, subject string, logger *zap.Logger) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: subject, logger: logger}
}

// SetMetricsRecorder configures the metrics callback.
func (p *NATSPublisher) SetMetricsRecorder(fn MetricsRecorder) {
	p.onMetrics = fn
}

// Publish marshals e and hands it to the NATS client's outbound buffer.
func (p *NATSPublisher) Publish(_ context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = p.conn.Publish(p.subject, data)
	if p.onMetrics != nil {
		p.onMetrics(err == nil)
	}
	if err != nil {
		return fmt.Errorf("nats publish %s: %w", p.subject, err)
	}
	return nil
}

// ConnectNATS establishes a NATS connection that reconnects forever.
func ConnectNATS(url string, logger *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("civicpulse-receipts"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return nc, nil
}
