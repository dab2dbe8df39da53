// Package notify fans out receipt events to dashboards. Delivery is
// best-effort: a failed notification never affects an issued receipt.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Event types published by the service.
const (
	EventReceiptIssued = "receipt.issued"
)

// Event is the envelope delivered to every subscriber.
type Event struct {
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]string `json:"payload"`
}

// NewEvent stamps an event of type typ with the current time.
func NewEvent(typ string, payload map[string]string) Event {
	return Event{Type: typ, Timestamp: time.Now().UTC(), Payload: payload}
}

// Publisher delivers events. Implementations must not block the caller on
// network round-trips.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// NoopPublisher logs events instead of delivering them.
type NoopPublisher struct {
	logger *zap.Logger
}

// NewNoopPublisher creates a NoopPublisher backed by the given logger.
func NewNoopPublisher(logger *zap.Logger) *NoopPublisher {
	return &NoopPublisher{logger: logger}
}

// Publish logs the event and returns nil.
func (n *NoopPublisher) Publish(_ context.Context, e Event) error {
	n.logger.Debug("event (noop, not delivered)",
		zap.String("type", e.Type),
		zap.Any("payload", e.Payload),
	)
	return nil
}
