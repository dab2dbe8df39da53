// Package anchor periodically publishes the ledger head to an external
// witness. Anchoring is advisory: a missing or failed attestation never
// changes the outcome of a receipt verification.
package anchor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/civicpulse/receipts/internal/receiptchain"
)

// Checkpoint is the ledger head sent to the witness.
type Checkpoint struct {
	Length    int64     `json:"length"`
	HeadHash  string    `json:"head_hash"`
	Timestamp time.Time `json:"timestamp"`
}

// Attestation is the witness's acknowledgement of a checkpoint.
type Attestation struct {
	Checkpoint
	Reference  string    `json:"reference"`
	AnchoredAt time.Time `json:"anchored_at"`
}

// Anchorer sends a checkpoint to an external witness.
type Anchorer interface {
	Anchor(ctx context.Context, cp Checkpoint) (*Attestation, error)
}

// tailReader is satisfied by every receiptchain.Store.
type tailReader interface {
	Tail(ctx context.Context) (receiptchain.Tail, error)
}

// MetricsRecorder is an optional callback for recording anchoring outcomes.
type MetricsRecorder func(success bool)

// Service anchors the ledger head on a fixed interval and remembers the last
// attestation for display.
type Service struct {
	ledger    tailReader
	anchorer  Anchorer
	interval  time.Duration
	onMetrics MetricsRecorder
	logger    *zap.Logger

	mu   sync.RWMutex
	last *Attestation
}

// NewService creates an anchoring Service.
func NewService(ledger tailReader, anchorer Anchorer, interval time.Duration, logger *zap.Logger) *Service {
	return &Service{
		ledger:   ledger,
		anchorer: anchorer,
		interval: interval,
		logger:   logger,
	}
}

// SetMetricsRecorder configures the metrics callback.
func (s *Service) SetMetricsRecorder(fn MetricsRecorder) {
	s.onMetrics = fn
}

// Last returns the most recent attestation, or nil.
func (s *Service) Last() *Attestation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	cp := *s.last
	return &cp
}

// AnchorOnce anchors the current head. It returns the previous attestation
// unchanged when the ledger is empty or has not grown since.
func (s *Service) AnchorOnce(ctx context.Context) (*Attestation, error) {
	tail, err := s.ledger.Tail(ctx)
	if err != nil {
		return nil, err
	}
	if last := s.Last(); tail.Length == 0 || (last != nil && last.Length == tail.Length) {
		return last, nil
	}

	att, err := s.anchorer.Anchor(ctx, Checkpoint{
		Length:    tail.Length,
		HeadHash:  tail.Hash,
		Timestamp: time.Now().UTC(),
	})
	if s.onMetrics != nil {
		s.onMetrics(err == nil)
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.last = att
	s.mu.Unlock()
	return att, nil
}

// Run anchors on every tick until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			att, err := s.AnchorOnce(tickCtx)
			cancel()
			if err != nil {
				s.logger.Warn("anchor: checkpoint failed", zap.Error(err))
				continue
			}
			if att != nil {
				s.logger.Debug("anchor: checkpoint attested",
					zap.Int64("length", att.Length),
					zap.String("reference", att.Reference),
				)
			}
		case <-ctx.Done():
			return
		}
	}
}
