// Package health runs periodic dependency and ledger-integrity probes for
// receiptd and reports their state to /readyz and the gRPC health service.
package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event types dispatched on state transitions.
const (
	EventDegraded  = "health.degraded"
	EventRecovered = "health.recovered"
)

// State is the last known condition of a check.
type State string

const (
	StateUnknown  State = "unknown"
	StateHealthy  State = "healthy"
	StateDegraded State = "degraded"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Check is one named probe. FailThreshold overrides Config.FailThreshold
// when positive.
type Check struct {
	Name          string
	Probe         func(ctx context.Context) error
	FailThreshold int
}

// CheckStatus is the reported state of a single check.
type CheckStatus struct {
	State     State  `json:"state"`
	FailCount int    `json:"fail_count,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Report is a snapshot of every check.
type Report struct {
	Healthy bool                   `json:"healthy"`
	Checks  map[string]CheckStatus `json:"checks"`
}

// EventDispatchFunc is an optional callback for degraded/recovered events.
type EventDispatchFunc func(ctx context.Context, eventType string, payload map[string]string)

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(check string, success bool)

// Checker runs the registered checks on a ticker and tracks their state.
type Checker struct {
	checks     []Check
	mu         sync.Mutex
	failCounts map[string]int
	status     map[string]CheckStatus
	cfg        Config
	onEvent    EventDispatchFunc
	onMetrics  MetricsRecordFunc
	logger     *zap.Logger
}

// New creates a new Checker.
func New(checks []Check, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}

	checks = append([]Check(nil), checks...)
	sort.Slice(checks, func(i, j int) bool { return checks[i].Name < checks[j].Name })

	status := make(map[string]CheckStatus, len(checks))
	for _, c := range checks {
		status[c.Name] = CheckStatus{State: StateUnknown}
	}
	return &Checker{
		checks:     checks,
		failCounts: make(map[string]int),
		status:     status,
		cfg:        cfg,
		logger:     logger,
	}
}

// SetEventDispatch configures the transition callback.
func (h *Checker) SetEventDispatch(fn EventDispatchFunc) {
	h.onEvent = fn
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Run checks once immediately and then every CheckInterval until ctx is done.
func (h *Checker) Run(ctx context.Context) {
	h.CheckAll(ctx)

	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.CheckAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// CheckAll probes every check concurrently and records the outcomes.
func (h *Checker) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, c := range h.checks {
		wg.Add(1)
		go func(c Check) {
			defer wg.Done()
			h.record(ctx, c, h.probe(ctx, c))
		}(c)
	}
	wg.Wait()
}

func (h *Checker) probe(ctx context.Context, c Check) error {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
	defer cancel()
	return c.Probe(ctx)
}

func (h *Checker) record(ctx context.Context, c Check, err error) {
	success := err == nil
	if h.onMetrics != nil {
		h.onMetrics(c.Name, success)
	}

	threshold := h.cfg.FailThreshold
	if c.FailThreshold > 0 {
		threshold = c.FailThreshold
	}

	h.mu.Lock()
	prevCount := h.failCounts[c.Name]
	if success {
		h.failCounts[c.Name] = 0
	} else {
		h.failCounts[c.Name]++
	}
	count := h.failCounts[c.Name]

	st := CheckStatus{State: StateHealthy}
	switch {
	case !success && count >= threshold:
		st = CheckStatus{State: StateDegraded, FailCount: count, Error: err.Error()}
	case !success:
		// Below threshold keeps the previous state.
		st = h.status[c.Name]
		st.FailCount = count
		st.Error = err.Error()
	}
	h.status[c.Name] = st
	h.mu.Unlock()

	switch {
	case success && prevCount >= threshold:
		h.logger.Info("health: recovered", zap.String("check", c.Name))
		h.dispatch(ctx, EventRecovered, c.Name, "")
	case !success && count == threshold:
		h.logger.Error("health: degraded",
			zap.String("check", c.Name),
			zap.Int("fail_count", count),
			zap.Error(err),
		)
		h.dispatch(ctx, EventDegraded, c.Name, err.Error())
	case !success:
		h.logger.Warn("health: probe failed", zap.String("check", c.Name), zap.Error(err))
	}
}

func (h *Checker) dispatch(ctx context.Context, eventType, check, reason string) {
	if h.onEvent == nil {
		return
	}
	payload := map[string]string{"check": check}
	if reason != "" {
		payload["error"] = reason
	}
	h.onEvent(ctx, eventType, payload)
}

// Report returns a snapshot of every check's last recorded state.
func (h *Checker) Report() Report {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := Report{Healthy: true, Checks: make(map[string]CheckStatus, len(h.status))}
	for name, st := range h.status {
		r.Checks[name] = st
		if st.State == StateDegraded {
			r.Healthy = false
		}
	}
	return r
}

// Healthy reports whether no check is degraded.
func (h *Checker) Healthy() bool {
	return h.Report().Healthy
}

// Probe runs every check once without touching recorded state and returns
// the failures joined, checks in name order.
func (h *Checker) Probe(ctx context.Context) error {
	errs := make([]error, len(h.checks))
	var wg sync.WaitGroup
	for i, c := range h.checks {
		wg.Add(1)
		go func(i int, c Check) {
			defer wg.Done()
			if err := h.probe(ctx, c); err != nil {
				errs[i] = fmt.Errorf("%s: %w", c.Name, err)
			}
		}(i, c)
	}
	wg.Wait()
	return errors.Join(errs...)
}
