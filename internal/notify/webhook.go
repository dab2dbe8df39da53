package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-CivicPulse-Signature"

// WebhookPublisher POSTs each event to a fixed set of URLs, signing the body
// with a shared secret. Deliveries run in background goroutines with retries.
type WebhookPublisher struct {
	urls       []string
	secret     string
	httpClient *http.Client
	delays     []time.Duration
	onMetrics  MetricsRecorder
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// NewWebhookPublisher creates a WebhookPublisher.
func NewWebhookPublisher(urls []string, secret string, logger *zap.Logger) *WebhookPublisher {
	return &WebhookPublisher{
		urls:       urls,
		secret:     secret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		// Retry with exponential backoff: 1s, 5s.
		delays: []time.Duration{0, 1 * time.Second, 5 * time.Second},
		logger: logger,
	}
}

// SetMetricsRecorder configures the metrics callback.
func (w *WebhookPublisher) SetMetricsRecorder(fn MetricsRecorder) {
	w.onMetrics = fn
}

// SetRetryDelays replaces the per-attempt delays; len(delays) is the attempt count.
func (w *WebhookPublisher) SetRetryDelays(delays []time.Duration) {
	w.delays = delays
}

// Publish starts one delivery per URL and returns immediately.
func (w *WebhookPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	signature := Sign(body, w.secret)

	// Deliveries outlive the request that triggered them.
	ctx = context.WithoutCancel(ctx)
	for _, url := range w.urls {
		w.wg.Add(1)
		go func(url string) {
			defer w.wg.Done()
			w.deliver(ctx, url, e.Type, body, signature)
		}(url)
	}
	return nil
}

// Wait blocks until all in-flight deliveries have finished.
func (w *WebhookPublisher) Wait() { w.wg.Wait() }

func (w *WebhookPublisher) deliver(ctx context.Context, url, eventType string, body []byte, signature string) {
	for attempt, delay := range w.delays {
		if delay > 0 {
			time.Sleep(delay)
		}

		success, errMsg := w.doDelivery(ctx, url, eventType, body, signature)
		if w.onMetrics != nil {
			w.onMetrics(success)
		}
		if success {
			return
		}

		w.logger.Warn("webhook: delivery failed",
			zap.String("url", url),
			zap.String("event", eventType),
			zap.Int("attempt", attempt+1),
			zap.String("error", errMsg),
		)
	}
}

func (w *WebhookPublisher) doDelivery(ctx context.Context, url, eventType string, body []byte, signature string) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CivicPulse-Event", eventType)
	req.Header.Set(SignatureHeader, signature)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return false, err.Error()
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return true, ""
}

// Sign computes the "sha256=<hex>" HMAC signature of body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature is the HMAC of body under secret.
func VerifySignature(body []byte, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(body, secret)), []byte(signature))
}
