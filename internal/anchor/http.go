package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/civicpulse/receipts/internal/notify"
)

// HTTPAnchorer POSTs checkpoints to a witness endpoint, signed with the same
// HMAC scheme as outgoing webhooks. The witness replies {"reference": "..."}.
type HTTPAnchorer struct {
	url        string
	secret     string
	httpClient *http.Client
}

// NewHTTPAnchorer creates an HTTPAnchorer.
func NewHTTPAnchorer(url, secret string) *HTTPAnchorer {
	return &HTTPAnchorer{
		url:        url,
		secret:     secret,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Anchor implements Anchorer.
func (a *HTTPAnchorer) Anchor(ctx context.Context, cp Checkpoint) (*Attestation, error) {
	body, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(notify.SignatureHeader, notify.Sign(body, a.secret))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anchor request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("anchor rejected: HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out struct {
		Reference string `json:"reference"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode anchor response: %w", err)
	}
	if out.Reference == "" {
		return nil, fmt.Errorf("anchor response carries no reference")
	}
	return &Attestation{
		Checkpoint: cp,
		Reference:  out.Reference,
		AnchoredAt: time.Now().UTC(),
	}, nil
}
