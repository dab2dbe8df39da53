// Package client provides the CivicPulse Go SDK for filing complaints and
// verifying receipts against a receiptd server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when the server has no receipt or submission for
// the given reference.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.StatusCode, e.Message)
}

// SubmitRequest is the payload for Submit.
type SubmitRequest struct {
	Intent    string   `json:"intent"`
	Text      string   `json:"text"`
	Priority  string   `json:"priority,omitempty"`
	Language  string   `json:"language,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Submission is the submission snapshot embedded in a receipt.
type Submission struct {
	ID     int64  `json:"id"`
	Intent string `json:"intent"`
	Text   string `json:"text"`
	Status string `json:"status"`
}

// Receipt is the citizen-facing proof of a filed complaint.
type Receipt struct {
	ReceiptID     string     `json:"receipt_id"`
	ReceiptHash   string     `json:"receipt_hash"`
	ShortCode     string     `json:"short_code"`
	CreatedAt     time.Time  `json:"created_at"`
	ChainPosition int64      `json:"chain_position"`
	Submission    Submission `json:"submission"`
}

// Verification is the server's answer to a receipt integrity check.
type Verification struct {
	ReceiptID          string  `json:"receipt_id"`
	ShortCode          string  `json:"short_code"`
	Verification       string  `json:"verification"`
	Verified           bool    `json:"verified"`
	Failure            string  `json:"failure,omitempty"`
	ChainPosition      int64   `json:"chain_position"`
	ChainLength        int64   `json:"chain_length"`
	ReceiptHash        string  `json:"receipt_hash"`
	PrevHash           *string `json:"prev_hash"`
	ForwardLinkChecked bool    `json:"forward_link_checked"`
}

// Anchor is the latest external attestation of the ledger head.
type Anchor struct {
	Length     int64     `json:"length"`
	HeadHash   string    `json:"head_hash"`
	Timestamp  time.Time `json:"timestamp"`
	Reference  string    `json:"reference"`
	AnchoredAt time.Time `json:"anchored_at"`
}

// Ledger is the public ledger summary.
type Ledger struct {
	Length   int64   `json:"length"`
	HeadHash string  `json:"head_hash"`
	Anchor   *Anchor `json:"anchor"`
}

// AuditReport is the result of an operator-triggered chain walk.
type AuditReport struct {
	From     int64  `json:"from"`
	Checked  int64  `json:"checked"`
	Length   int64  `json:"length"`
	Intact   bool   `json:"intact"`
	BrokenAt *int64 `json:"broken_at,omitempty"`
	Failure  string `json:"failure,omitempty"`
	HeadHash string `json:"head_hash"`
}

// Client is the CivicPulse SDK entry point.
type Client struct {
	base       string
	httpClient *http.Client
	cache      *receiptCache

	// guarded by mu
	mu          sync.Mutex
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithCacheTTL caches fetched receipts by id for ttl. Receipt content is
// immutable; only the embedded submission status can go stale.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) error {
		if ttl <= 0 {
			return fmt.Errorf("cache ttl must be positive, got %s", ttl)
		}
		c.cache = newReceiptCache(ttl)
		return nil
	}
}

// WithBearerToken attaches an operator token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// New creates a Client for the server at base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Submit files a complaint and returns its receipt.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*Receipt, error) {
	var r Receipt
	if err := c.call(ctx, http.MethodPost, "/api/v1/submissions", req, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetReceipt fetches a receipt by its id.
func (c *Client) GetReceipt(ctx context.Context, id string) (*Receipt, error) {
	if c.cache != nil {
		if r, ok := c.cache.get(id); ok {
			return r, nil
		}
	}
	var r Receipt
	if err := c.call(ctx, http.MethodGet, "/api/v1/receipts/"+url.PathEscape(id), nil, &r); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.set(id, &r)
	}
	return &r, nil
}

// GetByShortCode fetches a receipt by its short code, in any case and with or
// without the CP- prefix.
func (c *Client) GetByShortCode(ctx context.Context, code string) (*Receipt, error) {
	var r Receipt
	if err := c.call(ctx, http.MethodGet, "/api/v1/receipts/code/"+url.PathEscape(code), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Verify checks the receipt named by ref, a receipt id or short code.
// A tampered receipt is a successful call with Verified == false.
func (c *Client) Verify(ctx context.Context, ref string) (*Verification, error) {
	var v Verification
	if err := c.call(ctx, http.MethodGet, "/api/v1/verify/"+url.PathEscape(ref), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Head returns the public ledger summary.
func (c *Client) Head(ctx context.Context) (*Ledger, error) {
	var l Ledger
	if err := c.call(ctx, http.MethodGet, "/api/v1/ledger", nil, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// Audit asks the server to walk the whole chain. Requires an operator token.
func (c *Client) Audit(ctx context.Context) (*AuditReport, error) {
	var r AuditReport
	if err := c.call(ctx, http.MethodGet, "/api/v1/ledger/audit", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateStatus moves a submission to a new handling state. Requires an
// operator token.
func (c *Client) UpdateStatus(ctx context.Context, submissionID int64, status string) error {
	path := "/api/v1/submissions/" + strconv.FormatInt(submissionID, 10) + "/status"
	return c.call(ctx, http.MethodPatch, path, map[string]string{"status": status}, nil)
}

// Login exchanges the operator password for a token, stores it on the
// client for later calls and returns it.
func (c *Client) Login(ctx context.Context, operator, password string) (string, error) {
	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	body := map[string]string{"operator": operator, "password": password}
	if err := c.call(ctx, http.MethodPost, "/api/v1/auth/token", body, &resp); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if resp.AccessToken == "" {
		return "", errors.New("login: empty token in response")
	}
	c.mu.Lock()
	c.bearerToken = resp.AccessToken
	c.mu.Unlock()
	return resp.AccessToken, nil
}

func (c *Client) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bearerToken
}

// call sends reqBody as JSON (nil for none) and decodes the response into
// respBody (nil to discard it).
func (c *Client) call(ctx context.Context, method, path string, reqBody, respBody any) error {
	var bodyReader io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return err
	}
	if respBody == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, respBody); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do executes an HTTP request, attaching the Bearer token if present.
func (c *Client) do(req *http.Request) ([]byte, error) {
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 300 {
		return body, nil
	}

	var e struct {
		Error string `json:"error"`
	}
	msg := string(body)
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		msg = e.Error
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, msg)
	}
	return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
}

// --- simple in-memory receipt cache ---

type cacheEntry struct {
	receipt   *Receipt
	expiresAt time.Time
}

type receiptCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

func newReceiptCache(ttl time.Duration) *receiptCache {
	return &receiptCache{entries: make(map[string]*cacheEntry), ttl: ttl}
}

func (rc *receiptCache) get(key string) (*Receipt, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	e, ok := rc.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	cp := *e.receipt
	return &cp, true
}

func (rc *receiptCache) set(key string, r *Receipt) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	cp := *r
	rc.entries[key] = &cacheEntry{receipt: &cp, expiresAt: time.Now().Add(rc.ttl)}
}
