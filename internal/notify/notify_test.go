package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/civicpulse/receipts/internal/notify"
)

func TestNoopPublisher(t *testing.T) {
	p := notify.NewNoopPublisher(zap.NewNop())
	assert.NoError(t, p.Publish(context.Background(), notify.NewEvent(notify.EventReceiptIssued, nil)))
}

func TestWebhookPublisher_DeliversSignedEvent(t *testing.T) {
	const secret = "hook-secret"
	var (
		mu   sync.Mutex
		got  notify.Event
		sigs []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		defer mu.Unlock()
		sigs = append(sigs, r.Header.Get(notify.SignatureHeader))
		assert.True(t, notify.VerifySignature(body, secret, r.Header.Get(notify.SignatureHeader)))
		assert.Equal(t, notify.EventReceiptIssued, r.Header.Get("X-CivicPulse-Event"))
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := notify.NewWebhookPublisher([]string{srv.URL, srv.URL}, secret, zap.NewNop())
	var ok atomic.Int32
	p.SetMetricsRecorder(func(success bool) {
		if success {
			ok.Add(1)
		}
	})

	ev := notify.NewEvent(notify.EventReceiptIssued, map[string]string{"short_code": "CP-7KQ2MXPA"})
	require.NoError(t, p.Publish(context.Background(), ev))
	p.Wait()

	assert.Equal(t, int32(2), ok.Load())
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, sigs, 2)
	assert.Equal(t, "CP-7KQ2MXPA", got.Payload["short_code"])
}

func TestWebhookPublisher_RetriesThenGivesUp(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := notify.NewWebhookPublisher([]string{srv.URL}, "s", zap.NewNop())
	p.SetRetryDelays([]time.Duration{0, time.Millisecond, time.Millisecond})
	var failures atomic.Int32
	p.SetMetricsRecorder(func(success bool) {
		if !success {
			failures.Add(1)
		}
	})

	require.NoError(t, p.Publish(context.Background(), notify.NewEvent(notify.EventReceiptIssued, nil)))
	p.Wait()

	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, int32(3), failures.Load())
}

func TestWebhookPublisher_SurvivesCancelledRequestContext(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	p := notify.NewWebhookPublisher([]string{srv.URL}, "s", zap.NewNop())
	require.NoError(t, p.Publish(ctx, notify.NewEvent(notify.EventReceiptIssued, nil)))
	cancel()
	p.Wait()

	assert.Equal(t, int32(1), hits.Load())
}

func TestSign(t *testing.T) {
	sig := notify.Sign([]byte("body"), "k")
	assert.Regexp(t, `^sha256=[0-9a-f]{64}$`, sig)
	assert.False(t, notify.VerifySignature([]byte("body!"), "k", sig))
}

type fakeConn struct {
	subject string
	data    []byte
	err     error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.subject, f.data = subject, data
	return f.err
}

func TestNATSPublisher(t *testing.T) {
	conn := &fakeConn{}
	p := notify.NewNATSPublisher(conn, "civicpulse.receipts.issued", zap.NewNop())

	ev := notify.NewEvent(notify.EventReceiptIssued, map[string]string{"receipt_id": "abc"})
	require.NoError(t, p.Publish(context.Background(), ev))
	assert.Equal(t, "civicpulse.receipts.issued", conn.subject)

	var decoded notify.Event
	require.NoError(t, json.Unmarshal(conn.data, &decoded))
	assert.Equal(t, "abc", decoded.Payload["receipt_id"])

	conn.err = errors.New("connection closed")
	assert.Error(t, p.Publish(context.Background(), ev))
}
