package health_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/civicpulse/receipts/internal/health"
	"github.com/civicpulse/receipts/internal/receiptchain"
)

func appendN(t *testing.T, s receiptchain.Store, from, n int) {
	t.Helper()
	for i := from; i < from+n; i++ {
		_, err := s.Append(context.Background(), receiptchain.Draft{
			SubmissionID: int64(i),
			Intent:       "garbage",
			Text:         fmt.Sprintf("bins full (%d)", i),
			CreatedAt:    time.Date(2026, 10, 1, 9, 0, i%60, 0, time.UTC),
		})
		require.NoError(t, err)
	}
}

func TestLedgerTail(t *testing.T) {
	s := receiptchain.NewMemoryStore(nil)
	assert.NoError(t, health.LedgerTail(s).Probe(context.Background()))
}

func TestLedgerIntegrity_Incremental(t *testing.T) {
	s := receiptchain.NewMemoryStore(nil)
	check := health.LedgerIntegrity(receiptchain.NewVerifier(s))
	assert.Equal(t, 1, check.FailThreshold)

	require.NoError(t, check.Probe(context.Background()), "empty ledger is intact")

	appendN(t, s, 1, 5)
	require.NoError(t, check.Probe(context.Background()))

	appendN(t, s, 6, 3)
	require.NoError(t, check.Probe(context.Background()))
}

func TestLedgerIntegrity_InChecker(t *testing.T) {
	s := receiptchain.NewMemoryStore(nil)
	appendN(t, s, 1, 3)

	checker := health.New([]health.Check{
		health.LedgerTail(s),
		health.LedgerIntegrity(receiptchain.NewVerifier(s)),
	}, health.Config{}, zap.NewNop())

	require.NoError(t, checker.Probe(context.Background()))
	assert.Len(t, checker.Report().Checks, 2)
}

// rewrittenStore serves every link at seq with its text replaced, as if the
// row had been edited in the database.
type rewrittenStore struct {
	*receiptchain.MemoryStore
	seq int64
}

func (s *rewrittenStore) Walk(ctx context.Context, from int64, fn func(*receiptchain.Link) error) error {
	return s.MemoryStore.Walk(ctx, from, func(l *receiptchain.Link) error {
		if l.Sequence == s.seq {
			l.Payload.Text = "resolved, nothing to see"
		}
		return fn(l)
	})
}

func TestLedgerIntegrity_DetectsRewrite(t *testing.T) {
	mem := receiptchain.NewMemoryStore(nil)
	appendN(t, mem, 1, 4)
	check := health.LedgerIntegrity(receiptchain.NewVerifier(&rewrittenStore{MemoryStore: mem, seq: 1}))

	err := check.Probe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain broken at sequence 1")

	// The checkpoint never moves past the break.
	appendN(t, mem, 5, 1)
	assert.Error(t, check.Probe(context.Background()))
}

// truncatedStore hides every link at or after keep once keep is non-negative,
// as if rows had been deleted from the end of the ledger.
type truncatedStore struct {
	*receiptchain.MemoryStore
	keep int64
}

func (s *truncatedStore) GetBySequence(ctx context.Context, seq int64) (*receiptchain.Link, error) {
	if s.keep >= 0 && seq >= s.keep {
		return nil, receiptchain.ErrNotFound
	}
	return s.MemoryStore.GetBySequence(ctx, seq)
}

func (s *truncatedStore) Tail(ctx context.Context) (receiptchain.Tail, error) {
	if s.keep < 0 {
		return s.MemoryStore.Tail(ctx)
	}
	if s.keep == 0 {
		return receiptchain.Tail{Hash: receiptchain.GenesisHash}, nil
	}
	l, err := s.MemoryStore.GetBySequence(ctx, s.keep-1)
	if err != nil {
		return receiptchain.Tail{}, err
	}
	return receiptchain.Tail{Length: s.keep, Hash: l.Hash}, nil
}

func (s *truncatedStore) Walk(ctx context.Context, from int64, fn func(*receiptchain.Link) error) error {
	return s.MemoryStore.Walk(ctx, from, func(l *receiptchain.Link) error {
		if s.keep >= 0 && l.Sequence >= s.keep {
			return nil
		}
		return fn(l)
	})
}

func TestLedgerIntegrity_DetectsLostLinksAfterCheckpoint(t *testing.T) {
	mem := receiptchain.NewMemoryStore(nil)
	appendN(t, mem, 1, 5)
	store := &truncatedStore{MemoryStore: mem, keep: -1}
	check := health.LedgerIntegrity(receiptchain.NewVerifier(store))

	require.NoError(t, check.Probe(context.Background()))

	// Two links vanish from the end; nothing new needs walking.
	store.keep = 3
	err := check.Probe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain broken at sequence 4")
	assert.Contains(t, err.Error(), string(receiptchain.FailureCheckpoint))

	// The broken state sticks.
	assert.Error(t, check.Probe(context.Background()))
}

func TestLedgerIntegrity_ReadinessFailsAfterTruncation(t *testing.T) {
	mem := receiptchain.NewMemoryStore(nil)
	appendN(t, mem, 1, 4)
	store := &truncatedStore{MemoryStore: mem, keep: -1}
	checker := health.New([]health.Check{
		health.LedgerTail(store),
		health.LedgerIntegrity(receiptchain.NewVerifier(store)),
	}, health.Config{}, zap.NewNop())

	checker.CheckAll(context.Background())
	require.True(t, checker.Healthy())

	store.keep = 2
	checker.CheckAll(context.Background())
	assert.False(t, checker.Healthy())
	assert.Equal(t, health.StateDegraded, checker.Report().Checks["ledger_integrity"].State)
	assert.Error(t, checker.Probe(context.Background()))
}
