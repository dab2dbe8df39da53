package receiptchain_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicpulse/receipts/internal/receiptchain"
)

var fullAudit = receiptchain.Tail{Hash: receiptchain.GenesisHash}

func TestAudit_EmptyLedger(t *testing.T) {
	v := receiptchain.NewVerifier(receiptchain.NewMemoryStore(nil))
	report, err := v.Audit(ctx, fullAudit)
	require.NoError(t, err)
	assert.True(t, report.Intact)
	assert.Zero(t, report.Checked)
	assert.Equal(t, receiptchain.GenesisHash, report.HeadHash)
}

func TestAudit_IntactChain(t *testing.T) {
	s, links := seedStore(t, 10)
	v := receiptchain.NewVerifier(s)

	report, err := v.Audit(ctx, fullAudit)
	require.NoError(t, err)
	assert.True(t, report.Intact)
	assert.Equal(t, int64(10), report.Checked)
	assert.Equal(t, int64(10), report.Length)
	assert.Equal(t, links[9].Hash, report.HeadHash)
	assert.Nil(t, report.BrokenAt)
}

func TestAudit_Incremental(t *testing.T) {
	s, links := seedStore(t, 4)
	v := receiptchain.NewVerifier(s)

	checkpoint, err := s.Tail(ctx)
	require.NoError(t, err)
	for i := 5; i <= 7; i++ {
		_, err := s.Append(ctx, draft(i))
		require.NoError(t, err)
	}

	report, err := v.Audit(ctx, checkpoint)
	require.NoError(t, err)
	assert.True(t, report.Intact)
	assert.Equal(t, int64(4), report.From)
	assert.Equal(t, int64(3), report.Checked)
	assert.Equal(t, int64(7), report.Length)

	// A checkpoint that disagrees with the ledger names the checkpoint link.
	bad := receiptchain.Tail{Length: 4, Hash: links[0].Hash}
	report, err = v.Audit(ctx, bad)
	require.NoError(t, err)
	assert.False(t, report.Intact)
	assert.Equal(t, receiptchain.FailureCheckpoint, report.Failure)
	require.NotNil(t, report.BrokenAt)
	assert.Equal(t, int64(3), *report.BrokenAt)
	assert.Equal(t, int64(7), report.Length)
}

func auditedCheckpoint(t *testing.T, v *receiptchain.Verifier) receiptchain.Tail {
	t.Helper()
	report, err := v.Audit(ctx, fullAudit)
	require.NoError(t, err)
	require.True(t, report.Intact)
	return receiptchain.Tail{Length: report.Length, Hash: report.HeadHash}
}

func TestAudit_IncrementalDetectsExcisionBeforeCheckpoint(t *testing.T) {
	s, _ := seedStore(t, 5)
	v := receiptchain.NewVerifier(s)
	checkpoint := auditedCheckpoint(t, v)

	s.Excise(4)
	s.Excise(1)

	report, err := v.Audit(ctx, checkpoint)
	require.NoError(t, err)
	assert.False(t, report.Intact)
	assert.Equal(t, receiptchain.FailureCheckpoint, report.Failure)
	require.NotNil(t, report.BrokenAt)
	assert.Equal(t, int64(4), *report.BrokenAt)
	assert.Equal(t, int64(3), report.Length, "length comes from the real tail")
	assert.Zero(t, report.Checked)
}

func TestAudit_IncrementalDetectsExcisionRefilledByAppends(t *testing.T) {
	s, _ := seedStore(t, 5)
	v := receiptchain.NewVerifier(s)
	checkpoint := auditedCheckpoint(t, v)

	// The ledger regains its old length, but link 4 is now a different receipt.
	s.Excise(2)
	_, err := s.Append(ctx, draft(6))
	require.NoError(t, err)

	report, err := v.Audit(ctx, checkpoint)
	require.NoError(t, err)
	assert.False(t, report.Intact)
	assert.Equal(t, receiptchain.FailureCheckpoint, report.Failure)
}

func TestAudit_IncrementalDetectsRewrittenCheckpoint(t *testing.T) {
	s, _ := seedStore(t, 4)
	v := receiptchain.NewVerifier(s)
	checkpoint := auditedCheckpoint(t, v)

	s.Tamper(3, func(l *receiptchain.Link) {
		l.Payload.Text = "resolved"
		l.Hash, _ = receiptchain.ComputeHash(l.Payload, l.PrevHash)
	})

	report, err := v.Audit(ctx, checkpoint)
	require.NoError(t, err)
	assert.False(t, report.Intact)
	assert.Equal(t, receiptchain.FailureCheckpoint, report.Failure)
	assert.Equal(t, int64(3), *report.BrokenAt)
}

// shrinkingStore reports a tail shorter than the links it walks, as when
// rows are deleted while an audit is running.
type shrinkingStore struct {
	*receiptchain.MemoryStore
	by int64
}

func (s *shrinkingStore) Tail(c context.Context) (receiptchain.Tail, error) {
	tail, err := s.MemoryStore.Tail(c)
	tail.Length -= s.by
	return tail, err
}

func TestAudit_DetectsLedgerShrinkingDuringWalk(t *testing.T) {
	s, _ := seedStore(t, 6)
	v := receiptchain.NewVerifier(&shrinkingStore{MemoryStore: s, by: 2})

	report, err := v.Audit(ctx, fullAudit)
	require.NoError(t, err)
	assert.False(t, report.Intact)
	assert.Equal(t, receiptchain.FailureCheckpoint, report.Failure)
	require.NotNil(t, report.BrokenAt)
	assert.Equal(t, int64(4), *report.BrokenAt)
	assert.Equal(t, int64(4), report.Length)
}

func TestAudit_StopsAtPayloadTamper(t *testing.T) {
	s, _ := seedStore(t, 6)
	v := receiptchain.NewVerifier(s)
	s.Tamper(3, func(l *receiptchain.Link) { l.Payload.SubmissionID = 999 })

	report, err := v.Audit(ctx, fullAudit)
	require.NoError(t, err)
	assert.False(t, report.Intact)
	assert.Equal(t, receiptchain.FailurePayloadMismatch, report.Failure)
	require.NotNil(t, report.BrokenAt)
	assert.Equal(t, int64(3), *report.BrokenAt)
	assert.Equal(t, int64(3), report.Checked)
}

func TestAudit_DetectsExcision(t *testing.T) {
	s, _ := seedStore(t, 6)
	v := receiptchain.NewVerifier(s)
	s.Excise(2)

	report, err := v.Audit(ctx, fullAudit)
	require.NoError(t, err)
	assert.False(t, report.Intact)
	assert.Equal(t, receiptchain.FailurePrevLink, report.Failure)
	assert.Equal(t, int64(2), *report.BrokenAt)
}

func TestAudit_NegativeCheckpoint(t *testing.T) {
	v := receiptchain.NewVerifier(receiptchain.NewMemoryStore(nil))
	_, err := v.Audit(ctx, receiptchain.Tail{Length: -1})
	assert.Error(t, err)
}
