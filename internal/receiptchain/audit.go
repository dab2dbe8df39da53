package receiptchain

import (
	"context"
	"errors"
	"fmt"
)

// Audit-only failure kinds.
const (
	// FailureSequenceGap: sequences are not contiguous.
	FailureSequenceGap FailureKind = "sequence_gap"
	// FailurePrevLink: a link's prev_hash does not equal its predecessor's hash.
	FailurePrevLink FailureKind = "prev_link_mismatch"
	// FailureCheckpoint: the audited-from link is gone or rewritten, or the
	// ledger is now shorter than an earlier audit saw it.
	FailureCheckpoint FailureKind = "checkpoint_mismatch"
)

// AuditReport summarises a walk over the ledger.
type AuditReport struct {
	From     int64       `json:"from"`
	Checked  int64       `json:"checked"`
	Length   int64       `json:"length"`
	Intact   bool        `json:"intact"`
	BrokenAt *int64      `json:"broken_at,omitempty"`
	Failure  FailureKind `json:"failure,omitempty"`
	HeadHash string      `json:"head_hash"`
}

var errStopWalk = errors.New("stop walk")

// Audit walks every link after the checkpoint since, checking sequence
// contiguity, the genesis sentinel, each link's own hash and each back-link.
// Pass Tail{Hash: GenesisHash} for a full audit, or a previously audited tail
// to check only what was appended since. An incremental audit first confirms
// the checkpoint link still holds since.Hash, and afterwards that the ledger
// has not shrunk below what was audited. The walk stops at the first break.
func (v *Verifier) Audit(ctx context.Context, since Tail) (*AuditReport, error) {
	if since.Length < 0 {
		return nil, fmt.Errorf("invalid audit checkpoint length %d", since.Length)
	}
	if since.Length == 0 {
		since.Hash = GenesisHash
	}

	report := &AuditReport{
		From:     since.Length,
		Intact:   true,
		HeadHash: since.Hash,
	}
	expectSeq := since.Length
	expectPrev := since.Hash

	fail := func(seq int64, kind FailureKind) error {
		report.Intact = false
		report.BrokenAt = &seq
		report.Failure = kind
		return errStopWalk
	}

	if since.Length > 0 {
		seq := since.Length - 1
		anchor, err := v.store.GetBySequence(ctx, seq)
		switch {
		case errors.Is(err, ErrNotFound):
			_ = fail(seq, FailureCheckpoint)
		case err != nil:
			return nil, fmt.Errorf("read audit checkpoint: %w", err)
		case anchor.Hash != since.Hash:
			_ = fail(seq, FailureCheckpoint)
		}
		if !report.Intact {
			return v.finish(ctx, report, true)
		}
	}

	err := v.store.Walk(ctx, since.Length, func(l *Link) error {
		if l.Sequence != expectSeq {
			return fail(expectSeq, FailureSequenceGap)
		}
		if l.Sequence == 0 && l.PrevHash != GenesisHash {
			return fail(l.Sequence, FailureGenesisMismatch)
		}
		if l.PrevHash != expectPrev {
			return fail(l.Sequence, FailurePrevLink)
		}
		recomputed, err := ComputeHash(l.Payload, l.PrevHash)
		switch {
		case errors.Is(err, ErrUnsupportedVersion):
			return fail(l.Sequence, FailureUnsupportedVersion)
		case err != nil:
			return fail(l.Sequence, FailurePayloadMismatch)
		case recomputed != l.Hash:
			return fail(l.Sequence, FailurePayloadMismatch)
		}
		report.Checked++
		report.HeadHash = l.Hash
		expectSeq++
		expectPrev = l.Hash
		return nil
	})
	if err != nil && !errors.Is(err, errStopWalk) {
		return nil, err
	}
	report.Length = since.Length + report.Checked
	if !report.Intact {
		return report, nil
	}
	return v.finish(ctx, report, false)
}

// finish compares the report with the store's current tail. Links appended
// during the walk are fine; a tail shorter than the audited length means
// links were removed. When the checkpoint itself failed, Length reports the
// real tail instead of the stale checkpoint.
func (v *Verifier) finish(ctx context.Context, report *AuditReport, checkpointFailed bool) (*AuditReport, error) {
	tail, err := v.store.Tail(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ledger tail: %w", err)
	}
	if checkpointFailed {
		report.Length = tail.Length
		return report, nil
	}
	if tail.Length < report.Length {
		seq := tail.Length
		report.Intact = false
		report.BrokenAt = &seq
		report.Failure = FailureCheckpoint
		report.Length = tail.Length
	}
	return report, nil
}
