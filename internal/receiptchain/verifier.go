package receiptchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// FailureKind classifies a failed verification so operators can tell payload
// tampering apart from chain splicing.
type FailureKind string

const (
	FailureNone FailureKind = ""
	// FailurePayloadMismatch: the recomputed hash differs from the stored hash.
	FailurePayloadMismatch FailureKind = "payload_mismatch"
	// FailureGenesisMismatch: the first link does not record GenesisHash.
	FailureGenesisMismatch FailureKind = "genesis_mismatch"
	// FailureForwardLink: the successor does not record this link's hash,
	// or is missing although the tail says it exists.
	FailureForwardLink FailureKind = "forward_link_mismatch"
	// FailureUnsupportedVersion: the stored encoding version is unknown.
	FailureUnsupportedVersion FailureKind = "unsupported_version"
	// FailureOutOfRange: the link's sequence lies beyond the reported tail.
	FailureOutOfRange FailureKind = "position_out_of_range"
)

// Ref identifies a receipt by id or by short code.
type Ref struct {
	ID   uuid.UUID
	Code string
}

// ParseRef treats input that parses as a UUID as a receipt id and everything
// else as a short code.
func ParseRef(input string) (Ref, error) {
	if id, err := uuid.Parse(input); err == nil {
		return Ref{ID: id}, nil
	}
	code, err := NormalizeShortCode(input)
	if err != nil {
		return Ref{}, err
	}
	return Ref{Code: code}, nil
}

// Result is the verdict for one receipt. A failed verification is a normal
// Result with Verified == false, never an error.
type Result struct {
	ReceiptID          uuid.UUID   `json:"receipt_id"`
	ShortCode          string      `json:"short_code"`
	Verified           bool        `json:"verified"`
	Failure            FailureKind `json:"failure,omitempty"`
	ReceiptHash        string      `json:"receipt_hash"`
	RecomputedHash     string      `json:"recomputed_hash,omitempty"`
	PrevHash           string      `json:"prev_hash"`
	Position           int64       `json:"chain_position"`
	Length             int64       `json:"chain_length"`
	ForwardLinkChecked bool        `json:"forward_link_checked"`
}

// IsGenesis reports whether the verified link is the first in the chain.
func (r *Result) IsGenesis() bool { return r.Position == 1 }

// Verifier recomputes hashes over links held by a Store.
type Verifier struct {
	store Store
}

// NewVerifier creates a Verifier reading from store.
func NewVerifier(store Store) *Verifier {
	return &Verifier{store: store}
}

// Resolve looks up the link a Ref points at.
func (v *Verifier) Resolve(ctx context.Context, ref Ref) (*Link, error) {
	if ref.ID != uuid.Nil {
		return v.store.GetByID(ctx, ref.ID)
	}
	return v.store.GetByShortCode(ctx, ref.Code)
}

// Verify resolves ref and checks the link's own hash, the genesis sentinel
// when it is the first link, and the successor's back-reference when it is
// not the tail. Lookup and storage errors are returned as errors; integrity
// failures are reported in the Result.
func (v *Verifier) Verify(ctx context.Context, ref Ref) (*Result, error) {
	link, err := v.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return v.VerifyLink(ctx, link)
}

// VerifyLink verifies an already resolved link.
func (v *Verifier) VerifyLink(ctx context.Context, link *Link) (*Result, error) {
	tail, err := v.store.Tail(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ledger tail: %w", err)
	}

	res := &Result{
		ReceiptID:   link.ReceiptID(),
		ShortCode:   link.ShortCode(),
		ReceiptHash: link.Hash,
		PrevHash:    link.PrevHash,
		Position:    link.Position(),
		Length:      tail.Length,
	}

	if link.Sequence < 0 || link.Sequence >= tail.Length {
		res.Failure = FailureOutOfRange
		return res, nil
	}

	if link.Sequence == 0 && link.PrevHash != GenesisHash {
		res.Failure = FailureGenesisMismatch
		return res, nil
	}

	recomputed, err := ComputeHash(link.Payload, link.PrevHash)
	switch {
	case errors.Is(err, ErrUnsupportedVersion):
		res.Failure = FailureUnsupportedVersion
		return res, nil
	case errors.Is(err, ErrMalformedHash):
		res.Failure = FailurePayloadMismatch
		return res, nil
	case err != nil:
		return nil, err
	}
	res.RecomputedHash = recomputed
	if recomputed != link.Hash {
		res.Failure = FailurePayloadMismatch
		return res, nil
	}

	if link.Sequence < tail.Length-1 {
		res.ForwardLinkChecked = true
		next, err := v.store.GetBySequence(ctx, link.Sequence+1)
		switch {
		case errors.Is(err, ErrNotFound):
			res.Failure = FailureForwardLink
			return res, nil
		case err != nil:
			return nil, fmt.Errorf("read successor link: %w", err)
		}
		if next.PrevHash != link.Hash {
			res.Failure = FailureForwardLink
			return res, nil
		}
	}

	res.Verified = true
	return res, nil
}
