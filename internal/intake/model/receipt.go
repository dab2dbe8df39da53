package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/civicpulse/receipts/internal/receiptchain"
)

// SubmissionView is the submission snapshot embedded in a receipt. Intent and
// text come from the hashed payload; status is read at response time.
type SubmissionView struct {
	ID     int64  `json:"id"`
	Intent string `json:"intent"`
	Text   string `json:"text"`
	Status Status `json:"status"`
}

// Receipt is what a citizen takes home.
type Receipt struct {
	ReceiptID     uuid.UUID      `json:"receipt_id"`
	ReceiptHash   string         `json:"receipt_hash"`
	ShortCode     string         `json:"short_code"`
	CreatedAt     time.Time      `json:"created_at"`
	ChainPosition int64          `json:"chain_position"`
	Submission    SubmissionView `json:"submission"`
}

// NewReceipt builds the API view of a ledger link.
func NewReceipt(l *receiptchain.Link, status Status) *Receipt {
	return &Receipt{
		ReceiptID:     l.ReceiptID(),
		ReceiptHash:   l.Hash,
		ShortCode:     receiptchain.FormatShortCode(l.ShortCode()),
		CreatedAt:     l.Payload.CreatedAt(),
		ChainPosition: l.Position(),
		Submission: SubmissionView{
			ID:     l.Payload.SubmissionID,
			Intent: l.Payload.Intent,
			Text:   l.Payload.Text,
			Status: status,
		},
	}
}

// Verification outcomes as shown to citizens.
const (
	VerificationOK   = "OK"
	VerificationFail = "FAIL"
)

// VerificationResult is the public answer to "is my receipt intact?".
type VerificationResult struct {
	ReceiptID          uuid.UUID                `json:"receipt_id"`
	ShortCode          string                   `json:"short_code"`
	Verification       string                   `json:"verification"`
	Verified           bool                     `json:"verified"`
	Failure            receiptchain.FailureKind `json:"failure,omitempty"`
	ChainPosition      int64                    `json:"chain_position"`
	ChainLength        int64                    `json:"chain_length"`
	ReceiptHash        string                   `json:"receipt_hash"`
	PrevHash           *string                  `json:"prev_hash"`
	ForwardLinkChecked bool                     `json:"forward_link_checked"`
}

// NewVerificationResult converts a verifier result. prev_hash is null for
// the first link in the chain unless that link failed the genesis check, in
// which case the stored value is shown.
func NewVerificationResult(r *receiptchain.Result) *VerificationResult {
	out := &VerificationResult{
		ReceiptID:          r.ReceiptID,
		ShortCode:          receiptchain.FormatShortCode(r.ShortCode),
		Verification:       VerificationFail,
		Verified:           r.Verified,
		Failure:            r.Failure,
		ChainPosition:      r.Position,
		ChainLength:        r.Length,
		ReceiptHash:        r.ReceiptHash,
		ForwardLinkChecked: r.ForwardLinkChecked,
	}
	if r.Verified {
		out.Verification = VerificationOK
	}
	if !r.IsGenesis() || r.Failure == receiptchain.FailureGenesisMismatch {
		prev := r.PrevHash
		out.PrevHash = &prev
	}
	return out
}

// LedgerHead summarises the chain for the public ledger endpoint.
type LedgerHead struct {
	Length   int64  `json:"length"`
	HeadHash string `json:"head_hash"`
}
