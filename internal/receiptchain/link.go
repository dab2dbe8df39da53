package receiptchain

import (
	"github.com/google/uuid"
)

// GenesisHash is the PrevHash recorded by the first link (sequence 0).
// No stored value may stand in for it: the verifier compares against this constant.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Link is one ledger entry binding a receipt's payload to its predecessor.
type Link struct {
	Sequence int64   `json:"sequence_index"`
	Payload  Payload `json:"payload"`
	PrevHash string  `json:"prev_hash"`
	Hash     string  `json:"hash"`
}

// ReceiptID is shorthand for l.Payload.ReceiptID.
func (l *Link) ReceiptID() uuid.UUID { return l.Payload.ReceiptID }

// ShortCode is shorthand for l.Payload.ShortCode.
func (l *Link) ShortCode() string { return l.Payload.ShortCode }

// Position is the 1-based chain position shown to citizens.
func (l *Link) Position() int64 { return l.Sequence + 1 }

func (l *Link) clone() *Link {
	cp := *l
	return &cp
}

// Tail describes the head of the ledger.
type Tail struct {
	// Length is the number of links; the next append gets Sequence == Length.
	Length int64 `json:"length"`
	// Hash is the head link's hash, or GenesisHash when the ledger is empty.
	Hash string `json:"head_hash"`
}

// sealLink builds and hashes the link that follows tail.
func sealLink(tail Tail, id uuid.UUID, code string, d Draft) (*Link, error) {
	l := &Link{
		Sequence: tail.Length,
		Payload: Payload{
			Version:      CurrentVersion,
			ReceiptID:    id,
			ShortCode:    code,
			SubmissionID: d.SubmissionID,
			Intent:       d.Intent,
			Text:         d.Text,
			CreatedAtMs:  d.CreatedAt.UnixMilli(),
		},
		PrevHash: tail.Hash,
	}
	h, err := ComputeHash(l.Payload, l.PrevHash)
	if err != nil {
		return nil, err
	}
	l.Hash = h
	return l, nil
}
