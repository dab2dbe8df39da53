package model_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/civicpulse/receipts/internal/intake/model"
	"github.com/civicpulse/receipts/internal/receiptchain"
)

func TestIntentValid(t *testing.T) {
	if !model.IntentWaterOutage.Valid() || !model.IntentOther.Valid() {
		t.Error("known intents must be valid")
	}
	if model.Intent("parking").Valid() {
		t.Error("unknown intent must be invalid")
	}
}

func TestStatusValid(t *testing.T) {
	if !model.StatusResolved.Valid() {
		t.Error("resolved must be valid")
	}
	if model.StatusWithdrawn.Valid() {
		t.Error("withdrawn is display-only and must not be storable")
	}
}

func TestNewVerificationResult_genesisHasNullPrev(t *testing.T) {
	r := &receiptchain.Result{
		ReceiptID: uuid.New(), ShortCode: "7KQ2MXPA", Verified: true,
		PrevHash: receiptchain.GenesisHash, Position: 1, Length: 1,
	}
	out := model.NewVerificationResult(r)
	if out.PrevHash != nil {
		t.Errorf("genesis prev_hash: got %q, want null", *out.PrevHash)
	}
	if out.Verification != model.VerificationOK {
		t.Errorf("verification: got %q", out.Verification)
	}
	if out.ShortCode != "CP-7KQ2MXPA" {
		t.Errorf("short code display form: got %q", out.ShortCode)
	}

	r.Position, r.Verified, r.PrevHash = 2, false, "ab"
	out = model.NewVerificationResult(r)
	if out.PrevHash == nil || *out.PrevHash != "ab" {
		t.Errorf("non-genesis prev_hash: got %v", out.PrevHash)
	}
	if out.Verification != model.VerificationFail {
		t.Errorf("verification: got %q", out.Verification)
	}
}

func TestNewReceipt(t *testing.T) {
	created := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	l := &receiptchain.Link{
		Sequence: 4,
		Payload: receiptchain.Payload{
			ReceiptID: uuid.New(), ShortCode: "7KQ2MXPA", SubmissionID: 9,
			Intent: "garbage", Text: "bins full", CreatedAtMs: created.UnixMilli(),
		},
		Hash: "h",
	}
	rc := model.NewReceipt(l, model.StatusPending)
	if rc.ChainPosition != 5 {
		t.Errorf("chain position: got %d, want 5", rc.ChainPosition)
	}
	if !rc.CreatedAt.Equal(created) {
		t.Errorf("created_at: got %v", rc.CreatedAt)
	}
	if rc.Submission.ID != 9 || rc.Submission.Status != model.StatusPending {
		t.Errorf("submission view: got %+v", rc.Submission)
	}
}

func TestNewVerificationResult_genesisMismatchShowsStoredPrev(t *testing.T) {
	stored := "ab" + receiptchain.GenesisHash[2:]
	out := model.NewVerificationResult(&receiptchain.Result{
		ReceiptID: uuid.New(), ShortCode: "7KQ2MXPA",
		Failure: receiptchain.FailureGenesisMismatch, PrevHash: stored,
		Position: 1, Length: 3,
	})
	if out.PrevHash == nil || *out.PrevHash != stored {
		t.Fatalf("genesis mismatch prev_hash: got %v, want %q", out.PrevHash, stored)
	}
	if out.Verified || out.Verification != model.VerificationFail {
		t.Errorf("verdict: got %q", out.Verification)
	}
}
