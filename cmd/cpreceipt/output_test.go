package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicpulse/receipts/pkg/client"
)

func init() { color.NoColor = true }

func TestPrintVerification(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printVerification(&buf, &client.Verification{
		ShortCode: "CP-7KQ2MXPA", Verified: true, ChainPosition: 3, ChainLength: 3,
	}, "text"))
	assert.Contains(t, buf.String(), "✓ OK")
	assert.Contains(t, buf.String(), "position 3 of 3")
	assert.Contains(t, buf.String(), "no successor")

	buf.Reset()
	require.NoError(t, printVerification(&buf, &client.Verification{
		ShortCode: "CP-7KQ2MXPA", Failure: "payload_mismatch", ChainPosition: 2, ChainLength: 9,
	}, "text"))
	assert.Contains(t, buf.String(), "✗ FAIL")
	assert.Contains(t, buf.String(), "payload_mismatch")
}

func TestPrintAudit_Broken(t *testing.T) {
	var buf bytes.Buffer
	at := int64(4)
	require.NoError(t, printAudit(&buf, &client.AuditReport{
		Intact: false, BrokenAt: &at, Failure: "prev_link_mismatch", Checked: 4,
	}, time.Second, "text"))
	assert.Contains(t, buf.String(), "position 5")
	assert.Contains(t, buf.String(), "prev_link_mismatch")
}

func TestPrintReceipt_JSON(t *testing.T) {
	var buf bytes.Buffer
	r := &client.Receipt{ReceiptID: "r1", ShortCode: "CP-7KQ2MXPA", ChainPosition: 1}
	require.NoError(t, printReceipt(&buf, r, "json"))

	var got client.Receipt
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "CP-7KQ2MXPA", got.ShortCode)
}

func TestPrintLedger_NoAnchor(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printLedger(&buf, &client.Ledger{Length: 0, HeadHash: "00"}, "text"))
	assert.Contains(t, buf.String(), "never")
}

func TestLooksLikeUUID(t *testing.T) {
	assert.True(t, looksLikeUUID("550e8400-e29b-41d4-a716-446655440000"))
	assert.False(t, looksLikeUUID("CP-7KQ2MXPA"))
}

func TestSeedComplaints_UseKnownIntents(t *testing.T) {
	known := map[string]bool{
		"water_outage": true, "electricity_outage": true, "garbage": true, "road": true,
		"sewage": true, "streetlight": true, "emergency": true, "other": true,
	}
	for _, c := range seedComplaints {
		assert.True(t, known[c.Intent], c.Intent)
	}
}
