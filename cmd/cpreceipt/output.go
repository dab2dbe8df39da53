package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/civicpulse/receipts/pkg/client"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReceipt(w io.Writer, r *client.Receipt, format string) error {
	if format == "json" {
		return writeJSON(w, r)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Short code:\t%s\n", color.New(color.Bold).Sprint(r.ShortCode))
	fmt.Fprintf(tw, "Receipt ID:\t%s\n", r.ReceiptID)
	fmt.Fprintf(tw, "Filed:\t%s\n", r.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "Chain position:\t#%d\n", r.ChainPosition)
	fmt.Fprintf(tw, "Hash:\t%s\n", r.ReceiptHash)
	fmt.Fprintf(tw, "Intent:\t%s\n", r.Submission.Intent)
	fmt.Fprintf(tw, "Status:\t%s\n", r.Submission.Status)
	if r.Submission.Text != "" {
		fmt.Fprintf(tw, "Text:\t%s\n", r.Submission.Text)
	}
	return tw.Flush()
}

func printVerification(w io.Writer, v *client.Verification, format string) error {
	if format == "json" {
		return writeJSON(w, v)
	}
	if v.Verified {
		fmt.Fprintf(w, "%s %s  position %d of %d\n",
			color.GreenString("✓ OK  "), v.ShortCode, v.ChainPosition, v.ChainLength)
	} else {
		fmt.Fprintf(w, "%s %s  position %d of %d  (%s)\n",
			color.RedString("✗ FAIL"), v.ShortCode, v.ChainPosition, v.ChainLength, v.Failure)
	}
	if !v.ForwardLinkChecked && v.Verified {
		fmt.Fprintln(w, "        latest receipt; no successor to confirm it yet")
	}
	return nil
}

func printVerifyError(w io.Writer, ref string, err error) {
	fmt.Fprintf(w, "%s %s  %v\n", color.YellowString("? ERR "), ref, err)
}

func printLedger(w io.Writer, l *client.Ledger, format string) error {
	if format == "json" {
		return writeJSON(w, l)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Length:\t%d\n", l.Length)
	fmt.Fprintf(tw, "Head hash:\t%s\n", l.HeadHash)
	if l.Anchor != nil {
		fmt.Fprintf(tw, "Anchored:\t%d links at %s\n", l.Anchor.Length, l.Anchor.AnchoredAt.Format(time.RFC3339))
		fmt.Fprintf(tw, "Reference:\t%s\n", l.Anchor.Reference)
	} else {
		fmt.Fprintf(tw, "Anchored:\tnever\n")
	}
	return tw.Flush()
}

func printAudit(w io.Writer, r *client.AuditReport, took time.Duration, format string) error {
	if format == "json" {
		return writeJSON(w, r)
	}
	if r.Intact {
		fmt.Fprintf(w, "%s %d link(s) checked, ledger length %d (%s)\n",
			color.GreenString("✓ Ledger intact:"), r.Checked, r.Length, took.Round(time.Millisecond))
		fmt.Fprintf(w, "  head %s\n", r.HeadHash)
		return nil
	}
	at := "?"
	if r.BrokenAt != nil {
		at = fmt.Sprintf("%d", *r.BrokenAt+1)
	}
	fmt.Fprintf(w, "%s first break at position %s: %s\n",
		color.RedString("✗ Ledger BROKEN:"), at, r.Failure)
	fmt.Fprintf(w, "  %d link(s) checked before the break\n", r.Checked)
	return nil
}
