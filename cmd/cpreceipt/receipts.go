package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/civicpulse/receipts/pkg/client"
)

// ── submit ───────────────────────────────────────────────────────────────────

var (
	subIntent   string
	subText     string
	subPriority string
	subLanguage string
)

var submitCmd = &cobra.Command{
	Use:     "submit",
	Short:   "File a complaint and print its receipt",
	Example: `  cpreceipt submit --intent water_outage --text "no water since morning"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		r, err := c.Submit(cmd.Context(), client.SubmitRequest{
			Intent:   subIntent,
			Text:     subText,
			Priority: subPriority,
			Language: subLanguage,
		})
		if err != nil {
			return fmt.Errorf("submit: %w", err)
		}
		return printReceipt(os.Stdout, r, output)
	},
}

func init() {
	submitCmd.Flags().StringVar(&subIntent, "intent", "", "complaint category, e.g. water_outage (required)")
	submitCmd.Flags().StringVar(&subText, "text", "", "complaint text")
	submitCmd.Flags().StringVar(&subPriority, "priority", "", "low, medium, high or critical")
	submitCmd.Flags().StringVar(&subLanguage, "language", "", "language tag of the text, e.g. hi")
	_ = submitCmd.MarkFlagRequired("intent")
}

// ── show ─────────────────────────────────────────────────────────────────────

var showCmd = &cobra.Command{
	Use:   "show <receipt-id | short-code>",
	Short: "Show a receipt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		r, err := fetchReceipt(cmd.Context(), c, args[0])
		if err != nil {
			return err
		}
		return printReceipt(os.Stdout, r, output)
	},
}

// fetchReceipt tries ref as a receipt id first, then as a short code.
func fetchReceipt(ctx context.Context, c *client.Client, ref string) (*client.Receipt, error) {
	if looksLikeUUID(ref) {
		return c.GetReceipt(ctx, ref)
	}
	r, err := c.GetByShortCode(ctx, ref)
	if errors.Is(err, client.ErrNotFound) {
		return nil, fmt.Errorf("no receipt %q", ref)
	}
	return r, err
}

func looksLikeUUID(s string) bool {
	return len(s) == 36 && s[8] == '-' && s[13] == '-' && s[18] == '-' && s[23] == '-'
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify <receipt-id | short-code> [...]",
	Short: "Check that receipts are intact in the ledger",
	Long: `verify asks the server to recompute each receipt's hash and check its
links. The command exits non-zero if any receipt fails verification or
cannot be found.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		failed := 0
		for _, ref := range args {
			v, err := c.Verify(cmd.Context(), ref)
			if err != nil {
				printVerifyError(os.Stdout, ref, err)
				failed++
				continue
			}
			if err := printVerification(os.Stdout, v, output); err != nil {
				return err
			}
			if !v.Verified {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d receipt(s) did not verify", failed, len(args))
		}
		return nil
	},
}

// ── head ─────────────────────────────────────────────────────────────────────

var headCmd = &cobra.Command{
	Use:   "head",
	Short: "Show the ledger length, head hash and latest anchor",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		l, err := c.Head(cmd.Context())
		if err != nil {
			return fmt.Errorf("head: %w", err)
		}
		return printLedger(os.Stdout, l, output)
	},
}
