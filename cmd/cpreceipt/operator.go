package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/civicpulse/receipts/internal/auth"
	"github.com/civicpulse/receipts/pkg/client"
)

// ── login ────────────────────────────────────────────────────────────────────

var (
	loginOperator string
	loginQuiet    bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Exchange the operator password for a Bearer token",
	Long: `login reads the operator password from CPRECEIPT_PASSWORD or stdin and
prints a token. Export it as CPRECEIPT_TOKEN for operator commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		password := os.Getenv("CPRECEIPT_PASSWORD")
		if password == "" {
			if !loginQuiet {
				fmt.Fprint(os.Stderr, "Operator password: ")
			}
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}

		c, err := client.New(serverURL)
		if err != nil {
			return err
		}
		tok, err := c.Login(cmd.Context(), loginOperator, password)
		if err != nil {
			return err
		}
		if loginQuiet {
			fmt.Println(tok)
			return nil
		}
		color.Green("✓ Logged in as %s", loginOperator)
		fmt.Printf("\nexport CPRECEIPT_TOKEN=%s\n", tok)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginOperator, "operator", "operator", "operator name recorded in the token")
	loginCmd.Flags().BoolVarP(&loginQuiet, "quiet", "q", false, "print only the token")
}

// ── audit ────────────────────────────────────────────────────────────────────

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Walk the whole ledger and report the first broken link (operator)",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		start := time.Now()
		r, err := c.Audit(cmd.Context())
		if err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		if err := printAudit(os.Stdout, r, time.Since(start), output); err != nil {
			return err
		}
		if !r.Intact {
			return fmt.Errorf("ledger is broken")
		}
		return nil
	},
}

// ── status ───────────────────────────────────────────────────────────────────

var statusCmd = &cobra.Command{
	Use:     "status <submission-id> <status>",
	Short:   "Move a submission to a new handling state (operator)",
	Example: `  cpreceipt status 42 in_progress`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid submission id %q", args[0])
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.UpdateStatus(cmd.Context(), id, args[1]); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		color.Green("✓ Submission %d is now %s", id, args[1])
		return nil
	},
}

// ── hash-password ────────────────────────────────────────────────────────────

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Print a bcrypt hash for auth.operator_password_hash",
	RunE: func(cmd *cobra.Command, args []string) error {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		hash, err := auth.HashPassword(strings.TrimRight(line, "\r\n"))
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}
