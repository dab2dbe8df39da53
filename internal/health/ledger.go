package health

import (
	"context"
	"fmt"
	"sync"

	"github.com/civicpulse/receipts/internal/receiptchain"
)

// LedgerTail is a readiness probe: the ledger head must be readable.
func LedgerTail(store receiptchain.Store) Check {
	return Check{
		Name: "ledger",
		Probe: func(ctx context.Context) error {
			_, err := store.Tail(ctx)
			return err
		},
	}
}

// LedgerIntegrity audits the links appended since the last intact audit on
// every probe. A break degrades immediately and stays degraded: the
// checkpoint is not advanced past a broken link.
func LedgerIntegrity(v *receiptchain.Verifier) Check {
	var (
		mu         sync.Mutex
		checkpoint = receiptchain.Tail{Hash: receiptchain.GenesisHash}
	)
	return Check{
		Name:          "ledger_integrity",
		FailThreshold: 1,
		Probe: func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()

			report, err := v.Audit(ctx, checkpoint)
			if err != nil {
				return fmt.Errorf("audit: %w", err)
			}
			if !report.Intact {
				at := int64(-1)
				if report.BrokenAt != nil {
					at = *report.BrokenAt
				}
				return fmt.Errorf("chain broken at sequence %d: %s", at, report.Failure)
			}
			checkpoint = receiptchain.Tail{Length: report.Length, Hash: report.HeadHash}
			return nil
		},
	}
}
