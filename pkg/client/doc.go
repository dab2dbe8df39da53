// Package client is the CivicPulse receipts Go SDK.
//
// Kiosks use it to file complaints and print receipts; citizen-facing
// services use it to check that a receipt is still intact in the ledger.
//
// # Filing a complaint
//
//	c := client.MustNew("http://localhost:8080")
//	receipt, err := c.Submit(ctx, client.SubmitRequest{
//	    Intent: "water_outage",
//	    Text:   "no water since morning",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(receipt.ShortCode) // CP-7KQ2MXPA
//
// # Verifying a receipt
//
// Verify accepts a receipt id or a short code in any case:
//
//	v, err := c.Verify(ctx, "cp-7kq2mxpa")
//	if err != nil {
//	    log.Fatal(err) // unknown receipt or server unreachable
//	}
//	if !v.Verified {
//	    fmt.Println("receipt FAILED verification:", v.Failure)
//	}
//
// A receipt that fails verification is not an error: the call succeeds and
// Verified is false. Unknown references return an error wrapping ErrNotFound.
//
// # Operator calls
//
// Audit and UpdateStatus require an operator token. Obtain one with Login, or
// pass a pre-issued token with WithBearerToken:
//
//	if _, err := c.Login(ctx, "ward-7", os.Getenv("CIVICPULSE_OPERATOR_PASSWORD")); err != nil {
//	    log.Fatal(err)
//	}
//	report, err := c.Audit(ctx)
package client
