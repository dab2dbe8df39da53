package receiptchain

import (
	"context"

	"github.com/google/uuid"
)

// Store is the single owner of the receipt ledger and its id and short-code
// indexes. Both MemoryStore and PostgresStore implement this interface.
type Store interface {
	// Append canonicalises and validates d, mints a receipt id and short code,
	// chains a new link to the current tail and persists it atomically.
	// Concurrent appends are serialised; each observes the previous one's tail.
	Append(ctx context.Context, d Draft) (*Link, error)

	// GetByID returns the link for a receipt id, or ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*Link, error)

	// GetByShortCode accepts any case and the CP- display form.
	GetByShortCode(ctx context.Context, code string) (*Link, error)

	// GetBySequence returns the link at a zero-based ledger position.
	GetBySequence(ctx context.Context, seq int64) (*Link, error)

	// Tail returns the ledger length and head hash.
	Tail(ctx context.Context) (Tail, error)

	// Walk calls fn for each link in sequence order starting at from.
	// Iteration stops at the first error returned by fn.
	Walk(ctx context.Context, from int64, fn func(*Link) error) error
}

// prepareDraft applies canonicalisation and validation shared by all stores.
func prepareDraft(d Draft) (Draft, error) {
	d = d.Canonical()
	if err := d.Validate(); err != nil {
		return Draft{}, err
	}
	return d, nil
}
