package receiptchain

import "errors"

var (
	// ErrNotFound is returned when no link matches a receipt id, short code or sequence.
	ErrNotFound = errors.New("receipt not found")

	// ErrAllocationExhausted is returned when every short-code draw collided
	// with an existing code. It signals code-space pressure and must be alerted on.
	ErrAllocationExhausted = errors.New("short code allocation exhausted")

	// ErrStorageWrite matches any *WriteError via errors.Is.
	ErrStorageWrite = errors.New("receipt ledger write failed")

	// ErrInvalidShortCode is returned for input that cannot be a short code.
	ErrInvalidShortCode = errors.New("invalid short code")

	// ErrUnsupportedVersion is returned by ComputeHash for an unknown payload encoding version.
	ErrUnsupportedVersion = errors.New("unsupported payload encoding version")

	// ErrMalformedHash is returned when a hash is not 64 lowercase hex characters.
	ErrMalformedHash = errors.New("malformed hash")
)

// WriteError reports a failed append. The submission must be treated as not
// accepted: no receipt was persisted.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string { return "ledger " + e.Op + ": " + e.Err.Error() }

func (e *WriteError) Unwrap() error { return e.Err }

// Is reports true for ErrStorageWrite so callers need not know the concrete type.
func (e *WriteError) Is(target error) bool { return target == ErrStorageWrite }

// ValidationError is returned when a draft payload breaks a canonicalisation rule.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }
