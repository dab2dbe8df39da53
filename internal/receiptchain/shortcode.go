package receiptchain

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strings"
)

const (
	// ShortCodeAlphabet omits 0/O and 1/I/L so codes survive handwriting and dictation.
	ShortCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

	// ShortCodeLen gives 31^8 ≈ 8.5e11 codes.
	ShortCodeLen = 8

	// ShortCodePrefix is the display prefix printed on receipts.
	ShortCodePrefix = "CP"

	// DefaultMaxAttempts bounds draws per allocation before ErrAllocationExhausted.
	DefaultMaxAttempts = 5
)

// largest multiple of len(alphabet) that fits in a byte; draws at or above it
// are rejected so every symbol is equally likely.
const rejectAbove = 256 - 256%len(ShortCodeAlphabet)

// CodeExistsFunc reports whether a code is already bound to a receipt.
type CodeExistsFunc func(ctx context.Context, code string) (bool, error)

// ShortCodeAllocator draws uniformly random codes and checks them against
// the store's code index.
type ShortCodeAllocator struct {
	rand        io.Reader
	maxAttempts int
	onCollision func()
}

// NewShortCodeAllocator returns an allocator reading from crypto/rand.
func NewShortCodeAllocator() *ShortCodeAllocator {
	return &ShortCodeAllocator{rand: rand.Reader, maxAttempts: DefaultMaxAttempts}
}

// SetRandom replaces the entropy source. Used by tests.
func (a *ShortCodeAllocator) SetRandom(r io.Reader) { a.rand = r }

// SetCollisionHook registers fn to be called on every collided draw.
func (a *ShortCodeAllocator) SetCollisionHook(fn func()) { a.onCollision = fn }

// Allocate returns a code for which exists reports false.
func (a *ShortCodeAllocator) Allocate(ctx context.Context, exists CodeExistsFunc) (string, error) {
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		code, err := a.draw()
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check short code: %w", err)
		}
		if !taken {
			return code, nil
		}
		if a.onCollision != nil {
			a.onCollision()
		}
	}
	return "", ErrAllocationExhausted
}

func (a *ShortCodeAllocator) draw() (string, error) {
	out := make([]byte, 0, ShortCodeLen)
	buf := make([]byte, ShortCodeLen*2)
	for len(out) < ShortCodeLen {
		if _, err := io.ReadFull(a.rand, buf); err != nil {
			return "", fmt.Errorf("read entropy: %w", err)
		}
		for _, b := range buf {
			if int(b) >= rejectAbove {
				continue
			}
			out = append(out, ShortCodeAlphabet[int(b)%len(ShortCodeAlphabet)])
			if len(out) == ShortCodeLen {
				break
			}
		}
	}
	return string(out), nil
}

// FormatShortCode renders a canonical code in display form, e.g. "CP-7KQ2MXPA".
func FormatShortCode(code string) string {
	return ShortCodePrefix + "-" + code
}

// NormalizeShortCode maps user input such as "cp-7kq2-mxpa" or "7KQ2 MXPA"
// to the canonical stored form.
func NormalizeShortCode(input string) (string, error) {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(input)) {
		switch r {
		case '-', '_', '.', ' ', '\t':
			continue
		}
		b.WriteRune(r)
	}
	s := b.String()
	if len(s) == ShortCodeLen+len(ShortCodePrefix) && strings.HasPrefix(s, ShortCodePrefix) {
		s = s[len(ShortCodePrefix):]
	}
	if len(s) != ShortCodeLen {
		return "", fmt.Errorf("%w: %q", ErrInvalidShortCode, input)
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(ShortCodeAlphabet, s[i]) < 0 {
			return "", fmt.Errorf("%w: %q", ErrInvalidShortCode, input)
		}
	}
	return s, nil
}
