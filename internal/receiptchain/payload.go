package receiptchain

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// CurrentVersion is the encoding version stamped on newly appended payloads.
const CurrentVersion uint16 = 1

const (
	maxIntentLen = 64
	maxTextLen   = 4096
)

// payloadMagic prefixes every encoding so a receipt hash can never collide
// with a hash computed over some other structure.
var payloadMagic = []byte("CPR")

// Draft carries the submission facts handed to Store.Append.
type Draft struct {
	SubmissionID int64
	Intent       string
	Text         string
	CreatedAt    time.Time
}

// Payload is the immutable, hashed snapshot of a submission.
// Submission status is deliberately absent: it changes after issuance.
type Payload struct {
	Version      uint16    `json:"version"`
	ReceiptID    uuid.UUID `json:"receipt_id"`
	ShortCode    string    `json:"short_code"`
	SubmissionID int64     `json:"submission_id"`
	Intent       string    `json:"intent"`
	Text         string    `json:"text"`
	CreatedAtMs  int64     `json:"created_at_ms"`
}

// CreatedAt returns the creation timestamp in UTC.
func (p Payload) CreatedAt() time.Time {
	return time.UnixMilli(p.CreatedAtMs).UTC()
}

// CanonicalText NFC-normalises s and trims trailing whitespace.
func CanonicalText(s string) string {
	return strings.TrimRightFunc(norm.NFC.String(s), unicode.IsSpace)
}

// Canonical returns d with its strings canonicalised and its timestamp
// truncated to millisecond precision in UTC.
func (d Draft) Canonical() Draft {
	d.Intent = CanonicalText(d.Intent)
	d.Text = CanonicalText(d.Text)
	d.CreatedAt = d.CreatedAt.UTC().Truncate(time.Millisecond)
	return d
}

// Validate rejects drafts that would not round-trip through the canonical
// encoding unchanged.
func (d Draft) Validate() error {
	if d.SubmissionID <= 0 {
		return &ValidationError{Msg: "submission id must be positive"}
	}
	if d.CreatedAt.IsZero() {
		return &ValidationError{Msg: "created_at is required"}
	}
	if err := checkCanonical("intent", d.Intent, maxIntentLen); err != nil {
		return err
	}
	if d.Intent == "" {
		return &ValidationError{Msg: "intent is required"}
	}
	return checkCanonical("text", d.Text, maxTextLen)
}

func checkCanonical(field, s string, max int) error {
	switch {
	case !utf8.ValidString(s):
		return &ValidationError{Msg: field + " is not valid UTF-8"}
	case len(s) > max:
		return &ValidationError{Msg: fmt.Sprintf("%s exceeds %d bytes", field, max)}
	case strings.IndexByte(s, 0) >= 0:
		return &ValidationError{Msg: field + " contains a NUL byte"}
	case !norm.NFC.IsNormalString(s):
		return &ValidationError{Msg: field + " is not NFC-normalised"}
	case strings.TrimRightFunc(s, unicode.IsSpace) != s:
		return &ValidationError{Msg: field + " has trailing whitespace"}
	}
	return nil
}

// encoder produces the canonical byte encoding of a payload for one version.
type encoder func(buf *bytes.Buffer, p Payload)

// encoders is keyed by encoding version. Entries are never modified once a
// version has shipped; new canonicalisation rules get a new version.
var encoders = map[uint16]encoder{
	1: encodeV1,
}

// encodeV1 writes: magic | u16 version | 16-byte receipt id |
// lp(short_code) | i64 submission_id | lp(intent) | lp(text) | i64 created_at_ms.
// lp(s) is a u32 big-endian byte length followed by the UTF-8 bytes.
func encodeV1(buf *bytes.Buffer, p Payload) {
	var scratch [8]byte
	buf.Write(payloadMagic)
	binary.BigEndian.PutUint16(scratch[:2], p.Version)
	buf.Write(scratch[:2])
	buf.Write(p.ReceiptID[:])
	writeLP(buf, p.ShortCode)
	binary.BigEndian.PutUint64(scratch[:], uint64(p.SubmissionID))
	buf.Write(scratch[:])
	writeLP(buf, p.Intent)
	writeLP(buf, p.Text)
	binary.BigEndian.PutUint64(scratch[:], uint64(p.CreatedAtMs))
	buf.Write(scratch[:])
}

func writeLP(buf *bytes.Buffer, s string) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
}

// Encode returns the canonical encoding of p for the version it records.
func (p Payload) Encode() ([]byte, error) {
	enc, ok := encoders[p.Version]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, p.Version)
	}
	var buf bytes.Buffer
	enc(&buf, p)
	return buf.Bytes(), nil
}

// ComputeHash returns hex(SHA-256(Encode(p) || raw(prevHash))).
func ComputeHash(p Payload, prevHash string) (string, error) {
	prev, err := decodeHash(prevHash)
	if err != nil {
		return "", err
	}
	encoded, err := p.Encode()
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(encoded)
	h.Write(prev)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func decodeHash(s string) ([]byte, error) {
	if len(s) != sha256.Size*2 || strings.ToLower(s) != s {
		return nil, fmt.Errorf("%w: %q", ErrMalformedHash, s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrMalformedHash, s)
	}
	return b, nil
}
