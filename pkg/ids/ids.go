// Package ids generates row ids and document guids. Grounded on the
// teacher's pkg/storage.GenerateKey, which uses uuid.NewV7; we keep that
// source and derive the shorter ids spec.md §4.10 names (10-char row id,
// 15-char doc guid) from it instead of introducing a second id-generation
// library. The ids are the trailing characters of the UUID's base32 form:
// its leading 48 bits are the millisecond timestamp, so a short prefix would
// repeat for every id issued within one millisecond. The resulting ids are
// therefore not time-ordered.
package ids

import (
	"strings"

	"github.com/google/uuid"
)

// base32 without padding, lowercase: compact and filename/URL-safe, which
// matters because guids are also used as CRDT document identifiers that may
// end up in storage keys (extensions/persistence).
func encode(u uuid.UUID, n int) string {
	s := strings.ToLower(strings.TrimRight(toBase32(u[:]), "="))
	if len(s) < n {
		// Practically unreachable (a 16-byte UUID base32-encodes to 26
		// chars), but keep the function total rather than panicking.
		return s
	}
	return s[len(s)-n:]
}

func toBase32(b []byte) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz234567"
	var sb strings.Builder
	var buf uint64
	var bits uint
	for _, c := range b {
		buf = buf<<8 | uint64(c)
		bits += 8
		for bits >= 5 {
			bits -= 5
			sb.WriteByte(alphabet[(buf>>bits)&0x1f])
		}
	}
	if bits > 0 {
		sb.WriteByte(alphabet[(buf<<(5-bits))&0x1f])
	}
	return sb.String()
}

func newV7() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		// Matches the teacher's GenerateKey: entropy-source failure is
		// treated as unrecoverable.
		panic(err)
	}
	return id
}

// NewRowID returns a 10-character row identifier (spec.md §4.10).
func NewRowID() string { return encode(newV7(), 10) }

// NewGUID returns a 15-character document guid (spec.md §4.10).
func NewGUID() string { return encode(newV7(), 15) }
