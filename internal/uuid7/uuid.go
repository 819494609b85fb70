// Package uuid7 generates and parses the time-ordered 128-bit identifiers
// described in spec.md §6: bytes 0..5 are a big-endian Unix-ms timestamp,
// byte 6's upper nibble is the version (7), byte 8's upper two bits are
// the variant (0b10), and the remaining bits are random.
//
// spec.md's Purpose & Scope calls UUID generation itself out of scope —
// "an external collaborator" — so rather than hand-roll the RNG and clock
// plumbing, this package is a thin, validating wrapper around
// google/uuid's NewV7, the same dependency the teacher repo already
// carries for its own row identifiers.
package uuid7

import (
	"fmt"

	"github.com/google/uuid"
)

// Size is the length of a UUID in bytes, matching the B-tree's uuid-index
// key width (spec.md §4.5).
const Size = 16

// UUID is a 16-byte time-ordered identifier.
type UUID [Size]byte

// New generates a fresh UUIDv7.
func New() (UUID, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return UUID{}, fmt.Errorf("uuid7: generate: %w", err)
	}
	return UUID(u), nil
}

// String renders the canonical lowercase hyphenated form.
func (u UUID) String() string {
	return uuid.UUID(u).String()
}

// Bytes returns the 16 raw bytes, suitable for use as a B-tree uuid key.
func (u UUID) Bytes() []byte {
	return u[:]
}

// Parse decodes the canonical 36-character hyphenated form.
func Parse(s string) (UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UUID{}, fmt.Errorf("uuid7: parse %q: %w", s, err)
	}
	return UUID(u), nil
}

// FromBytes wraps an existing 16-byte slice (e.g. a B-tree leaf key) as a
// UUID without validating its version/variant bits.
func FromBytes(b []byte) (UUID, error) {
	if len(b) != Size {
		return UUID{}, fmt.Errorf("uuid7: expected %d bytes, got %d", Size, len(b))
	}
	var u UUID
	copy(u[:], b)
	return u, nil
}

// Version reports the UUID version nibble (should be 7 for values this
// package generated).
func (u UUID) Version() int {
	return int(u[6] >> 4)
}

// Compare performs the lexicographic byte comparison spec.md §4.5 requires
// for uuid-flavored B-tree keys, returning -1, 0, or 1.
func (u UUID) Compare(other UUID) int {
	for i := 0; i < Size; i++ {
		if u[i] != other[i] {
			if u[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
