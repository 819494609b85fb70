package btree

import "bytes"

// Flavor selects the key/value encoding a tree uses, per spec.md §4.5:
// table trees key on a varint-encoded unsigned integer with a blob value,
// uuid trees key on a 16-byte UUID with a page-id value (an index onto
// some other page, e.g. a row's primary storage location).
type Flavor uint8

const (
	FlavorTable Flavor = iota
	FlavorUUID
)

// uuidKeyLen is the fixed width of a uuid-flavored key.
const uuidKeyLen = 16

// Key is a comparable B-tree key of either flavor. The zero value is a
// table key of 0; use TableKey/UUIDKey to build one explicitly.
type Key struct {
	flavor Flavor
	table  uint64
	uuid   [uuidKeyLen]byte
}

// TableKey builds a table-flavored key from a decoded varint value.
func TableKey(v uint64) Key { return Key{flavor: FlavorTable, table: v} }

// UUIDKey builds a uuid-flavored key from its 16 raw bytes.
func UUIDKey(b [uuidKeyLen]byte) Key { return Key{flavor: FlavorUUID, uuid: b} }

// Table returns the decoded integer value of a table-flavored key.
func (k Key) Table() uint64 { return k.table }

// UUID returns the raw 16 bytes of a uuid-flavored key.
func (k Key) UUID() [uuidKeyLen]byte { return k.uuid }

// Compare orders two same-flavor keys: numerically for table keys,
// lexicographically byte-by-byte for uuid keys (spec.md §4.5).
func (k Key) Compare(other Key) int {
	switch k.flavor {
	case FlavorUUID:
		return bytes.Compare(k.uuid[:], other.uuid[:])
	default:
		switch {
		case k.table < other.table:
			return -1
		case k.table > other.table:
			return 1
		default:
			return 0
		}
	}
}
