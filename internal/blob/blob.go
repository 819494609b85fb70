// Package blob implements the {size, bytes} value codec the B-tree's
// table-flavored leaves use (spec.md §3, §6): a varint-prefixed length
// followed by that many raw bytes.
package blob

import (
	"fmt"

	"github.com/clockdb/clockdb/internal/varint"
)

// Put appends the blob encoding of b (varint(len(b)) || b) to dst.
func Put(dst []byte, b []byte) []byte {
	dst = varint.Put(dst, uint64(len(b)))
	return append(dst, b...)
}

// Len reports how many bytes Put(nil, b) would produce.
func Len(b []byte) int {
	return varint.Len(uint64(len(b))) + len(b)
}

// Get decodes a blob from the start of src, returning the value bytes (a
// subslice of src — callers that need to retain it past the page's next
// mutation must copy) and the number of bytes consumed.
func Get(src []byte) (value []byte, n int, err error) {
	size, hdrLen, ok := varint.Get(src)
	if !ok {
		return nil, 0, fmt.Errorf("blob: truncated length prefix")
	}
	total := hdrLen + int(size)
	if total > len(src) {
		return nil, 0, fmt.Errorf("blob: declared size %d exceeds available %d bytes", size, len(src)-hdrLen)
	}
	return src[hdrLen:total], total, nil
}
