package btree

import (
	"encoding/binary"
	"fmt"

	"github.com/clockdb/clockdb/internal/blob"
	"github.com/clockdb/clockdb/internal/pager"
	"github.com/clockdb/clockdb/internal/varint"
)

// ───────────────────────────────────────────────────────────────────────────
// Node wire format (spec.md §4.5)
// ───────────────────────────────────────────────────────────────────────────
//
// Header (fixed, at offset 0):
//
//	[0:2]   cell_count   uint16
//	[2:4]   data_start   uint16 — offset of the start of the payload region
//	[4:6]   free_space   uint16 — total free bytes: the gap between the
//	                              cell-pointer array and data_start plus
//	                              payload bytes of deleted cells not yet
//	                              reclaimed by compaction
//	[6:8]   flags        uint16 — leafFlag | tableFlag | uuidFlag
//	[8:12]  right_child  uint32 (page id) — catch-all child for inner nodes
//	[12:16] next_leaf    uint32 (page id) — leaf sibling chain; SPEC_FULL.md's
//	                              one addition to spec.md's header, used only
//	                              by range Scan and always 0 on inner nodes.
//
// Cell pointers follow the header as a packed array of uint16 offsets,
// one per cell, in key-ascending order; cell payloads grow downward from
// the page end. Each payload is self-describing (a leading varint or a
// fixed width, depending on flavor) so no explicit length is stored
// alongside the offset.

const (
	offCellCount  = 0
	offDataStart  = 2
	offFreeSpace  = 4
	offFlags      = 6
	offRightChild = 8
	offNextLeaf   = 12
	headerSize    = 16
)

const cellPtrSize = 2

const (
	flagLeaf      uint16 = 1 << 0
	flagTable     uint16 = 1 << 1
	flagIndexUUID uint16 = 1 << 2
)

// node is a thin, allocation-free view over a fixed-size page buffer.
type node struct {
	buf []byte
}

func wrapNode(buf []byte) *node { return &node{buf: buf} }

// initNode formats buf as an empty node of the given kind and flavor.
func initNode(buf []byte, leaf bool, flavor Flavor) *node {
	n := &node{buf: buf}
	var flags uint16
	if leaf {
		flags |= flagLeaf
	}
	if flavor == FlavorUUID {
		flags |= flagIndexUUID
	} else {
		flags |= flagTable
	}
	n.setCellCount(0)
	n.setDataStart(len(buf))
	n.setFreeSpace(len(buf) - headerSize)
	n.setFlags(flags)
	n.setRightChild(pager.InvalidPageID)
	n.setNextLeaf(pager.InvalidPageID)
	return n
}

func (n *node) cellCount() int       { return int(binary.LittleEndian.Uint16(n.buf[offCellCount:])) }
func (n *node) setCellCount(c int)   { binary.LittleEndian.PutUint16(n.buf[offCellCount:], uint16(c)) }
func (n *node) dataStart() int       { return int(binary.LittleEndian.Uint16(n.buf[offDataStart:])) }
func (n *node) setDataStart(v int)   { binary.LittleEndian.PutUint16(n.buf[offDataStart:], uint16(v)) }
func (n *node) freeSpace() int       { return int(binary.LittleEndian.Uint16(n.buf[offFreeSpace:])) }
func (n *node) setFreeSpace(v int)   { binary.LittleEndian.PutUint16(n.buf[offFreeSpace:], uint16(v)) }
func (n *node) flags() uint16        { return binary.LittleEndian.Uint16(n.buf[offFlags:]) }
func (n *node) setFlags(f uint16)    { binary.LittleEndian.PutUint16(n.buf[offFlags:], f) }
func (n *node) isLeaf() bool         { return n.flags()&flagLeaf != 0 }
func (n *node) flavor() Flavor {
	if n.flags()&flagIndexUUID != 0 {
		return FlavorUUID
	}
	return FlavorTable
}

func (n *node) rightChild() pager.PageID {
	return pager.PageID(binary.LittleEndian.Uint32(n.buf[offRightChild:]))
}
func (n *node) setRightChild(id pager.PageID) {
	binary.LittleEndian.PutUint32(n.buf[offRightChild:], uint32(id))
}
func (n *node) nextLeaf() pager.PageID {
	return pager.PageID(binary.LittleEndian.Uint32(n.buf[offNextLeaf:]))
}
func (n *node) setNextLeaf(id pager.PageID) {
	binary.LittleEndian.PutUint32(n.buf[offNextLeaf:], uint32(id))
}

// ── cell pointer array ──────────────────────────────────────────────────

func (n *node) cellPtrOffset(i int) int { return headerSize + i*cellPtrSize }

func (n *node) cellOffset(i int) int {
	return int(binary.LittleEndian.Uint16(n.buf[n.cellPtrOffset(i):]))
}

func (n *node) setCellOffset(i int, off int) {
	binary.LittleEndian.PutUint16(n.buf[n.cellPtrOffset(i):], uint16(off))
}

func (n *node) cellArrayEnd() int { return n.cellPtrOffset(n.cellCount()) }

// recordLen returns how many payload bytes the self-describing record
// starting at off occupies, without needing a stored length.
func (n *node) recordLen(off int) int {
	if n.isLeaf() {
		return leafRecordLen(n.buf[off:], n.flavor())
	}
	return innerRecordLen(n.buf[off:], n.flavor())
}

func (n *node) cellBytes(i int) []byte {
	off := n.cellOffset(i)
	return n.buf[off : off+n.recordLen(off)]
}

// hasRoomFor reports whether a new cell of payload size need fits in the
// node's total free space, compacting first if insertCellAt has to.
func (n *node) hasRoomFor(need int) bool {
	return n.freeSpace() >= need+cellPtrSize
}

// compact repacks every payload, in cell-pointer order, against the page
// end, reclaiming any slack left by deleted cells. The cell-pointer
// array itself never needs compaction — it is always contiguous.
func (n *node) compact() {
	count := n.cellCount()
	total := 0
	for i := 0; i < count; i++ {
		total += len(n.cellBytes(i))
	}
	scratch := make([]byte, total)
	pos := 0
	lens := make([]int, count)
	for i := 0; i < count; i++ {
		rec := n.cellBytes(i)
		lens[i] = len(rec)
		copy(scratch[pos:], rec)
		pos += len(rec)
	}
	end := len(n.buf)
	pos = len(scratch)
	for i := count - 1; i >= 0; i-- {
		pos -= lens[i]
		end -= lens[i]
		copy(n.buf[end:], scratch[pos:pos+lens[i]])
		n.setCellOffset(i, end)
	}
	n.setDataStart(end)
	n.setFreeSpace(end - n.cellArrayEnd())
}

// insertCellAt writes rec's bytes into the payload region and inserts a
// pointer to them at cell-pointer position pos, shifting later pointers
// right by one slot. Compacts first if the contiguous free region is too
// small, even though enough space exists once fragmented slack is
// reclaimed.
func (n *node) insertCellAt(pos int, rec []byte) error {
	if !n.hasRoomFor(len(rec)) {
		return fmt.Errorf("btree: page full: need %d, have %d free", len(rec)+cellPtrSize, n.freeSpace())
	}
	if n.dataStart()-n.cellArrayEnd()-cellPtrSize < len(rec) {
		n.compact()
		if n.dataStart()-n.cellArrayEnd()-cellPtrSize < len(rec) {
			return fmt.Errorf("btree: page full after compaction: need %d", len(rec))
		}
	}
	newStart := n.dataStart() - len(rec)
	copy(n.buf[newStart:], rec)
	n.setDataStart(newStart)

	count := n.cellCount()
	for i := count; i > pos; i-- {
		n.setCellOffset(i, n.cellOffset(i-1))
	}
	n.setCellOffset(pos, newStart)
	n.setCellCount(count + 1)
	n.setFreeSpace(n.freeSpace() - len(rec) - cellPtrSize)
	return nil
}

// deleteCellAt removes the cell at pos, shifting later pointers left. The
// payload bytes themselves are reclaimed lazily, on the next compact.
func (n *node) deleteCellAt(pos int) {
	reclaimed := len(n.cellBytes(pos))
	count := n.cellCount()
	for i := pos; i < count-1; i++ {
		n.setCellOffset(i, n.cellOffset(i+1))
	}
	n.setCellCount(count - 1)
	n.setFreeSpace(n.freeSpace() + reclaimed + cellPtrSize)
}

// ── table/uuid record codecs ─────────────────────────────────────────────

// Leaf, table: [varint key][blob value].
// Leaf, uuid:  [16-byte key][4-byte page_id value].

func encodeLeafCell(key Key, value []byte, flavor Flavor) []byte {
	if flavor == FlavorUUID {
		u := key.UUID()
		rec := make([]byte, 0, uuidKeyLen+4)
		rec = append(rec, u[:]...)
		return append(rec, value[:4]...)
	}
	rec := varint.Put(nil, key.Table())
	return blob.Put(rec, value)
}

func decodeLeafCell(rec []byte, flavor Flavor) (Key, []byte) {
	if flavor == FlavorUUID {
		var u [uuidKeyLen]byte
		copy(u[:], rec[:uuidKeyLen])
		val := make([]byte, 4)
		copy(val, rec[uuidKeyLen:uuidKeyLen+4])
		return UUIDKey(u), val
	}
	v, n, _ := varint.Get(rec)
	value, _, _ := blob.Get(rec[n:])
	out := make([]byte, len(value))
	copy(out, value)
	return TableKey(v), out
}

func leafRecordLen(rec []byte, flavor Flavor) int {
	if flavor == FlavorUUID {
		return uuidKeyLen + 4
	}
	kn, _ := varint.GetLen(rec)
	_, bn, _ := blob.Get(rec[kn:])
	return kn + bn
}

// Inner: [child_page_id (4 bytes)][key].

func encodeInnerCell(child pager.PageID, key Key, flavor Flavor) []byte {
	rec := make([]byte, 4, 4+uuidKeyLen)
	binary.LittleEndian.PutUint32(rec, uint32(child))
	if flavor == FlavorUUID {
		u := key.UUID()
		return append(rec, u[:]...)
	}
	return varint.Put(rec, key.Table())
}

func decodeInnerCell(rec []byte, flavor Flavor) (pager.PageID, Key) {
	child := pager.PageID(binary.LittleEndian.Uint32(rec))
	if flavor == FlavorUUID {
		var u [uuidKeyLen]byte
		copy(u[:], rec[4:4+uuidKeyLen])
		return child, UUIDKey(u)
	}
	v, _, _ := varint.Get(rec[4:])
	return child, TableKey(v)
}

func innerRecordLen(rec []byte, flavor Flavor) int {
	if flavor == FlavorUUID {
		return 4 + uuidKeyLen
	}
	kn, _ := varint.GetLen(rec[4:])
	return 4 + kn
}

// maxInnerCellSize is the worst-case byte length of an inner cell for the
// given flavor, used to decide whether an inner node has room to absorb a
// separator pushed up from a child split.
func maxInnerCellSize(flavor Flavor) int {
	if flavor == FlavorUUID {
		return 4 + uuidKeyLen
	}
	return 4 + varint.MaxLen
}

// encodePageIDValue/decodePageIDValue adapt a pager.PageID to/from the
// 4-byte leaf value a uuid-flavored tree stores (spec.md §4.5: "Leaf,
// uuid: [16-byte key][page_id value]").
func encodePageIDValue(id pager.PageID) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(id))
	return b[:]
}

func decodePageIDValue(b []byte) pager.PageID {
	return pager.PageID(binary.LittleEndian.Uint32(b))
}

// ── node-level search ────────────────────────────────────────────────────

// findLeafCell returns the sorted insertion/lookup position for key among
// this leaf's cells, and whether an exact match exists there.
func (n *node) findLeafCell(key Key, flavor Flavor) (int, bool) {
	lo, hi := 0, n.cellCount()
	for lo < hi {
		mid := (lo + hi) / 2
		k, _ := decodeLeafCell(n.cellBytes(mid), flavor)
		if k.Compare(key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < n.cellCount() {
		k, _ := decodeLeafCell(n.cellBytes(lo), flavor)
		if k.Compare(key) == 0 {
			return lo, true
		}
	}
	return lo, false
}

// findChild implements the inner-node descent rule of spec.md §4.5: the
// smallest index i such that key <= keys[i]; right_child if none match.
func (n *node) findChild(key Key, flavor Flavor) pager.PageID {
	count := n.cellCount()
	for i := 0; i < count; i++ {
		child, k := decodeInnerCell(n.cellBytes(i), flavor)
		if key.Compare(k) <= 0 {
			return child
		}
	}
	return n.rightChild()
}

// retarget repoints whichever reference (a cell's child or right_child)
// currently points at oldChild to newChild. Used after splitting a child:
// the parent's existing pointer to the full node must now point at the
// reorganized node holding the upper half.
func (n *node) retarget(oldChild, newChild pager.PageID) {
	flavor := n.flavor()
	if n.rightChild() == oldChild {
		n.setRightChild(newChild)
		return
	}
	for i := 0; i < n.cellCount(); i++ {
		off := n.cellOffset(i)
		child, _ := decodeInnerCell(n.buf[off:off+n.recordLen(off)], flavor)
		if child == oldChild {
			binary.LittleEndian.PutUint32(n.buf[off:], uint32(newChild))
			return
		}
	}
}
