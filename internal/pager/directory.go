package pager

// ───────────────────────────────────────────────────────────────────────────
// Directory — hash map from page id to frame
// ───────────────────────────────────────────────────────────────────────────
//
// A flat array of buckets indexed by hash(page_id) & (directory_size - 1).
// Each bucket has two inline slots and a singly-linked overflow chain. A
// bucket's latch must be held (read for lookups, write for insert/remove).
// Overflow link nodes are owned by the directory and never freed until
// Close — they are reused in place on re-insert.

// hashPageID mixes a page id the way spec §4.2 specifies (a Murmur-style
// finalizer), so that sequential page ids spread across buckets evenly.
func hashPageID(id PageID) uint32 {
	h := uint32(id)
	h = ((h >> 16) ^ h) * 0x45d9f3b
	h = ((h >> 16) ^ h) * 0x45d9f3b
	h = (h >> 16) ^ h
	return h
}

type dirSlot struct {
	pageID PageID
	fr     *frame
}

type overflowNode struct {
	slot dirSlot
	next *overflowNode
}

type bucket struct {
	latch    Latch
	inline   [2]dirSlot
	overflow *overflowNode
}

// lookupLocked scans the inline slots then the overflow chain. Caller must
// hold the bucket's latch (read or write).
func (b *bucket) lookupLocked(id PageID) *frame {
	for i := range b.inline {
		if b.inline[i].pageID == id && b.inline[i].fr != nil {
			return b.inline[i].fr
		}
	}
	for n := b.overflow; n != nil; n = n.next {
		if n.slot.pageID == id && n.slot.fr != nil {
			return n.slot.fr
		}
	}
	return nil
}

// insertLocked places fr in the first empty inline slot, or reuses an empty
// overflow slot, or prepends a new node to the overflow chain. Caller must hold the bucket's write latch.
func (b *bucket) insertLocked(fr *frame) {
	for i := range b.inline {
		if b.inline[i].pageID == InvalidPageID {
			b.inline[i] = dirSlot{pageID: fr.id, fr: fr}
			return
		}
	}
	for n := b.overflow; n != nil; n = n.next {
		if n.slot.pageID == InvalidPageID {
			n.slot = dirSlot{pageID: fr.id, fr: fr}
			return
		}
	}
	b.overflow = &overflowNode{slot: dirSlot{pageID: fr.id, fr: fr}, next: b.overflow}
}

// removeLocked zeroes the matching slot's page id. It does not reclaim
// overflow link nodes — they are reused on the next insert. Caller must
// hold the bucket's write latch.
func (b *bucket) removeLocked(id PageID) {
	for i := range b.inline {
		if b.inline[i].pageID == id {
			b.inline[i] = dirSlot{}
			return
		}
	}
	for n := b.overflow; n != nil; n = n.next {
		if n.slot.pageID == id {
			n.slot = dirSlot{}
			return
		}
	}
}

// directory is the full bucket array. size is a power of two.
type directory struct {
	buckets []bucket
	mask    uint32
}

func newDirectory(size uint32) *directory {
	return &directory{
		buckets: make([]bucket, size),
		mask:    size - 1,
	}
}

func (d *directory) bucketFor(id PageID) *bucket {
	return &d.buckets[hashPageID(id)&d.mask]
}

// contends sums per-bucket latch contention counters, for internal/pager's
// Stats() snapshot.
func (d *directory) contends() uint64 {
	var total uint64
	for i := range d.buckets {
		total += d.buckets[i].latch.Contends()
	}
	return total
}
