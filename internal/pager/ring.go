package pager

import "sync/atomic"

// ───────────────────────────────────────────────────────────────────────────
// Ring — fixed array of frames with CLOCK allocation/eviction pointers
// ───────────────────────────────────────────────────────────────────────────

// ringSlot is {atomic page_id, frame_ref}. Transitions 0→nonzero (alloc)
// and nonzero→0 (evict) are serialized with respect to the owning bucket's
// write latch for the relevant page id.
type ringSlot struct {
	pageID atomic.Uint32
	fr     atomic.Pointer[frame]
}

// ring is a contiguous array of capacity ringSlots. allocHead and
// evictHead are independent, lock-free, wrapping counters.
type ring struct {
	slots     []ringSlot
	capacity  uint32
	pageSize  uint32
	allocHead atomic.Uint64
	evictHead atomic.Uint64
}

func newRing(capacity, pageSize uint32) *ring {
	return &ring{
		slots:    make([]ringSlot, capacity),
		capacity: capacity,
		pageSize: pageSize,
	}
}

// allocate finds a free ring slot, lazily backs it with a frame (or reuses
// one left over from a prior eviction), and initializes the frame header
// for id. The caller must already hold the destination bucket's write
// latch; allocate does not touch the directory.
func (r *ring) allocate(id PageID) (*frame, *Error) {
	maxAttempts := uint64(r.capacity)*4 + 64
	for attempt := uint64(0); attempt < maxAttempts; attempt++ {
		i := uint32(r.allocHead.Add(1)-1) % r.capacity
		if !r.slots[i].pageID.CompareAndSwap(0, uint32(id)) {
			continue
		}

		fr := r.slots[i].fr.Load()
		if fr == nil {
			fr = newFrame(r.pageSize, i)
			if !r.slots[i].fr.CompareAndSwap(nil, fr) {
				// Another goroutine raced us onto a frame for the same
				// ring slot — impossible under the CAS above (we own the
				// page_id transition), but stay defensive.
				fr = r.slots[i].fr.Load()
			}
		}
		fr.reinit(id)
		return fr, nil
	}
	return nil, newError(ENOMEM, "ring: no free slot after %d allocation attempts", maxAttempts)
}

// free returns slot i to the pool by zeroing its page id. The caller must
// hold the owning bucket's write latch for the id that was there.
func (r *ring) free(i uint32) {
	r.slots[i].pageID.Store(0)
}
