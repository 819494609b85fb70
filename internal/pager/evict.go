package pager

// evict runs the CLOCK second-chance sweep described in spec.md §4.3. It
// is called without holding any bucket latch. On success it frees exactly
// one ring slot (and the directory mapping that pointed at it); on
// failure — the sweep completed 2*capacity slots without evicting one —
// it returns ENOMEM.
func (p *Pager) evict() *Error {
	limit := uint64(p.capacity) * 2
	for swept := uint64(0); swept < limit; swept++ {
		i := uint32(p.ring.evictHead.Add(1)-1) % p.capacity

		id := PageID(p.ring.slots[i].pageID.Load())
		if id == InvalidPageID {
			continue
		}

		b := p.dir.bucketFor(id)
		b.latch.AcquireWrite()

		// Re-verify the ring slot still holds the same id — it may have
		// been evicted and reallocated between our load and acquiring
		// the bucket latch.
		if PageID(p.ring.slots[i].pageID.Load()) != id {
			b.latch.ReleaseWrite()
			continue
		}

		fr := b.lookupLocked(id)
		if fr == nil {
			// Should not happen under invariant 4, but stay defensive.
			b.latch.ReleaseWrite()
			continue
		}

		if !fr.latch.Available() {
			// Someone has this frame fixed.
			b.latch.ReleaseWrite()
			continue
		}

		if fr.flags.Load()&flagRef != 0 {
			fr.flags.And(^uint32(flagRef))
			b.latch.ReleaseWrite()
			continue
		}

		if p.writeback != nil && fr.flags.Load()&flagDirty != 0 {
			if err := p.writeback(id, fr.data); err != nil {
				p.log.Warnf("pager: writeback hook failed for page %d: %v", id, err)
				// Leave this slot alone for a future sweep; move on.
				b.latch.ReleaseWrite()
				continue
			}
		}

		b.removeLocked(id)
		p.ring.free(i)
		b.latch.ReleaseWrite()
		return nil
	}
	p.log.Warnf("pager: eviction swept %d slots without a candidate", limit)
	return newError(ENOMEM, "pager: eviction swept %d slots without a candidate", limit)
}
