package pager

import (
	"sync/atomic"

	"github.com/clockdb/clockdb/internal/telemetry"
)

// MinPageSize is the smallest page size Open will accept.
const MinPageSize = 96

// WritebackHook is invoked on a dirty victim frame during eviction, before
// its ring slot is zeroed — the pluggable collaborator spec.md §4.3 calls
// for but deliberately leaves unimplemented ("persistence is an external
// collaborator"). The default Pager has no hook and dirty frames are
// evicted silently, exactly as spec.md documents.
type WritebackHook func(id PageID, data []byte) error

// Config configures Open.
type Config struct {
	PageSize      uint32
	DirectorySize uint32 // must be a power of two
	Writeback     WritebackHook
	Log           *telemetry.Logger // defaults to telemetry.Discard
}

// Stats is a point-in-time snapshot of pager activity, for observability
// only — it adds no synchronization of its own.
type Stats struct {
	PageCount        int64
	Capacity         uint32
	Hits             uint64
	Misses           uint64
	Evictions        uint64
	ContendedLatches uint64
}

// Pager is the fixed-capacity, concurrent buffer pool described in
// spec.md §4.4.
type Pager struct {
	pageSize uint32
	capacity uint32
	dir      *directory
	ring     *ring

	pageCount atomic.Int64
	nextID    atomic.Uint32

	writeback WritebackHook
	log       *telemetry.Logger

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64

	// fixed counts pages currently fixed (by any goroutine), so Close can
	// detect the "closing with pages still outstanding" fatal precondition
	// violation spec.md §7 documents, instead of tearing down dir/ring out
	// from under a latched frame.
	fixed atomic.Int32

	closed atomic.Bool
}

func isPowerOfTwo(n uint32) bool {
	return n > 0 && n&(n-1) == 0
}

// Open allocates the directory and ring and returns a ready-to-use Pager.
// directory_size must be a power of two; page_size must be at least
// MinPageSize. capacity = floor(directory_size * 0.7).
func Open(cfg Config) (*Pager, *Error) {
	if !isPowerOfTwo(cfg.DirectorySize) {
		return nil, newError(EINVAL, "pager: directory size %d is not a power of two", cfg.DirectorySize)
	}
	if cfg.PageSize < MinPageSize {
		return nil, newError(EINVAL, "pager: page size %d is below minimum %d", cfg.PageSize, MinPageSize)
	}

	capacity := uint32(float64(cfg.DirectorySize) * 0.7)
	if capacity < 1 {
		capacity = 1
	}

	log := cfg.Log
	if log == nil {
		log = telemetry.Discard
	}

	p := &Pager{
		pageSize:  cfg.PageSize,
		capacity:  capacity,
		dir:       newDirectory(cfg.DirectorySize),
		ring:      newRing(capacity, cfg.PageSize),
		writeback: cfg.Writeback,
		log:       log,
	}
	p.nextID.Store(1)
	log.Infof("pager: opened page_size=%d directory_size=%d capacity=%d", cfg.PageSize, cfg.DirectorySize, capacity)
	return p, nil
}

// PageSize returns the configured page size.
func (p *Pager) PageSize() uint32 { return p.pageSize }

// Capacity returns the pager's frame capacity.
func (p *Pager) Capacity() uint32 { return p.capacity }

// Stats returns a snapshot of current pager activity counters.
func (p *Pager) Stats() Stats {
	return Stats{
		PageCount:        p.pageCount.Load(),
		Capacity:         p.capacity,
		Hits:             p.hits.Load(),
		Misses:           p.misses.Load(),
		Evictions:        p.evictions.Load(),
		ContendedLatches: p.dir.contends(),
	}
}

// Fix pins page id in memory, latching it shared or exclusive, and returns
// a handle to its data bytes. EINVAL if id is zero; ENOMEM if neither an
// existing frame is found nor a new one can be allocated or evicted for.
func (p *Pager) Fix(id PageID, exclusive bool) (*Page, *Error) {
	if id == InvalidPageID {
		return nil, newError(EINVAL, "pager: fix called with page id 0")
	}

	b := p.dir.bucketFor(id)

	// 1. Fast path: shared lookup.
	b.latch.AcquireRead()
	if fr := b.lookupLocked(id); fr != nil {
		p.hits.Add(1)
		b.latch.ReleaseRead()
		return p.latchAndReturn(fr, exclusive), nil
	}
	b.latch.ReleaseRead()
	p.misses.Add(1)

	// 2. Capacity reservation.
	reserved := false
	for !reserved {
		cur := p.pageCount.Load()
		if cur < int64(p.capacity)-1 {
			if p.pageCount.CompareAndSwap(cur, cur+1) {
				reserved = true
			}
			continue
		}
		// At capacity: evict to free a slot. page_count is left
		// unchanged — eviction frees a ring slot, not a reservation.
		if err := p.evict(); err != nil {
			return nil, wrapError(err, ENOMEM, "pager: fix page %d: eviction could not free a slot", id)
		}
		p.evictions.Add(1)
		break
	}

	// 3. Write-latch the bucket.
	b.latch.AcquireWrite()

	// 4. Re-lookup: another thread may have inserted concurrently.
	if fr := b.lookupLocked(id); fr != nil {
		if reserved {
			p.pageCount.Add(-1)
		}
		b.latch.ReleaseWrite()
		return p.latchAndReturn(fr, exclusive), nil
	}

	// 5. Allocate and initialize a frame, insert it into the bucket.
	fr, err := p.ring.allocate(id)
	if err != nil {
		if reserved {
			p.pageCount.Add(-1)
		}
		b.latch.ReleaseWrite()
		return nil, wrapError(err, ENOMEM, "pager: fix page %d: ring allocation failed", id)
	}
	b.insertLocked(fr)

	// 6. Latch the new frame, release the bucket, return.
	page := p.latchAndReturn(fr, exclusive)
	b.latch.ReleaseWrite()
	return page, nil
}

func (p *Pager) latchAndReturn(fr *frame, exclusive bool) *Page {
	if exclusive {
		fr.latch.AcquireWrite()
		fr.flags.Or(flagExclusive)
	} else {
		fr.latch.AcquireRead()
	}
	p.fixed.Add(1)
	return &Page{ID: fr.id, Data: fr.data, fr: fr, exclusive: exclusive}
}

// Next allocates a fresh page id from a process-wide monotonic counter
// (starting at 1) and fixes it exclusively. The returned frame's data is
// zero-initialized by the pager.
func (p *Pager) Next() (*Page, *Error) {
	id := PageID(p.nextID.Add(1) - 1)
	return p.Fix(id, true)
}

// Unfix releases the latch acquired by Fix/Next. If the page was held
// exclusively, it is marked DIRTY and given a second chance (REF) before
// its write latch is released; otherwise REF alone is set and its read
// latch is released.
func (p *Pager) Unfix(page *Page) {
	defer p.fixed.Add(-1)
	fr := page.fr
	if page.exclusive {
		fr.flags.Store(fr.flags.Load() | flagDirty | flagRef)
		fr.flags.And(^flagExclusive)
		fr.latch.ReleaseWrite()
		return
	}
	fr.flags.Or(flagRef)
	fr.latch.ReleaseRead()
}

// Close frees every allocated frame, directory, and ring. Closing with any
// page still fixed is a documented fatal precondition violation (spec.md
// §7) and is rejected with ESTRUCT rather than silently tearing down state
// a fixed Page still points into. Close is not safe to call concurrently
// with any other pager operation (spec.md §4.4).
func (p *Pager) Close() *Error {
	if n := p.fixed.Load(); n != 0 {
		return newError(ESTRUCT, "pager: close called with %d page(s) still fixed", n)
	}
	if p.closed.Swap(true) {
		return newError(ESTRUCT, "pager: close called twice")
	}
	p.log.Infof("pager: closed after %d hits, %d misses, %d evictions", p.hits.Load(), p.misses.Load(), p.evictions.Load())
	p.dir = nil
	p.ring = nil
	return nil
}
