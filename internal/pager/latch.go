package pager

import "sync/atomic"

// ───────────────────────────────────────────────────────────────────────────
// Latch — non-reentrant, non-blocking reader/writer lock
// ───────────────────────────────────────────────────────────────────────────
//
// A Latch is represented by a single signed 32-bit atomic counter:
//
//	 0  = free
//	 n  = n concurrent readers, n > 0
//	-1  = one writer
//
// There is no fairness, no condition signaling, and no recursion. Writers
// can starve under continuous readers; acceptable because latches are only
// ever held for short, in-memory critical sections (a bucket scan or a
// single page's worth of cell manipulation).

// Latch is a spin-based reader/writer lock backed by a single atomic int32.
type Latch struct {
	state    atomic.Int32
	contends atomic.Uint64 // CAS retries observed, for telemetry only
}

// AcquireRead spins until a read lock is granted.
func (l *Latch) AcquireRead() {
	for {
		cur := l.state.Load()
		if cur >= 0 && l.state.CompareAndSwap(cur, cur+1) {
			return
		}
		l.contends.Add(1)
	}
}

// AcquireWrite spins until the latch is free and claimed for exclusive use.
func (l *Latch) AcquireWrite() {
	for {
		if l.state.CompareAndSwap(0, -1) {
			return
		}
		l.contends.Add(1)
	}
}

// TryAcquireWrite makes a single non-blocking attempt to claim the latch
// for exclusive use and reports whether it succeeded. CLOCK eviction does
// not use it: it checks Available instead, without taking the frame latch.
func (l *Latch) TryAcquireWrite() bool {
	return l.state.CompareAndSwap(0, -1)
}

// ReleaseRead releases one reader's hold. The caller must hold a read lock;
// violating this precondition is a programming error (spec §7: fatal in
// debug builds), so callers in this module never call it otherwise.
func (l *Latch) ReleaseRead() {
	l.state.Add(-1)
}

// ReleaseWrite releases the exclusive hold. The caller must hold the write
// lock.
func (l *Latch) ReleaseWrite() {
	l.state.Store(0)
}

// Available reports whether the latch is currently free.
func (l *Latch) Available() bool {
	return l.state.Load() == 0
}

// Contends returns the number of failed CAS attempts observed so far,
// exposed for internal/telemetry; it is not part of the locking contract.
func (l *Latch) Contends() uint64 {
	return l.contends.Load()
}
