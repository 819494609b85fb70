package pager

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustOpen(t *testing.T, pageSize, dirSize uint32) *Pager {
	t.Helper()
	p, err := Open(Config{PageSize: pageSize, DirectorySize: dirSize})
	require.Nil(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestCapacityIsSeventyPercentOfDirectorySize(t *testing.T) {
	p := mustOpen(t, 124, 64)
	assert.EqualValues(t, 44, p.Capacity())
}

func TestFixZeroIsEinval(t *testing.T) {
	p := mustOpen(t, 256, 64)
	_, err := p.Fix(0, false)
	require.NotNil(t, err)
	assert.Equal(t, EINVAL, err.Code)
}

// Scenario 1 (spec.md §8): single fix/unfix, shared then exclusive.
func TestSingleFixUnfixLatchStates(t *testing.T) {
	p := mustOpen(t, 124, 64)

	page, err := p.Fix(3, false)
	require.Nil(t, err)
	assert.EqualValues(t, 1, page.fr.latch.state.Load())
	p.Unfix(page)
	assert.EqualValues(t, 0, page.fr.latch.state.Load())

	page2, err := p.Fix(3, true)
	require.Nil(t, err)
	assert.EqualValues(t, -1, page2.fr.latch.state.Load())
	p.Unfix(page2)
	assert.EqualValues(t, 0, page2.fr.latch.state.Load())
}

// Scenario 2: aliasing — fixing the same id twice returns the same frame.
func TestAliasingSamePageSameData(t *testing.T) {
	p := mustOpen(t, 124, 64)
	a, err := p.Fix(3, false)
	require.Nil(t, err)
	b, err := p.Fix(3, false)
	require.Nil(t, err)
	assert.Same(t, &a.Data[0], &b.Data[0])
	p.Unfix(a)
	p.Unfix(b)
}

// Scenario 3: disjoint ids return distinct frames.
func TestDisjointPagesDistinctData(t *testing.T) {
	p := mustOpen(t, 124, 64)
	a, err := p.Fix(3, false)
	require.Nil(t, err)
	b, err := p.Fix(4, false)
	require.Nil(t, err)
	assert.NotSame(t, &a.Data[0], &b.Data[0])
	p.Unfix(a)
	p.Unfix(b)
}

// Scenario 4: capacity. Fixing 1..capacity-1 succeeds; fixing one more
// without any prior unfix fails with ENOMEM because nothing is evictable.
func TestCapacityExhaustionIsEnomem(t *testing.T) {
	p := mustOpen(t, 124, 64)
	cap := int(p.Capacity())
	var pages []*Page
	for i := 1; i < cap; i++ {
		pg, err := p.Fix(PageID(i), false)
		require.Nilf(t, err, "fix %d", i)
		pages = append(pages, pg)
	}
	_, err := p.Fix(PageID(cap), false)
	require.NotNil(t, err)
	assert.Equal(t, ENOMEM, err.Code)

	for _, pg := range pages {
		p.Unfix(pg)
	}
}

// After one unfix, a distinct new page can be fixed — the unfixed page is
// evicted and its frame reused.
func TestUnfixThenEvictAllowsNewFix(t *testing.T) {
	p := mustOpen(t, 124, 64)
	cap := int(p.Capacity())
	var pages []*Page
	for i := 1; i < cap; i++ {
		pg, err := p.Fix(PageID(i), false)
		require.Nil(t, err)
		pages = append(pages, pg)
	}
	p.Unfix(pages[0])
	pages = pages[1:]

	pg, err := p.Fix(PageID(cap), false)
	require.Nil(t, err)
	p.Unfix(pg)

	for _, pg := range pages {
		p.Unfix(pg)
	}
}

// Scenario 5: parallel fix/unfix across many threads stays within
// capacity at quiescence and never errors.
func TestParallelFixUnfix(t *testing.T) {
	p := mustOpen(t, 256, 64)
	cap := int(p.Capacity())

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 10*cap; i++ {
				id := PageID(base*1000 + i + 1)
				pg, err := p.Fix(id, true)
				if err != nil {
					errs <- err
					return
				}
				p.Unfix(pg)
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected fix error: %v", err)
	}

	assert.LessOrEqual(t, p.pageCount.Load(), int64(p.Capacity()))
}

func TestDoubleCloseIsStructError(t *testing.T) {
	p, err := Open(Config{PageSize: 256, DirectorySize: 64})
	require.Nil(t, err)
	require.Nil(t, p.Close())
	err = p.Close()
	require.NotNil(t, err)
	assert.Equal(t, ESTRUCT, err.Code)
}

// Closing with a page still fixed is a fatal precondition violation
// (spec.md §7): Close must reject it rather than tear down the directory
// and ring out from under a latched frame.
func TestCloseWithOutstandingFixIsStructError(t *testing.T) {
	p, err := Open(Config{PageSize: 256, DirectorySize: 64})
	require.Nil(t, err)

	pg, ferr := p.Fix(1, false)
	require.Nil(t, ferr)

	cerr := p.Close()
	require.NotNil(t, cerr)
	assert.Equal(t, ESTRUCT, cerr.Code)

	p.Unfix(pg)
	require.Nil(t, p.Close())
}

func TestOpenRejectsNonPowerOfTwoDirectory(t *testing.T) {
	_, err := Open(Config{PageSize: 256, DirectorySize: 63})
	require.NotNil(t, err)
	assert.Equal(t, EINVAL, err.Code)
}

func TestOpenRejectsSmallPageSize(t *testing.T) {
	_, err := Open(Config{PageSize: 64, DirectorySize: 64})
	require.NotNil(t, err)
	assert.Equal(t, EINVAL, err.Code)
}

func TestNextNeverReturnsZeroAndIsMonotonic(t *testing.T) {
	p := mustOpen(t, 256, 64)
	pg1, err := p.Next()
	require.Nil(t, err)
	p.Unfix(pg1)
	pg2, err := p.Next()
	require.Nil(t, err)
	p.Unfix(pg2)
	assert.NotZero(t, pg1.ID)
	assert.Greater(t, pg2.ID, pg1.ID)
}

func TestUnfixSetsDirtyAndRefOnExclusive(t *testing.T) {
	p := mustOpen(t, 256, 64)
	pg, err := p.Fix(5, true)
	require.Nil(t, err)
	fr := pg.fr
	p.Unfix(pg)
	flags := fr.flags.Load()
	assert.NotZero(t, flags&flagDirty)
	assert.NotZero(t, flags&flagRef)
	assert.Zero(t, flags&flagExclusive)
}

func TestWritebackHookCalledOnDirtyEviction(t *testing.T) {
	var seen []PageID
	p, err := Open(Config{
		PageSize:      256,
		DirectorySize: 64,
		Writeback: func(id PageID, data []byte) error {
			seen = append(seen, id)
			return nil
		},
	})
	require.Nil(t, err)
	defer p.Close()

	cap := int(p.Capacity())
	for i := 1; i < cap; i++ {
		pg, err := p.Fix(PageID(i), true)
		require.Nil(t, err)
		pg.Data[0] = 0xAB
		p.Unfix(pg) // dirty
	}
	// capacity-1 pages are now reserved, so fixing one more distinct page
	// forces an eviction. Re-fixing page 1 first only sets its REF bit
	// again; it does not change the reservation count.
	pg, err := p.Fix(PageID(1), false)
	require.Nil(t, err)
	p.Unfix(pg)

	last, err := p.Fix(PageID(cap+1000), false)
	if err == nil {
		assert.NotEmpty(t, seen)
		p.Unfix(last)
	}
}
