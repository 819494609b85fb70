// Package btree implements the ordered-map index built on top of
// internal/pager (spec.md §4.5): a B+tree-shaped structure keyed either by
// a varint-decoded unsigned integer (table flavor) or a 16-byte UUID
// (uuid flavor), splitting preemptively on the way down so every latch is
// acquired top-down and never re-acquired upward.
package btree

import (
	"sync/atomic"

	"github.com/clockdb/clockdb/internal/pager"
)

// Tree is a handle to one B-tree rooted at an atomically-tracked page id.
// The root is read fresh at the start of every operation (spec.md §9's
// Open Question resolution: a torn read during a concurrent root split is
// impossible because the new root is only published after it durably
// links to both of its children).
type Tree struct {
	pager  *pager.Pager
	flavor Flavor
	root   atomic.Uint32
}

// Create allocates a fresh, empty leaf root page and returns a handle to
// the new tree.
func Create(p *pager.Pager, flavor Flavor) (*Tree, *Error) {
	page, err := p.Next()
	if err != nil {
		return nil, wrapError(err, err.Code, "btree: create: allocating root page")
	}
	initNode(page.Data, true, flavor)
	t := &Tree{pager: p, flavor: flavor}
	t.root.Store(uint32(page.ID))
	p.Unfix(page)
	return t, nil
}

// Open returns a handle to an existing tree rooted at root.
func Open(p *pager.Pager, root pager.PageID, flavor Flavor) *Tree {
	t := &Tree{pager: p, flavor: flavor}
	t.root.Store(uint32(root))
	return t
}

// Root returns the tree's current root page id.
func (t *Tree) Root() pager.PageID { return pager.PageID(t.root.Load()) }

// Flavor returns the tree's key/value flavor.
func (t *Tree) Flavor() Flavor { return t.flavor }

// ── Lookup ────────────────────────────────────────────────────────────────

// Lookup descends holding only one shared latch at a time (spec.md §4.5),
// returning ENOENT if key is absent.
func (t *Tree) Lookup(key Key) ([]byte, *Error) {
	id := t.Root()
	for {
		page, err := t.pager.Fix(id, false)
		if err != nil {
			return nil, wrapError(err, err.Code, "btree: lookup: fixing page %d", id)
		}
		n := wrapNode(page.Data)
		if n.isLeaf() {
			pos, found := n.findLeafCell(key, t.flavor)
			if !found {
				t.pager.Unfix(page)
				return nil, newError(ENOENT, "btree: key not found")
			}
			_, value := decodeLeafCell(n.cellBytes(pos), t.flavor)
			t.pager.Unfix(page)
			return value, nil
		}
		child := n.findChild(key, t.flavor)
		t.pager.Unfix(page)
		id = child
	}
}

// ── Insert ────────────────────────────────────────────────────────────────

// Insert adds (key, value). EEXIST if key is already present. value must
// be exactly 4 bytes (a little-endian page id) for a uuid-flavored tree.
func (t *Tree) Insert(key Key, value []byte) *Error {
	for {
		rootID := t.Root()
		root, err := t.pager.Fix(rootID, true)
		if err != nil {
			return wrapError(err, err.Code, "btree: insert: fixing root page %d", rootID)
		}
		n := wrapNode(root.Data)
		if !n.hasRoomFor(t.worstCaseCellSize(n.isLeaf(), key, value)) {
			if err := t.growRoot(root); err != nil {
				t.pager.Unfix(root)
				return err
			}
			t.pager.Unfix(root)
			continue // retry from the new, taller root
		}
		return t.insertDescend(root, key, value)
	}
}

// worstCaseCellSize is the byte size the preemptive-split check guards
// against: the actual (key, value) payload at a leaf, or the largest
// possible separator cell a child's split could push up into an inner
// node.
func (t *Tree) worstCaseCellSize(leaf bool, key Key, value []byte) int {
	if leaf {
		return len(encodeLeafCell(key, value, t.flavor))
	}
	return maxInnerCellSize(t.flavor)
}

// growRoot splits a full root node in place (becoming the new root's left
// child) and wraps it with a fresh inner root, per spec.md §4.5 step 5.
func (t *Tree) growRoot(root *pager.Page) *Error {
	sibling, err := t.pager.Next()
	if err != nil {
		return wrapError(err, err.Code, "btree: grow root: allocating sibling page")
	}
	sepKey := t.splitNode(root.ID, root.Data, sibling.ID, sibling.Data)
	t.pager.Unfix(sibling)

	newRoot, err := t.pager.Next()
	if err != nil {
		return wrapError(err, err.Code, "btree: grow root: allocating new root page")
	}
	rn := initNode(newRoot.Data, false, t.flavor)
	if err := rn.insertCellAt(0, encodeInnerCell(root.ID, sepKey, t.flavor)); err != nil {
		t.pager.Unfix(newRoot)
		return newError(ESTRUCT, "btree: new root has no room for its first separator: %v", err)
	}
	rn.setRightChild(sibling.ID)
	t.pager.Unfix(newRoot)
	t.root.Store(uint32(newRoot.ID))
	return nil
}

// insertDescend holds cur exclusively, pre-splitting cur's chosen child
// before moving into it so no latch is ever re-acquired upward.
func (t *Tree) insertDescend(cur *pager.Page, key Key, value []byte) *Error {
	n := wrapNode(cur.Data)
	if n.isLeaf() {
		defer t.pager.Unfix(cur)
		return t.insertLeaf(n, key, value)
	}

	childID := n.findChild(key, t.flavor)
	child, err := t.pager.Fix(childID, true)
	if err != nil {
		t.pager.Unfix(cur)
		return wrapError(err, err.Code, "btree: insert descend: fixing child page %d", childID)
	}

	cn := wrapNode(child.Data)
	if !cn.hasRoomFor(t.worstCaseCellSize(cn.isLeaf(), key, value)) {
		sibling, err := t.pager.Next()
		if err != nil {
			t.pager.Unfix(child)
			t.pager.Unfix(cur)
			return wrapError(err, err.Code, "btree: insert descend: allocating split sibling for page %d", childID)
		}
		sepKey := t.splitNode(childID, child.Data, sibling.ID, sibling.Data)
		n.retarget(childID, sibling.ID)
		if err := n.insertCellAt(findInnerPos(n, sepKey, t.flavor), encodeInnerCell(childID, sepKey, t.flavor)); err != nil {
			t.pager.Unfix(sibling)
			t.pager.Unfix(child)
			t.pager.Unfix(cur)
			return newError(ESTRUCT, "btree: parent had no room for a pre-checked separator: %v", err)
		}

		// Tie-break: key goes left if key <= sepKey (the same rule
		// findChild applies), else right. sibling is already fixed
		// exclusively from Next() above — reuse that handle directly
		// rather than fixing its id a second time, which would spin
		// forever against the non-reentrant latch.
		if key.Compare(sepKey) > 0 {
			t.pager.Unfix(child)
			child = sibling
		} else {
			t.pager.Unfix(sibling)
		}
	}

	t.pager.Unfix(cur)
	return t.insertDescend(child, key, value)
}

// findInnerPos returns the sorted cell-pointer position for key in an
// inner node — used only when inserting a freshly pushed-up separator,
// whose position is otherwise identical to findLeafCell's binary search.
func findInnerPos(n *node, key Key, flavor Flavor) int {
	lo, hi := 0, n.cellCount()
	for lo < hi {
		mid := (lo + hi) / 2
		_, k := decodeInnerCell(n.cellBytes(mid), flavor)
		if k.Compare(key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func (t *Tree) insertLeaf(n *node, key Key, value []byte) *Error {
	pos, found := n.findLeafCell(key, t.flavor)
	if found {
		return newError(EEXIST, "btree: key already present")
	}
	rec := encodeLeafCell(key, value, t.flavor)
	if err := n.insertCellAt(pos, rec); err != nil {
		// The preemptive check above should make this unreachable; kept
		// as a structural invariant violation rather than a silent bug.
		return newError(ESTRUCT, "btree: leaf had no room after a pre-checked split: %v", err)
	}
	return nil
}

// splitNode reorganizes a full node's cells across itself (the "left"
// half, keeping id leftID) and a freshly allocated sibling (the "right"
// half, id rightID), and returns the separator key now dividing them.
// No new cell is inserted here — this is the preemptive, reorganize-only
// split spec.md §4.5 calls for, distinct from inserting into an
// already-full node.
func (t *Tree) splitNode(leftID pager.PageID, leftBuf []byte, rightID pager.PageID, rightBuf []byte) Key {
	left := wrapNode(leftBuf)
	flavor := t.flavor
	leaf := left.isLeaf()
	count := left.cellCount()
	mid := count / 2

	cells := make([][]byte, count)
	for i := 0; i < count; i++ {
		b := left.cellBytes(i)
		cp := make([]byte, len(b))
		copy(cp, b)
		cells[i] = cp
	}
	oldRight := left.rightChild()
	oldNext := left.nextLeaf()

	var sepKey Key
	right := initNode(rightBuf, leaf, flavor)

	if leaf {
		// The separator is the last key of the left half, so findChild's
		// key <= separator rule sends it (and every smaller key) left.
		if mid == 0 {
			mid = 1
		}
		sepKey, _ = decodeLeafCell(cells[mid-1], flavor)
		*left = *initNode(leftBuf, true, flavor)
		for i := 0; i < mid; i++ {
			must(left.insertCellAt(i, cells[i]))
		}
		for i := mid; i < count; i++ {
			must(right.insertCellAt(i-mid, cells[i]))
		}
		left.setNextLeaf(rightID)
		right.setNextLeaf(oldNext)
	} else {
		_, sepKey = decodeInnerCell(cells[mid], flavor)
		midChild, _ := decodeInnerCell(cells[mid], flavor)
		*left = *initNode(leftBuf, false, flavor)
		for i := 0; i < mid; i++ {
			must(left.insertCellAt(i, cells[i]))
		}
		left.setRightChild(midChild)
		for i := mid + 1; i < count; i++ {
			must(right.insertCellAt(i-mid-1, cells[i]))
		}
		right.setRightChild(oldRight)
	}
	return sepKey
}

// must panics on an error that splitNode's own worst-case sizing made
// provably impossible: a node's two halves, freshly formatted, always fit
// within the space the full node occupied before the split.
func must(err error) {
	if err != nil {
		panic(err)
	}
}

// ── Delete ────────────────────────────────────────────────────────────────

// Delete removes key. ENOENT if absent. No rebalancing is performed on
// underflow (spec.md's supplemented Non-goals): an emptied leaf is left
// in place rather than spliced out of its parent.
func (t *Tree) Delete(key Key) *Error {
	id := t.Root()
	for {
		page, err := t.pager.Fix(id, true)
		if err != nil {
			return wrapError(err, err.Code, "btree: delete: fixing page %d", id)
		}
		n := wrapNode(page.Data)
		if n.isLeaf() {
			pos, found := n.findLeafCell(key, t.flavor)
			if !found {
				t.pager.Unfix(page)
				return newError(ENOENT, "btree: delete: key not found")
			}
			n.deleteCellAt(pos)
			t.pager.Unfix(page)
			return nil
		}
		child := n.findChild(key, t.flavor)
		t.pager.Unfix(page)
		id = child
	}
}

// ── Range scan ────────────────────────────────────────────────────────────

// Scan visits every (key, value) pair with low <= key < high, in
// ascending order, stopping early if visit returns false. A nil low
// starts at the leftmost leaf; a nil high scans to the end of the tree.
// Only one page latch, held shared, is outstanding at any moment.
func (t *Tree) Scan(low, high *Key, visit func(key Key, value []byte) bool) *Error {
	leafID, err := t.leftmostLeaf(low)
	if err != nil {
		return wrapError(err, err.Code, "btree: scan: finding starting leaf")
	}

	for leafID != pager.InvalidPageID {
		page, err := t.pager.Fix(leafID, false)
		if err != nil {
			return wrapError(err, err.Code, "btree: scan: fixing leaf page %d", leafID)
		}
		n := wrapNode(page.Data)
		count := n.cellCount()
		for i := 0; i < count; i++ {
			k, v := decodeLeafCell(n.cellBytes(i), t.flavor)
			if low != nil && k.Compare(*low) < 0 {
				continue
			}
			if high != nil && k.Compare(*high) >= 0 {
				t.pager.Unfix(page)
				return nil
			}
			if !visit(k, v) {
				t.pager.Unfix(page)
				return nil
			}
		}
		next := n.nextLeaf()
		t.pager.Unfix(page)
		leafID = next
	}
	return nil
}

// leftmostLeaf descends to the leaf that would contain low (or the
// leftmost leaf in the tree, if low is nil).
func (t *Tree) leftmostLeaf(low *Key) (pager.PageID, *Error) {
	id := t.Root()
	for {
		page, err := t.pager.Fix(id, false)
		if err != nil {
			return pager.InvalidPageID, wrapError(err, err.Code, "btree: leftmost leaf: fixing page %d", id)
		}
		n := wrapNode(page.Data)
		if n.isLeaf() {
			t.pager.Unfix(page)
			return id, nil
		}
		var next pager.PageID
		if low == nil {
			if n.cellCount() > 0 {
				next, _ = decodeInnerCell(n.cellBytes(0), t.flavor)
			} else {
				next = n.rightChild()
			}
		} else {
			next = n.findChild(*low, t.flavor)
		}
		t.pager.Unfix(page)
		id = next
	}
}

// EncodePageID and DecodePageID adapt a pager.PageID to/from the 4-byte
// leaf value a uuid-flavored tree stores as its secondary-index target.
func EncodePageID(id pager.PageID) []byte { return encodePageIDValue(id) }
func DecodePageID(b []byte) pager.PageID  { return decodePageIDValue(b) }
