// Package cursor implements the leaf-cursor: a position-independent
// walk over a pager.Pager that exposes seek-to-key, advance-within-page
// and step-to-next-leaf-via-parent-stack, the primitives the range
// driver pulls on. Grounded on the _bt_search/_bt_binsrch/right-link
// descent pattern from PostgreSQL's nbtree (the store this codec's
// B-tree contract was distilled from), adapted to the pager.Pager
// interface instead of a live buffer-manager.
package cursor

import (
	"math/big"

	"github.com/bmuratshin/sfcindex/internal/ckey"
	"github.com/bmuratshin/sfcindex/internal/pager"
)

// frame is one entry of the cursor's root-to-leaf parent stack: the
// page pinned at that level and the slot descended through.
type frame struct {
	id   pager.PageID
	slot int
}

// Cursor walks one pager.Pager, holding at most one pinned page at a
// time. The zero value is not usable; construct with Open.
type Cursor struct {
	p    pager.Pager
	root pager.PageID

	stack []frame

	pinnedID   pager.PageID
	page       pager.Page
	offset     int
	maxOffset  int
	currentKey ckey.Key
	lastOnPage ckey.Key
	locator    pager.RowLocator

	// LeafFetches counts pages pinned while positioned at leaf level,
	// for the instrumentation named by the strip-query test scenario.
	LeafFetches int
}

// Open resolves indexName against p and returns a Cursor ready for
// Seek. The returned Cursor holds no pinned page until Seek succeeds.
func Open(p pager.Pager, indexName string) (*Cursor, error) {
	root, err := p.Open(indexName)
	if err != nil {
		return nil, err
	}
	return &Cursor{p: p, root: root}, nil
}

// Close releases the pinned page, if any, and frees the parent stack.
func (c *Cursor) Close() {
	if c.pinnedID != pager.NoPage && c.page != nil {
		c.p.Unpin(c.pinnedID)
	}
	c.page = nil
	c.pinnedID = pager.NoPage
	c.stack = nil
}

func (c *Cursor) unpinCurrent() {
	if c.page != nil {
		c.p.Unpin(c.pinnedID)
		c.page = nil
		c.pinnedID = pager.NoPage
	}
}

func (c *Cursor) pin(id pager.PageID) (pager.Page, error) {
	pg, err := c.p.Pin(id)
	if err != nil {
		return nil, err
	}
	c.pinnedID = id
	c.page = pg
	if pg.IsLeaf() {
		c.LeafFetches++
	}
	return pg, nil
}

// CurrentKey returns the key at the cursor's current position. Valid
// only after Seek/AdvanceInPage/StepForward returns true.
func (c *Cursor) CurrentKey() ckey.Key { return c.currentKey }

// LastKeyOnPage returns the highest key on the currently pinned leaf.
func (c *Cursor) LastKeyOnPage() ckey.Key { return c.lastOnPage }

// RowLocator returns the row locator at the cursor's current position.
func (c *Cursor) RowLocator() pager.RowLocator { return c.locator }

// bigKey converts a ckey.Key to the big.Int form the pager stores.
func bigKey(k ckey.Key) *big.Int { return ckey.ToBig(k) }

func keyFromBig(b *big.Int) ckey.Key {
	k, err := ckey.FromBig(b)
	if err != nil {
		// The pager is expected to hold only well-formed keys produced
		// by this codec; a conversion failure means store corruption.
		panic("cursor: page holds a key outside the curve key's valid range: " + err.Error())
	}
	return k
}

// Seek descends from root to the leaf that would hold startKey, and
// positions the cursor at the first entry >= startKey, rolling forward
// onto the next leaf if that entry is past the end of the leaf reached
// by descent. It returns false iff the tree is empty or startKey
// exceeds every key in the index.
func (c *Cursor) Seek(startKey ckey.Key) (bool, error) {
	c.unpinCurrent()
	c.stack = c.stack[:0]
	target := bigKey(startKey)

	id := c.root
	for {
		if _, err := c.pin(id); err != nil {
			return false, err
		}
		if err := c.moveRight(target); err != nil {
			return false, err
		}
		pg := c.page
		if pg.IsLeaf() {
			break
		}
		slot := pager.ChildIndexForKey(pg, target)
		c.stack = append(c.stack, frame{id: pg.ID(), slot: slot})
		next := pg.ChildAt(slot)
		c.unpinCurrent()
		id = next
	}

	return c.positionOnLeaf(target)
}

// moveRight is _bt_moveright from nbtree's Lehman-Yao descent: a page
// reached by a stale downlink may have since shed its right half to a
// split, so before trusting a pinned page's own separators the cursor
// must follow right-sibling links until it lands on the page whose own
// keys actually cover target. Peeks one key of each candidate sibling
// before committing to the move; during the peek both pages are briefly
// pinned, and the one not settled on is unpinned before moving on, so at
// most one page is pinned when moveRight returns.
func (c *Cursor) moveRight(target *big.Int) error {
	for {
		rs := c.page.RightSibling()
		if rs == pager.NoPage {
			return nil
		}
		sib, err := c.p.Pin(rs)
		if err != nil {
			return err
		}
		if sib.Len() == 0 || sib.KeyAt(0).Cmp(target) > 0 {
			c.p.Unpin(rs)
			return nil
		}
		c.unpinCurrent()
		c.pinnedID = rs
		c.page = sib
		if sib.IsLeaf() {
			c.LeafFetches++
		}
	}
}

// positionOnLeaf assumes c.page is a pinned leaf; it finds the first
// slot >= target, rolling onto the next leaf(s) via StepForward if the
// leaf reached has no such slot.
func (c *Cursor) positionOnLeaf(target *big.Int) (bool, error) {
	pg := c.page
	if pg.Len() == 0 {
		return c.StepForward()
	}
	idx := pager.BinarySearchKeys(pg, target)
	if idx >= pg.Len() {
		return c.StepForward()
	}
	c.offset = idx
	c.maxOffset = pg.Len() - 1
	c.currentKey = keyFromBig(pg.KeyAt(idx))
	c.lastOnPage = keyFromBig(pg.KeyAt(pg.Len() - 1))
	c.locator = pg.LocatorAt(idx)
	return true, nil
}

// AdvanceInPage moves to the next slot on the pinned leaf. Returns
// false without moving if that would exceed the page's last slot.
func (c *Cursor) AdvanceInPage() bool {
	if c.offset >= c.maxOffset {
		return false
	}
	c.offset++
	c.currentKey = keyFromBig(c.page.KeyAt(c.offset))
	c.locator = c.page.LocatorAt(c.offset)
	return true
}

// StepForward walks the parent stack upward to the first ancestor not
// already at its last slot, descends its next child's leftmost path
// back down to leaf level, and positions the cursor at slot 0 there.
// Returns false if no such ancestor exists (end of tree).
func (c *Cursor) StepForward() (bool, error) {
	c.unpinCurrent()

	for len(c.stack) > 0 {
		top := c.stack[len(c.stack)-1]
		c.stack = c.stack[:len(c.stack)-1]

		parentPage, err := c.pin(top.id)
		if err != nil {
			return false, err
		}
		if top.slot+1 < parentPage.Len() {
			nextSlot := top.slot + 1
			c.stack = append(c.stack, frame{id: top.id, slot: nextSlot})
			id := parentPage.ChildAt(nextSlot)
			c.unpinCurrent()
			return c.descendLeftmost(id)
		}
		c.unpinCurrent()
	}
	return false, nil
}

// descendLeftmost pins id and, if it is internal, repeatedly follows
// slot 0 down to leaf level, pushing a parent-stack frame at each
// level, finally positioning at slot 0 of the leaf reached.
func (c *Cursor) descendLeftmost(id pager.PageID) (bool, error) {
	for {
		pg, err := c.pin(id)
		if err != nil {
			return false, err
		}
		if pg.IsLeaf() {
			if pg.Len() == 0 {
				c.unpinCurrent()
				return c.StepForward()
			}
			c.offset = 0
			c.maxOffset = pg.Len() - 1
			c.currentKey = keyFromBig(pg.KeyAt(0))
			c.lastOnPage = keyFromBig(pg.KeyAt(pg.Len() - 1))
			c.locator = pg.LocatorAt(0)
			return true, nil
		}
		c.stack = append(c.stack, frame{id: id, slot: 0})
		next := pg.ChildAt(0)
		c.unpinCurrent()
		id = next
	}
}

// PeekNextLeaf performs the same upward-then-downward walk as
// StepForward, but leaves the cursor's current position and pinned
// page untouched: only the returned key reflects the next leaf's first
// entry. It returns true iff a next leaf exists and its first key is
// <= upperBound.
func (c *Cursor) PeekNextLeaf(upperBound ckey.Key) (bool, ckey.Key, error) {
	savedPage, savedPinned := c.page, c.pinnedID
	savedOffset, savedMax := c.offset, c.maxOffset
	savedCurrent, savedLast, savedLocator := c.currentKey, c.lastOnPage, c.locator
	savedStack := make([]frame, len(c.stack))
	copy(savedStack, c.stack)

	// StepForward unpins the live page before walking, so the saved
	// page is pinned again below once the saved position is restored;
	// Pager pins are refcounted by id, not by Cursor field identity.
	ok, err := c.StepForward()
	var nextKey ckey.Key
	if err == nil && ok {
		nextKey = c.currentKey
	}

	// Undo whatever pin StepForward ended on, then restore the saved
	// position exactly.
	c.unpinCurrent()
	c.page, c.pinnedID = savedPage, savedPinned
	c.offset, c.maxOffset = savedOffset, savedMax
	c.currentKey, c.lastOnPage, c.locator = savedCurrent, savedLast, savedLocator
	c.stack = savedStack
	if savedPage != nil {
		if _, rerr := c.p.Pin(savedPinned); rerr != nil {
			return false, ckey.Key{}, rerr
		}
	}

	if err != nil {
		return false, ckey.Key{}, err
	}
	if !ok {
		return false, ckey.Key{}, nil
	}
	return ckey.Compare(nextKey, upperBound) <= 0, nextKey, nil
}
