// Package memory is an in-process reference Pager: a static B+-tree
// built once from a sorted slice of entries, with leaf pages chained by
// right-sibling pointers and internal pages addressing children by
// separator key. Grounded on the btree walk contracts/sp_tree.c excerpt
// describes (_bt_search descending via binary search per page,
// right-link traversal at each level) but without the live insert path:
// this Pager exists to drive the cursor/driver tests and the demo
// command, not to be a production store.
package memory

import (
	"math/big"
	"sort"
	"sync/atomic"

	"github.com/bmuratshin/sfcindex/internal/pager"
)

// Entry is one (key, row locator) pair to be indexed.
type Entry struct {
	Key     *big.Int
	Locator pager.RowLocator
}

type leafPage struct {
	id    pager.PageID
	keys  []*big.Int
	locs  []pager.RowLocator
	right pager.PageID
}

func (p *leafPage) ID() pager.PageID                    { return p.id }
func (p *leafPage) IsLeaf() bool                        { return true }
func (p *leafPage) Len() int                            { return len(p.keys) }
func (p *leafPage) KeyAt(i int) *big.Int                { return p.keys[i] }
func (p *leafPage) LocatorAt(i int) pager.RowLocator    { return p.locs[i] }
func (p *leafPage) ChildAt(i int) pager.PageID          { panic("memory: ChildAt on leaf page") }
func (p *leafPage) RightSibling() pager.PageID          { return p.right }

type internalPage struct {
	id       pager.PageID
	keys     []*big.Int
	children []pager.PageID
	right    pager.PageID
}

func (p *internalPage) ID() pager.PageID                 { return p.id }
func (p *internalPage) IsLeaf() bool                     { return false }
func (p *internalPage) Len() int                         { return len(p.keys) }
func (p *internalPage) KeyAt(i int) *big.Int             { return p.keys[i] }
func (p *internalPage) LocatorAt(i int) pager.RowLocator { panic("memory: LocatorAt on internal page") }
func (p *internalPage) ChildAt(i int) pager.PageID       { return p.children[i] }
func (p *internalPage) RightSibling() pager.PageID       { return p.right }

// Store is a single named, immutable index built over a fanout-bounded
// B+-tree.
type Store struct {
	name   string
	pages  map[pager.PageID]pager.Page
	root   pager.PageID
	pinned int64 // atomic; mirrors sqlstore.Store's pin/unpin balance counter
}

// New builds a Store named name from entries, which need not already be
// sorted. fanout bounds both leaf page slot count and internal page
// child count; it must be >= 2.
func New(name string, entries []Entry, fanout int) *Store {
	if fanout < 2 {
		fanout = 2
	}
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key.Cmp(sorted[j].Key) < 0 })

	s := &Store{name: name, pages: map[pager.PageID]pager.Page{}}
	var nextID pager.PageID = 1
	alloc := func() pager.PageID { id := nextID; nextID++; return id }

	if len(sorted) == 0 {
		leaf := &leafPage{id: alloc()}
		s.pages[leaf.id] = leaf
		s.root = leaf.id
		return s
	}

	var level []pager.Page
	for i := 0; i < len(sorted); i += fanout {
		end := i + fanout
		if end > len(sorted) {
			end = len(sorted)
		}
		leaf := &leafPage{id: alloc()}
		for _, e := range sorted[i:end] {
			leaf.keys = append(leaf.keys, e.Key)
			leaf.locs = append(leaf.locs, e.Locator)
		}
		s.pages[leaf.id] = leaf
		level = append(level, leaf)
	}
	for i := 1; i < len(level); i++ {
		if lp, ok := level[i-1].(*leafPage); ok {
			lp.right = level[i].ID()
		} else if ip, ok := level[i-1].(*internalPage); ok {
			ip.right = level[i].ID()
		}
	}

	for len(level) > 1 {
		var next []pager.Page
		for i := 0; i < len(level); i += fanout {
			end := i + fanout
			if end > len(level) {
				end = len(level)
			}
			ip := &internalPage{id: alloc()}
			for _, child := range level[i:end] {
				ip.keys = append(ip.keys, child.KeyAt(0))
				ip.children = append(ip.children, child.ID())
			}
			s.pages[ip.id] = ip
			next = append(next, ip)
		}
		for i := 1; i < len(next); i++ {
			next[i-1].(*internalPage).right = next[i].ID()
		}
		level = next
	}
	s.root = level[0].ID()
	return s
}

func (s *Store) Open(name string) (pager.PageID, error) {
	if name != s.name {
		return pager.NoPage, &pager.NotFoundError{Name: name}
	}
	return s.root, nil
}

// Pin looks up id in the page map built once by New; the map is never
// mutated after New returns, so concurrent lookups need no locking.
func (s *Store) Pin(id pager.PageID) (pager.Page, error) {
	p, ok := s.pages[id]
	if !ok {
		return nil, &StoreError{Op: "Pin", Msg: "no such page"}
	}
	atomic.AddInt64(&s.pinned, 1)
	return p, nil
}

func (s *Store) Unpin(pager.PageID) {
	atomic.AddInt64(&s.pinned, -1)
}

// PinnedCount reports the outstanding Pin/Unpin balance, for tests
// asserting the cursor's at-most-one-pin invariant.
func (s *Store) PinnedCount() int {
	return int(atomic.LoadInt64(&s.pinned))
}

// StoreError reports a problem pinning a page within a Store. Unknown
// index names are reported via pager.NotFoundError instead, since that
// is a distinct terminal condition (spec.md §7's NotFound) from page
// corruption.
type StoreError struct {
	Op  string
	Msg string
}

func (e *StoreError) Error() string { return "pager/memory: " + e.Op + ": " + e.Msg }
