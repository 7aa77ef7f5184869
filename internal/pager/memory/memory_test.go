package memory

import (
	"math/big"
	"testing"

	"github.com/bmuratshin/sfcindex/internal/pager"
)

func entries(n int) []Entry {
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = Entry{
			Key:     big.NewInt(int64(i)),
			Locator: pager.RowLocator{BlockIDLo: uint32(i), Slot: 0},
		}
	}
	return out
}

func TestOpenReturnsRoot(t *testing.T) {
	s := New("idx", entries(50), 4)
	root, err := s.Open("idx")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if root == pager.NoPage {
		t.Fatalf("root must not be NoPage")
	}
	if _, err := s.Open("nope"); err == nil {
		t.Fatalf("expected error for unknown index name")
	}
}

func TestLeafChainCoversAllEntries(t *testing.T) {
	s := New("idx", entries(37), 4)
	root, _ := s.Open("idx")

	// Descend leftmost to the first leaf.
	id := root
	for {
		p, err := s.Pin(id)
		if err != nil {
			t.Fatalf("Pin: %v", err)
		}
		if p.IsLeaf() {
			s.Unpin(id)
			break
		}
		next := p.ChildAt(0)
		s.Unpin(id)
		id = next
	}

	count := 0
	for id != pager.NoPage {
		p, err := s.Pin(id)
		if err != nil {
			t.Fatalf("Pin: %v", err)
		}
		count += p.Len()
		next := p.RightSibling()
		s.Unpin(id)
		id = next
	}
	if count != 37 {
		t.Fatalf("leaf chain covered %d entries, want 37", count)
	}
	if s.PinnedCount() != 0 {
		t.Fatalf("pin/unpin imbalance: %d still pinned", s.PinnedCount())
	}
}

func TestChildIndexForKeyDescendsToCorrectLeaf(t *testing.T) {
	s := New("idx", entries(40), 4)
	root, _ := s.Open("idx")
	target := big.NewInt(23)

	id := root
	for {
		p, _ := s.Pin(id)
		if p.IsLeaf() {
			idx := pager.BinarySearchKeys(p, target)
			if idx >= p.Len() || p.KeyAt(idx).Cmp(target) != 0 {
				t.Fatalf("key %v not found on the leaf reached by descent", target)
			}
			s.Unpin(id)
			return
		}
		next := p.ChildAt(pager.ChildIndexForKey(p, target))
		s.Unpin(id)
		id = next
	}
}
