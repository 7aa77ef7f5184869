package cursor

import (
	"math/big"
	"testing"

	"github.com/bmuratshin/sfcindex/internal/ckey"
	"github.com/bmuratshin/sfcindex/internal/pager"
	"github.com/bmuratshin/sfcindex/internal/pager/memory"
)

func buildStore(n, fanout int) *memory.Store {
	entries := make([]memory.Entry, n)
	for i := 0; i < n; i++ {
		entries[i] = memory.Entry{
			Key:     big.NewInt(int64(i)),
			Locator: pager.RowLocator{BlockIDLo: uint32(i)},
		}
	}
	return memory.New("idx", entries, fanout)
}

func keyOf(i int64) ckey.Key {
	k, err := ckey.FromBig(big.NewInt(i))
	if err != nil {
		panic(err)
	}
	return k
}

func TestSeekAndAdvanceWalkInOrder(t *testing.T) {
	s := buildStore(25, 4)
	c, err := Open(s, "idx")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	ok, err := c.Seek(keyOf(0))
	if err != nil || !ok {
		t.Fatalf("Seek(0) = %v, %v", ok, err)
	}

	var got []int64
	got = append(got, ckey.ToBig(c.CurrentKey()).Int64())
	for {
		if c.AdvanceInPage() {
			got = append(got, ckey.ToBig(c.CurrentKey()).Int64())
			continue
		}
		more, err := c.StepForward()
		if err != nil {
			t.Fatalf("StepForward: %v", err)
		}
		if !more {
			break
		}
		got = append(got, ckey.ToBig(c.CurrentKey()).Int64())
	}

	if len(got) != 25 {
		t.Fatalf("walked %d keys, want 25", len(got))
	}
	for i, v := range got {
		if v != int64(i) {
			t.Fatalf("got[%d] = %d, want %d (out of order)", i, v, i)
		}
	}
	if s.PinnedCount() != 0 {
		t.Fatalf("pin/unpin imbalance after full scan: %d pinned", s.PinnedCount())
	}
}

func TestSeekPastEndReturnsFalse(t *testing.T) {
	s := buildStore(10, 4)
	c, _ := Open(s, "idx")
	defer c.Close()

	ok, err := c.Seek(keyOf(1000))
	if err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if ok {
		t.Fatalf("Seek past the last key must return false")
	}
}

func TestPeekNextLeafDoesNotMoveCursor(t *testing.T) {
	s := buildStore(40, 4)
	c, _ := Open(s, "idx")
	defer c.Close()

	ok, err := c.Seek(keyOf(0))
	if err != nil || !ok {
		t.Fatalf("Seek: %v, %v", ok, err)
	}
	before := ckey.ToBig(c.CurrentKey()).Int64()
	beforeLast := ckey.ToBig(c.LastKeyOnPage()).Int64()

	has, nextKey, err := c.PeekNextLeaf(keyOf(1000))
	if err != nil {
		t.Fatalf("PeekNextLeaf: %v", err)
	}
	if !has {
		t.Fatalf("expected a next leaf to exist")
	}
	if ckey.ToBig(nextKey).Int64() <= beforeLast {
		t.Fatalf("peeked next key %d should be past the current leaf's last key %d", ckey.ToBig(nextKey).Int64(), beforeLast)
	}

	after := ckey.ToBig(c.CurrentKey()).Int64()
	afterLast := ckey.ToBig(c.LastKeyOnPage()).Int64()
	if after != before || afterLast != beforeLast {
		t.Fatalf("PeekNextLeaf moved the cursor: before=(%d,%d) after=(%d,%d)", before, beforeLast, after, afterLast)
	}
	if s.PinnedCount() != 1 {
		t.Fatalf("cursor must hold exactly one pinned page after peek, got %d", s.PinnedCount())
	}
}

func TestPeekNextLeafAtEndOfTree(t *testing.T) {
	s := buildStore(8, 4)
	c, _ := Open(s, "idx")
	defer c.Close()

	ok, err := c.Seek(keyOf(0))
	if err != nil || !ok {
		t.Fatalf("Seek: %v, %v", ok, err)
	}
	// Advance to the last entry of the last leaf.
	for c.AdvanceInPage() {
	}
	for {
		more, err := c.StepForward()
		if err != nil {
			t.Fatalf("StepForward: %v", err)
		}
		if !more {
			break
		}
		for c.AdvanceInPage() {
		}
	}

	// The cursor itself is now past the end; re-seek near the end and
	// confirm PeekNextLeaf correctly reports no further leaf once
	// positioned on the last leaf's last key.
	ok, err = c.Seek(keyOf(7))
	if err != nil || !ok {
		t.Fatalf("Seek(7): %v, %v", ok, err)
	}
	has, _, err := c.PeekNextLeaf(keyOf(1000))
	if err != nil {
		t.Fatalf("PeekNextLeaf: %v", err)
	}
	if has {
		t.Fatalf("expected no next leaf past the last key in the tree")
	}
}
