package sfcindex

import (
	"fmt"
	"sort"
	"testing"

	"github.com/bmuratshin/sfcindex/internal/ckey"
	"github.com/bmuratshin/sfcindex/internal/pager"
	"github.com/bmuratshin/sfcindex/internal/pager/memory"
	"github.com/bmuratshin/sfcindex/internal/testutil"
)

func buildIndex(t *testing.T, name string, kind Kind, points [][]uint32) *memory.Store {
	t.Helper()
	entries := make([]memory.Entry, len(points))
	for i, pt := range points {
		k, err := kind.Encode(pt)
		if err != nil {
			t.Fatalf("Encode(%v): %v", pt, err)
		}
		entries[i] = memory.Entry{
			Key:     ckey.ToBig(k),
			Locator: pager.RowLocator{BlockIDLo: uint32(i)},
		}
	}
	return memory.New(name, entries, 8)
}

func TestScenarioZ2DIdentity(t *testing.T) {
	pts := [][]uint32{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	s := buildIndex(t, "idx", Z2D, pts)

	d, err := NewDriver(s, "idx", Z2D, []uint32{0, 0}, []uint32{1, 1})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	defer d.Close()

	var got [][]uint32
	ok, err := d.First()
	for ok {
		cp := make([]uint32, 2)
		copy(cp, d.Coords())
		got = append(got, cp)
		ok, err = d.Next()
	}
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d points, want 4: %v", len(got), got)
	}
}

func TestScenarioZ3DSolidCube(t *testing.T) {
	pts := testutil.GridPoints(3, 16)
	s := buildIndex(t, "idx", Z3D, pts)

	d, err := NewDriver(s, "idx", Z3D, []uint32{0, 0, 0}, []uint32{7, 7, 7})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	defer d.Close()

	count := 0
	ok, err := d.First()
	for ok {
		count++
		ok, err = d.Next()
	}
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if count != 512 {
		t.Fatalf("got %d points, want 512 (8^3 cube)", count)
	}
}

func TestScenarioZ3DSkewedBox(t *testing.T) {
	pts := testutil.GridPoints(3, 16)
	s := buildIndex(t, "idx", Z3D, pts)

	d, err := NewDriver(s, "idx", Z3D, []uint32{1, 1, 1}, []uint32{6, 6, 6})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	defer d.Close()

	count := 0
	ok, err := d.First()
	for ok {
		for i, c := range d.Coords() {
			if c < 1 || c > 6 {
				t.Fatalf("point %v outside requested box at dimension %d", d.Coords(), i)
			}
		}
		count++
		ok, err = d.Next()
	}
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if count != 216 {
		t.Fatalf("got %d points, want 216 (6^3)", count)
	}
}

func TestScenarioHilbert3DDisjointExtentPrunes(t *testing.T) {
	pts := [][]uint32{{0, 0, 0}, {15, 15, 15}}
	s := buildIndex(t, "idx", Hilbert3D, pts)

	d, err := NewDriver(s, "idx", Hilbert3D, []uint32{10, 0, 0}, []uint32{15, 5, 5})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	defer d.Close()

	count := 0
	ok, err := d.First()
	for ok {
		count++
		ok, err = d.Next()
	}
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if count != 0 {
		t.Fatalf("got %d points, want 0 (both corners fall outside the query box)", count)
	}
}

func TestScenarioSortStability(t *testing.T) {
	// The same (x,y) inserted as two distinct rows: sorted lookup must
	// return their locators in block-id/slot order.
	k, _ := Z2D.Encode([]uint32{3, 3})
	entries := []memory.Entry{
		{Key: ckey.ToBig(k), Locator: pager.RowLocator{BlockIDLo: 5, Slot: 1}},
		{Key: ckey.ToBig(k), Locator: pager.RowLocator{BlockIDLo: 5, Slot: 0}},
	}
	s := memory.New("idx", entries, 8)

	var got []pager.RowLocator
	for row, err := range Lookup2D(s, "idx", 3, 3, 3, 3) {
		if err != nil {
			t.Fatalf("Lookup2D: %v", err)
		}
		got = append(got, row.Locator)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	if !sort.SliceIsSorted(got, func(i, j int) bool { return got[i].Less(got[j]) }) {
		t.Fatalf("rows not sorted by locator: %v", got)
	}
	if got[0].Slot != 0 || got[1].Slot != 1 {
		t.Fatalf("expected slot 0 before slot 1, got %v", got)
	}
}

func TestLookup2DTIDOnlySkipsSort(t *testing.T) {
	pts := testutil.GridPoints(2, 8)
	s := buildIndex(t, "idx", Z2D, pts)

	var locs []pager.RowLocator
	for loc, err := range Lookup2DTIDOnly(s, "idx", 2, 2, 5, 5) {
		if err != nil {
			t.Fatalf("Lookup2DTIDOnly: %v", err)
		}
		locs = append(locs, loc)
	}
	if len(locs) != 16 {
		t.Fatalf("got %d locators, want 16 (4x4 box)", len(locs))
	}
	// Unsorted streaming keeps curve order, not locator order.
	for i := 1; i < len(locs); i++ {
		prev, _ := Z2D.Encode(pts[locs[i-1].BlockIDLo])
		cur, _ := Z2D.Encode(pts[locs[i].BlockIDLo])
		if ckey.Compare(prev, cur) > 0 {
			t.Fatalf("locators not in curve order at %d: %v then %v", i, pts[locs[i-1].BlockIDLo], pts[locs[i].BlockIDLo])
		}
	}
}

func TestInvalidArgumentOnInvertedBox(t *testing.T) {
	s := buildIndex(t, "idx", Z2D, [][]uint32{{0, 0}})
	_, err := NewDriver(s, "idx", Z2D, []uint32{5, 0}, []uint32{1, 1})
	if err == nil {
		t.Fatalf("expected an error for an inverted box")
	}
	ie, ok := AsIndexError(err)
	if !ok || ie.Kind != InvalidArgument {
		t.Fatalf("got %v, want InvalidArgument", err)
	}
}

func TestInvalidArgumentOnArityMismatch(t *testing.T) {
	_, err := Z2D.Encode([]uint32{1, 2, 3})
	if err == nil {
		t.Fatalf("expected an error for a 3-tuple against a 2D kind")
	}
	if ie, ok := AsIndexError(err); !ok || ie.Kind != InvalidArgument {
		t.Fatalf("got %v, want InvalidArgument", err)
	}
}

func TestNotFoundOnUnknownIndexName(t *testing.T) {
	s := buildIndex(t, "idx", Z2D, [][]uint32{{0, 0}})
	_, err := NewDriver(s, "missing", Z2D, []uint32{0, 0}, []uint32{1, 1})
	if err == nil {
		t.Fatalf("expected an error for an unknown index name")
	}
	ie, ok := AsIndexError(err)
	if !ok || ie.Kind != NotFound {
		t.Fatalf("got %v, want NotFound", err)
	}
}

func TestInterruptStopsTheStream(t *testing.T) {
	pts := testutil.GridPoints(2, 16)
	s := buildIndex(t, "idx", Z2D, pts)

	d, err := NewDriver(s, "idx", Z2D, []uint32{0, 0}, []uint32{15, 15})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	defer d.Close()

	ok, err := d.First()
	if err != nil || !ok {
		t.Fatalf("First: ok=%v err=%v, want a first result", ok, err)
	}

	d.Interrupt()
	ok, err = d.Next()
	if ok {
		t.Fatalf("expected Next to stop after Interrupt")
	}
	ie, match := AsIndexError(err)
	if !match || ie.Kind != Interrupted {
		t.Fatalf("got %v, want Interrupted", err)
	}

	// Idempotent: calling Interrupt again, or pulling again, still
	// reports the same terminal condition rather than panicking.
	d.Interrupt()
	ok, err = d.Next()
	if ok {
		t.Fatalf("expected the stream to stay stopped")
	}
	if ie, match := AsIndexError(err); !match || ie.Kind != Interrupted {
		t.Fatalf("got %v, want Interrupted to persist", err)
	}
}

func TestBoxOutsideDataYieldsEmptyStream(t *testing.T) {
	s := buildIndex(t, "idx", Z2D, testutil.GridPoints(2, 4))
	d, err := NewDriver(s, "idx", Z2D, []uint32{100, 100}, []uint32{200, 200})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	defer d.Close()
	ok, err := d.First()
	if err != nil {
		t.Fatalf("First: %v", err)
	}
	if ok {
		t.Fatalf("expected an empty stream for a box fully outside the data")
	}
}

func TestLeafFetchInstrumentationStaysBounded(t *testing.T) {
	pts := testutil.GridPoints(2, 16)
	s := buildIndex(t, fmt.Sprintf("idx%d", len(pts)), Z2D, pts)

	d, err := NewDriver(s, fmt.Sprintf("idx%d", len(pts)), Z2D, []uint32{3, 0}, []uint32{3, 15})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	defer d.Close()

	count := 0
	ok, err := d.First()
	for ok {
		count++
		ok, err = d.Next()
	}
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if count != 16 {
		t.Fatalf("got %d points, want 16 (the x=3 strip)", count)
	}
	if d.LeafFetches() >= 64 {
		t.Fatalf("leaf fetches = %d, want fewer than 64", d.LeafFetches())
	}
}
