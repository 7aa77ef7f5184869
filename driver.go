package sfcindex

import (
	"errors"

	"github.com/bmuratshin/sfcindex/internal/ckey"
	"github.com/bmuratshin/sfcindex/internal/cursor"
	"github.com/bmuratshin/sfcindex/internal/pager"
	"github.com/bmuratshin/sfcindex/internal/subrange"
)

// Driver is the range-search state machine: it pulls sub-ranges off a
// queue, drives a leaf-cursor through them, splits sub-ranges whose
// upper bound exceeds the current leaf's last key, filters yielded keys
// against the query box, and exposes a first/next pull interface. One
// Driver is created per query and owns exactly one cursor, one
// sub-range queue and its free-list.
type Driver struct {
	kind         Kind
	boxLo, boxHi []uint32

	cur          *cursor.Cursor
	queue        subrange.Queue
	seeked       bool // whether cur is already positioned at queue.Top().Low
	atEnd        bool // the cursor ran off the end of the tree mid-emit
	done         bool // queue emptied and cursor reached end of tree, or closed
	interrupted  bool // Interrupt was called; the next pull reports Interrupted
	err          error

	curCoords  []uint32
	curLocator pager.RowLocator
}

// NewDriver opens a cursor on p against indexName and validates the
// query box against kind. The returned Driver is positioned before the
// first result; call First to begin pulling.
func NewDriver(p pager.Pager, indexName string, kind Kind, boxLo, boxHi []uint32) (*Driver, error) {
	d := kind.Dim()
	if len(boxLo) != d || len(boxHi) != d {
		return nil, newError(InvalidArgument, "box arity does not match kind %s (want %d)", kind, d)
	}
	for i := 0; i < d; i++ {
		if boxLo[i] > boxHi[i] {
			return nil, newError(InvalidArgument, "inverted box at dimension %d: lo=%d > hi=%d", i, boxLo[i], boxHi[i])
		}
	}
	cur, err := cursor.Open(p, indexName)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	return &Driver{kind: kind, boxLo: boxLo, boxHi: boxHi, cur: cur}, nil
}

// Close releases the driver's cursor. Idempotent.
func (d *Driver) Close() {
	if d.cur != nil {
		d.cur.Close()
	}
	d.done = true
}

// Interrupt requests that the driver stop yielding further results: the
// next First/Next call returns an Interrupted error instead of a row,
// the way a host cancels a long-running query between pulls.
// Idempotent. The flag is a plain, unsynchronised field, so calling
// Interrupt concurrently with First or Next is a data race.
func (d *Driver) Interrupt() {
	d.interrupted = true
}

// First positions the driver at its first result, if any. It reports
// false (with nil error) if the query box yields no rows.
func (d *Driver) First() (bool, error) {
	minKey, maxKey := d.kind.LimitsFromBox(d.boxLo, d.boxHi)
	solid, hasContent, readReady := d.kind.Attributes(d.boxLo, d.boxHi, minKey, maxKey)
	d.queue.Push(subrange.Range{
		Low: minKey, High: maxKey,
		Solid: solid, HasContent: hasContent, ReadReady: readReady,
		CachedHiBig: ckey.ToBig(maxKey),
	})
	return d.findNextMatch()
}

// Next advances to the following result. It reports false (nil error)
// once the stream is exhausted.
func (d *Driver) Next() (bool, error) {
	if d.done {
		return false, d.err
	}
	return d.findNextMatch()
}

func (d *Driver) checkInterrupted() (bool, error) {
	if !d.interrupted {
		return false, nil
	}
	d.err = newError(Interrupted, "query interrupted")
	d.Close()
	return true, d.err
}

// Coords returns the coordinate tuple of the current result.
func (d *Driver) Coords() []uint32 { return d.curCoords }

// RowLocator returns the row locator of the current result.
func (d *Driver) RowLocator() pager.RowLocator { return d.curLocator }

// LeafFetches reports how many leaf pages the driver's cursor has
// pinned so far, for the "fewer than 64 leaf keys inspected" style of
// instrumentation a caller may want to assert in tests.
func (d *Driver) LeafFetches() int { return d.cur.LeafFetches }

func wrapStoreError(err error) error {
	if ie, ok := AsIndexError(err); ok {
		return ie
	}
	var nf *pager.NotFoundError
	if errors.As(err, &nf) {
		return newError(NotFound, "%v", err)
	}
	return newError(StructureCorrupt, "%v", err)
}

// findNextMatch is the main pump described by the range-search driver's
// design: pull sub-ranges from the queue, split as needed, drive the
// cursor, filter against the box, and return the next qualifying
// (coords, row locator) pair.
func (d *Driver) findNextMatch() (bool, error) {
	if interrupted, err := d.checkInterrupted(); interrupted {
		return false, err
	}
	if d.atEnd {
		d.Close()
		return false, nil
	}
	for !d.queue.Empty() {
		q := d.queue.Top()

		if !q.HasContent {
			d.queue.Pop()
			d.seeked = false
			continue
		}

		if !d.seeked {
			ok, err := d.cur.Seek(q.Low)
			if err != nil {
				d.err = wrapStoreError(err)
				d.Close()
				return false, d.err
			}
			if !ok {
				d.Close()
				return false, nil
			}
			d.seeked = true

			// Every sub-range produced by a split shares its left
			// edge with whichever key was just seeked (split only
			// ever narrows the high end of the range in front of the
			// cursor and the low end of the range behind it), so the
			// cursor never needs to be re-seeked after a split.
			for !q.Solid && ckey.Compare(d.cur.LastKeyOnPage(), q.High) < 0 {
				newHi, newLo := d.kind.Split(q.Low, q.High)
				if ckey.Equal(newHi, q.High) && ckey.Equal(newLo, q.Low) {
					break // guard: no further split possible, load-bearing per design note
				}
				child := subrange.Range{Low: q.Low, High: newHi}
				child.Solid, child.HasContent, child.ReadReady = d.kind.Attributes(d.boxLo, d.boxHi, child.Low, child.High)
				child.CachedHiBig = ckey.ToBig(child.High)

				q.Low = newLo
				q.Solid, q.HasContent, q.ReadReady = d.kind.Attributes(d.boxLo, d.boxHi, q.Low, q.High)
				q.CachedHiBig = ckey.ToBig(q.High)

				d.queue.Push(child)
				q = d.queue.Top()
			}

			if !q.HasContent {
				// A child produced by this round of splitting turned
				// out not to intersect the box; skip it without
				// touching the cursor any further.
				d.queue.Pop()
				d.seeked = false
				continue
			}
		}

		found, advanceErr := d.emit(q)
		if advanceErr != nil {
			d.err = wrapStoreError(advanceErr)
			d.Close()
			return false, d.err
		}
		if found {
			return true, nil
		}

		d.queue.Pop()
		d.seeked = false
	}
	d.done = true
	return false, nil
}

// emit runs the body of the emit loop against the sub-range q (the
// current top of the queue) until it either produces a qualifying
// result (returns true) or exhausts q without one (returns false, with
// q left ready to be popped by the caller).
func (d *Driver) emit(q *subrange.Range) (bool, error) {
	for {
		if q.Solid {
			curBig := ckey.ToBig(d.cur.CurrentKey())
			if curBig.Cmp(q.CachedHiBig) > 0 {
				return false, nil
			}
			coords := d.kind.Decode(d.cur.CurrentKey())
			loc := d.cur.RowLocator()
			d.advanceCursor()
			d.curCoords, d.curLocator = coords, loc
			return true, nil
		}

		if ckey.Compare(d.cur.CurrentKey(), q.High) > 0 {
			return false, nil
		}
		coords := d.kind.Decode(d.cur.CurrentKey())
		if InBox(coords, d.boxLo, d.boxHi) {
			loc := d.cur.RowLocator()
			d.advanceCursor()
			d.curCoords, d.curLocator = coords, loc
			return true, nil
		}

		if d.cur.AdvanceInPage() {
			continue
		}
		has, _, err := d.cur.PeekNextLeaf(q.High)
		if err != nil {
			return false, err
		}
		if !has {
			return false, nil
		}
		more, err := d.cur.StepForward()
		if err != nil {
			return false, err
		}
		if !more {
			return false, nil
		}
	}
}

// advanceCursor moves the cursor one step forward, crossing leaf
// boundaries via step_forward as needed. If the cursor cannot advance
// (end of tree) it marks the driver atEnd, since the underlying store
// has no more rows at all and every remaining sub-range is moot.
func (d *Driver) advanceCursor() {
	if d.cur.AdvanceInPage() {
		return
	}
	more, err := d.cur.StepForward()
	if err != nil {
		d.err = wrapStoreError(err)
		d.atEnd = true
		return
	}
	if !more {
		d.atEnd = true
	}
}
