package sfcindex

import (
	"sort"

	"github.com/bmuratshin/sfcindex/internal/pager"
)

// stagedRow is one buffered result awaiting sorted delivery.
type stagedRow struct {
	coords  []uint32
	locator pager.RowLocator
}

// stager accumulates a driver's output and sorts it by row locator
// (block-id-hi, block-id-lo, slot) before draining to the caller, so
// the downstream heap fetch is sequential. It exists purely for that
// ordering; lookup_*_tidonly callers bypass it entirely and stream in
// curve order straight off the driver.
type stager struct {
	rows []stagedRow
	pos  int
	done bool
}

// fill drains d completely into the stager, sorted by row locator. Sort
// is stable so rows sharing a locator keep the order the driver
// produced them in.
func (s *stager) fill(d *Driver) error {
	for {
		ok, err := d.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		coords := make([]uint32, len(d.Coords()))
		copy(coords, d.Coords())
		s.rows = append(s.rows, stagedRow{coords: coords, locator: d.RowLocator()})
	}
	sort.SliceStable(s.rows, func(i, j int) bool {
		return s.rows[i].locator.Less(s.rows[j].locator)
	})
	return nil
}

// fillFirst is like fill but assumes the driver is freshly constructed
// and First has not yet been called.
func (s *stager) fillFirst(d *Driver) error {
	ok, err := d.First()
	if err != nil {
		return err
	}
	if ok {
		coords := make([]uint32, len(d.Coords()))
		copy(coords, d.Coords())
		s.rows = append(s.rows, stagedRow{coords: coords, locator: d.RowLocator()})
	}
	return s.fill(d)
}

// next drains one row in sorted order.
func (s *stager) next() (stagedRow, bool) {
	if s.pos >= len(s.rows) {
		return stagedRow{}, false
	}
	row := s.rows[s.pos]
	s.pos++
	return row, true
}
