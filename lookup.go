package sfcindex

import (
	"iter"

	"github.com/bmuratshin/sfcindex/internal/hilbert"
	"github.com/bmuratshin/sfcindex/internal/morton"
	"github.com/bmuratshin/sfcindex/internal/pager"
)

// Encode2D encodes a 2D coordinate pair via the Z-order codec and
// returns the low 64 bits of the resulting key (2x32 bits always fits).
func Encode2D(x, y uint32) uint64 {
	return morton.Encode(2, []uint32{x, y}).Word(0)
}

// EncodeAsBignum2D encodes a 2D coordinate pair and returns the full
// curve key, wide enough to convert to the host's arbitrary-precision
// integer via ckey.ToBig.
func EncodeAsBignum2D(x, y uint32) Key {
	return morton.Encode(2, []uint32{x, y})
}

// EncodeAsBignum3D encodes a 3D coordinate triple.
func EncodeAsBignum3D(x, y, z uint32) Key {
	return morton.Encode(3, []uint32{x, y, z})
}

// HilbertEncode2D encodes a 2D coordinate pair via the Hilbert codec.
func HilbertEncode2D(x, y uint32) Key {
	return hilbert.Encode(2, []uint32{x, y})
}

// HilbertEncode3D encodes a 3D coordinate triple via the Hilbert codec.
func HilbertEncode3D(x, y, z uint32) Key {
	return hilbert.Encode(3, []uint32{x, y, z})
}

// Row is one result of a sorted lookup: a row locator paired with its
// decoded coordinates.
type Row struct {
	Locator pager.RowLocator
	Coords  []uint32
}

// Lookup2D streams the rows of indexName whose Z-2D key decodes to a
// point inside [xLo,yLo]-[xHi,yHi], sorted by row locator for
// sequential heap access.
//
// Example:
//
//	for row, err := range sfcindex.Lookup2D(p, "my_index", 0, 0, 15, 15) {
//	    if err != nil { ... }
//	}
func Lookup2D(p pager.Pager, indexName string, xLo, yLo, xHi, yHi uint32) iter.Seq2[Row, error] {
	return lookupSorted(p, indexName, Z2D, []uint32{xLo, yLo}, []uint32{xHi, yHi})
}

// Lookup3D is Lookup2D's 3D counterpart over the Z-3D codec.
func Lookup3D(p pager.Pager, indexName string, xLo, yLo, zLo, xHi, yHi, zHi uint32) iter.Seq2[Row, error] {
	return lookupSorted(p, indexName, Z3D, []uint32{xLo, yLo, zLo}, []uint32{xHi, yHi, zHi})
}

// Lookup2DTIDOnly streams just the row locators of a Z-2D query, in
// curve order, skipping the result stager's sort.
func Lookup2DTIDOnly(p pager.Pager, indexName string, xLo, yLo, xHi, yHi uint32) iter.Seq2[pager.RowLocator, error] {
	return lookupTIDOnly(p, indexName, Z2D, []uint32{xLo, yLo}, []uint32{xHi, yHi})
}

// Lookup3DTIDOnly is Lookup2DTIDOnly's 3D counterpart.
func Lookup3DTIDOnly(p pager.Pager, indexName string, xLo, yLo, zLo, xHi, yHi, zHi uint32) iter.Seq2[pager.RowLocator, error] {
	return lookupTIDOnly(p, indexName, Z3D, []uint32{xLo, yLo, zLo}, []uint32{xHi, yHi, zHi})
}

// Hilbert3DLookupTIDOnly streams row locators of a Hilbert-3D query in
// curve order, skipping the sort stage.
func Hilbert3DLookupTIDOnly(p pager.Pager, indexName string, xLo, yLo, zLo, xHi, yHi, zHi uint32) iter.Seq2[pager.RowLocator, error] {
	return lookupTIDOnly(p, indexName, Hilbert3D, []uint32{xLo, yLo, zLo}, []uint32{xHi, yHi, zHi})
}

func lookupSorted(p pager.Pager, indexName string, kind Kind, lo, hi []uint32) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		d, err := NewDriver(p, indexName, kind, lo, hi)
		if err != nil {
			yield(Row{}, err)
			return
		}
		defer d.Close()

		var s stager
		if err := s.fillFirst(d); err != nil {
			yield(Row{}, err)
			return
		}
		for {
			row, ok := s.next()
			if !ok {
				return
			}
			if !yield(Row{Locator: row.locator, Coords: row.coords}, nil) {
				return
			}
		}
	}
}

func lookupTIDOnly(p pager.Pager, indexName string, kind Kind, lo, hi []uint32) iter.Seq2[pager.RowLocator, error] {
	return func(yield func(pager.RowLocator, error) bool) {
		d, err := NewDriver(p, indexName, kind, lo, hi)
		if err != nil {
			yield(pager.RowLocator{}, err)
			return
		}
		defer d.Close()

		ok, err := d.First()
		for {
			if err != nil {
				yield(pager.RowLocator{}, err)
				return
			}
			if !ok {
				return
			}
			if !yield(d.RowLocator(), nil) {
				return
			}
			ok, err = d.Next()
		}
	}
}
