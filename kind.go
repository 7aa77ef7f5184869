// Package sfcindex is a multidimensional point-index engine: it lets a
// row-oriented database serve axis-aligned range queries over a
// d-dimensional Cartesian key space (2, 3 or 8 dimensions of 32-bit
// unsigned coordinates) using a plain ordinal B-tree as the physical
// store, by linearising coordinates with a space-filling curve whose
// lexicographic order preserves spatial locality.
package sfcindex

import (
	"github.com/bmuratshin/sfcindex/internal/ckey"
	"github.com/bmuratshin/sfcindex/internal/hilbert"
	"github.com/bmuratshin/sfcindex/internal/morton"
)

// Key is a curve-key value: a non-negative integer of up to 256 bits,
// the indexed attribute actually stored in the B-tree.
type Key = ckey.Key

// Kind selects a codec and fixes the dimension and curve for the
// lifetime of a query. This is the sum type the source's per-kind
// function-pointer table is replaced with: dispatch is a plain switch,
// monomorphised by the compiler, with no vtable indirection on the hot
// encode/decode/compare paths.
type Kind int

const (
	Z2D Kind = iota
	Z3D
	Z8D
	Hilbert2D
	Hilbert3D
)

func (k Kind) String() string {
	switch k {
	case Z2D:
		return "Z2D"
	case Z3D:
		return "Z3D"
	case Z8D:
		return "Z8D"
	case Hilbert2D:
		return "Hilbert2D"
	case Hilbert3D:
		return "Hilbert3D"
	default:
		return "Kind(invalid)"
	}
}

// Dim returns the coordinate arity of k.
func (k Kind) Dim() int {
	switch k {
	case Z2D, Hilbert2D:
		return 2
	case Z3D, Hilbert3D:
		return 3
	case Z8D:
		return 8
	default:
		return 0
	}
}

func (k Kind) isHilbert() bool { return k == Hilbert2D || k == Hilbert3D }

// Encode maps a coordinate tuple to its curve key. Returns
// InvalidArgument if len(coords) != k.Dim().
func (k Kind) Encode(coords []uint32) (Key, error) {
	if len(coords) != k.Dim() {
		return Key{}, newError(InvalidArgument, "coordinate arity %d does not match kind %s (want %d)", len(coords), k, k.Dim())
	}
	if k.isHilbert() {
		return hilbert.Encode(k.Dim(), coords), nil
	}
	return morton.Encode(k.Dim(), coords), nil
}

// Decode is the inverse of Encode.
func (k Kind) Decode(key Key) []uint32 {
	if k.isHilbert() {
		return hilbert.Decode(k.Dim(), key)
	}
	return morton.Decode(k.Dim(), key)
}

// Split bisects a curve interval, per the codec contract in use.
func (k Kind) Split(low, high Key) (newHighLeft, newLowRight Key) {
	if k.isHilbert() {
		return hilbert.Split(low, high)
	}
	return morton.Split(k.Dim(), low, high)
}

// LimitsFromBox returns the tightest curve interval known to contain
// the box's corners.
func (k Kind) LimitsFromBox(lo, hi []uint32) (minKey, maxKey Key) {
	if k.isHilbert() {
		return hilbert.LimitsFromBox(k.Dim(), lo, hi)
	}
	return morton.LimitsFromBox(k.Dim(), lo, hi)
}

// Attributes computes the solid/has-content/read-ready triple for a
// sub-range of kind k against the query box (loBox, hiBox).
func (k Kind) Attributes(loBox, hiBox []uint32, minKey, maxKey Key) (solid, hasContent, readReady bool) {
	if k.isHilbert() {
		return hilbert.Attributes(k.Dim(), loBox, hiBox, minKey, maxKey)
	}
	return morton.Attributes(k.Dim(), loBox, hiBox, minKey, maxKey, k == Z8D)
}

// InBox reports whether coords lies within the closed box [loBox,hiBox].
func InBox(coords, loBox, hiBox []uint32) bool {
	for i := range coords {
		if coords[i] < loBox[i] || coords[i] > hiBox[i] {
			return false
		}
	}
	return true
}
