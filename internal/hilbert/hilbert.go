// Package hilbert implements the Hilbert space-filling curve codec for
// 2 and 3 dimensions of 32-bit unsigned coordinates, using the Butz
// algorithm (A. R. Butz, "Alternative Algorithm for Hilbert's
// Space-Filling Curve", IEEE Trans. Comp., April 1971) as ported from
// contrib/zcurve/hilbert2.c's hilbert_c2i/hilbert_i2c, generalized from
// that source's fixed-size static lookup tables to tables sized for the
// dimension in use, and operating on ckey.Key instead of a uint32 word
// array sized to the host register width.
package hilbert

import (
	"math/bits"
	"sync"

	"github.com/bmuratshin/sfcindex/internal/ckey"
)

// bitsPerCoord is the number of bits per dimension (m in the source).
// 32 matches spec.md's 32-bit unsigned coordinates exactly, so encode is
// defined on the whole coordinate range without truncation.
const bitsPerCoord = 32

type table struct {
	n         int
	bit       []int
	circshift [][]int
	parity    []int
	pToS      []int
	sToP      []int
	pToJ      []int
}

var (
	tableCache   = map[int]*table{}
	tableCacheMu sync.Mutex
)

func tablesFor(n int) *table {
	tableCacheMu.Lock()
	defer tableCacheMu.Unlock()
	if t, ok := tableCache[n]; ok {
		return t
	}
	t := buildTables(n)
	tableCache[n] = t
	return t
}

func buildTables(n int) *table {
	twoN := 1 << uint(n)
	t := &table{
		n:         n,
		bit:       make([]int, n),
		circshift: make([][]int, twoN),
		parity:    make([]int, twoN),
		pToS:      make([]int, twoN),
		sToP:      make([]int, twoN),
		pToJ:      make([]int, twoN),
	}
	bitof := make([][]int, twoN)
	for i := range bitof {
		bitof[i] = make([]int, n)
	}

	for b := 0; b < n; b++ {
		t.bit[b] = 1 << uint(n-b-1)
	}
	for i := 0; i < twoN; i++ {
		for b := 0; b < n; b++ {
			if i&t.bit[b] != 0 {
				bitof[i][b] = 1
			}
		}
	}
	for i := 0; i < twoN; i++ {
		row := make([]int, n)
		for b := 0; b < n; b++ {
			row[b] = (i >> uint(b)) | ((i << uint(n-b)) & (twoN - 1))
		}
		t.circshift[i] = row
	}

	t.parity[0] = 0
	bb := 1
	for i := 1; i < twoN; i++ {
		if i == bb*2 {
			bb *= 2
		}
		t.parity[i] = 1 - t.parity[i-bb]
	}

	for i := 0; i < twoN; i++ {
		s := i & t.bit[0]
		for b := 1; b < n; b++ {
			if bitof[i][b] != bitof[i][b-1] {
				s |= t.bit[b]
			}
		}
		t.pToS[i] = s
		t.sToP[s] = i

		j := n - 1
		for b := 0; b < n; b++ {
			if bitof[i][b] != bitof[i][n-1] {
				j = b
			}
		}
		t.pToJ[i] = j
	}
	return t
}

// Encode maps n coordinates (each bitsPerCoord bits) to a curve key via
// the Butz c2i transform.
func Encode(n int, coords []uint32) ckey.Key {
	t := tablesFor(n)
	m := bitsPerCoord

	alpha := make([]int, m)
	for b := 0; b < n; b++ {
		bt := t.bit[b]
		a := coords[b]
		for i := 1; i <= m; i++ {
			if (a>>uint(m-i))&1 != 0 {
				alpha[i-1] |= bt
			}
		}
	}

	rho := make([]int, m)
	jsum := 0
	var tauT1, omega1 int
	for i := 0; i < m; i++ {
		var omega int
		if i != 0 {
			omega = omega1 ^ tauT1
		}
		sigmaT := alpha[i] ^ omega
		sigma := sigmaT
		if jsum != 0 {
			sigma = t.circshift[sigmaT][n-jsum]
		}
		rho[i] = t.sToP[sigma]

		j := t.pToJ[rho[i]]
		tau := sigma ^ 1
		if t.parity[tau] != 0 {
			tau ^= t.bit[j]
		}
		tauT := tau
		if jsum != 0 {
			tauT = t.circshift[tau][jsum]
		}
		jsum += j
		if jsum >= n {
			jsum -= n
		}
		tauT1 = tauT
		omega1 = omega
	}

	var k ckey.Key
	for i := 0; i < m; i++ {
		group := m - 1 - i
		base := group * n
		v := rho[i]
		for j := 0; j < n; j++ {
			if (v>>uint(j))&1 != 0 {
				k = k.SetBit(base + j)
			}
		}
	}
	return k
}

// Decode is the inverse of Encode, the Butz i2c transform.
func Decode(n int, k ckey.Key) []uint32 {
	t := tablesFor(n)
	m := bitsPerCoord

	rho := make([]int, m)
	for i := 0; i < m; i++ {
		group := m - 1 - i
		base := group * n
		v := 0
		for j := 0; j < n; j++ {
			if k.Bit(base+j) != 0 {
				v |= 1 << uint(j)
			}
		}
		rho[i] = v
	}

	alpha := make([]int, m)
	jsum := 0
	var tauT1, omega1 int
	for i := 0; i < m; i++ {
		rh := rho[i]
		j := t.pToJ[rh]
		sigma := t.pToS[rh]
		tau := sigma ^ 1
		if t.parity[tau] != 0 {
			tau ^= t.bit[j]
		}
		sigmaT := sigma
		tauT := tau
		if jsum > 0 {
			sigmaT = t.circshift[sigma][jsum]
			tauT = t.circshift[tau][jsum]
		}
		jsum += j
		if jsum >= n {
			jsum -= n
		}
		var omega int
		if i != 0 {
			omega = omega1 ^ tauT1
		}
		omega1 = omega
		tauT1 = tauT
		alpha[i] = omega ^ sigmaT
	}

	coords := make([]uint32, n)
	for b := 0; b < n; b++ {
		bt := t.bit[b]
		var val uint32
		for i := 0; i < m; i++ {
			if alpha[i]&bt != 0 {
				val |= 1 << uint(m-1-i)
			}
		}
		coords[b] = val
	}
	return coords
}

// Split bisects a curve key range at its scalar midpoint: the left half
// ends at floor((low+high)/2) and the right half starts at the key after
// it. Unlike a Z-curve range, the two resulting halves are not
// guaranteed to decode back to an axis-aligned box (the Hilbert curve
// folds at every recursion level), so callers re-derive each half's
// extent from its keys via Attributes rather than assume the halves
// stay inside the parent's box. This is the pure scalar bisection
// decided for the open split-geometry question: no attempt is made to
// special-case the quadrant/octant boundaries the Butz recursion
// actually uses. If low == high there is nothing to split and Split
// returns the guard value (high, low).
func Split(low, high ckey.Key) (newHighLeft, newLowRight ckey.Key) {
	_, ok := ckey.HighestDifferingBit(low, high)
	if !ok {
		return high, low
	}
	mid := ckey.Mid(low, high)
	return mid, Next(mid)
}

// Next returns the curve key immediately following k (k+1), saturating
// at all-ones. Used to derive the low end of the right half of a split
// from the high end of the left half.
func Next(k ckey.Key) ckey.Key {
	w := k.Words()
	var carry uint64 = 1
	for i := 0; i < 4 && carry != 0; i++ {
		old := w[i]
		w[i] = old + carry
		if w[i] < old {
			carry = 1
		} else {
			carry = 0
		}
	}
	return ckey.FromWords(w)
}

// LimitsFromBox returns a curve-key interval known to contain every
// point of the box: the key range of the smallest aligned cube (side a
// power of two) holding both lo and hi. All points of that cube share
// the curve digits above the cube's level, so their keys form one
// contiguous run. Because the Hilbert curve does not visit an
// axis-aligned box's points contiguously in corner order the way a
// Z-curve does, this is a safe (possibly loose) enclosure, not an exact
// one; Attributes and the per-row box test compensate by testing the
// derived extent against the box.
func LimitsFromBox(d int, lo, hi []uint32) (minKey, maxKey ckey.Key) {
	var diff uint32
	for i := 0; i < d; i++ {
		diff |= lo[i] ^ hi[i]
	}
	level := bits.Len32(diff)
	k := Encode(d, lo)
	return k.ClearBelow(level * d), k.SetBelow(level * d)
}

// Attributes computes the solid/has-content/read-ready triple for a
// Hilbert sub-range. The sub-range's geometric extent starts as the
// bounding box of the decoded minKey, maxKey and their curve midpoint;
// for a multi-cell range it is then widened componentwise to the
// aligned cube whose keys share every curve digit above the highest bit
// where minKey and maxKey differ, since a Hilbert range's true extent
// can bulge past any finite set of sample points but never leaves that
// cube. A single-cell range is solid; a multi-cell range is solid only
// when its widened extent equals the query box exactly, matching the
// open design decision to prefer correctness over aggressive
// page-skipping for the Hilbert variant.
func Attributes(d int, loBox, hiBox []uint32, minKey, maxKey ckey.Key) (solid, hasContent, readReady bool) {
	lo := Decode(d, minKey)
	hi := Decode(d, maxKey)
	mid := Decode(d, ckey.Mid(minKey, maxKey))

	extLo := make([]uint32, d)
	extHi := make([]uint32, d)
	for i := 0; i < d; i++ {
		extLo[i], extHi[i] = lo[i], lo[i]
		for _, v := range []uint32{hi[i], mid[i]} {
			if v < extLo[i] {
				extLo[i] = v
			}
			if v > extHi[i] {
				extHi[i] = v
			}
		}
	}

	singleCell := ckey.Equal(minKey, maxKey)
	if b, ok := ckey.HighestDifferingBit(minKey, maxKey); ok {
		mask := uint32(uint64(1)<<uint(b/d+1) - 1)
		for i := 0; i < d; i++ {
			extLo[i] &^= mask
			extHi[i] |= mask
		}
	}

	solid = true
	for i := 0; i < d; i++ {
		if extLo[i] > extHi[i] {
			solid = false
			break
		}
	}
	if !singleCell {
		// A multi-cell Hilbert range is only ever treated as solid when
		// its widened extent happens to already match the full
		// query box exactly: anything looser risks skipping a page
		// that still holds rows outside the query.
		for i := 0; i < d; i++ {
			if extLo[i] != loBox[i] || extHi[i] != hiBox[i] {
				solid = false
				break
			}
		}
	}

	hasContent = true
	for i := 0; i < d; i++ {
		if extHi[i] < loBox[i] || extLo[i] > hiBox[i] {
			hasContent = false
			break
		}
	}

	readReady = solid || (singleCell && hasContent)
	return solid, hasContent, readReady
}
