// Package testutil holds deterministic test-data generators shared
// across the codec, cursor and driver test suites, in the style of the
// teacher corpus's internal/golden random-prefix helpers: a seeded
// math/rand/v2 source passed in by the caller so whole test runs stay
// reproducible.
package testutil

import "math/rand/v2"

// RandomCoords returns d random coordinates, each in [0, 2^32).
func RandomCoords(prng *rand.Rand, d int) []uint32 {
	out := make([]uint32, d)
	for i := range out {
		out[i] = prng.Uint32()
	}
	return out
}

// RandomBox returns a random axis-aligned box of d dimensions, each
// side no wider than maxSide, always well-formed (lo[i] <= hi[i]).
func RandomBox(prng *rand.Rand, d int, maxSide uint32) (lo, hi []uint32) {
	lo = make([]uint32, d)
	hi = make([]uint32, d)
	for i := 0; i < d; i++ {
		base := prng.Uint32()
		side := prng.Uint32N(maxSide + 1)
		if base > ^uint32(0)-side {
			base = ^uint32(0) - side
		}
		lo[i] = base
		hi[i] = base + side
	}
	return lo, hi
}

// GridPoints enumerates every point of a d-dimensional grid whose side
// runs 0..side-1 in every dimension, in lexicographic coordinate order.
func GridPoints(d int, side uint32) [][]uint32 {
	var out [][]uint32
	var rec func(prefix []uint32)
	rec = func(prefix []uint32) {
		if len(prefix) == d {
			cp := make([]uint32, d)
			copy(cp, prefix)
			out = append(out, cp)
			return
		}
		for v := uint32(0); v < side; v++ {
			rec(append(prefix, v))
		}
	}
	rec(nil)
	return out
}
