// Command sfcdemo builds a small point index in a SQLite-backed store
// and runs one range query against it, the way cmd/main.go in the
// teacher repo drives a route table end to end from the command line.
package main

import (
	"flag"
	"log"
	"math/rand/v2"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	sfcindex "github.com/bmuratshin/sfcindex"
	"github.com/bmuratshin/sfcindex/internal/ckey"
	"github.com/bmuratshin/sfcindex/internal/pager"
	"github.com/bmuratshin/sfcindex/internal/pager/sqlstore"
)

func main() {
	log.SetFlags(log.Lmicroseconds)

	var (
		dsn      = flag.String("db", ":memory:", "sqlite dsn to build the index in")
		kindFlag = flag.String("kind", "hilbert3d", "index kind: z2d, z3d, z8d, hilbert2d, hilbert3d")
		points   = flag.Int("points", 50_000, "random points to insert")
		side     = flag.Uint("side", 1<<20, "coordinate range per dimension, [0,side)")
		fanout   = flag.Int("fanout", 64, "B-tree page fanout")
		boxSide  = flag.Uint("box", 1<<16, "side length of the query box, centered in the space")
		seed     = flag.Uint64("seed", 42, "PRNG seed, for reproducible demo runs")
	)
	flag.Parse()

	kind, err := parseKind(*kindFlag)
	if err != nil {
		log.Fatalf("sfcdemo: %v", err)
	}

	store, err := sqlstore.Open(*dsn)
	if err != nil {
		log.Fatalf("sfcdemo: open store: %v", err)
	}
	defer store.Close()

	prng := rand.New(rand.NewPCG(*seed, *seed^0xdeadbeef))
	entries := randomEntries(prng, kind, *points, uint32(*side))

	ts := time.Now()
	if err := store.Build("demo", entries, *fanout); err != nil {
		log.Fatalf("sfcdemo: build index: %v", err)
	}
	log.Printf("built %s index: %s points in %v", kind, humanize.Comma(int64(len(entries))), time.Since(ts))

	boxLo, boxHi := centeredBox(kind.Dim(), uint32(*side), uint32(*boxSide))
	runQuery(store, kind, boxLo, boxHi)
}

func parseKind(s string) (sfcindex.Kind, error) {
	switch s {
	case "z2d":
		return sfcindex.Z2D, nil
	case "z3d":
		return sfcindex.Z3D, nil
	case "z8d":
		return sfcindex.Z8D, nil
	case "hilbert2d":
		return sfcindex.Hilbert2D, nil
	case "hilbert3d":
		return sfcindex.Hilbert3D, nil
	default:
		ie := sfcindex.InvalidArgument
		return 0, &sfcindex.IndexError{Kind: ie, Msg: "unknown kind: " + s}
	}
}

func randomEntries(prng *rand.Rand, kind sfcindex.Kind, n int, side uint32) []sqlstore.Entry {
	d := kind.Dim()
	out := make([]sqlstore.Entry, 0, n)
	for i := 0; i < n; i++ {
		coords := make([]uint32, d)
		for j := range coords {
			coords[j] = uint32(prng.Uint32N(side))
		}
		key, err := kind.Encode(coords)
		if err != nil {
			log.Fatalf("sfcdemo: encode %v: %v", coords, err)
		}
		out = append(out, sqlstore.Entry{
			Key:     ckey.ToBig(key),
			Locator: pager.RowLocator{BlockIDLo: uint32(i)},
		})
	}
	return out
}

func centeredBox(d int, side, boxSide uint32) (lo, hi []uint32) {
	lo = make([]uint32, d)
	hi = make([]uint32, d)
	mid := side / 2
	half := boxSide / 2
	for i := 0; i < d; i++ {
		lo[i] = mid - half
		hi[i] = mid + half
	}
	return lo, hi
}

func runQuery(store *sqlstore.Store, kind sfcindex.Kind, boxLo, boxHi []uint32) {
	queryID := uuid.New()
	log.Printf("query %s: kind=%s box_lo=%v box_hi=%v", queryID, kind, boxLo, boxHi)

	d, err := sfcindex.NewDriver(store, "demo", kind, boxLo, boxHi)
	if err != nil {
		log.Fatalf("query %s: NewDriver: %v", queryID, err)
	}
	defer d.Close()

	ts := time.Now()
	count := 0
	ok, err := d.First()
	for ok {
		count++
		ok, err = d.Next()
	}
	if err != nil {
		log.Fatalf("query %s: scan error: %v", queryID, err)
	}
	elapsed := time.Since(ts)

	log.Printf("query %s: %s rows in %v (%s leaf fetches)",
		queryID, humanize.Comma(int64(count)), elapsed, humanize.Comma(int64(d.LeafFetches())))
}
