// Package subrange implements the driver's sub-range queue: a LIFO stack
// of curve-key intervals backed by a flat arena, with a free-index stack
// so that popped nodes are reused instead of handed back to the garbage
// collector. Grounded on the source's design note that the queue is "a
// natural arena-backed structure: indices into a small vector, with a
// separate free-index stack", adapted here to Go slices and a big.Int
// cache field instead of a raw pointer.
package subrange

import (
	"math/big"

	"github.com/bmuratshin/sfcindex/internal/ckey"
)

// Range is one sub-range of the driver's decomposition of the query box.
type Range struct {
	Low, High  ckey.Key
	Solid      bool
	HasContent bool
	ReadReady  bool

	// CachedHiBig memoises High's big.Int form so the driver's emit
	// loop doesn't re-derive it on every solid-range advance.
	CachedHiBig *big.Int
}

// Queue is a LIFO stack of *Range with a free-list of retired slots.
// The zero value is ready to use.
type Queue struct {
	arena []Range
	live  []int // indices into arena, top of stack is the last element
	free  []int // indices into arena available for reuse
}

// Push allocates (or reuses) a slot for r and makes it the new top.
func (q *Queue) Push(r Range) {
	var idx int
	if n := len(q.free); n > 0 {
		idx = q.free[n-1]
		q.free = q.free[:n-1]
		q.arena[idx] = r
	} else {
		idx = len(q.arena)
		q.arena = append(q.arena, r)
	}
	q.live = append(q.live, idx)
}

// Top returns a pointer to the current top element. Callers may mutate
// it in place (the driver's split step does exactly this). Panics if
// the queue is empty.
func (q *Queue) Top() *Range {
	idx := q.live[len(q.live)-1]
	return &q.arena[idx]
}

// Pop removes and frees the top element.
func (q *Queue) Pop() {
	n := len(q.live)
	idx := q.live[n-1]
	q.live = q.live[:n-1]
	q.free = append(q.free, idx)
}

// Empty reports whether the queue currently holds no live sub-ranges.
func (q *Queue) Empty() bool {
	return len(q.live) == 0
}

// Len returns the number of live sub-ranges, for instrumentation and
// tests.
func (q *Queue) Len() int {
	return len(q.live)
}
