// Package handle maps the 32-bit integers handed to guest code onto
// host-side values.
package handle

import (
	"math"

	"github.com/woxQAQ/sourcehost/pkg/abi"
)

// Invalid is returned wherever an operation cannot produce a handle.
const Invalid = abi.Invalid

// Table stores values under monotonically increasing handles. A handle may
// own other handles of the same table; destroying it destroys everything
// it owns, transitively.
//
// Table is not safe for concurrent use. Each module instance owns its tables
// and serializes host calls into them.
type Table[T any] struct {
	next     int32
	entries  map[int32]T
	children map[int32][]int32
}

// NewTable creates an empty table whose first handle is 0.
func NewTable[T any]() *Table[T] {
	return &Table[T]{
		entries:  make(map[int32]T),
		children: make(map[int32][]int32),
	}
}

// Store inserts v under a fresh handle.
func (t *Table[T]) Store(v T) int32 {
	if t.next == math.MaxInt32 {
		return Invalid
	}
	h := t.next
	t.next++
	t.entries[h] = v
	return h
}

// StoreOwned inserts v under a fresh handle owned by owner.
func (t *Table[T]) StoreOwned(v T, owner int32) int32 {
	h := t.Store(v)
	if h != Invalid {
		t.AddEdge(owner, h)
	}
	return h
}

// Read returns the value stored under h.
func (t *Table[T]) Read(h int32) (T, bool) {
	v, ok := t.entries[h]
	return v, ok
}

// Contains reports whether h is live.
func (t *Table[T]) Contains(h int32) bool {
	_, ok := t.entries[h]
	return ok
}

// AddEdge records child as owned by owner. Both handles must be live.
func (t *Table[T]) AddEdge(owner, child int32) bool {
	if owner == child || !t.Contains(owner) || !t.Contains(child) {
		return false
	}
	t.children[owner] = append(t.children[owner], child)
	return true
}

// Destroy removes h and every handle reachable through its ownership edges.
// Unknown handles are ignored.
func (t *Table[T]) Destroy(h int32) {
	pending := []int32{h}
	for len(pending) > 0 {
		last := len(pending) - 1
		cur := pending[last]
		pending = pending[:last]

		kids := t.children[cur]
		delete(t.children, cur)
		delete(t.entries, cur)
		pending = append(pending, kids...)
	}
}

// Len returns the number of live handles.
func (t *Table[T]) Len() int {
	return len(t.entries)
}

// Reset drops every entry. Handle numbering continues where it left off so
// stale handles from before the reset never alias new ones.
func (t *Table[T]) Reset() {
	clear(t.entries)
	clear(t.children)
}
