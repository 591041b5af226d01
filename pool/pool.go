// Package pool implements an arena of indexed entries: a generic store
// that hands out stable integer indices instead of pointers, so
// parent/child references between directory nodes never dangle when an
// entry is recycled.
package pool

import bitmap "github.com/boljen/go-bitmap"

// Index identifies an entry within a Pool. It is stable for the lifetime
// of the entry: an entry's Index never changes, even if the backing slice
// is reallocated.
type Index int

// Pool is an arena of T, indexed by small integers with a free list for
// recycling deleted entries. Recycled indices are reused in LIFO order,
// so the allocation order this produces is observable and intentional,
// not incidental.
type Pool[T any] struct {
	entries []T
	recycle []Index
	inUse   bitmap.Bitmap
}

// New creates an empty pool.
func New[T any]() *Pool[T] {
	return &Pool[T]{inUse: bitmap.New(0)}
}

// Append inserts a new entry, reusing a recycled index if one is
// available, and returns the index it was stored at.
func (p *Pool[T]) Append(value T) Index {
	if n := len(p.recycle); n > 0 {
		idx := p.recycle[n-1]
		p.recycle = p.recycle[:n-1]
		p.entries[idx] = value
		p.markInUse(idx, true)
		return idx
	}

	idx := Index(len(p.entries))
	p.entries = append(p.entries, value)
	p.markInUse(idx, true)
	return idx
}

// Read returns the entry at `idx`. The second return value is false if
// `idx` is out of range or was freed.
func (p *Pool[T]) Read(idx Index) (T, bool) {
	var zero T
	if !p.valid(idx) {
		return zero, false
	}
	return p.entries[idx], true
}

// Update replaces the entry at `idx` in place. It is a caller bug to call
// this on a freed index; callers should always hold the index returned by
// Append or a successful Read.
func (p *Pool[T]) Update(idx Index, value T) {
	if p.valid(idx) {
		p.entries[idx] = value
	}
}

// Delete recycles `idx` for reuse by a future Append. The entry's storage
// is left untouched (not zeroed) until it is overwritten.
func (p *Pool[T]) Delete(idx Index) {
	if !p.valid(idx) {
		return
	}
	p.recycle = append(p.recycle, idx)
	p.markInUse(idx, false)
}

// InUseCount returns the number of entries currently allocated (appended
// and not yet deleted).
func (p *Pool[T]) InUseCount() int {
	count := 0
	for i := 0; i < len(p.entries); i++ {
		if p.inUse.Get(i) {
			count++
		}
	}
	return count
}

func (p *Pool[T]) valid(idx Index) bool {
	return idx >= 0 && int(idx) < len(p.entries) && p.inUse.Get(int(idx))
}

// bitsCapacity returns the number of bits `inUse` can currently address.
// go-bitmap's Bitmap is a plain []byte, one bit per index, 8 bits/byte.
func (p *Pool[T]) bitsCapacity() int {
	return len(p.inUse) * 8
}

func (p *Pool[T]) markInUse(idx Index, value bool) {
	for int(idx) >= p.bitsCapacity() {
		grown := bitmap.New(p.bitsCapacity() + 64)
		copy(grown, p.inUse)
		p.inUse = grown
	}
	p.inUse.Set(int(idx), value)
}
