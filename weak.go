package arcgo

import (
	"github.com/hupe1980/arcgo/internal/arena"
)

// Weak is a non-owning reference to a block. It keeps the block allocated
// but not the payload, and grants no access to the payload: call Upgrade to
// obtain an Arc.
//
// The zero Weak is empty: Upgrade always fails and Release is a no-op.
//
// A Weak is a small value. Copying it does not create a new reference; use
// Clone for that, and Release every Weak obtained from Clone or Downgrade
// exactly once.
type Weak[T any] struct {
	slot *arena.Slot[block[T]]
	gen  uint32
}

// block returns the control block, panicking on an empty or stale handle.
func (w Weak[T]) block() *block[T] {
	if w.slot == nil {
		panic(errReleased)
	}
	if w.slot.Gen() != w.gen {
		panic(errStale)
	}
	return w.slot.Ptr()
}

// Clone returns a new Weak to the same block. Cloning an empty Weak returns
// an empty Weak.
func (w Weak[T]) Clone() Weak[T] {
	if w.slot == nil {
		return Weak[T]{}
	}
	w.block().incAlloc()
	return w
}

// Upgrade returns a new Arc if the payload is still alive.
//
// Upgrade never resurrects a payload: once the last Arc has been released
// it fails forever, even when it races with that final release.
func (w Weak[T]) Upgrade() (Arc[T], bool) {
	if w.slot == nil {
		return Arc[T]{}, false
	}
	b := w.block()

	n := b.data.Load()
	for {
		if n == 0 {
			b.heap.metrics.OnUpgrade(false)
			return Arc[T]{}, false
		}
		if n > maxRefs {
			abort(b.heap.logger, "strong count overflow", "count", n)
		}
		if b.data.CompareAndSwap(n, n+1) {
			break
		}
		// Another goroutine changed the count. Retry with what it left.
		n = b.data.Load()
	}

	b.heap.metrics.OnUpgrade(true)
	return Arc[T]{weak: w.Clone()}, true
}

// StrongCount returns the number of Arcs to the block, or 0 for an empty
// Weak. The value may be stale by the time it is returned.
func (w Weak[T]) StrongCount() uint64 {
	if w.slot == nil {
		return 0
	}
	return w.block().data.Load()
}

// WeakCount returns the number of Weaks to the block, not counting the one
// held implicitly by the Arcs. It returns 0 for an empty Weak. The value may
// be stale by the time it is returned.
func (w Weak[T]) WeakCount() uint64 {
	if w.slot == nil {
		return 0
	}
	b := w.block()
	return weakCount(b)
}

// Release drops the reference and empties w. Releasing the last handle of
// either kind frees the block. Releasing an empty Weak is a no-op.
func (w *Weak[T]) Release() {
	if w.slot == nil {
		return
	}
	b := w.block()
	slot := w.slot
	*w = Weak[T]{}

	if b.alloc.Add(^uint64(0)) == 0 {
		b.heap.free(slot)
	}
}

func weakCount[T any](b *block[T]) uint64 {
	alloc := b.alloc.Load()
	if b.data.Load() > 0 && alloc > 0 {
		return alloc - 1
	}
	return alloc
}
