package arcgo

import (
	"math"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// maxRefs is the largest pre-increment count a clone or upgrade may observe.
// Anything above it can only come from leaked handles, and the process
// aborts long before the counter could wrap.
const maxRefs = math.MaxUint64 / 2

// Dropper is implemented by payloads that must release resources when the
// last Arc to them is released. Drop runs exactly once, on the goroutine
// that released the last Arc.
type Dropper interface {
	Drop()
}

// block is the control block shared by every handle to one object.
//
// data counts Arcs. alloc counts handles of either kind, with every Arc
// holding one implicit Weak; so alloc >= 1 whenever data >= 1. The payload is
// present exactly while data > 0 and the block is allocated exactly while
// alloc > 0.
//
// Ordering: every sync/atomic operation is sequentially consistent. The
// decrement that takes a counter from 1 to 0 therefore observes, and is
// ordered after, every earlier decrement together with the writes that
// preceded them. That gives the goroutine which destroys the payload (or
// frees the block) the same guarantee as a release decrement followed by an
// acquire fence, without a separate fence instruction.
type block[T any] struct {
	data    atomic.Uint64
	alloc   atomic.Uint64
	heap    *Heap[T]
	present bool
	value   T
	_       cpu.CacheLinePad
}

// destroy runs the payload's finalizer and clears the slot. It is called
// exactly once per allocation, by the goroutine that took data to zero.
func (b *block[T]) destroy() {
	h := b.heap
	if h.dropFunc != nil {
		h.dropFunc(&b.value)
	} else if d, ok := any(&b.value).(Dropper); ok {
		d.Drop()
	}

	var zero T
	b.value = zero
	b.present = false
	h.noteDrop()
}

func (b *block[T]) incAlloc() {
	if n := b.alloc.Add(1) - 1; n > maxRefs {
		abort(b.heap.logger, "handle count overflow", "count", n)
	}
}

func (b *block[T]) incData() {
	if n := b.data.Add(1) - 1; n > maxRefs {
		abort(b.heap.logger, "strong count overflow", "count", n)
	}
}
