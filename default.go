package arcgo

import (
	"reflect"
	"sync"
)

// defaultHeaps maps reflect.Type to *Heap[T] for that T.
var defaultHeaps sync.Map

// DefaultHeap returns the process-wide heap used by New for payloads of
// type T. It is created on first use and never closed.
func DefaultHeap[T any]() *Heap[T] {
	key := reflect.TypeFor[T]()
	if h, ok := defaultHeaps.Load(key); ok {
		return h.(*Heap[T])
	}

	h, err := NewHeap[T](WithName(key.String()))
	if err != nil {
		// Default options carry no budget and a valid geometry.
		panic(err)
	}
	actual, _ := defaultHeaps.LoadOrStore(key, h)
	return actual.(*Heap[T])
}

// New constructs v on the default heap for T and returns the first Arc to it.
//
// The default heap grows until 2^32-1 blocks of type T are live at once,
// the limit of its slot index space; New panics with ErrArenaFull beyond
// that, or if the host runs out of memory.
func New[T any](v T) Arc[T] {
	return DefaultHeap[T]().MustNew(v)
}
