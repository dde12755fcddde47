// Package resource implements a memory budget shared between heaps.
//
// A heap reserves memory from the controller each time its arena grows by a
// chunk, and gives the reservation back when the heap is released. Several
// heaps can share one Controller to cap their combined footprint:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 64 << 20, // 64MB for all heaps
//	})
//
//	users, _ := arcgo.NewHeap[User](arcgo.WithResourceController(rc))
//	sessions, _ := arcgo.NewHeap[Session](arcgo.WithResourceController(rc))
//
// # Acquire Modes
//
// AcquireMemory is non-blocking and returns ErrMemoryLimitExceeded right
// away. AcquireMemoryContext waits on the underlying weighted semaphore until
// the budget allows the reservation or the context is done.
//
// # Nil Safety
//
// All methods handle nil Controller gracefully - they become no-ops.
// This allows optional resource limiting without nil checks everywhere.
package resource
