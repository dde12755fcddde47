// Package arcgo provides atomically reference-counted shared ownership
// handles with weak references.
//
// An Arc[T] owns a share of a payload of type T. A Weak[T] observes the same
// block without keeping the payload alive. Each block carries two counters:
// one for Arcs, which decides when the payload is destroyed, and one for all
// handles, which decides when the block itself is freed. The garbage
// collector plays no part in either decision; blocks live in a slot arena
// owned by a Heap.
//
// # Quick Start
//
//	a := arcgo.New("Hello")         // default heap for string
//	b := a.Clone()
//	go func() {
//		defer b.Release()
//		fmt.Println(b.Get())
//	}()
//	a.Release()
//
// # Weak References
//
//	w := a.Downgrade()
//	if s, ok := w.Upgrade(); ok {
//		defer s.Release()
//		use(s.Get())
//	}
//	w.Release()
//
// Upgrade fails forever once the last Arc is released, even when it races
// with that release.
//
// # Exclusive Access
//
// GetMut returns a pointer to the payload only when the calling Arc is the
// single handle of either kind:
//
//	if p, ok := a.GetMut(); ok {
//		*p = "World"
//	}
//
// # Destruction
//
// When the last Arc is released the payload's finalizer runs on the
// releasing goroutine: a function set with WithDropFunc, or else the
// payload's Drop method (see Dropper). The payload is then zeroed.
//
// # Heaps
//
// NewHeap creates a private heap with its own arena, memory budget, logger
// and metrics observer:
//
//	h, _ := arcgo.NewHeap[*Conn](
//		arcgo.WithName("conns"),
//		arcgo.WithMemoryLimit(64<<20),
//		arcgo.WithLogger(arcgo.NewJSONLogger(slog.LevelInfo)),
//		arcgo.WithDropFunc(func(c **Conn) { (*c).Close() }),
//	)
//	defer h.Close()
//	a, err := h.New(conn)
//
// # Handle Rules
//
// Handles are small values; copying one does not add a reference. Release
// every handle obtained from New, Clone, Downgrade or Upgrade exactly once.
// Release zeroes the handle, and using a released Arc panics. A reference
// count that exceeds half its range means handles are being leaked, and the
// process aborts.
package arcgo
