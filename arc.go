package arcgo

// Arc is an owning, atomically reference-counted handle to a payload of
// type T. The payload lives until the last Arc to it is released; the block
// holding it lives until the last Arc or Weak is released.
//
// An Arc may be used from any goroutine. Sharing one across goroutines is
// safe provided T itself may be copied to, and read from, several goroutines
// at once.
//
// An Arc is a small value. Copying it does not create a new reference; use
// Clone for that, and Release every Arc obtained from New, Clone or Upgrade
// exactly once. Using an Arc after Release panics.
type Arc[T any] struct {
	weak Weak[T]
}

// Clone returns a new Arc to the same payload.
func (a Arc[T]) Clone() Arc[T] {
	a.weak.block().incData()
	return Arc[T]{weak: a.weak.Clone()}
}

// Get returns a copy of the payload.
//
// Only the copy is handed out; the shared payload can be modified only
// through GetMut.
func (a Arc[T]) Get() T {
	b := a.weak.block()
	if !b.present {
		panic(errDestroyed)
	}
	return b.value
}

// GetMut returns a pointer to the payload if a is the only handle to it,
// Arc or Weak. Otherwise it returns nil and false.
//
// The check counts Weaks as well as Arcs: a live Weak could upgrade and read
// the payload while the caller mutates it.
//
// The pointer is valid until a is next cloned, downgraded or released.
// Callers must not retain it beyond that point.
func (a *Arc[T]) GetMut() (*T, bool) {
	b := a.weak.block()
	if !b.present {
		panic(errDestroyed)
	}

	if b.alloc.Load() != 1 {
		b.heap.metrics.OnGetMut(false)
		return nil, false
	}

	b.heap.metrics.OnGetMut(true)
	return &b.value, true
}

// Downgrade returns a Weak to the same block.
func (a Arc[T]) Downgrade() Weak[T] {
	if a.weak.slot == nil {
		panic(errReleased)
	}
	return a.weak.Clone()
}

// StrongCount returns the number of Arcs to the payload. The value may be
// stale by the time it is returned.
func (a Arc[T]) StrongCount() uint64 {
	return a.weak.block().data.Load()
}

// WeakCount returns the number of Weaks to the payload. The value may be
// stale by the time it is returned.
func (a Arc[T]) WeakCount() uint64 {
	return weakCount(a.weak.block())
}

// PtrEq reports whether a and other refer to the same block.
func (a Arc[T]) PtrEq(other Arc[T]) bool {
	return a.weak.slot != nil && a.weak.slot == other.weak.slot && a.weak.gen == other.weak.gen
}

// Valid reports whether a holds a reference, i.e. it has not been released
// and is not the zero Arc.
func (a Arc[T]) Valid() bool {
	return a.weak.slot != nil
}

// Release drops the reference and zeroes a. Releasing the last Arc destroys
// the payload on the calling goroutine. Releasing a zero Arc is a no-op.
func (a *Arc[T]) Release() {
	if a.weak.slot == nil {
		return
	}
	b := a.weak.block()

	if b.data.Add(^uint64(0)) == 0 {
		// The implicit Weak is released even if the finalizer panics.
		defer a.weak.Release()
		b.destroy()
		return
	}
	a.weak.Release()
}
