package arcgo

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/hupe1980/arcgo/internal/arena"
	"github.com/hupe1980/arcgo/resource"
)

// Heap is the allocation domain for blocks holding payloads of type T.
//
// Every Arc constructed by a heap lives in one slot of the heap's arena.
// The slot is taken exactly once, by New, and given back exactly once, when
// the last handle of either kind is released; the garbage collector plays
// no part in deciding when that happens.
//
// A Heap is safe for concurrent use.
type Heap[T any] struct {
	name       string
	arena      *arena.Arena[block[T]]
	logger     *Logger
	metrics    MetricsObserver
	dropFunc   func(*T)
	controller *resource.Controller
	warn       *rate.Limiter

	// live counts allocated blocks plus in-flight allocations; the arena is
	// released once it reaches zero on a closed heap.
	live        atomic.Int64
	closed      atomic.Bool
	releaseOnce sync.Once

	allocs atomic.Uint64
	drops  atomic.Uint64
	frees  atomic.Uint64
}

// Stats is a snapshot of heap usage.
type Stats struct {
	Name          string
	LiveBlocks    int64 // blocks with at least one handle
	LivePayloads  int64 // blocks with at least one Arc
	Allocs        uint64
	Drops         uint64
	Frees         uint64
	Chunks        uint64
	SlotsReserved uint64
	BytesReserved uint64
	Capacity      uint64 // most blocks that can be live at once
}

// budgetAcquirer adapts a resource.Controller to the arena. A context that
// can never be done means "do not wait".
type budgetAcquirer struct {
	rc *resource.Controller
}

func (b budgetAcquirer) AcquireMemory(ctx context.Context, amount int64) error {
	if ctx.Done() == nil {
		return b.rc.AcquireMemory(amount)
	}
	return b.rc.AcquireMemoryContext(ctx, amount)
}

func (b budgetAcquirer) ReleaseMemory(amount int64) {
	b.rc.ReleaseMemory(amount)
}

// NewHeap creates a heap for payloads of type T. The heap reserves no
// memory until its first allocation.
func NewHeap[T any](opts ...Option) (*Heap[T], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	h := &Heap[T]{
		name:    o.name,
		logger:  o.logger.WithHeap(o.name),
		metrics: o.metrics,
	}

	if o.dropFunc != nil {
		fn, ok := o.dropFunc.(func(*T))
		if !ok {
			return nil, &ErrInvalidOption{
				Option: "WithDropFunc",
				Reason: fmt.Sprintf("%T does not match payload type %s", o.dropFunc, reflect.TypeFor[T]()),
			}
		}
		h.dropFunc = fn
	}

	if o.chunkSlots < 0 {
		return nil, &ErrInvalidOption{Option: "WithChunkSlots", Reason: fmt.Sprintf("negative value %d", o.chunkSlots)}
	}
	if o.maxChunks < 0 {
		return nil, &ErrInvalidOption{Option: "WithMaxChunks", Reason: fmt.Sprintf("negative value %d", o.maxChunks)}
	}
	if o.memoryLimit < 0 {
		return nil, &ErrInvalidOption{Option: "WithMemoryLimit", Reason: fmt.Sprintf("negative value %d", o.memoryLimit)}
	}
	if o.memoryLimit > 0 && o.controller != nil {
		return nil, &ErrInvalidOption{Option: "WithMemoryLimit", Reason: "conflicts with WithResourceController"}
	}

	h.controller = o.controller
	if o.memoryLimit > 0 {
		h.controller = resource.NewController(resource.Config{MemoryLimitBytes: o.memoryLimit})
	}

	h.warn = rate.NewLimiter(rate.Inf, 1)
	if o.warnEvery > 0 {
		h.warn = rate.NewLimiter(rate.Every(o.warnEvery), 1)
	}

	arenaOpts := []arena.Option{
		arena.WithGrowHook(h.onGrow),
		arena.WithLiveTracking(o.leakTracking),
	}
	if o.chunkSlots > 0 {
		arenaOpts = append(arenaOpts, arena.WithChunkSlots(o.chunkSlots))
	}
	if o.maxChunks > 0 {
		arenaOpts = append(arenaOpts, arena.WithMaxChunks(o.maxChunks))
	}
	if h.controller != nil {
		arenaOpts = append(arenaOpts, arena.WithMemoryAcquirer(budgetAcquirer{rc: h.controller}))
	}

	a, err := arena.New[block[T]](arenaOpts...)
	if err != nil {
		return nil, &ErrInvalidOption{Option: "WithChunkSlots", Reason: err.Error(), cause: err}
	}
	h.arena = a

	return h, nil
}

// Name returns the heap name.
func (h *Heap[T]) Name() string {
	return h.name
}

// New constructs a payload on the heap and returns the first Arc to it.
//
// New does not wait for memory: if growing the heap would exceed its memory
// budget it fails with ErrMemoryLimitExceeded.
func (h *Heap[T]) New(v T) (Arc[T], error) {
	return h.NewContext(context.Background(), v)
}

// NewContext is like New, but if growing the heap needs memory that the
// budget does not currently allow, it waits until ctx is done.
func (h *Heap[T]) NewContext(ctx context.Context, v T) (Arc[T], error) {
	h.live.Add(1)
	if h.closed.Load() {
		h.unreserve()
		return Arc[T]{}, ErrHeapClosed
	}

	slot, err := h.arena.Alloc(ctx)
	if err != nil {
		h.unreserve()
		h.metrics.OnAllocError(err)
		if errors.Is(err, resource.ErrMemoryLimitExceeded) && h.warn.Allow() {
			h.logger.LogLimit(ctx, h.controller.MemoryUsage(), h.controller.MemoryLimit(), err)
		}
		return Arc[T]{}, fmt.Errorf("arcgo: allocate block: %w", err)
	}

	b := slot.Ptr()
	b.heap = h
	b.value = v
	b.present = true
	b.data.Store(1)
	b.alloc.Store(1)

	h.allocs.Add(1)
	h.metrics.OnAlloc()

	return Arc[T]{weak: Weak[T]{slot: slot, gen: slot.Gen()}}, nil
}

// MustNew is like New but panics if the allocation fails.
func (h *Heap[T]) MustNew(v T) Arc[T] {
	a, err := h.New(v)
	if err != nil {
		panic(err)
	}
	return a
}

// free returns a block whose alloc count reached zero to the arena.
func (h *Heap[T]) free(slot *arena.Slot[block[T]]) {
	h.arena.Free(slot)
	h.frees.Add(1)
	h.metrics.OnFree()
	h.unreserve()
}

func (h *Heap[T]) noteDrop() {
	h.drops.Add(1)
	h.metrics.OnDrop()
}

func (h *Heap[T]) onGrow(chunk uint32, bytes int64) {
	h.logger.LogGrow(context.Background(), chunk, bytes)
	h.metrics.OnGrow(bytes)
}

func (h *Heap[T]) unreserve() {
	if h.live.Add(-1) == 0 && h.closed.Load() {
		h.release()
	}
}

func (h *Heap[T]) release() {
	h.releaseOnce.Do(func() {
		stats := h.Stats()
		h.arena.Close()
		h.metrics.OnRelease(int64(stats.BytesReserved)) //nolint:gosec // sum of int64 chunk sizes
		h.logger.LogRelease(context.Background(), stats)
	})
}

// Stats returns a snapshot of heap usage.
func (h *Heap[T]) Stats() Stats {
	// Read frees and drops before allocs so the live counts never go negative.
	frees := h.frees.Load()
	drops := h.drops.Load()
	allocs := h.allocs.Load()
	as := h.arena.Stats()

	return Stats{
		Name:          h.name,
		LiveBlocks:    int64(allocs - frees), //nolint:gosec // allocs >= frees
		LivePayloads:  int64(allocs - drops), //nolint:gosec // allocs >= drops
		Allocs:        allocs,
		Drops:         drops,
		Frees:         frees,
		Chunks:        as.ChunksAllocated,
		SlotsReserved: as.SlotsReserved,
		BytesReserved: as.BytesReserved,
		Capacity:      h.arena.Capacity(),
	}
}

func (h *Heap[T]) String() string {
	return fmt.Sprintf("Heap[%s]{name: %q, %s}", reflect.TypeFor[T](), h.name, h.arena)
}

// Closed reports whether Close has been called.
func (h *Heap[T]) Closed() bool {
	return h.closed.Load()
}

// Close stops the heap from constructing new payloads.
//
// Handles that are still live keep working; the heap hands its memory back
// once the last of them is released. If any block is live, Close returns an
// *ErrLeaked describing them. An allocation already under way when Close is
// called is not a leak: it either fails or yields a block that must be
// released like any other. Closing a closed heap returns ErrHeapClosed.
func (h *Heap[T]) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return ErrHeapClosed
	}

	if h.live.Load() == 0 {
		h.release()
		return nil
	}

	// live also counts in-flight allocations; only constructed blocks leak.
	live := h.Stats().LiveBlocks
	if live == 0 {
		return nil
	}

	err := &ErrLeaked{Heap: h.name, Live: live, Slots: h.arena.Live()}
	h.logger.LogLeak(context.Background(), live, err.Slots)
	return err
}
