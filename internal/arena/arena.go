package arena

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/arcgo/internal/conv"
)

// MemoryAcquirer is an interface for acquiring memory.
type MemoryAcquirer interface {
	AcquireMemory(ctx context.Context, amount int64) error
	ReleaseMemory(amount int64)
}

var (
	// ErrArenaFull is returned when the arena exceeds its maximum number of chunks.
	ErrArenaFull = errors.New("arena: max chunks exceeded")
	// ErrClosed is returned by Alloc after Close.
	ErrClosed = errors.New("arena: closed")
)

// DefaultChunkBytes is the size a chunk aims for when no slot count is set.
// Slots larger than this get one chunk each.
const DefaultChunkBytes = 64 << 10

// maxSlots bounds the index space: index+1 must fit the 32-bit free-list word.
const maxSlots = 1<<32 - 1

// Stats tracks arena usage metrics.
//
// Note on semantics:
//   - SlotsReserved: slots backed by allocated chunks
//   - SlotsLive: slots handed out by Alloc and not yet freed
//   - BytesReserved: memory reserved for chunks
//   - TotalAllocs/TotalFrees: cumulative counts
type Stats struct {
	ChunksAllocated uint64 // Historical: total chunks ever created
	SlotsReserved   uint64
	SlotsLive       uint64
	BytesReserved   uint64
	TotalAllocs     uint64
	TotalFrees      uint64
}

type atomicStats struct {
	ChunksAllocated atomic.Uint64
	SlotsReserved   atomic.Uint64
	SlotsLive       atomic.Int64
	BytesReserved   atomic.Uint64
	TotalAllocs     atomic.Uint64
	TotalFrees      atomic.Uint64
}

// Slot is one record of the arena.
type Slot[S any] struct {
	value S
	gen   atomic.Uint32
	next  atomic.Uint32 // free-list link: index+1 of the next free slot, 0 ends the list
	index uint32
}

// Ptr returns the address of the slot's record.
func (s *Slot[S]) Ptr() *S { return &s.value }

// Gen returns the slot's current generation.
func (s *Slot[S]) Gen() uint32 { return s.gen.Load() }

// Index returns the slot's arena-wide index.
func (s *Slot[S]) Index() uint32 { return s.index }

type chunk[S any] struct {
	slots []Slot[S]
	used  atomic.Uint32 // MUST be atomic - bump offset claimed with CAS
	index uint32
}

// Arena is a slot allocator for records of type S.
type Arena[S any] struct {
	chunkSlots uint32
	chunkBits  int
	chunkMask  uint32
	chunkBytes int64
	maxChunks  uint32
	dir        atomic.Pointer[[]*chunk[S]] // copied on growth; entries below chunkCount never change
	chunkCount atomic.Uint32
	closed     atomic.Bool
	current    atomic.Pointer[chunk[S]]
	free       atomic.Uint64 // tag<<32 | index+1 of the top free slot
	mu         sync.Mutex
	stats      atomicStats
	acquirer   MemoryAcquirer
	onGrow     func(chunk uint32, bytes int64)

	trackLive bool
	liveMu    sync.Mutex
	live      *roaring.Bitmap
}

type config struct {
	chunkSlots int
	maxChunks  int
	acquirer   MemoryAcquirer
	onGrow     func(chunk uint32, bytes int64)
	trackLive  bool
}

// Option is a configuration option for Arena.
type Option func(*config)

// WithChunkSlots sets the number of slots per chunk (rounded up to a power of two).
// Zero sizes chunks to about DefaultChunkBytes.
func WithChunkSlots(n int) Option {
	return func(c *config) {
		c.chunkSlots = n
	}
}

// WithMaxChunks limits the number of chunks the arena may allocate.
// Zero allows as many as the 32-bit slot index space holds.
func WithMaxChunks(n int) Option {
	return func(c *config) {
		c.maxChunks = n
	}
}

// WithMemoryAcquirer sets the memory acquirer for the arena.
func WithMemoryAcquirer(acquirer MemoryAcquirer) Option {
	return func(c *config) {
		c.acquirer = acquirer
	}
}

// WithGrowHook registers a callback invoked after each new chunk.
func WithGrowHook(fn func(chunk uint32, bytes int64)) Option {
	return func(c *config) {
		c.onGrow = fn
	}
}

// WithLiveTracking records live slot indices in a bitmap so Live can report them.
func WithLiveTracking(enabled bool) Option {
	return func(c *config) {
		c.trackLive = enabled
	}
}

// New creates a new Arena. No memory is reserved until the first Alloc.
func New[S any](opts ...Option) (*Arena[S], error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.chunkSlots < 0 {
		return nil, fmt.Errorf("arena: invalid chunk slots %d", cfg.chunkSlots)
	}
	if cfg.maxChunks < 0 {
		return nil, fmt.Errorf("arena: invalid max chunks %d", cfg.maxChunks)
	}

	var zero Slot[S]
	slotSize := unsafe.Sizeof(zero)

	// Chunk slots are a power of two so index splitting is a shift and a mask.
	var chunkBits int
	if cfg.chunkSlots > 0 {
		chunkBits = bits.Len(uint(cfg.chunkSlots - 1)) //nolint:gosec // chunkSlots > 0
	} else if n := DefaultChunkBytes / slotSize; n > 1 {
		chunkBits = bits.Len(uint(n)) - 1 // round down, stay within the byte target
	}
	if chunkBits >= 32 {
		return nil, fmt.Errorf("arena: %d chunk slots exceed the index space", cfg.chunkSlots)
	}
	chunkSlots := uint32(1) << chunkBits

	maxChunks := uint32(maxSlots >> chunkBits)
	if cfg.maxChunks > 0 {
		n, err := conv.IntToUint32(cfg.maxChunks)
		if err != nil {
			return nil, err
		}
		if uint64(n)<<chunkBits > maxSlots {
			return nil, fmt.Errorf("arena: %d chunks of %d slots exceed the index space", n, chunkSlots)
		}
		maxChunks = n
	}

	chunkBytes, err := conv.SlotBytes(int(chunkSlots), slotSize)
	if err != nil {
		return nil, err
	}

	a := &Arena[S]{
		chunkSlots: chunkSlots,
		chunkBits:  chunkBits,
		chunkMask:  chunkSlots - 1,
		chunkBytes: chunkBytes,
		maxChunks:  maxChunks,
		acquirer:   cfg.acquirer,
		onGrow:     cfg.onGrow,
		trackLive:  cfg.trackLive,
	}
	if a.trackLive {
		a.live = roaring.New()
	}
	return a, nil
}

func (a *Arena[S]) allocateChunkLocked(ctx context.Context) error {
	idx := a.chunkCount.Load()
	if idx >= a.maxChunks {
		return ErrArenaFull
	}

	if a.acquirer != nil {
		if err := a.acquirer.AcquireMemory(ctx, a.chunkBytes); err != nil {
			return err
		}
	}

	c := &chunk[S]{
		slots: make([]Slot[S], a.chunkSlots),
		index: idx,
	}
	base := idx << a.chunkBits
	for i := range c.slots {
		c.slots[i].index = base | uint32(i) //nolint:gosec // i < chunkSlots
	}

	// Readers only index below chunkCount, so the next entry may be written in
	// place while capacity lasts; a full directory is copied.
	var dir []*chunk[S]
	if p := a.dir.Load(); p != nil {
		dir = *p
	}
	if int(idx) == cap(dir) {
		n := max(2*cap(dir), 8)
		if uint64(n) > uint64(a.maxChunks) {
			n = int(a.maxChunks)
		}
		grown := make([]*chunk[S], len(dir), n)
		copy(grown, dir)
		dir = grown
	}
	dir = dir[:idx+1]
	dir[idx] = c
	a.dir.Store(&dir)

	a.stats.ChunksAllocated.Add(1)
	a.stats.SlotsReserved.Add(uint64(a.chunkSlots))
	a.stats.BytesReserved.Add(uint64(a.chunkBytes)) //nolint:gosec // chunkBytes >= 0

	// Get() is lock-free and needs to see the chunk before any index in it escapes.
	a.chunkCount.Add(1)
	a.current.Store(c)

	if a.onGrow != nil {
		a.onGrow(idx, a.chunkBytes)
	}
	return nil
}

// Alloc returns a free slot. The slot's record holds whatever its previous
// owner left in it; callers initialize every field they rely on.
func (a *Arena[S]) Alloc(ctx context.Context) (*Slot[S], error) {
	if s := a.pop(); s != nil {
		a.noteAlloc(s)
		return s, nil
	}

	for {
		if a.closed.Load() {
			return nil, ErrClosed
		}

		curr := a.current.Load()
		if curr != nil {
			if s := a.tryAllocInChunk(curr); s != nil {
				a.noteAlloc(s)
				return s, nil
			}

			// Current chunk is exhausted. Someone else may already have grown the
			// arena or freed a slot in the meantime.
			if a.current.Load() != curr {
				continue
			}
			if s := a.pop(); s != nil {
				a.noteAlloc(s)
				return s, nil
			}
		}

		a.mu.Lock()
		if a.closed.Load() {
			a.mu.Unlock()
			return nil, ErrClosed
		}
		if a.current.Load() != curr {
			a.mu.Unlock()
			continue
		}
		if err := a.allocateChunkLocked(ctx); err != nil {
			a.mu.Unlock()
			if s := a.pop(); s != nil {
				a.noteAlloc(s)
				return s, nil
			}
			return nil, err
		}
		a.mu.Unlock()
	}
}

func (a *Arena[S]) tryAllocInChunk(curr *chunk[S]) *Slot[S] {
	for {
		used := curr.used.Load()
		if used >= a.chunkSlots {
			return nil
		}
		if curr.used.CompareAndSwap(used, used+1) {
			return &curr.slots[used]
		}
	}
}

// Free returns s to the arena. s must have come from Alloc on this arena and
// must not be used by the caller afterwards.
func (a *Arena[S]) Free(s *Slot[S]) {
	s.gen.Add(1)

	if a.trackLive {
		a.liveMu.Lock()
		a.live.Remove(s.index)
		a.liveMu.Unlock()
	}
	a.stats.SlotsLive.Add(-1)
	a.stats.TotalFrees.Add(1)

	a.push(s)
}

func (a *Arena[S]) push(s *Slot[S]) {
	for {
		head := a.free.Load()
		s.next.Store(uint32(head))
		next := (head>>32+1)<<32 | uint64(s.index+1)
		if a.free.CompareAndSwap(head, next) {
			return
		}
	}
}

func (a *Arena[S]) pop() *Slot[S] {
	for {
		head := a.free.Load()
		top := uint32(head)
		if top == 0 {
			return nil
		}
		s := a.Get(top - 1)
		if s == nil {
			return nil
		}
		// A stale read of s.next is harmless: the tag makes the CAS fail.
		next := (head>>32+1)<<32 | uint64(s.next.Load())
		if a.free.CompareAndSwap(head, next) {
			return s
		}
	}
}

func (a *Arena[S]) noteAlloc(s *Slot[S]) {
	if a.trackLive {
		a.liveMu.Lock()
		a.live.Add(s.index)
		a.liveMu.Unlock()
	}
	a.stats.SlotsLive.Add(1)
	a.stats.TotalAllocs.Add(1)
}

// Get returns the slot at the given index, or nil if the index is not backed
// by a chunk.
func (a *Arena[S]) Get(index uint32) *Slot[S] {
	chunkIdx := index >> a.chunkBits
	if chunkIdx >= a.chunkCount.Load() {
		return nil
	}
	dir := a.dir.Load()
	if dir == nil || int(chunkIdx) >= len(*dir) {
		return nil
	}
	return &(*dir)[chunkIdx].slots[index&a.chunkMask]
}

// Tracking reports whether live slot tracking is enabled.
func (a *Arena[S]) Tracking() bool {
	return a.trackLive
}

// Live returns the sorted indices of all live slots. It returns nil when
// tracking is disabled.
func (a *Arena[S]) Live() []uint32 {
	if !a.trackLive {
		return nil
	}
	a.liveMu.Lock()
	defer a.liveMu.Unlock()
	return a.live.ToArray()
}

// Capacity returns the most slots the arena can hand out at once.
func (a *Arena[S]) Capacity() uint64 {
	return uint64(a.maxChunks) * uint64(a.chunkSlots)
}

// ChunkBytes returns the memory reserved per chunk.
func (a *Arena[S]) ChunkBytes() int64 {
	return a.chunkBytes
}

// Stats returns the current arena statistics.
func (a *Arena[S]) Stats() Stats {
	live := a.stats.SlotsLive.Load()
	if live < 0 {
		live = 0
	}
	return Stats{
		ChunksAllocated: a.stats.ChunksAllocated.Load(),
		SlotsReserved:   a.stats.SlotsReserved.Load(),
		SlotsLive:       uint64(live),
		BytesReserved:   a.stats.BytesReserved.Load(),
		TotalAllocs:     a.stats.TotalAllocs.Load(),
		TotalFrees:      a.stats.TotalFrees.Load(),
	}
}

// Close releases the arena's chunks and their memory reservation.
//
// IMPORTANT:
//  1. Do NOT call Close concurrently with Alloc
//  2. Slots are not scanned; the owner must have freed what it needs freed
//  3. After Close, Alloc returns ErrClosed
//
// Close is idempotent.
func (a *Arena[S]) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.closed.CompareAndSwap(false, true) {
		return
	}
	a.current.Store(nil)

	reserved := a.stats.BytesReserved.Swap(0)
	if a.acquirer != nil && reserved > 0 {
		a.acquirer.ReleaseMemory(int64(reserved)) //nolint:gosec // reserved originates from int64 chunk sizes
	}

	a.free.Store(0)
	a.chunkCount.Store(0)
	a.dir.Store(nil)
	a.stats.SlotsReserved.Store(0)
}

// Usage returns the percentage of reserved slots that are live.
func (a *Arena[S]) Usage() float64 {
	stats := a.Stats()
	if stats.SlotsReserved == 0 {
		return 0
	}
	return float64(stats.SlotsLive) / float64(stats.SlotsReserved) * 100
}

func (a *Arena[S]) String() string {
	stats := a.Stats()
	return fmt.Sprintf(
		"Arena{chunks: %d, slots: %d/%d, reserved: %.2f KB, usage: %.1f%%, allocs: %d, frees: %d}",
		a.chunkCount.Load(),
		stats.SlotsLive,
		stats.SlotsReserved,
		float64(stats.BytesReserved)/1024,
		a.Usage(),
		stats.TotalAllocs,
		stats.TotalFrees,
	)
}
