package arcgo

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/arcgo/internal/arena"
	"github.com/hupe1980/arcgo/resource"
)

func TestNewHeapInvalidOptions(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 20})

	tests := []struct {
		name   string
		opts   []Option
		option string
	}{
		{"NegativeChunkSlots", []Option{WithChunkSlots(-1)}, "WithChunkSlots"},
		{"NegativeMaxChunks", []Option{WithMaxChunks(-1)}, "WithMaxChunks"},
		{"NegativeMemoryLimit", []Option{WithMemoryLimit(-1)}, "WithMemoryLimit"},
		{"LimitAndController", []Option{WithMemoryLimit(1 << 20), WithResourceController(rc)}, "WithMemoryLimit"},
		{"IndexSpace", []Option{WithChunkSlots(1 << 20), WithMaxChunks(1 << 13)}, "WithChunkSlots"},
		{"DropFuncType", []Option{WithDropFunc(func(*string) {})}, "WithDropFunc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewHeap[int](tt.opts...)
			require.Error(t, err)
			assert.Nil(t, h)

			var invalid *ErrInvalidOption
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.option, invalid.Option)
		})
	}
}

func TestHeapDefaults(t *testing.T) {
	h, err := NewHeap[int]()
	require.NoError(t, err)

	assert.Equal(t, "default", h.Name())
	assert.False(t, h.Closed())

	assert.Equal(t, Stats{Name: "default", Capacity: h.arena.Capacity()}, h.Stats(), "nothing reserved before the first allocation")
	assert.Contains(t, h.String(), `Heap[int]{name: "default", Arena{chunks: 0, slots: 0/0`)

	a := h.MustNew(1)
	stats := h.Stats()
	assert.Equal(t, uint64(1), stats.Chunks)
	assert.Positive(t, stats.BytesReserved)
	assert.LessOrEqual(t, stats.BytesReserved, uint64(arena.DefaultChunkBytes))
	assert.Contains(t, h.String(), fmt.Sprintf("Arena{chunks: 1, slots: 1/%d", stats.SlotsReserved))
	a.Release()

	require.NoError(t, h.Close())
	assert.True(t, h.Closed())
}

func TestHeapStats(t *testing.T) {
	h := newTestHeap[int](t, WithChunkSlots(2))

	a := h.MustNew(1)
	b := h.MustNew(2)
	c := h.MustNew(3)
	w := c.Downgrade()

	stats := h.Stats()
	assert.Equal(t, t.Name(), stats.Name)
	assert.Equal(t, uint64(3), stats.Allocs)
	assert.Equal(t, uint64(2), stats.Chunks)
	assert.Equal(t, int64(3), stats.LiveBlocks)

	a.Release()
	c.Release()

	stats = h.Stats()
	assert.Equal(t, uint64(2), stats.Drops)
	assert.Equal(t, uint64(1), stats.Frees)
	assert.Equal(t, int64(2), stats.LiveBlocks)
	assert.Equal(t, int64(1), stats.LivePayloads)

	b.Release()
	w.Release()
	assert.Equal(t, int64(0), h.Stats().LiveBlocks)
}

func TestHeapArenaFull(t *testing.T) {
	h := newTestHeap[int](t, WithChunkSlots(1), WithMaxChunks(2))

	a := h.MustNew(1)
	b := h.MustNew(2)

	_, err := h.New(3)
	require.ErrorIs(t, err, ErrArenaFull)
	assert.Panics(t, func() { h.MustNew(3) })

	a.Release()
	c, err := h.New(3)
	require.NoError(t, err, "freed slot is reused")

	b.Release()
	c.Release()
}

func TestHeapMemoryLimit(t *testing.T) {
	t.Run("FirstChunk", func(t *testing.T) {
		h, err := NewHeap[int](WithMemoryLimit(1))
		require.NoError(t, err, "an empty heap reserves nothing")

		_, err = h.New(1)
		require.ErrorIs(t, err, ErrMemoryLimitExceeded)
		require.NoError(t, h.Close())
	})

	t.Run("SharedController", func(t *testing.T) {
		cb := oneChunkBytes[int](t)
		rc := resource.NewController(resource.Config{MemoryLimitBytes: 2 * cb})

		h := newTestHeap[int](t, WithChunkSlots(1), WithResourceController(rc))
		assert.Equal(t, int64(0), rc.MemoryUsage())

		a := h.MustNew(1)
		assert.Equal(t, cb, rc.MemoryUsage())
		b := h.MustNew(2)
		assert.Equal(t, 2*cb, rc.MemoryUsage())

		_, err := h.New(3)
		require.ErrorIs(t, err, ErrMemoryLimitExceeded)

		// A second heap cannot reserve its first chunk either.
		other := newTestHeap[int](t, WithChunkSlots(1), WithResourceController(rc))
		_, err = other.New(1)
		require.ErrorIs(t, err, ErrMemoryLimitExceeded)

		a.Release()
		c, err := h.New(3)
		require.NoError(t, err, "free slots cost no memory")

		b.Release()
		c.Release()
		require.NoError(t, h.Close())
		assert.Equal(t, int64(0), rc.MemoryUsage())
	})

	t.Run("ContextTimeout", func(t *testing.T) {
		cb := oneChunkBytes[int](t)
		rc := resource.NewController(resource.Config{MemoryLimitBytes: cb})
		h := newTestHeap[int](t, WithChunkSlots(1), WithResourceController(rc))

		a := h.MustNew(1)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := h.NewContext(ctx, 2)
		require.ErrorIs(t, err, ErrMemoryLimitExceeded)
		require.ErrorIs(t, err, context.DeadlineExceeded)

		a.Release()
	})

	t.Run("ContextWaitsForRelease", func(t *testing.T) {
		cb := oneChunkBytes[int](t)
		rc := resource.NewController(resource.Config{MemoryLimitBytes: 2 * cb})
		h := newTestHeap[int](t, WithChunkSlots(1), WithResourceController(rc))
		other, err := NewHeap[int](WithChunkSlots(1), WithResourceController(rc))
		require.NoError(t, err)

		o := other.MustNew(0)
		o.Release()
		a := h.MustNew(1)
		assert.Equal(t, 2*cb, rc.MemoryUsage())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var b Arc[int]
		var g errgroup.Group
		g.Go(func() error {
			var err error
			b, err = h.NewContext(ctx, 2)
			return err
		})

		require.NoError(t, other.Close())
		require.NoError(t, g.Wait())
		assert.Equal(t, 2, b.Get())

		a.Release()
		b.Release()
	})
}

func TestHeapClose(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 30})
		h, err := NewHeap[int](WithResourceController(rc))
		require.NoError(t, err)
		a := h.MustNew(1)
		a.Release()
		assert.Positive(t, rc.MemoryUsage())

		require.NoError(t, h.Close())
		assert.Equal(t, int64(0), rc.MemoryUsage())
		assert.ErrorIs(t, h.Close(), ErrHeapClosed)

		_, err = h.New(1)
		assert.ErrorIs(t, err, ErrHeapClosed)
	})

	t.Run("Leaked", func(t *testing.T) {
		rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 30})
		h, err := NewHeap[string](
			WithName("leaky"),
			WithLeakTracking(true),
			WithResourceController(rc),
		)
		require.NoError(t, err)

		a := h.MustNew("still here")
		w := a.Downgrade()

		err = h.Close()
		var leaked *ErrLeaked
		require.ErrorAs(t, err, &leaked)
		assert.Equal(t, "leaky", leaked.Heap)
		assert.Equal(t, int64(1), leaked.Live)
		assert.Equal(t, []uint32{a.weak.slot.Index()}, leaked.Slots)
		assert.Contains(t, leaked.Error(), `"leaky"`)

		_, err = h.New("late")
		assert.ErrorIs(t, err, ErrHeapClosed)

		// Existing handles keep working after Close.
		assert.Equal(t, "still here", a.Get())
		b := a.Clone()
		b.Release()
		a.Release()
		_, ok := w.Upgrade()
		assert.False(t, ok)
		assert.Positive(t, rc.MemoryUsage(), "the Weak still holds the block")

		w.Release()
		assert.Equal(t, int64(0), rc.MemoryUsage())
	})

	t.Run("LeakedUntracked", func(t *testing.T) {
		h, err := NewHeap[int]()
		require.NoError(t, err)

		a := h.MustNew(1)

		var leaked *ErrLeaked
		require.ErrorAs(t, h.Close(), &leaked)
		assert.Nil(t, leaked.Slots)

		a.Release()
	})
}

func TestDefaultHeap(t *testing.T) {
	h := DefaultHeap[int]()
	assert.Same(t, h, DefaultHeap[int]())
	assert.Equal(t, "int", h.Name())
	assert.Equal(t, "string", DefaultHeap[string]().Name())

	a := New(42)
	assert.Equal(t, 42, a.Get())
	assert.Same(t, h, a.weak.block().heap)
	a.Release()
}

func TestBasicMetricsObserver(t *testing.T) {
	obs := &BasicMetricsObserver{}
	h := newTestHeap[int](t, WithMetricsObserver(obs), WithChunkSlots(1), WithMaxChunks(2))

	a := h.MustNew(1)
	b := h.MustNew(2)
	_, err := h.New(3)
	require.Error(t, err)

	w := a.Downgrade()
	u, ok := w.Upgrade()
	require.True(t, ok)
	_, ok = u.GetMut()
	assert.False(t, ok)
	u.Release()

	a.Release()
	_, ok = w.Upgrade()
	assert.False(t, ok)
	w.Release()

	_, ok = b.GetMut()
	assert.True(t, ok)

	stats := obs.GetStats()
	assert.Equal(t, int64(2), stats.Allocs)
	assert.Equal(t, int64(1), stats.AllocErrors)
	assert.Equal(t, int64(1), stats.Drops)
	assert.Equal(t, int64(1), stats.Frees)
	assert.Equal(t, int64(1), stats.Upgrades)
	assert.Equal(t, int64(1), stats.UpgradeFailures)
	assert.Equal(t, int64(1), stats.GetMuts)
	assert.Equal(t, int64(1), stats.GetMutFailures)
	assert.Equal(t, int64(2), stats.Grows)
	assert.Equal(t, int64(1), stats.LivePayloads())
	assert.Equal(t, int64(1), stats.LiveBlocks())
	assert.Equal(t, 2*h.arena.ChunkBytes(), stats.ReservedBytes())

	b.Release()
	require.NoError(t, h.Close())
	assert.Equal(t, int64(0), obs.GetStats().ReservedBytes())
}

type bigPayload [1 << 16]byte

func TestHeapLargePayload(t *testing.T) {
	t.Run("DefaultHeap", func(t *testing.T) {
		before := DefaultHeap[bigPayload]().Stats().BytesReserved

		a := New(bigPayload{1})
		stats := DefaultHeap[bigPayload]().Stats()
		assert.Equal(t, byte(1), a.Get()[0])
		assert.Equal(t, int64(1), stats.LiveBlocks)
		assert.LessOrEqual(t, stats.BytesReserved-before, uint64(2<<16), "one block, not a full chunk of them")
		a.Release()
	})

	t.Run("MemoryLimit", func(t *testing.T) {
		h := newTestHeap[bigPayload](t, WithMemoryLimit(1<<20))

		arcs := make([]Arc[bigPayload], 0, 16)
		for {
			a, err := h.New(bigPayload{})
			if err != nil {
				require.ErrorIs(t, err, ErrMemoryLimitExceeded)
				break
			}
			arcs = append(arcs, a)
		}
		// 1 MiB holds fifteen 64 KiB blocks plus their headers.
		assert.Len(t, arcs, 15)
		assert.Equal(t, uint64(15), h.Stats().SlotsReserved)

		for i := range arcs {
			arcs[i].Release()
		}
	})
}

func TestHeapCapacity(t *testing.T) {
	big := newTestHeap[bigPayload](t)
	assert.Equal(t, uint64(math.MaxUint32), big.Stats().Capacity, "one block per chunk spans the index space")

	small := newTestHeap[int](t)
	assert.Greater(t, small.Stats().Capacity, uint64(math.MaxUint32)-uint64(arena.DefaultChunkBytes))

	limited := newTestHeap[int](t, WithChunkSlots(4), WithMaxChunks(3))
	assert.Equal(t, uint64(12), limited.Stats().Capacity)
}

func TestHeapCloseDuringAllocation(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 30})
	h, err := NewHeap[int](WithResourceController(rc))
	require.NoError(t, err)

	a := h.MustNew(1)
	a.Release()

	// An allocation that has reserved its place but not yet produced a block.
	h.live.Add(1)
	require.NoError(t, h.Close(), "no constructed block is live")
	assert.Positive(t, rc.MemoryUsage())

	h.unreserve()
	assert.Equal(t, int64(0), rc.MemoryUsage(), "released once the allocation backs out")
}
