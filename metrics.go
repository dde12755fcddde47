package arcgo

import (
	"sync/atomic"
)

// MetricsObserver defines the interface for observing heap events.
// Implement this interface to integrate with monitoring systems like
// Prometheus (see package observability).
//
// Observers are called synchronously on the goroutine that caused the
// event and must be safe for concurrent use. Clone and Release of a handle
// that does not create, destroy or free anything are never observed.
type MetricsObserver interface {
	// OnAlloc is called when a new block is constructed.
	OnAlloc()

	// OnDrop is called when a payload is destroyed (last Arc released).
	OnDrop()

	// OnFree is called when a block is freed (last handle of either kind released).
	OnFree()

	// OnUpgrade is called after every Weak.Upgrade with its outcome.
	OnUpgrade(ok bool)

	// OnGetMut is called after every Arc.GetMut with its outcome.
	OnGetMut(ok bool)

	// OnGrow is called when the heap reserves a new chunk of blocks.
	OnGrow(bytes int64)

	// OnRelease is called once, when a closed heap hands back all the
	// memory it reserved.
	OnRelease(bytes int64)

	// OnAllocError is called when an allocation fails.
	OnAllocError(err error)
}

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
type NoopMetricsObserver struct{}

func (o *NoopMetricsObserver) OnAlloc()           {}
func (o *NoopMetricsObserver) OnDrop()            {}
func (o *NoopMetricsObserver) OnFree()            {}
func (o *NoopMetricsObserver) OnUpgrade(bool)     {}
func (o *NoopMetricsObserver) OnGetMut(bool)      {}
func (o *NoopMetricsObserver) OnGrow(int64)       {}
func (o *NoopMetricsObserver) OnRelease(int64)    {}
func (o *NoopMetricsObserver) OnAllocError(error) {}

// BasicMetricsObserver provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsObserver struct {
	Allocs          atomic.Int64
	AllocErrors     atomic.Int64
	Drops           atomic.Int64
	Frees           atomic.Int64
	Upgrades        atomic.Int64
	UpgradeFailures atomic.Int64
	GetMuts         atomic.Int64
	GetMutFailures  atomic.Int64
	Grows           atomic.Int64
	GrowBytes       atomic.Int64
	ReleasedBytes   atomic.Int64
}

// OnAlloc implements MetricsObserver.
func (b *BasicMetricsObserver) OnAlloc() { b.Allocs.Add(1) }

// OnDrop implements MetricsObserver.
func (b *BasicMetricsObserver) OnDrop() { b.Drops.Add(1) }

// OnFree implements MetricsObserver.
func (b *BasicMetricsObserver) OnFree() { b.Frees.Add(1) }

// OnUpgrade implements MetricsObserver.
func (b *BasicMetricsObserver) OnUpgrade(ok bool) {
	if ok {
		b.Upgrades.Add(1)
		return
	}
	b.UpgradeFailures.Add(1)
}

// OnGetMut implements MetricsObserver.
func (b *BasicMetricsObserver) OnGetMut(ok bool) {
	if ok {
		b.GetMuts.Add(1)
		return
	}
	b.GetMutFailures.Add(1)
}

// OnGrow implements MetricsObserver.
func (b *BasicMetricsObserver) OnGrow(bytes int64) {
	b.Grows.Add(1)
	b.GrowBytes.Add(bytes)
}

// OnRelease implements MetricsObserver.
func (b *BasicMetricsObserver) OnRelease(bytes int64) { b.ReleasedBytes.Add(bytes) }

// OnAllocError implements MetricsObserver.
func (b *BasicMetricsObserver) OnAllocError(error) { b.AllocErrors.Add(1) }

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsObserver) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		Allocs:          b.Allocs.Load(),
		AllocErrors:     b.AllocErrors.Load(),
		Drops:           b.Drops.Load(),
		Frees:           b.Frees.Load(),
		Upgrades:        b.Upgrades.Load(),
		UpgradeFailures: b.UpgradeFailures.Load(),
		GetMuts:         b.GetMuts.Load(),
		GetMutFailures:  b.GetMutFailures.Load(),
		Grows:           b.Grows.Load(),
		GrowBytes:       b.GrowBytes.Load(),
		ReleasedBytes:   b.ReleasedBytes.Load(),
	}
}

// BasicMetricsStats is a snapshot of BasicMetricsObserver state.
type BasicMetricsStats struct {
	Allocs          int64
	AllocErrors     int64
	Drops           int64
	Frees           int64
	Upgrades        int64
	UpgradeFailures int64
	GetMuts         int64
	GetMutFailures  int64
	Grows           int64
	GrowBytes       int64
	ReleasedBytes   int64
}

// ReservedBytes returns the memory currently reserved by the observed heaps.
func (s BasicMetricsStats) ReservedBytes() int64 {
	return s.GrowBytes - s.ReleasedBytes
}

// LivePayloads returns allocations whose payload has not been destroyed yet.
func (s BasicMetricsStats) LivePayloads() int64 {
	return s.Allocs - s.Drops
}

// LiveBlocks returns allocations whose block has not been freed yet.
func (s BasicMetricsStats) LiveBlocks() int64 {
	return s.Allocs - s.Frees
}
