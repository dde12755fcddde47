package testutil

import (
	"math/rand"
	"sync"
	"sync/atomic"
)

// DropCounter counts payload destructions. The zero value is ready to use.
type DropCounter struct {
	n atomic.Int64
}

// Inc records one destruction.
func (c *DropCounter) Inc() { c.n.Add(1) }

// Load returns the number of destructions recorded so far.
func (c *DropCounter) Load() int64 { return c.n.Load() }

// Tracked is a payload that increments its counter when dropped.
type Tracked[T any] struct {
	Value   T
	counter *DropCounter
}

// NewTracked returns a Tracked wrapping v that reports to c.
func NewTracked[T any](v T, c *DropCounter) Tracked[T] {
	return Tracked[T]{Value: v, counter: c}
}

// Drop implements arcgo.Dropper.
func (t *Tracked[T]) Drop() {
	if t.counter != nil {
		t.counter.Inc()
	}
}

// Probe detects overlapping critical sections. Call Enter before touching
// the guarded state and Exit afterwards; Max reports the highest overlap
// ever observed.
type Probe struct {
	inside atomic.Int64
	max    atomic.Int64
}

// Enter marks the calling goroutine as inside.
func (p *Probe) Enter() {
	n := p.inside.Add(1)
	for {
		m := p.max.Load()
		if n <= m || p.max.CompareAndSwap(m, n) {
			return
		}
	}
}

// Exit marks the calling goroutine as outside.
func (p *Probe) Exit() { p.inside.Add(-1) }

// Max returns the highest number of goroutines that were inside at once.
func (p *Probe) Max() int64 { return p.max.Load() }

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)), //nolint:gosec // reproducible test schedules
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewSource(r.seed)) //nolint:gosec // reproducible test schedules
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Bool returns a pseudo-random boolean.
func (r *RNG) Bool() bool {
	return r.Intn(2) == 1
}

// Schedule returns n pseudo-random operation codes in [0,ops). Stress tests
// use it to replay the same interleaving of clones, downgrades and releases.
func (r *RNG) Schedule(n, ops int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := make([]int, n)
	for i := range s {
		s[i] = r.rand.Intn(ops)
	}
	return s
}
