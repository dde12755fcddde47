package arcgo

import (
	"time"

	"github.com/hupe1980/arcgo/resource"
)

type options struct {
	name         string
	logger       *Logger
	metrics      MetricsObserver
	chunkSlots   int
	maxChunks    int
	memoryLimit  int64
	controller   *resource.Controller
	leakTracking bool
	dropFunc     any // func(*T), checked against the heap's T by NewHeap
	warnEvery    time.Duration
}

// Option configures a Heap.
type Option func(*options)

// WithName sets the heap name used in logs, metrics and leak reports.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the logger for the heap.
//
// If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsObserver sets the metrics observer for the heap.
func WithMetricsObserver(observer MetricsObserver) Option {
	return func(o *options) {
		if observer != nil {
			o.metrics = observer
		}
	}
}

// WithChunkSlots sets how many blocks the heap reserves each time it grows.
// The value is rounded up to a power of two. By default a chunk holds as
// many blocks as fit in about 64 KiB, and at least one.
func WithChunkSlots(n int) Option {
	return func(o *options) {
		o.chunkSlots = n
	}
}

// WithMaxChunks limits how many times the heap may grow. Allocation fails
// with ErrArenaFull once maxChunks*chunkSlots blocks are live. By default the
// heap may grow until 2^32-1 blocks are live.
func WithMaxChunks(n int) Option {
	return func(o *options) {
		o.maxChunks = n
	}
}

// WithMemoryLimit gives the heap a private memory budget of the given size.
//
// Use WithResourceController instead to share one budget between heaps.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithResourceController sets a (possibly shared) memory budget for the heap.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}

// WithLeakTracking records which blocks are live so Close can name them in
// its *ErrLeaked. Tracking adds a short critical section to every
// allocation and free, so it is meant for tests and debugging.
func WithLeakTracking(enabled bool) Option {
	return func(o *options) {
		o.leakTracking = enabled
	}
}

// WithDropFunc sets the function run on the payload when the last Arc to
// it is released. It takes precedence over a Dropper implementation.
//
// T must match the heap's payload type; NewHeap reports a mismatch as
// *ErrInvalidOption.
func WithDropFunc[T any](fn func(*T)) Option {
	return func(o *options) {
		o.dropFunc = fn
	}
}

// WithWarnInterval sets the minimum interval between two memory-budget
// warnings logged by the heap. Zero disables throttling.
func WithWarnInterval(d time.Duration) Option {
	return func(o *options) {
		o.warnEvery = d
	}
}

func defaultOptions() options {
	return options{
		name:      "default",
		logger:    NoopLogger(),
		metrics:   &NoopMetricsObserver{},
		warnEvery: time.Second,
	}
}
