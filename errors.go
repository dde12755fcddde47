package arcgo

import (
	"errors"
	"fmt"

	"github.com/hupe1980/arcgo/internal/arena"
	"github.com/hupe1980/arcgo/resource"
)

var (
	// ErrHeapClosed is returned when allocating from, or closing, a closed heap.
	ErrHeapClosed = errors.New("arcgo: heap closed")

	// ErrArenaFull is returned when a heap has reached its chunk limit.
	ErrArenaFull = arena.ErrArenaFull

	// ErrMemoryLimitExceeded is returned when growing a heap would exceed its
	// memory budget.
	ErrMemoryLimitExceeded = resource.ErrMemoryLimitExceeded
)

// Misuse of a handle panics with one of these, in the manner of
// "sync: unlock of unlocked mutex".
var (
	errReleased  = errors.New("arcgo: use of released handle")
	errStale     = errors.New("arcgo: use of stale handle (block was freed)")
	errDestroyed = errors.New("arcgo: use of Arc after its payload was destroyed")
)

// ErrLeaked is returned by Heap.Close when blocks are still live.
//
// Slots lists the arena indices of the live blocks when the heap tracks
// them (see WithLeakTracking); otherwise it is nil.
type ErrLeaked struct {
	Heap  string
	Live  int64
	Slots []uint32
}

func (e *ErrLeaked) Error() string {
	return fmt.Sprintf("arcgo: heap %q closed with %d live blocks", e.Heap, e.Live)
}

// ErrInvalidOption indicates a heap option that cannot be applied.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrInvalidOption struct {
	Option string
	Reason string
	cause  error
}

func (e *ErrInvalidOption) Error() string {
	return fmt.Sprintf("arcgo: invalid option %s: %s", e.Option, e.Reason)
}

func (e *ErrInvalidOption) Unwrap() error { return e.cause }
