package arcgo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestHeap returns a leak-tracked heap that must be empty when the test ends.
func newTestHeap[T any](t testing.TB, opts ...Option) *Heap[T] {
	t.Helper()

	opts = append([]Option{WithName(t.Name()), WithLeakTracking(true)}, opts...)
	h, err := NewHeap[T](opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		if h.Closed() {
			return
		}
		require.NoError(t, h.Close(), "heap leaked blocks")
	})
	return h
}

// oneChunkBytes returns the memory one single-slot chunk of T reserves.
func oneChunkBytes[T any](t testing.TB) int64 {
	t.Helper()

	h, err := NewHeap[T](WithChunkSlots(1))
	require.NoError(t, err)
	defer func() { require.NoError(t, h.Close()) }()

	return h.arena.ChunkBytes()
}

// swapExit replaces the process exit for the duration of the test and
// returns a pointer to the last status passed to it.
func swapExit(t *testing.T) *int {
	t.Helper()

	code := -1
	old := exit
	exit = func(c int) { code = c }
	t.Cleanup(func() { exit = old })
	return &code
}
