// Package arena provides a typed slot arena for fixed-size control records.
//
// The arena hands out stable *Slot addresses carved from large chunks and
// takes them back on Free. Chunks are never moved or shrunk while the arena
// is open, so a slot address obtained from Alloc stays valid until Close.
//
// # Features
//
//   - Lock-free Alloc/Free through a tagged free-list stack (ABA safe)
//   - Bump allocation inside the current chunk, mutex only on growth
//   - Chunks sized to about DefaultChunkBytes and reserved on first use
//   - Per-slot generation, bumped on every Free, to detect slot reuse
//   - Optional memory budget through a MemoryAcquirer
//   - Optional live-slot tracking in a roaring bitmap for leak reports
//
// # Concurrency Model
//
// Alloc and Free are safe for concurrent use. Close must NOT run
// concurrently with Alloc. The typical usage pattern is:
//   - Create one arena per record type
//   - Alloc/Free from any number of goroutines
//   - Call Close() once, after the owner has proven no slot is live
package arena
