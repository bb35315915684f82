// Package buffer defines the keyed batch emitter contract.
//
// An emitter accumulates records under named keys and periodically hands
// each key's pending records to that key's sink.
package buffer

import "context"

// Sink durably consumes one batch of records for a key.
// A returned error, or ctx expiring, marks the invocation as failed; the
// emitter retries the same batch and never drops it because of a failure.
// Sinks must tolerate receiving a batch more than once.
type Sink[T any] func(ctx context.Context, items []T) error

// Emitter buffers records per key and flushes them to registered sinks.
// All implementations must be safe for concurrent use.
type Emitter[T any] interface {
	// Register (re)initializes key with an empty buffer and the given sink,
	// and starts its periodic flush. Registering an existing key replaces
	// its sink and discards its buffered records.
	Register(key string, sink Sink[T])

	// Add appends item to key's buffer. It never blocks on a flush.
	// Records added to an unregistered key are buffered but never flushed
	// until a sink is registered.
	Add(key string, item T)

	// Size returns the number of pending records for key, or 0 if unknown.
	Size(key string) int

	// Flush synchronously runs one flush attempt (with retries) for key.
	Flush(ctx context.Context, key string) error

	// FlushAll flushes every known key and joins their errors.
	FlushAll(ctx context.Context) error

	// Keys returns every known key in sorted order.
	Keys() []string

	// Destroy stops every periodic flush and clears all buffers.
	// It is safe to call more than once.
	Destroy()
}
