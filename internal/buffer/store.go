package buffer

import (
	"context"
	"sync"
	"time"

	"github.com/unsighted-org/demo-1biome-sub001/pkg/buffer"
)

// entry is the buffer state of one key.
type entry[T any] struct {
	key string

	mu        sync.Mutex
	pending   []T
	sink      buffer.Sink[T]
	lastFlush time.Time

	// inflight counts taken batches whose delivery has not returned.
	// idle is closed when it drops back to zero.
	inflight int
	idle     chan struct{}

	// stop cancels the key's scheduler. Guarded by Emitter.mu.
	stop context.CancelFunc
}

func newEntry[T any](key string, sink buffer.Sink[T]) *entry[T] {
	return &entry[T]{
		key:  key,
		sink: sink,
	}
}

func (ent *entry[T]) size() int {
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return len(ent.pending)
}

func (ent *entry[T]) stopScheduler() {
	if ent.stop != nil {
		ent.stop()
		ent.stop = nil
	}
}

// beginLocked records a delivery of a taken batch. The caller must hold
// ent.mu.
func (ent *entry[T]) beginLocked() {
	if ent.inflight == 0 {
		ent.idle = make(chan struct{})
	}
	ent.inflight++
}

// done ends a delivery recorded by beginLocked.
func (ent *entry[T]) done() {
	ent.mu.Lock()
	defer ent.mu.Unlock()

	ent.inflight--
	if ent.inflight == 0 {
		close(ent.idle)
	}
}

// idleLocked returns nil when no delivery is in flight, or a channel that
// is closed once the current ones have returned. The caller must hold
// ent.mu.
func (ent *entry[T]) idleLocked() <-chan struct{} {
	if ent.inflight == 0 {
		return nil
	}
	return ent.idle
}

// takeLocked swaps out the pending records for delivery and stamps the
// attempt start. It returns ok=false when there is nothing to deliver, no
// sink, or (when throttle is set) MinFlushInterval has not yet passed.
// The caller must hold ent.mu.
func (e *Emitter[T]) takeLocked(ent *entry[T], throttle bool) ([]T, buffer.Sink[T], bool) {
	if len(ent.pending) == 0 || ent.sink == nil {
		return nil, nil, false
	}

	now := e.clock.Now()
	if throttle && !ent.lastFlush.IsZero() && now.Sub(ent.lastFlush) < e.cfg.MinFlushInterval {
		return nil, nil, false
	}

	batch := ent.pending
	ent.pending = nil
	ent.lastFlush = now
	return batch, ent.sink, true
}

// restore puts an undelivered batch back in front of whatever key has
// buffered since the batch was taken. It reports false when the batch
// belongs to a destroyed lifecycle and was dropped.
func (e *Emitter[T]) restore(life *lifecycle, key string, batch []T) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if life != e.life {
		return false
	}

	ent, ok := e.entries[key]
	if !ok {
		// The key can only disappear on Destroy, which replaces life.
		return false
	}

	ent.mu.Lock()
	merged := make([]T, 0, len(batch)+len(ent.pending))
	merged = append(merged, batch...)
	merged = append(merged, ent.pending...)
	ent.pending = merged
	pending := len(merged)
	ent.mu.Unlock()

	if e.metrics != nil {
		e.metrics.SetPendingRecords(key, pending)
	}
	return true
}
