package buffer

import "context"

// schedule runs the periodic flush for one key until ctx is cancelled.
// A tick that finds MinFlushInterval unexpired is skipped, not queued.
func (e *Emitter[T]) schedule(ctx context.Context, life *lifecycle, ent *entry[T]) {
	defer life.wg.Done()

	ticker := e.clock.NewTicker(e.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Debug("emitter scheduler stopped", "key", ent.key)
			return
		case <-ticker.Chan():
			e.tick(life, ent)
		}
	}
}

func (e *Emitter[T]) tick(life *lifecycle, ent *entry[T]) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("scheduled flush panicked", "key", ent.key, "panic", r)
		}
	}()

	ent.mu.Lock()
	batch, sink, ok := e.takeLocked(ent, true)
	if ok {
		ent.beginLocked()
	}
	pending := len(ent.pending)
	ent.mu.Unlock()

	if !ok {
		return
	}
	defer ent.done()

	if e.metrics != nil {
		e.metrics.SetPendingRecords(ent.key, pending)
	}
	_ = e.deliver(life.ctx, life, ent.key, sink, batch)
}
