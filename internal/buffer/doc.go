// Package buffer implements an in-memory, keyed batch emitter.
//
// Records are appended per key and handed to the key's sink in batches. A
// key is flushed when any of the following happens:
//
//   - its periodic scheduler fires (Config.FlushInterval)
//   - an Add brings its buffer to Config.MaxBufferSize
//   - Flush or FlushAll is called
//
// Scheduled and size-triggered flushes are skipped while less than
// Config.MinFlushInterval has passed since the key's previous attempt.
//
// # Delivery
//
// A flush takes the whole pending buffer as one batch and calls the sink
// with it up to Config.MaxRetryAttempts times, waiting RetryBackoff,
// 2*RetryBackoff, ... between calls. Each call is bounded by
// Config.SinkTimeout. If every call fails the batch is put back in front of
// the records added in the meantime, so ordering per key is kept and the next
// flush retries it. Delivery is at-least-once: sinks must tolerate a batch
// being delivered more than once.
//
//	emitter := buffer.New[event.LogEntry](buffer.Config{}, logger, metrics)
//	defer emitter.Destroy()
//
//	emitter.Register(event.StreamLogs, sink.Storage[event.LogEntry](writer, router, event.StreamLogs))
//	emitter.Add(event.StreamLogs, entry)
//
// # Lifecycle
//
// Register resets a key: its buffer is emptied, its sink replaced and its
// previous scheduler stopped. Destroy stops every scheduler, cancels
// in-flight sink calls and backoff waits, and discards all buffers. An
// emitter can be reused after Destroy.
package buffer
