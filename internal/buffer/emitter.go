package buffer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	apperrors "github.com/unsighted-org/demo-1biome-sub001/internal/errors"
	"github.com/unsighted-org/demo-1biome-sub001/pkg/buffer"
)

// Ensure implementation satisfies interface at compile time.
var _ buffer.Emitter[int] = (*Emitter[int])(nil)

// Default emitter settings.
const (
	DefaultMaxBufferSize    = 100
	DefaultFlushInterval    = 5 * time.Second
	DefaultMinFlushInterval = time.Second
	DefaultMaxRetryAttempts = 3
	DefaultRetryBackoff     = time.Second
	DefaultMaxRetryBackoff  = 5 * time.Minute
	DefaultSinkTimeout      = 30 * time.Second
)

// Config contains emitter configuration. Zero values take the defaults.
type Config struct {
	// MaxBufferSize is the pending count at which Add triggers a flush.
	MaxBufferSize int
	// FlushInterval is the period of each key's scheduled flush.
	FlushInterval time.Duration
	// MinFlushInterval is the minimum time between two flush attempt starts.
	MinFlushInterval time.Duration
	// MaxRetryAttempts is the total number of sink calls per flush.
	MaxRetryAttempts int
	// RetryBackoff is the wait after the first failed call; it doubles per retry.
	RetryBackoff time.Duration
	// MaxRetryBackoff caps a single backoff wait.
	MaxRetryBackoff time.Duration
	// SinkTimeout bounds one sink call.
	SinkTimeout time.Duration

	Clock clockwork.Clock
}

func (c Config) withDefaults() Config {
	if c.MaxBufferSize <= 0 {
		c.MaxBufferSize = DefaultMaxBufferSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.MinFlushInterval <= 0 {
		c.MinFlushInterval = DefaultMinFlushInterval
	}
	if c.MaxRetryAttempts <= 0 {
		c.MaxRetryAttempts = DefaultMaxRetryAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.MaxRetryBackoff <= 0 {
		c.MaxRetryBackoff = DefaultMaxRetryBackoff
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = DefaultSinkTimeout
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return c
}

// MetricsCollector defines metrics operations for the emitter.
type MetricsCollector interface {
	IncRecordsAdded(key string)
	IncSinkCalls(key string, status string)
	IncFlushes(key string, outcome string)
	AddRecordsDelivered(key string, n int)
	AddRecordsRestored(key string, n int)
	ObserveFlushDuration(key string, seconds float64)
	SetPendingRecords(key string, n int)
}

// Flush outcomes reported to MetricsCollector.IncFlushes.
const (
	OutcomeDelivered = "delivered"
	OutcomeRestored  = "restored"
	OutcomeDropped   = "dropped"
)

// lifecycle groups the goroutines started between two Destroy calls.
type lifecycle struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newLifecycle() *lifecycle {
	ctx, cancel := context.WithCancel(context.Background())
	return &lifecycle{ctx: ctx, cancel: cancel}
}

// Emitter buffers records per key and flushes each key to its sink on a
// fixed interval, when its buffer grows past MaxBufferSize, or on demand.
//
// Lock order is Emitter.mu before entry.mu. Sink calls and backoff waits
// never hold either lock.
type Emitter[T any] struct {
	cfg     Config
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics MetricsCollector

	mu      sync.RWMutex
	entries map[string]*entry[T]
	life    *lifecycle
}

// New creates an emitter. logger and metrics may be nil.
func New[T any](cfg Config, logger *slog.Logger, metrics MetricsCollector) *Emitter[T] {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Emitter[T]{
		cfg:     cfg,
		clock:   cfg.Clock,
		logger:  logger,
		metrics: metrics,
		entries: make(map[string]*entry[T]),
		life:    newLifecycle(),
	}
}

// Register (re)initializes key with an empty buffer and sink, and starts
// its periodic flush. A previous scheduler for key is stopped first.
func (e *Emitter[T]) Register(key string, sink buffer.Sink[T]) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if old, ok := e.entries[key]; ok {
		old.stopScheduler()
		old.mu.Lock()
		n := len(old.pending)
		old.pending = nil
		old.sink = nil
		old.mu.Unlock()
		if n > 0 {
			e.logger.Warn("re-registration discarded buffered records",
				"key", key,
				"records", n,
			)
		}
	}

	ent := newEntry(key, sink)
	e.entries[key] = ent

	ctx, cancel := context.WithCancel(e.life.ctx)
	ent.stop = cancel

	life := e.life
	life.wg.Add(1)
	go e.schedule(ctx, life, ent)

	if e.metrics != nil {
		e.metrics.SetPendingRecords(key, 0)
	}

	e.logger.Info("emitter key registered",
		"key", key,
		"flush_interval", e.cfg.FlushInterval,
		"max_buffer_size", e.cfg.MaxBufferSize,
	)
}

// Add appends item to key's buffer and, if the buffer has reached
// MaxBufferSize and MinFlushInterval has passed, starts a background flush.
func (e *Emitter[T]) Add(key string, item T) {
	e.mu.RLock()
	if ent, ok := e.entries[key]; ok {
		e.add(e.life, ent, item)
		e.mu.RUnlock()
		return
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock
	ent, ok := e.entries[key]
	if !ok {
		ent = newEntry[T](key, nil)
		e.entries[key] = ent
		e.logger.Debug("buffering records for unregistered key", "key", key)
	}
	e.add(e.life, ent, item)
}

// add must be called with e.mu held in either mode.
func (e *Emitter[T]) add(life *lifecycle, ent *entry[T], item T) {
	ent.mu.Lock()
	ent.pending = append(ent.pending, item)
	n := len(ent.pending)

	var (
		batch []T
		sink  buffer.Sink[T]
		ok    bool
	)
	if n >= e.cfg.MaxBufferSize {
		batch, sink, ok = e.takeLocked(ent, true)
		if ok {
			ent.beginLocked()
		}
	}
	pending := len(ent.pending)
	ent.mu.Unlock()

	if e.metrics != nil {
		e.metrics.IncRecordsAdded(ent.key)
		e.metrics.SetPendingRecords(ent.key, pending)
	}

	if !ok {
		return
	}

	e.logger.Debug("buffer size threshold reached, flushing",
		"key", ent.key,
		"records", len(batch),
	)

	life.wg.Add(1)
	go func() {
		defer life.wg.Done()
		defer ent.done()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("background flush panicked", "key", ent.key, "panic", r)
			}
		}()
		_ = e.deliver(life.ctx, life, ent.key, sink, batch)
	}()
}

// Size returns the number of pending records for key.
func (e *Emitter[T]) Size(key string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ent, ok := e.entries[key]
	if !ok {
		return 0
	}
	return ent.size()
}

// Keys returns every known key in sorted order.
func (e *Emitter[T]) Keys() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Sorted(maps.Keys(e.entries))
}

// Flush synchronously flushes key, retrying per configuration. It ignores
// MinFlushInterval. Size-triggered and scheduled deliveries already in
// flight for key are awaited first, so records they fail to deliver are
// part of this flush. An unknown or empty key is a no-op; pending records
// without a sink return ErrNoSink.
func (e *Emitter[T]) Flush(ctx context.Context, key string) error {
	e.mu.RLock()
	ent, ok := e.entries[key]
	life := e.life
	e.mu.RUnlock()

	if !ok {
		return nil
	}

	var (
		batch   []T
		sink    buffer.Sink[T]
		noSink  bool
		pending int
	)
	for {
		ent.mu.Lock()
		if idle := ent.idleLocked(); idle != nil {
			ent.mu.Unlock()
			select {
			case <-idle:
				continue
			case <-ctx.Done():
				return fmt.Errorf("flush %s: %w", key, context.Cause(ctx))
			}
		}
		batch, sink, ok = e.takeLocked(ent, false)
		if ok {
			ent.beginLocked()
		}
		noSink = ent.sink == nil && len(ent.pending) > 0
		pending = len(ent.pending)
		ent.mu.Unlock()
		break
	}

	if noSink {
		return fmt.Errorf("flush %s: %w", key, apperrors.ErrNoSink)
	}
	if !ok {
		return nil
	}
	defer ent.done()

	if e.metrics != nil {
		e.metrics.SetPendingRecords(key, pending)
	}

	// Destroy aborts a synchronous flush as it does a background one.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(life.ctx, cancel)
	defer stop()

	return e.deliver(ctx, life, key, sink, batch)
}

// FlushAll flushes every known key and joins their errors.
func (e *Emitter[T]) FlushAll(ctx context.Context) error {
	var errs []error
	for _, key := range e.Keys() {
		if err := e.Flush(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Destroy stops every scheduler, cancels in-flight sink calls and backoff
// waits, waits for background flushes to return, and clears every buffer.
func (e *Emitter[T]) Destroy() {
	e.mu.Lock()
	old := e.life
	keys := make([]string, 0, len(e.entries))
	for key, ent := range e.entries {
		ent.stopScheduler()
		keys = append(keys, key)
	}
	e.entries = make(map[string]*entry[T])
	e.life = newLifecycle()
	e.mu.Unlock()

	old.cancel()
	old.wg.Wait()

	if e.metrics != nil {
		for _, key := range keys {
			e.metrics.SetPendingRecords(key, 0)
		}
	}

	e.logger.Info("emitter destroyed", "keys", len(keys))
}
