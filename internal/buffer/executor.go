package buffer

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	apperrors "github.com/unsighted-org/demo-1biome-sub001/internal/errors"
	"github.com/unsighted-org/demo-1biome-sub001/pkg/buffer"
)

// deliver hands batch to sink, retrying with exponential backoff up to
// MaxRetryAttempts calls. Every call receives the same batch. When all calls
// fail the batch is restored to the front of key's buffer and a
// *errors.FlushError is returned.
func (e *Emitter[T]) deliver(
	ctx context.Context,
	life *lifecycle,
	key string,
	sink buffer.Sink[T],
	batch []T,
) error {
	start := e.clock.Now()
	policy := e.newBackOff()

	var (
		err     error
		attempt int
	)
	for attempt = 1; ; attempt++ {
		err = e.invoke(ctx, sink, batch)
		if err == nil {
			if e.metrics != nil {
				e.metrics.IncSinkCalls(key, "success")
				e.metrics.IncFlushes(key, OutcomeDelivered)
				e.metrics.AddRecordsDelivered(key, len(batch))
				e.metrics.ObserveFlushDuration(key, e.clock.Since(start).Seconds())
			}
			e.logger.Debug("flushed batch",
				"key", key,
				"records", len(batch),
				"attempt", attempt,
			)
			return nil
		}

		if e.metrics != nil {
			e.metrics.IncSinkCalls(key, "failure")
		}

		if attempt >= e.cfg.MaxRetryAttempts {
			break
		}

		delay := policy.NextBackOff()
		e.logger.Warn("sink call failed, retrying",
			"key", key,
			"records", len(batch),
			"attempt", attempt,
			"backoff", delay,
			"error", err,
		)
		if !e.sleep(ctx, delay) {
			if life.ctx.Err() != nil {
				err = fmt.Errorf("%w: %w", apperrors.ErrEmitterDestroyed, err)
			} else {
				err = fmt.Errorf("%w: %w", context.Cause(ctx), err)
			}
			break
		}
	}

	flushErr := &apperrors.FlushError{
		Key:      key,
		Attempts: attempt,
		Records:  len(batch),
		Err:      err,
	}

	if e.metrics != nil {
		e.metrics.ObserveFlushDuration(key, e.clock.Since(start).Seconds())
	}

	if !e.restore(life, key, batch) {
		if e.metrics != nil {
			e.metrics.IncFlushes(key, OutcomeDropped)
		}
		e.logger.Error("emitter destroyed, dropping undelivered batch",
			"key", key,
			"records", len(batch),
			"error", err,
		)
		return flushErr
	}

	if e.metrics != nil {
		e.metrics.IncFlushes(key, OutcomeRestored)
		e.metrics.AddRecordsRestored(key, len(batch))
	}
	e.logger.Error("flush failed, records returned to buffer",
		"key", key,
		"records", len(batch),
		"attempts", attempt,
		"error", err,
	)
	return flushErr
}

// invoke calls sink once under SinkTimeout. A sink that ignores its context
// is abandoned when the deadline passes and the call counts as failed.
func (e *Emitter[T]) invoke(ctx context.Context, sink buffer.Sink[T], batch []T) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.SinkTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("sink panicked: %v", r)
			}
		}()
		done <- sink(ctx, batch)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		select {
		case err := <-done:
			return err
		default:
		}
		return fmt.Errorf("sink call abandoned: %w", ctx.Err())
	}
}

// sleep waits d on the emitter clock. It returns false if ctx ends first.
func (e *Emitter[T]) sleep(ctx context.Context, d time.Duration) bool {
	timer := e.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.Chan():
		return true
	case <-ctx.Done():
		return false
	}
}

// newBackOff returns the retry schedule RetryBackoff * 2^(n-1), without jitter.
func (e *Emitter[T]) newBackOff() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.cfg.RetryBackoff
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxInterval = e.cfg.MaxRetryBackoff
	policy.Reset()
	return policy
}
