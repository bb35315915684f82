package loadgen

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/unsighted-org/demo-1biome-sub001/pkg/event"
)

// MetricsCollector records what the load generator sent.
type MetricsCollector interface {
	AddRecordsSent(stream, status string, n int)
}

// Poster sends batches to the ingest API.
type Poster interface {
	PostLogs(ctx context.Context, entries []event.LogEntry) (int, error)
	PostMetrics(ctx context.Context, points []event.MetricPoint) (int, error)
}

// RunnerConfig controls the pace and shape of generated traffic.
type RunnerConfig struct {
	// Interval between ticks. Each tick posts one batch per enabled stream.
	Interval  time.Duration
	BatchSize int
	Logs      bool
	Metrics   bool
}

// Stats counts records accepted and rejected by the ingest API.
type Stats struct {
	Sent   int64
	Failed int64
}

// Runner posts generated batches on every tick until its context ends.
type Runner struct {
	config    RunnerConfig
	generator *Generator
	poster    Poster
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   MetricsCollector

	sent   atomic.Int64
	failed atomic.Int64
}

// NewRunner creates a runner. A nil metrics collector disables metrics.
func NewRunner(config RunnerConfig, generator *Generator, poster Poster, clock clockwork.Clock, logger *slog.Logger, metrics MetricsCollector) *Runner {
	if config.Interval <= 0 {
		config.Interval = time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Runner{
		config:    config,
		generator: generator,
		poster:    poster,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.logger.Info("Load generator started",
		"interval", r.config.Interval,
		"batch_size", r.config.BatchSize,
		"logs", r.config.Logs,
		"metrics", r.config.Metrics,
	)

	for {
		select {
		case <-ctx.Done():
			stats := r.Stats()
			r.logger.Info("Load generator stopped", "sent", stats.Sent, "failed", stats.Failed)
			return
		case <-ticker.Chan():
			r.Tick(ctx)
		}
	}
}

// Tick posts one batch for each enabled stream.
func (r *Runner) Tick(ctx context.Context) {
	if r.config.Logs {
		batch := r.generator.Logs(r.config.BatchSize)
		accepted, err := r.poster.PostLogs(ctx, batch)
		r.record(event.StreamLogs, len(batch), accepted, err)
	}
	if r.config.Metrics {
		batch := r.generator.Metrics(r.config.BatchSize)
		accepted, err := r.poster.PostMetrics(ctx, batch)
		r.record(event.StreamMetrics, len(batch), accepted, err)
	}
}

// Stats returns the running totals.
func (r *Runner) Stats() Stats {
	return Stats{Sent: r.sent.Load(), Failed: r.failed.Load()}
}

func (r *Runner) record(stream string, size, accepted int, err error) {
	if err != nil {
		r.failed.Add(int64(size))
		if r.metrics != nil {
			r.metrics.AddRecordsSent(stream, "failure", size)
		}
		r.logger.Error("Failed to post batch", "stream", stream, "records", size, "error", err)
		return
	}

	r.sent.Add(int64(accepted))
	if r.metrics != nil {
		r.metrics.AddRecordsSent(stream, "success", accepted)
	}
	r.logger.Debug("Posted batch", "stream", stream, "accepted", accepted)
}
