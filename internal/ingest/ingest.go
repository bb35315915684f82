// Package ingest validates incoming telemetry and adds it to the emitter.
//
// The HTTP API and the Kafka consumer both feed records through a Service,
// which is the only writer of the "logs" and "metrics" emitter keys.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	apperrors "github.com/unsighted-org/demo-1biome-sub001/internal/errors"
	"github.com/unsighted-org/demo-1biome-sub001/pkg/buffer"
	"github.com/unsighted-org/demo-1biome-sub001/pkg/event"
)

// Validator checks and normalizes records in place.
type Validator interface {
	ValidateLog(e *event.LogEntry) error
	ValidateMetric(m *event.MetricPoint) error
}

// MetricsCollector defines metrics operations for ingestion.
type MetricsCollector interface {
	AddRecordsIngested(stream, status string, n int)
}

// Service accepts telemetry records for the emitter.
type Service struct {
	emitter   buffer.Emitter[event.Rower]
	validator Validator
	logger    *slog.Logger
	metrics   MetricsCollector
	draining  atomic.Bool
}

// NewService creates an ingest service writing to emitter.
func NewService(emitter buffer.Emitter[event.Rower], validator Validator, logger *slog.Logger, metrics MetricsCollector) *Service {
	return &Service{
		emitter:   emitter,
		validator: validator,
		logger:    logger,
		metrics:   metrics,
	}
}

// AddLogs validates every entry and, only if all are valid, adds them to
// the logs stream. Entries are normalized in place.
func (s *Service) AddLogs(entries []event.LogEntry) error {
	if s.draining.Load() {
		return s.refuse(event.StreamLogs, len(entries))
	}
	for i := range entries {
		if err := s.validator.ValidateLog(&entries[i]); err != nil {
			s.observe(event.StreamLogs, "rejected", len(entries))
			return err
		}
	}
	for _, e := range entries {
		s.emitter.Add(event.StreamLogs, e)
	}
	s.observe(event.StreamLogs, "accepted", len(entries))
	return nil
}

// AddMetrics validates every point and, only if all are valid, adds them
// to the metrics stream. Points are normalized in place.
func (s *Service) AddMetrics(points []event.MetricPoint) error {
	if s.draining.Load() {
		return s.refuse(event.StreamMetrics, len(points))
	}
	for i := range points {
		if err := s.validator.ValidateMetric(&points[i]); err != nil {
			s.observe(event.StreamMetrics, "rejected", len(points))
			return err
		}
	}
	for _, p := range points {
		s.emitter.Add(event.StreamMetrics, p)
	}
	s.observe(event.StreamMetrics, "accepted", len(points))
	return nil
}

// HandleEvent ingests one CloudEvent consumed from Kafka. Events of an
// unknown type or with undecodable data are invalid records.
func (s *Service) HandleEvent(_ context.Context, e cloudevents.Event) error {
	switch e.Type() {
	case event.TypeLog:
		var entry event.LogEntry
		if err := e.DataAs(&entry); err != nil {
			return &apperrors.ValidationError{RecordID: e.ID(), Field: "data", Reason: err.Error()}
		}
		return s.AddLogs([]event.LogEntry{entry})

	case event.TypeMetric:
		var point event.MetricPoint
		if err := e.DataAs(&point); err != nil {
			return &apperrors.ValidationError{RecordID: e.ID(), Field: "data", Reason: err.Error()}
		}
		return s.AddMetrics([]event.MetricPoint{point})

	default:
		return &apperrors.ValidationError{
			RecordID: e.ID(),
			Field:    "type",
			Reason:   fmt.Sprintf("unsupported event type %q", e.Type()),
		}
	}
}

// Drain makes every later AddLogs, AddMetrics and HandleEvent call fail with
// ErrDraining, so a final FlushAll covers everything that was accepted.
func (s *Service) Drain() {
	if !s.draining.Swap(true) {
		s.logger.Info("ingestion draining, new records are refused")
	}
}

func (s *Service) refuse(stream string, n int) error {
	s.logger.Debug("refused telemetry batch while draining", "stream", stream, "records", n)
	return fmt.Errorf("%s: %w", stream, apperrors.ErrDraining)
}

// Pending returns the number of buffered records per emitter key.
func (s *Service) Pending() map[string]int {
	keys := s.emitter.Keys()
	pending := make(map[string]int, len(keys))
	for _, k := range keys {
		pending[k] = s.emitter.Size(k)
	}
	return pending
}

// Size returns the number of buffered records for key.
func (s *Service) Size(key string) int {
	return s.emitter.Size(key)
}

func (s *Service) observe(stream, status string, n int) {
	if s.metrics != nil {
		s.metrics.AddRecordsIngested(stream, status, n)
	}
	if status == "rejected" {
		s.logger.Debug("rejected telemetry batch", "stream", stream, "records", n)
	}
}
