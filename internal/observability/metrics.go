package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unsighted-org/demo-1biome-sub001/internal/buffer"
	"github.com/unsighted-org/demo-1biome-sub001/internal/ingest"
	"github.com/unsighted-org/demo-1biome-sub001/internal/kafka"
	"github.com/unsighted-org/demo-1biome-sub001/internal/loadgen"
	"github.com/unsighted-org/demo-1biome-sub001/internal/server"
	"github.com/unsighted-org/demo-1biome-sub001/internal/storage"
)

// Ensure Metrics implements every collector interface at compile time.
var (
	_ buffer.MetricsCollector  = (*Metrics)(nil)
	_ storage.MetricsCollector = (*Metrics)(nil)
	_ kafka.PublisherMetrics   = (*Metrics)(nil)
	_ kafka.ConsumerMetrics    = (*Metrics)(nil)
	_ kafka.DLQMetrics         = (*Metrics)(nil)
	_ ingest.MetricsCollector  = (*Metrics)(nil)
	_ server.HTTPMetrics       = (*Metrics)(nil)
	_ loadgen.MetricsCollector = (*Metrics)(nil)
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Emitter metrics
	RecordsAdded     *prometheus.CounterVec
	SinkCalls        *prometheus.CounterVec
	Flushes          *prometheus.CounterVec
	RecordsDelivered *prometheus.CounterVec
	RecordsRestored  *prometheus.CounterVec
	FlushDuration    *prometheus.HistogramVec
	PendingRecords   *prometheus.GaugeVec

	// Ingest metrics
	RecordsIngested *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec

	// Kafka metrics
	MessagesPublished  *prometheus.CounterVec
	MessagesConsumed   *prometheus.CounterVec
	DLQMessages        *prometheus.CounterVec
	Rebalances         *prometheus.CounterVec
	RebalanceDuration  *prometheus.HistogramVec
	PartitionsAssigned *prometheus.GaugeVec

	// Storage metrics
	FilesWritten         *prometheus.CounterVec
	StorageWriteDuration *prometheus.HistogramVec
	FileSize             *prometheus.HistogramVec
	StorageErrors        *prometheus.CounterVec

	// Load generator metrics
	RecordsSent *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		RecordsAdded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emitter_records_added_total",
				Help: "Total number of records added to the emitter",
			},
			[]string{"key"},
		),
		SinkCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emitter_sink_calls_total",
				Help: "Total number of sink invocations",
			},
			[]string{"key", "status"},
		),
		Flushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emitter_flushes_total",
				Help: "Total number of flush attempts by outcome",
			},
			[]string{"key", "outcome"},
		),
		RecordsDelivered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emitter_records_delivered_total",
				Help: "Total number of records accepted by a sink",
			},
			[]string{"key"},
		),
		RecordsRestored: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emitter_records_restored_total",
				Help: "Total number of records returned to the buffer after exhausted retries",
			},
			[]string{"key"},
		),
		FlushDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "emitter_flush_duration_seconds",
				Help:    "Duration of flush attempts including retries",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"key"},
		),
		PendingRecords: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "emitter_pending_records",
				Help: "Current number of buffered records",
			},
			[]string{"key"},
		),

		RecordsIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_records_total",
				Help: "Total number of records received for ingestion",
			},
			[]string{"stream", "status"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of ingest API requests",
			},
			[]string{"route", "code"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of ingest API requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),

		MessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_messages_published_total",
				Help: "Total number of messages published to Kafka",
			},
			[]string{"topic", "status"},
		),
		MessagesConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_messages_consumed_total",
				Help: "Total number of messages consumed from Kafka",
			},
			[]string{"topic", "partition", "status"},
		),
		DLQMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_dlq_messages_total",
				Help: "Total number of messages sent to the dead letter queue",
			},
			[]string{"topic", "reason"},
		),
		Rebalances: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_rebalance_total",
				Help: "Total number of consumer group rebalances",
			},
			[]string{"group"},
		),
		RebalanceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kafka_rebalance_duration_seconds",
				Help:    "Duration of consumer group sessions",
				Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"group"},
		),
		PartitionsAssigned: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kafka_partitions_assigned",
				Help: "Number of partitions currently assigned to this consumer",
			},
			[]string{"topic"},
		),

		FilesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "files_written_total",
				Help: "Total number of files written to storage",
			},
			[]string{"stream", "backend", "format", "status"},
		),
		StorageWriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storage_write_duration_seconds",
				Help:    "Duration of complete storage write operations including encoding",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stream", "backend"},
		),
		FileSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "file_size_bytes",
				Help:    "Size of files written to storage",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to 256MB
			},
			[]string{"stream", "format"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_errors_total",
				Help: "Total number of storage errors",
			},
			[]string{"backend", "operation"},
		),

		RecordsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loadgen_records_sent_total",
				Help: "Total number of synthetic records posted to the ingest API",
			},
			[]string{"stream", "status"},
		),
	}
}

// IncRecordsAdded increments the records added counter.
func (m *Metrics) IncRecordsAdded(key string) {
	m.RecordsAdded.WithLabelValues(key).Inc()
}

// IncSinkCalls increments the sink invocation counter.
func (m *Metrics) IncSinkCalls(key, status string) {
	m.SinkCalls.WithLabelValues(key, status).Inc()
}

// IncFlushes increments the flush counter.
func (m *Metrics) IncFlushes(key, outcome string) {
	m.Flushes.WithLabelValues(key, outcome).Inc()
}

// AddRecordsDelivered adds to the delivered records counter.
func (m *Metrics) AddRecordsDelivered(key string, n int) {
	m.RecordsDelivered.WithLabelValues(key).Add(float64(n))
}

// AddRecordsRestored adds to the restored records counter.
func (m *Metrics) AddRecordsRestored(key string, n int) {
	m.RecordsRestored.WithLabelValues(key).Add(float64(n))
}

// ObserveFlushDuration observes flush duration.
func (m *Metrics) ObserveFlushDuration(key string, seconds float64) {
	m.FlushDuration.WithLabelValues(key).Observe(seconds)
}

// SetPendingRecords sets the pending records gauge.
func (m *Metrics) SetPendingRecords(key string, n int) {
	m.PendingRecords.WithLabelValues(key).Set(float64(n))
}

// AddRecordsIngested adds to the ingested records counter.
func (m *Metrics) AddRecordsIngested(stream, status string, n int) {
	m.RecordsIngested.WithLabelValues(stream, status).Add(float64(n))
}

// ObserveHTTPRequest records one ingest API request.
func (m *Metrics) ObserveHTTPRequest(route string, code int, seconds float64) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(seconds)
}

// AddMessagesPublished adds to the published messages counter.
func (m *Metrics) AddMessagesPublished(topic, status string, n int) {
	if n <= 0 {
		return
	}
	m.MessagesPublished.WithLabelValues(topic, status).Add(float64(n))
}

// IncMessagesConsumed increments messages consumed counter.
func (m *Metrics) IncMessagesConsumed(topic string, partition int32, status string) {
	m.MessagesConsumed.WithLabelValues(topic, strconv.Itoa(int(partition)), status).Inc()
}

// IncDLQMessages increments the dead letter counter.
func (m *Metrics) IncDLQMessages(topic, reason string) {
	m.DLQMessages.WithLabelValues(topic, reason).Inc()
}

// IncRebalances increments rebalances counter.
func (m *Metrics) IncRebalances(groupID string) {
	m.Rebalances.WithLabelValues(groupID).Inc()
}

// ObserveRebalanceDuration observes rebalance duration.
func (m *Metrics) ObserveRebalanceDuration(groupID string, duration float64) {
	m.RebalanceDuration.WithLabelValues(groupID).Observe(duration)
}

// SetPartitionsAssigned sets partitions assigned gauge.
func (m *Metrics) SetPartitionsAssigned(topic string, count float64) {
	m.PartitionsAssigned.WithLabelValues(topic).Set(count)
}

// IncFilesWritten increments files written counter.
func (m *Metrics) IncFilesWritten(stream, backend, format, status string) {
	m.FilesWritten.WithLabelValues(stream, backend, format, status).Inc()
}

// ObserveFileSize observes file size.
func (m *Metrics) ObserveFileSize(stream, format string, size float64) {
	m.FileSize.WithLabelValues(stream, format).Observe(size)
}

// ObserveStorageWriteDuration observes storage write duration.
func (m *Metrics) ObserveStorageWriteDuration(stream, backend string, seconds float64) {
	m.StorageWriteDuration.WithLabelValues(stream, backend).Observe(seconds)
}

// IncStorageErrors increments storage errors counter.
func (m *Metrics) IncStorageErrors(backend, operation string) {
	m.StorageErrors.WithLabelValues(backend, operation).Inc()
}

// AddRecordsSent adds to the load generator records counter.
func (m *Metrics) AddRecordsSent(stream, status string, n int) {
	m.RecordsSent.WithLabelValues(stream, status).Add(float64(n))
}
