package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/jonboulle/clockwork"

	"github.com/unsighted-org/demo-1biome-sub001/internal/buffer"
	"github.com/unsighted-org/demo-1biome-sub001/internal/config/dto"
	"github.com/unsighted-org/demo-1biome-sub001/pkg/event"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events int
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, events []cloudevents.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events += len(events)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegisterStreams_StorageAndKafka(t *testing.T) {
	storageCfg := &dto.StorageConfig{
		Backend: "file",
		Format:  "parquet",
		File:    dto.FileConfig{BasePath: t.TempDir()},
	}
	writer, router, err := newStorage(context.Background(), storageCfg, testLogger(), nil)
	if err != nil {
		t.Fatalf("newStorage() error = %v", err)
	}
	defer writer.Close()

	publisher := &recordingPublisher{}
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 7, 0, 0, 0, time.UTC))
	emitter := buffer.New[event.Rower](buffer.Config{Clock: clock}, testLogger(), nil)
	defer emitter.Destroy()

	streams := dto.StreamsConfig{
		Logs:    dto.StreamConfig{Enabled: true, Sinks: []string{dto.SinkKafka}, Topic: "telemetry.logs"},
		Metrics: dto.StreamConfig{Enabled: true, Sinks: []string{dto.SinkStorage, dto.SinkKafka}, Topic: "telemetry.metrics"},
	}
	if err := registerStreams(emitter, streams, writer, router, publisher, testLogger()); err != nil {
		t.Fatalf("registerStreams() error = %v", err)
	}

	if got := strings.Join(emitter.Keys(), ","); got != "logs,metrics" {
		t.Errorf("Keys() = %s, want logs,metrics", got)
	}

	emitter.Add(event.StreamMetrics, event.MetricPoint{ID: "m1", Name: "steps", Value: 120, Timestamp: clock.Now()})
	emitter.Add(event.StreamLogs, event.LogEntry{ID: "l1", Level: event.LevelInfo, Message: "synced", Timestamp: clock.Now()})

	if err := emitter.FlushAll(context.Background()); err != nil {
		t.Fatalf("FlushAll() error = %v", err)
	}

	if publisher.events != 2 {
		t.Errorf("published events = %d, want 2", publisher.events)
	}

	files, err := filepath.Glob(filepath.Join(storageCfg.File.BasePath, "metrics", "dt=2025-03-01", "hr=07", "*.parquet"))
	if err != nil || len(files) != 1 {
		t.Fatalf("parquet files = %v (err %v), want 1", files, err)
	}
	if _, err := os.Stat(filepath.Join(storageCfg.File.BasePath, "logs")); !os.IsNotExist(err) {
		t.Errorf("logs stream wrote to storage without a storage sink")
	}
}

func TestRegisterStreams_MissingDependencies(t *testing.T) {
	emitter := buffer.New[event.Rower](buffer.Config{Clock: clockwork.NewFakeClock()}, testLogger(), nil)
	defer emitter.Destroy()

	tests := []struct {
		name    string
		streams dto.StreamsConfig
		wantErr string
	}{
		{
			name:    "storage sink without writer",
			streams: dto.StreamsConfig{Logs: dto.StreamConfig{Enabled: true, Sinks: []string{dto.SinkStorage}}},
			wantErr: "storage sink is not configured",
		},
		{
			name:    "kafka sink without publisher",
			streams: dto.StreamsConfig{Metrics: dto.StreamConfig{Enabled: true, Sinks: []string{dto.SinkKafka}, Topic: "t"}},
			wantErr: "kafka sink is not configured",
		},
		{
			name:    "unknown sink",
			streams: dto.StreamsConfig{Logs: dto.StreamConfig{Enabled: true, Sinks: []string{"webhook"}}},
			wantErr: "unsupported sink",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := registerStreams(emitter, tt.streams, nil, nil, nil, testLogger())
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("registerStreams() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestStorageFormat(t *testing.T) {
	tests := []struct {
		format, compression string
		wantFormat          event.FileFormat
		wantCompression     string
	}{
		{format: "", wantFormat: event.FormatParquet, wantCompression: "snappy"},
		{format: "parquet", compression: "zstd", wantFormat: event.FormatParquet, wantCompression: "zstd"},
		{format: "avro", wantFormat: event.FormatAvro, wantCompression: "gzip"},
	}

	for _, tt := range tests {
		format, compression := storageFormat(&dto.StorageConfig{Format: tt.format, Compression: tt.compression})
		if format != tt.wantFormat || compression != tt.wantCompression {
			t.Errorf("storageFormat(%q, %q) = %s, %s", tt.format, tt.compression, format, compression)
		}
	}
}

func TestStorageRouting(t *testing.T) {
	tests := []struct {
		cfg          dto.StorageConfig
		wantProtocol string
		wantBucket   string
		wantBase     string
	}{
		{cfg: dto.StorageConfig{Backend: "file"}, wantProtocol: "file"},
		{cfg: dto.StorageConfig{Backend: "s3", S3: dto.S3Config{Bucket: "b", BasePath: "raw"}}, wantProtocol: "s3", wantBucket: "b", wantBase: "raw"},
		{cfg: dto.StorageConfig{Backend: "azure", Azure: dto.AzureConfig{Container: "c"}}, wantProtocol: "wasbs", wantBucket: "c"},
		{cfg: dto.StorageConfig{Backend: "gcs", GCS: dto.GCSConfig{Bucket: "g", BasePath: "events"}}, wantProtocol: "gs", wantBucket: "g", wantBase: "events"},
	}

	for _, tt := range tests {
		t.Run(tt.cfg.Backend, func(t *testing.T) {
			if got := storageProtocol(tt.cfg.Backend); got != tt.wantProtocol {
				t.Errorf("storageProtocol() = %s, want %s", got, tt.wantProtocol)
			}
			if got := storageBucket(&tt.cfg); got != tt.wantBucket {
				t.Errorf("storageBucket() = %s, want %s", got, tt.wantBucket)
			}
			if got := storageBasePath(&tt.cfg); got != tt.wantBase {
				t.Errorf("storageBasePath() = %s, want %s", got, tt.wantBase)
			}
		})
	}
}

func TestNewStorage_UnsupportedBackend(t *testing.T) {
	if _, _, err := newStorage(context.Background(), &dto.StorageConfig{Backend: "ftp"}, testLogger(), nil); err == nil {
		t.Error("newStorage() error = nil, want unsupported backend")
	}
}

func TestEmitterConfig(t *testing.T) {
	clock := clockwork.NewFakeClock()
	got := emitterConfig(dto.EmitterConfig{MaxBufferSize: 50, FlushInterval: 2 * time.Second, SinkTimeout: time.Second}, clock)

	if got.MaxBufferSize != 50 || got.FlushInterval != 2*time.Second || got.SinkTimeout != time.Second || got.Clock != clock {
		t.Errorf("emitterConfig() = %+v", got)
	}
}
