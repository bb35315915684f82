package storage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/unsighted-org/demo-1biome-sub001/internal/errors"
	"github.com/unsighted-org/demo-1biome-sub001/pkg/event"
)

func TestNewFileWriter(t *testing.T) {
	tests := []struct {
		name        string
		config      FileConfig
		format      event.FileFormat
		compression string
		wantErr     bool
	}{
		{"parquet", FileConfig{BasePath: t.TempDir()}, event.FormatParquet, "snappy", false},
		{"avro", FileConfig{BasePath: t.TempDir()}, event.FormatAvro, "gzip", false},
		{"unsupported format", FileConfig{BasePath: t.TempDir()}, event.FileFormat("csv"), "", true},
		{"missing base path", FileConfig{}, event.FormatParquet, "snappy", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewFileWriter(tt.config, tt.format, tt.compression, slog.New(slog.DiscardHandler), nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewFileWriter() error = %v, wantErr %v", err, tt.wantErr)
			}
			if w != nil {
				w.Close()
			}
		})
	}
}

func TestFileWriter_Write(t *testing.T) {
	base := t.TempDir()
	metrics := &mockMetricsCollector{}

	w, err := NewFileWriter(FileConfig{BasePath: base}, event.FormatParquet, "snappy", slog.New(slog.DiscardHandler), metrics)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}
	defer w.Close()

	path := NewRouter("file", "", "telemetry").Route(event.StreamLogs, testRows()[0].Timestamp)

	size, err := w.Write(context.Background(), testRows(), path)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if size == 0 {
		t.Error("expected non-zero size")
	}

	dir := filepath.Join(base, "telemetry", "logs", "dt=2025-03-01", "hr=07")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("files = %d, want 1", len(entries))
	}
	if name := entries[0].Name(); !strings.HasPrefix(name, "log_") || !strings.HasSuffix(name, ".parquet") {
		t.Errorf("file name = %q", name)
	}

	if metrics.filesWritten != 1 {
		t.Errorf("filesWritten = %d, want 1", metrics.filesWritten)
	}
	if metrics.lastStream != "log" || metrics.lastBackend != BackendFile || metrics.lastFormat != "parquet" {
		t.Errorf("labels = %s/%s/%s", metrics.lastStream, metrics.lastBackend, metrics.lastFormat)
	}
	if len(metrics.fileSizes) != 1 || metrics.fileSizes[0] != float64(size) {
		t.Errorf("fileSizes = %v, want [%d]", metrics.fileSizes, size)
	}
}

func TestFileWriter_WriteEmpty(t *testing.T) {
	w, err := NewFileWriter(FileConfig{BasePath: t.TempDir()}, event.FormatAvro, "gzip", slog.New(slog.DiscardHandler), nil)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}

	size, err := w.Write(context.Background(), nil, "file://logs/")
	if err != nil || size != 0 {
		t.Errorf("Write(nil) = %d, %v; want 0, nil", size, err)
	}
}

func TestFileWriter_Close(t *testing.T) {
	w, err := NewFileWriter(FileConfig{BasePath: t.TempDir()}, event.FormatParquet, "snappy", slog.New(slog.DiscardHandler), nil)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	_, err = w.Write(context.Background(), testRows(), "file://logs/")
	if !errors.Is(err, apperrors.ErrWriterClosed) {
		t.Errorf("Write() after Close error = %v, want ErrWriterClosed", err)
	}
}

func TestFileWriter_CancelledContext(t *testing.T) {
	w, err := NewFileWriter(FileConfig{BasePath: t.TempDir()}, event.FormatParquet, "snappy", slog.New(slog.DiscardHandler), nil)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := w.Write(ctx, testRows(), "file://logs/"); !errors.Is(err, context.Canceled) {
		t.Errorf("Write() error = %v, want context.Canceled", err)
	}
}
