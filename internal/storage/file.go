package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/unsighted-org/demo-1biome-sub001/internal/encoder"
	apperrors "github.com/unsighted-org/demo-1biome-sub001/internal/errors"
	"github.com/unsighted-org/demo-1biome-sub001/pkg/event"
	"github.com/unsighted-org/demo-1biome-sub001/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*FileWriter)(nil)

// FileConfig contains local filesystem configuration.
type FileConfig struct {
	BasePath string
}

// FileWriter implements storage.Writer for local filesystem storage.
// Files are organized in the routed Hive-style directory tree under BasePath.
type FileWriter struct {
	basePath       string
	encoderFactory *encoder.Factory
	logger         *slog.Logger
	metrics        MetricsCollector
	mu             sync.Mutex
	closed         bool
}

// NewFileWriter creates a new filesystem storage writer.
func NewFileWriter(
	config FileConfig,
	format event.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*FileWriter, error) {
	if config.BasePath == "" {
		return nil, fmt.Errorf("file storage base path is required")
	}

	if err := os.MkdirAll(config.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	encoderFactory, err := newFactory(format, compression)
	if err != nil {
		return nil, err
	}

	logger.Info("filesystem writer created",
		"base_path", config.BasePath,
		"format", format,
		"compression", compression,
	)

	return &FileWriter{
		basePath:       config.BasePath,
		encoderFactory: encoderFactory,
		logger:         logger,
		metrics:        metrics,
	}, nil
}

// Write encodes rows into a new file in the directory named by path.
func (w *FileWriter) Write(ctx context.Context, rows []event.Row, path string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, apperrors.ErrWriterClosed
	}

	startTime := time.Now()
	stream := streamLabel(rows)
	format := w.encoderFactory.Format()

	enc, err := w.encoderFactory.CreateEncoder()
	if err != nil {
		w.incError("encoder_create")
		return 0, &apperrors.StorageError{Operation: "encoder_create", Path: path, Err: err}
	}

	dir := filepath.Join(w.basePath, filepath.FromSlash(strings.TrimPrefix(path, "file://")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.incError("mkdir")
		return 0, &apperrors.StorageError{Operation: "create", Path: dir, Err: err}
	}

	fullPath := filepath.Join(dir, fileName(rows, startTime, enc.FileExtension()))
	stats, err := enc.Encode(fullPath, rows)
	if err != nil {
		w.incError("encode")
		return 0, &apperrors.StorageError{Operation: "write", Path: fullPath, Err: err}
	}

	duration := time.Since(startTime)

	w.logger.Info("wrote records to file",
		"path", fullPath,
		"record_count", stats.RecordCount,
		"file_size", stats.SizeBytes,
		"format", format,
		"total_duration_ms", duration.Milliseconds(),
	)

	if w.metrics != nil {
		w.metrics.IncFilesWritten(stream, BackendFile, string(format), "success")
		w.metrics.ObserveFileSize(stream, string(format), float64(stats.SizeBytes))
		w.metrics.ObserveStorageWriteDuration(stream, BackendFile, duration.Seconds())
	}

	return stats.SizeBytes, nil
}

func (w *FileWriter) incError(operation string) {
	if w.metrics != nil {
		w.metrics.IncStorageErrors(BackendFile, operation)
	}
}

// Close closes the writer. Later writes fail with ErrWriterClosed.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	w.logger.Info("closing filesystem writer")
	return nil
}
