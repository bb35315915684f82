package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/unsighted-org/demo-1biome-sub001/internal/encoder"
	apperrors "github.com/unsighted-org/demo-1biome-sub001/internal/errors"
	"github.com/unsighted-org/demo-1biome-sub001/pkg/event"
	pkgstorage "github.com/unsighted-org/demo-1biome-sub001/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ pkgstorage.Writer = (*GCSWriter)(nil)

// GCSConfig contains Google Cloud Storage configuration.
type GCSConfig struct {
	Bucket               string
	ProjectID            string
	CredentialsFile      string
	CredentialsJSON      string
	Endpoint             string
	UseDefaultCredential bool
}

// Validate checks required GCS settings.
func (c GCSConfig) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("gcs bucket is required")
	}
	return nil
}

// ClientOptions returns the client options for the configured credentials.
// Explicit JSON wins over a credentials file; neither means ADC.
func (c GCSConfig) ClientOptions() []option.ClientOption {
	var opts []option.ClientOption
	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.Endpoint))
	}

	switch {
	case c.UseDefaultCredential:
	case c.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(c.CredentialsJSON)))
	case c.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(c.CredentialsFile))
	}
	return opts
}

// GCSWriter implements storage.Writer for Google Cloud Storage.
type GCSWriter struct {
	client         *storage.Client
	bucket         string
	encoderFactory *encoder.Factory
	logger         *slog.Logger
	metrics        MetricsCollector
	mu             sync.RWMutex
	closed         bool
}

// NewGCSWriter creates a new Google Cloud Storage writer.
func NewGCSWriter(
	ctx context.Context,
	cfg GCSConfig,
	format event.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*GCSWriter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx, cfg.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	encoderFactory, err := newFactory(format, compression)
	if err != nil {
		client.Close()
		return nil, err
	}

	logger.Info("GCS writer created",
		"bucket", cfg.Bucket,
		"project_id", cfg.ProjectID,
		"default_credentials", cfg.UseDefaultCredential,
		"format", format,
		"compression", compression,
	)

	return &GCSWriter{
		client:         client,
		bucket:         cfg.Bucket,
		encoderFactory: encoderFactory,
		logger:         logger,
		metrics:        metrics,
	}, nil
}

// Write encodes rows and uploads them as one object under path.
func (w *GCSWriter) Write(ctx context.Context, rows []event.Row, path string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return 0, apperrors.ErrWriterClosed
	}

	startTime := time.Now()
	stream := streamLabel(rows)
	format := w.encoderFactory.Format()

	tempFile, stats, enc, err := encodeTemp(w.encoderFactory, rows, BackendGCS)
	if err != nil {
		w.incError("encode")
		return 0, err
	}
	defer os.Remove(tempFile)

	objectPath := objectKey(path, "gs") + fileName(rows, startTime, enc.FileExtension())

	file, err := os.Open(tempFile)
	if err != nil {
		w.incError("file_open")
		return 0, &apperrors.StorageError{Operation: "open", Path: tempFile, Err: err}
	}
	defer file.Close()

	gcsWriter := w.client.Bucket(w.bucket).Object(objectPath).NewWriter(ctx)
	gcsWriter.ContentType = contentType(format)

	bytesWritten, err := io.Copy(gcsWriter, file)
	if err != nil {
		gcsWriter.Close()
		w.incError("upload")
		return 0, &apperrors.StorageError{Operation: "upload", Path: objectPath, Err: err}
	}

	// Close finalizes the upload.
	if err := gcsWriter.Close(); err != nil {
		w.incError("close")
		return 0, &apperrors.StorageError{Operation: "upload", Path: objectPath, Err: err}
	}

	duration := time.Since(startTime)

	w.logger.Info("wrote records to GCS",
		"bucket", w.bucket,
		"object", objectPath,
		"record_count", stats.RecordCount,
		"file_size", stats.SizeBytes,
		"bytes_written", bytesWritten,
		"format", format,
		"total_duration_ms", duration.Milliseconds(),
	)

	if w.metrics != nil {
		w.metrics.IncFilesWritten(stream, BackendGCS, string(format), "success")
		w.metrics.ObserveFileSize(stream, string(format), float64(stats.SizeBytes))
		w.metrics.ObserveStorageWriteDuration(stream, BackendGCS, duration.Seconds())
	}

	return stats.SizeBytes, nil
}

func (w *GCSWriter) incError(operation string) {
	if w.metrics != nil {
		w.metrics.IncStorageErrors(BackendGCS, operation)
	}
}

// Close closes the GCS writer and its client.
func (w *GCSWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.logger.Info("closing GCS writer")
	return w.client.Close()
}
