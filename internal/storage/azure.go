package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/unsighted-org/demo-1biome-sub001/internal/encoder"
	apperrors "github.com/unsighted-org/demo-1biome-sub001/internal/errors"
	"github.com/unsighted-org/demo-1biome-sub001/pkg/event"
	"github.com/unsighted-org/demo-1biome-sub001/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*AzureWriter)(nil)

// AzureConfig contains Azure Blob Storage configuration.
type AzureConfig struct {
	AccountName   string
	AccountKey    string
	ContainerName string
	Endpoint      string
}

// Validate checks required Azure settings.
func (c AzureConfig) Validate() error {
	if c.AccountName == "" {
		return fmt.Errorf("azure account name is required")
	}
	if c.AccountKey == "" {
		return fmt.Errorf("azure account key is required")
	}
	if c.ContainerName == "" {
		return fmt.Errorf("azure container name is required")
	}
	return nil
}

// ConnectionString builds the shared-key connection string. A custom
// Endpoint (for example Azurite) replaces the public endpoint suffix.
func (c AzureConfig) ConnectionString() string {
	if c.Endpoint != "" {
		return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;BlobEndpoint=%s",
			c.AccountName, c.AccountKey, c.Endpoint)
	}
	return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;EndpointSuffix=core.windows.net",
		c.AccountName, c.AccountKey)
}

// AzureWriter implements storage.Writer for Azure Blob Storage.
type AzureWriter struct {
	client         *azblob.Client
	containerName  string
	encoderFactory *encoder.Factory
	logger         *slog.Logger
	metrics        MetricsCollector
	mu             sync.RWMutex
	closed         bool
}

// NewAzureWriter creates a new Azure Blob storage writer.
func NewAzureWriter(
	cfg AzureConfig,
	format event.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*AzureWriter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	encoderFactory, err := newFactory(format, compression)
	if err != nil {
		return nil, err
	}

	logger.Info("Azure writer created",
		"container", cfg.ContainerName,
		"account", cfg.AccountName,
		"format", format,
		"compression", compression,
	)

	return &AzureWriter{
		client:         client,
		containerName:  cfg.ContainerName,
		encoderFactory: encoderFactory,
		logger:         logger,
		metrics:        metrics,
	}, nil
}

// Write encodes rows and uploads them as one blob under path.
func (w *AzureWriter) Write(ctx context.Context, rows []event.Row, path string) (int64, error) {
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

	tempFile, stats, enc, err := encodeTemp(w.encoderFactory, rows, BackendAzure)
	if err != nil {
		w.incError("encode")
		return 0, err
	}
	defer os.Remove(tempFile)

	blobPath := objectKey(path, "wasbs") + fileName(rows, startTime, enc.FileExtension())

	file, err := os.Open(tempFile)
	if err != nil {
		w.incError("file_open")
		return 0, &apperrors.StorageError{Operation: "open", Path: tempFile, Err: err}
	}
	defer file.Close()

	ct := contentType(format)
	_, err = w.client.UploadFile(ctx, w.containerName, blobPath, file, &azblob.UploadFileOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &ct},
	})
	if err != nil {
		w.incError("upload")
		return 0, &apperrors.StorageError{Operation: "upload", Path: blobPath, Err: err}
	}

	duration := time.Since(startTime)

	w.logger.Info("wrote records to Azure Blob",
		"container", w.containerName,
		"blob", blobPath,
		"record_count", stats.RecordCount,
		"file_size", stats.SizeBytes,
		"format", format,
		"total_duration_ms", duration.Milliseconds(),
	)

	if w.metrics != nil {
		w.metrics.IncFilesWritten(stream, BackendAzure, string(format), "success")
		w.metrics.ObserveFileSize(stream, string(format), float64(stats.SizeBytes))
		w.metrics.ObserveStorageWriteDuration(stream, BackendAzure, duration.Seconds())
	}

	return stats.SizeBytes, nil
}

func (w *AzureWriter) incError(operation string) {
	if w.metrics != nil {
		w.metrics.IncStorageErrors(BackendAzure, operation)
	}
}

// Close closes the Azure writer.
func (w *AzureWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	w.logger.Info("Azure writer closed")
	return nil
}
