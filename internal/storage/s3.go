package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/unsighted-org/demo-1biome-sub001/internal/encoder"
	apperrors "github.com/unsighted-org/demo-1biome-sub001/internal/errors"
	"github.com/unsighted-org/demo-1biome-sub001/pkg/event"
	"github.com/unsighted-org/demo-1biome-sub001/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*S3Writer)(nil)

// S3Config contains AWS S3 configuration.
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	SSEEnabled   bool
	SSEKMSKeyID  string
}

// Validate checks required S3 settings.
func (c S3Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("s3 bucket is required")
	}
	if c.Region == "" {
		return fmt.Errorf("s3 region is required")
	}
	return nil
}

// S3Writer implements storage.Writer for AWS S3 and S3-compatible stores.
// Large files go through the multipart upload manager.
type S3Writer struct {
	uploader       *manager.Uploader
	bucket         string
	sseEnabled     bool
	sseKMSKeyID    string
	encoderFactory *encoder.Factory
	logger         *slog.Logger
	metrics        MetricsCollector
	mu             sync.RWMutex
	closed         bool
}

// NewS3Writer creates a new S3 storage writer.
func NewS3Writer(
	ctx context.Context,
	cfg S3Config,
	format event.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*S3Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	uploader := manager.NewUploader(s3Client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024
		u.Concurrency = 5
	})

	encoderFactory, err := newFactory(format, compression)
	if err != nil {
		return nil, err
	}

	logger.Info("S3 writer created",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"endpoint", cfg.Endpoint,
		"format", format,
		"compression", compression,
		"sse_enabled", cfg.SSEEnabled,
	)

	return &S3Writer{
		uploader:       uploader,
		bucket:         cfg.Bucket,
		sseEnabled:     cfg.SSEEnabled,
		sseKMSKeyID:    cfg.SSEKMSKeyID,
		encoderFactory: encoderFactory,
		logger:         logger,
		metrics:        metrics,
	}, nil
}

// Write encodes rows and uploads them as one object under path.
func (w *S3Writer) Write(ctx context.Context, rows []event.Row, path string) (int64, error) {
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

	tempFile, stats, enc, err := encodeTemp(w.encoderFactory, rows, BackendS3)
	if err != nil {
		w.incError("encode")
		return 0, err
	}
	defer os.Remove(tempFile)

	key := objectKey(path, "s3") + fileName(rows, startTime, enc.FileExtension())

	file, err := os.Open(tempFile)
	if err != nil {
		w.incError("file_open")
		return 0, &apperrors.StorageError{Operation: "open", Path: tempFile, Err: err}
	}
	defer file.Close()

	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType(format)),
	}
	w.applySSE(input)

	result, err := w.uploader.Upload(ctx, input)
	if err != nil {
		w.incError("upload")
		return 0, &apperrors.StorageError{Operation: "upload", Path: key, Err: err}
	}

	duration := time.Since(startTime)

	w.logger.Info("wrote records to S3",
		"bucket", w.bucket,
		"key", key,
		"record_count", stats.RecordCount,
		"file_size", stats.SizeBytes,
		"format", format,
		"location", result.Location,
		"total_duration_ms", duration.Milliseconds(),
	)

	if w.metrics != nil {
		w.metrics.IncFilesWritten(stream, BackendS3, string(format), "success")
		w.metrics.ObserveFileSize(stream, string(format), float64(stats.SizeBytes))
		w.metrics.ObserveStorageWriteDuration(stream, BackendS3, duration.Seconds())
	}

	return stats.SizeBytes, nil
}

func (w *S3Writer) applySSE(input *s3.PutObjectInput) {
	if !w.sseEnabled {
		return
	}
	if w.sseKMSKeyID != "" {
		input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		input.SSEKMSKeyId = aws.String(w.sseKMSKeyID)
		return
	}
	input.ServerSideEncryption = types.ServerSideEncryptionAes256
}

func (w *S3Writer) incError(operation string) {
	if w.metrics != nil {
		w.metrics.IncStorageErrors(BackendS3, operation)
	}
}

// Close closes the S3 writer.
func (w *S3Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	w.logger.Info("closing S3 writer")
	return nil
}
