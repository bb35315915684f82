// Package storage implements storage writers for flushed telemetry batches.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/unsighted-org/demo-1biome-sub001/internal/encoder"
	apperrors "github.com/unsighted-org/demo-1biome-sub001/internal/errors"
	pkgencoder "github.com/unsighted-org/demo-1biome-sub001/pkg/encoder"
	"github.com/unsighted-org/demo-1biome-sub001/pkg/event"
)

// MetricsCollector defines metrics operations for storage.
type MetricsCollector interface {
	IncFilesWritten(stream, backend, format, status string)
	ObserveFileSize(stream, format string, size float64)
	ObserveStorageWriteDuration(stream, backend string, seconds float64)
	IncStorageErrors(backend, operation string)
}

// Backend names used as metric labels.
const (
	BackendFile  = "file"
	BackendS3    = "s3"
	BackendAzure = "azure"
	BackendGCS   = "gcs"
)

// newFactory validates that format and compression produce an encoder.
func newFactory(format event.FileFormat, compression string) (*encoder.Factory, error) {
	factory := encoder.NewFactory(format, compression)
	if _, err := factory.CreateEncoder(); err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	return factory, nil
}

// objectKey strips "protocol://bucket/" from a routed path, leaving the
// object key prefix. Paths without the protocol are returned unchanged.
func objectKey(path, protocol string) string {
	prefix := protocol + "://"
	if !strings.HasPrefix(path, prefix) {
		return strings.TrimPrefix(path, "/")
	}

	_, key, found := strings.Cut(strings.TrimPrefix(path, prefix), "/")
	if !found {
		return ""
	}
	return key
}

// fileName returns <kind>_YYYYMMDD_HHMMSS_<id><ext>. The random id keeps
// names unique across concurrent flushes of one stream.
func fileName(rows []event.Row, now time.Time, ext string) string {
	return fmt.Sprintf("%s_%s_%s%s",
		streamLabel(rows),
		now.UTC().Format("20060102_150405"),
		strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		ext,
	)
}

func streamLabel(rows []event.Row) string {
	if len(rows) == 0 || rows[0].Kind == "" {
		return "events"
	}
	return string(rows[0].Kind)
}

// encodeTemp encodes rows into a temporary file. The caller removes it.
func encodeTemp(factory *encoder.Factory, rows []event.Row, backend string) (string, *event.FileStats, pkgencoder.Encoder, error) {
	enc, err := factory.CreateEncoder()
	if err != nil {
		return "", nil, nil, &apperrors.StorageError{Operation: "encoder_create", Err: err}
	}

	tempFile := filepath.Join(os.TempDir(),
		fmt.Sprintf("%s-upload-%s%s", backend, uuid.NewString(), enc.FileExtension()))

	stats, err := enc.Encode(tempFile, rows)
	if err != nil {
		os.Remove(tempFile)
		return "", nil, nil, &apperrors.StorageError{Operation: "encode", Path: tempFile, Err: err}
	}
	return tempFile, stats, enc, nil
}

func contentType(format event.FileFormat) string {
	if format == event.FormatAvro {
		return "application/avro"
	}
	return "application/octet-stream"
}
