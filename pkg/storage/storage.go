// Package storage defines interfaces for telemetry storage operations.
//
// This package provides abstractions for writing flushed batches to
// various storage backends (S3, Azure Blob, GCS, local filesystem).
package storage

import (
	"context"
	"time"

	"github.com/unsighted-org/demo-1biome-sub001/pkg/event"
)

// Writer writes telemetry rows to storage.
type Writer interface {
	// Write encodes rows as one file under the specified path.
	// Returns the number of bytes written.
	Write(ctx context.Context, rows []event.Row, path string) (int64, error)

	// Close closes the writer and releases resources.
	Close() error
}

// Router determines storage paths based on partitioning strategy.
type Router interface {
	// Route returns the directory for a stream's batch whose first record
	// happened at t.
	Route(stream string, t time.Time) string
}
