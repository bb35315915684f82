// Package encoder defines interfaces for encoding telemetry rows to various file formats.
package encoder

import "github.com/unsighted-org/demo-1biome-sub001/pkg/event"

// Encoder encodes rows to a specific file format.
type Encoder interface {
	// Encode writes rows to a file and returns file statistics.
	Encode(filePath string, rows []event.Row) (*event.FileStats, error)

	// Format returns the file format this encoder produces.
	Format() event.FileFormat

	// FileExtension returns the file extension (e.g., ".parquet", ".avro").
	FileExtension() string
}
