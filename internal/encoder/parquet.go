package encoder

import (
	"fmt"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/unsighted-org/demo-1biome-sub001/pkg/encoder"
	"github.com/unsighted-org/demo-1biome-sub001/pkg/event"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*ParquetEncoder)(nil)

// TelemetryParquet is the Parquet schema for telemetry rows.
// Time columns use TIMESTAMP_MICROS so Athena and Spark read them natively.
type TelemetryParquet struct {
	Kind      string    `parquet:"kind,dict"`
	ID        string    `parquet:"id"`
	Timestamp time.Time `parquet:"timestamp,timestamp(microsecond)"`
	Source    string    `parquet:"source,dict"`
	Name      *string   `parquet:"name,dict,optional"`
	Level     *string   `parquet:"level,dict,optional"`
	Message   *string   `parquet:"message,optional"`
	Value     float64   `parquet:"value"`
	Unit      *string   `parquet:"unit,dict,optional"`
	UserID    *string   `parquet:"user_id,dict,optional"`

	Attributes string `parquet:"attributes"`
}

// ParquetEncoder implements encoder.Encoder for Apache Parquet columnar format.
// Supports multiple compression codecs: SNAPPY (default), GZIP, LZ4, ZSTD.
type ParquetEncoder struct {
	compressionName string
}

// NewParquetEncoder creates a new Parquet encoder with specified compression.
func NewParquetEncoder(compression string) *ParquetEncoder {
	return &ParquetEncoder{
		compressionName: compression,
	}
}

// compressionCodec converts string compression name to parquet WriterOption.
func compressionCodec(compression string) parquet.WriterOption {
	switch compression {
	case "snappy", "SNAPPY":
		return parquet.Compression(&parquet.Snappy)
	case "gzip", "GZIP":
		return parquet.Compression(&parquet.Gzip)
	case "lz4", "LZ4":
		return parquet.Compression(&parquet.Lz4Raw)
	case "zstd", "ZSTD":
		return parquet.Compression(&parquet.Zstd)
	case "uncompressed", "UNCOMPRESSED", "none", "NONE":
		return parquet.Compression(&parquet.Uncompressed)
	default:
		return parquet.Compression(&parquet.Snappy)
	}
}

// Encode writes rows to a Parquet file.
func (e *ParquetEncoder) Encode(filePath string, rows []event.Row) (*event.FileStats, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows to encode")
	}

	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	records := make([]TelemetryParquet, len(rows))
	for i, row := range rows {
		records[i] = toParquetRecord(row)
	}

	writer := parquet.NewGenericWriter[TelemetryParquet](
		file,
		parquet.SchemaOf(new(TelemetryParquet)),
		compressionCodec(e.compressionName),
		parquet.CreatedBy("biome-telemetry", "1.0", "0"),
	)

	if _, err := writer.Write(records); err != nil {
		writer.Close()
		file.Close()
		return nil, fmt.Errorf("failed to write rows: %w", err)
	}

	if err := writer.Close(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	// Close file before getting stats to ensure all data is flushed
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	return fileStats(filePath, rows)
}

func toParquetRecord(row event.Row) TelemetryParquet {
	return TelemetryParquet{
		Kind:       string(row.Kind),
		ID:         row.ID,
		Timestamp:  row.Timestamp.UTC(),
		Source:     row.Source,
		Name:       optional(row.Name),
		Level:      optional(row.Level),
		Message:    optional(row.Message),
		Value:      row.Value,
		Unit:       optional(row.Unit),
		UserID:     optional(row.UserID),
		Attributes: row.Attributes,
	}
}

// optional maps empty strings to NULL.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Format returns the file format.
func (e *ParquetEncoder) Format() event.FileFormat {
	return event.FormatParquet
}

// FileExtension returns the file extension.
func (e *ParquetEncoder) FileExtension() string {
	return ".parquet"
}
