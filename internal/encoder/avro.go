package encoder

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/linkedin/goavro/v2"

	"github.com/unsighted-org/demo-1biome-sub001/pkg/encoder"
	"github.com/unsighted-org/demo-1biome-sub001/pkg/event"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*AvroEncoder)(nil)

// AvroEncoder implements encoder.Encoder for Apache Avro binary format.
// It produces OCF (Object Container File) output, optionally gzip wrapped.
type AvroEncoder struct {
	codec       *goavro.Codec
	compression string
}

// NewAvroEncoder creates a new Avro encoder with specified compression.
func NewAvroEncoder(compression string) (*AvroEncoder, error) {
	codec, err := goavro.NewCodec(avroSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to create avro codec: %w", err)
	}

	return &AvroEncoder{
		codec:       codec,
		compression: compression,
	}, nil
}

const avroSchema = `{
	"type": "record",
	"name": "TelemetryRow",
	"namespace": "org.biome.telemetry",
	"fields": [
		{"name": "kind", "type": "string"},
		{"name": "id", "type": "string"},
		{"name": "timestamp", "type": {"type": "long", "logicalType": "timestamp-micros"}},
		{"name": "source", "type": "string"},
		{"name": "name", "type": ["null", "string"], "default": null},
		{"name": "level", "type": ["null", "string"], "default": null},
		{"name": "message", "type": ["null", "string"], "default": null},
		{"name": "value", "type": "double"},
		{"name": "unit", "type": ["null", "string"], "default": null},
		{"name": "user_id", "type": ["null", "string"], "default": null},
		{"name": "attributes", "type": "string"}
	]
}`

func (e *AvroEncoder) gzipped() bool {
	return e.compression == "gzip" || e.compression == "GZIP"
}

// Encode writes rows to an Avro file.
func (e *AvroEncoder) Encode(filePath string, rows []event.Row) (*event.FileStats, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows to encode")
	}

	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := e.encode(file, rows); err != nil {
		return nil, err
	}

	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	return fileStats(filePath, rows)
}

// EncodeToBytes encodes rows to an in-memory OCF document.
func (e *AvroEncoder) EncodeToBytes(rows []event.Row) ([]byte, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows to encode")
	}

	var buf bytes.Buffer
	if err := e.encode(&buf, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *AvroEncoder) encode(w io.Writer, rows []event.Row) error {
	var gzipWriter *gzip.Writer
	if e.gzipped() {
		gzipWriter = gzip.NewWriter(w)
		w = gzipWriter
	}

	ocfWriter, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:     w,
		Codec: e.codec,
	})
	if err != nil {
		return fmt.Errorf("failed to create OCF writer: %w", err)
	}

	batch := make([]any, len(rows))
	for i, row := range rows {
		batch[i] = toAvroMap(row)
	}
	if err := ocfWriter.Append(batch); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}

	if gzipWriter != nil {
		if err := gzipWriter.Close(); err != nil {
			return fmt.Errorf("failed to close gzip writer: %w", err)
		}
	}
	return nil
}

func toAvroMap(row event.Row) map[string]any {
	return map[string]any{
		"kind":       string(row.Kind),
		"id":         row.ID,
		"timestamp":  row.Timestamp.UTC().Truncate(time.Microsecond),
		"source":     row.Source,
		"name":       avroOptional(row.Name),
		"level":      avroOptional(row.Level),
		"message":    avroOptional(row.Message),
		"value":      row.Value,
		"unit":       avroOptional(row.Unit),
		"user_id":    avroOptional(row.UserID),
		"attributes": row.Attributes,
	}
}

// avroOptional encodes empty strings as the null branch of a union.
func avroOptional(s string) any {
	if s == "" {
		return nil
	}
	return goavro.Union("string", s)
}

// Format returns the file format.
func (e *AvroEncoder) Format() event.FileFormat {
	return event.FormatAvro
}

// FileExtension returns the file extension.
func (e *AvroEncoder) FileExtension() string {
	if e.gzipped() {
		return ".avro.gz"
	}
	return ".avro"
}
