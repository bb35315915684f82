// Package encoder provides telemetry row encoding to various file formats.
//
// This package implements encoders for converting flushed batches of
// event.Row into files suitable for storage and analytics, with configurable
// compression.
//
// # Supported Formats
//
//   - Parquet: Columnar format optimized for analytics and Athena queries
//   - Avro: Row-based OCF format with embedded schema
//
// # Encoder Factory
//
// Use Factory to create encoder instances:
//
//	factory := encoder.NewFactory(event.FormatParquet, "snappy")
//	enc, err := factory.CreateEncoder()
//	if err != nil {
//	    return err
//	}
//	stats, err := enc.Encode(filePath, rows)
//
// # Schema
//
// Both formats share one flat schema: kind, id, timestamp (microseconds),
// source, name, level, message, value, unit, user_id and attributes (a JSON
// object). Columns that do not apply to a row's kind are NULL.
//
// # Compression Options
//
//	Parquet: "snappy" (default), "gzip", "lz4", "zstd", "uncompressed"
//	Avro:    "gzip" (default, whole-file), "uncompressed"
//
// Encoder instances are safe for concurrent use.
package encoder
