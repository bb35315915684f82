package encoder

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/linkedin/goavro/v2"

	"github.com/unsighted-org/demo-1biome-sub001/pkg/event"
)

func readOCF(t *testing.T, data []byte, gzipped bool) []map[string]any {
	t.Helper()

	var r io.Reader = bytes.NewReader(data)
	if gzipped {
		gz, err := gzip.NewReader(r)
		if err != nil {
			t.Fatalf("gzip.NewReader() error = %v", err)
		}
		defer gz.Close()
		r = gz
	}

	reader, err := goavro.NewOCFReader(r)
	if err != nil {
		t.Fatalf("NewOCFReader() error = %v", err)
	}

	var out []map[string]any
	for reader.Scan() {
		datum, err := reader.Read()
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		out = append(out, datum.(map[string]any))
	}
	if err := reader.Err(); err != nil {
		t.Fatalf("reader error = %v", err)
	}
	return out
}

func TestAvroEncoder_FileExtension(t *testing.T) {
	tests := []struct {
		compression string
		want        string
	}{
		{"uncompressed", ".avro"},
		{"gzip", ".avro.gz"},
		{"GZIP", ".avro.gz"},
	}

	for _, tt := range tests {
		t.Run(tt.compression, func(t *testing.T) {
			enc, err := NewAvroEncoder(tt.compression)
			if err != nil {
				t.Fatalf("NewAvroEncoder() error = %v", err)
			}
			if got := enc.FileExtension(); got != tt.want {
				t.Errorf("FileExtension() = %v, want %v", got, tt.want)
			}
			if enc.Format() != event.FormatAvro {
				t.Errorf("Format() = %v, want avro", enc.Format())
			}
		})
	}
}

func TestAvroEncoder_Encode(t *testing.T) {
	tests := []struct {
		name        string
		compression string
		gzipped     bool
	}{
		{"gzip", "gzip", true},
		{"uncompressed", "uncompressed", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewAvroEncoder(tt.compression)
			if err != nil {
				t.Fatalf("NewAvroEncoder() error = %v", err)
			}

			path := filepath.Join(t.TempDir(), "batch"+enc.FileExtension())
			now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

			stats, err := enc.Encode(path, testRows(now))
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if stats.RecordCount != 2 {
				t.Errorf("RecordCount = %d, want 2", stats.RecordCount)
			}

			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile() error = %v", err)
			}
			if int64(len(data)) != stats.SizeBytes {
				t.Errorf("SizeBytes = %d, file has %d", stats.SizeBytes, len(data))
			}

			got := readOCF(t, data, tt.gzipped)
			if len(got) != 2 {
				t.Fatalf("read %d rows, want 2", len(got))
			}
			if got[0]["id"] != "log-1" {
				t.Errorf("id = %v, want log-1", got[0]["id"])
			}
			if got[0]["name"] != nil {
				t.Errorf("log name = %v, want nil", got[0]["name"])
			}
			unit, ok := got[1]["unit"].(map[string]any)
			if !ok || unit["string"] != "bpm" {
				t.Errorf("metric unit = %v, want bpm", got[1]["unit"])
			}
			if got[1]["value"] != 61.5 {
				t.Errorf("metric value = %v, want 61.5", got[1]["value"])
			}
		})
	}
}

func TestAvroEncoder_EncodeToBytes(t *testing.T) {
	enc, err := NewAvroEncoder("uncompressed")
	if err != nil {
		t.Fatalf("NewAvroEncoder() error = %v", err)
	}

	data, err := enc.EncodeToBytes(testRows(time.Now()))
	if err != nil {
		t.Fatalf("EncodeToBytes() error = %v", err)
	}
	if got := readOCF(t, data, false); len(got) != 2 {
		t.Errorf("read %d rows, want 2", len(got))
	}

	if _, err := enc.EncodeToBytes(nil); err == nil {
		t.Error("expected error for empty batch")
	}
}
