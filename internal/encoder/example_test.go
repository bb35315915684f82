package encoder_test

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/unsighted-org/demo-1biome-sub001/internal/encoder"
	"github.com/unsighted-org/demo-1biome-sub001/pkg/event"
)

func Example_parquetEncoder() {
	enc := encoder.NewParquetEncoder("snappy")

	now := time.Date(2025, 3, 1, 7, 30, 0, 0, time.UTC)
	rows := []event.Row{
		event.MetricPoint{ID: "m-1", Name: "steps", Value: 8421, Unit: "count", Timestamp: now}.ToRow(),
		event.MetricPoint{ID: "m-2", Name: "heart_rate", Value: 58, Unit: "bpm", Timestamp: now.Add(time.Hour)}.ToRow(),
	}

	dir, err := os.MkdirTemp("", "encoder-example")
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	defer os.RemoveAll(dir)

	stats, err := enc.Encode(filepath.Join(dir, "metrics"+enc.FileExtension()), rows)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	fmt.Println("records:", stats.RecordCount)
	fmt.Println("span:", stats.LastEventTime.Sub(stats.FirstEventTime))
	// Output:
	// records: 2
	// span: 1h0m0s
}

func Example_factory() {
	factory := encoder.NewFactory(event.FormatAvro, encoder.DefaultCompression(event.FormatAvro))

	enc, err := factory.CreateEncoder()
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	fmt.Println(enc.Format(), enc.FileExtension())
	// Output:
	// avro .avro.gz
}
