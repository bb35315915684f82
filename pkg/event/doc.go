// Package event defines core telemetry record types.
//
// # Record Kinds
//
// LogEntry carries one application log line:
//
//	entry := event.LogEntry{
//	    ID:        "4f1c...",
//	    Level:     event.LevelWarn,
//	    Message:   "oura sync delayed",
//	    Source:    "integrations/oura",
//	    Timestamp: time.Now(),
//	}
//
// MetricPoint carries one health or environmental measurement:
//
//	point := event.MetricPoint{
//	    ID:         "9ab2...",
//	    Name:       "heart_rate",
//	    Value:      62,
//	    Unit:       "bpm",
//	    DeviceType: event.DeviceAppleHealth,
//	    Timestamp:  time.Now(),
//	}
//
// # Storage Rows
//
// Both kinds implement Rower. ToRow flattens a record into Row, the single
// schema used by the Parquet and Avro encoders. Kind-specific fields that do
// not have a column (metadata, tags, device, location) are folded into the
// Attributes JSON object.
//
// # Streams
//
// StreamLogs and StreamMetrics are the emitter keys the service registers.
package event
