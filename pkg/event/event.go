// Package event defines the telemetry record types carried through the emitter.
//
// Log entries and metric points are the two record kinds produced by the
// application. Both project onto a flat Row for columnar storage.
package event

import (
	"encoding/json"
	"time"
)

// Stream names used as emitter keys.
const (
	StreamLogs    = "logs"
	StreamMetrics = "metrics"
)

// CloudEvents attributes for telemetry published to Kafka.
const (
	TypeLog         = "org.biome.telemetry.log.v1"
	TypeMetric      = "org.biome.telemetry.metric.v1"
	EventSource     = "biome/telemetry"
	ContentTypeJSON = "application/json"
)

// Kind identifies a record kind.
type Kind string

const (
	KindLog    Kind = "log"
	KindMetric Kind = "metric"
)

// EventType returns the CloudEvents type for the kind.
func (k Kind) EventType() string {
	if k == KindMetric {
		return TypeMetric
	}
	return TypeLog
}

// Level is a log severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Levels lists the accepted log levels in increasing severity.
func Levels() []Level {
	return []Level{LevelDebug, LevelInfo, LevelWarn, LevelError}
}

// DeviceType names the integration a metric point came from.
type DeviceType string

const (
	DeviceAppleHealth DeviceType = "apple_health"
	DeviceOuraRing    DeviceType = "oura_ring"
	DeviceManual      DeviceType = "manual"
	DeviceEnvironment DeviceType = "environment"
)

// LogEntry is one application log line.
type LogEntry struct {
	ID        string            `json:"id"`
	Level     Level             `json:"level"`
	Message   string            `json:"message"`
	Source    string            `json:"source"`
	UserID    string            `json:"userId,omitempty"`
	SessionID string            `json:"sessionId,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// MetricPoint is one health or environmental measurement.
type MetricPoint struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Value      float64           `json:"value"`
	Unit       string            `json:"unit,omitempty"`
	UserID     string            `json:"userId,omitempty"`
	DeviceType DeviceType        `json:"deviceType,omitempty"`
	Latitude   *float64          `json:"latitude,omitempty"`
	Longitude  *float64          `json:"longitude,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Row is the flat storage projection shared by every record kind.
type Row struct {
	Kind       Kind
	ID         string
	Timestamp  time.Time
	Source     string
	Name       string
	Level      string
	Message    string
	Value      float64
	Unit       string
	UserID     string
	Attributes string
}

// Rower is implemented by records that can be persisted as a Row.
type Rower interface {
	ToRow() Row
}

var (
	_ Rower = LogEntry{}
	_ Rower = MetricPoint{}
)

// ToRow projects the log entry onto a Row.
func (l LogEntry) ToRow() Row {
	attrs := make(map[string]string, len(l.Metadata)+1)
	for k, v := range l.Metadata {
		attrs[k] = v
	}
	if l.SessionID != "" {
		attrs["session_id"] = l.SessionID
	}

	return Row{
		Kind:       KindLog,
		ID:         l.ID,
		Timestamp:  l.Timestamp,
		Source:     l.Source,
		Level:      string(l.Level),
		Message:    l.Message,
		UserID:     l.UserID,
		Attributes: attributesJSON(attrs),
	}
}

// ToRow projects the metric point onto a Row.
func (m MetricPoint) ToRow() Row {
	attrs := make(map[string]any, len(m.Tags)+3)
	if len(m.Tags) > 0 {
		attrs["tags"] = m.Tags
	}
	if m.DeviceType != "" {
		attrs["device_type"] = m.DeviceType
	}
	if m.Latitude != nil && m.Longitude != nil {
		attrs["latitude"] = *m.Latitude
		attrs["longitude"] = *m.Longitude
	}

	return Row{
		Kind:       KindMetric,
		ID:         m.ID,
		Timestamp:  m.Timestamp,
		Source:     string(m.DeviceType),
		Name:       m.Name,
		Value:      m.Value,
		Unit:       m.Unit,
		UserID:     m.UserID,
		Attributes: attributesJSON(attrs),
	}
}

func attributesJSON[V any](attrs map[string]V) string {
	if len(attrs) == 0 {
		return "{}"
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// FileStats contains statistics about an encoded batch.
type FileStats struct {
	RecordCount    int
	SizeBytes      int64
	FirstEventTime time.Time
	LastEventTime  time.Time
}

// FileFormat represents the storage file format.
type FileFormat string

const (
	FormatParquet FileFormat = "parquet"
	FormatAvro    FileFormat = "avro"
)

// TimeRange returns the earliest and latest timestamps among rows.
// Both are zero when rows is empty.
func TimeRange(rows []Row) (first, last time.Time) {
	for i, r := range rows {
		if i == 0 || r.Timestamp.Before(first) {
			first = r.Timestamp
		}
		if i == 0 || r.Timestamp.After(last) {
			last = r.Timestamp
		}
	}
	return first, last
}
