// Package validator validates and normalizes ingested telemetry records.
package validator

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/unsighted-org/demo-1biome-sub001/internal/errors"
	"github.com/unsighted-org/demo-1biome-sub001/pkg/event"
)

// TelemetryValidator checks log entries and metric points before they are
// buffered. It fills in a missing id, timestamp and log level.
type TelemetryValidator struct {
	clock clockwork.Clock
}

// NewTelemetryValidator creates a validator. A nil clock uses the real clock.
func NewTelemetryValidator(clock clockwork.Clock) *TelemetryValidator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TelemetryValidator{clock: clock}
}

// ValidateLog validates and normalizes a log entry in place.
func (v *TelemetryValidator) ValidateLog(e *event.LogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = v.clock.Now().UTC()
	}

	e.Level = event.Level(strings.ToLower(string(e.Level)))
	if e.Level == "" {
		e.Level = event.LevelInfo
	}
	if !slices.Contains(event.Levels(), e.Level) {
		return &errors.ValidationError{
			RecordID: e.ID,
			Field:    "level",
			Reason:   fmt.Sprintf("unsupported level: %s (supported: debug, info, warn, error)", e.Level),
		}
	}

	if strings.TrimSpace(e.Message) == "" {
		return &errors.ValidationError{
			RecordID: e.ID,
			Field:    "message",
			Reason:   "required field is missing",
		}
	}

	return nil
}

// ValidateMetric validates and normalizes a metric point in place.
func (v *TelemetryValidator) ValidateMetric(m *event.MetricPoint) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = v.clock.Now().UTC()
	}

	if strings.TrimSpace(m.Name) == "" {
		return &errors.ValidationError{
			RecordID: m.ID,
			Field:    "name",
			Reason:   "required field is missing",
		}
	}

	if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		return &errors.ValidationError{
			RecordID: m.ID,
			Field:    "value",
			Reason:   "must be a finite number",
		}
	}

	switch m.DeviceType {
	case "", event.DeviceAppleHealth, event.DeviceOuraRing, event.DeviceManual, event.DeviceEnvironment:
	default:
		return &errors.ValidationError{
			RecordID: m.ID,
			Field:    "deviceType",
			Reason:   fmt.Sprintf("unsupported device type: %s", m.DeviceType),
		}
	}

	return validateLocation(m)
}

func validateLocation(m *event.MetricPoint) error {
	if (m.Latitude == nil) != (m.Longitude == nil) {
		return &errors.ValidationError{
			RecordID: m.ID,
			Field:    "latitude",
			Reason:   "latitude and longitude must be set together",
		}
	}
	if m.Latitude == nil {
		return nil
	}

	if lat := *m.Latitude; math.IsNaN(lat) || lat < -90 || lat > 90 {
		return &errors.ValidationError{
			RecordID: m.ID,
			Field:    "latitude",
			Reason:   fmt.Sprintf("out of range: %v", lat),
		}
	}
	if lon := *m.Longitude; math.IsNaN(lon) || lon < -180 || lon > 180 {
		return &errors.ValidationError{
			RecordID: m.ID,
			Field:    "longitude",
			Reason:   fmt.Sprintf("out of range: %v", lon),
		}
	}
	return nil
}
