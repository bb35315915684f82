// Package loadgen produces synthetic telemetry and posts it to the ingest API.
package loadgen

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jaswdr/faker"
	"github.com/jonboulle/clockwork"

	"github.com/unsighted-org/demo-1biome-sub001/pkg/event"
)

// metricKind describes one generated metric and its plausible range.
type metricKind struct {
	name     string
	unit     string
	min, max int
	decimals int
	device   event.DeviceType
	located  bool
}

var metricKinds = []metricKind{
	{name: "heart_rate", unit: "bpm", min: 48, max: 180, device: event.DeviceAppleHealth},
	{name: "steps", unit: "count", min: 0, max: 2500, device: event.DeviceAppleHealth},
	{name: "sleep_score", unit: "score", min: 40, max: 100, device: event.DeviceOuraRing},
	{name: "hrv", unit: "ms", min: 15, max: 120, decimals: 1, device: event.DeviceOuraRing},
	{name: "aqi", unit: "index", min: 0, max: 300, device: event.DeviceEnvironment, located: true},
	{name: "pm25", unit: "ug/m3", min: 0, max: 150, decimals: 1, device: event.DeviceEnvironment, located: true},
	{name: "temperature", unit: "celsius", min: -10, max: 40, decimals: 1, device: event.DeviceEnvironment, located: true},
}

var logSources = []string{"mobile-app", "sync-worker", "device-bridge", "web-dashboard"}

// Generator creates fake log entries and metric points.
type Generator struct {
	faker faker.Faker
	clock clockwork.Clock
	users []string
}

// NewGenerator creates a generator that attributes records to a fixed pool
// of users. A nil clock uses the real clock.
func NewGenerator(clock clockwork.Clock, users int) *Generator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if users <= 0 {
		users = 1
	}

	g := &Generator{faker: faker.New(), clock: clock}
	for range users {
		g.users = append(g.users, g.generateUserID())
	}
	return g
}

// Log generates a single log entry.
func (g *Generator) Log() event.LogEntry {
	level := g.randomLevel()
	entry := event.LogEntry{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   g.faker.Lorem().Sentence(6),
		Source:    g.faker.RandomStringElement(logSources),
		UserID:    g.randomUser(),
		SessionID: "S" + g.faker.UUID().V4()[0:8],
		Timestamp: g.clock.Now().UTC(),
	}
	if level == event.LevelError || level == event.LevelWarn {
		entry.Metadata = map[string]string{
			"app_version": g.faker.App().Version(),
			"email":       g.faker.Internet().Email(),
		}
	}
	return entry
}

// Metric generates a single metric point.
func (g *Generator) Metric() event.MetricPoint {
	kind := metricKinds[g.faker.IntBetween(0, len(metricKinds)-1)]

	point := event.MetricPoint{
		ID:         uuid.NewString(),
		Name:       kind.name,
		Value:      g.value(kind),
		Unit:       kind.unit,
		UserID:     g.randomUser(),
		DeviceType: kind.device,
		Timestamp:  g.clock.Now().UTC(),
	}
	if kind.located {
		lat, lon := g.coordinates()
		point.Latitude = &lat
		point.Longitude = &lon
		point.Tags = map[string]string{"city": g.faker.Address().City()}
	}
	return point
}

// Logs generates n log entries.
func (g *Generator) Logs(n int) []event.LogEntry {
	out := make([]event.LogEntry, n)
	for i := range out {
		out[i] = g.Log()
	}
	return out
}

// Metrics generates n metric points.
func (g *Generator) Metrics(n int) []event.MetricPoint {
	out := make([]event.MetricPoint, n)
	for i := range out {
		out[i] = g.Metric()
	}
	return out
}

func (g *Generator) value(kind metricKind) float64 {
	if kind.decimals == 0 {
		return float64(g.faker.IntBetween(kind.min, kind.max))
	}
	// faker can step past a negative min.
	return clamp(g.faker.Float64(kind.decimals, kind.min, kind.max), float64(kind.min), float64(kind.max))
}

func (g *Generator) coordinates() (lat, lon float64) {
	lat = clamp(g.faker.Address().Latitude(), -90, 90)
	lon = clamp(g.faker.Address().Longitude(), -180, 180)
	return lat, lon
}

func (g *Generator) generateUserID() string {
	return "U" + g.faker.UUID().V4()[0:8]
}

func (g *Generator) randomUser() string {
	return g.users[g.faker.IntBetween(0, len(g.users)-1)]
}

// randomLevel is weighted toward info.
func (g *Generator) randomLevel() event.Level {
	levels := []event.Level{event.LevelDebug, event.LevelInfo, event.LevelWarn, event.LevelError}
	weights := []int{15, 65, 15, 5}

	roll := g.faker.IntBetween(1, 100)
	cumulative := 0
	for i, weight := range weights {
		cumulative += weight
		if roll <= cumulative {
			return levels[i]
		}
	}
	return event.LevelInfo
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Interval converts a per-second rate into a tick interval.
func Interval(rate float64) time.Duration {
	if rate <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / rate)
}
