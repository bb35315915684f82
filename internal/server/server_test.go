package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apperrors "github.com/unsighted-org/demo-1biome-sub001/internal/errors"
	"github.com/unsighted-org/demo-1biome-sub001/pkg/event"
)

type mockIngester struct {
	mu      sync.Mutex
	logs    []event.LogEntry
	metrics []event.MetricPoint
	err     error
}

func (m *mockIngester) AddLogs(entries []event.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.logs = append(m.logs, entries...)
	return nil
}

func (m *mockIngester) AddMetrics(points []event.MetricPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.metrics = append(m.metrics, points...)
	return nil
}

func (m *mockIngester) Size(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch key {
	case event.StreamLogs:
		return len(m.logs)
	case event.StreamMetrics:
		return len(m.metrics)
	}
	return 0
}

type mockHTTPMetrics struct {
	mu       sync.Mutex
	requests map[string]int
}

func (m *mockHTTPMetrics) ObserveHTTPRequest(route string, code int, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.requests == nil {
		m.requests = make(map[string]int)
	}
	m.requests[fmt.Sprintf("%s %d", route, code)]++
}

func newTestRouter(ingester Ingester, metrics HTTPMetrics) http.Handler {
	checker := &mockHealthChecker{liveness: true, readiness: true}
	return NewRouter(checker, ingester, metrics, slog.New(slog.DiscardHandler))
}

func TestIngestAPI_PostLogs(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantCode     int
		wantAccepted int
	}{
		{
			name:         "single object",
			body:         `{"level":"info","message":"request served","source":"api"}`,
			wantCode:     http.StatusAccepted,
			wantAccepted: 1,
		},
		{
			name:         "array",
			body:         `[{"message":"a"},{"message":"b"}]`,
			wantCode:     http.StatusAccepted,
			wantAccepted: 2,
		},
		{name: "malformed json", body: `{"message":`, wantCode: http.StatusBadRequest},
		{name: "empty body", body: ``, wantCode: http.StatusBadRequest},
		{name: "empty array", body: `[]`, wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ingester := &mockIngester{}
			w := httptest.NewRecorder()
			newTestRouter(ingester, nil).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/logs", strings.NewReader(tt.body)))

			if w.Code != tt.wantCode {
				t.Fatalf("status code = %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantCode != http.StatusAccepted {
				var resp errorResponse
				if err := json.NewDecoder(w.Body).Decode(&resp); err != nil || resp.Error == "" {
					t.Errorf("error response = %q, %v", resp.Error, err)
				}
				return
			}

			var resp acceptedResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Accepted != tt.wantAccepted || len(ingester.logs) != tt.wantAccepted {
				t.Errorf("accepted = %d, ingested = %d, want %d", resp.Accepted, len(ingester.logs), tt.wantAccepted)
			}
		})
	}
}

func TestIngestAPI_PostMetrics(t *testing.T) {
	ingester := &mockIngester{}
	body := `[{"name":"heart_rate","value":62,"unit":"bpm","deviceType":"apple_health","latitude":52.5,"longitude":13.4}]`

	w := httptest.NewRecorder()
	newTestRouter(ingester, nil).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/metrics", strings.NewReader(body)))

	if w.Code != http.StatusAccepted {
		t.Fatalf("status code = %d, want 202", w.Code)
	}
	if len(ingester.metrics) != 1 {
		t.Fatalf("ingested %d metrics, want 1", len(ingester.metrics))
	}
	got := ingester.metrics[0]
	if got.Name != "heart_rate" || got.DeviceType != event.DeviceAppleHealth || got.Latitude == nil || *got.Latitude != 52.5 {
		t.Errorf("metric = %+v", got)
	}
}

func TestIngestAPI_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{
			name:     "validation error",
			err:      &apperrors.ValidationError{RecordID: "x", Field: "name", Reason: "required field is missing"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "internal error",
			err:      errors.New("emitter gone"),
			wantCode: http.StatusInternalServerError,
		},
		{
			name:     "draining",
			err:      fmt.Errorf("metrics: %w", apperrors.ErrDraining),
			wantCode: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			newTestRouter(&mockIngester{err: tt.err}, nil).ServeHTTP(w,
				httptest.NewRequest(http.MethodPost, "/v1/metrics", strings.NewReader(`{"value":1}`)))

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
			var resp errorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil || resp.Error == "" {
				t.Errorf("error response = %q, %v", resp.Error, err)
			}
		})
	}
}

func TestIngestAPI_GetBuffer(t *testing.T) {
	ingester := &mockIngester{logs: []event.LogEntry{{Message: "a"}, {Message: "b"}}}

	w := httptest.NewRecorder()
	newTestRouter(ingester, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/buffers/logs", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", w.Code)
	}
	var resp bufferResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Key != "logs" || resp.Pending != 2 {
		t.Errorf("response = %+v, want logs/2", resp)
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter(&mockIngester{}, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/logs", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status code = %d, want 405", w.Code)
	}
}

func TestRouter_HealthOnly(t *testing.T) {
	router := newTestRouter(nil, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if w.Code != http.StatusOK {
		t.Errorf("ready status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/logs", strings.NewReader(`{}`)))
	if w.Code != http.StatusNotFound {
		t.Errorf("ingest without ingester status = %d, want 404", w.Code)
	}
}

func TestRouter_Instrumented(t *testing.T) {
	metrics := &mockHTTPMetrics{}
	router := newTestRouter(&mockIngester{}, metrics)

	for _, path := range []string{"/v1/buffers/logs", "/v1/buffers/metrics"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/logs", strings.NewReader("nope")))

	if got := metrics.requests["/v1/buffers/{key} 200"]; got != 2 {
		t.Errorf("buffer requests = %d, want 2 (metrics: %v)", got, metrics.requests)
	}
	if got := metrics.requests["/v1/logs 400"]; got != 1 {
		t.Errorf("bad log requests = %d, want 1 (metrics: %v)", got, metrics.requests)
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_metric_total",
		Help: "Test metric",
	})
	registry.MustRegister(counter)
	counter.Inc()

	s := NewServer(Config{HealthPort: 8080, MetricsPort: 9090}, &mockHealthChecker{}, nil, registry, nil, slog.New(slog.DiscardHandler))

	w := httptest.NewRecorder()
	s.metricsServer.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "test_metric_total 1") {
		t.Errorf("metrics body missing counter: %s", w.Body.String())
	}
}

func TestServer_Defaults(t *testing.T) {
	s := NewServer(Config{HealthPort: 8080, MetricsPort: 9090}, &mockHealthChecker{}, nil, prometheus.NewRegistry(), nil, slog.New(slog.DiscardHandler))

	if s.apiServer.Addr != ":8080" || s.metricsServer.Addr != ":9090" {
		t.Errorf("addrs = %s, %s", s.apiServer.Addr, s.metricsServer.Addr)
	}
	if s.apiServer.ReadTimeout != 5*time.Second || s.apiServer.WriteTimeout != 10*time.Second {
		t.Errorf("timeouts = %v, %v", s.apiServer.ReadTimeout, s.apiServer.WriteTimeout)
	}
}

func TestServer_StartShutdown(t *testing.T) {
	s := NewServer(Config{HealthPort: 0, MetricsPort: 0}, &mockHealthChecker{liveness: true}, nil, prometheus.NewRegistry(), nil, slog.New(slog.DiscardHandler))

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
