package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

// mockHealthChecker implements HealthChecker for testing
type mockHealthChecker struct {
	liveness  bool
	readiness bool
	status    map[string]string
}

func (m *mockHealthChecker) Liveness() bool {
	return m.liveness
}

func (m *mockHealthChecker) Readiness(ctx context.Context) bool {
	return m.readiness
}

func (m *mockHealthChecker) GetStatus() map[string]string {
	return m.status
}

func TestLivenessHandler(t *testing.T) {
	tests := []struct {
		name       string
		liveness   bool
		wantCode   int
		wantStatus string
	}{
		{name: "alive", liveness: true, wantCode: http.StatusOK, wantStatus: "alive"},
		{name: "not alive", liveness: false, wantCode: http.StatusServiceUnavailable, wantStatus: "not alive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := LivenessHandler(&mockHealthChecker{liveness: tt.liveness}, slog.New(slog.DiscardHandler))
			w := httptest.NewRecorder()
			handler(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}

			var response HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if response.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", response.Status, tt.wantStatus)
			}
			if response.Timestamp == "" {
				t.Error("timestamp should be set")
			}
		})
	}
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name       string
		readiness  bool
		wantCode   int
		wantStatus string
	}{
		{name: "ready", readiness: true, wantCode: http.StatusOK, wantStatus: "ready"},
		{name: "not ready", readiness: false, wantCode: http.StatusServiceUnavailable, wantStatus: "not ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := &mockHealthChecker{readiness: tt.readiness, status: map[string]string{"pending.logs": "3"}}
			handler := ReadinessHandler(checker, slog.New(slog.DiscardHandler))
			w := httptest.NewRecorder()
			handler(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			var response HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if response.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", response.Status, tt.wantStatus)
			}
			if response.Checks["pending.logs"] != "3" {
				t.Errorf("checks = %v", response.Checks)
			}
		})
	}
}

func TestEmitterHealth(t *testing.T) {
	pending := map[string]int{"logs": 4, "metrics": 0}
	h := NewEmitterHealth(func() map[string]int { return pending })

	if !h.Liveness() {
		t.Error("Liveness() = false, want true")
	}
	if h.Readiness(context.Background()) {
		t.Error("Readiness() before MarkReady = true")
	}

	h.MarkReady()
	if !h.Readiness(context.Background()) {
		t.Error("Readiness() after MarkReady = false")
	}

	status := h.GetStatus()
	if status["emitter"] != "ready" || status["pending.logs"] != "4" || status["pending.metrics"] != "0" {
		t.Errorf("GetStatus() = %v", status)
	}

	h.MarkDraining()
	if h.Readiness(context.Background()) {
		t.Error("Readiness() after MarkDraining = true")
	}
	if got := h.GetStatus()["emitter"]; got != "draining" {
		t.Errorf("emitter status = %q, want draining", got)
	}
}
