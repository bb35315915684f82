package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// HealthChecker reports component health.
type HealthChecker interface {
	Liveness() bool
	Readiness(ctx context.Context) bool
	GetStatus() map[string]string
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// PendingFunc returns the number of buffered records per emitter key.
type PendingFunc func() map[string]int

// EmitterHealth reports readiness of the ingest path. It is ready between
// MarkReady and MarkDraining, and its status lists the pending count of
// every emitter key.
type EmitterHealth struct {
	pending PendingFunc
	ready   atomic.Bool
}

// NewEmitterHealth creates a checker that starts not ready.
func NewEmitterHealth(pending PendingFunc) *EmitterHealth {
	return &EmitterHealth{pending: pending}
}

// MarkReady marks the service as accepting traffic.
func (h *EmitterHealth) MarkReady() { h.ready.Store(true) }

// MarkDraining marks the service as shutting down.
func (h *EmitterHealth) MarkDraining() { h.ready.Store(false) }

// Liveness reports whether the process is alive.
func (h *EmitterHealth) Liveness() bool { return true }

// Readiness reports whether the service accepts telemetry.
func (h *EmitterHealth) Readiness(context.Context) bool { return h.ready.Load() }

// GetStatus returns the readiness state and pending count per key.
func (h *EmitterHealth) GetStatus() map[string]string {
	status := map[string]string{"emitter": "draining"}
	if h.ready.Load() {
		status["emitter"] = "ready"
	}
	if h.pending != nil {
		for key, n := range h.pending() {
			status["pending."+key] = strconv.Itoa(n)
		}
	}
	return status
}

// LivenessHandler returns a handler for Kubernetes liveness probes.
// Liveness probes should only fail if the process needs to be restarted.
func LivenessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "alive"
		statusCode := http.StatusOK

		if !checker.Liveness() {
			status = "not alive"
			statusCode = http.StatusServiceUnavailable
		}

		writeHealth(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}, logger)
	}
}

// ReadinessHandler returns a handler for Kubernetes readiness probes.
func ReadinessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ready"
		statusCode := http.StatusOK

		if !checker.Readiness(r.Context()) {
			status = "not ready"
			statusCode = http.StatusServiceUnavailable
		}

		writeHealth(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checker.GetStatus(),
		}, logger)
	}
}

func writeHealth(w http.ResponseWriter, statusCode int, response HealthResponse, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("failed to encode health response", "error", err)
	}
}
