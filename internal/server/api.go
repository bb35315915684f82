package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	apperrors "github.com/unsighted-org/demo-1biome-sub001/internal/errors"
	"github.com/unsighted-org/demo-1biome-sub001/pkg/event"
)

// maxBodyBytes bounds one ingest request body.
const maxBodyBytes = 4 << 20

// Ingester accepts validated telemetry into the emitter.
type Ingester interface {
	AddLogs(entries []event.LogEntry) error
	AddMetrics(points []event.MetricPoint) error
	Size(key string) int
}

type ingestAPI struct {
	ingester Ingester
	logger   *slog.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

type acceptedResponse struct {
	Accepted int `json:"accepted"`
}

type bufferResponse struct {
	Key     string `json:"key"`
	Pending int    `json:"pending"`
}

func (a *ingestAPI) register(r *mux.Router) {
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/logs", a.postLogs).Methods(http.MethodPost)
	v1.HandleFunc("/metrics", a.postMetrics).Methods(http.MethodPost)
	v1.HandleFunc("/buffers/{key}", a.getBuffer).Methods(http.MethodGet)
}

func (a *ingestAPI) postLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := decodeOneOrMany[event.LogEntry](w, r)
	if err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	a.accept(w, len(entries), a.ingester.AddLogs(entries))
}

func (a *ingestAPI) postMetrics(w http.ResponseWriter, r *http.Request) {
	points, err := decodeOneOrMany[event.MetricPoint](w, r)
	if err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	a.accept(w, len(points), a.ingester.AddMetrics(points))
}

func (a *ingestAPI) getBuffer(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	a.writeJSON(w, http.StatusOK, bufferResponse{Key: key, Pending: a.ingester.Size(key)})
}

func (a *ingestAPI) accept(w http.ResponseWriter, n int, err error) {
	switch {
	case err == nil:
		a.writeJSON(w, http.StatusAccepted, acceptedResponse{Accepted: n})
	case errors.Is(err, apperrors.ErrInvalidRecord):
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, apperrors.ErrDraining):
		w.Header().Set("Retry-After", "5")
		a.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		a.logger.Error("ingest failed", "error", err)
		a.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (a *ingestAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.Error("failed to encode response", "error", err)
	}
}

// decodeOneOrMany decodes a JSON object or an array of objects.
func decodeOneOrMany[T any](w http.ResponseWriter, r *http.Request) ([]T, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty request body")
	}

	if body[0] == '[' {
		var items []T
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("decode body: %w", err)
		}
		if len(items) == 0 {
			return nil, errors.New("empty batch")
		}
		return items, nil
	}

	var item T
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return []T{item}, nil
}
