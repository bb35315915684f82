package loadgen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/unsighted-org/demo-1biome-sub001/pkg/event"
)

func TestClient_PostLogs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/logs" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != event.ContentTypeJSON {
			t.Errorf("Content-Type = %q", ct)
		}

		var entries []event.LogEntry
		if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]int{"accepted": len(entries)})
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", time.Second)
	got, err := client.PostLogs(context.Background(), NewGenerator(nil, 1).Logs(4))
	if err != nil {
		t.Fatalf("PostLogs() error = %v", err)
	}
	if got != 4 {
		t.Errorf("accepted = %d, want 4", got)
	}
}

func TestClient_PostMetricsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/metrics" {
			t.Errorf("path = %s, want /v1/metrics", r.URL.Path)
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid record"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 0)
	_, err := client.PostMetrics(context.Background(), NewGenerator(nil, 1).Metrics(2))
	if err == nil {
		t.Fatal("PostMetrics() error = nil, want status error")
	}
	if !strings.Contains(err.Error(), "status 400") || !strings.Contains(err.Error(), "invalid record") {
		t.Errorf("error = %v", err)
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewClient(srv.URL, time.Second).PostLogs(ctx, nil); err == nil {
		t.Error("PostLogs() with cancelled context error = nil")
	}
}
