package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/unsighted-org/demo-1biome-sub001/pkg/event"
)

const (
	logsPath    = "/v1/logs"
	metricsPath = "/v1/metrics"
)

// Client posts telemetry batches to the ingest API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the ingest API at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// PostLogs sends a batch of log entries and returns the accepted count.
func (c *Client) PostLogs(ctx context.Context, entries []event.LogEntry) (int, error) {
	return c.post(ctx, logsPath, entries)
}

// PostMetrics sends a batch of metric points and returns the accepted count.
func (c *Client) PostMetrics(ctx context.Context, points []event.MetricPoint) (int, error) {
	return c.post(ctx, metricsPath, points)
}

func (c *Client) post(ctx context.Context, path string, batch any) (int, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return 0, fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", event.ContentTypeJSON)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("post %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Accepted int `json:"accepted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return out.Accepted, nil
}
