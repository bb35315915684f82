package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	apperrors "github.com/unsighted-org/demo-1biome-sub001/internal/errors"
	"github.com/unsighted-org/demo-1biome-sub001/pkg/event"
)

func TestS3Config_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  S3Config
		wantErr bool
	}{
		{"valid", S3Config{Bucket: "b", Region: "us-east-1"}, false},
		{"with endpoint", S3Config{Bucket: "b", Region: "us-east-1", Endpoint: "http://localhost:9000"}, false},
		{"empty bucket", S3Config{Region: "us-east-1"}, true},
		{"empty region", S3Config{Bucket: "b"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// s3Recorder is a minimal S3-compatible endpoint accepting PutObject.
type s3Recorder struct {
	mu      sync.Mutex
	status  int
	paths   []string
	headers []http.Header
}

func (s *s3Recorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)

	s.mu.Lock()
	s.paths = append(s.paths, r.Method+" "+r.URL.Path)
	s.headers = append(s.headers, r.Header.Clone())
	status := s.status
	s.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
	w.WriteHeader(http.StatusOK)
}

func newTestS3Writer(t *testing.T, endpoint string, cfg S3Config) *S3Writer {
	t.Helper()

	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "credentials"))

	cfg.Bucket = "telemetry-bucket"
	cfg.Region = "us-east-1"
	cfg.Endpoint = endpoint
	cfg.UsePathStyle = true

	w, err := NewS3Writer(context.Background(), cfg, event.FormatParquet, "snappy", slog.New(slog.DiscardHandler), nil)
	if err != nil {
		t.Fatalf("NewS3Writer() error = %v", err)
	}
	return w
}

func TestS3Writer_Write(t *testing.T) {
	rec := &s3Recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	w := newTestS3Writer(t, srv.URL, S3Config{SSEEnabled: true})
	defer w.Close()

	path := NewRouter("s3", "telemetry-bucket", "raw").Route(event.StreamLogs, testRows()[0].Timestamp)
	size, err := w.Write(context.Background(), testRows(), path)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if size == 0 {
		t.Error("expected non-zero size")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if len(rec.paths) != 1 {
		t.Fatalf("requests = %v, want one PutObject", rec.paths)
	}
	wantPrefix := "PUT /telemetry-bucket/raw/logs/dt=2025-03-01/hr=07/log_"
	if got := rec.paths[0]; !strings.HasPrefix(got, wantPrefix) || !strings.HasSuffix(got, ".parquet") {
		t.Errorf("request = %q, want prefix %q", got, wantPrefix)
	}
	if got := rec.headers[0].Get("X-Amz-Server-Side-Encryption"); got != "AES256" {
		t.Errorf("SSE header = %q, want AES256", got)
	}
}

func TestS3Writer_UploadFailure(t *testing.T) {
	rec := &s3Recorder{status: http.StatusForbidden}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	w := newTestS3Writer(t, srv.URL, S3Config{})
	defer w.Close()

	_, err := w.Write(context.Background(), testRows(), "s3://telemetry-bucket/logs/")

	var storageErr *apperrors.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("Write() error = %v, want *StorageError", err)
	}
	if storageErr.Operation != "upload" {
		t.Errorf("Operation = %q, want upload", storageErr.Operation)
	}
	if !storageErr.IsRetryable() {
		t.Error("upload failures should be retryable")
	}
}

func TestS3Writer_Close(t *testing.T) {
	srv := httptest.NewServer(&s3Recorder{})
	defer srv.Close()

	w := newTestS3Writer(t, srv.URL, S3Config{})
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := w.Write(context.Background(), testRows(), "s3://telemetry-bucket/logs/"); !errors.Is(err, apperrors.ErrWriterClosed) {
		t.Errorf("Write() after Close error = %v, want ErrWriterClosed", err)
	}
}
