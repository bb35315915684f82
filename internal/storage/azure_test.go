package storage

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/unsighted-org/demo-1biome-sub001/pkg/event"
)

func TestAzureConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  AzureConfig
		wantErr bool
	}{
		{"valid", AzureConfig{AccountName: "acct", AccountKey: "a2V5", ContainerName: "telemetry"}, false},
		{"missing account", AzureConfig{AccountKey: "a2V5", ContainerName: "telemetry"}, true},
		{"missing key", AzureConfig{AccountName: "acct", ContainerName: "telemetry"}, true},
		{"missing container", AzureConfig{AccountName: "acct", AccountKey: "a2V5"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAzureConfig_ConnectionString(t *testing.T) {
	public := AzureConfig{AccountName: "acct", AccountKey: "a2V5"}.ConnectionString()
	if !strings.Contains(public, "EndpointSuffix=core.windows.net") {
		t.Errorf("public connection string = %q", public)
	}

	emulator := AzureConfig{
		AccountName: "devstoreaccount1",
		AccountKey:  "a2V5",
		Endpoint:    "http://127.0.0.1:10000/devstoreaccount1",
	}.ConnectionString()
	if !strings.Contains(emulator, "BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1") {
		t.Errorf("emulator connection string = %q", emulator)
	}
	if strings.Contains(emulator, "EndpointSuffix") {
		t.Errorf("emulator connection string should not set EndpointSuffix: %q", emulator)
	}
}

func TestNewAzureWriter(t *testing.T) {
	cfg := AzureConfig{
		AccountName:   "devstoreaccount1",
		AccountKey:    "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==",
		ContainerName: "telemetry",
		Endpoint:      "http://127.0.0.1:10000/devstoreaccount1",
	}

	w, err := NewAzureWriter(cfg, event.FormatAvro, "gzip", slog.New(slog.DiscardHandler), nil)
	if err != nil {
		t.Fatalf("NewAzureWriter() error = %v", err)
	}
	if w.containerName != "telemetry" {
		t.Errorf("containerName = %q", w.containerName)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	if _, err := NewAzureWriter(AzureConfig{}, event.FormatAvro, "gzip", slog.New(slog.DiscardHandler), nil); err == nil {
		t.Error("expected error for empty config")
	}
}
