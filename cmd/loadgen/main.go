package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unsighted-org/demo-1biome-sub001/internal/loadgen"
	"github.com/unsighted-org/demo-1biome-sub001/internal/observability"
)

var (
	// Set during build
	version = "dev"

	target      = flag.String("target", getEnv("LOADGEN_TARGET", "http://localhost:8080"), "Base URL of the ingest API")
	rate        = flag.Float64("rate", getEnvFloat("LOADGEN_RATE", 1), "Batches per second for each stream")
	batchSize   = flag.Int("batch-size", getEnvInt("LOADGEN_BATCH_SIZE", 20), "Records per batch")
	users       = flag.Int("users", getEnvInt("LOADGEN_USERS", 25), "Number of distinct synthetic users")
	streams     = flag.String("streams", getEnv("LOADGEN_STREAMS", "logs,metrics"), "Streams to generate: logs, metrics or logs,metrics")
	duration    = flag.Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
	logLevel    = flag.String("log-level", getEnv("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	metricsPort = flag.Int("metrics-port", getEnvInt("METRICS_PORT", 9091), "Prometheus metrics port (0 disables)")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatalf("loadgen error: %v", err)
	}
}

func run() error {
	logger := observability.NewLogger(observability.LoggingConfig{Level: *logLevel, Format: "text"}, "service", "loadgen")
	logger.Info("Starting load generator", "version", version, "target", *target)

	logs, metricsOn, err := parseStreams(*streams)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	var metricsServer *http.Server
	if *metricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", *metricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	runner := loadgen.NewRunner(
		loadgen.RunnerConfig{
			Interval:  loadgen.Interval(*rate),
			BatchSize: *batchSize,
			Logs:      logs,
			Metrics:   metricsOn,
		},
		loadgen.NewGenerator(nil, *users),
		loadgen.NewClient(*target, 10*time.Second),
		nil,
		logger,
		metrics,
	)
	runner.Run(ctx)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown failed", "error", err)
		}
	}

	stats := runner.Stats()
	logger.Info("Shutdown complete", "sent", stats.Sent, "failed", stats.Failed)
	return nil
}

func parseStreams(value string) (logs, metrics bool, err error) {
	for _, s := range strings.Split(value, ",") {
		switch strings.TrimSpace(s) {
		case "":
		case "logs":
			logs = true
		case "metrics":
			metrics = true
		default:
			return false, false, fmt.Errorf("unknown stream %q (supported: logs, metrics)", s)
		}
	}
	if !logs && !metrics {
		return false, false, errors.New("at least one stream is required")
	}
	return logs, metrics, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return defaultValue
}
