package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unsighted-org/demo-1biome-sub001/internal/buffer"
	"github.com/unsighted-org/demo-1biome-sub001/internal/config"
	"github.com/unsighted-org/demo-1biome-sub001/internal/config/dto"
	"github.com/unsighted-org/demo-1biome-sub001/internal/encoder"
	"github.com/unsighted-org/demo-1biome-sub001/internal/ingest"
	"github.com/unsighted-org/demo-1biome-sub001/internal/kafka"
	"github.com/unsighted-org/demo-1biome-sub001/internal/observability"
	"github.com/unsighted-org/demo-1biome-sub001/internal/server"
	"github.com/unsighted-org/demo-1biome-sub001/internal/sink"
	"github.com/unsighted-org/demo-1biome-sub001/internal/storage"
	"github.com/unsighted-org/demo-1biome-sub001/internal/validator"
	pkgbuffer "github.com/unsighted-org/demo-1biome-sub001/pkg/buffer"
	"github.com/unsighted-org/demo-1biome-sub001/pkg/event"
	pkgstorage "github.com/unsighted-org/demo-1biome-sub001/pkg/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	cfg, err := config.NewLoader().Load(config.ResolvePath(*configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:     cfg.Observability.Logging.Level,
		Format:    cfg.Observability.Logging.Format,
		Output:    cfg.Observability.Logging.Output,
		AddSource: cfg.Observability.Logging.AddSource,
	}, "service", cfg.Application.Name, "environment", cfg.Application.Environment)
	logger.Info("starting telemetry emitter", "version", cfg.Application.Version)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	// Cleanups run in reverse registration order.
	var cleanups []func() error
	addCleanup := func(name string, fn func() error) {
		cleanups = append(cleanups, func() error {
			if err := fn(); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
		logger.Debug("registered cleanup", "component", name)
	}
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			if err := cleanups[i](); err != nil {
				logger.Error("cleanup failed", "error", err)
			}
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		writer pkgstorage.Writer
		router pkgstorage.Router
	)
	if cfg.Streams.UsesSink(dto.SinkStorage) {
		writer, router, err = newStorage(ctx, &cfg.Storage, logger, metrics)
		if err != nil {
			return err
		}
		addCleanup("storage-writer", writer.Close)
	}

	var publisher sink.EventPublisher
	if cfg.Streams.UsesSink(dto.SinkKafka) {
		p, err := kafka.NewPublisher(kafka.PublisherConfig{
			BootstrapServers: cfg.Kafka.BootstrapServers,
			ClientID:         cfg.Kafka.ClientID,
			Compression:      cfg.Kafka.Producer.Compression,
			RetryMax:         cfg.Kafka.Producer.RetryMax,
			Security:         config.KafkaSecurity(&cfg.Kafka),
		}, logger, metrics)
		if err != nil {
			return fmt.Errorf("failed to create kafka publisher: %w", err)
		}
		addCleanup("kafka-publisher", p.Close)
		publisher = p
	}

	emitter := buffer.New[event.Rower](emitterConfig(cfg.Emitter, clockwork.NewRealClock()), logger, metrics)
	if err := registerStreams(emitter, cfg.Streams, writer, router, publisher, logger); err != nil {
		emitter.Destroy()
		return err
	}

	svc := ingest.NewService(emitter, validator.NewTelemetryValidator(nil), logger, metrics)
	health := server.NewEmitterHealth(svc.Pending)

	var ingester server.Ingester
	if cfg.Ingest.Enabled {
		ingester = svc
	}
	httpServer := server.NewServer(server.Config{
		HealthPort:  cfg.Observability.Health.Port,
		MetricsPort: cfg.Observability.Metrics.Port,
	}, health, ingester, registry, metrics, logger)
	if err := httpServer.Start(); err != nil {
		emitter.Destroy()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	consumeErr := make(chan error, 1)
	var consumer *kafka.Consumer
	if cfg.Kafka.Consumer.Enabled {
		consumer, err = newConsumer(cfg, svc, logger, metrics, addCleanup)
		if err != nil {
			emitter.Destroy()
			return err
		}
		go func() {
			consumeErr <- consumer.Run(ctx, cfg.Kafka.Consumer.Topics)
		}()
	}

	health.MarkReady()
	logger.Info("application started successfully",
		"streams", emitter.Keys(),
		"ingest_api", cfg.Ingest.Enabled,
		"kafka_consumer", cfg.Kafka.Consumer.Enabled,
	)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received termination signal")
	case err := <-consumeErr:
		if err != nil {
			logger.Error("consume error", "error", err)
			runErr = err
		}
	}

	shutdown(cfg.Shutdown, health, svc, consumer, emitter, httpServer, logger)
	return runErr
}

// shutdown stops intake, drains the emitter and stops the HTTP servers.
func shutdown(
	cfg dto.ShutdownConfig,
	health *server.EmitterHealth,
	svc *ingest.Service,
	consumer *kafka.Consumer,
	emitter *buffer.Emitter[event.Rower],
	httpServer *server.Server,
	logger *slog.Logger,
) {
	logger.Info("initiating graceful shutdown")
	health.MarkDraining()
	svc.Drain()

	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Error("failed to close kafka consumer", "error", err)
		}
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.FlushTimeout)
	if err := emitter.FlushAll(flushCtx); err != nil {
		logger.Error("final flush incomplete", "error", err, "pending", pendingCounts(emitter))
	}
	cancel()
	emitter.Destroy()

	serverCtx, cancel := context.WithTimeout(context.Background(), cfg.GracePeriod)
	defer cancel()
	if err := httpServer.Shutdown(serverCtx); err != nil {
		logger.Error("failed to shut down HTTP server", "error", err)
	}

	logger.Info("application stopped successfully")
}

func pendingCounts(emitter *buffer.Emitter[event.Rower]) map[string]int {
	out := make(map[string]int)
	for _, key := range emitter.Keys() {
		out[key] = emitter.Size(key)
	}
	return out
}

func emitterConfig(cfg dto.EmitterConfig, clock clockwork.Clock) buffer.Config {
	return buffer.Config{
		MaxBufferSize:    cfg.MaxBufferSize,
		FlushInterval:    cfg.FlushInterval,
		MinFlushInterval: cfg.MinFlushInterval,
		MaxRetryAttempts: cfg.MaxRetryAttempts,
		RetryBackoff:     cfg.RetryBackoff,
		MaxRetryBackoff:  cfg.MaxRetryBackoff,
		SinkTimeout:      cfg.SinkTimeout,
		Clock:            clock,
	}
}

// registerStreams registers one key per enabled stream, fanning out to the
// stream's configured sinks.
func registerStreams(
	emitter pkgbuffer.Emitter[event.Rower],
	streams dto.StreamsConfig,
	writer pkgstorage.Writer,
	router pkgstorage.Router,
	publisher sink.EventPublisher,
	logger *slog.Logger,
) error {
	for _, name := range []string{event.StreamLogs, event.StreamMetrics} {
		stream := streams.ByName()[name]
		if !stream.Enabled {
			logger.Info("stream disabled", "stream", name)
			continue
		}

		var sinks []pkgbuffer.Sink[event.Rower]
		for _, s := range stream.Sinks {
			switch s {
			case dto.SinkStorage:
				if writer == nil || router == nil {
					return fmt.Errorf("stream %s: storage sink is not configured", name)
				}
				sinks = append(sinks, sink.Storage[event.Rower](writer, router, name))
			case dto.SinkKafka:
				if publisher == nil {
					return fmt.Errorf("stream %s: kafka sink is not configured", name)
				}
				sinks = append(sinks, sink.Kafka[event.Rower](publisher, stream.Topic))
			default:
				return fmt.Errorf("stream %s: unsupported sink %q", name, s)
			}
		}

		emitter.Register(name, sink.Fanout(sinks...))
		logger.Info("stream registered", "stream", name, "sinks", stream.Sinks, "topic", stream.Topic)
	}
	return nil
}

func newConsumer(
	cfg *dto.ApplicationConfig,
	handler kafka.EventHandler,
	logger *slog.Logger,
	metrics *observability.Metrics,
	addCleanup func(name string, fn func() error),
) (*kafka.Consumer, error) {
	security := config.KafkaSecurity(&cfg.Kafka)

	dlq, err := kafka.NewDLQPublisher(cfg.Kafka.BootstrapServers, security, kafka.DLQConfig{
		Enabled:     cfg.Kafka.DLQ.Enabled,
		TopicSuffix: cfg.Kafka.DLQ.TopicSuffix,
	}, cfg.Application.Name, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create DLQ publisher: %w", err)
	}
	addCleanup("dlq-publisher", dlq.Close)

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		BootstrapServers:    cfg.Kafka.BootstrapServers,
		GroupID:             cfg.Kafka.Consumer.GroupID,
		AutoOffsetReset:     cfg.Kafka.Consumer.AutoOffsetReset,
		MaxPollIntervalMS:   cfg.Kafka.Consumer.MaxPollIntervalMS,
		SessionTimeoutMS:    cfg.Kafka.Consumer.SessionTimeoutMS,
		HeartbeatIntervalMS: cfg.Kafka.Consumer.HeartbeatIntervalMS,
		Security:            security,
	}, handler, dlq, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	return consumer, nil
}

// newStorage creates the writer for the configured backend and a router
// producing paths in that backend's scheme.
func newStorage(
	ctx context.Context,
	cfg *dto.StorageConfig,
	logger *slog.Logger,
	metrics storage.MetricsCollector,
) (pkgstorage.Writer, pkgstorage.Router, error) {
	format, compression := storageFormat(cfg)

	var (
		writer pkgstorage.Writer
		err    error
	)
	switch cfg.Backend {
	case storage.BackendFile:
		writer, err = storage.NewFileWriter(storage.FileConfig{
			BasePath: cfg.File.BasePath,
		}, format, compression, logger, metrics)
	case storage.BackendS3:
		writer, err = storage.NewS3Writer(ctx, storage.S3Config{
			Bucket:       cfg.S3.Bucket,
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
			SSEEnabled:   cfg.S3.SSEEnabled,
			SSEKMSKeyID:  cfg.S3.SSEKMSKeyID,
		}, format, compression, logger, metrics)
	case storage.BackendAzure:
		writer, err = storage.NewAzureWriter(storage.AzureConfig{
			AccountName:   cfg.Azure.AccountName,
			AccountKey:    cfg.Azure.AccountKey,
			ContainerName: cfg.Azure.Container,
			Endpoint:      cfg.Azure.Endpoint,
		}, format, compression, logger, metrics)
	case storage.BackendGCS:
		writer, err = storage.NewGCSWriter(ctx, storage.GCSConfig{
			Bucket:               cfg.GCS.Bucket,
			ProjectID:            cfg.GCS.ProjectID,
			CredentialsFile:      cfg.GCS.CredentialsFile,
			CredentialsJSON:      cfg.GCS.CredentialsJSON,
			Endpoint:             cfg.GCS.Endpoint,
			UseDefaultCredential: cfg.GCS.UseDefaultCredential,
		}, format, compression, logger, metrics)
	default:
		return nil, nil, fmt.Errorf("unsupported storage backend: %s (supported: file, s3, azure, gcs)", cfg.Backend)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s writer: %w", cfg.Backend, err)
	}

	return writer, storage.NewRouter(storageProtocol(cfg.Backend), storageBucket(cfg), storageBasePath(cfg)), nil
}

func storageFormat(cfg *dto.StorageConfig) (event.FileFormat, string) {
	format := event.FormatParquet
	if cfg.Format == string(event.FormatAvro) {
		format = event.FormatAvro
	}

	compression := cfg.Compression
	if compression == "" {
		compression = encoder.DefaultCompression(format)
	}
	return format, compression
}

func storageProtocol(backend string) string {
	switch backend {
	case storage.BackendS3:
		return "s3"
	case storage.BackendAzure:
		return "wasbs"
	case storage.BackendGCS:
		return "gs"
	default:
		return "file"
	}
}

func storageBucket(cfg *dto.StorageConfig) string {
	switch cfg.Backend {
	case storage.BackendS3:
		return cfg.S3.Bucket
	case storage.BackendAzure:
		return cfg.Azure.Container
	case storage.BackendGCS:
		return cfg.GCS.Bucket
	default:
		// File backend joins routed paths onto its base path.
		return ""
	}
}

func storageBasePath(cfg *dto.StorageConfig) string {
	switch cfg.Backend {
	case storage.BackendS3:
		return cfg.S3.BasePath
	case storage.BackendGCS:
		return cfg.GCS.BasePath
	default:
		return ""
	}
}
