// Package config loads the service configuration with viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/unsighted-org/demo-1biome-sub001/internal/config/dto"
	"github.com/unsighted-org/demo-1biome-sub001/internal/encoder"
	"github.com/unsighted-org/demo-1biome-sub001/internal/kafka"
	"github.com/unsighted-org/demo-1biome-sub001/pkg/event"
)

// DefaultPath is the config file used when neither the flag nor
// CONFIG_PATH is set.
const DefaultPath = "config/application.yaml"

// ResolvePath picks the config file: flag value, then CONFIG_PATH, then
// DefaultPath.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return envPath
	}
	return DefaultPath
}

// Loader handles configuration loading and validation
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load loads configuration from file and environment variables. A missing
// file is not an error; defaults and APP_* variables still apply.
func (l *Loader) Load(path string) (*dto.ApplicationConfig, error) {
	l.setDefaults()

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Expand ${VAR} references in string values.
	for _, key := range l.v.AllKeys() {
		value, ok := l.v.Get(key).(string)
		if ok && strings.Contains(value, "${") {
			l.v.Set(key, os.ExpandEnv(value))
		}
	}

	var config dto.ApplicationConfig
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	// Application defaults
	l.v.SetDefault("application.name", "telemetry-emitter")
	l.v.SetDefault("application.version", "1.0.0")
	l.v.SetDefault("application.environment", "development")

	// Emitter defaults
	l.v.SetDefault("emitter.max_buffer_size", 100)
	l.v.SetDefault("emitter.flush_interval", "5s")
	l.v.SetDefault("emitter.min_flush_interval", "1s")
	l.v.SetDefault("emitter.max_retry_attempts", 3)
	l.v.SetDefault("emitter.retry_backoff", "1s")
	l.v.SetDefault("emitter.max_retry_backoff", "5m")
	l.v.SetDefault("emitter.sink_timeout", "30s")

	// Stream defaults
	l.v.SetDefault("streams.logs.enabled", true)
	l.v.SetDefault("streams.logs.sinks", []string{dto.SinkStorage})
	l.v.SetDefault("streams.logs.topic", "telemetry.logs")
	l.v.SetDefault("streams.metrics.enabled", true)
	l.v.SetDefault("streams.metrics.sinks", []string{dto.SinkStorage})
	l.v.SetDefault("streams.metrics.topic", "telemetry.metrics")

	// Storage defaults
	l.v.SetDefault("storage.backend", "file")
	l.v.SetDefault("storage.format", "parquet")
	l.v.SetDefault("storage.compression", "")
	l.v.SetDefault("storage.file.base_path", "./data")
	l.v.SetDefault("storage.s3.bucket", "")
	l.v.SetDefault("storage.s3.region", "")
	l.v.SetDefault("storage.s3.base_path", "")
	l.v.SetDefault("storage.s3.endpoint", "")
	l.v.SetDefault("storage.s3.use_path_style", false)
	l.v.SetDefault("storage.s3.sse_enabled", true)
	l.v.SetDefault("storage.azure.account_name", "")
	l.v.SetDefault("storage.azure.account_key", "")
	l.v.SetDefault("storage.azure.container", "")
	l.v.SetDefault("storage.gcs.bucket", "")
	l.v.SetDefault("storage.gcs.credentials_file", "")
	l.v.SetDefault("storage.gcs.use_default_credential", true)

	// Kafka defaults
	l.v.SetDefault("kafka.bootstrap_servers", []string{})
	l.v.SetDefault("kafka.client_id", "telemetry-emitter")
	l.v.SetDefault("kafka.security_protocol", "PLAINTEXT")
	l.v.SetDefault("kafka.sasl_mechanism", "")
	l.v.SetDefault("kafka.sasl_username", "")
	l.v.SetDefault("kafka.sasl_password", "")
	l.v.SetDefault("kafka.aws_region", "")
	l.v.SetDefault("kafka.producer.compression", "snappy")
	l.v.SetDefault("kafka.producer.retry_max", 5)
	l.v.SetDefault("kafka.consumer.enabled", false)
	l.v.SetDefault("kafka.consumer.group_id", "")
	l.v.SetDefault("kafka.consumer.topics", []string{})
	l.v.SetDefault("kafka.consumer.auto_offset_reset", "earliest")
	l.v.SetDefault("kafka.consumer.max_poll_interval_ms", 300000)
	l.v.SetDefault("kafka.consumer.session_timeout_ms", 30000)
	l.v.SetDefault("kafka.consumer.heartbeat_interval_ms", 10000)
	l.v.SetDefault("kafka.dlq.enabled", true)
	l.v.SetDefault("kafka.dlq.topic_suffix", "-dlq")

	// Ingest defaults
	l.v.SetDefault("ingest.enabled", true)

	// Observability defaults
	l.v.SetDefault("observability.logging.level", "info")
	l.v.SetDefault("observability.logging.format", "json")
	l.v.SetDefault("observability.logging.output", "stdout")
	l.v.SetDefault("observability.logging.add_source", false)
	l.v.SetDefault("observability.metrics.port", 9090)
	l.v.SetDefault("observability.health.port", 8080)

	// Shutdown defaults
	l.v.SetDefault("shutdown.grace_period", "30s")
	l.v.SetDefault("shutdown.flush_timeout", "20s")
}

// Validate validates the configuration
func (l *Loader) Validate(config *dto.ApplicationConfig) error {
	if config.Application.Name == "" {
		return errors.New("application.name is required")
	}

	if err := config.Emitter.Validate(); err != nil {
		return err
	}

	for name, stream := range config.Streams.ByName() {
		if err := stream.Validate(name); err != nil {
			return err
		}
	}

	if config.Streams.UsesSink(dto.SinkStorage) {
		if err := validateStorage(&config.Storage); err != nil {
			return err
		}
	}

	if config.Streams.UsesSink(dto.SinkKafka) || config.Kafka.Consumer.Enabled {
		if len(config.Kafka.BootstrapServers) == 0 {
			return errors.New("kafka.bootstrap_servers is required")
		}
		if err := validateKafkaSecurity(&config.Kafka); err != nil {
			return err
		}
	}
	if err := config.Kafka.Consumer.Validate(); err != nil {
		return err
	}

	if !config.Ingest.Enabled && !config.Kafka.Consumer.Enabled {
		return errors.New("at least one of ingest.enabled or kafka.consumer.enabled must be set")
	}

	// Port validation
	if config.Observability.Metrics.Port < 1 || config.Observability.Metrics.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", config.Observability.Metrics.Port)
	}
	if config.Observability.Health.Port < 1 || config.Observability.Health.Port > 65535 {
		return fmt.Errorf("invalid health port: %d", config.Observability.Health.Port)
	}
	if config.Observability.Metrics.Port == config.Observability.Health.Port {
		return fmt.Errorf("metrics and health ports must differ: %d", config.Observability.Health.Port)
	}

	return nil
}

func validateStorage(config *dto.StorageConfig) error {
	var err error
	switch config.Backend {
	case "s3":
		err = config.S3.Validate()
	case "azure":
		err = config.Azure.Validate()
	case "gcs":
		err = config.GCS.Validate()
	case "file":
		err = config.File.Validate()
	default:
		return fmt.Errorf("unsupported storage backend: %s (supported: file, s3, azure, gcs)", config.Backend)
	}
	if err != nil {
		return err
	}

	format := event.FileFormat(config.Format)
	if !slices.Contains(encoder.SupportedFormats(), format) {
		return fmt.Errorf("unsupported storage format: %s (supported: parquet, avro)", config.Format)
	}
	if config.Compression != "" && !slices.Contains(encoder.SupportedCompressions(format), config.Compression) {
		return fmt.Errorf("unsupported %s compression: %s (supported: %s)",
			format, config.Compression, strings.Join(encoder.SupportedCompressions(format), ", "))
	}
	return nil
}

// validateKafkaSecurity checks the security settings the same way the
// Kafka clients will apply them.
func validateKafkaSecurity(config *dto.KafkaConfig) error {
	if err := KafkaSecurity(config).Validate(); err != nil {
		return fmt.Errorf("kafka security: %w", err)
	}
	return nil
}

// KafkaSecurity maps the Kafka DTO onto the client security settings.
func KafkaSecurity(config *dto.KafkaConfig) kafka.SecurityConfig {
	return kafka.SecurityConfig{
		SecurityProtocol: config.SecurityProtocol,
		SASLMechanism:    config.SASLMechanism,
		SASLUsername:     config.SASLUsername,
		SASLPassword:     config.SASLPassword,
		AWSRegion:        config.AWSRegion,
		TLS: kafka.TLSConfig{
			InsecureSkipVerify: config.TLS.InsecureSkipVerify,
			CACertFile:         config.TLS.CACertFile,
			ClientCertFile:     config.TLS.ClientCertFile,
			ClientKeyFile:      config.TLS.ClientKeyFile,
		},
	}
}
