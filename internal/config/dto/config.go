// Package dto holds the configuration structures decoded by the loader.
package dto

import (
	"fmt"
	"slices"
	"time"

	"github.com/unsighted-org/demo-1biome-sub001/pkg/event"
)

// Sink names usable in a stream's sink list.
const (
	SinkStorage = "storage"
	SinkKafka   = "kafka"
)

// ApplicationConfig is the root configuration structure
type ApplicationConfig struct {
	Application   ApplicationInfo     `mapstructure:"application"`
	Emitter       EmitterConfig       `mapstructure:"emitter"`
	Streams       StreamsConfig       `mapstructure:"streams"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Ingest        IngestConfig        `mapstructure:"ingest"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Shutdown      ShutdownConfig      `mapstructure:"shutdown"`
}

// ApplicationInfo contains application metadata
type ApplicationInfo struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// EmitterConfig contains batch emitter tuning. Zero values take the
// emitter defaults.
type EmitterConfig struct {
	MaxBufferSize    int           `mapstructure:"max_buffer_size"`
	FlushInterval    time.Duration `mapstructure:"flush_interval"`
	MinFlushInterval time.Duration `mapstructure:"min_flush_interval"`
	MaxRetryAttempts int           `mapstructure:"max_retry_attempts"`
	RetryBackoff     time.Duration `mapstructure:"retry_backoff"`
	MaxRetryBackoff  time.Duration `mapstructure:"max_retry_backoff"`
	SinkTimeout      time.Duration `mapstructure:"sink_timeout"`
}

// StreamsConfig configures each telemetry stream.
type StreamsConfig struct {
	Logs    StreamConfig `mapstructure:"logs"`
	Metrics StreamConfig `mapstructure:"metrics"`
}

// StreamConfig selects the sinks a stream flushes into.
type StreamConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Sinks   []string `mapstructure:"sinks"`
	Topic   string   `mapstructure:"topic"`
}

// HasSink reports whether the stream flushes into the named sink.
func (s StreamConfig) HasSink(name string) bool {
	return slices.Contains(s.Sinks, name)
}

// ByName returns the stream configs keyed by emitter key.
func (s StreamsConfig) ByName() map[string]StreamConfig {
	return map[string]StreamConfig{
		event.StreamLogs:    s.Logs,
		event.StreamMetrics: s.Metrics,
	}
}

// UsesSink reports whether any enabled stream flushes into the named sink.
func (s StreamsConfig) UsesSink(name string) bool {
	for _, stream := range s.ByName() {
		if stream.Enabled && stream.HasSink(name) {
			return true
		}
	}
	return false
}

// StorageConfig contains storage backend configuration
type StorageConfig struct {
	Backend     string      `mapstructure:"backend"`
	Format      string      `mapstructure:"format"`
	Compression string      `mapstructure:"compression"`
	S3          S3Config    `mapstructure:"s3"`
	Azure       AzureConfig `mapstructure:"azure"`
	GCS         GCSConfig   `mapstructure:"gcs"`
	File        FileConfig  `mapstructure:"file"`
}

// S3Config contains AWS S3 configuration
type S3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	BasePath     string `mapstructure:"base_path"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	SSEEnabled   bool   `mapstructure:"sse_enabled"`
	SSEKMSKeyID  string `mapstructure:"sse_kms_key_id"`
}

// AzureConfig contains Azure Blob Storage configuration
type AzureConfig struct {
	AccountName string `mapstructure:"account_name"`
	AccountKey  string `mapstructure:"account_key"`
	Container   string `mapstructure:"container"`
	Endpoint    string `mapstructure:"endpoint"`
}

// GCSConfig contains Google Cloud Storage configuration
type GCSConfig struct {
	Bucket               string `mapstructure:"bucket"`
	ProjectID            string `mapstructure:"project_id"`
	BasePath             string `mapstructure:"base_path"`
	CredentialsFile      string `mapstructure:"credentials_file"`
	CredentialsJSON      string `mapstructure:"credentials_json"`
	Endpoint             string `mapstructure:"endpoint"`
	UseDefaultCredential bool   `mapstructure:"use_default_credential"`
}

// FileConfig contains local filesystem configuration
type FileConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// KafkaConfig contains Kafka-related configuration
type KafkaConfig struct {
	BootstrapServers []string       `mapstructure:"bootstrap_servers"`
	ClientID         string         `mapstructure:"client_id"`
	SecurityProtocol string         `mapstructure:"security_protocol"`
	SASLMechanism    string         `mapstructure:"sasl_mechanism"`
	SASLUsername     string         `mapstructure:"sasl_username"`
	SASLPassword     string         `mapstructure:"sasl_password"`
	AWSRegion        string         `mapstructure:"aws_region"`
	TLS              TLSConfig      `mapstructure:"tls"`
	Producer         ProducerConfig `mapstructure:"producer"`
	Consumer         ConsumerConfig `mapstructure:"consumer"`
	DLQ              DLQConfig      `mapstructure:"dlq"`
}

// TLSConfig contains broker TLS settings
type TLSConfig struct {
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
	CACertFile         string `mapstructure:"ca_cert_file"`
	ClientCertFile     string `mapstructure:"client_cert_file"`
	ClientKeyFile      string `mapstructure:"client_key_file"`
}

// ProducerConfig contains Kafka sink producer settings
type ProducerConfig struct {
	Compression string `mapstructure:"compression"`
	RetryMax    int    `mapstructure:"retry_max"`
}

// ConsumerConfig contains Kafka ingestion consumer configuration
type ConsumerConfig struct {
	Enabled             bool     `mapstructure:"enabled"`
	GroupID             string   `mapstructure:"group_id"`
	Topics              []string `mapstructure:"topics"`
	AutoOffsetReset     string   `mapstructure:"auto_offset_reset"`
	MaxPollIntervalMS   int      `mapstructure:"max_poll_interval_ms"`
	SessionTimeoutMS    int      `mapstructure:"session_timeout_ms"`
	HeartbeatIntervalMS int      `mapstructure:"heartbeat_interval_ms"`
}

// DLQConfig contains dead letter queue configuration
type DLQConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	TopicSuffix string `mapstructure:"topic_suffix"`
}

// IngestConfig contains HTTP ingest API settings
type IngestConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ObservabilityConfig contains observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	Output    string `mapstructure:"output"`
	AddSource bool   `mapstructure:"add_source"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

// HealthConfig contains health and ingest API server settings
type HealthConfig struct {
	Port int `mapstructure:"port"`
}

// ShutdownConfig contains shutdown settings
type ShutdownConfig struct {
	GracePeriod  time.Duration `mapstructure:"grace_period"`
	FlushTimeout time.Duration `mapstructure:"flush_timeout"`
}

// Validate validates emitter tuning.
func (c *EmitterConfig) Validate() error {
	if c.MaxBufferSize < 0 {
		return fmt.Errorf("emitter.max_buffer_size cannot be negative")
	}
	if c.MaxRetryAttempts < 0 {
		return fmt.Errorf("emitter.max_retry_attempts cannot be negative")
	}
	for name, d := range map[string]time.Duration{
		"flush_interval":     c.FlushInterval,
		"min_flush_interval": c.MinFlushInterval,
		"retry_backoff":      c.RetryBackoff,
		"max_retry_backoff":  c.MaxRetryBackoff,
		"sink_timeout":       c.SinkTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("emitter.%s cannot be negative", name)
		}
	}
	return nil
}

// Validate validates a stream's sink selection.
func (c *StreamConfig) Validate(name string) error {
	if !c.Enabled {
		return nil
	}
	if len(c.Sinks) == 0 {
		return fmt.Errorf("streams.%s.sinks is required when the stream is enabled", name)
	}
	for _, s := range c.Sinks {
		if s != SinkStorage && s != SinkKafka {
			return fmt.Errorf("streams.%s: unsupported sink %q (supported: storage, kafka)", name, s)
		}
	}
	if c.HasSink(SinkKafka) && c.Topic == "" {
		return fmt.Errorf("streams.%s.topic is required for the kafka sink", name)
	}
	return nil
}

// Validate validates S3 configuration.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("storage.s3.bucket is required for S3 backend")
	}
	if c.Region == "" {
		return fmt.Errorf("storage.s3.region is required for S3 backend")
	}
	return nil
}

// Validate validates Azure configuration.
func (c *AzureConfig) Validate() error {
	if c.AccountName == "" {
		return fmt.Errorf("storage.azure.account_name is required for Azure backend")
	}
	if c.Container == "" {
		return fmt.Errorf("storage.azure.container is required for Azure backend")
	}
	return nil
}

// Validate validates GCS configuration.
func (c *GCSConfig) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("storage.gcs.bucket is required for GCS backend")
	}
	return nil
}

// Validate validates file configuration.
func (c *FileConfig) Validate() error {
	if c.BasePath == "" {
		return fmt.Errorf("storage.file.base_path is required for file backend")
	}
	return nil
}

// Validate validates the consumer settings when ingestion from Kafka is on.
func (c *ConsumerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.GroupID == "" {
		return fmt.Errorf("kafka.consumer.group_id is required")
	}
	if len(c.Topics) == 0 {
		return fmt.Errorf("kafka.consumer.topics is required")
	}
	if c.AutoOffsetReset != "" && c.AutoOffsetReset != "earliest" && c.AutoOffsetReset != "latest" {
		return fmt.Errorf("kafka.consumer.auto_offset_reset must be earliest or latest")
	}
	return nil
}
