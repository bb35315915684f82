package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/unsighted-org/demo-1biome-sub001/internal/errors"
)

// DLQEvent represents a consumed message that could not be ingested.
type DLQEvent struct {
	OriginalEvent     json.RawMessage `json:"original_event,omitempty"`
	OriginalPayload   string          `json:"original_payload,omitempty"`
	OriginalTopic     string          `json:"original_topic"`
	OriginalPartition int32           `json:"original_partition"`
	OriginalOffset    int64           `json:"original_offset"`
	FailureReason     string          `json:"failure_reason"`
	FailureTimestamp  time.Time       `json:"failure_timestamp"`
	ProcessorID       string          `json:"processor_id"`
}

// DLQConfig contains DLQ configuration.
type DLQConfig struct {
	Enabled     bool
	TopicSuffix string
}

// DLQMetrics defines metrics operations for the DLQ publisher.
type DLQMetrics interface {
	IncDLQMessages(topic, reason string)
}

// DLQPublisher publishes messages that failed ingestion to <topic><suffix>.
type DLQPublisher struct {
	producer    sarama.SyncProducer
	config      DLQConfig
	logger      *slog.Logger
	metrics     DLQMetrics
	processorID string
	mu          sync.RWMutex
	closed      bool
}

// NewDLQPublisher creates a new DLQ publisher. A disabled DLQ has no
// producer and drops every message.
func NewDLQPublisher(
	bootstrapServers []string,
	security SecurityConfig,
	dlqConfig DLQConfig,
	processorID string,
	logger *slog.Logger,
	metrics DLQMetrics,
) (*DLQPublisher, error) {
	if !dlqConfig.Enabled {
		logger.Info("DLQ is disabled")
		return &DLQPublisher{config: dlqConfig, logger: logger, processorID: processorID}, nil
	}

	saramaConfig, err := newProducerConfig(processorID+"-dlq", "snappy", 5, security)
	if err != nil {
		return nil, err
	}

	producer, err := sarama.NewSyncProducer(bootstrapServers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync producer: %w", err)
	}

	logger.Info("DLQ publisher created",
		"bootstrap_servers", bootstrapServers,
		"topic_suffix", dlqConfig.TopicSuffix,
	)

	return NewDLQPublisherWithProducer(producer, dlqConfig, processorID, logger, metrics), nil
}

// NewDLQPublisherWithProducer wraps an existing sync producer.
func NewDLQPublisherWithProducer(
	producer sarama.SyncProducer,
	dlqConfig DLQConfig,
	processorID string,
	logger *slog.Logger,
	metrics DLQMetrics,
) *DLQPublisher {
	return &DLQPublisher{
		producer:    producer,
		config:      dlqConfig,
		logger:      logger,
		metrics:     metrics,
		processorID: processorID,
	}
}

// Topic returns the DLQ topic for a source topic.
func (p *DLQPublisher) Topic(source string) string {
	return source + p.config.TopicSuffix
}

// Publish sends a failed message to the DLQ with the failure reason.
func (p *DLQPublisher) Publish(ctx context.Context, msg *sarama.ConsumerMessage, reason string) error {
	if !p.config.Enabled {
		p.logger.Debug("DLQ disabled, dropping message",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"reason", reason,
		)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return errors.ErrPublisherClosed
	}

	dlqEvent := DLQEvent{
		OriginalTopic:     msg.Topic,
		OriginalPartition: msg.Partition,
		OriginalOffset:    msg.Offset,
		FailureReason:     reason,
		FailureTimestamp:  time.Now().UTC(),
		ProcessorID:       p.processorID,
	}
	if json.Valid(msg.Value) {
		dlqEvent.OriginalEvent = msg.Value
	} else {
		dlqEvent.OriginalPayload = string(msg.Value)
	}

	dlqData, err := json.Marshal(dlqEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ event: %w", err)
	}

	dlqTopic := p.Topic(msg.Topic)
	out := &sarama.ProducerMessage{
		Topic: dlqTopic,
		Value: sarama.ByteEncoder(dlqData),
		Headers: []sarama.RecordHeader{
			{Key: []byte("failure_reason"), Value: []byte(reason)},
			{Key: []byte("original_topic"), Value: []byte(msg.Topic)},
			{Key: []byte("processor_id"), Value: []byte(p.processorID)},
		},
		Timestamp: time.Now(),
	}
	if msg.Key != nil {
		out.Key = sarama.ByteEncoder(msg.Key)
	}

	partition, offset, err := p.producer.SendMessage(out)
	if err != nil {
		p.logger.Error("failed to publish to DLQ",
			"error", err,
			"dlq_topic", dlqTopic,
			"original_offset", msg.Offset,
		)
		return fmt.Errorf("failed to send message to DLQ: %w", err)
	}

	if p.metrics != nil {
		p.metrics.IncDLQMessages(msg.Topic, reason)
	}
	p.logger.Warn("published message to DLQ",
		"dlq_topic", dlqTopic,
		"partition", partition,
		"offset", offset,
		"reason", reason,
	)
	return nil
}

// Close closes the DLQ publisher.
func (p *DLQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.producer == nil {
		return nil
	}
	p.logger.Info("closing DLQ publisher")
	return p.producer.Close()
}
