package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	apperrors "github.com/unsighted-org/demo-1biome-sub001/internal/errors"
)

// PublisherConfig contains Kafka producer configuration.
type PublisherConfig struct {
	BootstrapServers []string
	ClientID         string
	Compression      string
	RetryMax         int
	Security         SecurityConfig
}

// PublisherMetrics defines metrics operations for the publisher.
type PublisherMetrics interface {
	AddMessagesPublished(topic, status string, n int)
}

// Publisher publishes CloudEvents to Kafka in batches with a sync producer.
type Publisher struct {
	producer sarama.SyncProducer
	logger   *slog.Logger
	metrics  PublisherMetrics
	mu       sync.RWMutex
	closed   bool
}

// NewPublisher creates an idempotent Kafka publisher.
func NewPublisher(cfg PublisherConfig, logger *slog.Logger, metrics PublisherMetrics) (*Publisher, error) {
	if len(cfg.BootstrapServers) == 0 {
		return nil, fmt.Errorf("kafka bootstrap servers are required")
	}

	saramaConfig, err := newProducerConfig(cfg.ClientID, cfg.Compression, cfg.RetryMax, cfg.Security)
	if err != nil {
		return nil, err
	}

	producer, err := sarama.NewSyncProducer(cfg.BootstrapServers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync producer: %w", err)
	}

	logger.Info("kafka publisher created",
		"bootstrap_servers", cfg.BootstrapServers,
		"security_protocol", cfg.Security.SecurityProtocol,
		"compression", cfg.Compression,
	)

	return NewPublisherWithProducer(producer, logger, metrics), nil
}

// NewPublisherWithProducer wraps an existing sync producer.
func NewPublisherWithProducer(producer sarama.SyncProducer, logger *slog.Logger, metrics PublisherMetrics) *Publisher {
	return &Publisher{
		producer: producer,
		logger:   logger,
		metrics:  metrics,
	}
}

// Publish sends events to topic as one batch. Events are keyed by subject
// when set so one user's telemetry stays on one partition. A partial failure
// returns *errors.PublishError; the whole batch should then be retried.
func (p *Publisher) Publish(ctx context.Context, topic string, events []cloudevents.Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return apperrors.ErrPublisherClosed
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(events))
	for _, e := range events {
		msg, err := toProducerMessage(topic, e)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}

	if err := p.producer.SendMessages(msgs); err != nil {
		failed := len(msgs)
		var perrs sarama.ProducerErrors
		if errors.As(err, &perrs) {
			failed = len(perrs)
		}

		if p.metrics != nil {
			p.metrics.AddMessagesPublished(topic, "failure", failed)
			p.metrics.AddMessagesPublished(topic, "success", len(msgs)-failed)
		}
		p.logger.Error("failed to publish batch",
			"topic", topic,
			"failed", failed,
			"total", len(msgs),
			"error", err,
		)
		return &apperrors.PublishError{Topic: topic, Failed: failed, Total: len(msgs), Err: err}
	}

	if p.metrics != nil {
		p.metrics.AddMessagesPublished(topic, "success", len(msgs))
	}
	p.logger.Debug("published batch", "topic", topic, "messages", len(msgs))
	return nil
}

func toProducerMessage(topic string, e cloudevents.Event) (*sarama.ProducerMessage, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal CloudEvent %s: %w", e.ID(), err)
	}

	key := e.Subject()
	if key == "" {
		key = e.ID()
	}

	return &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("ce_specversion"), Value: []byte(e.SpecVersion())},
			{Key: []byte("ce_type"), Value: []byte(e.Type())},
			{Key: []byte("ce_source"), Value: []byte(e.Source())},
			{Key: []byte("ce_id"), Value: []byte(e.ID())},
		},
		Timestamp: e.Time(),
	}, nil
}

// Close closes the publisher. Later publishes fail with ErrPublisherClosed.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	p.logger.Info("closing kafka publisher")
	return p.producer.Close()
}
