package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	apperrors "github.com/unsighted-org/demo-1biome-sub001/internal/errors"
)

// DLQ failure reasons.
const (
	ReasonInvalidEvent     = "invalid_event"
	ReasonValidationFailed = "validation_failed"
)

// ConsumerConfig contains Kafka consumer configuration.
type ConsumerConfig struct {
	BootstrapServers    []string
	GroupID             string
	AutoOffsetReset     string
	MaxPollIntervalMS   int
	SessionTimeoutMS    int
	HeartbeatIntervalMS int
	Security            SecurityConfig
}

// ConsumerMetrics defines metrics operations for the Kafka consumer.
type ConsumerMetrics interface {
	IncMessagesConsumed(topic string, partition int32, status string)
	IncRebalances(groupID string)
	ObserveRebalanceDuration(groupID string, duration float64)
	SetPartitionsAssigned(topic string, count float64)
}

// EventHandler receives decoded CloudEvents. Returning an error wrapping
// errors.ErrInvalidRecord routes the message to the DLQ; any other error
// leaves the message unmarked so it is redelivered.
type EventHandler interface {
	HandleEvent(ctx context.Context, e cloudevents.Event) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, e cloudevents.Event) error

// HandleEvent calls f(ctx, e).
func (f EventHandlerFunc) HandleEvent(ctx context.Context, e cloudevents.Event) error {
	return f(ctx, e)
}

// DeadLetterer receives messages that cannot be ingested.
type DeadLetterer interface {
	Publish(ctx context.Context, msg *sarama.ConsumerMessage, reason string) error
}

// Consumer feeds CloudEvents from a consumer group into an EventHandler.
type Consumer struct {
	group   sarama.ConsumerGroup
	groupID string
	handler EventHandler
	dlq     DeadLetterer
	logger  *slog.Logger
	metrics ConsumerMetrics
	mu      sync.RWMutex
	closed  bool
}

// NewConsumer creates a consumer group client.
func NewConsumer(
	config ConsumerConfig,
	handler EventHandler,
	dlq DeadLetterer,
	logger *slog.Logger,
	metrics ConsumerMetrics,
) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = offsetInitial(config.AutoOffsetReset)
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Return.Errors = true

	if config.SessionTimeoutMS > 0 {
		saramaConfig.Consumer.Group.Session.Timeout = time.Duration(config.SessionTimeoutMS) * time.Millisecond
	}
	if config.HeartbeatIntervalMS > 0 {
		saramaConfig.Consumer.Group.Heartbeat.Interval = time.Duration(config.HeartbeatIntervalMS) * time.Millisecond
	}
	saramaConfig.Consumer.MaxProcessingTime = 5 * time.Minute
	if config.MaxPollIntervalMS > 0 {
		saramaConfig.Consumer.MaxProcessingTime = time.Duration(config.MaxPollIntervalMS) * time.Millisecond
	}

	if err := configureSecurity(saramaConfig, config.Security); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}

	group, err := sarama.NewConsumerGroup(config.BootstrapServers, config.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	logger.Info("kafka consumer created",
		"group_id", config.GroupID,
		"bootstrap_servers", config.BootstrapServers,
		"session_timeout_ms", config.SessionTimeoutMS,
		"max_poll_interval_ms", config.MaxPollIntervalMS,
	)

	return NewConsumerWithGroup(group, config.GroupID, handler, dlq, logger, metrics), nil
}

// NewConsumerWithGroup wraps an existing consumer group.
func NewConsumerWithGroup(
	group sarama.ConsumerGroup,
	groupID string,
	handler EventHandler,
	dlq DeadLetterer,
	logger *slog.Logger,
	metrics ConsumerMetrics,
) *Consumer {
	return &Consumer{
		group:   group,
		groupID: groupID,
		handler: handler,
		dlq:     dlq,
		logger:  logger,
		metrics: metrics,
	}
}

// Run consumes topics until ctx is cancelled or the group is closed.
// Consume returns on every rebalance, so it is called in a loop.
func (c *Consumer) Run(ctx context.Context, topics []string) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return apperrors.ErrConsumerClosed
	}

	go func() {
		for err := range c.group.Errors() {
			c.logger.Error("consumer group error", "error", err)
		}
	}()

	handler := &groupHandler{consumer: c}
	c.logger.Info("kafka consumer started", "topics", topics, "group_id", c.groupID)

	for {
		if err := c.group.Consume(ctx, topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return fmt.Errorf("consume: %w", err)
		}
		if ctx.Err() != nil {
			c.logger.Info("consumer context cancelled")
			return nil
		}
	}
}

// Close closes the consumer group.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.logger.Info("closing kafka consumer")

	if err := c.group.Close(); err != nil {
		c.logger.Error("error closing consumer group", "error", err)
		return err
	}
	return nil
}

// process decodes and handles one message. It reports whether the message
// is done and may be marked.
func (c *Consumer) process(ctx context.Context, msg *sarama.ConsumerMessage) (bool, error) {
	e := cloudevents.NewEvent()
	if err := json.Unmarshal(msg.Value, &e); err != nil {
		return c.deadLetter(ctx, msg, ReasonInvalidEvent, fmt.Errorf("failed to unmarshal cloud event: %w", err))
	}
	if err := e.Validate(); err != nil {
		return c.deadLetter(ctx, msg, ReasonInvalidEvent, fmt.Errorf("invalid cloud event: %w", err))
	}

	c.logger.Debug("received cloud event",
		"event_id", e.ID(),
		"type", e.Type(),
		"subject", e.Subject(),
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
	)

	if err := c.handler.HandleEvent(ctx, e); err != nil {
		if errors.Is(err, apperrors.ErrInvalidRecord) {
			return c.deadLetter(ctx, msg, ReasonValidationFailed, err)
		}
		c.observe(msg, "error")
		return false, err
	}

	c.observe(msg, "success")
	return true, nil
}

func (c *Consumer) deadLetter(ctx context.Context, msg *sarama.ConsumerMessage, reason string, cause error) (bool, error) {
	c.logger.Warn("rejecting message",
		"reason", reason,
		"error", cause,
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
	)
	c.observe(msg, reason)

	if c.dlq == nil {
		return true, nil
	}
	if err := c.dlq.Publish(ctx, msg, reason); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Consumer) observe(msg *sarama.ConsumerMessage, status string) {
	if c.metrics != nil {
		c.metrics.IncMessagesConsumed(msg.Topic, msg.Partition, status)
	}
}

// groupHandler implements sarama.ConsumerGroupHandler.
type groupHandler struct {
	consumer       *Consumer
	rebalanceStart time.Time
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (h *groupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.rebalanceStart = time.Now()
	c := h.consumer

	c.logger.Info("consumer group session setup",
		"member_id", session.MemberID(),
		"generation_id", session.GenerationID(),
		"claims", session.Claims(),
	)

	if c.metrics != nil {
		c.metrics.IncRebalances(c.groupID)
		for topic, partitions := range session.Claims() {
			c.metrics.SetPartitionsAssigned(topic, float64(len(partitions)))
		}
	}
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (h *groupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	c := h.consumer
	if c.metrics != nil && !h.rebalanceStart.IsZero() {
		c.metrics.ObserveRebalanceDuration(c.groupID, time.Since(h.rebalanceStart).Seconds())
	}
	c.logger.Info("consumer group session cleanup", "member_id", session.MemberID())
	return nil
}

// ConsumeClaim processes messages from a partition. A handler failure ends
// the claim without marking so the message is redelivered after the
// next rebalance.
func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	c := h.consumer
	c.logger.Info("started consuming partition",
		"topic", claim.Topic(),
		"partition", claim.Partition(),
		"initial_offset", claim.InitialOffset(),
	)

	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			done, err := c.process(session.Context(), msg)
			if err != nil {
				c.logger.Error("failed to process message",
					"error", err,
					"topic", msg.Topic,
					"partition", msg.Partition,
					"offset", msg.Offset,
				)
				return err
			}
			if done {
				session.MarkMessage(msg, "")
			}
		case <-session.Context().Done():
			return nil
		}
	}
}
