package kafka

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/LexAlert/internal/config"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/pkg/errors"
	"github.com/turtacn/LexAlert/pkg/types/common"
)

var (
	ErrAlreadyRunning = errors.New(errors.ErrCodeConflict, "consumer already running")
	ErrNoHandler      = errors.New(errors.ErrCodeMessageQueue, "no handler registered for topic")
)

// Header keys stamped on dead-lettered messages.
const (
	HeaderOriginalTopic = "x-original-topic"
	HeaderError         = "x-error"
	HeaderAttempts      = "x-attempts"
)

// RetryConfig defines redelivery behavior for a failing handler.
type RetryConfig struct {
	MaxRetries      int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
	DeadLetterTopic string
}

// ConsumerConfig holds configuration for the Consumer.
type ConsumerConfig struct {
	Brokers         []string
	GroupID         string
	Topics          []string
	AutoOffsetReset string
	MinBytes        int
	MaxBytes        int
	MaxWait         time.Duration
	Retry           RetryConfig
}

// ConsumerConfigFrom maps the kafka section onto ConsumerConfig for topics.
// Exhausted messages go to the shared dead letter topic.
func ConsumerConfigFrom(c config.KafkaConfig, topics ...string) ConsumerConfig {
	return ConsumerConfig{
		Brokers:         c.Brokers,
		GroupID:         c.GroupID,
		Topics:          topics,
		AutoOffsetReset: c.AutoOffsetReset,
		Retry: RetryConfig{
			MaxRetries:      c.MaxRetries,
			RetryBackoff:    c.RetryBackoff,
			DeadLetterTopic: TopicDeadLetter,
		},
	}
}

// ConsumerStats is a point-in-time snapshot of consumer counters.
type ConsumerStats struct {
	Consumed     int64
	Processed    int64
	Failed       int64
	Retried      int64
	DeadLettered int64
	Lag          int64
}

// ReaderInterface abstracts kafka.Reader for testing.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher is the subset of Producer the consumer needs for dead letters.
type Publisher interface {
	Publish(ctx context.Context, msg *common.ProducerMessage) error
}

// Consumer reads a consumer group and routes messages to per-topic handlers.
// A message is committed once its handler succeeds or it has been dead
// lettered. Dead letter publishing is retried until it succeeds or the
// consumer stops, and a message still unparked at shutdown is left
// uncommitted along with everything after it.
type Consumer struct {
	reader ReaderInterface
	config ConsumerConfig
	logger logging.Logger

	handlers map[string]common.MessageHandler
	mu       sync.RWMutex

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	deadLetter Publisher

	consumed, processed, failed, retried, deadLettered, lag atomic.Int64
}

// NewConsumer creates a Consumer. deadLetter may be nil, in which case
// exhausted messages are logged and dropped.
func NewConsumer(cfg ConsumerConfig, deadLetter Publisher, log logging.Logger) (*Consumer, error) {
	if err := ValidateConsumerConfig(cfg); err != nil {
		return nil, err
	}
	applyConsumerDefaults(&cfg)

	readerCfg := kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		GroupTopics:    cfg.Topics,
		MinBytes:       cfg.MinBytes,
		MaxBytes:       cfg.MaxBytes,
		MaxWait:        cfg.MaxWait,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: 0, // synchronous commits
	}
	if cfg.AutoOffsetReset == "latest" {
		readerCfg.StartOffset = kafka.LastOffset
	}

	return NewConsumerWithReader(kafka.NewReader(readerCfg), cfg, deadLetter, log), nil
}

// NewConsumerWithReader wraps an existing reader (for testing).
func NewConsumerWithReader(r ReaderInterface, cfg ConsumerConfig, deadLetter Publisher, log logging.Logger) *Consumer {
	applyConsumerDefaults(&cfg)
	return &Consumer{
		reader:     r,
		config:     cfg,
		logger:     log,
		handlers:   make(map[string]common.MessageHandler),
		deadLetter: deadLetter,
	}
}

func applyConsumerDefaults(cfg *ConsumerConfig) {
	if cfg.AutoOffsetReset == "" {
		cfg.AutoOffsetReset = "earliest"
	}
	if cfg.MinBytes == 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = 10 * 1024 * 1024
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = time.Second
	}
	if cfg.Retry.RetryBackoff == 0 {
		cfg.Retry.RetryBackoff = time.Second
	}
	if cfg.Retry.MaxRetryBackoff == 0 {
		cfg.Retry.MaxRetryBackoff = 30 * time.Second
	}
}

// Subscribe registers handler for topic, replacing any previous handler.
func (c *Consumer) Subscribe(topic string, handler common.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
	c.logger.Info("Subscribed to topic", logging.String("topic", topic))
}

// Start launches the consume loop. It returns immediately.
func (c *Consumer) Start(ctx context.Context) error {
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.Info("Kafka consumer started",
		logging.String("group", c.config.GroupID),
		logging.Any("topics", c.config.Topics))
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for ctx.Err() == nil {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("Fetch failed", logging.Err(err))
			sleepCtx(ctx, time.Second)
			continue
		}

		c.consumed.Add(1)
		if m.HighWaterMark > 0 {
			c.lag.Store(m.HighWaterMark - m.Offset - 1)
		}

		if err := c.handle(ctx, toMessage(m)); err != nil {
			// Only cancellation gets here. Stop without committing so no later
			// offset moves the group past this message.
			c.logger.Warn("Message left uncommitted",
				logging.String("topic", m.Topic),
				logging.Int("partition", m.Partition),
				logging.Int64("offset", m.Offset),
				logging.Err(err))
			return
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("Commit failed", logging.Err(err))
		}
	}
}

// handle runs the handler with retries. It returns nil when the message may be
// committed.
func (c *Consumer) handle(ctx context.Context, msg *common.Message) error {
	c.mu.RLock()
	handler, ok := c.handlers[msg.Topic]
	c.mu.RUnlock()
	if !ok {
		c.logger.Warn("No handler for topic, skipping", logging.String("topic", msg.Topic))
		return nil
	}

	err := handler(ctx, msg)
	attempts := 1
	backoff := c.config.Retry.RetryBackoff
	for err != nil && attempts <= c.config.Retry.MaxRetries {
		c.retried.Add(1)
		if !sleepCtx(ctx, backoff) {
			return ctx.Err()
		}
		err = handler(ctx, msg)
		attempts++
		backoff *= 2
		if backoff > c.config.Retry.MaxRetryBackoff {
			backoff = c.config.Retry.MaxRetryBackoff
		}
	}
	if err == nil {
		c.processed.Add(1)
		return nil
	}

	c.failed.Add(1)
	c.logger.Error("Message processing failed after retries",
		logging.String("topic", msg.Topic),
		logging.Int64("offset", msg.Offset),
		logging.Int("attempts", attempts),
		logging.Err(err))

	if c.deadLetter == nil || c.config.Retry.DeadLetterTopic == "" {
		return nil
	}
	return c.sendToDeadLetter(ctx, msg, err, attempts)
}

func (c *Consumer) sendToDeadLetter(ctx context.Context, msg *common.Message, cause error, attempts int) error {
	headers := make(map[string]string, len(msg.Headers)+3)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[HeaderOriginalTopic] = msg.Topic
	headers[HeaderError] = cause.Error()
	headers[HeaderAttempts] = strconv.Itoa(attempts)

	parked := &common.ProducerMessage{
		Topic:   c.config.Retry.DeadLetterTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	}

	// The partition does not advance until the message is parked.
	backoff := c.config.Retry.RetryBackoff
	for {
		err := c.deadLetter.Publish(ctx, parked)
		if err == nil {
			c.deadLettered.Add(1)
			return nil
		}
		c.logger.Error("Dead letter publish failed, retrying",
			logging.String("topic", msg.Topic),
			logging.Int64("offset", msg.Offset),
			logging.Duration("backoff", backoff),
			logging.Err(err))
		if !sleepCtx(ctx, backoff) {
			return errors.Wrap(err, errors.ErrCodeMessageQueue, "failed to dead letter message")
		}
		backoff *= 2
		if backoff > c.config.Retry.MaxRetryBackoff {
			backoff = c.config.Retry.MaxRetryBackoff
		}
	}
}

// Stats returns a snapshot of the consumer counters.
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Consumed:     c.consumed.Load(),
		Processed:    c.processed.Load(),
		Failed:       c.failed.Load(),
		Retried:      c.retried.Load(),
		DeadLettered: c.deadLettered.Load(),
		Lag:          c.lag.Load(),
	}
}

// Close stops the loop, waits for the in-flight message and closes the reader.
func (c *Consumer) Close() error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	err := c.reader.Close()
	c.logger.Info("Kafka consumer closed", logging.Int64("consumed", c.consumed.Load()))
	return err
}

func toMessage(m kafka.Message) *common.Message {
	msg := &common.Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Timestamp: m.Time,
		Headers:   make(map[string]string, len(m.Headers)),
	}
	for _, h := range m.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}
	return msg
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// ValidateConsumerConfig validates configuration.
func ValidateConsumerConfig(cfg ConsumerConfig) error {
	switch {
	case len(cfg.Brokers) == 0:
		return errors.InvalidParam("brokers required")
	case cfg.GroupID == "":
		return errors.InvalidParam("group id required")
	case len(cfg.Topics) == 0:
		return errors.InvalidParam("at least one topic required")
	case cfg.AutoOffsetReset != "" && cfg.AutoOffsetReset != "earliest" && cfg.AutoOffsetReset != "latest":
		return errors.InvalidParam("auto offset reset must be earliest or latest")
	case cfg.Retry.MaxRetries < 0:
		return errors.InvalidParam("max retries must be >= 0")
	}
	return nil
}
