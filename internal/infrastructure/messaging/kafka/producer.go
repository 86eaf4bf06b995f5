package kafka

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/LexAlert/internal/config"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/pkg/errors"
	"github.com/turtacn/LexAlert/pkg/types/common"
)

var (
	ErrProducerClosed = errors.New(errors.ErrCodeMessageQueue, "producer closed")
	ErrPublishFailed  = errors.New(errors.ErrCodeMessageQueue, "publish failed")
)

// ProducerConfig holds configuration for the Producer.
type ProducerConfig struct {
	Brokers                []string
	ClientID               string
	RequiredAcks           int // -1 all, 0 none, 1 leader
	MaxRetries             int
	BatchSize              int
	BatchTimeout           time.Duration
	MaxMessageBytes        int
	WriteTimeout           time.Duration
	AllowAutoTopicCreation bool
}

// ProducerConfigFrom maps the kafka section onto ProducerConfig.
func ProducerConfigFrom(c config.KafkaConfig) ProducerConfig {
	return ProducerConfig{
		Brokers:                c.Brokers,
		ClientID:               c.ClientID,
		RequiredAcks:           c.RequiredAcks,
		MaxRetries:             c.ProducerRetries,
		BatchSize:              c.BatchSize,
		BatchTimeout:           c.BatchTimeout,
		AllowAutoTopicCreation: c.AutoCreateTopics,
	}
}

// ProducerStats is a point-in-time snapshot of producer counters.
type ProducerStats struct {
	MessagesSent   int64
	MessagesFailed int64
	BytesSent      int64
	LastSentAt     time.Time
}

// WriterInterface abstracts kafka.Writer for testing.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
	Stats() kafka.WriterStats
}

// Producer publishes messages through a single kafka.Writer. The topic is set
// per message.
type Producer struct {
	writer WriterInterface
	config ProducerConfig
	logger logging.Logger
	closed atomic.Bool

	sent       atomic.Int64
	failed     atomic.Int64
	bytes      atomic.Int64
	lastSentAt atomic.Value // time.Time
}

// NewProducer creates a new Producer.
func NewProducer(cfg ProducerConfig, log logging.Logger) (*Producer, error) {
	if err := ValidateProducerConfig(cfg); err != nil {
		return nil, err
	}
	applyProducerDefaults(&cfg)

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		MaxAttempts:            cfg.MaxRetries + 1,
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		AllowAutoTopicCreation: cfg.AllowAutoTopicCreation,
		Transport: &kafka.Transport{
			ClientID:    cfg.ClientID,
			DialTimeout: 10 * time.Second,
		},
	}

	log.Info("Kafka producer created", logging.Any("brokers", cfg.Brokers))
	return NewProducerWithWriter(writer, cfg, log), nil
}

// NewProducerWithWriter wraps an existing writer (for testing).
func NewProducerWithWriter(w WriterInterface, cfg ProducerConfig, log logging.Logger) *Producer {
	applyProducerDefaults(&cfg)
	return &Producer{writer: w, config: cfg, logger: log}
}

func applyProducerDefaults(cfg *ProducerConfig) {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.MaxMessageBytes == 0 {
		cfg.MaxMessageBytes = 1024 * 1024
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
}

// Publish publishes a single message.
func (p *Producer) Publish(ctx context.Context, msg *common.ProducerMessage) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if err := p.validate(msg); err != nil {
		return err
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, toKafkaMessage(msg)); err != nil {
		p.failed.Add(1)
		return ErrPublishFailed.WithCause(err).WithDetail("topic=" + msg.Topic)
	}
	p.record(1, int64(len(msg.Value)))

	p.logger.Debug("Message published",
		logging.String("topic", msg.Topic),
		logging.Duration("latency", time.Since(start)))
	return nil
}

// PublishEvent wraps env into a message on topic, keyed by key.
func (p *Producer) PublishEvent(ctx context.Context, topic, key string, env *EventEnvelope) error {
	msg, err := env.ToMessage(topic)
	if err != nil {
		return err
	}
	msg.Key = []byte(key)
	return p.Publish(ctx, msg)
}

// BatchResult reports per-message outcomes of PublishBatch.
type BatchResult struct {
	Succeeded int
	Failed    int
	Errors    map[int]error // index into the input slice; -1 for a whole-batch failure
}

// PublishBatch publishes msgs in one write. Per-message failures are reported
// in the result rather than as an error.
func (p *Producer) PublishBatch(ctx context.Context, msgs []*common.ProducerMessage) (*BatchResult, error) {
	if p.closed.Load() {
		return nil, ErrProducerClosed
	}
	if len(msgs) == 0 {
		return nil, errors.InvalidParam("batch is empty")
	}

	kMsgs := make([]kafka.Message, len(msgs))
	var size int64
	for i, msg := range msgs {
		if err := p.validate(msg); err != nil {
			return nil, err
		}
		kMsgs[i] = toKafkaMessage(msg)
		size += int64(len(msg.Value))
	}

	result := &BatchResult{Errors: map[int]error{}}
	err := p.writer.WriteMessages(ctx, kMsgs...)
	var writeErrs kafka.WriteErrors
	switch {
	case err == nil:
		result.Succeeded = len(msgs)
	case stderrors.As(err, &writeErrs):
		for i, we := range writeErrs {
			if we != nil {
				result.Failed++
				result.Errors[i] = we
			} else {
				result.Succeeded++
			}
		}
	default:
		result.Failed = len(msgs)
		result.Errors[-1] = err
	}

	if result.Succeeded > 0 {
		p.record(int64(result.Succeeded), size)
	}
	p.failed.Add(int64(result.Failed))

	p.logger.Info("Batch published",
		logging.Int("succeeded", result.Succeeded),
		logging.Int("failed", result.Failed))
	return result, nil
}

// Stats returns a snapshot of the producer counters.
func (p *Producer) Stats() ProducerStats {
	s := ProducerStats{
		MessagesSent:   p.sent.Load(),
		MessagesFailed: p.failed.Load(),
		BytesSent:      p.bytes.Load(),
	}
	if t, ok := p.lastSentAt.Load().(time.Time); ok {
		s.LastSentAt = t
	}
	return s
}

// Close flushes and closes the writer. Subsequent publishes fail.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.writer.Close()
	p.logger.Info("Kafka producer closed", logging.Int64("sent", p.sent.Load()))
	return err
}

func (p *Producer) validate(msg *common.ProducerMessage) error {
	switch {
	case msg == nil:
		return errors.InvalidParam("message is nil")
	case msg.Topic == "":
		return errors.InvalidParam("topic is required")
	case len(msg.Value) == 0:
		return errors.InvalidParam("value is required")
	case len(msg.Value) > p.config.MaxMessageBytes:
		return errors.InvalidParam("message too large")
	}
	return nil
}

func (p *Producer) record(n, size int64) {
	p.sent.Add(n)
	p.bytes.Add(size)
	p.lastSentAt.Store(time.Now())
}

func toKafkaMessage(msg *common.ProducerMessage) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers))
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return kafka.Message{
		Topic:   msg.Topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
		Time:    ts,
	}
}

func ValidateProducerConfig(cfg ProducerConfig) error {
	if len(cfg.Brokers) == 0 {
		return errors.InvalidParam("brokers required")
	}
	if cfg.MaxRetries < 0 {
		return errors.InvalidParam("max retries must be >= 0")
	}
	switch cfg.RequiredAcks {
	case -1, 0, 1:
	default:
		return errors.InvalidParam("required acks must be -1, 0 or 1")
	}
	return nil
}
