package kafka

import (
	"context"
	stderrors "errors"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/pkg/errors"
)

const (
	TopicAlertPlanned      = "lexalert.alert.planned"
	TopicNotificationEmail = "lexalert.notification.email"
	TopicDeadLetter        = "lexalert.dead_letter"
)

const dayMs = int64(24 * 3600 * 1000)

// TopicConfig describes a topic to create.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	RetentionMs       int64
	CleanupPolicy     string
}

// DefaultTopics returns the topics the alert pipeline publishes to, sized with
// the given partition count and replication factor.
func DefaultTopics(partitions, replication int) []TopicConfig {
	return []TopicConfig{
		{Name: TopicAlertPlanned, NumPartitions: partitions, ReplicationFactor: replication, RetentionMs: 7 * dayMs},
		{Name: TopicNotificationEmail, NumPartitions: partitions, ReplicationFactor: replication, RetentionMs: 3 * dayMs},
		{Name: TopicDeadLetter, NumPartitions: 1, ReplicationFactor: replication, RetentionMs: 30 * dayMs},
	}
}

// ConnInterface abstracts kafka.Conn for testing.
type ConnInterface interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	DeleteTopics(topics ...string) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// TopicManager creates and inspects topics through a controller connection.
type TopicManager struct {
	conn   ConnInterface
	logger logging.Logger
}

func NewTopicManager(ctx context.Context, brokers []string, log logging.Logger) (*TopicManager, error) {
	if len(brokers) == 0 {
		return nil, errors.InvalidParam("brokers required")
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMessageQueue, "failed to dial kafka")
	}
	controller, err := conn.Controller()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, errors.ErrCodeMessageQueue, "failed to find kafka controller")
	}
	conn.Close()

	cc, err := kafka.DialContext(ctx, "tcp", controller.Host+":"+strconv.Itoa(controller.Port))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMessageQueue, "failed to dial kafka controller")
	}
	return NewTopicManagerWithConn(cc, log), nil
}

// NewTopicManagerWithConn wraps an existing connection (for testing).
func NewTopicManagerWithConn(conn ConnInterface, log logging.Logger) *TopicManager {
	return &TopicManager{conn: conn, logger: log}
}

func (m *TopicManager) CreateTopic(ctx context.Context, cfg TopicConfig) error {
	switch {
	case cfg.Name == "":
		return errors.InvalidParam("topic name required")
	case cfg.NumPartitions <= 0:
		return errors.InvalidParam("partitions must be > 0")
	case cfg.ReplicationFactor <= 0:
		return errors.InvalidParam("replication factor must be > 0")
	}

	kCfg := kafka.TopicConfig{
		Topic:             cfg.Name,
		NumPartitions:     cfg.NumPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}
	if cfg.RetentionMs > 0 {
		kCfg.ConfigEntries = append(kCfg.ConfigEntries, kafka.ConfigEntry{ConfigName: "retention.ms", ConfigValue: strconv.FormatInt(cfg.RetentionMs, 10)})
	}
	if cfg.CleanupPolicy != "" {
		kCfg.ConfigEntries = append(kCfg.ConfigEntries, kafka.ConfigEntry{ConfigName: "cleanup.policy", ConfigValue: cfg.CleanupPolicy})
	}

	if err := m.conn.CreateTopics(kCfg); err != nil {
		if stderrors.Is(err, kafka.TopicAlreadyExists) {
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeMessageQueue, "failed to create topic "+cfg.Name)
	}
	m.logger.Info("Topic created", logging.String("topic", cfg.Name))
	return nil
}

func (m *TopicManager) TopicExists(ctx context.Context, name string) (bool, error) {
	partitions, err := m.conn.ReadPartitions(name)
	if err != nil {
		if stderrors.Is(err, kafka.UnknownTopicOrPartition) {
			return false, nil
		}
		return false, errors.Wrap(err, errors.ErrCodeMessageQueue, "failed to read partitions")
	}
	return len(partitions) > 0, nil
}

// ListTopics returns each topic name once.
func (m *TopicManager) ListTopics(ctx context.Context) ([]string, error) {
	partitions, err := m.conn.ReadPartitions()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMessageQueue, "failed to read partitions")
	}
	seen := make(map[string]bool)
	var topics []string
	for _, p := range partitions {
		if !seen[p.Topic] {
			seen[p.Topic] = true
			topics = append(topics, p.Topic)
		}
	}
	return topics, nil
}

func (m *TopicManager) EnsureTopics(ctx context.Context, topics []TopicConfig) error {
	for _, t := range topics {
		if err := m.CreateTopic(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (m *TopicManager) Close() error {
	return m.conn.Close()
}
