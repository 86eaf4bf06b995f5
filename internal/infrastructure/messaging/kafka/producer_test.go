package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LexAlert/internal/config"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/LexAlert/pkg/errors"
	"github.com/turtacn/LexAlert/pkg/types/common"
)

type mockKafkaWriter struct {
	mu        sync.Mutex
	written   []kafka.Message
	writeFunc func(ctx context.Context, msgs ...kafka.Message) error
	closed    bool
}

func (m *mockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeFunc != nil {
		if err := m.writeFunc(ctx, msgs...); err != nil {
			return err
		}
	}
	m.written = append(m.written, msgs...)
	return nil
}

func (m *mockKafkaWriter) Close() error {
	m.closed = true
	return nil
}

func (m *mockKafkaWriter) Stats() kafka.WriterStats { return kafka.WriterStats{} }

func newTestProducer(w WriterInterface) *Producer {
	return NewProducerWithWriter(w, ProducerConfig{Brokers: []string{"localhost:9092"}}, logging.NewNopLogger())
}

func testMessage(topic, key, value string) *common.ProducerMessage {
	return &common.ProducerMessage{Topic: topic, Key: []byte(key), Value: []byte(value)}
}

func TestValidateProducerConfig(t *testing.T) {
	assert.NoError(t, ValidateProducerConfig(ProducerConfig{Brokers: []string{"b:9092"}, RequiredAcks: -1}))
	assert.Error(t, ValidateProducerConfig(ProducerConfig{}))
	assert.Error(t, ValidateProducerConfig(ProducerConfig{Brokers: []string{"b"}, MaxRetries: -1}))
	assert.Error(t, ValidateProducerConfig(ProducerConfig{Brokers: []string{"b"}, RequiredAcks: 2}))
}

func TestProducerConfigFrom(t *testing.T) {
	kc := config.NewDefaultConfig().Kafka
	pc := ProducerConfigFrom(kc)
	assert.Equal(t, kc.Brokers, pc.Brokers)
	assert.Equal(t, kc.ProducerRetries, pc.MaxRetries)
	assert.Equal(t, kc.RequiredAcks, pc.RequiredAcks)
	assert.NoError(t, ValidateProducerConfig(pc))
}

func TestPublish_Success(t *testing.T) {
	w := &mockKafkaWriter{}
	p := newTestProducer(w)

	require.NoError(t, p.Publish(context.Background(), testMessage(TopicAlertPlanned, "d-1", "v")))
	require.Len(t, w.written, 1)
	assert.Equal(t, TopicAlertPlanned, w.written[0].Topic)
	assert.Equal(t, "d-1", string(w.written[0].Key))
	assert.False(t, w.written[0].Time.IsZero())

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.MessagesSent)
	assert.Equal(t, int64(1), stats.BytesSent)
	assert.False(t, stats.LastSentAt.IsZero())
}

func TestPublish_Validation(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{})
	ctx := context.Background()

	assert.True(t, pkgerrors.IsValidation(p.Publish(ctx, testMessage("", "k", "v"))))
	assert.True(t, pkgerrors.IsValidation(p.Publish(ctx, testMessage("t", "k", ""))))
	big := make([]byte, 2*1024*1024)
	assert.True(t, pkgerrors.IsValidation(p.Publish(ctx, &common.ProducerMessage{Topic: "t", Value: big})))
}

func TestPublish_Failure(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{writeFunc: func(context.Context, ...kafka.Message) error {
		return errors.New("broker down")
	}})

	err := p.Publish(context.Background(), testMessage("t", "k", "v"))
	assert.ErrorIs(t, err, ErrPublishFailed)
	assert.Equal(t, int64(1), p.Stats().MessagesFailed)
}

func TestPublishEvent_Headers(t *testing.T) {
	w := &mockKafkaWriter{}
	p := newTestProducer(w)

	env, err := NewEventEnvelope(EventTypeAlertPlanned, map[string]string{"deadline_id": "d-1"})
	require.NoError(t, err)
	require.NoError(t, p.PublishEvent(context.Background(), TopicAlertPlanned, "d-1", env))

	require.Len(t, w.written, 1)
	headers := map[string]string{}
	for _, h := range w.written[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, EventTypeAlertPlanned, headers["event_type"])
	assert.Equal(t, env.EventID, headers["event_id"])
	assert.Equal(t, "d-1", string(w.written[0].Key))
}

func TestPublishBatch_PartialFailure(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{writeFunc: func(_ context.Context, msgs ...kafka.Message) error {
		errs := make(kafka.WriteErrors, len(msgs))
		errs[1] = errors.New("fail")
		return errs
	}})

	res, err := p.PublishBatch(context.Background(), []*common.ProducerMessage{
		testMessage("t", "1", "1"),
		testMessage("t", "2", "2"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Contains(t, res.Errors, 1)
}

func TestPublishBatch_WholeBatchFailure(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{writeFunc: func(context.Context, ...kafka.Message) error {
		return errors.New("timeout")
	}})

	res, err := p.PublishBatch(context.Background(), []*common.ProducerMessage{testMessage("t", "1", "1")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Contains(t, res.Errors, -1)
}

func TestPublishBatch_Empty(t *testing.T) {
	_, err := newTestProducer(&mockKafkaWriter{}).PublishBatch(context.Background(), nil)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestProducer_Close(t *testing.T) {
	w := &mockKafkaWriter{}
	p := newTestProducer(w)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
	assert.Equal(t, ErrProducerClosed, p.Publish(context.Background(), testMessage("t", "k", "v")))
}

func TestToKafkaMessage_KeepsTimestamp(t *testing.T) {
	ts := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	m := toKafkaMessage(&common.ProducerMessage{Topic: "t", Value: []byte("v"), Timestamp: ts, Headers: map[string]string{"a": "b"}})
	assert.Equal(t, ts, m.Time)
	require.Len(t, m.Headers, 1)
	assert.Equal(t, "a", m.Headers[0].Key)
}
