package email

import (
	"context"
	"time"

	"github.com/turtacn/LexAlert/internal/domain/notification"
	"github.com/turtacn/LexAlert/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/pkg/errors"
	"github.com/turtacn/LexAlert/pkg/types/common"
)

// EventPublisher is the part of kafka.Producer the queue sender uses.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, key string, env *kafka.EventEnvelope) error
}

// KafkaSender enqueues emails on the notification topic, keyed by deadline so
// one deadline's emails stay ordered on a partition.
type KafkaSender struct {
	publisher EventPublisher
	logger    logging.Logger
	now       func() time.Time
}

func NewKafkaSender(p EventPublisher, log logging.Logger) *KafkaSender {
	return &KafkaSender{publisher: p, logger: log, now: time.Now}
}

func (k *KafkaSender) Send(ctx context.Context, e notification.Email) error {
	if err := validate(e); err != nil {
		return err
	}
	env, err := kafka.NewEventEnvelope(kafka.EventTypeEmailQueued, kafka.EmailPayload{Email: e, QueuedAt: k.now().UTC()})
	if err != nil {
		return err
	}
	if err := k.publisher.PublishEvent(ctx, kafka.TopicNotificationEmail, e.DeadlineID, env); err != nil {
		return errors.Wrap(err, errors.ErrCodeAlertDeliveryFailed, "failed to enqueue email")
	}
	k.logger.Debug("Alert email queued", logging.String("dedupe_key", e.DedupeKey))
	return nil
}

// QueueHandler returns the consumer handler that delivers queued emails with
// sender. Malformed events are logged and skipped since redelivery cannot fix
// them; send failures are returned so the consumer retries.
func QueueHandler(sender Sender, log logging.Logger) common.MessageHandler {
	return func(ctx context.Context, msg *common.Message) error {
		env, err := kafka.EnvelopeFromMessage(msg)
		if err != nil {
			log.Warn("Skipping malformed email event", logging.Int64("offset", msg.Offset), logging.Err(err))
			return nil
		}
		if env.EventType != kafka.EventTypeEmailQueued {
			log.Warn("Skipping unexpected event type", logging.String("event_type", env.EventType))
			return nil
		}
		var payload kafka.EmailPayload
		if err := env.DecodePayload(&payload); err != nil {
			log.Warn("Skipping undecodable email payload", logging.String("event_id", env.EventID), logging.Err(err))
			return nil
		}
		if err := sender.Send(ctx, payload.Email); err != nil {
			if errors.IsValidation(err) {
				log.Warn("Skipping invalid queued email", logging.String("event_id", env.EventID), logging.Err(err))
				return nil
			}
			return err
		}
		return nil
	}
}
