package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/LexAlert/internal/domain/notification"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/pkg/errors"
)

const (
	claimKeyPrefix = "lexalert:email:claim:"
	claimPending   = "pending"
	claimSent      = "sent"
)

// deliveryLog claims email dedupe keys with SETNX. When a durable ledger is
// attached, keys already recorded there are never re-claimed, even after the
// Redis key has expired or been evicted.
type deliveryLog struct {
	client *Client
	ledger notification.DeliveryLedger
	logger logging.Logger
}

// NewDeliveryLog builds the Redis claim store. ledger may be nil.
func NewDeliveryLog(client *Client, ledger notification.DeliveryLedger, log logging.Logger) notification.DeliveryLog {
	return &deliveryLog{client: client, ledger: ledger, logger: log}
}

func (d *deliveryLog) Claim(ctx context.Context, dedupeKey string, ttl time.Duration) (bool, error) {
	if d.ledger != nil {
		sent, err := d.ledger.Exists(ctx, dedupeKey)
		if err != nil {
			return false, err
		}
		if sent {
			return false, nil
		}
	}

	ok, err := d.client.SetNX(ctx, claimKey(dedupeKey), claimPending, ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to claim email delivery")
	}
	return ok, nil
}

func (d *deliveryLog) Confirm(ctx context.Context, delivery *notification.EmailDelivery) error {
	if err := d.client.Set(ctx, claimKey(delivery.DedupeKey), claimSent, redis.KeepTTL).Err(); err != nil {
		d.logger.Warn("Failed to mark email claim as sent",
			logging.String("dedupe_key", delivery.DedupeKey), logging.Err(err))
	}
	if d.ledger == nil {
		return nil
	}
	if _, err := d.ledger.Record(ctx, delivery); err != nil {
		return err
	}
	return nil
}

func (d *deliveryLog) Release(ctx context.Context, dedupeKey string) error {
	if err := d.client.Del(ctx, claimKey(dedupeKey)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to release email claim")
	}
	return nil
}

func claimKey(dedupeKey string) string {
	return claimKeyPrefix + dedupeKey
}
