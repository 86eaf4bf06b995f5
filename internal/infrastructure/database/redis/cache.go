package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/pkg/errors"
)

var (
	ErrCacheMiss           = errors.New(errors.ErrCodeNotFound, "cache miss")
	ErrSerializationFailed = errors.New(errors.ErrCodeSerialization, "serialization failed")
)

const nullSentinel = "__null__"

// Cache is a JSON read-through cache over Redis.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	// GetOrSet loads on miss through loader, collapsing concurrent misses for
	// the same key into one call. A nil loader result is cached briefly and
	// reported as ErrCacheMiss.
	GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) error
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
	Ping(ctx context.Context) error
}

type Serializer interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

type jsonSerializer struct{}

func (s *jsonSerializer) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (s *jsonSerializer) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

type redisCache struct {
	client       *Client
	logger       logging.Logger
	prefix       string
	defaultTTL   time.Duration
	serializer   Serializer
	nullCacheTTL time.Duration
	jitter       bool
	singleflight singleflight.Group
}

type CacheOption func(*redisCache)

func WithPrefix(prefix string) CacheOption {
	return func(c *redisCache) { c.prefix = prefix }
}

func WithDefaultTTL(ttl time.Duration) CacheOption {
	return func(c *redisCache) { c.defaultTTL = ttl }
}

func WithSerializer(s Serializer) CacheOption {
	return func(c *redisCache) { c.serializer = s }
}

func WithNullCacheTTL(ttl time.Duration) CacheOption {
	return func(c *redisCache) { c.nullCacheTTL = ttl }
}

// WithJitter toggles the ±10% TTL jitter. Tests disable it to match exact TTLs.
func WithJitter(enabled bool) CacheOption {
	return func(c *redisCache) { c.jitter = enabled }
}

func NewRedisCache(client *Client, log logging.Logger, opts ...CacheOption) Cache {
	c := &redisCache{
		client:       client,
		logger:       log,
		prefix:       "lexalert:cache:",
		defaultTTL:   5 * time.Minute,
		serializer:   &jsonSerializer{},
		nullCacheTTL: 30 * time.Second,
		jitter:       true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *redisCache) fullKey(key string) string {
	return c.prefix + key
}

func (c *redisCache) jitterTTL(ttl time.Duration) time.Duration {
	if ttl == 0 || !c.jitter {
		return ttl
	}
	jitter := float64(ttl) * 0.1 * (rand.Float64()*2 - 1)
	return ttl + time.Duration(jitter)
}

func (c *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, c.fullKey(key)).Bytes()
	if err == redis.Nil {
		return ErrCacheMiss
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to get from cache")
	}
	if string(data) == nullSentinel {
		return ErrCacheMiss
	}
	if err := c.serializer.Unmarshal(data, dest); err != nil {
		return ErrSerializationFailed.WithCause(err)
	}
	return nil
}

func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	data, err := c.serializer.Marshal(value)
	if err != nil {
		return ErrSerializationFailed.WithCause(err)
	}
	if err := c.client.Set(ctx, c.fullKey(key), data, c.jitterTTL(ttl)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to set cache")
	}
	return nil
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	fullKeys := make([]string, len(keys))
	for i, k := range keys {
		fullKeys[i] = c.fullKey(k)
	}
	if err := c.client.Del(ctx, fullKeys...).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to delete from cache")
	}
	return nil
}

func (c *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	val, err := c.client.Exists(ctx, c.fullKey(key)).Result()
	return val > 0, err
}

func (c *redisCache) GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) error {
	err := c.Get(ctx, key, dest)
	if err == nil {
		return nil
	}
	if !stderrors.Is(err, ErrCacheMiss) {
		c.logger.Warn("Cache read failed, falling back to loader", logging.String("key", key), logging.Err(err))
	}

	val, err, _ := c.singleflight.Do(key, func() (interface{}, error) {
		v, loadErr := loader(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		if v == nil {
			c.client.Set(ctx, c.fullKey(key), nullSentinel, c.nullCacheTTL)
			return nil, nil
		}
		if setErr := c.Set(ctx, key, v, ttl); setErr != nil {
			c.logger.Warn("Failed to set cache in GetOrSet", logging.Err(setErr))
		}
		return v, nil
	})
	if err != nil {
		return err
	}
	if val == nil {
		return ErrCacheMiss
	}

	data, err := c.serializer.Marshal(val)
	if err != nil {
		return ErrSerializationFailed.WithCause(err)
	}
	return c.serializer.Unmarshal(data, dest)
}

func (c *redisCache) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	var deleted int64
	var cursor uint64
	match := c.fullKey(prefix) + "*"
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return deleted, err
			}
			deleted += int64(len(keys))
		}
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}

func (c *redisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}
