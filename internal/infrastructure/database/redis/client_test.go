package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LexAlert/internal/config"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/LexAlert/pkg/errors"
)

func newMiniClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(&RedisConfig{Addr: mr.Addr()}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestNewClient_Success(t *testing.T) {
	client, _ := newMiniClient(t)
	assert.NoError(t, client.HealthCheck(context.Background()))
	assert.NotNil(t, client.PoolStats())
}

func TestNewClient_ConnectionFailed(t *testing.T) {
	client, err := NewClient(&RedisConfig{Addr: "localhost:99999"}, logging.NewNopLogger())
	assert.Error(t, err)
	assert.Nil(t, client)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeCacheError))
}

func TestConfigFrom(t *testing.T) {
	rc := config.NewDefaultConfig().Redis
	rc.DB = 3
	cfg := ConfigFrom(rc)
	assert.Equal(t, rc.Addr, cfg.Addr)
	assert.Equal(t, 3, cfg.DB)
	assert.Equal(t, rc.PoolSize, cfg.PoolSize)
}

func TestClient_Operations(t *testing.T) {
	client, _ := newMiniClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "foo", "bar", 0).Err())
	val, err := client.Get(ctx, "foo").Result()
	require.NoError(t, err)
	assert.Equal(t, "bar", val)

	ok, err := client.SetNX(ctx, "foo", "baz", 0).Result()
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err := client.Del(ctx, "foo").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	exists, err := client.Exists(ctx, "foo").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)
}

func TestClient_Close(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(&RedisConfig{Addr: mr.Addr()}, logging.NewNopLogger())
	require.NoError(t, err)

	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close(), "second close is a no-op")

	assert.Equal(t, ErrClientClosed, client.Get(context.Background(), "foo").Err())
	assert.Equal(t, ErrClientClosed, client.SetNX(context.Background(), "foo", "x", 0).Err())
	assert.Equal(t, ErrClientClosed, client.Ping(context.Background()))
}
