package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/LexAlert/pkg/errors"
)

func TestMutex_Lock_Unlock(t *testing.T) {
	client, _ := newMiniClient(t)
	factory := NewLockFactory(client, logging.NewNopLogger())
	ctx := context.Background()

	lock := factory.NewMutex("alert-dispatch", WithLockTTL(time.Second))
	require.NoError(t, lock.Lock(ctx))

	exists, _ := client.Exists(ctx, "lexalert:lock:mutex:alert-dispatch").Result()
	assert.Equal(t, int64(1), exists)

	ttl, err := lock.TTL(ctx)
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, lock.Unlock(ctx))
	exists, _ = client.Exists(ctx, "lexalert:lock:mutex:alert-dispatch").Result()
	assert.Equal(t, int64(0), exists)
}

func TestMutex_Contention(t *testing.T) {
	client, _ := newMiniClient(t)
	factory := NewLockFactory(client, logging.NewNopLogger())
	ctx := context.Background()

	lock1 := factory.NewMutex("alert-dispatch", WithRetryCount(1), WithRetryDelay(10*time.Millisecond))
	lock2 := factory.NewMutex("alert-dispatch", WithRetryCount(1), WithRetryDelay(10*time.Millisecond))

	require.NoError(t, lock1.Lock(ctx))

	err := lock2.Lock(ctx)
	assert.True(t, errors.Is(err, ErrLockNotAcquired))
	assert.True(t, pkgerrors.IsConflict(err))

	ok, err := lock2.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, errors.Is(lock2.Unlock(ctx), ErrLockNotHeld))

	require.NoError(t, lock1.Unlock(ctx))
	require.NoError(t, lock2.Lock(ctx))
}

func TestMutex_Extend(t *testing.T) {
	client, mr := newMiniClient(t)
	factory := NewLockFactory(client, logging.NewNopLogger())
	ctx := context.Background()

	lock := factory.NewMutex("extend-me", WithLockTTL(time.Second))
	require.NoError(t, lock.Lock(ctx))

	ok, err := lock.Extend(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Minute, mr.TTL(BuildLockKey("extend-me")))

	mr.FastForward(2 * time.Minute)
	ok, err = lock.Extend(ctx, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "expired lock cannot be extended")
}

func TestMutex_LockHonoursContext(t *testing.T) {
	client, _ := newMiniClient(t)
	factory := NewLockFactory(client, logging.NewNopLogger())

	holder := factory.NewMutex("busy")
	require.NoError(t, holder.Lock(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	waiter := factory.NewMutex("busy", WithRetryDelay(time.Second))
	assert.ErrorIs(t, waiter.Lock(ctx), context.Canceled)
}

func TestMutex_WatchdogKeepsLockAlive(t *testing.T) {
	client, mr := newMiniClient(t)
	factory := NewLockFactory(client, logging.NewNopLogger())
	ctx := context.Background()

	lock := factory.NewMutex("long-run", WithLockTTL(time.Minute), WithWatchdog(true), WithWatchdogInterval(10*time.Millisecond))
	require.NoError(t, lock.Lock(ctx))

	key := BuildLockKey("long-run")
	mr.SetTTL(key, time.Second)
	assert.Eventually(t, func() bool {
		return mr.TTL(key) == time.Minute
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, lock.Unlock(ctx))
	assert.False(t, mr.Exists(key))
}
