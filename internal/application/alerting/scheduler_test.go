package alerting

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LexAlert/internal/config"
	"github.com/turtacn/LexAlert/internal/infrastructure/database/redis"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/pkg/errors"
)

func newLockFactory(t *testing.T) redis.LockFactory {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redis.NewClient(&redis.RedisConfig{Addr: mr.Addr()}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return redis.NewLockFactory(client, logging.NewNopLogger())
}

func TestNewScheduler_Defaults(t *testing.T) {
	s, err := NewScheduler(new(mockRunner), nil, nil, nil, SchedulerConfig{})
	require.NoError(t, err)
	assert.Equal(t, "0 */15 * * * *", s.cfg.CronSpec)
	assert.Equal(t, 10*time.Minute, s.cfg.LockTTL)
	assert.Equal(t, 10*time.Minute, s.cfg.RunTimeout)
}

func TestNewScheduler_InvalidSpec(t *testing.T) {
	_, err := NewScheduler(new(mockRunner), nil, nil, nil, SchedulerConfig{CronSpec: "every now and then"})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	_, err = NewScheduler(nil, nil, nil, nil, SchedulerConfig{})
	assert.True(t, errors.IsValidation(err))
}

func TestSchedulerConfigFrom(t *testing.T) {
	sc := config.NewDefaultConfig().Scheduler
	cfg := SchedulerConfigFrom(sc)
	assert.Equal(t, sc.CronSpec, cfg.CronSpec)
	assert.Equal(t, sc.LockTTL, cfg.LockTTL)
	assert.Equal(t, sc.RunOnStartup, cfg.RunOnStartup)
}

func TestScheduler_TriggerNow_WithoutLock(t *testing.T) {
	runner := new(mockRunner)
	want := &RunReport{Scanned: 4}
	runner.On("Run", mock.Anything, mock.AnythingOfType("time.Time")).Return(want, nil).Once()

	s, err := NewScheduler(runner, nil, nil, nil, SchedulerConfig{})
	require.NoError(t, err)

	got, err := s.TriggerNow(context.Background())
	require.NoError(t, err)
	assert.Same(t, want, got)
	runner.AssertExpectations(t)
}

func TestScheduler_TriggerNow_LockReleasedAfterRun(t *testing.T) {
	runner := new(mockRunner)
	runner.On("Run", mock.Anything, mock.Anything).Return(&RunReport{}, nil).Twice()

	s, err := NewScheduler(runner, newLockFactory(t), nil, nil, SchedulerConfig{})
	require.NoError(t, err)

	_, err = s.TriggerNow(context.Background())
	require.NoError(t, err)
	_, err = s.TriggerNow(context.Background())
	require.NoError(t, err)
	runner.AssertExpectations(t)
}

func TestScheduler_TriggerNow_Contended(t *testing.T) {
	locks := newLockFactory(t)
	other := locks.NewMutex(DispatchLockName, redis.WithLockTTL(time.Minute))
	ok, err := other.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	runner := new(mockRunner)
	s, err := NewScheduler(runner, locks, nil, nil, SchedulerConfig{})
	require.NoError(t, err)

	report, err := s.TriggerNow(context.Background())
	assert.Nil(t, report)
	assert.ErrorIs(t, err, ErrDispatchInProgress)
	assert.True(t, errors.IsConflict(err))
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)

	require.NoError(t, other.Unlock(context.Background()))
	runner.On("Run", mock.Anything, mock.Anything).Return(&RunReport{}, nil).Once()
	_, err = s.TriggerNow(context.Background())
	assert.NoError(t, err)
}

func TestScheduler_TriggerNow_AppliesRunTimeout(t *testing.T) {
	runner := new(mockRunner)
	runner.On("Run", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), mock.Anything).Return(&RunReport{}, nil).Once()

	s, err := NewScheduler(runner, nil, nil, nil, SchedulerConfig{RunTimeout: time.Second})
	require.NoError(t, err)
	_, err = s.TriggerNow(context.Background())
	require.NoError(t, err)
	runner.AssertExpectations(t)
}

func TestScheduler_StartStop(t *testing.T) {
	runner := new(mockRunner)
	ran := make(chan struct{}, 1)
	runner.On("Run", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			select {
			case ran <- struct{}{}:
			default:
			}
		}).
		Return(&RunReport{}, nil)

	s, err := NewScheduler(runner, nil, nil, nil, SchedulerConfig{RunOnStartup: true})
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.Error(t, s.Start())

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("startup run did not happen")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.NoError(t, s.Stop(ctx))
}

func TestKVFields(t *testing.T) {
	fields := kvFields([]interface{}{"entry", 3, 42, "ignored", "dangling"})
	require.Len(t, fields, 1)
	assert.Equal(t, "entry", fields[0].Key)
	assert.Equal(t, 3, fields[0].Value)
}
