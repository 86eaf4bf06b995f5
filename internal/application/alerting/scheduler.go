package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/turtacn/LexAlert/internal/config"
	"github.com/turtacn/LexAlert/internal/infrastructure/database/redis"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/LexAlert/pkg/errors"
)

// DispatchLockName is the mutex held for the duration of a run so that only
// one replica dispatches at a time.
const DispatchLockName = "alert-dispatch"

// ErrDispatchInProgress is returned when another run holds the dispatch lock.
var ErrDispatchInProgress = errors.New(errors.ErrCodeDispatchLocked, "alert dispatch already in progress")

// Runner performs one dispatch run.
type Runner interface {
	Run(ctx context.Context, now time.Time) (*RunReport, error)
}

// SchedulerConfig controls when runs start and how long they may take.
type SchedulerConfig struct {
	CronSpec     string
	LockTTL      time.Duration
	RunTimeout   time.Duration
	RunOnStartup bool
}

func SchedulerConfigFrom(sc config.SchedulerConfig) SchedulerConfig {
	return SchedulerConfig{
		CronSpec:     sc.CronSpec,
		LockTTL:      sc.LockTTL,
		RunTimeout:   sc.RunTimeout,
		RunOnStartup: sc.RunOnStartup,
	}
}

// Scheduler triggers dispatch runs on a cron schedule. Overlapping ticks in
// one process are skipped; across processes a Redis lock keeps runs exclusive.
type Scheduler struct {
	runner  Runner
	locks   redis.LockFactory
	metrics *prometheus.AlertMetrics
	log     logging.Logger
	cfg     SchedulerConfig
	clock   func() time.Time

	cron    *cron.Cron
	mu      sync.Mutex
	started bool
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler validates the cron spec. locks may be nil for single-replica
// deployments.
func NewScheduler(runner Runner, locks redis.LockFactory, metrics *prometheus.AlertMetrics, log logging.Logger, cfg SchedulerConfig) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.InvalidParam("runner is required")
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	if metrics == nil {
		metrics = prometheus.NewNopAlertMetrics()
	}
	if cfg.CronSpec == "" {
		cfg.CronSpec = "0 */15 * * * *"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 10 * time.Minute
	}

	adapter := cronLogger{log: log.Named("cron")}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(adapter),
		cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
	)

	s := &Scheduler{
		runner:  runner,
		locks:   locks,
		metrics: metrics,
		log:     log,
		cfg:     cfg,
		clock:   time.Now,
		cron:    c,
	}
	if _, err := c.AddFunc(cfg.CronSpec, s.tick); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParam, "invalid cron spec "+cfg.CronSpec)
	}
	return s, nil
}

// Start begins the cron loop. It is an error to start twice.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.InvalidState("scheduler already started")
	}
	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	s.started = true
	s.cron.Start()
	s.log.Info("Alert scheduler started", logging.String("cron_spec", s.cfg.CronSpec))

	if s.cfg.RunOnStartup {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tick()
		}()
	}
	return nil
}

// Stop halts the cron loop, cancels an in-flight run and waits for it to
// return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	cancel()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("Alert scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TriggerNow runs a dispatch immediately under the same lock as scheduled
// runs. It returns ErrDispatchInProgress when the lock is held elsewhere.
func (s *Scheduler) TriggerNow(ctx context.Context) (*RunReport, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	if s.locks == nil {
		return s.runner.Run(ctx, s.clock())
	}

	mu := s.locks.NewMutex(DispatchLockName, redis.WithLockTTL(s.cfg.LockTTL), redis.WithWatchdog(true))
	ok, err := mu.TryLock(ctx)
	if err != nil {
		s.metrics.RecordRun(prometheus.OutcomeError, 0, s.clock())
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to acquire dispatch lock")
	}
	if !ok {
		s.metrics.RecordRun(prometheus.OutcomeLocked, 0, s.clock())
		return nil, ErrDispatchInProgress
	}
	defer func() {
		if err := mu.Unlock(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("Failed to release dispatch lock", logging.Err(err))
		}
	}()

	return s.runner.Run(ctx, s.clock())
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	_, err := s.TriggerNow(ctx)
	switch {
	case err == nil:
	case errors.IsCode(err, errors.ErrCodeDispatchLocked):
		s.log.Info("Skipping scheduled dispatch, another run holds the lock")
	default:
		s.log.Error("Scheduled dispatch failed", logging.Err(err))
	}
}

// cronLogger routes cron's internal logging through the service logger.
type cronLogger struct {
	log logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(kvFields(keysAndValues), logging.Err(err))...)
}

func kvFields(kv []interface{}) []logging.Field {
	fields := make([]logging.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, logging.Any(key, kv[i+1]))
	}
	return fields
}
