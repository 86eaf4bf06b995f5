// Package alerting runs the periodic alert dispatch: it evaluates every
// active deadline, writes back the derived alert status and turns alert plans
// into deduplicated in-app notifications, emails and bus events.
package alerting

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/LexAlert/internal/config"
	"github.com/turtacn/LexAlert/internal/domain/deadline"
	"github.com/turtacn/LexAlert/internal/domain/notification"
	"github.com/turtacn/LexAlert/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/LexAlert/pkg/errors"
)

// EmailSender hands an alert email off for delivery.
type EmailSender interface {
	Send(ctx context.Context, e notification.Email) error
}

// EventPublisher publishes envelopes to the bus.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, key string, env *kafka.EventEnvelope) error
}

// Error stages, used as log fields and metric labels.
const (
	stageStatusUpdate = "status_update"
	stageInApp        = "in_app"
	stageEmailClaim   = "email_claim"
	stageRecipient    = "recipient"
	stagePublish      = "publish"
)

// DispatcherConfig tunes a dispatch run.
type DispatcherConfig struct {
	BatchSize     int
	Concurrency   int
	EmailClaimTTL time.Duration
	PublishEvents bool

	// DeliveryStatus is recorded in the ledger after a successful hand-off:
	// sent for inline SMTP, queued when the sender enqueues for the worker.
	DeliveryStatus notification.DeliveryStatus
}

// Deps are the collaborators of a Dispatcher. Sender and Events are optional;
// without a sender no emails are claimed or sent.
type Deps struct {
	Deadlines     deadline.Repository
	Notifications notification.Repository
	Deliveries    notification.DeliveryLog
	Contacts      notification.ContactDirectory
	Sender        EmailSender
	Events        EventPublisher
	Metrics       *prometheus.AlertMetrics
	Logger        logging.Logger
}

// RunReport summarizes one dispatch run.
type RunReport struct {
	Scanned        int       `json:"scanned"`
	StatusUpdated  int       `json:"status_updated"`
	PlansBuilt     int       `json:"plans_built"`
	InAppCreated   int       `json:"in_app_created"`
	InAppDuplicate int       `json:"in_app_duplicate"`
	EmailsSent     int       `json:"emails_sent"`
	EmailsSkipped  int       `json:"emails_skipped"`
	EmailsFailed   int       `json:"emails_failed"`
	Errors         int       `json:"errors"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Duration is the wall time the run took.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

type tally struct {
	scanned        atomic.Int64
	statusUpdated  atomic.Int64
	plans          atomic.Int64
	inAppCreated   atomic.Int64
	inAppDuplicate atomic.Int64
	emailsSent     atomic.Int64
	emailsSkipped  atomic.Int64
	emailsFailed   atomic.Int64
	errs           atomic.Int64
}

func (t *tally) fill(r *RunReport) {
	r.Scanned = int(t.scanned.Load())
	r.StatusUpdated = int(t.statusUpdated.Load())
	r.PlansBuilt = int(t.plans.Load())
	r.InAppCreated = int(t.inAppCreated.Load())
	r.InAppDuplicate = int(t.inAppDuplicate.Load())
	r.EmailsSent = int(t.emailsSent.Load())
	r.EmailsSkipped = int(t.emailsSkipped.Load())
	r.EmailsFailed = int(t.emailsFailed.Load())
	r.Errors = int(t.errs.Load())
}

// Dispatcher evaluates active deadlines and delivers their alerts. The engine
// itself is pure; all side effects are idempotent by dedupe key, so repeated
// or overlapping runs never duplicate an in-app row or an email.
type Dispatcher struct {
	deps  Deps
	cfg   DispatcherConfig
	clock func() time.Time
}

func NewDispatcher(deps Deps, cfg DispatcherConfig) (*Dispatcher, error) {
	if deps.Deadlines == nil || deps.Notifications == nil {
		return nil, errors.InvalidParam("deadline and notification repositories are required")
	}
	if deps.Sender != nil && (deps.Deliveries == nil || deps.Contacts == nil) {
		return nil, errors.InvalidParam("email delivery requires a delivery log and a contact directory")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = prometheus.NewNopAlertMetrics()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.EmailClaimTTL <= 0 {
		cfg.EmailClaimTTL = 48 * time.Hour
	}
	if cfg.DeliveryStatus == "" {
		cfg.DeliveryStatus = notification.DeliverySent
	}
	return &Dispatcher{deps: deps, cfg: cfg, clock: time.Now}, nil
}

// Run evaluates every active deadline at now. Failures on one deadline are
// logged and counted without stopping the run; a listing failure or context
// cancellation ends it early. The report is always returned.
func (d *Dispatcher) Run(ctx context.Context, now time.Time) (*RunReport, error) {
	report := &RunReport{StartedAt: d.clock().UTC()}
	var t tally
	log := d.deps.Logger.With(logging.Time("now", now))

	err := d.scan(ctx, now, &t)

	t.fill(report)
	report.FinishedAt = d.clock().UTC()

	result := prometheus.OutcomeSuccess
	if err != nil {
		result = prometheus.OutcomeError
	}
	d.deps.Metrics.RecordScanned(report.Scanned)
	d.deps.Metrics.RecordRun(result, report.Duration(), report.FinishedAt)

	fields := []logging.Field{
		logging.Int("scanned", report.Scanned),
		logging.Int("status_updated", report.StatusUpdated),
		logging.Int("plans", report.PlansBuilt),
		logging.Int("in_app_created", report.InAppCreated),
		logging.Int("emails_sent", report.EmailsSent),
		logging.Int("emails_failed", report.EmailsFailed),
		logging.Int("errors", report.Errors),
		logging.Duration("duration", report.Duration()),
	}
	if err != nil {
		log.Error("Alert dispatch run aborted", append(fields, logging.Err(err))...)
		return report, err
	}
	log.Info("Alert dispatch run finished", fields...)
	return report, nil
}

func (d *Dispatcher) scan(ctx context.Context, now time.Time, t *tally) error {
	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := d.deps.Deadlines.ListActive(ctx, afterID, d.cfg.BatchSize)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list active deadlines")
		}
		if len(batch) == 0 {
			return nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(d.cfg.Concurrency)
		for _, dl := range batch {
			dl := dl
			g.Go(func() error {
				d.process(gctx, dl, now, t)
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if len(batch) < d.cfg.BatchSize {
			return nil
		}
		afterID = batch[len(batch)-1].ID
	}
}

func (d *Dispatcher) process(ctx context.Context, dl *deadline.Deadline, now time.Time, t *tally) {
	t.scanned.Add(1)

	status := deadline.ComputeAlertStatus(*dl, now)
	if status != dl.AlertStatus {
		if err := d.deps.Deadlines.UpdateAlertStatus(ctx, dl.ID, status); err != nil {
			d.fail(t, stageStatusUpdate, dl.ID, err)
		} else {
			t.statusUpdated.Add(1)
			d.deps.Metrics.RecordStatusUpdate(string(status))
		}
	}

	for _, p := range deadline.BuildAlertPlan(*dl, now) {
		t.plans.Add(1)
		d.deps.Metrics.RecordPlan(string(p.Rule), string(p.Severity))

		created, err := d.deps.Notifications.InsertIfAbsent(ctx, notification.FromPlan(p, now))
		switch {
		case err != nil:
			d.fail(t, stageInApp, dl.ID, err)
		case created:
			t.inAppCreated.Add(1)
			d.deps.Metrics.RecordInApp(prometheus.OutcomeCreated)
		default:
			t.inAppDuplicate.Add(1)
			d.deps.Metrics.RecordInApp(prometheus.OutcomeDuplicate)
		}

		d.deliverEmail(ctx, dl, p, now, t)
		d.publish(ctx, p, created, now, t)
	}
}

func (d *Dispatcher) deliverEmail(ctx context.Context, dl *deadline.Deadline, p deadline.AlertPlan, now time.Time, t *tally) {
	if d.deps.Sender == nil {
		return
	}
	// An acknowledged overdue deadline keeps its in-app banner but stops emailing.
	if p.Rule == deadline.RuleOverdue && dl.IsAcknowledged() {
		d.skipEmail(t)
		return
	}

	claimed, err := d.deps.Deliveries.Claim(ctx, p.DedupeKeyEmail, d.cfg.EmailClaimTTL)
	if err != nil {
		d.fail(t, stageEmailClaim, dl.ID, err)
		return
	}
	if !claimed {
		d.skipEmail(t)
		return
	}

	to, err := d.deps.Contacts.EmailFor(ctx, p.UserID)
	if err != nil {
		d.release(ctx, p.DedupeKeyEmail)
		if errors.IsNotFound(err) {
			d.deps.Logger.Warn("No email address on file, skipping alert email",
				logging.String("user_id", p.UserID), logging.String("deadline_id", dl.ID))
			d.skipEmail(t)
			return
		}
		d.fail(t, stageRecipient, dl.ID, err)
		return
	}

	e := notification.EmailFromPlan(p, to)
	if err := d.deps.Sender.Send(ctx, e); err != nil {
		d.release(ctx, p.DedupeKeyEmail)
		t.emailsFailed.Add(1)
		d.deps.Metrics.RecordEmail(prometheus.OutcomeFailed)
		d.deps.Logger.Error("Alert email send failed",
			logging.String("deadline_id", dl.ID),
			logging.String("dedupe_key", p.DedupeKeyEmail),
			logging.Err(err))
		return
	}

	if err := d.deps.Deliveries.Confirm(ctx, e.Delivery(d.cfg.DeliveryStatus, now)); err != nil {
		d.deps.Logger.Warn("Failed to record email delivery",
			logging.String("dedupe_key", p.DedupeKeyEmail), logging.Err(err))
	}
	t.emailsSent.Add(1)
	d.deps.Metrics.RecordEmail(prometheus.OutcomeSent)
}

func (d *Dispatcher) publish(ctx context.Context, p deadline.AlertPlan, inAppCreated bool, now time.Time, t *tally) {
	if d.deps.Events == nil || !d.cfg.PublishEvents {
		return
	}
	env, err := kafka.NewEventEnvelope(kafka.EventTypeAlertPlanned, kafka.AlertPlannedFrom(p, inAppCreated, now))
	if err == nil {
		err = d.deps.Events.PublishEvent(ctx, kafka.TopicAlertPlanned, p.DeadlineID, env)
	}
	if err != nil {
		d.fail(t, stagePublish, p.DeadlineID, err)
	}
}

func (d *Dispatcher) release(ctx context.Context, key string) {
	if err := d.deps.Deliveries.Release(context.WithoutCancel(ctx), key); err != nil {
		d.deps.Logger.Warn("Failed to release email claim", logging.String("dedupe_key", key), logging.Err(err))
	}
}

func (d *Dispatcher) skipEmail(t *tally) {
	t.emailsSkipped.Add(1)
	d.deps.Metrics.RecordEmail(prometheus.OutcomeSkipped)
}

func (d *Dispatcher) fail(t *tally, stage, deadlineID string, err error) {
	t.errs.Add(1)
	d.deps.Metrics.RecordDispatchError(stage)
	d.deps.Logger.Error("Alert dispatch step failed",
		logging.String("stage", stage),
		logging.String("deadline_id", deadlineID),
		logging.Err(err))
}

// DispatcherConfigFrom maps the scheduler section and the configured email
// delivery mode onto a DispatcherConfig.
func DispatcherConfigFrom(sc config.SchedulerConfig, delivery string) DispatcherConfig {
	status := notification.DeliverySent
	if delivery == config.DeliveryKafka {
		status = notification.DeliveryQueued
	}
	return DispatcherConfig{
		BatchSize:      sc.BatchSize,
		Concurrency:    sc.Concurrency,
		EmailClaimTTL:  sc.EmailClaimTTL,
		PublishEvents:  sc.PublishEvents,
		DeliveryStatus: status,
	}
}
