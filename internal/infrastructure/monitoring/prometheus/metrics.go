package prometheus

import (
	"strconv"
	"time"
)

// Outcome label values.
const (
	OutcomeCreated   = "created"
	OutcomeDuplicate = "duplicate"
	OutcomeSent      = "sent"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
	OutcomeSuccess   = "success"
	OutcomeLocked    = "locked"
	OutcomeError     = "error"
)

var (
	DispatchDurationBuckets = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300}
	HTTPDurationBuckets     = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}
)

// AlertMetrics are the dispatch pipeline and API metrics.
type AlertMetrics struct {
	DispatchRunsTotal      CounterVec
	DispatchRunDuration    HistogramVec
	DispatchLastRunSeconds GaugeVec
	DeadlinesScannedTotal  CounterVec
	AlertStatusUpdates     CounterVec
	AlertPlansTotal        CounterVec
	InAppNotifications     CounterVec
	EmailDeliveries        CounterVec
	DispatchErrorsTotal    CounterVec

	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
}

func NewAlertMetrics(c MetricsCollector) *AlertMetrics {
	return &AlertMetrics{
		DispatchRunsTotal:      c.RegisterCounter("dispatch_runs_total", "Alert dispatch runs by result", "result"),
		DispatchRunDuration:    c.RegisterHistogram("dispatch_run_duration_seconds", "Alert dispatch run duration", DispatchDurationBuckets),
		DispatchLastRunSeconds: c.RegisterGauge("dispatch_last_run_timestamp_seconds", "Unix time the last dispatch run finished"),
		DeadlinesScannedTotal:  c.RegisterCounter("deadlines_scanned_total", "Deadlines evaluated by the dispatcher"),
		AlertStatusUpdates:     c.RegisterCounter("alert_status_updates_total", "Derived alert status write-backs", "status"),
		AlertPlansTotal:        c.RegisterCounter("alert_plans_total", "Alert plans built", "rule", "severity"),
		InAppNotifications:     c.RegisterCounter("inapp_notifications_total", "In-app notification inserts", "outcome"),
		EmailDeliveries:        c.RegisterCounter("email_deliveries_total", "Alert email deliveries", "outcome"),
		DispatchErrorsTotal:    c.RegisterCounter("dispatch_errors_total", "Per-deadline dispatch failures", "stage"),

		HTTPRequestsTotal:   c.RegisterCounter("http_requests_total", "HTTP requests", "method", "route", "status_code"),
		HTTPRequestDuration: c.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", HTTPDurationBuckets, "method", "route"),
	}
}

// NewNopAlertMetrics returns metrics that record nothing.
func NewNopAlertMetrics() *AlertMetrics {
	return &AlertMetrics{
		DispatchRunsTotal:      noopCounterVec{},
		DispatchRunDuration:    noopHistogramVec{},
		DispatchLastRunSeconds: noopGaugeVec{},
		DeadlinesScannedTotal:  noopCounterVec{},
		AlertStatusUpdates:     noopCounterVec{},
		AlertPlansTotal:        noopCounterVec{},
		InAppNotifications:     noopCounterVec{},
		EmailDeliveries:        noopCounterVec{},
		DispatchErrorsTotal:    noopCounterVec{},
		HTTPRequestsTotal:      noopCounterVec{},
		HTTPRequestDuration:    noopHistogramVec{},
	}
}

func (m *AlertMetrics) RecordRun(result string, d time.Duration, finishedAt time.Time) {
	m.DispatchRunsTotal.WithLabelValues(result).Inc()
	m.DispatchRunDuration.WithLabelValues().Observe(d.Seconds())
	m.DispatchLastRunSeconds.WithLabelValues().Set(float64(finishedAt.Unix()))
}

func (m *AlertMetrics) RecordScanned(n int) {
	m.DeadlinesScannedTotal.WithLabelValues().Add(float64(n))
}

func (m *AlertMetrics) RecordStatusUpdate(status string) {
	m.AlertStatusUpdates.WithLabelValues(status).Inc()
}

func (m *AlertMetrics) RecordPlan(rule, severity string) {
	m.AlertPlansTotal.WithLabelValues(rule, severity).Inc()
}

func (m *AlertMetrics) RecordInApp(outcome string) {
	m.InAppNotifications.WithLabelValues(outcome).Inc()
}

func (m *AlertMetrics) RecordEmail(outcome string) {
	m.EmailDeliveries.WithLabelValues(outcome).Inc()
}

func (m *AlertMetrics) RecordDispatchError(stage string) {
	m.DispatchErrorsTotal.WithLabelValues(stage).Inc()
}

func (m *AlertMetrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
