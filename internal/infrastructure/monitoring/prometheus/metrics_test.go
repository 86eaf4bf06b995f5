package prometheus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAlertMetrics_Dispatch(t *testing.T) {
	c := newTestCollector(t)
	m := NewAlertMetrics(c)

	finished := time.Unix(1767225600, 0)
	m.RecordRun(OutcomeSuccess, 1500*time.Millisecond, finished)
	m.RecordScanned(42)
	m.RecordStatusUpdate("urgent")
	m.RecordPlan("DUE_TODAY", "danger")
	m.RecordInApp(OutcomeCreated)
	m.RecordInApp(OutcomeDuplicate)
	m.RecordEmail(OutcomeSent)
	m.RecordEmail(OutcomeFailed)
	m.RecordDispatchError("status_update")

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_dispatch_runs_total{result="success"} 1`)
	assert.Contains(t, out, "test_unit_dispatch_run_duration_seconds_sum 1.5")
	assert.Contains(t, out, "test_unit_dispatch_last_run_timestamp_seconds 1.7672256e+09")
	assert.Contains(t, out, "test_unit_deadlines_scanned_total 42")
	assert.Contains(t, out, `test_unit_alert_status_updates_total{status="urgent"} 1`)
	assert.Contains(t, out, `test_unit_alert_plans_total{rule="DUE_TODAY",severity="danger"} 1`)
	assert.Contains(t, out, `test_unit_inapp_notifications_total{outcome="created"} 1`)
	assert.Contains(t, out, `test_unit_inapp_notifications_total{outcome="duplicate"} 1`)
	assert.Contains(t, out, `test_unit_email_deliveries_total{outcome="failed"} 1`)
	assert.Contains(t, out, `test_unit_dispatch_errors_total{stage="status_update"} 1`)
}

func TestAlertMetrics_HTTP(t *testing.T) {
	c := newTestCollector(t)
	m := NewAlertMetrics(c)

	m.RecordHTTPRequest("GET", "/api/v1/deadlines/{id}", 200, 100*time.Millisecond)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_http_requests_total{method="GET",route="/api/v1/deadlines/{id}",status_code="200"} 1`)
	assert.Contains(t, out, `test_unit_http_request_duration_seconds_count{method="GET",route="/api/v1/deadlines/{id}"} 1`)
}

func TestNopAlertMetrics(t *testing.T) {
	m := NewNopAlertMetrics()
	assert.NotPanics(t, func() {
		m.RecordRun(OutcomeError, time.Second, time.Now())
		m.RecordScanned(1)
		m.RecordPlan("OVERDUE", "danger")
		m.RecordEmail(OutcomeSkipped)
		m.RecordHTTPRequest("POST", "/x", 500, time.Millisecond)
	})
}
