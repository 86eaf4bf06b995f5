package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LexAlert/internal/application/alerting"
	"github.com/turtacn/LexAlert/internal/domain/access"
	"github.com/turtacn/LexAlert/pkg/errors"
)

func adminRoutes(trigger DispatchTrigger) func(chi.Router) {
	h := NewAdminHandler(trigger, access.NewAllowListPolicy([]string{"ops@example.com"}), nil)
	return func(r chi.Router) { r.Route("/admin", h.Routes) }
}

var operator = access.Principal{UserID: "user-ops", Email: "ops@example.com"}

func TestAdminHandler_Dispatch(t *testing.T) {
	started := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	trigger := new(mockTrigger)
	trigger.On("TriggerNow", mock.Anything).Return(&alerting.RunReport{
		Scanned:      4,
		InAppCreated: 2,
		StartedAt:    started,
		FinishedAt:   started.Add(time.Second),
	}, nil)

	w := serve(t, adminRoutes(trigger), operator, http.MethodPost, "/admin/dispatch", "")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report alerting.RunReport
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &report))
	assert.Equal(t, 4, report.Scanned)
	assert.Equal(t, 2, report.InAppCreated)
}

func TestAdminHandler_Dispatch_NotAdmin(t *testing.T) {
	trigger := new(mockTrigger)
	w := serve(t, adminRoutes(trigger), alice, http.MethodPost, "/admin/dispatch", "")

	assert.Equal(t, http.StatusForbidden, w.Code)
	trigger.AssertNotCalled(t, "TriggerNow", mock.Anything)
}

func TestAdminHandler_Dispatch_Unauthenticated(t *testing.T) {
	trigger := new(mockTrigger)
	w := serve(t, adminRoutes(trigger), access.Principal{}, http.MethodPost, "/admin/dispatch", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminHandler_Dispatch_Locked(t *testing.T) {
	trigger := new(mockTrigger)
	trigger.On("TriggerNow", mock.Anything).Return(nil, alerting.ErrDispatchInProgress)

	w := serve(t, adminRoutes(trigger), operator, http.MethodPost, "/admin/dispatch", "")

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, errors.ErrCodeDispatchLocked.String(), decode(t, w).Error.Code)
}

func TestAdminHandler_Dispatch_NotConfigured(t *testing.T) {
	w := serve(t, adminRoutes(nil), operator, http.MethodPost, "/admin/dispatch", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
