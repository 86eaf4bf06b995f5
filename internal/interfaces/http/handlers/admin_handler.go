package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/turtacn/LexAlert/internal/application/alerting"
	"github.com/turtacn/LexAlert/internal/domain/access"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/pkg/errors"
)

// DispatchTrigger runs one dispatch outside the cron schedule.
type DispatchTrigger interface {
	TriggerNow(ctx context.Context) (*alerting.RunReport, error)
}

// AdminHandler exposes operator endpoints.
type AdminHandler struct {
	trigger DispatchTrigger
	policy  access.Policy
	logger  logging.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(trigger DispatchTrigger, policy access.Policy, logger logging.Logger) *AdminHandler {
	if policy == nil {
		policy = access.DenyAllPolicy{}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &AdminHandler{trigger: trigger, policy: policy, logger: logger.Named("admin_handler")}
}

// Routes mounts the admin endpoints on r.
func (h *AdminHandler) Routes(r chi.Router) {
	r.Post("/dispatch", h.Dispatch)
}

// Dispatch handles POST /admin/dispatch. A run already holding the lock
// yields 409.
func (h *AdminHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if p.IsZero() {
		writeAppError(w, r, errors.Unauthorized("authentication required"))
		return
	}
	if !h.policy.CanTriggerDispatch(p) {
		h.logger.Warn("dispatch trigger denied", logging.String("user_id", p.UserID))
		writeAppError(w, r, errors.Forbidden("dispatch requires admin rights"))
		return
	}
	if h.trigger == nil {
		writeAppError(w, r, errors.New(errors.ErrCodeServiceUnavailable, "dispatch is not configured"))
		return
	}

	report, err := h.trigger.TriggerNow(r.Context())
	if err != nil {
		h.logger.Warn("manual dispatch failed", logging.String("user_id", p.UserID), logging.Err(err))
		writeAppError(w, r, err)
		return
	}
	h.logger.Info("manual dispatch completed",
		logging.String("user_id", p.UserID),
		logging.Int("scanned", report.Scanned),
		logging.Duration("duration", report.Duration()))
	writeData(w, r, http.StatusOK, report)
}
