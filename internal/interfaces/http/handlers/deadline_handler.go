package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	appDeadline "github.com/turtacn/LexAlert/internal/application/deadline"
	"github.com/turtacn/LexAlert/internal/domain/access"
	"github.com/turtacn/LexAlert/internal/domain/deadline"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/pkg/errors"
)

// DeadlineHandler handles HTTP requests for deadline operations.
type DeadlineHandler struct {
	svc    appDeadline.Service
	logger logging.Logger
}

// NewDeadlineHandler creates a new DeadlineHandler.
func NewDeadlineHandler(svc appDeadline.Service, logger logging.Logger) *DeadlineHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &DeadlineHandler{svc: svc, logger: logger.Named("deadline_handler")}
}

type CreateDeadlineRequest struct {
	Title        string  `json:"title"`
	Description  string  `json:"description,omitempty"`
	DeadlineDate string  `json:"deadline_date"`
	ProcessID    *string `json:"process_id,omitempty"`
}

type UpdateDeadlineRequest struct {
	Title        *string `json:"title,omitempty"`
	Description  *string `json:"description,omitempty"`
	DeadlineDate *string `json:"deadline_date,omitempty"`
	ProcessID    *string `json:"process_id,omitempty"`
}

// Routes mounts the deadline endpoints on r.
func (h *DeadlineHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
		r.Post("/complete", h.Complete)
		r.Post("/reopen", h.Reopen)
		r.Post("/acknowledge", h.Acknowledge)
		r.Get("/alerts", h.PreviewAlerts)
	})
}

func (h *DeadlineHandler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize := parsePagination(r)
	q := r.URL.Query()

	input := &appDeadline.ListInput{
		ProcessID: q.Get("process_id"),
		Page:      page,
		PageSize:  pageSize,
	}
	for _, s := range splitList(q["status"]) {
		st := deadline.Status(s)
		if !st.IsValid() {
			writeAppError(w, r, errors.InvalidParam("invalid status filter").WithDetail(s))
			return
		}
		input.Status = append(input.Status, st)
	}
	for _, s := range splitList(q["alert_status"]) {
		as := deadline.AlertStatus(s)
		if !as.IsValid() {
			writeAppError(w, r, errors.InvalidParam("invalid alert_status filter").WithDetail(s))
			return
		}
		input.AlertStatus = append(input.AlertStatus, as)
	}
	var err error
	if input.DueFrom, err = parseInstant(r, "due_from"); err != nil {
		writeAppError(w, r, err)
		return
	}
	if input.DueTo, err = parseInstant(r, "due_to"); err != nil {
		writeAppError(w, r, err)
		return
	}

	result, err := h.svc.List(r.Context(), principal(r), input)
	if err != nil {
		h.logger.Error("failed to list deadlines", logging.Err(err))
		writeAppError(w, r, err)
		return
	}
	writePage(w, r, result.Deadlines, result.Pagination)
}

func (h *DeadlineHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateDeadlineRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	due, err := parseDate("deadline_date", req.DeadlineDate)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	d, err := h.svc.Create(r.Context(), principal(r), &appDeadline.CreateInput{
		Title:        req.Title,
		Description:  req.Description,
		DeadlineDate: due,
		ProcessID:    req.ProcessID,
	})
	if err != nil {
		h.logger.Warn("failed to create deadline", logging.Err(err))
		writeAppError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, d)
}

func (h *DeadlineHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := h.svc.Get(r.Context(), principal(r), id)
	if err != nil {
		h.logger.Debug("failed to get deadline", logging.String("id", id), logging.Err(err))
		writeAppError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, d)
}

func (h *DeadlineHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req UpdateDeadlineRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	input := &appDeadline.UpdateInput{
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
		ProcessID:   req.ProcessID,
	}
	if req.DeadlineDate != nil {
		due, err := parseDate("deadline_date", *req.DeadlineDate)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		input.DeadlineDate = &due
	}

	d, err := h.svc.Update(r.Context(), principal(r), input)
	if err != nil {
		h.logger.Warn("failed to update deadline", logging.String("id", id), logging.Err(err))
		writeAppError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, d)
}

func (h *DeadlineHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Delete(r.Context(), principal(r), id); err != nil {
		h.logger.Warn("failed to delete deadline", logging.String("id", id), logging.Err(err))
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DeadlineHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "complete", h.svc.Complete)
}

func (h *DeadlineHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "reopen", h.svc.Reopen)
}

func (h *DeadlineHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "acknowledge", h.svc.Acknowledge)
}

// PreviewAlerts returns the alert plan for ?at= (default now) without
// persisting anything.
func (h *DeadlineHandler) PreviewAlerts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	at, err := parseInstant(r, "at")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	var instant time.Time
	if at != nil {
		instant = *at
	}

	preview, err := h.svc.PreviewAlerts(r.Context(), principal(r), id, instant)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, preview)
}

type transitionFunc func(ctx context.Context, p access.Principal, id string) (*deadline.Deadline, error)

func (h *DeadlineHandler) transition(w http.ResponseWriter, r *http.Request, action string, fn transitionFunc) {
	id := chi.URLParam(r, "id")
	d, err := fn(r.Context(), principal(r), id)
	if err != nil {
		h.logger.Warn("deadline transition failed",
			logging.String("action", action),
			logging.String("id", id),
			logging.Err(err))
		writeAppError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, d)
}

// parseDate accepts a full ISO-8601 instant or a bare YYYY-MM-DD date.
func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.InvalidParam(field + " is required")
	}
	t, err := deadline.ParseInstant(raw)
	if err != nil {
		return time.Time{}, errors.InvalidParam("invalid " + field + ": expected ISO-8601").WithCause(err)
	}
	return t, nil
}

// splitList flattens repeated and comma-separated query values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
