package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appNotification "github.com/turtacn/LexAlert/internal/application/notification"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/pkg/errors"
)

// NotificationHandler serves the in-app alert inbox.
type NotificationHandler struct {
	svc    appNotification.Service
	logger logging.Logger
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(svc appNotification.Service, logger logging.Logger) *NotificationHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &NotificationHandler{svc: svc, logger: logger.Named("notification_handler")}
}

// Routes mounts the inbox endpoints on r.
func (h *NotificationHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/modal", h.ListModal)
	r.Post("/{id}/read", h.MarkRead)
}

// List handles GET /notifications?unread=true&page=&page_size=.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize := parsePagination(r)
	input := &appNotification.ListInput{Page: page, PageSize: pageSize}
	if raw := r.URL.Query().Get("unread"); raw != "" {
		unread, err := strconv.ParseBool(raw)
		if err != nil {
			writeAppError(w, r, errors.InvalidParam("unread must be a boolean").WithDetail(raw))
			return
		}
		input.UnreadOnly = unread
	}

	result, err := h.svc.List(r.Context(), principal(r), input)
	if err != nil {
		h.logger.Error("failed to list notifications", logging.Err(err))
		writeAppError(w, r, err)
		return
	}
	writePage(w, r, result.Notifications, result.Pagination)
}

// ListModal returns the unread notifications that should open a dialog.
func (h *NotificationHandler) ListModal(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListModal(r.Context(), principal(r))
	if err != nil {
		h.logger.Error("failed to list modal notifications", logging.Err(err))
		writeAppError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, items)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.MarkRead(r.Context(), principal(r), id); err != nil {
		h.logger.Debug("failed to mark notification read", logging.String("id", id), logging.Err(err))
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
