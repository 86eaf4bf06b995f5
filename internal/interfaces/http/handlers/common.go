// Package handlers implements the LexAlert REST endpoints.
package handlers

import (
	"encoding/json"
	stdliberrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/LexAlert/internal/domain/access"
	"github.com/turtacn/LexAlert/internal/domain/deadline"
	"github.com/turtacn/LexAlert/internal/interfaces/http/middleware"
	"github.com/turtacn/LexAlert/pkg/errors"
	"github.com/turtacn/LexAlert/pkg/types/common"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// principal extracts the caller set by the auth middleware.
func principal(r *http.Request) access.Principal {
	p, _ := middleware.PrincipalFromContext(r.Context())
	return p
}

// parsePagination extracts page and page_size from query parameters.
func parsePagination(r *http.Request) (int, int) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	return page, size
}

// parseInstant reads an optional ISO-8601 query parameter.
func parseInstant(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	t, err := deadline.ParseInstant(raw)
	if err != nil {
		return nil, errors.InvalidParam("invalid " + name + ": expected ISO-8601").WithCause(err)
	}
	return &t, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.InvalidParam("invalid request body").WithCause(err)
	}
	return nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func writeData[T any](w http.ResponseWriter, r *http.Request, statusCode int, data T) {
	resp := common.NewSuccessResponse(data)
	resp.RequestID = chimw.GetReqID(r.Context())
	writeJSON(w, statusCode, resp)
}

func writePage[T any](w http.ResponseWriter, r *http.Request, data T, p common.Pagination) {
	resp := common.NewPaginatedResponse(data, p)
	resp.RequestID = chimw.GetReqID(r.Context())
	writeJSON(w, http.StatusOK, resp)
}

// writeAppError maps application errors to HTTP status codes. Server-side
// failures are masked.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.GetCode(err)
	status := errors.HTTPStatusForCode(code)
	switch {
	case errors.IsNotFound(err):
		status = http.StatusNotFound
	case errors.IsValidation(err):
		status = http.StatusBadRequest
	case errors.IsUnauthorized(err):
		status = http.StatusUnauthorized
	case errors.IsForbidden(err):
		status = http.StatusForbidden
	case errors.IsConflict(err):
		status = http.StatusConflict
	}

	msg := errors.DefaultMessageForCode(code)
	var ae *errors.AppError
	if stdliberrors.As(err, &ae) {
		msg = ae.Message
	}
	if status >= http.StatusInternalServerError {
		code = errors.ErrCodeInternal
		msg = "internal server error"
	}

	resp := common.NewErrorResponse(code.String(), msg)
	resp.RequestID = chimw.GetReqID(r.Context())
	writeJSON(w, status, resp)
}
