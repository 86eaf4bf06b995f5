package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LexAlert/internal/application/alerting"
	appDeadline "github.com/turtacn/LexAlert/internal/application/deadline"
	appNotification "github.com/turtacn/LexAlert/internal/application/notification"
	"github.com/turtacn/LexAlert/internal/domain/access"
	"github.com/turtacn/LexAlert/internal/domain/deadline"
	domainNotification "github.com/turtacn/LexAlert/internal/domain/notification"
	"github.com/turtacn/LexAlert/internal/interfaces/http/middleware"
)

// ─────────────────────────────────────────────────────────────────────────────
// Mock services
// ─────────────────────────────────────────────────────────────────────────────

type mockDeadlineService struct {
	mock.Mock
}

func (m *mockDeadlineService) Create(ctx context.Context, p access.Principal, input *appDeadline.CreateInput) (*deadline.Deadline, error) {
	args := m.Called(ctx, p, input)
	d, _ := args.Get(0).(*deadline.Deadline)
	return d, args.Error(1)
}

func (m *mockDeadlineService) Get(ctx context.Context, p access.Principal, id string) (*deadline.Deadline, error) {
	args := m.Called(ctx, p, id)
	d, _ := args.Get(0).(*deadline.Deadline)
	return d, args.Error(1)
}

func (m *mockDeadlineService) List(ctx context.Context, p access.Principal, input *appDeadline.ListInput) (*appDeadline.ListResult, error) {
	args := m.Called(ctx, p, input)
	r, _ := args.Get(0).(*appDeadline.ListResult)
	return r, args.Error(1)
}

func (m *mockDeadlineService) Update(ctx context.Context, p access.Principal, input *appDeadline.UpdateInput) (*deadline.Deadline, error) {
	args := m.Called(ctx, p, input)
	d, _ := args.Get(0).(*deadline.Deadline)
	return d, args.Error(1)
}

func (m *mockDeadlineService) Complete(ctx context.Context, p access.Principal, id string) (*deadline.Deadline, error) {
	args := m.Called(ctx, p, id)
	d, _ := args.Get(0).(*deadline.Deadline)
	return d, args.Error(1)
}

func (m *mockDeadlineService) Reopen(ctx context.Context, p access.Principal, id string) (*deadline.Deadline, error) {
	args := m.Called(ctx, p, id)
	d, _ := args.Get(0).(*deadline.Deadline)
	return d, args.Error(1)
}

func (m *mockDeadlineService) Acknowledge(ctx context.Context, p access.Principal, id string) (*deadline.Deadline, error) {
	args := m.Called(ctx, p, id)
	d, _ := args.Get(0).(*deadline.Deadline)
	return d, args.Error(1)
}

func (m *mockDeadlineService) Delete(ctx context.Context, p access.Principal, id string) error {
	return m.Called(ctx, p, id).Error(0)
}

func (m *mockDeadlineService) PreviewAlerts(ctx context.Context, p access.Principal, id string, at time.Time) (*appDeadline.AlertPreview, error) {
	args := m.Called(ctx, p, id, at)
	r, _ := args.Get(0).(*appDeadline.AlertPreview)
	return r, args.Error(1)
}

type mockNotificationService struct {
	mock.Mock
}

func (m *mockNotificationService) List(ctx context.Context, p access.Principal, input *appNotification.ListInput) (*appNotification.ListResult, error) {
	args := m.Called(ctx, p, input)
	r, _ := args.Get(0).(*appNotification.ListResult)
	return r, args.Error(1)
}

func (m *mockNotificationService) ListModal(ctx context.Context, p access.Principal) ([]*domainNotification.Notification, error) {
	args := m.Called(ctx, p)
	r, _ := args.Get(0).([]*domainNotification.Notification)
	return r, args.Error(1)
}

func (m *mockNotificationService) MarkRead(ctx context.Context, p access.Principal, id string) error {
	return m.Called(ctx, p, id).Error(0)
}

type mockTrigger struct {
	mock.Mock
}

func (m *mockTrigger) TriggerNow(ctx context.Context) (*alerting.RunReport, error) {
	args := m.Called(ctx)
	r, _ := args.Get(0).(*alerting.RunReport)
	return r, args.Error(1)
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

var alice = access.Principal{UserID: "user-1", Email: "alice@example.com"}

// serve routes req through a chi router so URL params resolve, with p
// injected the way the auth middleware would.
func serve(t *testing.T, mount func(chi.Router), p access.Principal, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !p.IsZero() {
				req = req.WithContext(middleware.WithPrincipal(req.Context(), p))
			}
			next.ServeHTTP(w, req)
		})
	})
	mount(r)

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Pagination *struct {
		Page     int   `json:"page"`
		PageSize int   `json:"page_size"`
		Total    int64 `json:"total"`
	} `json:"pagination"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}
