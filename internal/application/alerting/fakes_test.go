package alerting

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/turtacn/LexAlert/internal/domain/deadline"
	"github.com/turtacn/LexAlert/internal/domain/notification"
	"github.com/turtacn/LexAlert/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/LexAlert/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// In-memory repositories
// ─────────────────────────────────────────────────────────────────────────────

type memDeadlines struct {
	deadline.Repository // unused methods panic

	mu          sync.Mutex
	items       map[string]*deadline.Deadline
	statusCalls map[string]deadline.AlertStatus
	listCalls   int
	failStatus  map[string]bool
	listErr     error
}

func newMemDeadlines(ds ...*deadline.Deadline) *memDeadlines {
	m := &memDeadlines{
		items:       map[string]*deadline.Deadline{},
		statusCalls: map[string]deadline.AlertStatus{},
		failStatus:  map[string]bool{},
	}
	for _, d := range ds {
		m.items[d.ID] = d
	}
	return m
}

func (m *memDeadlines) ListActive(_ context.Context, afterID string, limit int) ([]*deadline.Deadline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*deadline.Deadline
	for _, d := range m.items {
		if (d.IsCompleted() && d.AlertStatus == deadline.AlertStatusDone) || d.ID <= afterID {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memDeadlines) UpdateAlertStatus(_ context.Context, id string, status deadline.AlertStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failStatus[id] {
		return errors.New(errors.ErrCodeDatabaseError, "update failed")
	}
	m.statusCalls[id] = status
	if d, ok := m.items[id]; ok {
		d.AlertStatus = status
	}
	return nil
}

type memNotifications struct {
	notification.Repository

	mu      sync.Mutex
	byKey   map[string]*notification.Notification
	failFor map[string]bool
}

func newMemNotifications() *memNotifications {
	return &memNotifications{byKey: map[string]*notification.Notification{}, failFor: map[string]bool{}}
}

func (m *memNotifications) InsertIfAbsent(_ context.Context, n *notification.Notification) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[n.DeadlineID] {
		return false, errors.New(errors.ErrCodeDatabaseError, "insert failed")
	}
	if _, ok := m.byKey[n.DedupeKey]; ok {
		return false, nil
	}
	m.byKey[n.DedupeKey] = n
	return true, nil
}

func (m *memNotifications) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byKey)
}

type memDeliveryLog struct {
	mu        sync.Mutex
	claims    map[string]bool
	confirmed map[string]*notification.EmailDelivery
	released  []string
}

func newMemDeliveryLog() *memDeliveryLog {
	return &memDeliveryLog{claims: map[string]bool{}, confirmed: map[string]*notification.EmailDelivery{}}
}

func (m *memDeliveryLog) Claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claims[key] {
		return false, nil
	}
	m.claims[key] = true
	return true, nil
}

func (m *memDeliveryLog) Confirm(_ context.Context, d *notification.EmailDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmed[d.DedupeKey] = d
	return nil
}

func (m *memDeliveryLog) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, key)
	m.released = append(m.released, key)
	return nil
}

type staticContacts map[string]string

func (c staticContacts) Upsert(context.Context, string, string) error { return nil }

func (c staticContacts) EmailFor(_ context.Context, userID string) (string, error) {
	if e, ok := c[userID]; ok {
		return e, nil
	}
	return "", errors.NotFound("no email for user " + userID)
}

// ─────────────────────────────────────────────────────────────────────────────
// Mocks
// ─────────────────────────────────────────────────────────────────────────────

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, e notification.Email) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishEvent(ctx context.Context, topic, key string, env *kafka.EventEnvelope) error {
	args := m.Called(ctx, topic, key, env)
	return args.Error(0)
}

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, now time.Time) (*RunReport, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RunReport), args.Error(1)
}
