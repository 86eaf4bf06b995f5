package deadline

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LexAlert/internal/domain/access"
	domainDeadline "github.com/turtacn/LexAlert/internal/domain/deadline"
	"github.com/turtacn/LexAlert/internal/infrastructure/database/redis"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/pkg/errors"
)

// mockDeadlineRepository is a mock implementation of domainDeadline.Repository
type mockDeadlineRepository struct {
	mock.Mock
}

func (m *mockDeadlineRepository) Create(ctx context.Context, d *domainDeadline.Deadline) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *mockDeadlineRepository) GetByID(ctx context.Context, id string) (*domainDeadline.Deadline, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// Hand out a copy so the service cannot mutate the fixture.
	cp := *args.Get(0).(*domainDeadline.Deadline)
	return &cp, args.Error(1)
}

func (m *mockDeadlineRepository) Update(ctx context.Context, d *domainDeadline.Deadline) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *mockDeadlineRepository) UpdateStatus(ctx context.Context, id string, status domainDeadline.Status, alertStatus domainDeadline.AlertStatus) error {
	args := m.Called(ctx, id, status, alertStatus)
	return args.Error(0)
}

func (m *mockDeadlineRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockDeadlineRepository) ListByUser(ctx context.Context, userID string, f domainDeadline.ListFilter) ([]*domainDeadline.Deadline, int64, error) {
	args := m.Called(ctx, userID, f)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*domainDeadline.Deadline), args.Get(1).(int64), args.Error(2)
}

func (m *mockDeadlineRepository) ListActive(ctx context.Context, afterID string, limit int) ([]*domainDeadline.Deadline, error) {
	args := m.Called(ctx, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domainDeadline.Deadline), args.Error(1)
}

func (m *mockDeadlineRepository) UpdateAlertStatus(ctx context.Context, id string, status domainDeadline.AlertStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *mockDeadlineRepository) Acknowledge(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

type mockContacts struct {
	mock.Mock
}

func (m *mockContacts) Upsert(ctx context.Context, userID, email string) error {
	args := m.Called(ctx, userID, email)
	return args.Error(0)
}

func (m *mockContacts) EmailFor(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

var (
	now   = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	alice = access.Principal{UserID: "alice", Email: "alice@example.com"}
	bob   = access.Principal{UserID: "bob"}
	admin = access.Principal{UserID: "ops", Email: "ops@example.com"}
)

func fixedClock() time.Time { return now }

func newTestService(repo *mockDeadlineRepository, opts ...Option) Service {
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	return NewService(repo, access.NewAllowListPolicy([]string{"ops@example.com"}), logging.NewNopLogger(), opts...)
}

func sampleDeadline(due time.Time) *domainDeadline.Deadline {
	return &domainDeadline.Deadline{
		ID:           "dl-1",
		UserID:       "alice",
		Title:        "Reply brief",
		DeadlineDate: due,
		Status:       domainDeadline.StatusPending,
		AlertStatus:  domainDeadline.AlertStatusActive,
		CreatedAt:    now.AddDate(0, 0, -30),
		UpdatedAt:    now.AddDate(0, 0, -30),
	}
}

func TestCreate(t *testing.T) {
	repo := new(mockDeadlineRepository)
	contacts := new(mockContacts)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*deadline.Deadline")).Return(nil)
	contacts.On("Upsert", mock.Anything, "alice", "alice@example.com").Return(nil).Once()

	svc := newTestService(repo, WithContacts(contacts))
	pid := " 0001234-56.2026 "
	d, err := svc.Create(context.Background(), alice, &CreateInput{
		Title:        "  Appeal  ",
		DeadlineDate: now.AddDate(0, 0, 10),
		ProcessID:    &pid,
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", d.UserID)
	assert.Equal(t, "Appeal", d.Title)
	assert.Equal(t, domainDeadline.StatusPending, d.Status)
	require.NotNil(t, d.ProcessID)
	assert.NotEmpty(t, d.ID)
	contacts.AssertExpectations(t)
}

func TestCreate_Validation(t *testing.T) {
	repo := new(mockDeadlineRepository)
	svc := newTestService(repo)

	_, err := svc.Create(context.Background(), alice, &CreateInput{Title: "", DeadlineDate: now})
	assert.True(t, errors.IsValidation(err))

	_, err = svc.Create(context.Background(), alice, &CreateInput{Title: "x"})
	assert.True(t, errors.IsValidation(err))

	_, err = svc.Create(context.Background(), access.Principal{}, &CreateInput{Title: "x", DeadlineDate: now})
	assert.True(t, errors.IsUnauthorized(err))

	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreate_ContactFailureIsNotFatal(t *testing.T) {
	repo := new(mockDeadlineRepository)
	contacts := new(mockContacts)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	contacts.On("Upsert", mock.Anything, mock.Anything, mock.Anything).Return(errors.Internal("db down"))

	_, err := newTestService(repo, WithContacts(contacts)).
		Create(context.Background(), alice, &CreateInput{Title: "x", DeadlineDate: now})
	assert.NoError(t, err)
}

func TestGet_AccessPolicy(t *testing.T) {
	repo := new(mockDeadlineRepository)
	repo.On("GetByID", mock.Anything, "dl-1").Return(sampleDeadline(now.AddDate(0, 0, 1)), nil)
	svc := newTestService(repo)

	d, err := svc.Get(context.Background(), alice, "dl-1")
	require.NoError(t, err)
	// Stored label is refreshed for display.
	assert.Equal(t, domainDeadline.AlertStatusUrgent, d.AlertStatus)

	_, err = svc.Get(context.Background(), bob, "dl-1")
	assert.True(t, errors.IsForbidden(err))
	assert.True(t, errors.IsCode(err, errors.ErrCodeDeadlineAccessDenied))

	_, err = svc.Get(context.Background(), admin, "dl-1")
	assert.NoError(t, err)
}

func TestGet_NotFound(t *testing.T) {
	repo := new(mockDeadlineRepository)
	repo.On("GetByID", mock.Anything, "nope").
		Return(nil, errors.New(errors.ErrCodeDeadlineNotFound, "deadline not found"))

	_, err := newTestService(repo).Get(context.Background(), alice, "nope")
	assert.True(t, errors.IsNotFound(err))
}

func TestGet_CachedAndInvalidated(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redis.NewClient(&redis.RedisConfig{Addr: mr.Addr()}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	cache := redis.NewRedisCache(client, logging.NewNopLogger(), redis.WithPrefix("test:"), redis.WithJitter(false))

	repo := new(mockDeadlineRepository)
	repo.On("GetByID", mock.Anything, "dl-1").Return(sampleDeadline(now.AddDate(0, 0, 5)), nil)
	repo.On("UpdateStatus", mock.Anything, "dl-1", domainDeadline.StatusCompleted, domainDeadline.AlertStatusDone).Return(nil)
	svc := newTestService(repo, WithCache(cache, time.Minute))

	for i := 0; i < 3; i++ {
		d, err := svc.Get(context.Background(), alice, "dl-1")
		require.NoError(t, err)
		assert.Equal(t, "Reply brief", d.Title)
	}
	repo.AssertNumberOfCalls(t, "GetByID", 1)
	assert.True(t, mr.Exists("test:deadline:dl-1"))

	// Cached entries still go through the policy.
	_, err = svc.Get(context.Background(), bob, "dl-1")
	assert.True(t, errors.IsForbidden(err))

	_, err = svc.Complete(context.Background(), alice, "dl-1")
	require.NoError(t, err)
	assert.False(t, mr.Exists("test:deadline:dl-1"))
}

func TestList_RecomputesAlertStatus(t *testing.T) {
	repo := new(mockDeadlineRepository)
	overdue := sampleDeadline(now.AddDate(0, 0, -1))
	overdue.AlertStatus = domainDeadline.AlertStatusUrgent
	repo.On("ListByUser", mock.Anything, "alice", mock.MatchedBy(func(f domainDeadline.ListFilter) bool {
		return f.Limit == 20 && f.Offset == 0 && f.ProcessID == "p-1"
	})).Return([]*domainDeadline.Deadline{overdue}, int64(1), nil)

	res, err := newTestService(repo).List(context.Background(), alice, &ListInput{ProcessID: " p-1 "})
	require.NoError(t, err)
	require.Len(t, res.Deadlines, 1)
	assert.Equal(t, domainDeadline.AlertStatusOverdue, res.Deadlines[0].AlertStatus)
	assert.Equal(t, int64(1), res.Pagination.Total)
}

func TestUpdate(t *testing.T) {
	repo := new(mockDeadlineRepository)
	repo.On("GetByID", mock.Anything, "dl-1").Return(sampleDeadline(now.AddDate(0, 0, 20)), nil)
	repo.On("Update", mock.Anything, mock.AnythingOfType("*deadline.Deadline")).Return(nil)
	svc := newTestService(repo)

	due := now.AddDate(0, 0, 2)
	empty := ""
	d, err := svc.Update(context.Background(), alice, &UpdateInput{ID: "dl-1", DeadlineDate: &due, ProcessID: &empty})
	require.NoError(t, err)
	assert.Equal(t, domainDeadline.AlertStatusUrgent, d.AlertStatus)
	assert.Nil(t, d.ProcessID)
	assert.Equal(t, now, d.UpdatedAt)

	blank := "  "
	_, err = svc.Update(context.Background(), alice, &UpdateInput{ID: "dl-1", Title: &blank})
	assert.True(t, errors.IsValidation(err))
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "Acknowledge", mock.Anything, mock.Anything, mock.Anything)
}

func TestCompleteReopen(t *testing.T) {
	repo := new(mockDeadlineRepository)
	done := sampleDeadline(now.AddDate(0, 0, -3))
	done.Status = domainDeadline.StatusCompleted
	done.AlertStatus = domainDeadline.AlertStatusDone
	repo.On("GetByID", mock.Anything, "dl-1").Return(sampleDeadline(now.AddDate(0, 0, 3)), nil)
	repo.On("GetByID", mock.Anything, "dl-2").Return(done, nil)
	repo.On("UpdateStatus", mock.Anything, "dl-1", domainDeadline.StatusCompleted, domainDeadline.AlertStatusDone).Return(nil).Once()
	repo.On("UpdateStatus", mock.Anything, "dl-2", domainDeadline.StatusPending, domainDeadline.AlertStatusOverdue).Return(nil).Once()
	svc := newTestService(repo)

	d, err := svc.Complete(context.Background(), alice, "dl-1")
	require.NoError(t, err)
	assert.Equal(t, domainDeadline.AlertStatusDone, d.AlertStatus)

	_, err = svc.Complete(context.Background(), alice, "dl-2")
	assert.True(t, errors.IsConflict(err))

	d, err = svc.Reopen(context.Background(), alice, "dl-2")
	require.NoError(t, err)
	assert.Equal(t, domainDeadline.StatusPending, d.Status)
	assert.Equal(t, domainDeadline.AlertStatusOverdue, d.AlertStatus)

	_, err = svc.Reopen(context.Background(), alice, "dl-1")
	assert.True(t, errors.IsConflict(err))

	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestAcknowledge(t *testing.T) {
	repo := new(mockDeadlineRepository)
	repo.On("GetByID", mock.Anything, "dl-1").Return(sampleDeadline(now.AddDate(0, 0, -2)), nil)
	repo.On("Acknowledge", mock.Anything, "dl-1", now).Return(nil).Once()

	d, err := newTestService(repo).Acknowledge(context.Background(), alice, "dl-1")
	require.NoError(t, err)
	require.NotNil(t, d.AcknowledgedAt)
	assert.False(t, d.NeedsAcknowledgement(now))
	repo.AssertExpectations(t)

	_, err = newTestService(repo).Acknowledge(context.Background(), bob, "dl-1")
	assert.True(t, errors.IsForbidden(err))
}

func TestDelete(t *testing.T) {
	repo := new(mockDeadlineRepository)
	repo.On("GetByID", mock.Anything, "dl-1").Return(sampleDeadline(now), nil)
	repo.On("Delete", mock.Anything, "dl-1").Return(nil).Once()
	svc := newTestService(repo)

	assert.True(t, errors.IsForbidden(svc.Delete(context.Background(), bob, "dl-1")))
	require.NoError(t, svc.Delete(context.Background(), alice, "dl-1"))
	repo.AssertExpectations(t)
}

func TestPreviewAlerts(t *testing.T) {
	repo := new(mockDeadlineRepository)
	repo.On("GetByID", mock.Anything, "dl-1").Return(sampleDeadline(now.AddDate(0, 0, 7)), nil)
	svc := newTestService(repo)

	p, err := svc.PreviewAlerts(context.Background(), alice, "dl-1", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 7, p.DaysRemaining)
	require.Len(t, p.Plans, 1)
	assert.Equal(t, domainDeadline.RuleDueIn7Days, p.Plans[0].Rule)

	p, err = svc.PreviewAlerts(context.Background(), alice, "dl-1", now.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, 5, p.DaysRemaining)
	assert.Empty(t, p.Plans)
	assert.NotNil(t, p.Plans)

	p, err = svc.PreviewAlerts(context.Background(), alice, "dl-1", now.AddDate(0, 0, 9))
	require.NoError(t, err)
	assert.Equal(t, domainDeadline.AlertStatusOverdue, p.AlertStatus)
	assert.True(t, p.NeedsAcknowledgement)
	require.Len(t, p.Plans, 1)
	assert.Equal(t, domainDeadline.RuleOverdue, p.Plans[0].Rule)

	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}
