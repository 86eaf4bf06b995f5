package notification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LexAlert/internal/domain/access"
	domainNotification "github.com/turtacn/LexAlert/internal/domain/notification"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/pkg/errors"
)

type mockNotificationRepository struct {
	mock.Mock
}

func (m *mockNotificationRepository) InsertIfAbsent(ctx context.Context, n *domainNotification.Notification) (bool, error) {
	args := m.Called(ctx, n)
	return args.Bool(0), args.Error(1)
}

func (m *mockNotificationRepository) GetByID(ctx context.Context, id string) (*domainNotification.Notification, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domainNotification.Notification), args.Error(1)
}

func (m *mockNotificationRepository) ListByUser(ctx context.Context, userID string, f domainNotification.ListFilter) ([]*domainNotification.Notification, int64, error) {
	args := m.Called(ctx, userID, f)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*domainNotification.Notification), args.Get(1).(int64), args.Error(2)
}

func (m *mockNotificationRepository) MarkRead(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *mockNotificationRepository) ListUnreadModal(ctx context.Context, userID string) ([]*domainNotification.Notification, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domainNotification.Notification), args.Error(1)
}

var (
	alice = access.Principal{UserID: "alice", Email: "alice@example.com"}
	admin = access.Principal{UserID: "root"}
)

func newService(repo *mockNotificationRepository) Service {
	return NewService(repo, access.NewAllowListPolicy([]string{"root"}), logging.NewNopLogger())
}

func TestList(t *testing.T) {
	repo := new(mockNotificationRepository)
	rows := []*domainNotification.Notification{{ID: "n1", UserID: "alice"}}
	repo.On("ListByUser", mock.Anything, "alice", domainNotification.ListFilter{UnreadOnly: true, Limit: 10, Offset: 10}).
		Return(rows, int64(11), nil)

	res, err := newService(repo).List(context.Background(), alice, &ListInput{UnreadOnly: true, Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, rows, res.Notifications)
	assert.Equal(t, int64(11), res.Pagination.Total)
	assert.Equal(t, 2, res.Pagination.Page)
}

func TestList_Unauthenticated(t *testing.T) {
	_, err := newService(new(mockNotificationRepository)).List(context.Background(), access.Principal{}, nil)
	assert.True(t, errors.IsUnauthorized(err))
}

func TestListModal(t *testing.T) {
	repo := new(mockNotificationRepository)
	repo.On("ListUnreadModal", mock.Anything, "alice").Return([]*domainNotification.Notification{{ID: "n1"}}, nil)

	rows, err := newService(repo).ListModal(context.Background(), alice)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestMarkRead(t *testing.T) {
	t.Run("owner", func(t *testing.T) {
		repo := new(mockNotificationRepository)
		repo.On("GetByID", mock.Anything, "n1").Return(&domainNotification.Notification{ID: "n1", UserID: "alice"}, nil)
		repo.On("MarkRead", mock.Anything, "n1", mock.AnythingOfType("time.Time")).Return(nil).Once()

		require.NoError(t, newService(repo).MarkRead(context.Background(), alice, "n1"))
		repo.AssertExpectations(t)
	})

	t.Run("already read", func(t *testing.T) {
		repo := new(mockNotificationRepository)
		at := time.Now()
		repo.On("GetByID", mock.Anything, "n1").Return(&domainNotification.Notification{ID: "n1", UserID: "alice", ReadAt: &at}, nil)

		require.NoError(t, newService(repo).MarkRead(context.Background(), alice, "n1"))
		repo.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("other user", func(t *testing.T) {
		repo := new(mockNotificationRepository)
		repo.On("GetByID", mock.Anything, "n2").Return(&domainNotification.Notification{ID: "n2", UserID: "bob"}, nil)

		err := newService(repo).MarkRead(context.Background(), alice, "n2")
		assert.True(t, errors.IsNotFound(err))
		repo.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("admin", func(t *testing.T) {
		repo := new(mockNotificationRepository)
		repo.On("GetByID", mock.Anything, "n2").Return(&domainNotification.Notification{ID: "n2", UserID: "bob"}, nil)
		repo.On("MarkRead", mock.Anything, "n2", mock.Anything).Return(nil)

		assert.NoError(t, newService(repo).MarkRead(context.Background(), admin, "n2"))
	})

	t.Run("blank id", func(t *testing.T) {
		err := newService(new(mockNotificationRepository)).MarkRead(context.Background(), alice, " ")
		assert.True(t, errors.IsValidation(err))
	})
}
