// Package notification serves the in-app alert inbox.
package notification

import (
	"context"
	"strings"
	"time"

	"github.com/turtacn/LexAlert/internal/domain/access"
	domainNotification "github.com/turtacn/LexAlert/internal/domain/notification"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/pkg/errors"
	"github.com/turtacn/LexAlert/pkg/types/common"
)

// Service lists a user's notifications and marks them read.
type Service interface {
	List(ctx context.Context, p access.Principal, input *ListInput) (*ListResult, error)
	ListModal(ctx context.Context, p access.Principal) ([]*domainNotification.Notification, error)
	MarkRead(ctx context.Context, p access.Principal, id string) error
}

// ListInput contains paging for the inbox.
type ListInput struct {
	UnreadOnly bool
	Page       int
	PageSize   int
}

// ListResult is one page of notifications.
type ListResult struct {
	Notifications []*domainNotification.Notification `json:"notifications"`
	Pagination    common.Pagination                   `json:"pagination"`
}

type serviceImpl struct {
	repo   domainNotification.Repository
	policy access.Policy
	logger logging.Logger
	clock  func() time.Time
}

// NewService creates the inbox service.
func NewService(repo domainNotification.Repository, policy access.Policy, logger logging.Logger) Service {
	if policy == nil {
		policy = access.DenyAllPolicy{}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &serviceImpl{repo: repo, policy: policy, logger: logger, clock: time.Now}
}

func (s *serviceImpl) List(ctx context.Context, p access.Principal, input *ListInput) (*ListResult, error) {
	if p.IsZero() {
		return nil, errors.Unauthorized("authentication required")
	}
	if input == nil {
		input = &ListInput{}
	}
	page := common.Pagination{Page: input.Page, PageSize: input.PageSize}.Normalize()

	items, total, err := s.repo.ListByUser(ctx, p.UserID, domainNotification.ListFilter{
		UnreadOnly: input.UnreadOnly,
		Limit:      page.PageSize,
		Offset:     page.Offset(),
	})
	if err != nil {
		return nil, err
	}
	page.Total = total
	return &ListResult{Notifications: items, Pagination: page}, nil
}

func (s *serviceImpl) ListModal(ctx context.Context, p access.Principal) ([]*domainNotification.Notification, error) {
	if p.IsZero() {
		return nil, errors.Unauthorized("authentication required")
	}
	return s.repo.ListUnreadModal(ctx, p.UserID)
}

// MarkRead is idempotent; the first read timestamp is kept.
func (s *serviceImpl) MarkRead(ctx context.Context, p access.Principal, id string) error {
	if p.IsZero() {
		return errors.Unauthorized("authentication required")
	}
	if strings.TrimSpace(id) == "" {
		return errors.InvalidParam("notification id is required")
	}
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n.UserID != p.UserID && !s.policy.IsAdmin(p) {
		// Rows owned by other users read as missing.
		return errors.New(errors.ErrCodeNotificationNotFound, "notification not found").WithDetail(id)
	}
	if n.IsRead() {
		return nil
	}
	if err := s.repo.MarkRead(ctx, id, s.clock()); err != nil {
		s.logger.Error("Failed to mark notification read", logging.String("notification_id", id), logging.Err(err))
		return err
	}
	return nil
}
