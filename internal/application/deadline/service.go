// Package deadline provides the application service behind the deadline
// HTTP API and CLI.
package deadline

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/turtacn/LexAlert/internal/domain/access"
	domainDeadline "github.com/turtacn/LexAlert/internal/domain/deadline"
	"github.com/turtacn/LexAlert/internal/domain/notification"
	"github.com/turtacn/LexAlert/internal/infrastructure/database/redis"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/pkg/errors"
	"github.com/turtacn/LexAlert/pkg/types/common"
)

// Service defines the deadline application operations. Every call is made on
// behalf of a principal and checked against the access policy.
type Service interface {
	Create(ctx context.Context, p access.Principal, input *CreateInput) (*domainDeadline.Deadline, error)
	Get(ctx context.Context, p access.Principal, id string) (*domainDeadline.Deadline, error)
	List(ctx context.Context, p access.Principal, input *ListInput) (*ListResult, error)
	Update(ctx context.Context, p access.Principal, input *UpdateInput) (*domainDeadline.Deadline, error)
	Complete(ctx context.Context, p access.Principal, id string) (*domainDeadline.Deadline, error)
	Reopen(ctx context.Context, p access.Principal, id string) (*domainDeadline.Deadline, error)
	Acknowledge(ctx context.Context, p access.Principal, id string) (*domainDeadline.Deadline, error)
	Delete(ctx context.Context, p access.Principal, id string) error
	PreviewAlerts(ctx context.Context, p access.Principal, id string, at time.Time) (*AlertPreview, error)
}

// CreateInput contains input for creating a deadline.
type CreateInput struct {
	Title        string
	Description  string
	DeadlineDate time.Time
	ProcessID    *string
}

// UpdateInput carries a partial update; nil fields are left unchanged. An
// empty ProcessID unlinks the deadline from its case.
type UpdateInput struct {
	ID           string
	Title        *string
	Description  *string
	DeadlineDate *time.Time
	ProcessID    *string
}

// ListInput contains filters and paging for a listing.
type ListInput struct {
	Status      []domainDeadline.Status
	AlertStatus []domainDeadline.AlertStatus
	ProcessID   string
	DueFrom     *time.Time
	DueTo       *time.Time
	Page        int
	PageSize    int
}

// ListResult is one page of deadlines.
type ListResult struct {
	Deadlines  []*domainDeadline.Deadline `json:"deadlines"`
	Pagination common.Pagination          `json:"pagination"`
}

// AlertPreview is the engine's output for one deadline at a chosen instant.
// Nothing is persisted or sent when it is computed.
type AlertPreview struct {
	DeadlineID           string                     `json:"deadline_id"`
	At                   time.Time                  `json:"at"`
	DaysRemaining        int                        `json:"days_remaining"`
	AlertStatus          domainDeadline.AlertStatus `json:"alert_status"`
	NeedsAcknowledgement bool                       `json:"needs_acknowledgement"`
	Plans                []domainDeadline.AlertPlan `json:"plans"`
}

// ErrAccessDenied is returned when the principal may not touch a deadline.
var ErrAccessDenied = errors.New(errors.ErrCodeDeadlineAccessDenied, "access to deadline denied")

const defaultCacheTTL = 5 * time.Minute

// Option configures the service.
type Option func(*serviceImpl)

// WithCache enables read-through caching of Get.
func WithCache(c redis.Cache, ttl time.Duration) Option {
	return func(s *serviceImpl) {
		s.cache = c
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithContacts records the caller's email on create so the dispatcher can
// reach them.
func WithContacts(c notification.ContactDirectory) Option {
	return func(s *serviceImpl) { s.contacts = c }
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(s *serviceImpl) { s.clock = clock }
}

type serviceImpl struct {
	repo     domainDeadline.Repository
	policy   access.Policy
	contacts notification.ContactDirectory
	cache    redis.Cache
	cacheTTL time.Duration
	logger   logging.Logger
	clock    func() time.Time
}

// NewService creates a new deadline application service.
func NewService(repo domainDeadline.Repository, policy access.Policy, logger logging.Logger, opts ...Option) Service {
	if policy == nil {
		policy = access.DenyAllPolicy{}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &serviceImpl{
		repo:     repo,
		policy:   policy,
		cacheTTL: defaultCacheTTL,
		logger:   logger,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *serviceImpl) Create(ctx context.Context, p access.Principal, input *CreateInput) (*domainDeadline.Deadline, error) {
	if p.IsZero() {
		return nil, errors.Unauthorized("authentication required")
	}
	if input == nil {
		return nil, errors.InvalidParam("input is required")
	}

	d, err := domainDeadline.NewDeadline(p.UserID, input.Title, input.Description, input.DeadlineDate, input.ProcessID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, d); err != nil {
		s.logger.Error("Failed to create deadline", logging.String("user_id", p.UserID), logging.Err(err))
		return nil, err
	}

	if s.contacts != nil && p.Email != "" {
		if err := s.contacts.Upsert(ctx, p.UserID, p.Email); err != nil {
			s.logger.Warn("Failed to record contact email", logging.String("user_id", p.UserID), logging.Err(err))
		}
	}

	s.logger.Info("Deadline created",
		logging.String("deadline_id", d.ID),
		logging.String("user_id", d.UserID),
		logging.Time("deadline_date", d.DeadlineDate))
	return d, nil
}

func (s *serviceImpl) Get(ctx context.Context, p access.Principal, id string) (*domainDeadline.Deadline, error) {
	d, err := s.load(ctx, p, id)
	if err != nil {
		return nil, err
	}
	d.AlertStatus = domainDeadline.ComputeAlertStatus(*d, s.clock())
	return d, nil
}

func (s *serviceImpl) List(ctx context.Context, p access.Principal, input *ListInput) (*ListResult, error) {
	if p.IsZero() {
		return nil, errors.Unauthorized("authentication required")
	}
	if input == nil {
		input = &ListInput{}
	}
	page := common.Pagination{Page: input.Page, PageSize: input.PageSize}.Normalize()

	items, total, err := s.repo.ListByUser(ctx, p.UserID, domainDeadline.ListFilter{
		Status:      input.Status,
		AlertStatus: input.AlertStatus,
		ProcessID:   strings.TrimSpace(input.ProcessID),
		DueFrom:     input.DueFrom,
		DueTo:       input.DueTo,
		Limit:       page.PageSize,
		Offset:      page.Offset(),
	})
	if err != nil {
		return nil, err
	}

	// The stored label can lag by up to one dispatch interval.
	now := s.clock()
	for _, d := range items {
		d.AlertStatus = domainDeadline.ComputeAlertStatus(*d, now)
	}
	page.Total = total
	return &ListResult{Deadlines: items, Pagination: page}, nil
}

func (s *serviceImpl) Update(ctx context.Context, p access.Principal, input *UpdateInput) (*domainDeadline.Deadline, error) {
	if input == nil {
		return nil, errors.InvalidParam("input is required")
	}
	d, err := s.loadFresh(ctx, p, input.ID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		d.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		d.Description = *input.Description
	}
	if input.DeadlineDate != nil {
		d.DeadlineDate = input.DeadlineDate.UTC()
	}
	if input.ProcessID != nil {
		if pid := strings.TrimSpace(*input.ProcessID); pid != "" {
			d.ProcessID = &pid
		} else {
			d.ProcessID = nil
		}
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	now := s.clock()
	d.AlertStatus = domainDeadline.ComputeAlertStatus(*d, now)
	d.UpdatedAt = now.UTC()
	return d, s.save(ctx, d)
}

func (s *serviceImpl) Complete(ctx context.Context, p access.Principal, id string) (*domainDeadline.Deadline, error) {
	d, err := s.loadFresh(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := d.Complete(s.clock()); err != nil {
		return nil, err
	}
	return d, s.saveStatus(ctx, d)
}

func (s *serviceImpl) Reopen(ctx context.Context, p access.Principal, id string) (*domainDeadline.Deadline, error) {
	d, err := s.loadFresh(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := d.Reopen(s.clock()); err != nil {
		return nil, err
	}
	return d, s.saveStatus(ctx, d)
}

func (s *serviceImpl) Acknowledge(ctx context.Context, p access.Principal, id string) (*domainDeadline.Deadline, error) {
	d, err := s.loadFresh(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := d.Acknowledge(s.clock()); err != nil {
		return nil, err
	}
	if err := s.repo.Acknowledge(ctx, d.ID, *d.AcknowledgedAt); err != nil {
		return nil, err
	}
	s.invalidate(ctx, d.ID)
	s.logger.Info("Deadline acknowledged", logging.String("deadline_id", d.ID), logging.String("user_id", p.UserID))
	return d, nil
}

func (s *serviceImpl) Delete(ctx context.Context, p access.Principal, id string) error {
	if _, err := s.loadFresh(ctx, p, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	s.logger.Info("Deadline deleted", logging.String("deadline_id", id), logging.String("user_id", p.UserID))
	return nil
}

func (s *serviceImpl) PreviewAlerts(ctx context.Context, p access.Principal, id string, at time.Time) (*AlertPreview, error) {
	d, err := s.load(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if at.IsZero() {
		at = s.clock()
	}
	plans := domainDeadline.BuildAlertPlan(*d, at)
	if plans == nil {
		plans = []domainDeadline.AlertPlan{}
	}
	return &AlertPreview{
		DeadlineID:           d.ID,
		At:                   at.UTC(),
		DaysRemaining:        domainDeadline.DaysUntil(d.DeadlineDate, at),
		AlertStatus:          domainDeadline.ComputeAlertStatus(*d, at),
		NeedsAcknowledgement: d.NeedsAcknowledgement(at),
		Plans:                plans,
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────────────────────

func cacheKey(id string) string {
	return "deadline:" + id
}

// load reads through the cache, then checks access.
func (s *serviceImpl) load(ctx context.Context, p access.Principal, id string) (*domainDeadline.Deadline, error) {
	if p.IsZero() {
		return nil, errors.Unauthorized("authentication required")
	}
	if strings.TrimSpace(id) == "" {
		return nil, errors.InvalidParam("deadline id is required")
	}

	var d *domainDeadline.Deadline
	if s.cache == nil {
		got, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		d = got
	} else {
		d = new(domainDeadline.Deadline)
		err := s.cache.GetOrSet(ctx, cacheKey(id), d, s.cacheTTL, func(ctx context.Context) (interface{}, error) {
			return s.repo.GetByID(ctx, id)
		})
		if err != nil {
			if stderrors.Is(err, redis.ErrCacheMiss) {
				return nil, errors.New(errors.ErrCodeDeadlineNotFound, "deadline not found").WithDetail(id)
			}
			return nil, err
		}
	}
	return s.authorize(p, d)
}

// loadFresh bypasses the cache; writes always start from the stored row.
func (s *serviceImpl) loadFresh(ctx context.Context, p access.Principal, id string) (*domainDeadline.Deadline, error) {
	if p.IsZero() {
		return nil, errors.Unauthorized("authentication required")
	}
	if strings.TrimSpace(id) == "" {
		return nil, errors.InvalidParam("deadline id is required")
	}
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.authorize(p, d)
}

func (s *serviceImpl) authorize(p access.Principal, d *domainDeadline.Deadline) (*domainDeadline.Deadline, error) {
	if !s.policy.CanAccessDeadline(p, d) {
		s.logger.Warn("Deadline access denied",
			logging.String("deadline_id", d.ID),
			logging.String("user_id", p.UserID))
		return nil, ErrAccessDenied.WithDetail(d.ID)
	}
	return d, nil
}

func (s *serviceImpl) save(ctx context.Context, d *domainDeadline.Deadline) error {
	if err := s.repo.Update(ctx, d); err != nil {
		s.logger.Error("Failed to update deadline", logging.String("deadline_id", d.ID), logging.Err(err))
		return err
	}
	s.invalidate(ctx, d.ID)
	return nil
}

func (s *serviceImpl) saveStatus(ctx context.Context, d *domainDeadline.Deadline) error {
	if err := s.repo.UpdateStatus(ctx, d.ID, d.Status, d.AlertStatus); err != nil {
		s.logger.Error("Failed to update deadline status", logging.String("deadline_id", d.ID), logging.Err(err))
		return err
	}
	s.invalidate(ctx, d.ID)
	s.logger.Info("Deadline status changed", logging.String("deadline_id", d.ID), logging.String("status", string(d.Status)))
	return nil
}

func (s *serviceImpl) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cacheKey(id)); err != nil {
		s.logger.Warn("Failed to invalidate deadline cache", logging.String("deadline_id", id), logging.Err(err))
	}
}
